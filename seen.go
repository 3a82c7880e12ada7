package relay

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"
)

// SeenTracker remembers which inbound messages we've already accepted. WhatsApp redelivers webhooks
// it doesn't think were acknowledged so the same message can arrive more than once.
type SeenTracker interface {
	MarkSeen(ctx context.Context, msgID string) (bool, error)
}

// MemorySeen tracks seen messages in process memory
type MemorySeen struct {
	cache *cache.Cache
}

// NewMemorySeen creates a new in-memory seen tracker which remembers ids for the given duration
func NewMemorySeen(ttl time.Duration) *MemorySeen {
	return &MemorySeen{cache: cache.New(ttl, ttl*2)}
}

// MarkSeen records the given message id, returning whether it had already been seen
func (s *MemorySeen) MarkSeen(ctx context.Context, msgID string) (bool, error) {
	// Add fails if the key already exists which makes this check and set atomic
	if err := s.cache.Add(msgID, true, cache.DefaultExpiration); err != nil {
		return true, nil
	}
	return false, nil
}

var _ SeenTracker = (*MemorySeen)(nil)
