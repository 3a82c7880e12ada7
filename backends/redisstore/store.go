package redisstore

import (
	"context"
	"fmt"

	"github.com/gomodule/redigo/redis"
	"github.com/pkg/errors"
	"github.com/zowobo/relay"
)

func init() {
	relay.RegisterStore("redis", newStore)
}

const keyPrefix = "relay:thread:"

// Store is a thread store which keeps each contact's thread in its own redis key
type Store struct {
	rp *redis.Pool
}

// NewStore creates a new store using the given pool
func NewStore(rp *redis.Pool) *Store {
	return &Store{rp: rp}
}

func newStore(config *relay.Config) (relay.ThreadStore, error) {
	if config.Redis == "" {
		return nil, errors.New("redis thread store requires a redis URL")
	}

	rp, err := relay.NewRedisPool(config.Redis, 8)
	if err != nil {
		return nil, err
	}
	return NewStore(rp), nil
}

func threadKey(contact relay.ContactID) string {
	return fmt.Sprintf("%s%s", keyPrefix, contact)
}

// Get returns the thread stored for the given contact
func (s *Store) Get(ctx context.Context, contact relay.ContactID) (relay.ThreadRef, bool, error) {
	rc, err := s.rp.GetContext(ctx)
	if err != nil {
		return relay.NilThreadRef, false, errors.Wrap(err, "error getting redis connection")
	}
	defer rc.Close()

	thread, err := redis.String(rc.Do("GET", threadKey(contact)))
	if err == redis.ErrNil {
		return relay.NilThreadRef, false, nil
	}
	if err != nil {
		return relay.NilThreadRef, false, errors.Wrapf(err, "error looking up thread for contact %s", contact)
	}
	return relay.ThreadRef(thread), true, nil
}

// PutIfAbsent stores the given thread unless the contact already has one, and returns whichever is stored
func (s *Store) PutIfAbsent(ctx context.Context, contact relay.ContactID, thread relay.ThreadRef) (relay.ThreadRef, error) {
	rc, err := s.rp.GetContext(ctx)
	if err != nil {
		return relay.NilThreadRef, errors.Wrap(err, "error getting redis connection")
	}
	defer rc.Close()

	key := threadKey(contact)

	if _, err := rc.Do("SET", key, string(thread), "NX"); err != nil {
		return relay.NilThreadRef, errors.Wrapf(err, "error storing thread for contact %s", contact)
	}

	stored, err := redis.String(rc.Do("GET", key))
	if err != nil {
		return relay.NilThreadRef, errors.Wrapf(err, "error reading back thread for contact %s", contact)
	}
	return relay.ThreadRef(stored), nil
}

// Ping checks that redis is reachable
func (s *Store) Ping(ctx context.Context) error {
	rc, err := s.rp.GetContext(ctx)
	if err != nil {
		return err
	}
	defer rc.Close()

	_, err = rc.Do("PING")
	return err
}

// Close closes the underlying pool
func (s *Store) Close() error {
	return s.rp.Close()
}

var _ relay.ThreadStore = (*Store)(nil)
