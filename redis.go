package relay

import (
	"context"
	"fmt"
	"time"

	"github.com/gomodule/redigo/redis"
	"github.com/nyaruka/redisx"
	"github.com/pkg/errors"
)

// NewRedisPool creates a new redis pool for the given redis URL
func NewRedisPool(redisURL string, maxActive int) (*redis.Pool, error) {
	conn, err := redis.DialURL(redisURL)
	if err != nil {
		return nil, errors.Wrap(err, "unable to connect to redis")
	}
	conn.Close()

	return &redis.Pool{
		Wait:        true,
		MaxActive:   maxActive,
		MaxIdle:     4,
		IdleTimeout: 240 * time.Second,
		Dial: func() (redis.Conn, error) {
			return redis.DialURL(redisURL)
		},
	}, nil
}

// RedisLocker holds contact locks in redis so that several relay processes can share a phone number
type RedisLocker struct {
	rp         *redis.Pool
	expiration time.Duration
	retry      time.Duration
}

// NewRedisLocker creates a new redis locker. Locks expire after expiration in case we die holding one,
// and we wait at most retry to grab one.
func NewRedisLocker(rp *redis.Pool, expiration, retry time.Duration) *RedisLocker {
	return &RedisLocker{rp: rp, expiration: expiration, retry: retry}
}

func (l *RedisLocker) locker(contact ContactID) *redisx.Locker {
	return redisx.NewLocker(fmt.Sprintf("relay:contact:%s", contact), l.expiration)
}

// Lock grabs the lock for the given contact
func (l *RedisLocker) Lock(ctx context.Context, contact ContactID) (string, error) {
	retry := l.retry
	if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) < retry {
		retry = time.Until(deadline)
	}

	token, err := l.locker(contact).Grab(l.rp, retry)
	if err != nil {
		return "", errors.Wrapf(err, "error grabbing lock for contact %s", contact)
	}
	if token == "" {
		return "", fmt.Errorf("timed out waiting for lock for contact %s", contact)
	}
	return token, nil
}

// Unlock releases the lock for the given contact
func (l *RedisLocker) Unlock(contact ContactID, token string) error {
	return errors.Wrapf(l.locker(contact).Release(l.rp, token), "error releasing lock for contact %s", contact)
}

var _ RemoteLocker = (*RedisLocker)(nil)

// RedisSeen tracks the inbound message ids we've handled in redis
type RedisSeen struct {
	rp   *redis.Pool
	hash *redisx.IntervalHash
}

// NewRedisSeen creates a new seen tracker which remembers ids for between one and two days
func NewRedisSeen(rp *redis.Pool) *RedisSeen {
	return &RedisSeen{rp: rp, hash: redisx.NewIntervalHash("relay:seen", time.Hour*24, 2)}
}

// MarkSeen records the given message id, returning whether it had already been seen
func (s *RedisSeen) MarkSeen(ctx context.Context, msgID string) (bool, error) {
	rc, err := s.rp.GetContext(ctx)
	if err != nil {
		return false, errors.Wrap(err, "error getting redis connection")
	}
	defer rc.Close()

	val, err := s.hash.Get(rc, msgID)
	if err != nil {
		return false, errors.Wrapf(err, "error reading seen message %s", msgID)
	}
	if val != "" {
		return true, nil
	}

	return false, errors.Wrapf(s.hash.Set(rc, msgID, "1"), "error marking message %s as seen", msgID)
}

var _ SeenTracker = (*RedisSeen)(nil)
