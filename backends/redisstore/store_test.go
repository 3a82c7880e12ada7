package redisstore_test

import (
	"context"
	"testing"
	"time"

	"github.com/gomodule/redigo/redis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zowobo/relay"
	"github.com/zowobo/relay/backends/redisstore"
)

const testRedisURL = "redis://localhost:6379/10"

func testPool(t *testing.T) *redis.Pool {
	rp, err := relay.NewRedisPool(testRedisURL, 4)
	if err != nil {
		t.Skipf("redis not available: %s", err)
	}

	rc := rp.Get()
	defer rc.Close()
	_, err = rc.Do("FLUSHDB")
	require.NoError(t, err)

	return rp
}

func TestRedisStore(t *testing.T) {
	ctx := context.Background()
	store := redisstore.NewStore(testPool(t))
	defer store.Close()

	assert.NoError(t, store.Ping(ctx))

	_, found, err := store.Get(ctx, "123")
	assert.NoError(t, err)
	assert.False(t, found)

	stored, err := store.PutIfAbsent(ctx, "123", "thread_abc")
	assert.NoError(t, err)
	assert.Equal(t, relay.ThreadRef("thread_abc"), stored)

	stored, err = store.PutIfAbsent(ctx, "123", "thread_xyz")
	assert.NoError(t, err)
	assert.Equal(t, relay.ThreadRef("thread_abc"), stored)

	thread, found, err := store.Get(ctx, "123")
	assert.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, relay.ThreadRef("thread_abc"), thread)
}

func TestRedisLockerAndSeen(t *testing.T) {
	ctx := context.Background()
	rp := testPool(t)
	defer rp.Close()

	locker := relay.NewRedisLocker(rp, time.Minute, time.Second)

	token, err := locker.Lock(ctx, "123")
	assert.NoError(t, err)
	assert.NotEqual(t, "", token)

	// can't grab it again while held
	short, cancel := context.WithTimeout(ctx, 200*time.Millisecond)
	defer cancel()
	_, err = locker.Lock(short, "123")
	assert.Error(t, err)

	// other contacts aren't affected
	other, err := locker.Lock(ctx, "456")
	assert.NoError(t, err)
	assert.NoError(t, locker.Unlock("456", other))

	assert.NoError(t, locker.Unlock("123", token))

	token, err = locker.Lock(ctx, "123")
	assert.NoError(t, err)
	assert.NoError(t, locker.Unlock("123", token))

	seen := relay.NewRedisSeen(rp)

	dupe, err := seen.MarkSeen(ctx, "wamid.1")
	assert.NoError(t, err)
	assert.False(t, dupe)

	dupe, err = seen.MarkSeen(ctx, "wamid.1")
	assert.NoError(t, err)
	assert.True(t, dupe)
}

func TestRedisStoreRequiresURL(t *testing.T) {
	config := relay.NewConfig()
	config.ThreadStore = "redis"

	_, err := relay.NewStore(config)
	assert.EqualError(t, err, "redis thread store requires a redis URL")
}
