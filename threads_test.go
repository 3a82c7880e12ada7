package relay_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/zowobo/relay"
	"github.com/zowobo/relay/test"
)

func TestThreadsResolveOrCreate(t *testing.T) {
	ctx := context.Background()
	store := test.NewMockThreadStore()
	assistant := test.NewMockAssistant()
	threads := relay.NewThreads(store, assistant)

	store.SetThread("123", "thread_existing")

	// a known contact gets their stored thread
	thread, err := threads.ResolveOrCreate(ctx, "123")
	assert.NoError(t, err)
	assert.Equal(t, relay.ThreadRef("thread_existing"), thread)
	assert.Equal(t, 0, assistant.ThreadsCreated())

	// a new contact gets a new thread which is stored
	thread, err = threads.ResolveOrCreate(ctx, "456")
	assert.NoError(t, err)
	assert.Equal(t, relay.ThreadRef("thread_1"), thread)
	assert.Equal(t, 1, assistant.ThreadsCreated())
	assert.Equal(t, map[relay.ContactID]relay.ThreadRef{"123": "thread_existing", "456": "thread_1"}, store.Threads())

	// and from then on it's cached
	gets := store.Gets()
	thread, err = threads.ResolveOrCreate(ctx, "456")
	assert.NoError(t, err)
	assert.Equal(t, relay.ThreadRef("thread_1"), thread)
	assert.Equal(t, gets, store.Gets())
}

func TestThreadsConcurrentFirstContact(t *testing.T) {
	ctx := context.Background()
	store := test.NewMockThreadStore()
	assistant := test.NewMockAssistant()
	assistant.CreateThreadDelay = 50 * time.Millisecond
	threads := relay.NewThreads(store, assistant)

	results := make([]relay.ThreadRef, 10)
	wg := sync.WaitGroup{}

	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()

			thread, err := threads.ResolveOrCreate(ctx, "123")
			assert.NoError(t, err)
			results[i] = thread
		}(i)
	}
	wg.Wait()

	for _, thread := range results {
		assert.Equal(t, relay.ThreadRef("thread_1"), thread)
	}
	assert.Equal(t, 1, assistant.ThreadsCreated())
	assert.Equal(t, map[relay.ContactID]relay.ThreadRef{"123": "thread_1"}, store.Threads())
}

// a store which reports another process as having stored a thread first
type racedStore struct {
	*test.MockThreadStore
}

func (s *racedStore) PutIfAbsent(ctx context.Context, contact relay.ContactID, thread relay.ThreadRef) (relay.ThreadRef, error) {
	s.MockThreadStore.SetThread(contact, "thread_other")
	return s.MockThreadStore.PutIfAbsent(ctx, contact, thread)
}

func TestThreadsLostRace(t *testing.T) {
	store := &racedStore{test.NewMockThreadStore()}
	assistant := test.NewMockAssistant()
	threads := relay.NewThreads(store, assistant)

	thread, err := threads.ResolveOrCreate(context.Background(), "123")
	assert.NoError(t, err)
	assert.Equal(t, relay.ThreadRef("thread_other"), thread)
	assert.Equal(t, 1, assistant.ThreadsCreated())
}

func TestThreadsErrors(t *testing.T) {
	ctx := context.Background()

	store := test.NewMockThreadStore()
	store.GetErr = errors.New("disk I/O error")
	assistant := test.NewMockAssistant()

	_, err := relay.NewThreads(store, assistant).ResolveOrCreate(ctx, "123")

	var serr *relay.StoreError
	if assert.True(t, errors.As(err, &serr)) {
		assert.Equal(t, "get", serr.Op)
	}
	assert.EqualError(t, err, "thread store get failed: disk I/O error")
	assert.Equal(t, 0, assistant.ThreadsCreated())

	store = test.NewMockThreadStore()
	store.PutErr = errors.New("disk full")

	_, err = relay.NewThreads(store, assistant).ResolveOrCreate(ctx, "123")
	if assert.True(t, errors.As(err, &serr)) {
		assert.Equal(t, "put", serr.Op)
	}

	store = test.NewMockThreadStore()
	assistant = test.NewMockAssistant()
	assistant.CreateThreadErr = errors.New("401 unauthorized")

	_, err = relay.NewThreads(store, assistant).ResolveOrCreate(ctx, "123")

	var aerr *relay.AssistantError
	assert.True(t, errors.As(err, &aerr))
	assert.Len(t, store.Threads(), 0)

	// failures aren't cached
	assistant.CreateThreadErr = nil

	thread, err := relay.NewThreads(store, assistant).ResolveOrCreate(ctx, "123")
	assert.NoError(t, err)
	assert.Equal(t, relay.ThreadRef("thread_1"), thread)
}
