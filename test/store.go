package test

import (
	"context"
	"sync"

	"github.com/zowobo/relay"
)

func init() {
	relay.RegisterStore("mock", func(*relay.Config) (relay.ThreadStore, error) { return NewMockThreadStore(), nil })
}

// MockThreadStore is an in-memory thread store
type MockThreadStore struct {
	GetErr  error
	PutErr  error
	PingErr error

	mutex   sync.Mutex
	threads map[relay.ContactID]relay.ThreadRef
	gets    int
	puts    int
}

// NewMockThreadStore creates a new empty mock thread store
func NewMockThreadStore() *MockThreadStore {
	return &MockThreadStore{threads: make(map[relay.ContactID]relay.ThreadRef)}
}

func (s *MockThreadStore) Get(ctx context.Context, contact relay.ContactID) (relay.ThreadRef, bool, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.gets++
	if s.GetErr != nil {
		return relay.NilThreadRef, false, s.GetErr
	}

	thread, found := s.threads[contact]
	return thread, found, nil
}

func (s *MockThreadStore) PutIfAbsent(ctx context.Context, contact relay.ContactID, thread relay.ThreadRef) (relay.ThreadRef, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.puts++
	if s.PutErr != nil {
		return relay.NilThreadRef, s.PutErr
	}

	if existing, found := s.threads[contact]; found {
		return existing, nil
	}
	s.threads[contact] = thread
	return thread, nil
}

func (s *MockThreadStore) Ping(ctx context.Context) error { return s.PingErr }
func (s *MockThreadStore) Close() error                   { return nil }

// SetThread stores a thread for a contact directly
func (s *MockThreadStore) SetThread(contact relay.ContactID, thread relay.ThreadRef) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.threads[contact] = thread
}

// Threads returns a copy of all stored entries
func (s *MockThreadStore) Threads() map[relay.ContactID]relay.ThreadRef {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	threads := make(map[relay.ContactID]relay.ThreadRef, len(s.threads))
	for c, t := range s.threads {
		threads[c] = t
	}
	return threads
}

// Gets returns the number of lookups made
func (s *MockThreadStore) Gets() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.gets
}

var _ relay.ThreadStore = (*MockThreadStore)(nil)
