package relay

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"
)

// StoreConstructorFunc defines a function to create a particular thread store type
type StoreConstructorFunc func(*Config) (ThreadStore, error)

// RegisterStore adds a new thread store type, called by individual stores in their init() func
func RegisterStore(storeType string, constructorFunc StoreConstructorFunc) {
	registeredStores[strings.ToLower(storeType)] = constructorFunc
}

// NewStore creates the type of thread store configured
func NewStore(config *Config) (ThreadStore, error) {
	storeFunc, found := registeredStores[strings.ToLower(config.ThreadStore)]
	if !found {
		return nil, fmt.Errorf("no such thread store type: '%s'", config.ThreadStore)
	}
	return storeFunc(config)
}

var registeredStores = make(map[string]StoreConstructorFunc)

// Threads resolves contacts to assistant threads, creating threads for new contacts
type Threads struct {
	store     ThreadStore
	assistant Assistant

	// stored threads never change so can be cached indefinitely
	cache    *cache.Cache
	creating singleflight.Group
}

// NewThreads creates a new thread resolver
func NewThreads(store ThreadStore, assistant Assistant) *Threads {
	return &Threads{
		store:     store,
		assistant: assistant,
		cache:     cache.New(time.Hour, time.Minute*10),
	}
}

// ResolveOrCreate returns the thread for the given contact, creating and storing a new one if this
// is a contact we haven't seen before. Concurrent calls for the same new contact share a single
// creation. If another process stores a thread for the contact first, the thread it stored wins and
// the one we created is abandoned.
func (t *Threads) ResolveOrCreate(ctx context.Context, contact ContactID) (ThreadRef, error) {
	if cached, found := t.cache.Get(string(contact)); found {
		return cached.(ThreadRef), nil
	}

	v, err, _ := t.creating.Do(string(contact), func() (any, error) {
		return t.resolveOrCreate(ctx, contact)
	})
	if err != nil {
		return NilThreadRef, err
	}

	thread := v.(ThreadRef)
	t.cache.SetDefault(string(contact), thread)
	return thread, nil
}

func (t *Threads) resolveOrCreate(ctx context.Context, contact ContactID) (ThreadRef, error) {
	log := slog.With("comp", "threads", "contact", contact)

	existing, found, err := t.store.Get(ctx, contact)
	if err != nil {
		return NilThreadRef, &StoreError{Op: "get", Err: err}
	}
	if found {
		log.Debug("found existing thread", "thread", existing)
		return existing, nil
	}

	created, err := t.assistant.CreateThread(ctx)
	if err != nil {
		return NilThreadRef, &AssistantError{Err: err}
	}

	stored, err := t.store.PutIfAbsent(ctx, contact, created)
	if err != nil {
		return NilThreadRef, &StoreError{Op: "put", Err: err}
	}

	if stored != created {
		log.Warn("lost race to store thread, abandoning created thread", "created", created, "thread", stored)
	} else {
		log.Info("created new thread", "thread", created)
	}
	return stored, nil
}
