package relay

import (
	"context"
	"sync"
)

// RemoteLocker provides mutual exclusion on a contact across processes
type RemoteLocker interface {
	Lock(ctx context.Context, contact ContactID) (string, error)
	Unlock(contact ContactID, token string) error
}

// ContactLocker serializes work for each contact. Tickets for a contact are granted strictly in the
// order they were taken, and contacts never wait on each other.
type ContactLocker struct {
	remote RemoteLocker

	mu     sync.Mutex
	queues map[ContactID]*contactQueue
}

type contactQueue struct {
	waiting []*Ticket
}

// NewContactLocker creates a new contact locker, remote can be nil if we are the only process
func NewContactLocker(remote RemoteLocker) *ContactLocker {
	return &ContactLocker{remote: remote, queues: make(map[ContactID]*contactQueue)}
}

// Ticket is a place in the queue for a contact
type Ticket struct {
	locker  *ContactLocker
	contact ContactID
	ready   chan struct{}

	remoteToken string
	releaseOnce sync.Once
}

// Acquire takes a ticket for the given contact without blocking. The ticket must then be waited on.
func (l *ContactLocker) Acquire(contact ContactID) *Ticket {
	l.mu.Lock()
	defer l.mu.Unlock()

	t := &Ticket{locker: l, contact: contact, ready: make(chan struct{})}

	q, found := l.queues[contact]
	if !found {
		// nobody holds this contact, ticket is granted immediately
		l.queues[contact] = &contactQueue{}
		close(t.ready)
	} else {
		q.waiting = append(q.waiting, t)
	}
	return t
}

// Wait blocks until this ticket holds its contact or the context is done. If an error is returned
// the ticket doesn't hold the contact and must not be released.
func (t *Ticket) Wait(ctx context.Context) error {
	select {
	case <-t.ready:
	case <-ctx.Done():
		if !t.locker.abandon(t) {
			// we were granted the contact as we gave up so pass it on
			t.locker.handover(t.contact)
		}
		return ctx.Err()
	}

	if t.locker.remote != nil {
		token, err := t.locker.remote.Lock(ctx, t.contact)
		if err != nil {
			t.locker.handover(t.contact)
			return err
		}
		t.remoteToken = token
	}
	return nil
}

// Release gives up the contact, granting it to the next ticket in line
func (t *Ticket) Release() error {
	var err error
	t.releaseOnce.Do(func() {
		if t.locker.remote != nil && t.remoteToken != "" {
			err = t.locker.remote.Unlock(t.contact, t.remoteToken)
		}
		t.locker.handover(t.contact)
	})
	return err
}

// Contact returns the contact this ticket is for
func (t *Ticket) Contact() ContactID { return t.contact }

func (l *ContactLocker) handover(contact ContactID) {
	l.mu.Lock()
	defer l.mu.Unlock()

	q, found := l.queues[contact]
	if !found {
		return
	}

	if len(q.waiting) == 0 {
		delete(l.queues, contact)
		return
	}

	next := q.waiting[0]
	q.waiting = q.waiting[1:]
	close(next.ready)
}

// removes a ticket which is still waiting, returning false if it had already been granted
func (l *ContactLocker) abandon(t *Ticket) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	q, found := l.queues[t.contact]
	if !found {
		return false
	}

	for i, w := range q.waiting {
		if w == t {
			q.waiting = append(q.waiting[:i], q.waiting[i+1:]...)
			return true
		}
	}
	return false
}

// number of tickets waiting behind the holder of the given contact
func (l *ContactLocker) queued(contact ContactID) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	if q, found := l.queues[contact]; found {
		return len(q.waiting)
	}
	return 0
}
