package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Relay takes inbound events from contacts through to replies delivered back to them
type Relay struct {
	normalizer   *Normalizer
	orchestrator *Orchestrator
	messenger    Messenger
	locker       *ContactLocker
	timeout      time.Duration

	slots     chan struct{}
	waitGroup sync.WaitGroup
}

// NewRelay creates a new relay. Each event gets at most timeout to be handled, and at most
// maxConcurrent events are handled at once.
func NewRelay(normalizer *Normalizer, orchestrator *Orchestrator, messenger Messenger, locker *ContactLocker, timeout time.Duration, maxConcurrent int) *Relay {
	return &Relay{
		normalizer:   normalizer,
		orchestrator: orchestrator,
		messenger:    messenger,
		locker:       locker,
		timeout:      timeout,
		slots:        make(chan struct{}, maxConcurrent),
	}
}

// Handle handles the given event, waiting for any earlier events from the same contact to be
// handled first, and returns the outcome of delivering the reply
func (r *Relay) Handle(ctx context.Context, event *Event) (DeliveryOutcome, error) {
	if err := event.Validate(); err != nil {
		return "", err
	}

	return r.handle(ctx, r.locker.Acquire(event.ContactID), event)
}

// Submit queues the given event behind any earlier events from the same contact and handles it in
// the background. Events submitted for a contact are handled in the order they were submitted.
func (r *Relay) Submit(event *Event) error {
	if err := event.Validate(); err != nil {
		return err
	}

	ticket := r.locker.Acquire(event.ContactID)

	r.waitGroup.Add(1)
	go func() {
		defer r.waitGroup.Done()

		log := slog.With("comp", "relay", "contact", event.ContactID, "msg_id", event.ID)
		start := time.Now()

		outcome, err := r.handle(context.Background(), ticket, event)
		if err != nil {
			log.Error("error handling event", "type", event.Type, "outcome", outcome, "elapsed", time.Since(start), "error", err)
		} else {
			log.Info("event handled", "type", event.Type, "outcome", outcome, "elapsed", time.Since(start))
		}
	}()
	return nil
}

// Stop waits for all submitted events to be handled
func (r *Relay) Stop() {
	r.waitGroup.Wait()
}

func (r *Relay) handle(ctx context.Context, ticket *Ticket, event *Event) (DeliveryOutcome, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if err := ticket.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return "", &AssistantError{Timeout: true, Err: fmt.Errorf("waiting for turn on contact: %w", err)}
		}
		return "", fmt.Errorf("error waiting for turn on contact: %w", err)
	}
	defer func() {
		if err := ticket.Release(); err != nil {
			slog.Error("error releasing contact lock", "comp", "relay", "contact", ticket.Contact(), "error", err)
		}
	}()

	select {
	case r.slots <- struct{}{}:
		defer func() { <-r.slots }()
	case <-ctx.Done():
		return "", &AssistantError{Timeout: true, Err: fmt.Errorf("waiting for free slot: %w", ctx.Err())}
	}

	utterance, err := r.normalizer.Normalize(ctx, event)
	if err != nil {
		return "", err
	}

	reply, err := r.orchestrator.Handle(ctx, utterance.ContactID, utterance.ContactName, utterance.Text)
	if err != nil {
		return "", err
	}

	formatted := FormatForDelivery(reply)
	if formatted == "" {
		return "", &AssistantError{Status: RunStatusCompleted, Err: errors.New("reply is empty after formatting")}
	}

	return r.messenger.Deliver(ctx, event.ContactID, formatted)
}
