package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Orchestrator takes utterances to the assistant and brings back its replies
type Orchestrator struct {
	threads   *Threads
	assistant Assistant

	pollInterval time.Duration
	maxWait      time.Duration
	personalize  bool
}

// NewOrchestrator creates a new orchestrator which checks on runs every pollInterval and gives up on
// them after maxWait
func NewOrchestrator(threads *Threads, assistant Assistant, pollInterval, maxWait time.Duration, personalize bool) *Orchestrator {
	return &Orchestrator{
		threads:      threads,
		assistant:    assistant,
		pollInterval: pollInterval,
		maxWait:      maxWait,
		personalize:  personalize,
	}
}

// Handle adds the given text to the contact's thread, runs the assistant on it and returns the
// reply. Callers must make sure that only one call per contact is in progress at a time.
func (o *Orchestrator) Handle(ctx context.Context, contact ContactID, name string, text string) (string, error) {
	log := slog.With("comp", "orchestrator", "contact", contact)

	thread, err := o.threads.ResolveOrCreate(ctx, contact)
	if err != nil {
		return "", err
	}

	log = log.With("thread", thread)

	if err := o.assistant.AddMessage(ctx, thread, text); err != nil {
		return "", &AssistantError{Err: err}
	}

	instructions := ""
	if o.personalize && name != "" {
		instructions = fmt.Sprintf("You are having a conversation with %s", name)
	}

	start := time.Now()

	run, err := o.assistant.CreateRun(ctx, thread, instructions)
	if err != nil {
		return "", &AssistantError{Err: err}
	}

	run, err = o.waitForRun(ctx, run)
	if err != nil {
		log.Error("assistant run did not complete", "run", run.ID, "status", run.Status, "elapsed", time.Since(start), "error", err)
		return "", err
	}

	reply, err := o.assistant.LatestReply(ctx, thread, run.ID)
	if err != nil {
		return "", &AssistantError{Status: run.Status, Err: err}
	}
	if strings.TrimSpace(reply) == "" {
		return "", &AssistantError{Status: run.Status, Err: errors.New("run completed without a reply")}
	}

	log.Info("assistant replied", "run", run.ID, "elapsed", time.Since(start))
	return reply, nil
}

// polls the given run until it reaches a terminal status, returning an error unless that is completed
func (o *Orchestrator) waitForRun(ctx context.Context, run *Run) (*Run, error) {
	giveUp := time.NewTimer(o.maxWait)
	defer giveUp.Stop()

	ticker := time.NewTicker(o.pollInterval)
	defer ticker.Stop()

	for !run.Status.IsTerminal() {
		select {
		case <-ctx.Done():
			o.cancelRun(run)
			return run, &AssistantError{Status: run.Status, Timeout: true, Err: ctx.Err()}
		case <-giveUp.C:
			o.cancelRun(run)
			return run, &AssistantError{Status: run.Status, Timeout: true}
		case <-ticker.C:
		}

		updated, err := o.assistant.GetRun(ctx, run.Thread, run.ID)
		if err != nil {
			if ctx.Err() != nil {
				o.cancelRun(run)
				return run, &AssistantError{Status: run.Status, Timeout: true, Err: ctx.Err()}
			}
			return run, &AssistantError{Status: run.Status, Err: err}
		}
		run = updated
	}

	if run.Status != RunStatusCompleted {
		return run, &AssistantError{Status: run.Status}
	}
	return run, nil
}

// tries to cancel a run we've given up on so it doesn't keep the thread locked on the assistant side
func (o *Orchestrator) cancelRun(run *Run) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := o.assistant.CancelRun(ctx, run.Thread, run.ID); err != nil {
		slog.Warn("unable to cancel abandoned run", "comp", "orchestrator", "thread", run.Thread, "run", run.ID, "error", err)
	}
}
