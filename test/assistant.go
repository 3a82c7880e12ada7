package test

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/zowobo/relay"
)

// MockAssistant is an in-memory assistant which records every call made to it
type MockAssistant struct {
	// statuses returned by successive GetRun calls for each run, the last one repeats
	RunStatuses []relay.RunStatus

	// generates the reply to a message, defaults to echoing it back
	ReplyFunc func(text string) string

	// how long creating a thread takes
	CreateThreadDelay time.Duration

	CreateThreadErr error
	AddMessageErr   error
	CreateRunErr    error
	GetRunErr       error

	mutex      sync.Mutex
	calls      []string
	threads    int
	messages   map[relay.ThreadRef][]string
	runs       map[string]*mockRun
	cancelled  []string
	lastRunNum int
}

type mockRun struct {
	run   relay.Run
	polls int
	reply string
}

// NewMockAssistant creates a new mock assistant whose runs complete on the first poll
func NewMockAssistant() *MockAssistant {
	return &MockAssistant{
		RunStatuses: []relay.RunStatus{relay.RunStatusCompleted},
		ReplyFunc:   func(text string) string { return fmt.Sprintf("You said: %s", text) },
		messages:    make(map[relay.ThreadRef][]string),
		runs:        make(map[string]*mockRun),
	}
}

func (a *MockAssistant) record(call string, args ...any) {
	a.calls = append(a.calls, fmt.Sprintf(call, args...))
}

func (a *MockAssistant) CreateThread(ctx context.Context) (relay.ThreadRef, error) {
	if a.CreateThreadDelay > 0 {
		time.Sleep(a.CreateThreadDelay)
	}

	a.mutex.Lock()
	defer a.mutex.Unlock()

	if a.CreateThreadErr != nil {
		return relay.NilThreadRef, a.CreateThreadErr
	}

	a.threads++
	thread := relay.ThreadRef(fmt.Sprintf("thread_%d", a.threads))
	a.record("create_thread: %s", thread)
	return thread, nil
}

func (a *MockAssistant) AddMessage(ctx context.Context, thread relay.ThreadRef, text string) error {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	if a.AddMessageErr != nil {
		return a.AddMessageErr
	}

	a.messages[thread] = append(a.messages[thread], text)
	a.record("add_message: %s %s", thread, text)
	return nil
}

func (a *MockAssistant) CreateRun(ctx context.Context, thread relay.ThreadRef, instructions string) (*relay.Run, error) {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	if a.CreateRunErr != nil {
		return nil, a.CreateRunErr
	}

	a.lastRunNum++
	runID := fmt.Sprintf("run_%d", a.lastRunNum)

	msgs := a.messages[thread]
	reply := ""
	if len(msgs) > 0 {
		reply = a.ReplyFunc(msgs[len(msgs)-1])
	}

	r := &mockRun{run: relay.Run{ID: runID, Thread: thread, Status: relay.RunStatusQueued}, reply: reply}
	a.runs[runID] = r

	if instructions != "" {
		a.record("create_run: %s %s (%s)", thread, runID, instructions)
	} else {
		a.record("create_run: %s %s", thread, runID)
	}

	run := r.run
	return &run, nil
}

func (a *MockAssistant) GetRun(ctx context.Context, thread relay.ThreadRef, runID string) (*relay.Run, error) {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	if a.GetRunErr != nil {
		return nil, a.GetRunErr
	}

	r, found := a.runs[runID]
	if !found {
		return nil, fmt.Errorf("no such run: %s", runID)
	}

	if len(a.RunStatuses) > 0 {
		i := min(r.polls, len(a.RunStatuses)-1)
		r.run.Status = a.RunStatuses[i]
	}
	r.polls++

	run := r.run
	return &run, nil
}

func (a *MockAssistant) CancelRun(ctx context.Context, thread relay.ThreadRef, runID string) error {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	a.cancelled = append(a.cancelled, runID)
	a.record("cancel_run: %s %s", thread, runID)
	return nil
}

func (a *MockAssistant) LatestReply(ctx context.Context, thread relay.ThreadRef, runID string) (string, error) {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	r, found := a.runs[runID]
	if !found {
		return "", fmt.Errorf("no such run: %s", runID)
	}
	return r.reply, nil
}

// Calls returns a description of each call made so far, in order
func (a *MockAssistant) Calls() []string {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	return append([]string(nil), a.calls...)
}

// ThreadsCreated returns the number of threads created so far
func (a *MockAssistant) ThreadsCreated() int {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	return a.threads
}

// Messages returns the messages added to the given thread, in order
func (a *MockAssistant) Messages(thread relay.ThreadRef) []string {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	return append([]string(nil), a.messages[thread]...)
}

// CancelledRuns returns the ids of runs which were cancelled
func (a *MockAssistant) CancelledRuns() []string {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	return append([]string(nil), a.cancelled...)
}

var _ relay.Assistant = (*MockAssistant)(nil)
