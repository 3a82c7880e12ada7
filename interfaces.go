package relay

import (
	"context"
)

// ThreadStore is the durable mapping of contacts to assistant threads. Entries are only ever created,
// never updated or deleted.
type ThreadStore interface {
	// Get returns the thread stored for the given contact, if any
	Get(ctx context.Context, contact ContactID) (ThreadRef, bool, error)

	// PutIfAbsent stores the thread for the given contact unless one is already stored, returning
	// whichever thread is stored after the call
	PutIfAbsent(ctx context.Context, contact ContactID, thread ThreadRef) (ThreadRef, error)

	Ping(ctx context.Context) error
	Close() error
}

// Assistant is the hosted conversational assistant
type Assistant interface {
	CreateThread(ctx context.Context) (ThreadRef, error)
	AddMessage(ctx context.Context, thread ThreadRef, text string) error
	CreateRun(ctx context.Context, thread ThreadRef, instructions string) (*Run, error)
	GetRun(ctx context.Context, thread ThreadRef, runID string) (*Run, error)
	CancelRun(ctx context.Context, thread ThreadRef, runID string) error

	// LatestReply returns the text of the newest assistant message added to the thread by the given run
	LatestReply(ctx context.Context, thread ThreadRef, runID string) (string, error)
}

// MediaRef is a resolved, downloadable media reference
type MediaRef struct {
	URL      string
	MimeType string
}

// MediaSource resolves and downloads media attached to inbound messages
type MediaSource interface {
	ResolveMedia(ctx context.Context, mediaID string) (*MediaRef, error)
	FetchMedia(ctx context.Context, ref *MediaRef, maxBytes int) ([]byte, error)
}

// Converter converts compressed audio into a canonical WAV file, returning the path of the new file
type Converter interface {
	Convert(ctx context.Context, inputPath string) (string, error)
}

// Transcriber turns speech in a WAV file into text
type Transcriber interface {
	Transcribe(ctx context.Context, wavPath string) (string, error)
}

// Messenger delivers text replies to contacts
type Messenger interface {
	Deliver(ctx context.Context, recipient ContactID, text string) (DeliveryOutcome, error)
}

// EventParser turns a webhook request body into inbound events
type EventParser interface {
	ParseEvents(body []byte) ([]*Event, error)
}
