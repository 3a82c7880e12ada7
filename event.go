package relay

import (
	"strings"
)

// ContactID is the platform assigned identifier of the person we are talking to, e.g. a WhatsApp wa_id
type ContactID string

// ThreadRef is a reference to a conversation thread held by the assistant
type ThreadRef string

// NilThreadRef is our nil value for thread references
const NilThreadRef = ThreadRef("")

// EventType is the type of an inbound message
type EventType string

const (
	EventTypeText  EventType = "text"
	EventTypeVoice EventType = "voice"
	EventTypeAudio EventType = "audio"
)

// Media is the media reference carried by a voice or audio message. Either ID is set, and needs to
// be resolved into a URL, or URL is set directly.
type Media struct {
	ID       string `json:"id,omitempty"`
	URL      string `json:"url,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
}

// Event is a single inbound message from a contact
type Event struct {
	ID          string    `json:"id"`
	ContactID   ContactID `json:"contact_id"`
	ContactName string    `json:"contact_name"`
	Type        EventType `json:"type"`
	Text        string    `json:"text,omitempty"`
	Media       *Media    `json:"media,omitempty"`
}

// NewTextEvent creates a new text event
func NewTextEvent(id string, contact ContactID, name string, text string) *Event {
	return &Event{ID: id, ContactID: contact, ContactName: name, Type: EventTypeText, Text: text}
}

// NewMediaEvent creates a new voice or audio event
func NewMediaEvent(id string, contact ContactID, name string, typ EventType, media *Media) *Event {
	return &Event{ID: id, ContactID: contact, ContactName: name, Type: typ, Media: media}
}

// Validate checks that this is an event we know how to normalize
func (e *Event) Validate() error {
	if e.ContactID == "" {
		return NewValidationError(ValidationNotMessage, "missing contact")
	}

	switch e.Type {
	case EventTypeText:
		// text is passed on as is but there must be something to answer
		if strings.TrimSpace(e.Text) == "" {
			return NewValidationError(ValidationUnsupportedType, "empty text body")
		}
	case EventTypeVoice, EventTypeAudio:
		if e.Media == nil || (e.Media.ID == "" && e.Media.URL == "") {
			return NewValidationError(ValidationUnsupportedType, "%s message has no media reference", e.Type)
		}
	default:
		return NewValidationError(ValidationUnsupportedType, "unsupported message type '%s'", e.Type)
	}
	return nil
}

// Utterance is the plain text of an inbound message, regardless of how it arrived
type Utterance struct {
	ContactID   ContactID
	ContactName string
	Text        string
}

// RunStatus is the status of an assistant run
type RunStatus string

const (
	RunStatusQueued         RunStatus = "queued"
	RunStatusInProgress     RunStatus = "in_progress"
	RunStatusRequiresAction RunStatus = "requires_action"
	RunStatusCancelling     RunStatus = "cancelling"
	RunStatusCancelled      RunStatus = "cancelled"
	RunStatusFailed         RunStatus = "failed"
	RunStatusCompleted      RunStatus = "completed"
	RunStatusIncomplete     RunStatus = "incomplete"
	RunStatusExpired        RunStatus = "expired"
)

// IsTerminal returns whether no further progress will be made on a run in this status. We never
// submit tool outputs so requires_action is as good as terminal for us.
func (s RunStatus) IsTerminal() bool {
	switch s {
	case RunStatusCompleted, RunStatusFailed, RunStatusCancelled, RunStatusExpired, RunStatusIncomplete, RunStatusRequiresAction:
		return true
	}
	return false
}

// Run is a single execution of the assistant against a thread
type Run struct {
	ID     string
	Thread ThreadRef
	Status RunStatus
}

// DeliveryOutcome is the result of trying to deliver a reply
type DeliveryOutcome string

const (
	DeliveryDelivered       DeliveryOutcome = "delivered"
	DeliveryTimedOut        DeliveryOutcome = "timed_out"
	DeliveryTransportFailed DeliveryOutcome = "transport_failed"
)
