package whatsapp

import (
	"encoding/json"
	"log/slog"
	"strconv"

	"github.com/nyaruka/gocommon/urns"
	"github.com/zowobo/relay"
)

const businessAccountObject = "whatsapp_business_account"

// Parser turns WhatsApp Cloud API webhook notifications into relay events
type Parser struct{}

// NewParser creates a new notifications parser
func NewParser() *Parser {
	return &Parser{}
}

// ParseEvents returns an event for each message in the given notifications body. Messages of types we
// can't handle are still returned so that they can be rejected individually. Bodies which don't
// contain any messages, such as status updates, are rejected as a whole.
func (p *Parser) ParseEvents(body []byte) ([]*relay.Event, error) {
	payload := &Notifications{}
	if err := json.Unmarshal(body, payload); err != nil {
		return nil, relay.NewValidationError(relay.ValidationNotMessage, "unable to parse request JSON: %s", err)
	}

	if payload.Object != businessAccountObject {
		return nil, relay.NewValidationError(relay.ValidationNotMessage, "object expected '%s', found '%s'", businessAccountObject, payload.Object)
	}
	if len(payload.Entry) == 0 {
		return nil, relay.NewValidationError(relay.ValidationNotMessage, "no entries")
	}

	events := make([]*relay.Event, 0, 1)
	seenMsgIDs := make(map[string]bool, 2)
	contactNames := make(map[string]string)
	statuses := 0

	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			for _, contact := range change.Value.Contacts {
				contactNames[contact.WaID] = contact.Profile.Name
			}

			for _, msg := range change.Value.Messages {
				if seenMsgIDs[msg.ID] {
					continue
				}

				urn, err := urns.New(urns.WhatsApp, msg.From)
				if err != nil {
					return nil, relay.NewValidationError(relay.ValidationNotMessage, "invalid whatsapp id '%s'", msg.From)
				}
				contact := relay.ContactID(urn.Path())

				// every sender should have an entry in the contacts block
				name, found := contactNames[msg.From]
				if !found {
					return nil, relay.NewValidationError(relay.ValidationNotMessage, "missing contact block")
				}

				for _, msgError := range msg.Errors {
					slog.Warn("message arrived with error", "comp", "whatsapp", "msg_id", msg.ID, "code", strconv.Itoa(msgError.Code), "title", msgError.Title)
				}

				events = append(events, newEvent(msg, contact, name))
				seenMsgIDs[msg.ID] = true
			}

			statuses += len(change.Value.Statuses)

			for _, chError := range change.Value.Errors {
				slog.Warn("notification contained error", "comp", "whatsapp", "code", strconv.Itoa(chError.Code), "title", chError.Title)
			}
		}
	}

	if len(events) == 0 {
		if statuses > 0 {
			return nil, relay.NewValidationError(relay.ValidationNotMessage, "ignoring %d status updates", statuses)
		}
		return nil, relay.NewValidationError(relay.ValidationNotMessage, "no messages")
	}

	return events, nil
}

func newEvent(msg WAMessage, contact relay.ContactID, name string) *relay.Event {
	switch {
	case msg.Type == "text":
		return relay.NewTextEvent(msg.ID, contact, name, msg.Text.Body)
	case msg.Voice != nil:
		// voice notes may carry a direct file handle rather than an id to resolve
		media := &relay.Media{ID: msg.Voice.ID, MimeType: msg.Voice.Mimetype}
		if media.ID == "" {
			media.URL = msg.Voice.File
		}
		return relay.NewMediaEvent(msg.ID, contact, name, relay.EventTypeVoice, media)
	case msg.Type == "audio" && msg.Audio != nil:
		return relay.NewMediaEvent(msg.ID, contact, name, relay.EventTypeAudio, &relay.Media{ID: msg.Audio.ID, MimeType: msg.Audio.Mimetype})
	case msg.Type == "audio" || msg.Type == "voice":
		return relay.NewMediaEvent(msg.ID, contact, name, relay.EventType(msg.Type), nil)
	}

	return &relay.Event{ID: msg.ID, ContactID: contact, ContactName: name, Type: relay.EventType(msg.Type)}
}

var _ relay.EventParser = (*Parser)(nil)
