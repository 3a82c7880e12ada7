package test

import (
	"context"
	"sync"

	"github.com/zowobo/relay"
)

// Delivery is a reply handed to a MockMessenger
type Delivery struct {
	Recipient relay.ContactID
	Text      string
}

// MockMessenger records replies instead of sending them
type MockMessenger struct {
	Outcome relay.DeliveryOutcome
	Err     error

	mutex      sync.Mutex
	deliveries []Delivery
}

// NewMockMessenger creates a new messenger which reports every reply as delivered
func NewMockMessenger() *MockMessenger {
	return &MockMessenger{Outcome: relay.DeliveryDelivered}
}

func (m *MockMessenger) Deliver(ctx context.Context, recipient relay.ContactID, text string) (relay.DeliveryOutcome, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.deliveries = append(m.deliveries, Delivery{Recipient: recipient, Text: text})
	return m.Outcome, m.Err
}

// Deliveries returns the replies delivered so far, in order
func (m *MockMessenger) Deliveries() []Delivery {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return append([]Delivery(nil), m.deliveries...)
}

var _ relay.Messenger = (*MockMessenger)(nil)

