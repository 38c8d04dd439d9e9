package nats

import (
	"context"
	"sync"
)

// MockPublisher is an in-memory Publisher and Subscriber for testing.
// Published events are recorded and fanned out to live subscribers.
type MockPublisher struct {
	mu              sync.RWMutex
	publishedEvents []*TipEvent
	subscribers     map[int]*mockSubscription
	nextID          int
	publishError    error
	closed          bool
}

type mockSubscription struct {
	address string
	events  chan *TipEvent
}

var _ Publisher = (*MockPublisher)(nil)
var _ Subscriber = (*MockPublisher)(nil)

// NewMockPublisher creates a new mock publisher for testing.
func NewMockPublisher() *MockPublisher {
	return &MockPublisher{
		publishedEvents: make([]*TipEvent, 0),
		subscribers:     make(map[int]*mockSubscription),
	}
}

// PublishTipEvent records the event and returns any configured error.
func (m *MockPublisher) PublishTipEvent(ctx context.Context, event *TipEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.publishError != nil {
		return m.publishError
	}

	m.publishedEvents = append(m.publishedEvents, event)
	for _, sub := range m.subscribers {
		if sub.address == "" || sub.address == event.Recipient {
			select {
			case sub.events <- event:
			default:
			}
		}
	}
	return nil
}

// Subscribe delivers events published after the call until ctx is done.
func (m *MockPublisher) Subscribe(ctx context.Context, address string, fn func(*TipEvent)) error {
	sub := &mockSubscription{address: address, events: make(chan *TipEvent, 16)}
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.subscribers[id] = sub
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		delete(m.subscribers, id)
		m.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event := <-sub.events:
			fn(event)
		}
	}
}

// SubscriberCount returns the number of live subscriptions.
func (m *MockPublisher) SubscriberCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.subscribers)
}

// Close marks the publisher as closed.
func (m *MockPublisher) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// GetPublishedEvents returns all published events (for testing).
func (m *MockPublisher) GetPublishedEvents() []*TipEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()

	// Return a copy to avoid race conditions
	events := make([]*TipEvent, len(m.publishedEvents))
	copy(events, m.publishedEvents)
	return events
}

// GetPublishedEventCount returns the number of published events.
func (m *MockPublisher) GetPublishedEventCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.publishedEvents)
}

// GetPublishedEventsForRecipient returns events published for a specific recipient.
func (m *MockPublisher) GetPublishedEventsForRecipient(address string) []*TipEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()

	events := make([]*TipEvent, 0)
	for _, event := range m.publishedEvents {
		if event.Recipient == address {
			events = append(events, event)
		}
	}
	return events
}

// SetPublishError configures the mock to return an error on PublishTipEvent.
func (m *MockPublisher) SetPublishError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.publishError = err
}

// Reset clears all published events and errors.
func (m *MockPublisher) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.publishedEvents = make([]*TipEvent, 0)
	m.publishError = nil
	m.closed = false
}

// IsClosed returns whether the publisher has been closed.
func (m *MockPublisher) IsClosed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}
