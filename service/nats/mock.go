package nats

import (
	"context"
	"sync"

	"github.com/brojonat/txexplorer/service/explorer"
)

// MockPublisher is a mock implementation of Publisher for testing.
type MockPublisher struct {
	mu                sync.RWMutex
	published         []*FeedMessage
	publishError      error
	publishBatchError error
	closed            bool
}

// NewMockPublisher creates a new mock publisher for testing.
func NewMockPublisher() *MockPublisher {
	return &MockPublisher{
		published: make([]*FeedMessage, 0),
	}
}

// PublishUpdate records the message and returns any configured error.
func (m *MockPublisher) PublishUpdate(ctx context.Context, msg *FeedMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.publishError != nil {
		return m.publishError
	}

	m.published = append(m.published, msg)
	return nil
}

// PublishBatch records the messages and returns any configured error.
func (m *MockPublisher) PublishBatch(ctx context.Context, msgs []*FeedMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.publishBatchError != nil {
		return m.publishBatchError
	}

	m.published = append(m.published, msgs...)
	return nil
}

// Close marks the publisher as closed.
func (m *MockPublisher) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// GetPublished returns all published messages.
func (m *MockPublisher) GetPublished() []*FeedMessage {
	m.mu.RLock()
	defer m.mu.RUnlock()

	// Return a copy to avoid race conditions
	msgs := make([]*FeedMessage, len(m.published))
	copy(msgs, m.published)
	return msgs
}

// GetPublishedCount returns the number of published messages.
func (m *MockPublisher) GetPublishedCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.published)
}

// GetPublishedForNetwork returns messages published for one network.
func (m *MockPublisher) GetPublishedForNetwork(network explorer.Network) []*FeedMessage {
	m.mu.RLock()
	defer m.mu.RUnlock()

	msgs := make([]*FeedMessage, 0)
	for _, msg := range m.published {
		if msg.Network == network {
			msgs = append(msgs, msg)
		}
	}
	return msgs
}

// SetPublishError configures the mock to return an error on PublishUpdate.
func (m *MockPublisher) SetPublishError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.publishError = err
}

// SetPublishBatchError configures the mock to return an error on PublishBatch.
func (m *MockPublisher) SetPublishBatchError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.publishBatchError = err
}

// Reset clears all published messages and errors.
func (m *MockPublisher) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = make([]*FeedMessage, 0)
	m.publishError = nil
	m.publishBatchError = nil
	m.closed = false
}

// IsClosed returns whether the publisher has been closed.
func (m *MockPublisher) IsClosed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}
