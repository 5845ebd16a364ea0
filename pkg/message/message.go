// Package message defines the narrow message type that flows through
// workflows: an opaque payload plus string metadata.
package message

import (
	"maps"
	"time"

	"github.com/google/uuid"
)

// Well-known metadata keys.
const (
	// WorkflowIDKey carries the id of the workflow that owns a message.
	// The failed-message retrier uses it to route resubmissions.
	WorkflowIDKey = "flowhost.workflow-id"

	// StopProcessingKey, when set to StopProcessingValue, tells a service
	// list to skip the remaining services.
	StopProcessingKey   = "flowhost.stop-processing"
	StopProcessingValue = "true"
)

// Message is a payload with metadata. A Message is not safe for concurrent
// mutation; use Clone before handing it to another goroutine that writes.
type Message struct {
	ID        string
	Payload   []byte
	Metadata  map[string]string
	CreatedAt time.Time
}

// New creates a message with a fresh id.
func New(payload []byte) *Message {
	return &Message{
		ID:        uuid.NewString(),
		Payload:   payload,
		Metadata:  make(map[string]string),
		CreatedAt: time.Now(),
	}
}

// Get returns the metadata value for key, or "" if unset.
func (m *Message) Get(key string) string {
	if m.Metadata == nil {
		return ""
	}
	return m.Metadata[key]
}

// Has reports whether key is set.
func (m *Message) Has(key string) bool {
	_, ok := m.Metadata[key]
	return ok
}

// Set stores a metadata value.
func (m *Message) Set(key, value string) {
	if m.Metadata == nil {
		m.Metadata = make(map[string]string)
	}
	m.Metadata[key] = value
}

// Delete removes a metadata value.
func (m *Message) Delete(key string) {
	delete(m.Metadata, key)
}

// WorkflowID returns the owning workflow id, if any.
func (m *Message) WorkflowID() string {
	return m.Get(WorkflowIDKey)
}

// StopProcessing reports whether the stop sentinel is set.
func (m *Message) StopProcessing() bool {
	return m.Get(StopProcessingKey) == StopProcessingValue
}

// MarkStopProcessing sets the stop sentinel.
func (m *Message) MarkStopProcessing() {
	m.Set(StopProcessingKey, StopProcessingValue)
}

// Clone returns a deep copy. The id is preserved.
func (m *Message) Clone() *Message {
	c := &Message{
		ID:        m.ID,
		Metadata:  maps.Clone(m.Metadata),
		CreatedAt: m.CreatedAt,
	}
	if c.Metadata == nil {
		c.Metadata = make(map[string]string)
	}
	if m.Payload != nil {
		c.Payload = append([]byte(nil), m.Payload...)
	}
	return c
}
