package kafka

import (
	"encoding/json"
	"time"
)

// RecordMessage is the upstream CRM record payload consumed from the input
// topic. Data carries the raw field map for the staged record.
type RecordMessage struct {
	TenantID     string         `json:"tenant_id"`
	EntityType   string         `json:"entity_type"`
	SourceSystem string         `json:"source_system"`
	SourceID     string         `json:"source_id"`
	Data         map[string]any `json:"data"`
}

// IncomingMessage wraps a raw Kafka message with parsed headers
type IncomingMessage struct {
	Key       string
	Value     []byte
	Headers   map[string]string
	Partition int
	Offset    int64
	Timestamp time.Time
	Topic     string

	// Parsed content
	RecordMessage *RecordMessage
}

// ParseRecordMessage parses the message value as a CRM record payload
func (m *IncomingMessage) ParseRecordMessage() error {
	var msg RecordMessage
	if err := json.Unmarshal(m.Value, &msg); err != nil {
		return err
	}
	m.RecordMessage = &msg
	return nil
}

// GetTenantID returns the tenant ID from the payload, falling back to the
// message header
func (m *IncomingMessage) GetTenantID() string {
	if m.RecordMessage != nil && m.RecordMessage.TenantID != "" {
		return m.RecordMessage.TenantID
	}
	return m.Headers["tenant_id"]
}

// GetEntityType returns the entity type from the payload, falling back to
// the message header
func (m *IncomingMessage) GetEntityType() string {
	if m.RecordMessage != nil && m.RecordMessage.EntityType != "" {
		return m.RecordMessage.EntityType
	}
	return m.Headers["entity_type"]
}

// GetSourceID returns a unique upstream identifier for the record. Falls
// back to the message key when the payload carries none.
func (m *IncomingMessage) GetSourceID() string {
	if m.RecordMessage != nil {
		if m.RecordMessage.SourceID != "" {
			return m.RecordMessage.SourceID
		}
		if m.RecordMessage.Data != nil {
			if v, ok := m.RecordMessage.Data["source_id"]; ok {
				if s, ok := v.(string); ok && s != "" {
					return s
				}
			}
		}
	}
	return m.Key
}

// GetSourceSystem returns the originating system name
func (m *IncomingMessage) GetSourceSystem() string {
	if m.RecordMessage != nil && m.RecordMessage.SourceSystem != "" {
		return m.RecordMessage.SourceSystem
	}
	return m.Headers["source_system"]
}

// GetData returns the record payload as JSON
func (m *IncomingMessage) GetData() json.RawMessage {
	if m.RecordMessage != nil && m.RecordMessage.Data != nil {
		b, _ := json.Marshal(m.RecordMessage.Data)
		return b
	}
	return m.Value
}
