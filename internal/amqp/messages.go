package amqp

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventType names what happened to a ledger record.
type EventType string

const (
	EventTransactionRecorded EventType = "transaction.recorded"
	EventOrderPlaced         EventType = "order.placed"
	EventOrderStatusChanged  EventType = "order.status_changed"
)

// LedgerEventMessage is a lightweight notification about a ledger record.
// It carries only the id; the worker loads the record from the store.
type LedgerEventMessage struct {
	Type      EventType `json:"type"`
	ID        string    `json:"id"`
	Status    string    `json:"status,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewLedgerEventMessage creates a message stamped with the current time.
func NewLedgerEventMessage(typ EventType, id, status string) *LedgerEventMessage {
	return &LedgerEventMessage{
		Type:      typ,
		ID:        id,
		Status:    status,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *LedgerEventMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// LedgerEventMessageFromJSON decodes a message and checks it names a record.
func LedgerEventMessageFromJSON(data []byte) (*LedgerEventMessage, error) {
	var msg LedgerEventMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	switch msg.Type {
	case EventTransactionRecorded, EventOrderPlaced, EventOrderStatusChanged:
	default:
		return nil, fmt.Errorf("unknown event type %q", msg.Type)
	}
	if msg.ID == "" {
		return nil, fmt.Errorf("event %s without id", msg.Type)
	}
	return &msg, nil
}
