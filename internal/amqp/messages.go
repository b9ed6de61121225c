package amqp

import (
	"encoding/json"
	"time"
)

// EventResolveMessage asks the worker to (re)compute the cost decomposition
// of a usage event. It carries only identifiers and a version, the worker
// fetches the event and its asset from the database.
type EventResolveMessage struct {
	EventID   int64     `json:"event_id"`
	AssetID   int64     `json:"asset_id"`
	Version   int64     `json:"version"`
	Timestamp time.Time `json:"timestamp"`
}

// NewEventResolveMessage creates a resolve message for the given event.
func NewEventResolveMessage(eventID, assetID, version int64) *EventResolveMessage {
	return &EventResolveMessage{
		EventID:   eventID,
		AssetID:   assetID,
		Version:   version,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *EventResolveMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// EventResolveMessageFromJSON creates a message from JSON bytes
func EventResolveMessageFromJSON(data []byte) (*EventResolveMessage, error) {
	var msg EventResolveMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
