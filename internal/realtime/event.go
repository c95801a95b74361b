package realtime

import (
	"encoding/json"
	"time"
)

// Event is the envelope for every socket frame in both directions.
type Event struct {
	Type           string          `json:"type"`
	Ref            string          `json:"ref,omitempty"`
	ConversationID string          `json:"conversation_id,omitempty"`
	Payload        json.RawMessage `json:"payload,omitempty"`
	Timestamp      int64           `json:"ts,omitempty"`
}

// NewEvent builds an outbound event with payload marshalled to JSON.
func NewEvent(eventType string, payload any) (*Event, error) {
	var raw json.RawMessage
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		raw = data
	}
	return &Event{
		Type:      eventType,
		Payload:   raw,
		Timestamp: time.Now().UnixMilli(),
	}, nil
}

// SuccessEvent and ErrorEvent name the replies to a client event.
func SuccessEvent(eventType string) string { return eventType + ".success" }

func ErrorEvent(eventType string) string { return eventType + ".error" }

// Server-initiated event types.
const (
	EventOnlineUsers   = "presence.online-users"
	EventUnreadSummary = "unread.summary"
	EventUnreadUpdate  = "unread.update"
	EventGroupRemoved  = "group.removed"
	EventPong          = "pong"
)

// Conn is one live client connection.
type Conn interface {
	ID() string
	UserID() string
	// Send queues ev for delivery. It must not block.
	Send(ev *Event) error
}
