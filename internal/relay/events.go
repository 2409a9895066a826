package relay

import (
	"encoding/json"
	"fmt"

	"channel-chat/internal/models"
)

// EventType names the realtime events exchanged with clients using a
// typed enum rather than bare strings.
type EventType string

const (
	// Client to server
	EventGetInitialData EventType = "getInitialData"
	EventSendMessage    EventType = "sendMessage"
	EventEditMessage    EventType = "editMessage"
	EventDeleteMessage  EventType = "deleteMessage"

	// Server to client
	EventInitialData       EventType = "initialData"
	EventMessage           EventType = "message"
	EventParticipantJoined EventType = "participantJoined"
	EventMessageEdited     EventType = "messageEdited"
	EventMessageDeleted    EventType = "messageDeleted"
	EventError             EventType = "error"
)

// String returns the string representation of the EventType.
func (et EventType) String() string {
	return string(et)
}

// IsClientEvent reports whether the event type may be sent by a
// client session.
func (et EventType) IsClientEvent() bool {
	switch et {
	case EventGetInitialData, EventSendMessage, EventEditMessage, EventDeleteMessage:
		return true
	default:
		return false
	}
}

// Event is the wire envelope: an event name plus a payload whose
// shape depends on the event.
type Event struct {
	Event EventType       `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// InitialData is the snapshot sent in response to getInitialData.
type InitialData struct {
	Messages     []models.Message `json:"messages"`
	Participants []models.User    `json:"participants"`
}

// EditMessageData asks for a message's content to be replaced. UserID
// must match the message author.
type EditMessageData struct {
	ID      string `json:"id"`
	UserID  string `json:"userId"`
	Content string `json:"content"`
}

// DeleteMessageData asks for a message to be removed from the log.
type DeleteMessageData struct {
	ID     string `json:"id"`
	UserID string `json:"userId"`
}

// ErrorData is the payload of an error event.
type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// encodeEvent marshals an envelope with the given payload.
func encodeEvent(event EventType, data any) ([]byte, error) {
	var raw json.RawMessage
	if data != nil {
		payload, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("encode %s payload: %w", event, err)
		}
		raw = payload
	}
	return json.Marshal(Event{Event: event, Data: raw})
}
