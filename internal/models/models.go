package models

import "fmt"

// MessageType discriminates how a message's content is interpreted
// by clients using a typed enum rather than a free-form string.
type MessageType string

const (
	MessageTypeText  MessageType = "text"
	MessageTypeImage MessageType = "image"
	MessageTypeLink  MessageType = "link"
)

// String returns the string representation of the MessageType.
func (mt MessageType) String() string {
	return string(mt)
}

// IsValid checks if the MessageType is a valid enum value.
func (mt MessageType) IsValid() bool {
	switch mt {
	case MessageTypeText, MessageTypeImage, MessageTypeLink:
		return true
	default:
		return false
	}
}

// User is a chat participant. The id is generated client-side and is
// immutable once created; the server does not validate uniqueness.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Avatar   string `json:"avatar"`
}

// Message is one entry in a channel's log. Content carries plain text,
// a data-URI image, or a URL depending on Type. Entries are immutable
// after append except for Content and Edited under an edit.
type Message struct {
	ID        string      `json:"id"`
	Type      MessageType `json:"type"`
	Content   string      `json:"content"`
	UserID    string      `json:"userId"`
	Username  string      `json:"username,omitempty"`
	Avatar    string      `json:"avatar,omitempty"`
	Timestamp int64       `json:"timestamp"` // unix milliseconds
	Edited    bool        `json:"edited"`
}

// Validate checks the fields a client must supply on sendMessage.
func (m *Message) Validate() error {
	if !m.Type.IsValid() {
		return fmt.Errorf("invalid message type: %q", m.Type)
	}
	if m.Content == "" {
		return fmt.Errorf("message content is required")
	}
	return nil
}

// Channel is a chat room. ID and Code are the same 6-character
// uppercase base-36 token. Participants is a set keyed by user id.
// Messages is append-only in arrival order.
type Channel struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Code         string    `json:"code"`
	Creator      User      `json:"creator"`
	Participants []User    `json:"participants"`
	Messages     []Message `json:"messages"`
	CreatedAt    int64     `json:"createdAt"` // unix milliseconds
}

// HasParticipant reports whether a user id is already in the
// participant set.
func (c *Channel) HasParticipant(userID string) bool {
	for _, p := range c.Participants {
		if p.ID == userID {
			return true
		}
	}
	return false
}

// FindMessage returns the index of the message with the given id, or
// -1 when absent.
func (c *Channel) FindMessage(id string) int {
	for i := range c.Messages {
		if c.Messages[i].ID == id {
			return i
		}
	}
	return -1
}
