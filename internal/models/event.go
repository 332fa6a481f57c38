package models

// Event types pushed to connected browsers over the websocket relay.
const (
	EventMessage = "message"
	EventTyping  = "typing"
)

type Event struct {
	Type       string   `json:"type"`
	ChatroomID string   `json:"chatroom_id,omitempty"`
	Message    *Message `json:"message,omitempty"`
	Typing     bool     `json:"typing,omitempty"`
}
