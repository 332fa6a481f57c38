package models

import "time"

// Chatroom is the local view of a conversation. ExternalGroupID binds it to
// a group resource on the chat service; when empty the room is local-only
// (degraded mode, no remote sends possible).
type Chatroom struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	CreatedAt       time.Time `json:"created_at"`
	Messages        []Message `json:"messages"`
	LastMessage     *Message  `json:"last_message,omitempty"`
	IsGroupChat     bool      `json:"is_group_chat"`
	ExternalGroupID string    `json:"external_group_id,omitempty"`
}

type CreateChatroomRequest struct {
	Title   string `json:"title"`
	IsGroup bool   `json:"is_group"`
}

type SendMessageRequest struct {
	Content string `json:"content"`
}

type JoinGroupRequest struct {
	Name string `json:"name"`
}
