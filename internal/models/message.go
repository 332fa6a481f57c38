package models

import "time"

// Sender distinguishes user-authored messages from assistant-authored ones.
type Sender string

const (
	SenderUser      Sender = "user"
	SenderAssistant Sender = "assistant"
)

// AssistantDisplayName is the fixed label rendered for AI responses,
// regardless of which account the reply was broadcast through.
const AssistantDisplayName = "AI Assistant"

type Message struct {
	ID                string    `json:"id"`
	Content           string    `json:"content"`
	Sender            Sender    `json:"sender"`
	Timestamp         time.Time `json:"timestamp"`
	SenderDisplayName string    `json:"sender_display_name,omitempty"`
	SenderID          string    `json:"sender_id,omitempty"`
	IsAIResponse      bool      `json:"is_ai_response,omitempty"`
	IsAICommand       bool      `json:"is_ai_command,omitempty"`
	AttachedImage     string    `json:"attached_image,omitempty"`
}
