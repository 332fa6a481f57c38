package store

import (
	"aichat-backend/internal/baas"
	"aichat-backend/internal/models"
)

// Metadata keys attached to outgoing messages and read back from the
// service on delivery. Single point of change if the remote shape evolves.
const (
	metaAIResponse = "isAIResponse"
	metaAICommand  = "isAICommand"
)

// mapRemoteMessage translates the opaque remote message into the local
// shape. A message tagged as an AI response is always rendered as
// assistant-authored with the fixed display name, regardless of the literal
// remote sender account the reply was broadcast through.
func mapRemoteMessage(remote baas.RemoteMessage) models.Message {
	msg := models.Message{
		ID:                remote.ID,
		Content:           remote.Text,
		Sender:            models.SenderUser,
		Timestamp:         remote.SentAt,
		SenderDisplayName: remote.SenderName,
		SenderID:          remote.SenderUID,
		IsAIResponse:      metaBool(remote.Metadata, metaAIResponse),
		IsAICommand:       metaBool(remote.Metadata, metaAICommand),
	}
	if msg.IsAIResponse {
		msg.Sender = models.SenderAssistant
		msg.SenderDisplayName = models.AssistantDisplayName
	}
	return msg
}

// metaBool tolerates both bool and stringly-typed metadata values.
func metaBool(meta map[string]any, key string) bool {
	if meta == nil {
		return false
	}
	switch v := meta[key].(type) {
	case bool:
		return v
	case string:
		return v == "true" || v == "1"
	default:
		return false
	}
}

func hasMessageID(msgs []models.Message, id string) bool {
	for i := range msgs {
		if msgs[i].ID == id {
			return true
		}
	}
	return false
}
