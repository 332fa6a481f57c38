// Package ai generates assistant replies: a hosted Gemini gateway when an
// API key is configured, a canned keyword responder otherwise or on failure.
package ai

import (
	"context"

	"aichat-backend/internal/models"
)

// ApologyText is the reply of last resort when no generated or canned
// content is available.
const ApologyText = "I apologize, but I'm having trouble generating a response right now. Please try again in a moment."

// Responder produces an assistant reply for a message plus optional
// role-tagged history.
type Responder interface {
	GenerateReply(ctx context.Context, message string, history []models.ChatTurn) (models.ChatResponse, error)
}
