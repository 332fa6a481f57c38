package ai

import (
	"context"
	"log/slog"

	"aichat-backend/internal/models"
)

// Gateway implements Responder over the hosted model, degrading to the
// local fallback whenever the upstream call fails or no key is configured.
// It never returns an empty reply.
type Gateway struct {
	gemini   *Gemini // nil when unconfigured
	fallback *Fallback
	log      *slog.Logger
}

func NewGateway(gemini *Gemini, fallback *Fallback, log *slog.Logger) *Gateway {
	return &Gateway{gemini: gemini, fallback: fallback, log: log}
}

func (g *Gateway) GenerateReply(ctx context.Context, message string, history []models.ChatTurn) (models.ChatResponse, error) {
	if g.gemini == nil {
		g.log.Debug("no api key configured, using canned response")
		return models.ChatResponse{Content: g.fallback.Reply(message, history)}, nil
	}

	content, err := g.gemini.Generate(ctx, message, history)
	if err != nil {
		g.log.Warn("hosted model call failed, degrading to fallback", "error", err)
		return models.ChatResponse{
			Content:  g.fallback.Reply(message, history),
			Fallback: true,
		}, nil
	}
	return models.ChatResponse{Content: content}, nil
}
