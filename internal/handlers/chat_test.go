package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"

	"aichat-backend/internal/models"
)

type stubResponder struct {
	resp models.ChatResponse
	err  error
}

func (s *stubResponder) GenerateReply(ctx context.Context, message string, history []models.ChatTurn) (models.ChatResponse, error) {
	return s.resp, s.err
}

func chatTestApp(responder *stubResponder) *fiber.App {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	app := fiber.New()
	app.Post("/api/chat", NewChatHandler(responder, log).Chat)
	return app
}

func postJSON(t *testing.T, app *fiber.App, path string, body []byte) *http.Response {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request %s: %v", path, err)
	}
	return resp
}

func TestChatProxyReturnsContent(t *testing.T) {
	app := chatTestApp(&stubResponder{resp: models.ChatResponse{Content: "42"}})

	resp := postJSON(t, app, "/api/chat", []byte(`{"message":"what is 6x7","conversationHistory":[{"role":"user","content":"hi"}]}`))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var out models.ChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Content != "42" || out.Fallback {
		t.Errorf("response = %+v", out)
	}
}

func TestChatProxyFallbackFlagPassedThrough(t *testing.T) {
	app := chatTestApp(&stubResponder{resp: models.ChatResponse{Content: "canned", Fallback: true}})

	resp := postJSON(t, app, "/api/chat", []byte(`{"message":"hello"}`))
	var out models.ChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !out.Fallback {
		t.Error("fallback flag lost")
	}
}

func TestChatProxyRejectsMissingMessage(t *testing.T) {
	app := chatTestApp(&stubResponder{resp: models.ChatResponse{Content: "x"}})

	for _, body := range []string{`{}`, `{"message":"   "}`, `not json`} {
		resp := postJSON(t, app, "/api/chat", []byte(body))
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("body %q: status = %d, want 400", body, resp.StatusCode)
		}
	}
}
