package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gofiber/fiber/v2"

	"aichat-backend/internal/baas"
	"aichat-backend/internal/models"
	"aichat-backend/internal/services"
	"aichat-backend/internal/store"
)

// memChat is a minimal in-memory chat client for exercising the handlers.
type memChat struct {
	mu        sync.Mutex
	users     map[string]string
	session   *baas.RemoteUser
	groups    map[string]baas.RemoteGroup
	listeners map[string]baas.MessageHandler
}

func newMemChat() *memChat {
	return &memChat{
		users:     make(map[string]string),
		groups:    make(map[string]baas.RemoteGroup),
		listeners: make(map[string]baas.MessageHandler),
	}
}

func (m *memChat) Init(ctx context.Context) error { return nil }

func (m *memChat) LoggedInUser(ctx context.Context) (*baas.RemoteUser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return nil, nil
	}
	u := *m.session
	return &u, nil
}

func (m *memChat) UserExists(ctx context.Context, uid string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.users[uid]
	return ok, nil
}

func (m *memChat) CreateUser(ctx context.Context, uid, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[uid]; ok {
		return baas.ErrUIDAlreadyExists
	}
	m.users[uid] = name
	return nil
}

func (m *memChat) Login(ctx context.Context, uid string) (*baas.RemoteUser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	name, ok := m.users[uid]
	if !ok {
		return nil, errors.New("no such user")
	}
	m.session = &baas.RemoteUser{UID: uid, Name: name}
	u := *m.session
	return &u, nil
}

func (m *memChat) Logout(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session = nil
	return nil
}

func (m *memChat) CreateGroup(ctx context.Context, guid, name string) (*baas.RemoteGroup, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g := baas.RemoteGroup{GUID: guid, Name: name}
	m.groups[guid] = g
	return &g, nil
}

func (m *memChat) JoinGroup(ctx context.Context, guid string) error { return nil }

func (m *memChat) ListPublicGroups(ctx context.Context, limit int) ([]baas.RemoteGroup, error) {
	return nil, nil
}

func (m *memChat) SearchGroups(ctx context.Context, term string, limit int) ([]baas.RemoteGroup, error) {
	return nil, nil
}

func (m *memChat) ListJoinedGroups(ctx context.Context, limit int) ([]baas.RemoteGroup, error) {
	return nil, nil
}

func (m *memChat) SendGroupMessage(ctx context.Context, guid, text string, metadata map[string]any) (*baas.RemoteMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return nil, baas.ErrNotLoggedIn
	}
	return &baas.RemoteMessage{ID: "m1", GUID: guid, Text: text, SenderUID: m.session.UID, Metadata: metadata}, nil
}

func (m *memChat) FetchPreviousMessages(ctx context.Context, guid string, limit int) ([]baas.RemoteMessage, error) {
	return nil, nil
}

func (m *memChat) AddMessageListener(id string, fn baas.MessageHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners[id] = fn
}

func (m *memChat) RemoveMessageListener(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.listeners, id)
}

func authTestApp(t *testing.T) (*fiber.App, *services.OTPService) {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	otpSvc := services.NewOTPService("otp-secret")
	tokenSvc := services.NewTokenService("jwt-secret")
	registry := store.NewRegistry(store.RegistryOptions{
		Factory: func() baas.Client { return newMemChat() },
		AI:      &stubResponder{resp: models.ChatResponse{Content: "ok"}},
		Log:     log,
	})

	authHandler := NewAuthHandler(otpSvc, tokenSvc, registry, true, log)
	roomHandler := NewChatroomHandler(registry, log)

	app := fiber.New()
	api := app.Group("/api")
	api.Post("/auth/otp", authHandler.RequestOTP)
	api.Post("/auth/verify", authHandler.Verify)

	protected := api.Group("/", AuthMiddleware(tokenSvc))
	protected.Get("/chatrooms", roomHandler.List)
	protected.Post("/chatrooms", roomHandler.Create)

	return app, otpSvc
}

func TestOTPFlowIssuesTokenAndChatSession(t *testing.T) {
	app, _ := authTestApp(t)

	resp := postJSON(t, app, "/api/auth/otp", []byte(`{"phone":"+1 (555) 123-4567"}`))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("otp status = %d", resp.StatusCode)
	}
	var otpOut struct {
		Code string `json:"code"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&otpOut); err != nil {
		t.Fatalf("decode otp: %v", err)
	}
	if otpOut.Code == "" {
		t.Fatal("dev mode response carries no code")
	}

	body, _ := json.Marshal(map[string]string{
		"phone": "+1 (555) 123-4567",
		"code":  otpOut.Code,
		"name":  "Alice",
	})
	resp = postJSON(t, app, "/api/auth/verify", body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("verify status = %d", resp.StatusCode)
	}

	var out models.AuthResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode verify: %v", err)
	}
	if out.Token == "" {
		t.Error("no token issued")
	}
	if !out.ChatReady {
		t.Error("chat session not established")
	}
	if out.User.ID != "1_555_123_4567" {
		t.Errorf("account key = %q", out.User.ID)
	}
}

func TestVerifyRejectsWrongCode(t *testing.T) {
	app, _ := authTestApp(t)

	resp := postJSON(t, app, "/api/auth/verify", []byte(`{"phone":"+15551234567","code":"000000"}`))
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	app, _ := authTestApp(t)

	req := httptest.NewRequest(http.MethodGet, "/api/chatrooms", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
}

func TestChatroomCreateAndListWithToken(t *testing.T) {
	app, otpSvc := authTestApp(t)

	code, err := otpSvc.Issue("+15551234567")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	body, _ := json.Marshal(map[string]string{"phone": "+15551234567", "code": code, "name": "Alice"})
	resp := postJSON(t, app, "/api/auth/verify", body)
	var auth models.AuthResponse
	if err := json.NewDecoder(resp.Body).Decode(&auth); err != nil {
		t.Fatalf("decode: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/chatrooms", strings.NewReader(`{"title":"Team","is_group":true}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+auth.Token)
	created, err := app.Test(req)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d", created.StatusCode)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/chatrooms", nil)
	req.Header.Set("Authorization", "Bearer "+auth.Token)
	listResp, err := app.Test(req)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	var out struct {
		Chatrooms []models.Chatroom `json:"chatrooms"`
		CurrentID string            `json:"current_id"`
	}
	if err := json.NewDecoder(listResp.Body).Decode(&out); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(out.Chatrooms) != 1 || out.Chatrooms[0].Title != "Team" {
		t.Fatalf("chatrooms = %+v", out.Chatrooms)
	}
	if out.CurrentID != out.Chatrooms[0].ID {
		t.Errorf("current id = %q", out.CurrentID)
	}
}
