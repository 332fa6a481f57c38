package baas

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"

	"aichat-backend/internal/config"
)

const defaultPageSize = 30

// CometChat talks to the hosted chat service's REST API. One instance holds
// at most one authenticated session, mirroring the client SDK it replaces.
//
// The service's realtime socket protocol is out of scope, so push delivery
// is approximated by a bounded poller over the message-history endpoint:
// every group the session has touched is polled and unseen messages are
// handed to the registered listeners.
type CometChat struct {
	cfg  config.CometChatConfig
	log  *slog.Logger
	poll time.Duration

	mu          sync.Mutex
	initialized bool
	session     *RemoteUser
	authToken   string

	listeners map[string]MessageHandler
	watched   map[string]map[string]struct{} // guid -> delivered message ids

	stopPoll chan struct{}
}

func NewCometChat(cfg config.CometChatConfig, pollInterval time.Duration, log *slog.Logger) *CometChat {
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	return &CometChat{
		cfg:       cfg,
		log:       log,
		poll:      pollInterval,
		listeners: make(map[string]MessageHandler),
		watched:   make(map[string]map[string]struct{}),
	}
}

func (c *CometChat) baseURL() string {
	return fmt.Sprintf("https://%s.api-%s.cometchat.io/v3", c.cfg.AppID, c.cfg.Region)
}

// Init validates configuration and marks the client ready. Safe to call
// multiple times; repeated calls are no-ops once initialized.
func (c *CometChat) Init(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.initialized {
		return nil
	}
	if c.cfg.AppID == "" || c.cfg.AuthKey == "" {
		return fmt.Errorf("cometchat: app id and auth key must be configured")
	}
	c.initialized = true
	return nil
}

func (c *CometChat) LoggedInUser(ctx context.Context) (*RemoteUser, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return nil, nil
	}
	u := *c.session
	return &u, nil
}

func (c *CometChat) UserExists(ctx context.Context, uid string) (bool, error) {
	var out envelope[ccUser]
	code, err := c.do(fiber.MethodGet, "/users/"+uid, nil, &out)
	if err != nil {
		return false, err
	}
	if code == fiber.StatusNotFound {
		return false, nil
	}
	return out.Data.UID != "", nil
}

func (c *CometChat) CreateUser(ctx context.Context, uid, name string) error {
	body := map[string]any{"uid": uid, "name": name}
	var out envelope[ccUser]
	code, err := c.do(fiber.MethodPost, "/users", body, &out)
	if err != nil {
		return err
	}
	if out.Error != nil && out.Error.Code == "ERR_UID_ALREADY_EXISTS" {
		return ErrUIDAlreadyExists
	}
	if code >= fiber.StatusBadRequest {
		if code == fiber.StatusConflict {
			return ErrUIDAlreadyExists
		}
		return remoteError(code, out.Error)
	}
	return nil
}

func (c *CometChat) Login(ctx context.Context, uid string) (*RemoteUser, error) {
	var out envelope[ccAuthToken]
	code, err := c.do(fiber.MethodPost, "/users/"+uid+"/auth_tokens", map[string]any{"force": true}, &out)
	if err != nil {
		return nil, err
	}
	if code >= fiber.StatusBadRequest || out.Data.AuthToken == "" {
		return nil, remoteError(code, out.Error)
	}

	user := &RemoteUser{UID: uid, Name: uid}
	var userOut envelope[ccUser]
	if code, err := c.do(fiber.MethodGet, "/users/"+uid, nil, &userOut); err == nil && code < fiber.StatusBadRequest && userOut.Data.Name != "" {
		user.Name = userOut.Data.Name
	}

	c.mu.Lock()
	c.session = user
	c.authToken = out.Data.AuthToken
	c.mu.Unlock()

	u := *user
	return &u, nil
}

func (c *CometChat) Logout(ctx context.Context) error {
	c.mu.Lock()
	c.session = nil
	c.authToken = ""
	c.mu.Unlock()
	return nil
}

func (c *CometChat) CreateGroup(ctx context.Context, guid, name string) (*RemoteGroup, error) {
	body := map[string]any{"guid": guid, "name": name, "type": "public"}
	var out envelope[ccGroup]
	code, err := c.do(fiber.MethodPost, "/groups", body, &out)
	if err != nil {
		return nil, err
	}
	if code >= fiber.StatusBadRequest {
		return nil, remoteError(code, out.Error)
	}
	c.watchGroup(guid)
	return mapGroup(out.Data), nil
}

func (c *CometChat) JoinGroup(ctx context.Context, guid string) error {
	uid := c.sessionUID()
	if uid == "" {
		return ErrNotLoggedIn
	}
	body := map[string]any{"participants": []string{uid}}
	var out envelope[json.RawMessage]
	code, err := c.do(fiber.MethodPost, "/groups/"+guid+"/members", body, &out)
	if err != nil {
		return err
	}
	if out.Error != nil && out.Error.Code == "ERR_ALREADY_JOINED" {
		c.watchGroup(guid)
		return ErrAlreadyJoined
	}
	if code >= fiber.StatusBadRequest {
		if code == fiber.StatusConflict {
			c.watchGroup(guid)
			return ErrAlreadyJoined
		}
		return remoteError(code, out.Error)
	}
	c.watchGroup(guid)
	return nil
}

func (c *CometChat) ListPublicGroups(ctx context.Context, limit int) ([]RemoteGroup, error) {
	return c.listGroups(fmt.Sprintf("/groups?per_page=%d", pageSize(limit)))
}

func (c *CometChat) SearchGroups(ctx context.Context, term string, limit int) ([]RemoteGroup, error) {
	return c.listGroups(fmt.Sprintf("/groups?per_page=%d&searchKey=%s", pageSize(limit), term))
}

func (c *CometChat) ListJoinedGroups(ctx context.Context, limit int) ([]RemoteGroup, error) {
	uid := c.sessionUID()
	if uid == "" {
		return nil, ErrNotLoggedIn
	}
	return c.listGroups(fmt.Sprintf("/users/%s/groups?per_page=%d", uid, pageSize(limit)))
}

func (c *CometChat) listGroups(path string) ([]RemoteGroup, error) {
	var out envelope[[]ccGroup]
	code, err := c.do(fiber.MethodGet, path, nil, &out)
	if err != nil {
		return nil, err
	}
	if code >= fiber.StatusBadRequest {
		return nil, remoteError(code, out.Error)
	}
	groups := make([]RemoteGroup, 0, len(out.Data))
	for _, g := range out.Data {
		groups = append(groups, *mapGroup(g))
	}
	return groups, nil
}

func (c *CometChat) SendGroupMessage(ctx context.Context, guid, text string, metadata map[string]any) (*RemoteMessage, error) {
	uid := c.sessionUID()
	if uid == "" {
		return nil, ErrNotLoggedIn
	}

	data := map[string]any{"text": text}
	if len(metadata) > 0 {
		data["metadata"] = metadata
	}
	body := map[string]any{
		"category":     "message",
		"type":         "text",
		"receiver":     guid,
		"receiverType": "group",
		"data":         data,
	}

	var out envelope[ccMessage]
	code, err := c.doAs(fiber.MethodPost, "/messages", uid, body, &out)
	if err != nil {
		return nil, err
	}
	if code >= fiber.StatusBadRequest {
		return nil, remoteError(code, out.Error)
	}

	c.watchGroup(guid)
	msg := mapMessage(out.Data, guid)
	// The sender's own send is never replayed by the poller.
	c.markDelivered(guid, msg.ID)
	return &msg, nil
}

func (c *CometChat) FetchPreviousMessages(ctx context.Context, guid string, limit int) ([]RemoteMessage, error) {
	msgs, err := c.fetchMessages(guid, limit)
	if err != nil {
		return nil, err
	}
	c.watchGroup(guid)
	return msgs, nil
}

func (c *CometChat) fetchMessages(guid string, limit int) ([]RemoteMessage, error) {
	path := fmt.Sprintf("/groups/%s/messages?per_page=%d&affix=append", guid, pageSize(limit))
	var out envelope[[]ccMessage]
	code, err := c.do(fiber.MethodGet, path, nil, &out)
	if err != nil {
		return nil, err
	}
	if code >= fiber.StatusBadRequest {
		return nil, remoteError(code, out.Error)
	}
	msgs := make([]RemoteMessage, 0, len(out.Data))
	for _, m := range out.Data {
		msgs = append(msgs, mapMessage(m, guid))
	}
	return msgs, nil
}

// AddMessageListener registers fn under id, replacing any prior registration
// with the same id. The poll loop starts with the first listener.
func (c *CometChat) AddMessageListener(id string, fn MessageHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.listeners[id] = fn
	if c.stopPoll == nil {
		c.stopPoll = make(chan struct{})
		go c.pollLoop(c.stopPoll)
	}
}

func (c *CometChat) RemoveMessageListener(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.listeners, id)
	if len(c.listeners) == 0 && c.stopPoll != nil {
		close(c.stopPoll)
		c.stopPoll = nil
	}
}

// Close stops the poll loop and drops the session.
func (c *CometChat) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopPoll != nil {
		close(c.stopPoll)
		c.stopPoll = nil
	}
	c.listeners = make(map[string]MessageHandler)
	c.session = nil
	c.authToken = ""
}

func (c *CometChat) pollLoop(stop chan struct{}) {
	ticker := time.NewTicker(c.poll)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			c.pollOnce()
		}
	}
}

func (c *CometChat) pollOnce() {
	c.mu.Lock()
	if c.session == nil || len(c.listeners) == 0 {
		c.mu.Unlock()
		return
	}
	guids := make([]string, 0, len(c.watched))
	for guid := range c.watched {
		guids = append(guids, guid)
	}
	c.mu.Unlock()

	for _, guid := range guids {
		msgs, err := c.fetchMessages(guid, defaultPageSize)
		if err != nil {
			c.log.Debug("poll fetch failed", "guid", guid, "error", err)
			continue
		}
		for _, m := range msgs {
			if !c.markDelivered(guid, m.ID) {
				continue
			}
			for _, fn := range c.snapshotListeners() {
				fn(m)
			}
		}
	}
}

func (c *CometChat) snapshotListeners() []MessageHandler {
	c.mu.Lock()
	defer c.mu.Unlock()
	fns := make([]MessageHandler, 0, len(c.listeners))
	for _, fn := range c.listeners {
		fns = append(fns, fn)
	}
	return fns
}

// markDelivered records a message id for a group; returns true when the id
// had not been seen before.
func (c *CometChat) markDelivered(guid, id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	seen, ok := c.watched[guid]
	if !ok {
		seen = make(map[string]struct{})
		c.watched[guid] = seen
	}
	if _, dup := seen[id]; dup {
		return false
	}
	// Keep the delivered set bounded; the store de-duplicates by id anyway.
	if len(seen) > 512 {
		c.watched[guid] = map[string]struct{}{id: {}}
		return true
	}
	seen[id] = struct{}{}
	return true
}

func (c *CometChat) watchGroup(guid string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.watched[guid]; !ok {
		c.watched[guid] = make(map[string]struct{})
	}
}

func (c *CometChat) sessionUID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return ""
	}
	return c.session.UID
}

func (c *CometChat) do(method, path string, body any, out any) (int, error) {
	return c.doAs(method, path, "", body, out)
}

func (c *CometChat) doAs(method, path, onBehalfOf string, body any, out any) (int, error) {
	agent := fiber.AcquireAgent()
	defer fiber.ReleaseAgent(agent)

	req := agent.Request()
	req.Header.SetMethod(method)
	req.SetRequestURI(c.baseURL() + path)
	req.Header.Set("apiKey", c.cfg.AuthKey)
	req.Header.Set("Accept", "application/json")
	if onBehalfOf != "" {
		req.Header.Set("onBehalfOf", onBehalfOf)
	}
	if body != nil {
		agent.JSON(body)
	}
	agent.Timeout(15 * time.Second)

	if err := agent.Parse(); err != nil {
		return 0, fmt.Errorf("cometchat request: %w", err)
	}

	code, data, errs := agent.Bytes()
	if len(errs) > 0 {
		return 0, fmt.Errorf("cometchat request: %w", errs[0])
	}
	if out != nil && len(data) > 0 {
		// Error envelopes share the transport-level shape; tolerate both.
		if err := json.Unmarshal(data, out); err != nil && code < fiber.StatusBadRequest {
			return code, fmt.Errorf("cometchat response: %w", err)
		}
	}
	return code, nil
}

// Wire shapes of the service's REST API.

type envelope[T any] struct {
	Data  T        `json:"data"`
	Error *ccError `json:"error"`
}

type ccError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ccUser struct {
	UID  string `json:"uid"`
	Name string `json:"name"`
}

type ccAuthToken struct {
	UID       string `json:"uid"`
	AuthToken string `json:"authToken"`
}

type ccGroup struct {
	GUID         string `json:"guid"`
	Name         string `json:"name"`
	MembersCount int    `json:"membersCount"`
	HasJoined    bool   `json:"hasJoined"`
	CreatedAt    int64  `json:"createdAt"`
}

type ccMessage struct {
	ID       json.Number   `json:"id"`
	Sender   string        `json:"sender"`
	Receiver string        `json:"receiver"`
	SentAt   int64         `json:"sentAt"`
	Data     ccMessageData `json:"data"`
	Entities ccEntities    `json:"entities"`
}

type ccMessageData struct {
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata"`
}

type ccEntities struct {
	Sender struct {
		Entity ccUser `json:"entity"`
	} `json:"sender"`
}

func mapGroup(g ccGroup) *RemoteGroup {
	return &RemoteGroup{
		GUID:        g.GUID,
		Name:        g.Name,
		MemberCount: g.MembersCount,
		HasJoined:   g.HasJoined,
		CreatedAt:   time.Unix(g.CreatedAt, 0),
	}
}

func mapMessage(m ccMessage, guid string) RemoteMessage {
	senderName := m.Entities.Sender.Entity.Name
	if senderName == "" {
		senderName = m.Sender
	}
	return RemoteMessage{
		ID:         m.ID.String(),
		GUID:       guid,
		Text:       m.Data.Text,
		SenderUID:  m.Sender,
		SenderName: senderName,
		SentAt:     time.Unix(m.SentAt, 0),
		Metadata:   m.Data.Metadata,
	}
}

func remoteError(code int, e *ccError) error {
	if e != nil {
		return fmt.Errorf("cometchat: %s (%s)", e.Message, e.Code)
	}
	return fmt.Errorf("cometchat: unexpected status %d", code)
}

func pageSize(limit int) int {
	if limit <= 0 {
		return defaultPageSize
	}
	return limit
}
