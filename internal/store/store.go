// Package store holds the conversation state: chatrooms, messages, the
// typing flag and the logged-in user. It is the single authority for that
// state in a running session, sequencing every chat-service call needed to
// keep it consistent with the user's intent and with push-delivered events.
//
// Delivery is at-least-once (the sender's own send comes back both as the
// synchronous send result and through the push listener), so every append
// goes through an id-keyed idempotent upsert: the visible state contains
// exactly one entry per message id.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"aichat-backend/internal/ai"
	"aichat-backend/internal/baas"
	"aichat-backend/internal/models"
	"aichat-backend/internal/utils"
)

// listenerKey names the single push subscription a store keeps with the
// chat service. Registration under the same key replaces, never duplicates.
const listenerKey = "chat-store-messages"

// historyDepth is how many recent turns accompany an AI query.
const historyDepth = 10

var (
	ErrNotReady          = errors.New("chat service not ready")
	ErrNotAuthenticated  = errors.New("no authenticated session")
	ErrNoActiveChatroom  = errors.New("no chatroom selected")
	ErrLocalOnlyChatroom = errors.New("chatroom has no remote group")
)

type Options struct {
	Chat baas.Client
	AI   ai.Responder

	// Cache persists the state snapshot under Namespace. Optional.
	Cache     *Cache
	Namespace string

	Log      *slog.Logger
	PageSize int
}

type Store struct {
	chat     baas.Client
	ai       ai.Responder
	cache    *Cache
	ns       string
	log      *slog.Logger
	pageSize int

	// initMu serializes Initialize so concurrent callers cannot
	// double-initialize the chat client.
	initMu sync.Mutex

	mu         sync.Mutex
	ready      bool
	user       *models.User
	accountKey string
	chatrooms  []*models.Chatroom
	currentID  string
	typing     bool
	notify     func(models.Event)

	lockMu    sync.Mutex
	roomLocks map[string]*sync.Mutex
}

func New(opts Options) *Store {
	if opts.Log == nil {
		opts.Log = slog.Default()
	}
	if opts.PageSize <= 0 {
		opts.PageSize = 30
	}
	if opts.Namespace == "" {
		opts.Namespace = "chat-storage"
	}

	s := &Store{
		chat:      opts.Chat,
		ai:        opts.AI,
		cache:     opts.Cache,
		ns:        opts.Namespace,
		log:       opts.Log,
		pageSize:  opts.PageSize,
		roomLocks: make(map[string]*sync.Mutex),
	}
	s.restore()
	return s
}

// SetNotifier installs the callback invoked after state mutations, outside
// the store lock. Used by the websocket relay.
func (s *Store) SetNotifier(fn func(models.Event)) {
	s.mu.Lock()
	s.notify = fn
	s.mu.Unlock()
}

// restore rehydrates state from the persisted snapshot. The cache is only a
// cache: a stale or unreadable snapshot is discarded, never merged.
func (s *Store) restore() {
	if s.cache == nil {
		return
	}
	snap, err := s.cache.Load(s.ns)
	if err != nil {
		if errors.Is(err, ErrStaleSnapshot) {
			s.log.Info("discarding persisted snapshot with old schema", "namespace", s.ns)
		} else {
			s.log.Warn("failed to load persisted snapshot", "error", err)
		}
		return
	}
	if snap == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.user = snap.User
	if snap.User != nil {
		s.accountKey = snap.User.ID
	}
	s.chatrooms = make([]*models.Chatroom, 0, len(snap.Chatrooms))
	for i := range snap.Chatrooms {
		room := snap.Chatrooms[i]
		s.chatrooms = append(s.chatrooms, &room)
	}
	s.currentID = snap.CurrentID
	s.typing = snap.Typing
}

// persistLocked writes the snapshot; callers must hold s.mu. Best effort.
func (s *Store) persistLocked() {
	if s.cache == nil {
		return
	}
	snap := &Snapshot{
		Version:   SnapshotVersion,
		User:      s.user,
		CurrentID: s.currentID,
		Typing:    s.typing,
	}
	snap.Chatrooms = make([]models.Chatroom, 0, len(s.chatrooms))
	for _, room := range s.chatrooms {
		snap.Chatrooms = append(snap.Chatrooms, *room)
	}
	if err := s.cache.Save(s.ns, snap); err != nil {
		s.log.Warn("failed to persist snapshot", "error", err)
	}
}

// Initialize prepares the chat connection. Idempotent and safe to invoke
// from multiple goroutines: the first successful call wins, later calls are
// no-ops. Failure leaves the store not ready and is only logged.
func (s *Store) Initialize(ctx context.Context) {
	s.initMu.Lock()
	defer s.initMu.Unlock()

	if s.Ready() {
		return
	}
	if err := s.chat.Init(ctx); err != nil {
		s.log.Error("chat service initialization failed", "error", err)
		s.setReady(false)
		return
	}
	s.setReady(true)
}

func (s *Store) setReady(v bool) {
	s.mu.Lock()
	s.ready = v
	s.mu.Unlock()
}

func (s *Store) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready
}

func (s *Store) User() *models.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.user == nil {
		return nil
	}
	u := *s.user
	return &u
}

func (s *Store) Typing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.typing
}

// Login establishes the chat session for a raw user-facing identifier.
// A session for the same canonical key is reused; a different session is
// terminated first. Account creation racing with another client is treated
// as success. Exactly one push listener is registered, replacing any prior
// registration under the store's subscription key.
func (s *Store) Login(ctx context.Context, identity, displayName string) error {
	key := utils.CanonicalAccountKey(identity)
	log := s.log.With("account", key)

	s.Initialize(ctx)
	if !s.Ready() {
		return ErrNotReady
	}

	current, err := s.chat.LoggedInUser(ctx)
	if err != nil {
		log.Warn("session lookup failed", "error", err)
	}
	if current != nil {
		if current.UID == key {
			log.Debug("reusing existing session")
			s.adoptSession(identity, displayName, key)
			return nil
		}
		if err := s.chat.Logout(ctx); err != nil {
			log.Warn("failed to terminate previous session", "error", err)
		}
	}

	exists, err := s.chat.UserExists(ctx, key)
	if err != nil {
		log.Warn("account lookup failed", "error", err)
	}
	if !exists {
		if err := s.chat.CreateUser(ctx, key, displayName); err != nil && !errors.Is(err, baas.ErrUIDAlreadyExists) {
			return fmt.Errorf("create account: %w", err)
		}
	}

	if _, err := s.chat.Login(ctx, key); err != nil {
		return fmt.Errorf("authenticate: %w", err)
	}

	s.adoptSession(identity, displayName, key)
	log.Info("logged in")
	return nil
}

func (s *Store) adoptSession(identity, displayName, key string) {
	s.chat.AddMessageListener(listenerKey, s.HandleIncomingMessage)

	s.mu.Lock()
	s.user = &models.User{ID: key, PhoneNumber: identity, DisplayName: displayName}
	s.accountKey = key
	s.persistLocked()
	s.mu.Unlock()
}

// Logout drops the chat session and the local user. Chatrooms stay cached.
func (s *Store) Logout(ctx context.Context) {
	s.chat.RemoveMessageListener(listenerKey)
	if err := s.chat.Logout(ctx); err != nil {
		s.log.Warn("logout failed", "error", err)
	}

	s.mu.Lock()
	s.user = nil
	s.accountKey = ""
	s.persistLocked()
	s.mu.Unlock()
}

// CreateChatroom allocates a local chatroom and, for group chats, a remote
// group. Remote creation is best effort: local-only operation is a valid
// degraded mode. The new room is inserted at the head and becomes current.
func (s *Store) CreateChatroom(ctx context.Context, title string, isGroup bool) *models.Chatroom {
	room := &models.Chatroom{
		ID:          uuid.NewString(),
		Title:       title,
		CreatedAt:   time.Now(),
		Messages:    []models.Message{},
		IsGroupChat: isGroup,
	}

	if isGroup {
		room.ExternalGroupID = "group_" + strings.ReplaceAll(uuid.NewString(), "-", "")
		if s.Ready() {
			if _, err := s.chat.CreateGroup(ctx, room.ExternalGroupID, title); err != nil {
				s.log.Warn("remote group creation failed, continuing local-only", "error", err)
			}
		}
	}

	s.mu.Lock()
	s.chatrooms = append([]*models.Chatroom{room}, s.chatrooms...)
	s.currentID = room.ID
	s.persistLocked()
	created := *room
	s.mu.Unlock()

	return &created
}

// SelectChatroom makes a chatroom current. For remote-backed rooms with a
// ready store it then, asynchronously, ensures group membership and loads
// history; either failure is swallowed independently so a join failure does
// not block the message load attempt.
func (s *Store) SelectChatroom(id string) error {
	s.mu.Lock()
	room := s.roomByIDLocked(id)
	if room == nil {
		s.mu.Unlock()
		return fmt.Errorf("unknown chatroom %s", id)
	}
	s.currentID = id
	guid := room.ExternalGroupID
	hasSession := s.user != nil
	s.persistLocked()
	s.mu.Unlock()

	if guid != "" && hasSession && s.Ready() {
		go s.syncChatroom(id, guid)
	}
	return nil
}

func (s *Store) syncChatroom(id, guid string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.chat.JoinGroup(ctx, guid); err != nil && !errors.Is(err, baas.ErrAlreadyJoined) {
		s.log.Warn("group join failed", "guid", guid, "error", err)
	}
	if err := s.LoadMessages(ctx, id); err != nil {
		s.log.Warn("message load failed", "chatroom", id, "error", err)
	}
}

// DeleteChatroom removes the local reference only; the remote group is
// never deleted by this app.
func (s *Store) DeleteChatroom(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.chatrooms[:0]
	for _, room := range s.chatrooms {
		if room.ID != id {
			kept = append(kept, room)
		}
	}
	s.chatrooms = kept
	if s.currentID == id {
		s.currentID = ""
	}
	s.persistLocked()
}

// Chatrooms returns a snapshot copy of all chatrooms, newest first.
func (s *Store) Chatrooms() []models.Chatroom {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.Chatroom, 0, len(s.chatrooms))
	for _, room := range s.chatrooms {
		out = append(out, *room)
	}
	return out
}

// Chatroom returns a snapshot copy of one chatroom.
func (s *Store) Chatroom(id string) (models.Chatroom, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	room := s.roomByIDLocked(id)
	if room == nil {
		return models.Chatroom{}, false
	}
	return *room, true
}

// CurrentChatroom returns a snapshot copy of the selected chatroom.
func (s *Store) CurrentChatroom() (models.Chatroom, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	room := s.roomByIDLocked(s.currentID)
	if room == nil {
		return models.Chatroom{}, false
	}
	return *room, true
}

// SendMessage broadcasts text to the current chatroom's group. Text that
// matches the AI command prefix additionally queries the AI gateway and
// broadcasts the answer as a second, tagged message. Sends to the same
// chatroom are serialized so a concurrent call cannot corrupt the typing
// indicator or interleave the two AI broadcasts.
func (s *Store) SendMessage(ctx context.Context, text string) error {
	s.mu.Lock()
	room := s.roomByIDLocked(s.currentID)
	var roomID, guid string
	if room != nil {
		roomID, guid = room.ID, room.ExternalGroupID
	}
	hasSession := s.user != nil
	ready := s.ready
	s.mu.Unlock()

	switch {
	case room == nil:
		return ErrNoActiveChatroom
	case guid == "":
		return ErrLocalOnlyChatroom
	case !hasSession:
		return ErrNotAuthenticated
	case !ready:
		return ErrNotReady
	}

	lock := s.roomLock(roomID)
	lock.Lock()
	defer lock.Unlock()

	if err := s.healSession(ctx); err != nil {
		return err
	}

	if query, ok := ParseAICommand(text); ok {
		return s.sendAICommand(ctx, roomID, guid, text, query)
	}
	return s.sendPlain(ctx, roomID, guid, text)
}

// healSession re-authenticates once with the last-known identity when the
// remote session has gone stale. A second failure aborts the send.
func (s *Store) healSession(ctx context.Context) error {
	current, err := s.chat.LoggedInUser(ctx)
	if err == nil && current != nil {
		return nil
	}

	s.mu.Lock()
	key := s.accountKey
	s.mu.Unlock()
	if key == "" {
		return ErrNotAuthenticated
	}

	if _, err := s.chat.Login(ctx, key); err != nil {
		return fmt.Errorf("session expired and re-login failed: %w", err)
	}
	s.log.Info("session restored", "account", key)
	return nil
}

func (s *Store) sendPlain(ctx context.Context, roomID, guid, text string) error {
	sent, err := s.chat.SendGroupMessage(ctx, guid, text, nil)
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	// Local echo with the remote-assigned id; the listener copy de-dupes.
	s.appendMessage(roomID, mapRemoteMessage(*sent))
	return nil
}

func (s *Store) sendAICommand(ctx context.Context, roomID, guid, raw, query string) error {
	// Broadcast the literal command first so every participant sees the
	// question was asked.
	sent, err := s.chat.SendGroupMessage(ctx, guid, raw, map[string]any{metaAICommand: true})
	if err != nil {
		return fmt.Errorf("broadcast command: %w", err)
	}
	s.appendMessage(roomID, mapRemoteMessage(*sent))

	s.setTyping(true)
	defer s.setTyping(false)

	answer := ai.ApologyText
	resp, err := s.ai.GenerateReply(ctx, query, s.recentHistory(roomID, historyDepth))
	if err != nil {
		s.log.Warn("ai gateway failed", "error", err)
	} else if resp.Content != "" {
		answer = resp.Content
	}

	aiSent, err := s.chat.SendGroupMessage(ctx, guid, answer, map[string]any{metaAIResponse: true})
	if err != nil {
		return fmt.Errorf("broadcast ai reply: %w", err)
	}
	s.appendMessage(roomID, mapRemoteMessage(*aiSent))
	return nil
}

// recentHistory maps the chatroom's last n messages to role-tagged turns.
func (s *Store) recentHistory(roomID string, n int) []models.ChatTurn {
	s.mu.Lock()
	defer s.mu.Unlock()

	room := s.roomByIDLocked(roomID)
	if room == nil {
		return nil
	}
	start := len(room.Messages) - n
	if start < 0 {
		start = 0
	}

	turns := make([]models.ChatTurn, 0, len(room.Messages)-start)
	for _, msg := range room.Messages[start:] {
		role := "user"
		if msg.Sender == models.SenderAssistant {
			role = "assistant"
		}
		turns = append(turns, models.ChatTurn{Role: role, Content: msg.Content})
	}
	return turns
}

// LoadMessages fetches the most recent page for the chatroom's group and
// replaces the whole message collection, sorted ascending by timestamp.
// Full resync, not a merge. No-op without an authenticated session.
func (s *Store) LoadMessages(ctx context.Context, chatroomID string) error {
	s.mu.Lock()
	hasSession := s.user != nil
	room := s.roomByIDLocked(chatroomID)
	var guid string
	if room != nil {
		guid = room.ExternalGroupID
	}
	s.mu.Unlock()

	if !hasSession {
		return nil
	}
	if room == nil {
		return fmt.Errorf("unknown chatroom %s", chatroomID)
	}
	if guid == "" {
		return nil
	}

	remote, err := s.chat.FetchPreviousMessages(ctx, guid, s.pageSize)
	if err != nil {
		return fmt.Errorf("load messages: %w", err)
	}

	msgs := make([]models.Message, 0, len(remote))
	for _, rm := range remote {
		msgs = append(msgs, mapRemoteMessage(rm))
	}
	sort.SliceStable(msgs, func(i, j int) bool {
		if msgs[i].Timestamp.Equal(msgs[j].Timestamp) {
			return msgs[i].ID < msgs[j].ID
		}
		return msgs[i].Timestamp.Before(msgs[j].Timestamp)
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	room = s.roomByIDLocked(chatroomID)
	if room == nil {
		return nil
	}
	room.Messages = msgs
	room.LastMessage = nil
	if len(msgs) > 0 {
		last := msgs[len(msgs)-1]
		room.LastMessage = &last
	}
	s.persistLocked()
	return nil
}

// HandleIncomingMessage is the push-listener callback. It runs on the chat
// client's schedule and may interleave with any store operation; safety
// comes from id-keyed de-duplication under the store lock, not timers.
func (s *Store) HandleIncomingMessage(remote baas.RemoteMessage) {
	s.mu.Lock()

	room := s.roomByGroupLocked(remote.GUID)
	if room == nil {
		s.mu.Unlock()
		s.log.Debug("dropping message for unknown group", "guid", remote.GUID)
		return
	}
	if hasMessageID(room.Messages, remote.ID) {
		s.mu.Unlock()
		return
	}

	msg := mapRemoteMessage(remote)
	// The sender's own sends were already echoed locally. AI responses are
	// exempt: they route through the listener path for every participant,
	// including the one who asked.
	if s.accountKey != "" && remote.SenderUID == s.accountKey && !msg.IsAIResponse {
		s.mu.Unlock()
		return
	}

	room.Messages = append(room.Messages, msg)
	last := msg
	room.LastMessage = &last
	roomID := room.ID
	s.persistLocked()
	notify := s.notify
	s.mu.Unlock()

	if notify != nil {
		notify(models.Event{Type: models.EventMessage, ChatroomID: roomID, Message: &msg})
	}
}

// DiscoverPublicGroups lists the service's public groups, filtering out
// those already represented locally. With a non-empty term it searches by
// keyword instead.
func (s *Store) DiscoverPublicGroups(ctx context.Context, term string) ([]baas.RemoteGroup, error) {
	var (
		groups []baas.RemoteGroup
		err    error
	)
	if term != "" {
		groups, err = s.chat.SearchGroups(ctx, term, s.pageSize)
	} else {
		groups, err = s.chat.ListPublicGroups(ctx, s.pageSize)
	}
	if err != nil {
		return nil, fmt.Errorf("discover groups: %w", err)
	}

	s.mu.Lock()
	known := make(map[string]struct{}, len(s.chatrooms))
	for _, room := range s.chatrooms {
		if room.ExternalGroupID != "" {
			known[room.ExternalGroupID] = struct{}{}
		}
	}
	s.mu.Unlock()

	out := groups[:0]
	for _, g := range groups {
		if _, ok := known[g.GUID]; !ok {
			out = append(out, g)
		}
	}
	return out, nil
}

// JoinExistingGroup joins a discovered group and adds it as a local
// chatroom. Already being a member counts as success.
func (s *Store) JoinExistingGroup(ctx context.Context, guid, name string) (*models.Chatroom, error) {
	if err := s.chat.JoinGroup(ctx, guid); err != nil && !errors.Is(err, baas.ErrAlreadyJoined) {
		return nil, fmt.Errorf("join group: %w", err)
	}

	s.mu.Lock()
	if existing := s.roomByGroupLocked(guid); existing != nil {
		s.currentID = existing.ID
		joined := *existing
		s.mu.Unlock()
		return &joined, nil
	}

	room := &models.Chatroom{
		ID:              uuid.NewString(),
		Title:           name,
		CreatedAt:       time.Now(),
		Messages:        []models.Message{},
		IsGroupChat:     true,
		ExternalGroupID: guid,
	}
	s.chatrooms = append([]*models.Chatroom{room}, s.chatrooms...)
	s.currentID = room.ID
	s.persistLocked()
	roomID := room.ID
	s.mu.Unlock()

	if err := s.LoadMessages(ctx, roomID); err != nil {
		s.log.Warn("history load after join failed", "guid", guid, "error", err)
	}

	result, _ := s.Chatroom(roomID)
	return &result, nil
}

// appendMessage is the id-keyed idempotent upsert shared by the send paths.
func (s *Store) appendMessage(roomID string, msg models.Message) {
	s.mu.Lock()

	room := s.roomByIDLocked(roomID)
	if room == nil || hasMessageID(room.Messages, msg.ID) {
		s.mu.Unlock()
		return
	}
	room.Messages = append(room.Messages, msg)
	last := msg
	room.LastMessage = &last
	s.persistLocked()
	notify := s.notify
	s.mu.Unlock()

	if notify != nil {
		notify(models.Event{Type: models.EventMessage, ChatroomID: roomID, Message: &msg})
	}
}

func (s *Store) setTyping(v bool) {
	s.mu.Lock()
	s.typing = v
	s.persistLocked()
	notify := s.notify
	s.mu.Unlock()

	if notify != nil {
		notify(models.Event{Type: models.EventTyping, Typing: v})
	}
}

func (s *Store) roomByIDLocked(id string) *models.Chatroom {
	if id == "" {
		return nil
	}
	for _, room := range s.chatrooms {
		if room.ID == id {
			return room
		}
	}
	return nil
}

func (s *Store) roomByGroupLocked(guid string) *models.Chatroom {
	if guid == "" {
		return nil
	}
	for _, room := range s.chatrooms {
		if room.ExternalGroupID == guid {
			return room
		}
	}
	return nil
}

// roomLock returns the per-chatroom send lock, creating it on first use.
func (s *Store) roomLock(roomID string) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()

	lock, ok := s.roomLocks[roomID]
	if !ok {
		lock = &sync.Mutex{}
		s.roomLocks[roomID] = lock
	}
	return lock
}
