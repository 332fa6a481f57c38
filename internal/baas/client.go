// Package baas adapts the hosted chat backend-as-a-service to the calling
// conventions of the conversation store. The service itself (identity,
// groups, message delivery) is a black box behind the Client interface, so
// tests can substitute an in-memory fake.
package baas

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrUIDAlreadyExists reports that account creation raced with another
	// client; the store treats it as success.
	ErrUIDAlreadyExists = errors.New("uid already exists")

	// ErrAlreadyJoined reports that the session is already a member of the
	// group; the store treats it as success.
	ErrAlreadyJoined = errors.New("already a group member")

	// ErrNotLoggedIn reports a missing or stale session.
	ErrNotLoggedIn = errors.New("not logged in")
)

type RemoteUser struct {
	UID  string
	Name string
}

type RemoteGroup struct {
	GUID        string
	Name        string
	MemberCount int
	HasJoined   bool
	CreatedAt   time.Time
}

// RemoteMessage is the opaque message shape delivered by the chat service.
// Metadata carries the opaque bag attached at send time (AI tags live there).
type RemoteMessage struct {
	ID         string
	GUID       string
	Text       string
	SenderUID  string
	SenderName string
	SentAt     time.Time
	Metadata   map[string]any
}

// MessageHandler receives push-delivered messages. It is invoked on the
// client's own schedule and may interleave with any in-flight operation.
type MessageHandler func(RemoteMessage)

// Client is the capability set the conversation store consumes.
type Client interface {
	// Init prepares the connection. Safe to call more than once.
	Init(ctx context.Context) error

	// LoggedInUser returns the current session, or (nil, nil) when none exists.
	LoggedInUser(ctx context.Context) (*RemoteUser, error)
	UserExists(ctx context.Context, uid string) (bool, error)
	CreateUser(ctx context.Context, uid, name string) error
	Login(ctx context.Context, uid string) (*RemoteUser, error)
	Logout(ctx context.Context) error

	CreateGroup(ctx context.Context, guid, name string) (*RemoteGroup, error)
	JoinGroup(ctx context.Context, guid string) error
	ListPublicGroups(ctx context.Context, limit int) ([]RemoteGroup, error)
	SearchGroups(ctx context.Context, term string, limit int) ([]RemoteGroup, error)
	ListJoinedGroups(ctx context.Context, limit int) ([]RemoteGroup, error)

	SendGroupMessage(ctx context.Context, guid, text string, metadata map[string]any) (*RemoteMessage, error)
	FetchPreviousMessages(ctx context.Context, guid string, limit int) ([]RemoteMessage, error)

	// AddMessageListener registers a push subscription under id, replacing
	// any prior registration with the same id.
	AddMessageListener(id string, fn MessageHandler)
	RemoveMessageListener(id string)
}
