package store

import (
	"log/slog"
	"sync"

	"aichat-backend/internal/ai"
	"aichat-backend/internal/baas"
	"aichat-backend/internal/models"
)

// ClientFactory produces a fresh chat client. Each store owns its own client
// because one client holds at most one authenticated session.
type ClientFactory func() baas.Client

// Registry hands out one Store per canonical account key. Stores live for
// the lifetime of the process.
type Registry struct {
	factory  ClientFactory
	ai       ai.Responder
	cache    *Cache
	log      *slog.Logger
	pageSize int

	// notify fans store events out to the websocket hub, tagged with the
	// owning account.
	notify func(accountKey string, ev models.Event)

	mu     sync.Mutex
	stores map[string]*Store
}

type RegistryOptions struct {
	Factory  ClientFactory
	AI       ai.Responder
	Cache    *Cache
	Log      *slog.Logger
	PageSize int
	Notify   func(accountKey string, ev models.Event)
}

func NewRegistry(opts RegistryOptions) *Registry {
	if opts.Log == nil {
		opts.Log = slog.Default()
	}
	return &Registry{
		factory:  opts.Factory,
		ai:       opts.AI,
		cache:    opts.Cache,
		log:      opts.Log,
		pageSize: opts.PageSize,
		notify:   opts.Notify,
		stores:   make(map[string]*Store),
	}
}

// GetOrCreate returns the store for accountKey, creating it on first use.
func (r *Registry) GetOrCreate(accountKey string) *Store {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.stores[accountKey]; ok {
		return s
	}

	s := New(Options{
		Chat:      r.factory(),
		AI:        r.ai,
		Cache:     r.cache,
		Namespace: "chat-storage:" + accountKey,
		Log:       r.log.With("account", accountKey),
		PageSize:  r.pageSize,
	})
	if r.notify != nil {
		key := accountKey
		s.SetNotifier(func(ev models.Event) {
			r.notify(key, ev)
		})
	}
	r.stores[accountKey] = s
	return s
}

// Get returns the store for accountKey if one exists.
func (r *Registry) Get(accountKey string) (*Store, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.stores[accountKey]
	return s, ok
}
