package session

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
)

// ExpiryCallback is invoked after the stored session has been cleared
// because the backend reported it invalid. It is how the RPC layer tells
// the rest of the program "you are logged out" without depending on it.
type ExpiryCallback func()

// Manager wraps a Store with the expiry notification contract. Storage
// failures are swallowed: a session that cannot be read is simply absent.
type Manager struct {
	store Store

	mu        sync.Mutex
	onExpired ExpiryCallback
}

// NewManager builds a Manager. The callback may be nil; the last callback
// set wins, whether here or via SetExpiryCallback.
func NewManager(store Store, onExpired ExpiryCallback) *Manager {
	return &Manager{store: store, onExpired: onExpired}
}

// SetExpiryCallback replaces the expiry callback. Only one callback is
// tracked at a time.
func (m *Manager) SetExpiryCallback(fn ExpiryCallback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onExpired = fn
}

// SessionID returns the stored session id, or "" when absent or when the
// store fails.
func (m *Manager) SessionID(ctx context.Context) string {
	sid, err := m.store.Get(ctx)
	if err != nil {
		log.Debug().Err(err).Msg("session store read failed")
		return ""
	}
	return sid
}

// Save persists the session id unconditionally, overwriting any prior value.
func (m *Manager) Save(ctx context.Context, sid string) {
	if err := m.store.Save(ctx, sid); err != nil {
		log.Debug().Err(err).Msg("session store write failed")
	}
}

// Clear removes the persisted session id. Idempotent.
func (m *Manager) Clear(ctx context.Context) {
	if err := m.store.Clear(ctx); err != nil {
		log.Debug().Err(err).Msg("session store clear failed")
	}
}

// Expire clears the persisted session and then notifies the registered
// callback, if any.
func (m *Manager) Expire(ctx context.Context) {
	log.Debug().Msg("session expired, clearing local state")
	m.Clear(ctx)

	m.mu.Lock()
	fn := m.onExpired
	m.mu.Unlock()

	if fn != nil {
		fn()
	}
}
