// Package session owns the per-dashboard measurement stores. Each session
// gets its own store, which lives until it is closed or sits idle longer than
// the configured timeout.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"cementqa/internal/measurement"
)

var (
	// ErrSessionNotFound is returned for unknown or expired session ids
	ErrSessionNotFound = errors.New("session not found")
	// ErrTooManySessions is returned when the open session limit is reached
	ErrTooManySessions = errors.New("too many open sessions")
)

// Options configures a Manager
type Options struct {
	IdleTimeout   time.Duration
	SweepInterval time.Duration
	MaxSessions   int
}

// DefaultOptions returns the production defaults
func DefaultOptions() Options {
	return Options{
		IdleTimeout:   2 * time.Hour,
		SweepInterval: time.Minute,
		MaxSessions:   100,
	}
}

// Info describes an open session
type Info struct {
	ID         string    `json:"id"`
	CreatedAt  time.Time `json:"created_at"`
	LastAccess time.Time `json:"last_access"`
	Records    int       `json:"records"`
}

type entry struct {
	store      *measurement.Store
	createdAt  time.Time
	lastAccess time.Time
}

// Manager tracks open sessions and their stores.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*entry
	opts     Options
	logger   *slog.Logger
	now      func() time.Time

	// onExpire is called outside the lock for every swept session
	onExpire func(id string, records int)
}

// NewManager creates a session manager
func NewManager(opts Options, logger *slog.Logger) *Manager {
	def := DefaultOptions()
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = def.IdleTimeout
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = def.SweepInterval
	}
	if opts.MaxSessions <= 0 {
		opts.MaxSessions = def.MaxSessions
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		sessions: make(map[string]*entry),
		opts:     opts,
		logger:   logger.With(slog.String("component", "session_manager")),
		now:      time.Now,
	}
}

// OnExpire registers a callback invoked for each session removed by Sweep.
func (m *Manager) OnExpire(fn func(id string, records int)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onExpire = fn
}

// Open creates a session with a fresh, empty store.
func (m *Manager) Open() (string, *measurement.Store, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.sessions) >= m.opts.MaxSessions {
		return "", nil, ErrTooManySessions
	}

	id := uuid.NewString()
	now := m.now()
	e := &entry{
		store:      measurement.NewStore(),
		createdAt:  now,
		lastAccess: now,
	}
	m.sessions[id] = e

	m.logger.Debug("session opened",
		slog.String("session_id", id),
		slog.Int("open_sessions", len(m.sessions)))
	return id, e.store, nil
}

// Get returns the store of a session and marks it as used.
// A session found idle past the timeout is removed as if swept.
func (m *Manager) Get(id string) (*measurement.Store, error) {
	m.mu.Lock()
	e, ok := m.sessions[id]
	if !ok {
		m.mu.Unlock()
		return nil, ErrSessionNotFound
	}
	now := m.now()
	if now.Sub(e.lastAccess) > m.opts.IdleTimeout {
		delete(m.sessions, id)
		onExpire := m.onExpire
		m.mu.Unlock()

		records := e.store.Len()
		m.logger.Info("session expired",
			slog.String("session_id", id),
			slog.Int("records", records))
		if onExpire != nil {
			onExpire(id, records)
		}
		return nil, ErrSessionNotFound
	}
	e.lastAccess = now
	m.mu.Unlock()
	return e.store, nil
}

// Close drops a session and its records.
func (m *Manager) Close(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[id]; !ok {
		return ErrSessionNotFound
	}
	delete(m.sessions, id)

	m.logger.Debug("session closed", slog.String("session_id", id))
	return nil
}

// Len returns the number of open sessions
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// List returns a description of every open session
func (m *Manager) List() []Info {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Info, 0, len(m.sessions))
	for id, e := range m.sessions {
		out = append(out, Info{
			ID:         id,
			CreatedAt:  e.createdAt,
			LastAccess: e.lastAccess,
			Records:    e.store.Len(),
		})
	}
	return out
}

// Sweep closes every session idle for longer than the idle timeout as of now
// and returns how many were removed.
func (m *Manager) Sweep(now time.Time) int {
	type expired struct {
		id      string
		records int
	}

	m.mu.Lock()
	var gone []expired
	for id, e := range m.sessions {
		if now.Sub(e.lastAccess) > m.opts.IdleTimeout {
			gone = append(gone, expired{id: id, records: e.store.Len()})
			delete(m.sessions, id)
		}
	}
	remaining := len(m.sessions)
	onExpire := m.onExpire
	m.mu.Unlock()

	for _, g := range gone {
		m.logger.Info("session expired",
			slog.String("session_id", g.id),
			slog.Int("records", g.records))
		if onExpire != nil {
			onExpire(g.id, g.records)
		}
	}
	if len(gone) > 0 {
		m.logger.Debug("session sweep finished",
			slog.Int("expired", len(gone)),
			slog.Int("open_sessions", remaining))
	}
	return len(gone)
}

// Run sweeps expired sessions every sweep interval until ctx is done.
func (m *Manager) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.opts.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.Sweep(m.now())
		case <-ctx.Done():
			return nil
		}
	}
}
