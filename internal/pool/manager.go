// Package pool implements the bounded per-project connection manager.
// It owns every open datastore handle; all other components obtain
// handles through it.
package pool

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/starford/raido/internal/apperr"
	"github.com/starford/raido/internal/store"
	"github.com/starford/raido/internal/workspace"
)

// Resolver maps a project id to its registry entry. Satisfied by
// *workspace.Registry.
type Resolver interface {
	Project(id string) (workspace.Project, error)
}

// Status describes one pooled connection for introspection.
type Status struct {
	ProjectID    string    `json:"projectId"`
	Connected    bool      `json:"connected"`
	LastAccessed time.Time `json:"lastAccessed"`
}

type entry struct {
	projectID    string
	db           *store.DB
	lastAccessed time.Time
}

// Manager is a bounded pool of open datastore handles keyed by project
// id. At most one live handle exists per project; concurrent requests
// for an unopened project share a single open via singleflight.
//
// Eviction is lazy: it runs only when the pool is at capacity and a new
// project must be opened. Idle entries go first, then the single
// least-recently-accessed entry that is not the active project. The
// policy is best-effort; when nothing can be evicted the open still
// proceeds.
type Manager struct {
	resolver Resolver
	logger   *slog.Logger
	max      int
	idle     time.Duration

	mu      sync.Mutex
	conns   map[string]*entry
	current string

	group singleflight.Group
}

// New creates a Manager. max is the pool capacity, idle the threshold
// after which an untouched connection becomes an eviction candidate.
func New(resolver Resolver, max int, idle time.Duration, logger *slog.Logger) *Manager {
	if max <= 0 {
		max = 10
	}
	if idle <= 0 {
		idle = 5 * time.Minute
	}
	return &Manager{
		resolver: resolver,
		logger:   logger,
		max:      max,
		idle:     idle,
		conns:    make(map[string]*entry),
	}
}

// Get returns the pooled handle for projectID, opening it on first
// access. The returned handle stays owned by the pool; callers must not
// close it. Fails with apperr.ErrConnectionFailure when the project is
// unknown or its datastore cannot be opened.
func (m *Manager) Get(projectID string) (*store.DB, error) {
	m.mu.Lock()
	if e, ok := m.conns[projectID]; ok {
		e.lastAccessed = time.Now()
		m.current = projectID
		db := e.db
		m.mu.Unlock()
		return db, nil
	}
	m.mu.Unlock()

	v, err, _ := m.group.Do(projectID, func() (any, error) {
		return m.open(projectID)
	})
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	if e, ok := m.conns[projectID]; ok {
		e.lastAccessed = time.Now()
	}
	m.current = projectID
	m.mu.Unlock()
	return v.(*store.DB), nil
}

// open resolves the project path and inserts a fresh handle into the
// pool. Runs inside singleflight, so at most one open per project id is
// in flight at any time.
func (m *Manager) open(projectID string) (*store.DB, error) {
	// Another caller may have won the flight just before us.
	m.mu.Lock()
	if e, ok := m.conns[projectID]; ok {
		db := e.db
		m.mu.Unlock()
		return db, nil
	}
	m.mu.Unlock()

	proj, err := m.resolver.Project(projectID)
	if err != nil {
		return nil, fmt.Errorf("pool: unknown project %q: %w", projectID, apperr.ErrConnectionFailure)
	}

	m.mu.Lock()
	if len(m.conns) >= m.max {
		m.evictLocked()
	}
	m.mu.Unlock()

	db, err := store.Open(proj.Path)
	if err != nil {
		return nil, fmt.Errorf("pool: open datastore %s: %s: %w", proj.Path, err, apperr.ErrConnectionFailure)
	}

	m.logger.Info("pool: opened connection",
		slog.String("project", projectID),
		slog.String("path", proj.Path))

	m.mu.Lock()
	m.conns[projectID] = &entry{projectID: projectID, db: db, lastAccessed: time.Now()}
	m.mu.Unlock()
	return db, nil
}

// evictLocked frees capacity before a new open: first every entry idle
// beyond the threshold, then the LRU entry. The active project's entry
// is never evicted. Caller holds m.mu.
func (m *Manager) evictLocked() {
	now := time.Now()
	for id, e := range m.conns {
		if id == m.current {
			continue
		}
		if now.Sub(e.lastAccessed) > m.idle {
			m.closeEntryLocked(e, "idle")
		}
	}

	if len(m.conns) < m.max {
		return
	}

	var lru *entry
	for id, e := range m.conns {
		if id == m.current {
			continue
		}
		if lru == nil || e.lastAccessed.Before(lru.lastAccessed) {
			lru = e
		}
	}
	if lru != nil {
		m.closeEntryLocked(lru, "lru")
	}
}

func (m *Manager) closeEntryLocked(e *entry, reason string) {
	if err := e.db.Close(); err != nil {
		m.logger.Warn("pool: close failed",
			slog.String("project", e.projectID),
			slog.String("error", err.Error()))
	}
	delete(m.conns, e.projectID)
	m.logger.Info("pool: evicted connection",
		slog.String("project", e.projectID),
		slog.String("reason", reason))
}

// Switch opens (or touches) the project's connection and records it as
// the current project for Current callers.
func (m *Manager) Switch(projectID string) (*store.DB, error) {
	m.logger.Info("pool: switching project", slog.String("project", projectID))
	return m.Get(projectID)
}

// Current returns the handle for the current project, or
// apperr.ErrNotFound when no project has been accessed yet.
func (m *Manager) Current() (*store.DB, error) {
	m.mu.Lock()
	id := m.current
	m.mu.Unlock()
	if id == "" {
		return nil, fmt.Errorf("pool: no current project: %w", apperr.ErrNotFound)
	}
	return m.Get(id)
}

// CurrentID returns the id of the current project, or "".
func (m *Manager) CurrentID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Close releases the connection for projectID. It is a no-op when the
// project is not pooled.
func (m *Manager) Close(projectID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.conns[projectID]
	if !ok {
		return nil
	}
	m.closeEntryLocked(e, "closed")
	if m.current == projectID {
		m.current = ""
	}
	return nil
}

// CloseAll releases every pooled connection. Safe to call repeatedly;
// each handle is closed exactly once.
func (m *Manager) CloseAll() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.conns {
		if err := e.db.Close(); err != nil {
			m.logger.Warn("pool: close failed",
				slog.String("project", e.projectID),
				slog.String("error", err.Error()))
		}
	}
	m.conns = make(map[string]*entry)
	m.current = ""
	return nil
}

// IsConnected reports whether projectID has a pooled connection.
func (m *Manager) IsConnected(projectID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.conns[projectID]
	return ok
}

// Size returns the number of pooled connections.
func (m *Manager) Size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.conns)
}

// Status returns one entry per pooled connection.
func (m *Manager) Status() []Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Status, 0, len(m.conns))
	for _, e := range m.conns {
		out = append(out, Status{
			ProjectID:    e.projectID,
			Connected:    true,
			LastAccessed: e.lastAccessed,
		})
	}
	return out
}
