package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"agentflow/internal/game"
	"agentflow/internal/platform"
	"agentflow/internal/store"
)

// BridgeFactory returns the host capability for a user's session.
type BridgeFactory func(userID string) platform.Bridge

// Manager hosts at most one live Session per user.
type Manager struct {
	engine  *game.Engine
	store   store.Store
	bridges BridgeFactory
	log     *slog.Logger
	opts    Options

	mu       sync.Mutex
	root     context.Context
	sessions map[string]*Session
}

func NewManager(engine *game.Engine, st store.Store, bridges BridgeFactory, logger *slog.Logger, opts Options) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if bridges == nil {
		bridges = func(string) platform.Bridge { return platform.Nop{} }
	}
	return &Manager{
		engine:   engine,
		store:    st,
		bridges:  bridges,
		log:      logger,
		opts:     opts.withDefaults(),
		root:     context.Background(),
		sessions: map[string]*Session{},
	}
}

// Get returns the live session for userID, hydrating it from the store on
// first use. A missing or corrupt save starts a fresh game; any other load
// error is returned so a good save is never overwritten. The store is read
// without holding the manager lock.
func (m *Manager) Get(ctx context.Context, userID string, profile *game.Profile) (*Session, error) {
	if s, ok := m.live(userID, profile); ok {
		return s, nil
	}

	bridge := m.bridges(userID)
	state, err := m.hydrate(ctx, userID, bridge)
	if err != nil {
		return nil, err
	}
	if profile != nil {
		state.Meta.User = profile
	}

	m.mu.Lock()
	if s, ok := m.sessions[userID]; ok {
		// Another request hydrated the same user first; its session wins.
		m.mu.Unlock()
		resume(s, profile)
		return s, nil
	}
	report, events := m.engine.CatchUp(state, m.opts.Now())
	s := New(userID, state, m.engine, m.store, bridge, m.log, m.opts)
	s.Start(m.root)
	m.sessions[userID] = s
	m.mu.Unlock()

	if report.Earned > 0 {
		m.log.Info("offline earnings credited", "user_id", userID, "earned", report.Earned, "credited", report.Credit.String())
	}
	s.dispatch(events)
	return s, nil
}

func (m *Manager) live(userID string, profile *game.Profile) (*Session, bool) {
	m.mu.Lock()
	s, ok := m.sessions[userID]
	m.mu.Unlock()
	if ok {
		resume(s, profile)
	}
	return s, ok
}

func resume(s *Session, profile *game.Profile) {
	s.Touch()
	if profile != nil {
		s.mu.Lock()
		s.state.Meta.User = profile
		s.mu.Unlock()
	}
}

func (m *Manager) hydrate(ctx context.Context, userID string, bridge platform.Bridge) (*game.GameState, error) {
	state, err := m.store.Load(ctx, userID)
	switch {
	case err == nil:
		return state, nil
	case errors.Is(err, store.ErrNotFound):
		if cloud, ok := m.fromCloud(ctx, userID, bridge); ok {
			return cloud, nil
		}
		return game.NewState(m.opts.Now()), nil
	case errors.Is(err, store.ErrCorrupt):
		m.log.Warn("corrupt save replaced with fresh state", "user_id", userID, "err", err)
		return game.NewState(m.opts.Now()), nil
	default:
		return nil, fmt.Errorf("load session %s: %w", userID, err)
	}
}

// fromCloud recovers a save the host mirrored when the server has none, e.g.
// after a store migration.
func (m *Manager) fromCloud(ctx context.Context, userID string, bridge platform.Bridge) (*game.GameState, bool) {
	raw, err := bridge.CloudGet(ctx, CloudKey)
	if err != nil {
		if !errors.Is(err, platform.ErrKeyNotFound) {
			m.log.Warn("cloud save unavailable", "user_id", userID, "err", err)
		}
		return nil, false
	}
	state, err := store.DecodeState([]byte(raw))
	if err != nil {
		m.log.Warn("cloud save ignored", "user_id", userID, "err", err)
		return nil, false
	}
	m.log.Info("session restored from cloud save", "user_id", userID)
	return state, true
}

// Lookup returns the live session without hydrating one.
func (m *Manager) Lookup(userID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[userID]
	return s, ok
}

func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Run reaps idle sessions until ctx ends, then closes every session.
func (m *Manager) Run(ctx context.Context) error {
	m.mu.Lock()
	m.root = ctx
	m.mu.Unlock()

	every := m.opts.IdleTimeout / 4
	if every < time.Second {
		every = time.Second
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			return m.Shutdown(shutdownCtx)
		case <-ticker.C:
			m.ReapIdle(context.Background())
		}
	}
}

// ReapIdle closes sessions untouched for longer than IdleTimeout.
func (m *Manager) ReapIdle(ctx context.Context) int {
	now := m.opts.Now()
	var idle []*Session
	m.mu.Lock()
	for id, s := range m.sessions {
		if s.idleSince(now) >= m.opts.IdleTimeout {
			idle = append(idle, s)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, s := range idle {
		if err := s.Close(ctx); err != nil {
			m.log.Warn("close idle session failed", "user_id", s.UserID(), "err", err)
		}
	}
	if len(idle) > 0 {
		m.log.Info("reaped idle sessions", "count", len(idle))
	}
	return len(idle)
}

// Shutdown closes every session, flushing its final state.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	all := make([]*Session, 0, len(m.sessions))
	for id, s := range m.sessions {
		all = append(all, s)
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	var errs []error
	for _, s := range all {
		if err := s.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", s.UserID(), err))
		}
	}
	return errors.Join(errs...)
}
