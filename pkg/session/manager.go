package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkoukk/tiktoken-go"
)

// Defaults for the manager configuration.
const (
	DefaultMaxTurns      = 10
	DefaultIdleTimeout   = 30 * time.Minute
	DefaultSweepInterval = time.Minute

	// contextEncoding is the tiktoken encoding used for the optional
	// token budget. cl100k_base covers the bundled chat models.
	contextEncoding = "cl100k_base"
)

// Config holds manager configuration.
// Use functional options (WithXxx) to set these values.
type Config struct {
	// MaxTurns bounds the context window handed to the AI provider.
	MaxTurns int

	// TokenBudget optionally bounds the context by token count on top
	// of MaxTurns. Zero disables token counting.
	TokenBudget int

	// IdleTimeout is how long a session may sit idle before the sweep
	// evicts it.
	IdleTimeout time.Duration

	// SweepInterval is how often the background sweep runs.
	SweepInterval time.Duration

	// Store persists turns. Defaults to an in-memory store.
	Store Store

	// Logger is the structured logger for the manager.
	Logger *slog.Logger
}

// Option is a functional option for configuring the manager.
type Option func(*Config)

// WithMaxTurns bounds the AI context window by turn count.
func WithMaxTurns(n int) Option {
	return func(c *Config) { c.MaxTurns = n }
}

// WithTokenBudget bounds the AI context window by token count.
func WithTokenBudget(n int) Option {
	return func(c *Config) { c.TokenBudget = n }
}

// WithIdleTimeout sets the idle window after which sessions are evicted.
func WithIdleTimeout(d time.Duration) Option {
	return func(c *Config) { c.IdleTimeout = d }
}

// WithSweepInterval sets how often the eviction sweep runs.
func WithSweepInterval(d time.Duration) Option {
	return func(c *Config) { c.SweepInterval = d }
}

// WithStore sets the turn persistence store.
func WithStore(store Store) Option {
	return func(c *Config) { c.Store = store }
}

// WithLogger sets the structured logger for the manager.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) { c.Logger = logger }
}

// DefaultConfig returns sensible default configuration.
func DefaultConfig() *Config {
	return &Config{
		MaxTurns:      DefaultMaxTurns,
		IdleTimeout:   DefaultIdleTimeout,
		SweepInterval: DefaultSweepInterval,
		Logger:        slog.Default(),
	}
}

// state for one live session. History and turn-taking state are guarded
// by the session's own lock so one session's turn never blocks another.
type sessionState struct {
	id        string
	createdAt time.Time

	mu         sync.Mutex
	turns      []Turn
	state      State
	lastActive time.Time
}

// Manager owns the session table. All mutation goes through it.
type Manager struct {
	cfg    *Config
	store  Store
	logger *slog.Logger
	enc    *tiktoken.Tiktoken

	mu       sync.Mutex
	sessions map[string]*sessionState

	done      chan struct{}
	closeOnce sync.Once
}

// NewManager creates a session manager and starts the eviction sweep.
func NewManager(opts ...Option) *Manager {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.Store == nil {
		cfg.Store = NewMemoryStore()
	}

	m := &Manager{
		cfg:      cfg,
		store:    cfg.Store,
		logger:   cfg.Logger.With("component", "session"),
		sessions: make(map[string]*sessionState),
		done:     make(chan struct{}),
	}

	if cfg.TokenBudget > 0 {
		enc, err := tiktoken.GetEncoding(contextEncoding)
		if err != nil {
			m.logger.Warn("token budget disabled, encoding unavailable", "error", err)
		} else {
			m.enc = enc
		}
	}

	go m.sweep()
	return m
}

// GetOrCreate returns the canonical session ID, creating the session if
// needed. An empty ID gets a generated one. On first sight of an ID,
// history is hydrated from the store.
func (m *Manager) GetOrCreate(ctx context.Context, sessionID string) string {
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	m.mu.Lock()
	if _, ok := m.sessions[sessionID]; ok {
		m.mu.Unlock()
		return sessionID
	}

	now := time.Now()
	s := &sessionState{
		id:         sessionID,
		createdAt:  now,
		state:      StateIdle,
		lastActive: now,
	}
	m.sessions[sessionID] = s
	m.mu.Unlock()

	turns, err := m.store.Load(ctx, sessionID)
	if err != nil {
		m.logger.Warn("history hydration failed", "session_id", sessionID, "error", err)
		return sessionID
	}
	if len(turns) > 0 {
		s.mu.Lock()
		// A turn may have been appended while Load was in flight; stored
		// history predates it, so it goes first.
		s.turns = append(turns, s.turns...)
		s.mu.Unlock()
		m.logger.Debug("hydrated session history", "session_id", sessionID, "turns", len(turns))
	}
	return sessionID
}

// AppendTurn appends a turn to the session's history.
//
// A user turn moves the session to awaiting_reply; a second user turn
// while awaiting is rejected with ErrSessionBusy. An assistant turn
// completes the exchange and returns the session to idle.
func (m *Manager) AppendTurn(ctx context.Context, sessionID string, role Role, text string) error {
	s, ok := m.get(sessionID)
	if !ok {
		return ErrNotFound
	}

	turn := Turn{Role: role, Text: text, At: time.Now()}

	s.mu.Lock()
	if role == RoleUser && s.state == StateAwaitingReply {
		s.mu.Unlock()
		return ErrSessionBusy
	}
	s.turns = append(s.turns, turn)
	s.lastActive = turn.At
	switch role {
	case RoleUser:
		s.state = StateAwaitingReply
	case RoleAssistant:
		s.state = StateIdle
	}
	s.mu.Unlock()

	if err := m.store.Append(ctx, sessionID, turn); err != nil {
		m.logger.Warn("turn persistence failed", "session_id", sessionID, "error", err)
	}
	return nil
}

// Abort returns an awaiting session to idle without appending a turn.
// Already-appended history is preserved. Used when reply generation
// fails after the user turn was recorded.
func (m *Manager) Abort(sessionID string) {
	s, ok := m.get(sessionID)
	if !ok {
		return
	}
	s.mu.Lock()
	s.state = StateIdle
	s.lastActive = time.Now()
	s.mu.Unlock()
}

// BuildContext returns the most recent turns in chronological order,
// bounded by the configured MaxTurns and, when a token budget is set,
// by token count with the oldest turns dropped first. The newest turn
// is always kept.
func (m *Manager) BuildContext(sessionID string) ([]Turn, error) {
	s, ok := m.get(sessionID)
	if !ok {
		return nil, ErrNotFound
	}

	s.mu.Lock()
	turns := s.turns
	if m.cfg.MaxTurns > 0 && len(turns) > m.cfg.MaxTurns {
		turns = turns[len(turns)-m.cfg.MaxTurns:]
	}
	window := make([]Turn, len(turns))
	copy(window, turns)
	s.mu.Unlock()

	if m.enc != nil && m.cfg.TokenBudget > 0 {
		window = m.trimToBudget(window)
	}
	return window, nil
}

// trimToBudget drops oldest turns until the window fits the token budget.
func (m *Manager) trimToBudget(window []Turn) []Turn {
	counts := make([]int, len(window))
	total := 0
	for i, turn := range window {
		counts[i] = len(m.enc.Encode(turn.Text, nil, nil))
		total += counts[i]
	}
	start := 0
	for start < len(window)-1 && total > m.cfg.TokenBudget {
		total -= counts[start]
		start++
	}
	return window[start:]
}

// State returns the session's turn-taking state.
func (m *Manager) State(sessionID string) (State, error) {
	s, ok := m.get(sessionID)
	if !ok {
		return "", ErrNotFound
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, nil
}

// History returns a copy of the session's full turn history.
func (m *Manager) History(sessionID string) ([]Turn, error) {
	s, ok := m.get(sessionID)
	if !ok {
		return nil, ErrNotFound
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Turn, len(s.turns))
	copy(out, s.turns)
	return out, nil
}

// Remove destroys a session and its stored history.
func (m *Manager) Remove(ctx context.Context, sessionID string) {
	m.mu.Lock()
	delete(m.sessions, sessionID)
	m.mu.Unlock()

	if err := m.store.Delete(ctx, sessionID); err != nil {
		m.logger.Warn("session delete failed", "session_id", sessionID, "error", err)
	}
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Close stops the eviction sweep and closes the store.
func (m *Manager) Close() error {
	m.closeOnce.Do(func() { close(m.done) })
	return m.store.Close()
}

func (m *Manager) get(sessionID string) (*sessionState, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	return s, ok
}

// sweep evicts idle sessions on a timer. Eviction drops the in-memory
// entry only; stored history expires on its own TTL, so a returning
// session can still hydrate.
func (m *Manager) sweep() {
	ticker := time.NewTicker(m.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			m.evictIdle()
		}
	}
}

// evictIdle removes sessions idle past the window. Sessions awaiting a
// reply are never evicted.
func (m *Manager) evictIdle() {
	cutoff := time.Now().Add(-m.cfg.IdleTimeout)

	m.mu.Lock()
	defer m.mu.Unlock()
	for id, s := range m.sessions {
		s.mu.Lock()
		evict := s.state == StateIdle && s.lastActive.Before(cutoff)
		s.mu.Unlock()
		if evict {
			delete(m.sessions, id)
			m.logger.Debug("evicted idle session", "session_id", id)
		}
	}
}
