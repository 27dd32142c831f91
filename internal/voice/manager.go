package voice

import (
	"context"
	"fmt"
	"sync"

	"github.com/georgedobreff/discord-llm-bot/internal/logging"
)

// Manager enforces a single live Session per process. Joining while a
// session exists destroys the old one before the new connection is made.
type Manager struct {
	joiner Joiner
	deps   Deps

	// joinMu serializes Join and Leave so replacement is atomic.
	joinMu sync.Mutex

	mu     sync.Mutex
	active *Session
}

func NewManager(joiner Joiner, deps Deps) *Manager {
	return &Manager{joiner: joiner, deps: deps}
}

// Active returns the live session or nil.
func (m *Manager) Active() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// Join connects to a voice channel and starts a fresh session on it.
func (m *Manager) Join(ctx context.Context, guildID, channelID string) (*Session, error) {
	m.joinMu.Lock()
	defer m.joinMu.Unlock()

	m.destroyActive()

	timeout := m.deps.Timing.JoinTimeout
	if timeout <= 0 {
		timeout = DefaultTiming().JoinTimeout
	}
	joinCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	conn, err := m.joiner.Join(joinCtx, guildID, channelID)
	if err != nil {
		return nil, err
	}
	return m.attach(ctx, conn)
}

// Attach starts a session on an already opened connection, replacing any
// live session.
func (m *Manager) Attach(ctx context.Context, conn Conn) (*Session, error) {
	m.joinMu.Lock()
	defer m.joinMu.Unlock()
	m.destroyActive()
	return m.attach(ctx, conn)
}

func (m *Manager) attach(ctx context.Context, conn Conn) (*Session, error) {
	s := NewSession(conn, m.deps, m.sessionDestroyed)
	m.mu.Lock()
	m.active = s
	m.mu.Unlock()
	m.deps.Metrics.SetActiveSessions(1)

	if err := s.Start(ctx); err != nil {
		return nil, fmt.Errorf("voice: start session: %w", err)
	}
	return s, nil
}

func (m *Manager) destroyActive() {
	if old := m.Active(); old != nil {
		logging.Infow("replacing voice session", "session_id", old.ID())
		old.Destroy()
	}
}

func (m *Manager) sessionDestroyed(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == s {
		m.active = nil
		m.deps.Metrics.SetActiveSessions(0)
	}
}

// Leave destroys the live session.
func (m *Manager) Leave() error {
	m.joinMu.Lock()
	defer m.joinMu.Unlock()
	s := m.Active()
	if s == nil {
		return ErrNoSession
	}
	s.Destroy()
	return nil
}

// HandleBotVoiceState reacts to the gateway's view of the bot's own voice
// state in guildID. An empty channelID means the bot was removed from voice.
func (m *Manager) HandleBotVoiceState(guildID, channelID string) {
	s := m.Active()
	if s == nil || s.conn.GuildID() != guildID {
		return
	}
	if channelID == "" {
		logging.Infow("bot is no longer in a voice channel, ending session", "session_id", s.ID(), "guild_id", guildID)
		s.Destroy()
		return
	}
	s.SignalRecovery()
}

// Status of the live session.
func (m *Manager) Status() (Status, error) {
	s := m.Active()
	if s == nil {
		return Status{State: StateIdle}, ErrNoSession
	}
	return s.Status(), nil
}

// History returns a user's persisted voice history.
func (m *Manager) History(userID string) ([]Entry, error) {
	return m.deps.History.Load(userID)
}

// Say queues text on the live session as if it were a generated reply.
func (m *Manager) Say(text string) error {
	s := m.Active()
	if s == nil {
		return ErrNoSession
	}
	return s.Enqueue(text)
}

// Close ends the live session, if any, and waits for its goroutines.
func (m *Manager) Close() {
	s := m.Active()
	if s == nil {
		return
	}
	s.Destroy()
	s.Wait()
}
