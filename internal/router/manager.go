package router

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/park285/chess-arena/internal/engine"
	"github.com/park285/chess-arena/internal/matchqueue"
	"github.com/park285/chess-arena/internal/msgcat"
	"github.com/park285/chess-arena/internal/obslog"
	"github.com/park285/chess-arena/internal/registry"
	"github.com/park285/chess-arena/internal/session"
	"github.com/park285/chess-arena/pkg/protocol"
)

// Manager routes inbound messages from connections to the matchmaking queue
// or the owning session, and fans session events back out through the
// registry. It owns the identity→session mapping.
type Manager struct {
	registry *registry.Registry
	queue    *matchqueue.Queue
	cat      *msgcat.Catalog
	recorder session.Recorder

	grace     time.Duration
	retention time.Duration
	maxGames  int

	mu       sync.Mutex
	sessions map[string]*session.Session
}

type Config struct {
	Registry *registry.Registry
	Queue    *matchqueue.Queue
	Catalog  *msgcat.Catalog
	// Recorder may be nil when no durable append backend is configured.
	Recorder session.Recorder

	DisconnectGrace  time.Duration
	SessionRetention time.Duration
	MaxGames         int
}

func NewManager(cfg Config) *Manager {
	return &Manager{
		registry:  cfg.Registry,
		queue:     cfg.Queue,
		cat:       cfg.Catalog,
		recorder:  cfg.Recorder,
		grace:     cfg.DisconnectGrace,
		retention: cfg.SessionRetention,
		maxGames:  cfg.MaxGames,
		sessions:  make(map[string]*session.Session),
	}
}

// Send implements session.Sender: deliver to the identity's live connection
// if one is registered. A missing connection is not an error — the player
// may be inside their disconnect grace window.
func (m *Manager) Send(identity string, v any) {
	if c := m.registry.Lookup(identity); c != nil {
		_ = c.Send(v)
	}
}

// Route dispatches one raw client message. Validation problems never touch
// session state; the sender alone sees the error event.
func (m *Manager) Route(identity string, raw []byte) {
	var msg protocol.Incoming
	if err := json.Unmarshal(raw, &msg); err != nil {
		m.sendError(identity, "error.malformed")
		return
	}

	switch msg.Type {
	case protocol.TypeInitGame:
		m.handleInitGame(identity)
	case protocol.TypeMove:
		m.handleMove(identity, msg.Move)
	case protocol.TypeResign:
		m.handleResign(identity)
	default:
		m.sendError(identity, "error.unknown_type")
	}
}

func (m *Manager) handleInitGame(identity string) {
	m.mu.Lock()
	if s, ok := m.sessions[identity]; ok {
		if s.IsActive() {
			m.mu.Unlock()
			m.sendError(identity, "error.already_in_game")
			return
		}
		// stale mapping from a completed game not yet evicted
		delete(m.sessions, identity)
	}
	if m.maxGames > 0 && m.activeGamesLocked() >= m.maxGames {
		m.mu.Unlock()
		m.sendError(identity, "error.capacity")
		return
	}
	m.mu.Unlock()

	res, err := m.queue.Enqueue(identity)
	if err != nil {
		m.sendError(identity, "error.already_waiting")
		return
	}
	if !res.Paired {
		m.Send(identity, protocol.Waiting{
			Type:    protocol.TypeWaiting,
			Message: m.cat.Text("notice.waiting"),
		})
		return
	}

	s := session.New(session.Config{
		ID:         uuid.New().String(),
		White:      res.White,
		Black:      res.Black,
		Match:      engine.NewMatch(),
		Sender:     m,
		Recorder:   m.recorder,
		Grace:      m.grace,
		OnComplete: m.onSessionComplete,
	})

	m.mu.Lock()
	m.sessions[res.White] = s
	m.sessions[res.Black] = s
	m.mu.Unlock()

	m.Send(res.White, protocol.GameStart{Type: protocol.TypeGameStart, Color: protocol.White, GameID: s.ID()})
	m.Send(res.Black, protocol.GameStart{Type: protocol.TypeGameStart, Color: protocol.Black, GameID: s.ID()})

	obslog.L().Info("router_game_start",
		zap.String("game_id", s.ID()),
		zap.String("white", res.White),
		zap.String("black", res.Black),
	)
}

func (m *Manager) handleMove(identity, move string) {
	s := m.sessionOf(identity)
	if s == nil {
		m.sendError(identity, "error.not_in_game")
		return
	}
	if err := s.Submit(identity, move); err != nil {
		if errors.Is(err, session.ErrInternal) {
			obslog.L().Error("router_session_fault",
				zap.String("game_id", s.ID()),
				zap.String("identity", identity),
			)
			s.Abort()
			return
		}
		m.sendError(identity, moveErrorKey(err))
	}
}

func (m *Manager) handleResign(identity string) {
	s := m.sessionOf(identity)
	if s == nil {
		m.sendError(identity, "error.not_in_game")
		return
	}
	if err := s.Resign(identity); err != nil {
		m.sendError(identity, moveErrorKey(err))
	}
}

func moveErrorKey(err error) string {
	switch err {
	case session.ErrNotYourTurn:
		return "error.not_your_turn"
	case session.ErrIllegalMove:
		return "error.illegal_move"
	case session.ErrEmptyMove:
		return "error.empty_move"
	case session.ErrGameOver:
		return "error.game_over"
	case session.ErrNotInSession:
		return "error.not_in_game"
	}
	return "error.internal"
}

// Register binds conn as its identity's live connection. When the identity
// owns a session, the registry rebind and the catch-up event go through the
// session's critical section together: a concurrent move broadcast either
// lands on the old connection or queues behind the board_replay, never ahead
// of it. A session that completed while the player was away re-delivers its
// game_over and the mapping is dropped.
func (m *Manager) Register(conn registry.Conn) (evicted bool) {
	identity := conn.Identity()
	s := m.sessionOf(identity)
	if s == nil {
		return m.registry.Register(conn)
	}

	s.ReconnectAndReplay(identity, func() {
		evicted = m.registry.Register(conn)
	})
	if s.IsActive() {
		obslog.L().Info("router_replay",
			zap.String("game_id", s.ID()),
			zap.String("identity", identity),
		)
		return evicted
	}

	m.mu.Lock()
	if m.sessions[identity] == s {
		delete(m.sessions, identity)
	}
	m.mu.Unlock()
	return evicted
}

// HandleDisconnect runs when an identity's current connection is gone (not
// superseded). Waiting queue entries are dropped; active sessions start
// their grace window.
func (m *Manager) HandleDisconnect(identity string) {
	m.queue.DequeueOnDisconnect(identity)
	if s := m.sessionOf(identity); s != nil && s.IsActive() {
		s.HandleDisconnect(identity)
	}
}

// onSessionComplete schedules eviction of the completed session. When both
// players still hold live connections the game_over events are already in
// their egress queues and the mapping can go immediately; otherwise it is
// retained so an absent player can reconnect and learn the result.
func (m *Manager) onSessionComplete(s *session.Session) {
	white, black := s.Players()
	if m.registry.Lookup(white) != nil && m.registry.Lookup(black) != nil {
		m.evict(s)
		return
	}
	if m.retention <= 0 {
		m.evict(s)
		return
	}
	time.AfterFunc(m.retention, func() { m.evict(s) })
}

func (m *Manager) evict(s *session.Session) {
	white, black := s.Players()
	m.mu.Lock()
	if m.sessions[white] == s {
		delete(m.sessions, white)
	}
	if m.sessions[black] == s {
		delete(m.sessions, black)
	}
	m.mu.Unlock()
	obslog.L().Info("router_session_evict", zap.String("game_id", s.ID()))
}

func (m *Manager) sessionOf(identity string) *session.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[identity]
}

func (m *Manager) sendError(identity, key string) {
	m.Send(identity, protocol.Error{Type: protocol.TypeError, Message: m.cat.Text(key)})
}

func (m *Manager) activeGamesLocked() int {
	seen := make(map[*session.Session]struct{})
	for _, s := range m.sessions {
		if s.IsActive() {
			seen[s] = struct{}{}
		}
	}
	return len(seen)
}

// ActiveGames counts distinct sessions still accepting moves.
func (m *Manager) ActiveGames() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.activeGamesLocked()
}

// Waiting returns the number of identities queued for an opponent.
func (m *Manager) Waiting() int {
	return m.queue.Len()
}
