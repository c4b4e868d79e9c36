package session

import (
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/park285/chess-arena/internal/engine"
	"github.com/park285/chess-arena/internal/obslog"
	"github.com/park285/chess-arena/internal/replay"
	"github.com/park285/chess-arena/pkg/protocol"
)

// Session is the authoritative record of one two-player game. Every state
// mutation happens under its single mutex, so at most one move is processed
// at a time and events reach both players in moveLog order.
type Session struct {
	id    string
	white string
	black string

	mu      sync.Mutex
	match   Match
	moveLog []string
	status  Status
	outcome string
	method  string

	startedAt time.Time
	endedAt   time.Time

	disconnected map[string]bool
	graceGen     map[string]int
	graceTimers  map[string]*time.Timer
	grace        time.Duration

	sender     Sender
	recorder   Recorder
	onComplete func(*Session)
}

// Config carries the immutable wiring of a new session.
type Config struct {
	ID    string
	White string
	Black string
	Match Match

	Sender   Sender
	Recorder Recorder

	// Grace is the disconnect window before a forfeit. Zero disables the
	// forfeit path (used by tests that drive time manually).
	Grace time.Duration

	// OnComplete is invoked once, outside the session lock, after the
	// session reaches completed.
	OnComplete func(*Session)
}

func New(cfg Config) *Session {
	return &Session{
		id:           cfg.ID,
		white:        cfg.White,
		black:        cfg.Black,
		match:        cfg.Match,
		status:       StatusActive,
		startedAt:    time.Now(),
		disconnected: make(map[string]bool),
		graceGen:     make(map[string]int),
		graceTimers:  make(map[string]*time.Timer),
		grace:        cfg.Grace,
		sender:       cfg.Sender,
		recorder:     cfg.Recorder,
		onComplete:   cfg.OnComplete,
	}
}

func (s *Session) ID() string { return s.id }

// Players returns the immutable color bindings.
func (s *Session) Players() (white, black string) { return s.white, s.black }

// ColorOf reports identity's bound color.
func (s *Session) ColorOf(identity string) (protocol.Color, bool) {
	switch identity {
	case s.white:
		return protocol.White, true
	case s.black:
		return protocol.Black, true
	}
	return "", false
}

func (s *Session) opponent(identity string) string {
	if identity == s.white {
		return s.black
	}
	return s.white
}

// Submit validates and applies one move. Rejections leave state, log, and
// position untouched; the caller maps the sentinel error to an error event
// for the submitter only.
func (s *Session) Submit(identity, move string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != StatusActive {
		return ErrGameOver
	}
	color, ok := s.ColorOf(identity)
	if !ok {
		return ErrNotInSession
	}
	if strings.TrimSpace(move) == "" {
		return ErrEmptyMove
	}
	if s.match.Turn() != color {
		return ErrNotYourTurn
	}

	v, err := s.match.Apply(move)
	if err != nil {
		if errors.Is(err, engine.ErrFault) {
			return ErrInternal
		}
		return ErrIllegalMove
	}

	s.moveLog = append(s.moveLog, v.UCI)
	if s.recorder != nil {
		s.recorder.RecordMove(s.id, identity, len(s.moveLog), v.UCI, v.SAN)
	}

	obslog.L().Info("session_move",
		zap.String("game_id", s.id),
		zap.String("identity", identity),
		zap.String("uci", v.UCI),
		zap.Int("ply", len(s.moveLog)),
	)

	if v.Outcome != engine.NoOutcome {
		s.completeLocked(string(v.Outcome), v.Method)
		return nil
	}

	ev := protocol.Move{Type: protocol.TypeMove, Move: v.UCI}
	s.sender.Send(s.white, ev)
	s.sender.Send(s.black, ev)
	return nil
}

// Resign ends the game in the opponent's favor.
func (s *Session) Resign(identity string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != StatusActive {
		return ErrGameOver
	}
	color, ok := s.ColorOf(identity)
	if !ok {
		return ErrNotInSession
	}

	outcome := OutcomeWhiteWin
	if color == protocol.White {
		outcome = OutcomeBlackWin
	}
	obslog.L().Info("session_resign", zap.String("game_id", s.id), zap.String("identity", identity))
	s.completeLocked(outcome, MethodResignation)
	return nil
}

// HandleDisconnect starts the forfeit grace window for identity. If the
// identity reconnects first the window is void; otherwise the remaining
// player wins by disconnect.
func (s *Session) HandleDisconnect(identity string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != StatusActive {
		return
	}
	if _, ok := s.ColorOf(identity); !ok {
		return
	}

	s.graceGen[identity]++
	gen := s.graceGen[identity]
	s.disconnected[identity] = true
	if t := s.graceTimers[identity]; t != nil {
		t.Stop()
	}
	if s.grace <= 0 {
		return
	}
	s.graceTimers[identity] = time.AfterFunc(s.grace, func() {
		s.forfeitIfStillGone(identity, gen)
	})
	obslog.L().Info("session_grace_start",
		zap.String("game_id", s.id),
		zap.String("identity", identity),
		zap.Duration("grace", s.grace),
	)
}

// ReconnectAndReplay rebinds identity's transport and emits the catch-up
// event in one critical section. bind runs under the session lock, so a
// concurrent move broadcast either finishes before the new connection exists
// or queues behind the replay; the new connection can never see a live move
// ahead of board_replay. Any pending forfeit is voided. When the session
// already completed, the final result is delivered instead of a replay.
func (s *Session) ReconnectAndReplay(identity string, bind func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	bind()
	if _, ok := s.ColorOf(identity); !ok {
		return
	}
	s.graceGen[identity]++
	s.disconnected[identity] = false
	if t := s.graceTimers[identity]; t != nil {
		t.Stop()
		delete(s.graceTimers, identity)
	}

	if s.status != StatusActive {
		s.sender.Send(identity, protocol.GameOver{Type: protocol.TypeGameOver, Outcome: s.outcome, Method: s.method})
		return
	}
	s.sender.Send(identity, protocol.BoardReplay{
		Type:  protocol.TypeBoardReplay,
		Moves: replay.Project(s.moveLog),
	})
}

func (s *Session) forfeitIfStillGone(identity string, gen int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != StatusActive {
		return
	}
	if !s.disconnected[identity] || s.graceGen[identity] != gen {
		return
	}

	outcome := OutcomeWhiteWin
	if identity == s.white {
		outcome = OutcomeBlackWin
	}
	obslog.L().Info("session_forfeit",
		zap.String("game_id", s.id),
		zap.String("identity", identity),
	)
	s.completeLocked(outcome, MethodDisconnect)
}

// Abort force-completes the session after an unrecoverable internal fault.
// An inconsistent authoritative position cannot be safely continued.
func (s *Session) Abort() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.abortLocked()
}

func (s *Session) abortLocked() {
	if s.status != StatusActive {
		return
	}
	obslog.L().Error("session_abort", zap.String("game_id", s.id))
	ev := protocol.Error{Type: protocol.TypeError, Message: "internal error, game aborted"}
	s.sender.Send(s.white, ev)
	s.sender.Send(s.black, ev)
	s.completeLocked(OutcomeAborted, MethodInternal)
}

// completeLocked performs the single transition to completed. Callers hold
// s.mu. The game_over broadcast happens exactly once; the status guard in
// every caller makes re-entry impossible.
func (s *Session) completeLocked(outcome, method string) {
	s.status = StatusCompleted
	s.outcome = outcome
	s.method = method
	s.endedAt = time.Now()

	for id, t := range s.graceTimers {
		t.Stop()
		delete(s.graceTimers, id)
	}
	s.graceGen[s.white]++
	s.graceGen[s.black]++

	ev := protocol.GameOver{Type: protocol.TypeGameOver, Outcome: outcome, Method: method}
	s.sender.Send(s.white, ev)
	s.sender.Send(s.black, ev)

	if s.recorder != nil {
		moves := append([]string(nil), s.moveLog...)
		s.recorder.RecordResult(s.id, s.white, s.black, outcome, method, moves, s.startedAt, s.endedAt)
	}

	obslog.L().Info("session_complete",
		zap.String("game_id", s.id),
		zap.String("outcome", outcome),
		zap.String("method", method),
		zap.Int("plies", len(s.moveLog)),
	)

	if s.onComplete != nil {
		go s.onComplete(s)
	}
}

// MoveLog returns a copy of the accepted-move log in play order.
func (s *Session) MoveLog() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.moveLog...)
}

// FEN returns the current authoritative position.
func (s *Session) FEN() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.match.FEN()
}

// Status returns the lifecycle state.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// IsActive reports whether moves are still accepted.
func (s *Session) IsActive() bool {
	return s.Status() == StatusActive
}

// Result returns the assigned outcome and method, empty while active.
func (s *Session) Result() (outcome, method string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.outcome, s.method
}

