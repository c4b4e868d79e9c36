package session

import (
	"time"

	"github.com/park285/chess-arena/internal/engine"
	"github.com/park285/chess-arena/pkg/protocol"
)

// Status represents the session lifecycle. completed is absorbing.
type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
)

// Outcome strings carried in game_over events.
const (
	OutcomeWhiteWin = string(engine.WhiteWin)
	OutcomeBlackWin = string(engine.BlackWin)
	OutcomeDraw     = string(engine.Draw)
	OutcomeAborted  = "aborted"
)

// Termination methods the session assigns itself; rule-engine methods
// (checkmate, stalemate, ...) come from the engine verdict.
const (
	MethodResignation = "resignation"
	MethodDisconnect  = "disconnect"
	MethodInternal    = "internal_fault"
)

// Validation errors resolved locally; none of them mutate session state.
// ErrInternal is the exception: it reports that the engine lost consistency
// and the caller must abort the session.
var (
	ErrGameOver     = staticErr("game has already ended")
	ErrNotYourTurn  = staticErr("not your turn")
	ErrIllegalMove  = staticErr("illegal move")
	ErrEmptyMove    = staticErr("move cannot be empty")
	ErrNotInSession = staticErr("you are not in this game")
	ErrInternal     = staticErr("internal engine fault")
)

type staticErr string

func (e staticErr) Error() string { return string(e) }

// Match is the rule-engine capability a session consumes: validate and apply
// a move against the current position, report the resulting verdict or
// reject it.
type Match interface {
	Apply(move string) (*engine.Verdict, error)
	Turn() protocol.Color
	FEN() string
}

// Sender delivers an outbound event to the identity's live connection, if
// any. Implementations must not block on the peer; delivery order per
// identity must follow call order.
type Sender interface {
	Send(identity string, v any)
}

// Recorder receives accepted moves and final results for durable append.
// Failures are the recorder's problem; game state never depends on it.
type Recorder interface {
	RecordMove(gameID, identity string, number int, uci, san string)
	RecordResult(gameID, whiteID, blackID, outcome, method string, moves []string, startedAt, endedAt time.Time)
}
