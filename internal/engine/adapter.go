package engine

import (
	"errors"
	"fmt"
	"strings"

	nchess "github.com/corentings/chess/v2"

	"github.com/park285/chess-arena/pkg/protocol"
)

// ErrIllegalMove covers both unparseable notation and moves the rules reject
// against the current position.
var ErrIllegalMove = errors.New("illegal move")

// ErrFault reports that the game state lost consistency: a move the decoder
// accepted against the current position was then refused by the engine. The
// position can no longer be trusted.
var ErrFault = errors.New("engine position fault")

// Outcome is a terminal game result as reported by the rules.
type Outcome string

const (
	NoOutcome Outcome = ""
	WhiteWin  Outcome = "white_win"
	BlackWin  Outcome = "black_win"
	Draw      Outcome = "draw"
)

// Verdict is the result of applying one accepted move.
type Verdict struct {
	UCI string
	SAN string
	FEN string

	// Outcome and Method are set only when the move ended the game
	// (checkmate, stalemate, repetition, ...).
	Outcome Outcome
	Method  string
}

// Match wraps the rule engine for a single game. The engine decides move
// legality and terminal conditions; callers own turn/identity policy.
type Match struct {
	game *nchess.Game
}

// NewMatch starts a match from the standard initial position.
func NewMatch() *Match {
	return &Match{game: nchess.NewGame()}
}

// Reconstruct rebuilds a match by applying a stored UCI move log from the
// start position. A log entry the rules reject means the log is corrupt.
func Reconstruct(moves []string) (*Match, error) {
	m := NewMatch()
	for i, mv := range moves {
		if err := m.game.PushNotationMove(mv, nchess.UCINotation{}, nil); err != nil {
			return nil, fmt.Errorf("replay move %d (%s): %w", i+1, mv, err)
		}
	}
	return m, nil
}

// Apply validates and applies a move in UCI notation, falling back to SAN.
// Returns ErrIllegalMove when the rules reject it; the position is unchanged
// in that case.
func (m *Match) Apply(move string) (*Verdict, error) {
	raw := strings.TrimSpace(move)
	if raw == "" {
		return nil, ErrIllegalMove
	}
	pos := m.game.Position()

	var uci, san string
	if mv, derr := (nchess.UCINotation{}).Decode(pos, strings.ToLower(raw)); derr == nil {
		san = nchess.AlgebraicNotation{}.Encode(pos, mv)
		if err := m.game.Move(mv, nil); err != nil {
			return nil, ErrFault
		}
		uci = strings.ToLower(raw)
	} else {
		if err := m.game.PushNotationMove(raw, nchess.AlgebraicNotation{}, nil); err != nil {
			return nil, ErrIllegalMove
		}
		last := lastMove(m.game)
		if last == nil {
			return nil, ErrIllegalMove
		}
		san = nchess.AlgebraicNotation{}.Encode(pos, last)
		uci = last.String()
	}

	v := &Verdict{UCI: uci, SAN: san, FEN: m.game.FEN()}
	switch m.game.Outcome() {
	case nchess.WhiteWon:
		v.Outcome = WhiteWin
	case nchess.BlackWon:
		v.Outcome = BlackWin
	case nchess.Draw:
		v.Outcome = Draw
	}
	if v.Outcome != NoOutcome {
		v.Method = methodToken(m.game)
	}
	return v, nil
}

// Turn reports which color moves next.
func (m *Match) Turn() protocol.Color {
	if m.game.Position().Turn() == nchess.White {
		return protocol.White
	}
	return protocol.Black
}

// FEN returns the current position.
func (m *Match) FEN() string {
	return m.game.FEN()
}

func lastMove(game *nchess.Game) *nchess.Move {
	moves := game.Moves()
	if len(moves) == 0 {
		return nil
	}
	return moves[len(moves)-1]
}

// methodToken normalizes the engine's termination method into a lowercase
// wire token ("checkmate", "stalemate", "insufficient_material", ...).
func methodToken(game *nchess.Game) string {
	s := strings.TrimSpace(game.Method().String())
	if s == "" {
		return "unknown"
	}
	var b strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(r + ('a' - 'A'))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
