package replay

import (
	"github.com/park285/chess-arena/internal/engine"
)

// Project returns the move list a (re)connecting client must fold, in play
// order. Pure projection: the input log is copied, never mutated.
func Project(moveLog []string) []string {
	out := make([]string, len(moveLog))
	copy(out, moveLog)
	return out
}

// Rebuild folds a move log from the initial position and returns the
// resulting FEN. Deterministic: the same log always yields the same
// position, which is what makes client-side replay safe.
func Rebuild(moves []string) (string, error) {
	m, err := engine.Reconstruct(moves)
	if err != nil {
		return "", err
	}
	return m.FEN(), nil
}
