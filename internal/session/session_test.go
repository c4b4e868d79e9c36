package session

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/park285/chess-arena/internal/engine"
	"github.com/park285/chess-arena/internal/replay"
	"github.com/park285/chess-arena/pkg/protocol"
)

type captureSender struct {
	mu     sync.Mutex
	events map[string][]any
}

func newCaptureSender() *captureSender {
	return &captureSender{events: make(map[string][]any)}
}

func (c *captureSender) Send(identity string, v any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events[identity] = append(c.events[identity], v)
}

func (c *captureSender) of(identity string) []any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]any(nil), c.events[identity]...)
}

func (c *captureSender) countGameOver(identity string) int {
	n := 0
	for _, ev := range c.of(identity) {
		if _, ok := ev.(protocol.GameOver); ok {
			n++
		}
	}
	return n
}

type captureRecorder struct {
	mu      sync.Mutex
	moves   int
	results int
}

func (r *captureRecorder) RecordMove(gameID, identity string, number int, uci, san string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.moves++
}

func (r *captureRecorder) RecordResult(gameID, whiteID, blackID, outcome, method string, moves []string, startedAt, endedAt time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results++
}

func newTestSession(t *testing.T, grace time.Duration) (*Session, *captureSender) {
	t.Helper()
	sender := newCaptureSender()
	s := New(Config{
		ID:     "g1",
		White:  "u1",
		Black:  "u2",
		Match:  engine.NewMatch(),
		Sender: sender,
		Grace:  grace,
	})
	return s, sender
}

func TestSubmitBroadcastsMove(t *testing.T) {
	s, sender := newTestSession(t, 0)

	if err := s.Submit("u1", "e2e4"); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	for _, id := range []string{"u1", "u2"} {
		evs := sender.of(id)
		if len(evs) != 1 {
			t.Fatalf("%s: expected 1 event, got %d", id, len(evs))
		}
		mv, ok := evs[0].(protocol.Move)
		if !ok || mv.Move != "e2e4" {
			t.Fatalf("%s: unexpected event %+v", id, evs[0])
		}
	}
	if got := s.MoveLog(); len(got) != 1 || got[0] != "e2e4" {
		t.Fatalf("move log: %v", got)
	}
}

func TestSubmitOutOfTurn(t *testing.T) {
	s, sender := newTestSession(t, 0)

	if err := s.Submit("u2", "e7e5"); !errors.Is(err, ErrNotYourTurn) {
		t.Fatalf("expected ErrNotYourTurn, got %v", err)
	}
	if len(s.MoveLog()) != 0 {
		t.Fatalf("rejected move appended to log")
	}
	if len(sender.of("u1")) != 0 || len(sender.of("u2")) != 0 {
		t.Fatalf("rejected move was broadcast")
	}
}

func TestSubmitValidation(t *testing.T) {
	s, _ := newTestSession(t, 0)

	if err := s.Submit("u1", "   "); !errors.Is(err, ErrEmptyMove) {
		t.Fatalf("empty move: got %v", err)
	}
	if err := s.Submit("intruder", "e2e4"); !errors.Is(err, ErrNotInSession) {
		t.Fatalf("outsider: got %v", err)
	}

	before := s.FEN()
	if err := s.Submit("u1", "e2e5"); !errors.Is(err, ErrIllegalMove) {
		t.Fatalf("illegal move: got %v", err)
	}
	if s.FEN() != before {
		t.Fatalf("illegal move mutated position")
	}
}

func TestResign(t *testing.T) {
	s, sender := newTestSession(t, 0)

	if err := s.Resign("u2"); err != nil {
		t.Fatalf("Resign: %v", err)
	}
	outcome, method := s.Result()
	if outcome != OutcomeWhiteWin || method != MethodResignation {
		t.Fatalf("result = (%s, %s)", outcome, method)
	}
	if s.IsActive() {
		t.Fatalf("session still active after resignation")
	}
	if sender.countGameOver("u1") != 1 || sender.countGameOver("u2") != 1 {
		t.Fatalf("game_over not delivered exactly once to each player")
	}

	// completed is absorbing
	if err := s.Submit("u1", "e2e4"); !errors.Is(err, ErrGameOver) {
		t.Fatalf("post-game move: got %v", err)
	}
	if err := s.Resign("u1"); !errors.Is(err, ErrGameOver) {
		t.Fatalf("post-game resign: got %v", err)
	}
	if sender.countGameOver("u1") != 1 {
		t.Fatalf("game_over broadcast more than once")
	}
}

func TestCheckmateCompletes(t *testing.T) {
	s, sender := newTestSession(t, 0)

	script := []struct{ id, mv string }{
		{"u1", "f2f3"}, {"u2", "e7e5"}, {"u1", "g2g4"}, {"u2", "d8h4"},
	}
	for _, step := range script {
		if err := s.Submit(step.id, step.mv); err != nil {
			t.Fatalf("Submit %s %s: %v", step.id, step.mv, err)
		}
	}

	outcome, method := s.Result()
	if outcome != OutcomeBlackWin || method != "checkmate" {
		t.Fatalf("result = (%s, %s)", outcome, method)
	}
	if sender.countGameOver("u1") != 1 || sender.countGameOver("u2") != 1 {
		t.Fatalf("game_over not delivered exactly once")
	}
}

func TestDisconnectForfeit(t *testing.T) {
	s, _ := newTestSession(t, 30*time.Millisecond)

	s.HandleDisconnect("u2")

	deadline := time.After(2 * time.Second)
	for s.IsActive() {
		select {
		case <-deadline:
			t.Fatalf("forfeit never fired")
		case <-time.After(10 * time.Millisecond):
		}
	}

	outcome, method := s.Result()
	if outcome != OutcomeWhiteWin || method != MethodDisconnect {
		t.Fatalf("result = (%s, %s)", outcome, method)
	}
}

func TestReconnectVoidsForfeit(t *testing.T) {
	s, _ := newTestSession(t, 30*time.Millisecond)

	s.HandleDisconnect("u2")
	s.ReconnectAndReplay("u2", func() {})

	time.Sleep(150 * time.Millisecond)
	if !s.IsActive() {
		outcome, method := s.Result()
		t.Fatalf("session forfeited despite reconnect: (%s, %s)", outcome, method)
	}
}

func TestReplayRebuildsLivePosition(t *testing.T) {
	s, sender := newTestSession(t, 0)

	script := []struct{ id, mv string }{
		{"u1", "e2e4"}, {"u2", "e7e5"}, {"u1", "g1f3"},
	}
	for _, step := range script {
		if err := s.Submit(step.id, step.mv); err != nil {
			t.Fatalf("Submit: %v", err)
		}
	}

	s.ReconnectAndReplay("u2", func() {})
	evs := sender.of("u2")
	br, ok := evs[len(evs)-1].(protocol.BoardReplay)
	if !ok {
		t.Fatalf("last event is not board_replay: %+v", evs[len(evs)-1])
	}
	if len(br.Moves) != 3 {
		t.Fatalf("replay carries %d moves", len(br.Moves))
	}

	fen, err := replay.Rebuild(br.Moves)
	if err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	if fen != s.FEN() {
		t.Fatalf("replayed position diverges from live:\nlive:   %s\nreplay: %s", s.FEN(), fen)
	}
}

// faultMatch simulates a rule engine whose decoded move is then refused,
// leaving the position untrustworthy.
type faultMatch struct{}

func (faultMatch) Apply(string) (*engine.Verdict, error) { return nil, engine.ErrFault }
func (faultMatch) Turn() protocol.Color                  { return protocol.White }
func (faultMatch) FEN() string                           { return "" }

func TestEngineFaultSurfacesAsInternal(t *testing.T) {
	sender := newCaptureSender()
	s := New(Config{ID: "g1", White: "u1", Black: "u2", Match: faultMatch{}, Sender: sender})

	if err := s.Submit("u1", "e2e4"); !errors.Is(err, ErrInternal) {
		t.Fatalf("expected ErrInternal, got %v", err)
	}
	if !s.IsActive() {
		t.Fatalf("Submit must not complete the session itself")
	}
	if len(s.MoveLog()) != 0 {
		t.Fatalf("faulted move appended to log")
	}
}

func TestAbortBroadcastsAndIsAbsorbing(t *testing.T) {
	s, sender := newTestSession(t, 0)

	s.Abort()

	for _, id := range []string{"u1", "u2"} {
		evs := sender.of(id)
		if len(evs) != 2 {
			t.Fatalf("%s: expected error + game_over, got %+v", id, evs)
		}
		if _, ok := evs[0].(protocol.Error); !ok {
			t.Fatalf("%s: first event should be the error notice, got %+v", id, evs[0])
		}
		res, ok := evs[1].(protocol.GameOver)
		if !ok {
			t.Fatalf("%s: expected game_over, got %+v", id, evs[1])
		}
		if res.Outcome != OutcomeAborted || res.Method != MethodInternal {
			t.Fatalf("%s: game_over = %+v", id, res)
		}
	}

	outcome, method := s.Result()
	if outcome != OutcomeAborted || method != MethodInternal {
		t.Fatalf("result = (%s, %s)", outcome, method)
	}

	// completed is absorbing
	s.Abort()
	if err := s.Submit("u1", "e2e4"); !errors.Is(err, ErrGameOver) {
		t.Fatalf("post-abort move: got %v", err)
	}
	if sender.countGameOver("u1") != 1 || sender.countGameOver("u2") != 1 {
		t.Fatalf("game_over broadcast more than once")
	}
}

func TestReconnectAfterCompletionRedeliversResult(t *testing.T) {
	s, sender := newTestSession(t, 0)

	if err := s.Resign("u2"); err != nil {
		t.Fatalf("Resign: %v", err)
	}

	s.ReconnectAndReplay("u2", func() {})
	res, ok := sender.of("u2")[len(sender.of("u2"))-1].(protocol.GameOver)
	if !ok {
		t.Fatalf("expected game_over redelivery")
	}
	if res.Outcome != OutcomeWhiteWin || res.Method != MethodResignation {
		t.Fatalf("redelivered result = %+v", res)
	}
}

func TestRecorderReceivesMovesAndResult(t *testing.T) {
	rec := &captureRecorder{}
	sender := newCaptureSender()
	s := New(Config{
		ID:       "g1",
		White:    "u1",
		Black:    "u2",
		Match:    engine.NewMatch(),
		Sender:   sender,
		Recorder: rec,
	})

	if err := s.Submit("u1", "e2e4"); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if err := s.Resign("u2"); err != nil {
		t.Fatalf("Resign: %v", err)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.moves != 1 {
		t.Fatalf("recorded %d moves, want 1", rec.moves)
	}
	if rec.results != 1 {
		t.Fatalf("recorded %d results, want 1", rec.results)
	}
}
