package archive

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/park285/chess-arena/internal/obslog"
)

const recorderBacklog = 256

// Recorder adapts the Queue to the session's fire-and-forget recording
// interface. Appends run on a dedicated goroutine, so the caller never waits
// on Redis; a full backlog drops the record with a warning.
type Recorder struct {
	q    *Queue
	jobs chan func(context.Context)
}

func NewRecorder(q *Queue) *Recorder {
	r := &Recorder{q: q, jobs: make(chan func(context.Context), recorderBacklog)}
	go r.run()
	return r
}

func (r *Recorder) run() {
	for job := range r.jobs {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		job(ctx)
		cancel()
	}
}

func (r *Recorder) submit(gameID string, job func(context.Context)) {
	select {
	case r.jobs <- job:
	default:
		obslog.L().Warn("archive_backlog_full", zap.String("game_id", gameID))
	}
}

func (r *Recorder) RecordMove(gameID, identity string, number int, uci, san string) {
	if r == nil || r.q == nil {
		return
	}
	rec := MoveRecord{
		GameID:   gameID,
		Identity: identity,
		Number:   number,
		UCI:      uci,
		SAN:      san,
		PlayedAt: time.Now(),
	}
	r.submit(gameID, func(ctx context.Context) {
		if err := r.q.AppendMove(ctx, rec); err != nil {
			obslog.L().Warn("archive_append_move_error", zap.String("game_id", gameID), zap.Error(err))
		}
	})
}

func (r *Recorder) RecordResult(gameID, whiteID, blackID, outcome, method string, moves []string, startedAt, endedAt time.Time) {
	if r == nil || r.q == nil {
		return
	}
	rec := ResultRecord{
		GameID:    gameID,
		WhiteID:   whiteID,
		BlackID:   blackID,
		Outcome:   outcome,
		Method:    method,
		Moves:     moves,
		StartedAt: startedAt,
		EndedAt:   endedAt,
	}
	r.submit(gameID, func(ctx context.Context) {
		if err := r.q.AppendResult(ctx, rec); err != nil {
			obslog.L().Warn("archive_append_result_error", zap.String("game_id", gameID), zap.Error(err))
		}
	})
}
