package archive

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/park285/chess-arena/internal/obslog"
)

// Sink is where drained records land. The postgres Repository implements it.
type Sink interface {
	InsertMove(ctx context.Context, rec MoveRecord) error
	UpsertResult(ctx context.Context, rec ResultRecord) error
}

// Worker drains the append log into a Sink. One worker per process is
// enough; the list gives us ordering and the sink calls are idempotent.
type Worker struct {
	rdb  *redis.Client
	sink Sink
}

func NewWorker(rdb *redis.Client, sink Sink) *Worker {
	return &Worker{rdb: rdb, sink: sink}
}

// Run blocks until ctx is canceled. Sink failures are logged and the record
// dropped; the append log is an offload path, not a source of truth for
// live games.
func (w *Worker) Run(ctx context.Context) {
	for {
		res, err := w.rdb.BRPop(ctx, time.Second, appendLogKey).Result()
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return
			}
			if errors.Is(err, redis.Nil) {
				continue
			}
			obslog.L().Warn("archive_pop_error", zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}
		if len(res) < 2 {
			continue
		}
		w.dispatch(ctx, []byte(res[1]))
	}
}

func (w *Worker) dispatch(ctx context.Context, raw []byte) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		obslog.L().Warn("archive_decode_error", zap.Error(err))
		return
	}
	switch {
	case env.Kind == KindMove && env.Move != nil:
		if err := w.sink.InsertMove(ctx, *env.Move); err != nil {
			obslog.L().Error("archive_move_insert_error",
				zap.String("game_id", env.Move.GameID), zap.Error(err))
		}
	case env.Kind == KindResult && env.Result != nil:
		if err := w.sink.UpsertResult(ctx, *env.Result); err != nil {
			obslog.L().Error("archive_result_insert_error",
				zap.String("game_id", env.Result.GameID), zap.Error(err))
		}
	default:
		obslog.L().Warn("archive_unknown_record", zap.String("kind", env.Kind))
	}
}
