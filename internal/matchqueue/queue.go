package matchqueue

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/park285/chess-arena/internal/obslog"
)

// ErrAlreadyQueued rejects a second init_game from an identity that is still
// waiting for an opponent. This also makes self-pairing impossible.
var ErrAlreadyQueued = errors.New("already waiting for opponent")

type entry struct {
	identity   string
	enqueuedAt time.Time
}

// Result of an Enqueue call. When Paired is false the identity is waiting.
type Result struct {
	Paired bool
	// White is the earlier arrival, Black the one whose Enqueue completed
	// the pair. Set only when Paired.
	White string
	Black string
}

// Queue pairs identities in strict FIFO arrival order. All operations are
// serialized under one lock so pairing order is observable and deterministic.
type Queue struct {
	mu      sync.Mutex
	entries []entry
}

func New() *Queue {
	return &Queue{}
}

// Enqueue adds identity to the queue, immediately pairing it with the oldest
// waiting entry if one exists. First-enqueued plays white.
func (q *Queue) Enqueue(identity string) (Result, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, e := range q.entries {
		if e.identity == identity {
			return Result{}, ErrAlreadyQueued
		}
	}

	if len(q.entries) > 0 {
		oldest := q.entries[0]
		q.entries = q.entries[1:]
		obslog.L().Info("queue_pair",
			zap.String("white", oldest.identity),
			zap.String("black", identity),
			zap.Duration("waited", time.Since(oldest.enqueuedAt)),
		)
		return Result{Paired: true, White: oldest.identity, Black: identity}, nil
	}

	q.entries = append(q.entries, entry{identity: identity, enqueuedAt: time.Now()})
	obslog.L().Info("queue_wait", zap.String("identity", identity))
	return Result{}, nil
}

// DequeueOnDisconnect removes a waiting entry. Identities already paired are
// untouched: pairing is irrevocable once formed. Returns whether an entry
// was removed.
func (q *Queue) DequeueOnDisconnect(identity string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, e := range q.entries {
		if e.identity == identity {
			q.entries = append(q.entries[:i], q.entries[i+1:]...)
			obslog.L().Info("queue_drop", zap.String("identity", identity))
			return true
		}
	}
	return false
}

// Len returns the number of waiting identities.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}
