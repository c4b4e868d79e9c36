package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"
)

const appendLogKey = "arena:appendlog"

// Queue is the durable append interface backed by a Redis list. The session
// path only ever LPUSHes; a Worker drains the list into the repository so a
// slow database never sits on the move path.
type Queue struct {
	rdb *redis.Client
}

func NewQueue(redisURL string) (*Queue, error) {
	if strings.TrimSpace(redisURL) == "" {
		return nil, fmt.Errorf("REDIS_URL required for archive queue")
	}
	opts, err := parseRedisURL(redisURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Queue{rdb: rdb}, nil
}

// NewQueueWithClient wires an existing client; used by tests.
func NewQueueWithClient(rdb *redis.Client) *Queue {
	return &Queue{rdb: rdb}
}

func (q *Queue) Close() error {
	if q == nil || q.rdb == nil {
		return nil
	}
	return q.rdb.Close()
}

// AppendMove pushes one accepted move onto the append log.
func (q *Queue) AppendMove(ctx context.Context, rec MoveRecord) error {
	return q.push(ctx, envelope{Kind: KindMove, Move: &rec})
}

// AppendResult pushes a final game result onto the append log.
func (q *Queue) AppendResult(ctx context.Context, rec ResultRecord) error {
	return q.push(ctx, envelope{Kind: KindResult, Result: &rec})
}

func (q *Queue) push(ctx context.Context, env envelope) error {
	raw, err := json.Marshal(&env)
	if err != nil {
		return err
	}
	return q.rdb.LPush(ctx, appendLogKey, raw).Err()
}

// OpenRedis dials a standalone client for components that need their own
// connection (the blocking worker must not share the append client).
func OpenRedis(redisURL string) (*redis.Client, error) {
	opts, err := parseRedisURL(redisURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

func parseRedisURL(raw string) (*redis.Options, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "redis" && u.Scheme != "rediss" {
		return nil, fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	db := 0
	if p := strings.TrimPrefix(u.Path, "/"); p != "" {
		if n, err := strconv.Atoi(p); err == nil {
			db = n
		}
	}
	pass, _ := u.User.Password()
	return &redis.Options{Addr: u.Host, Password: pass, DB: db}, nil
}
