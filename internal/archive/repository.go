package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
)

// Repository is the postgres sink for the append log.
type Repository struct {
	db *sql.DB
}

func NewRepository(databaseURL string) (*Repository, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(8)
	db.SetConnMaxLifetime(30 * time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	return &Repository{db: db}, nil
}

func (r *Repository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

// InsertMove appends one move row. Re-delivery of the same (game, number)
// is a no-op so the worker can safely retry.
func (r *Repository) InsertMove(ctx context.Context, rec MoveRecord) error {
	q := `INSERT INTO game_moves (game_id, identity, move_number, uci, san, played_at)
	      VALUES ($1, $2, $3, $4, $5, $6)
	      ON CONFLICT (game_id, move_number) DO NOTHING`
	_, err := r.db.ExecContext(ctx, q,
		rec.GameID, rec.Identity, rec.Number, rec.UCI, rec.SAN, rec.PlayedAt)
	return err
}

// UpsertResult records the final state of a game.
func (r *Repository) UpsertResult(ctx context.Context, rec ResultRecord) error {
	movesRaw, _ := json.Marshal(rec.Moves)
	duration := rec.EndedAt.Sub(rec.StartedAt).Milliseconds()
	if duration < 0 {
		duration = 0
	}
	q := `INSERT INTO game_results (
	        game_id, white_id, black_id, outcome, method, moves,
	        started_at, ended_at, duration_ms
	      ) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	      ON CONFLICT (game_id) DO UPDATE SET
	        outcome=EXCLUDED.outcome,
	        method=EXCLUDED.method,
	        moves=EXCLUDED.moves,
	        ended_at=EXCLUDED.ended_at,
	        duration_ms=EXCLUDED.duration_ms`
	_, err := r.db.ExecContext(ctx, q,
		rec.GameID, rec.WhiteID, rec.BlackID, rec.Outcome, rec.Method,
		string(movesRaw), rec.StartedAt, rec.EndedAt, duration)
	return err
}
