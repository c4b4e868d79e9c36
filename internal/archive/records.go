package archive

import "time"

// Record kinds on the append log.
const (
	KindMove   = "move"
	KindResult = "result"
)

// MoveRecord is one accepted move appended for durable storage.
type MoveRecord struct {
	GameID   string    `json:"game_id"`
	Identity string    `json:"identity"`
	Number   int       `json:"number"`
	UCI      string    `json:"uci"`
	SAN      string    `json:"san"`
	PlayedAt time.Time `json:"played_at"`
}

// ResultRecord is the final state of a completed game.
type ResultRecord struct {
	GameID    string    `json:"game_id"`
	WhiteID   string    `json:"white_id"`
	BlackID   string    `json:"black_id"`
	Outcome   string    `json:"outcome"`
	Method    string    `json:"method"`
	Moves     []string  `json:"moves"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at"`
}

// envelope is the wire form on the Redis list.
type envelope struct {
	Kind   string        `json:"kind"`
	Move   *MoveRecord   `json:"move,omitempty"`
	Result *ResultRecord `json:"result,omitempty"`
}
