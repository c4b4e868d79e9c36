package protocol

// Message type tags shared by both directions of the wire protocol.
const (
	TypeInitGame    = "init_game"
	TypeMove        = "move"
	TypeResign      = "resign"
	TypeWaiting     = "waiting"
	TypeGameStart   = "game_start"
	TypeBoardReplay = "board_replay"
	TypeGameOver    = "game_over"
	TypeError       = "error"
)

// Incoming is the client→server envelope. Unknown types are answered with an
// error event; the connection stays open.
type Incoming struct {
	Type string `json:"type"`
	Move string `json:"move,omitempty"`
}

// Waiting tells an enqueued client no opponent has arrived yet.
type Waiting struct {
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
}

// GameStart is sent individually to each player with their assigned color.
type GameStart struct {
	Type   string `json:"type"`
	Color  Color  `json:"color"`
	GameID string `json:"game_id"`
}

// BoardReplay carries the full accepted-move log so a (re)connecting client
// can fold it into the current position before any live move arrives.
type BoardReplay struct {
	Type  string   `json:"type"`
	Moves []string `json:"moves"`
}

// Move announces an accepted move to both players.
type Move struct {
	Type string `json:"type"`
	Move string `json:"move"`
}

// GameOver is delivered exactly once per game.
type GameOver struct {
	Type    string `json:"type"`
	Outcome string `json:"outcome"`
	Method  string `json:"method"`
}

// Error is sent to the offending connection only.
type Error struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}
