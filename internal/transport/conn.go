package transport

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/park285/chess-arena/internal/obslog"
)

const egressBuffer = 64

var errConnClosed = errors.New("connection closed")

// Conn wraps one accepted websocket. All outbound events pass through a
// buffered egress channel drained by a single writer goroutine, so delivery
// order always equals enqueue order and writers never race on the socket.
type Conn struct {
	identity string
	ws       *websocket.Conn

	egress    chan any
	closed    chan struct{}
	closeOnce sync.Once
}

func newConn(identity string, ws *websocket.Conn) *Conn {
	c := &Conn{
		identity: identity,
		ws:       ws,
		egress:   make(chan any, egressBuffer),
		closed:   make(chan struct{}),
	}
	go c.writeLoop()
	return c
}

func (c *Conn) Identity() string { return c.identity }

// Send enqueues one outbound event. A full egress buffer means the peer has
// stopped draining; the connection is closed rather than blocking a session.
func (c *Conn) Send(v any) error {
	select {
	case <-c.closed:
		return errConnClosed
	default:
	}
	select {
	case c.egress <- v:
		return nil
	case <-c.closed:
		return errConnClosed
	default:
		obslog.L().Warn("conn_egress_overflow", zap.String("identity", c.identity))
		c.shutdown(websocket.StatusPolicyViolation, "slow consumer")
		return errConnClosed
	}
}

// CloseSuperseded closes the transport because a newer connection for the
// same identity took authority.
func (c *Conn) CloseSuperseded() {
	c.shutdown(websocket.StatusPolicyViolation, "superseded by newer connection")
}

func (c *Conn) writeLoop() {
	for {
		select {
		case <-c.closed:
			return
		case v := <-c.egress:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			err := wsjson.Write(ctx, c.ws, v)
			cancel()
			if err != nil {
				c.shutdown(websocket.StatusAbnormalClosure, "write failed")
				return
			}
		}
	}
}

func (c *Conn) shutdown(code websocket.StatusCode, reason string) {
	c.closeOnce.Do(func() {
		close(c.closed)
		_ = c.ws.Close(code, reason)
	})
}
