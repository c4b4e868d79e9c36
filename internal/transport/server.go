package transport

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"
	"nhooyr.io/websocket"

	"github.com/park285/chess-arena/internal/auth"
	"github.com/park285/chess-arena/internal/obslog"
	"github.com/park285/chess-arena/internal/registry"
	"github.com/park285/chess-arena/internal/router"
)

// Server accepts websocket connections, resolves the bearer token to an
// identity before any protocol message is read, and feeds inbound frames to
// the router. Auth failure closes the handshake with 401; no session is
// touched.
type Server struct {
	tokens   *auth.TokenService
	registry *registry.Registry
	router   *router.Manager

	httpSrv *http.Server
}

func NewServer(addr string, tokens *auth.TokenService, reg *registry.Registry, rt *router.Manager) *Server {
	s := &Server{
		tokens:   tokens,
		registry: reg,
		router:   rt,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	s.httpSrv = &http.Server{Addr: addr, Handler: mux}
	return s
}

// Run blocks serving until Shutdown.
func (s *Server) Run() error {
	err := s.httpSrv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		if cookie, err := r.Cookie("auth_token"); err == nil {
			token = cookie.Value
		}
	}

	identity, err := s.tokens.Identity(token)
	if err != nil {
		obslog.L().Warn("conn_auth_reject", zap.Error(err))
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		obslog.L().Warn("conn_accept_error", zap.Error(err))
		return
	}

	conn := newConn(identity, ws)

	// The router performs the registry bind and, when a session exists, the
	// replay in one step; the first inbound frame cannot outrun either.
	evicted := s.router.Register(conn)
	obslog.L().Info("conn_open",
		zap.String("identity", identity),
		zap.Bool("superseded_previous", evicted),
	)

	s.readLoop(conn)
}

func (s *Server) readLoop(c *Conn) {
	ctx := context.Background()
	var readErr error
	for {
		_, data, err := c.ws.Read(ctx)
		if err != nil {
			readErr = err
			break
		}
		s.router.Route(c.identity, data)
	}

	status := websocket.CloseStatus(readErr)
	c.shutdown(websocket.StatusNormalClosure, "")

	// A superseded connection must not start the grace window: the
	// identity is still live on its replacement.
	if s.registry.Unregister(c) {
		obslog.L().Info("conn_close",
			zap.String("identity", c.identity),
			zap.Int("status", int(status)),
		)
		s.router.HandleDisconnect(c.identity)
	}
}
