package health

import (
	"encoding/json"

	"github.com/valyala/fasthttp"
)

// Stats is the snapshot the /stats endpoint reports.
type Stats interface {
	ActiveGames() int
	ConnectedUsers() int
	Waiting() int
}

// Server exposes liveness and a small stats snapshot on a separate port so
// probes never contend with game traffic.
type Server struct {
	addr  string
	stats Stats
	srv   *fasthttp.Server
}

func NewServer(addr string, stats Stats) *Server {
	s := &Server{addr: addr, stats: stats}
	s.srv = &fasthttp.Server{Handler: s.handle}
	return s
}

func (s *Server) Run() error {
	return s.srv.ListenAndServe(s.addr)
}

func (s *Server) Shutdown() error {
	return s.srv.Shutdown()
}

func (s *Server) handle(ctx *fasthttp.RequestCtx) {
	switch string(ctx.Path()) {
	case "/healthz":
		ctx.SetStatusCode(fasthttp.StatusOK)
		ctx.SetBodyString("ok")
	case "/stats":
		body, _ := json.Marshal(map[string]int{
			"active_games":    s.stats.ActiveGames(),
			"connected_users": s.stats.ConnectedUsers(),
			"waiting":         s.stats.Waiting(),
		})
		ctx.SetContentType("application/json")
		ctx.SetBody(body)
	default:
		ctx.SetStatusCode(fasthttp.StatusNotFound)
	}
}
