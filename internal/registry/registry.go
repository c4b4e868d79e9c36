package registry

import (
	"sync"

	"go.uber.org/zap"

	"github.com/park285/chess-arena/internal/obslog"
)

// Conn is the live transport bound to one identity. The registry owns the
// identity→Conn mapping exclusively; it never touches session state.
type Conn interface {
	Identity() string
	// Send enqueues an outbound event. Must not block on the peer.
	Send(v any) error
	// CloseSuperseded closes the transport because a newer connection for
	// the same identity took over.
	CloseSuperseded()
}

// Registry keeps at most one live connection per identity. A new connection
// for an identity that already has one supersedes it: the old transport is
// closed so exactly one connection can submit moves at any instant.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]Conn
}

func New() *Registry {
	return &Registry{conns: make(map[string]Conn)}
}

// Register binds conn to its identity and reports whether a previous
// connection was evicted.
func (r *Registry) Register(conn Conn) (evicted bool) {
	identity := conn.Identity()

	r.mu.Lock()
	prev, had := r.conns[identity]
	r.conns[identity] = conn
	r.mu.Unlock()

	if had && prev != conn {
		prev.CloseSuperseded()
		obslog.L().Info("conn_supersede", zap.String("identity", identity))
		return true
	}
	return false
}

// Lookup returns the live connection for identity, or nil.
func (r *Registry) Lookup(identity string) Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.conns[identity]
}

// Unregister removes conn if it is still the current connection for its
// identity. Returns false when conn was already superseded, in which case
// the caller must not treat the identity as disconnected.
func (r *Registry) Unregister(conn Conn) bool {
	identity := conn.Identity()

	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.conns[identity]
	if !ok || cur != conn {
		return false
	}
	delete(r.conns, identity)
	return true
}

// Count returns the number of live connections.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
