package transport

import (
	"net"
	"sync"
)

// ConnTable is the read-mostly username-to-live-connection map
// spec.md §5 calls out as the sole source of peer liveness. It is
// local to one peer process; the directory's User.Online flag is set
// by its own Register/Heartbeat commands and does not read this table.
type ConnTable struct {
	mu    sync.Mutex
	conns map[string]net.Conn
}

func NewConnTable() *ConnTable {
	return &ConnTable{conns: make(map[string]net.Conn)}
}

// Put registers conn as username's live connection, closing and
// replacing any prior one (a peer only ever holds one connection at
// a time in this design).
func (t *ConnTable) Put(username string, conn net.Conn) {
	t.mu.Lock()
	old, existed := t.conns[username]
	t.conns[username] = conn
	t.mu.Unlock()
	if existed && old != conn {
		old.Close()
	}
}

// Remove drops username's entry if it still points at conn; a
// connection that was already replaced does not clobber the newer
// one on its own close.
func (t *ConnTable) Remove(username string, conn net.Conn) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if cur, ok := t.conns[username]; ok && cur == conn {
		delete(t.conns, username)
	}
}

// Get returns username's live connection, if any.
func (t *ConnTable) Get(username string) (net.Conn, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	c, ok := t.conns[username]
	return c, ok
}

// Len reports the number of live connections, for diagnostics.
func (t *ConnTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.conns)
}
