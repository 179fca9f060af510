package broadcast

import (
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
)

// client is a registered, authenticated connection.
type client struct {
	id          string
	token       string
	connectedAt time.Time
	writer      *clientWriter
	logger      *slog.Logger
}

// registry tracks live connections and the token each one authenticated with.
// It is owned by the relay goroutine and is not safe for concurrent use.
type registry struct {
	clients map[*websocket.Conn]*client
}

func newRegistry() *registry {
	return &registry{clients: make(map[*websocket.Conn]*client)}
}

// add registers conn. It reports false if conn is already present.
func (r *registry) add(conn *websocket.Conn, c *client) bool {
	if _, exists := r.clients[conn]; exists {
		return false
	}
	r.clients[conn] = c
	return true
}

// remove deletes conn and returns its entry. Removing an absent connection is a no-op.
func (r *registry) remove(conn *websocket.Conn) (*client, bool) {
	c, exists := r.clients[conn]
	if !exists {
		return nil, false
	}
	delete(r.clients, conn)
	return c, true
}

func (r *registry) get(conn *websocket.Conn) (*client, bool) {
	c, exists := r.clients[conn]
	return c, exists
}

// each visits a snapshot of the current membership. Entries removed by an
// earlier visit in the same pass are skipped.
func (r *registry) each(visit func(conn *websocket.Conn, c *client)) {
	snapshot := make([]*websocket.Conn, 0, len(r.clients))
	for conn := range r.clients {
		snapshot = append(snapshot, conn)
	}

	for _, conn := range snapshot {
		c, exists := r.clients[conn]
		if !exists {
			continue
		}
		visit(conn, c)
	}
}

func (r *registry) len() int {
	return len(r.clients)
}
