package broadcast

import (
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_AddRemove(t *testing.T) {
	reg := newRegistry()
	conn := &websocket.Conn{}
	c := &client{id: "a", token: "tok-a"}

	assert.True(t, reg.add(conn, c))
	assert.False(t, reg.add(conn, &client{id: "dup"}), "second add of the same conn is refused")
	assert.Equal(t, 1, reg.len())

	got, ok := reg.get(conn)
	require.True(t, ok)
	assert.Same(t, c, got)

	removed, ok := reg.remove(conn)
	require.True(t, ok)
	assert.Same(t, c, removed)
	assert.Equal(t, 0, reg.len())
}

func TestRegistry_RemoveIsIdempotent(t *testing.T) {
	reg := newRegistry()
	conn := &websocket.Conn{}
	reg.add(conn, &client{id: "a"})

	_, ok := reg.remove(conn)
	assert.True(t, ok)

	_, ok = reg.remove(conn)
	assert.False(t, ok)
	_, ok = reg.remove(&websocket.Conn{})
	assert.False(t, ok)
}

func TestRegistry_SharedTokens(t *testing.T) {
	reg := newRegistry()
	reg.add(&websocket.Conn{}, &client{id: "a", token: "same"})
	reg.add(&websocket.Conn{}, &client{id: "b", token: "same"})

	assert.Equal(t, 2, reg.len())
}

func TestRegistry_EachToleratesRemovalDuringVisit(t *testing.T) {
	reg := newRegistry()
	conns := make([]*websocket.Conn, 5)
	for i := range conns {
		conns[i] = &websocket.Conn{}
		reg.add(conns[i], &client{id: string(rune('a' + i))})
	}

	visited := 0
	reg.each(func(conn *websocket.Conn, c *client) {
		visited++
		// Remove everyone else on the first visit.
		for _, other := range conns {
			if other != conn {
				reg.remove(other)
			}
		}
	})

	assert.Equal(t, 1, visited, "connections removed mid-pass are skipped")
	assert.Equal(t, 1, reg.len())
}

func TestRegistry_EachExcludesAdditionsDuringVisit(t *testing.T) {
	reg := newRegistry()
	reg.add(&websocket.Conn{}, &client{id: "a"})

	visited := 0
	reg.each(func(conn *websocket.Conn, c *client) {
		visited++
		reg.add(&websocket.Conn{}, &client{id: "late"})
	})

	assert.Equal(t, 1, visited, "connections added mid-pass are not part of that pass")
	assert.Equal(t, 2, reg.len())
}
