// Package hub admits websocket connections into the shared session and keeps
// track of them until they close.
package hub

import (
	"sort"
	"sync"

	"github.com/google/uuid"
)

// Conn is what the hub needs from a connection.
type Conn interface {
	Close() error
	RemoteAddr() string
}

// Hub handles admission and bookkeeping of live connections
type Hub struct {
	mu    sync.RWMutex
	conns map[string]Conn
	max   int
}

// New creates a hub admitting at most max connections.
func New(max int) *Hub {
	if max < 1 {
		max = 1
	}
	return &Hub{
		conns: make(map[string]Conn),
		max:   max,
	}
}

// Register admits c and assigns it a participant id.
func (h *Hub) Register(c Conn) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.conns) >= h.max {
		return "", ErrServerFull
	}

	id := uuid.NewString()
	h.conns[id] = c
	return id, nil
}

// Get gets a connection by id
func (h *Hub) Get(id string) (Conn, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	c, ok := h.conns[id]
	return c, ok
}

// Unregister forgets id. It reports whether id was registered.
func (h *Hub) Unregister(id string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.conns[id]; !ok {
		return false
	}
	delete(h.conns, id)
	return true
}

// Len returns the number of live connections.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// CloseAll closes every connection, for shutdown. Connections unregister
// themselves as their pumps exit.
func (h *Hub) CloseAll() int {
	h.mu.RLock()
	conns := make([]Conn, 0, len(h.conns))
	for _, c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	for _, c := range conns {
		c.Close()
	}
	return len(conns)
}

// GetStats returns hub statistics
func (h *Hub) GetStats() Stats {
	h.mu.RLock()
	defer h.mu.RUnlock()

	stats := Stats{
		Connections: len(h.conns),
		Max:         h.max,
		Peers:       make([]PeerStats, 0, len(h.conns)),
	}
	for id, c := range h.conns {
		stats.Peers = append(stats.Peers, PeerStats{ID: id, Addr: c.RemoteAddr()})
	}
	sort.Slice(stats.Peers, func(i, j int) bool { return stats.Peers[i].ID < stats.Peers[j].ID })
	return stats
}

// Stats contains hub statistics
type Stats struct {
	Connections int         `json:"connections"`
	Max         int         `json:"max"`
	Peers       []PeerStats `json:"peers"`
}

// PeerStats describes one connection
type PeerStats struct {
	ID   string `json:"id"`
	Addr string `json:"addr"`
}

// Error definitions
var (
	ErrServerFull = &Error{message: "server full"}
)

// Error represents an admission failure.
type Error struct {
	message string
}

func (e *Error) Error() string {
	return e.message
}
