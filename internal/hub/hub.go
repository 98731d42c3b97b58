// ABOUTME: In-memory connection registry with per-channel membership and fan-out
// ABOUTME: Channel membership is the sole gate for delivery; never route by identity

package hub

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// sendBufferSize is the per-connection outbound buffer. A connection whose
// buffer is full drops broadcasts instead of blocking the sender.
const sendBufferSize = 64

// Connection is one live client transport session. It may be joined to any
// number of channels; membership is lost when the connection is removed.
type Connection struct {
	// ID uniquely identifies this connection for the lifetime of the session.
	ID string
	// UserID is the authenticated user behind the connection.
	UserID string

	mu     sync.Mutex
	send   chan []byte
	closed bool
}

// Outbound returns the channel the transport write loop consumes.
// The channel is closed when the connection is removed from the hub.
func (c *Connection) Outbound() <-chan []byte {
	return c.send
}

// Send enqueues a payload directly to this connection, outside any
// channel fan-out. Same best-effort semantics as a broadcast: a full
// buffer or a closed connection drops the payload.
func (c *Connection) Send(payload []byte) bool {
	return c.deliver(payload)
}

// deliver enqueues a payload without blocking.
// Returns false if the connection is closed or its buffer is full.
func (c *Connection) deliver(payload []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// close shuts the outbound channel. Idempotent.
func (c *Connection) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// Hub tracks live connections and the channels each belongs to, and fans
// broadcasts out to every connection currently joined to a channel.
type Hub struct {
	mu       sync.RWMutex
	channels map[string]map[string]*Connection // channelID -> connID -> conn
	byConn   map[string]map[string]struct{}    // connID -> set of channelIDs
	conns    map[string]*Connection            // connID -> conn
	logger   *slog.Logger
}

// New creates a hub. Pass nil logger for default.
func New(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		channels: make(map[string]map[string]*Connection),
		byConn:   make(map[string]map[string]struct{}),
		conns:    make(map[string]*Connection),
		logger:   logger.With("component", "hub"),
	}
}

// NewConnection registers a fresh connection for the given user and
// returns it. The connection belongs to no channels until it joins one.
func (h *Hub) NewConnection(userID string) *Connection {
	conn := &Connection{
		ID:     uuid.New().String(),
		UserID: userID,
		send:   make(chan []byte, sendBufferSize),
	}

	h.mu.Lock()
	h.conns[conn.ID] = conn
	h.byConn[conn.ID] = make(map[string]struct{})
	h.mu.Unlock()

	h.logger.Debug("connection registered", "conn_id", conn.ID, "user_id", userID)
	return conn
}

// Join adds the connection to a channel's member set.
// Idempotent: joining twice has no additional effect.
func (h *Hub) Join(conn *Connection, channelID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.conns[conn.ID]; !ok {
		// Removed connections cannot rejoin; the client must reconnect.
		return
	}

	members, ok := h.channels[channelID]
	if !ok {
		members = make(map[string]*Connection)
		h.channels[channelID] = members
	}
	if _, already := members[conn.ID]; already {
		return
	}
	members[conn.ID] = conn
	h.byConn[conn.ID][channelID] = struct{}{}

	h.logger.Debug("joined channel", "conn_id", conn.ID, "channel_id", channelID)
}

// Leave removes the connection from a channel's member set.
// No-op if the connection is not a member.
func (h *Hub) Leave(conn *Connection, channelID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(conn.ID, channelID)
	h.logger.Debug("left channel", "conn_id", conn.ID, "channel_id", channelID)
}

func (h *Hub) leaveLocked(connID, channelID string) {
	members, ok := h.channels[channelID]
	if !ok {
		return
	}
	delete(members, connID)
	if len(members) == 0 {
		delete(h.channels, channelID)
	}
	if set, ok := h.byConn[connID]; ok {
		delete(set, channelID)
	}
}

// Remove unregisters the connection, stripping it from every channel it
// was a member of and closing its outbound channel. Called on transport
// teardown; a stale membership entry must never receive broadcasts.
func (h *Hub) Remove(conn *Connection) {
	h.mu.Lock()
	set, ok := h.byConn[conn.ID]
	if ok {
		for channelID := range set {
			h.leaveLocked(conn.ID, channelID)
		}
		delete(h.byConn, conn.ID)
		delete(h.conns, conn.ID)
	}
	h.mu.Unlock()

	if ok {
		conn.close()
		h.logger.Debug("connection removed", "conn_id", conn.ID)
	}
}

// Broadcast delivers payload to every connection currently joined to the
// channel, sender included. Delivery is best-effort per recipient: a full
// buffer drops that recipient's copy without affecting the others.
// Returns the number of successful deliveries.
func (h *Hub) Broadcast(channelID string, payload []byte) int {
	h.mu.RLock()
	members, ok := h.channels[channelID]
	if !ok || len(members) == 0 {
		h.mu.RUnlock()
		return 0
	}

	// Copy the member list under the read lock so sends happen outside it.
	targets := make([]*Connection, 0, len(members))
	for _, conn := range members {
		targets = append(targets, conn)
	}
	h.mu.RUnlock()

	delivered := 0
	for _, conn := range targets {
		if conn.deliver(payload) {
			delivered++
			continue
		}
		h.logger.Warn("dropped broadcast for slow connection",
			"channel_id", channelID,
			"conn_id", conn.ID,
		)
	}
	return delivered
}

// Members returns the number of connections currently joined to a channel.
func (h *Hub) Members(channelID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.channels[channelID])
}

// Channels returns the channel IDs the connection is currently joined to.
func (h *Hub) Channels(conn *Connection) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	set, ok := h.byConn[conn.ID]
	if !ok {
		return nil
	}
	channels := make([]string, 0, len(set))
	for channelID := range set {
		channels = append(channels, channelID)
	}
	return channels
}

// ConnectionCount returns the number of live connections.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// Close removes every connection and clears all membership state.
func (h *Hub) Close() {
	h.mu.Lock()
	conns := make([]*Connection, 0, len(h.conns))
	for _, conn := range h.conns {
		conns = append(conns, conn)
	}
	h.channels = make(map[string]map[string]*Connection)
	h.byConn = make(map[string]map[string]struct{})
	h.conns = make(map[string]*Connection)
	h.mu.Unlock()

	for _, conn := range conns {
		conn.close()
	}
	h.logger.Debug("hub closed")
}
