package feed

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/quantfold/conductor/stream"
)

// Connection represents an active feed connection.
type Connection struct {
	// ID uniquely identifies this connection.
	ID string

	// Codec is the negotiated wire format.
	Codec Codec

	// ConnectedAt records when the connection was established.
	ConnectedAt time.Time

	// LastActivity tracks the most recent frame received.
	LastActivity atomic.Value // time.Time

	// Subscriber carries events for this connection's topic
	// subscriptions. One subscriber per connection.
	Subscriber *stream.Subscriber

	// writeMu serializes frame writes to the socket.
	writeMu sync.Mutex
}

// NewConnection creates a connection with the given ID and subscriber.
func NewConnection(id string, codec Codec, sub *stream.Subscriber) *Connection {
	c := &Connection{
		ID:          id,
		Codec:       codec,
		ConnectedAt: time.Now().UTC(),
		Subscriber:  sub,
	}
	c.LastActivity.Store(time.Now().UTC())
	return c
}

// Touch updates the last activity timestamp.
func (c *Connection) Touch() {
	c.LastActivity.Store(time.Now().UTC())
}

// Topics returns the connection's active subscription topics.
func (c *Connection) Topics() []string {
	if c.Subscriber == nil {
		return nil
	}
	return c.Subscriber.Topics()
}

// ConnectionManager tracks active feed connections.
type ConnectionManager struct {
	mu    sync.RWMutex
	conns map[string]*Connection
}

// NewConnectionManager creates an empty connection manager.
func NewConnectionManager() *ConnectionManager {
	return &ConnectionManager{
		conns: make(map[string]*Connection),
	}
}

// Add registers a new connection.
func (cm *ConnectionManager) Add(conn *Connection) {
	cm.mu.Lock()
	cm.conns[conn.ID] = conn
	cm.mu.Unlock()
}

// Remove unregisters a connection.
func (cm *ConnectionManager) Remove(connID string) {
	cm.mu.Lock()
	delete(cm.conns, connID)
	cm.mu.Unlock()
}

// Get returns a connection by ID.
func (cm *ConnectionManager) Get(connID string) (*Connection, bool) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	c, ok := cm.conns[connID]
	return c, ok
}

// Count returns the number of active connections.
func (cm *ConnectionManager) Count() int {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return len(cm.conns)
}

// All returns a snapshot of all connections.
func (cm *ConnectionManager) All() []*Connection {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	out := make([]*Connection, 0, len(cm.conns))
	for _, c := range cm.conns {
		out = append(out, c)
	}
	return out
}
