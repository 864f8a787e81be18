package natsclient

import "sync/atomic"

// ManagedConn is one physical broker connection owned by the session
// manager, keyed by its normalized identity. It is shared by every
// subscription, reply handler and request addressed to that identity and is
// never exposed for direct mutation by callers.
type ManagedConn struct {
	key    string
	rawURL string
	conn   Conn

	// markedClosed is set when a transport-level disconnect is detected
	// outside the client's own closed flag, e.g. during an ack failure.
	markedClosed atomic.Bool
}

// NewManagedConn wraps an established connection with its identity and the
// raw URL it was dialed from. The raw URL is retained so an explicit
// reconnect can re-dial the exact address the script named.
func NewManagedConn(key, rawURL string, conn Conn) *ManagedConn {
	return &ManagedConn{key: key, rawURL: rawURL, conn: conn}
}

// Key returns the normalized connection identity
func (m *ManagedConn) Key() string { return m.key }

// RawURL returns the URL the connection was originally dialed from
func (m *ManagedConn) RawURL() string { return m.rawURL }

// Conn returns the underlying connection
func (m *ManagedConn) Conn() Conn { return m.conn }

// MarkClosed flags the connection as disconnected independent of the
// underlying client's own closed state.
func (m *ManagedConn) MarkClosed() { m.markedClosed.Store(true) }

// Connected reports liveness: false if either the explicit closed mark or
// the client's closed flag is set.
func (m *ManagedConn) Connected() bool {
	return !m.markedClosed.Load() && !m.conn.IsClosed()
}

// Status returns "connected" or "disconnected"
func (m *ManagedConn) Status() string {
	if m.Connected() {
		return "connected"
	}
	return "disconnected"
}

// Close marks the connection closed and closes the underlying client.
func (m *ManagedConn) Close() {
	m.MarkClosed()
	m.conn.Close()
}
