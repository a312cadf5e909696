// SPDX-License-Identifier: BSD-3-Clause
//
// Adapted from: https://github.com/private-octopus/quicdoq/blob/master/quicdoq/quicdoq_internal.h
// (quicdoq_cnx_ctx_t, quicdoq_find_or_create_stream)
//

package quicdoq

import (
	"context"
	"net"
	"sync"
)

// quicConn is the subset of [github.com/quic-go/quic-go.Connection] this
// package depends on, narrowed to an interface for the same testability
// reason as [quicStream].
type quicConn interface {
	AcceptStream(ctx context.Context) (quicStream, error)
	OpenStream() (quicStream, error)
	RemoteAddr() net.Addr
	// ServerName returns the SNI the client presented (server role) or
	// the name the client dialed (client role); together with
	// RemoteAddr it forms the registry key quicdoq_cnx_ctx_t indexes
	// connections by.
	ServerName() string
	CloseWithError(code uint64, reason string) error
}

// Connection tracks one QUIC connection and the DoQ streams open on it,
// mirroring quicdoq_cnx_ctx_t. A Connection is either a server-accepted
// connection (IsServer true, SNI taken from the client's TLS
// ClientHello) or a client-initiated connection (IsServer false, SNI is
// the name the client dialed).
type Connection struct {
	mu       sync.Mutex
	conn     quicConn
	sni      string
	addr     net.Addr
	isServer bool
	streams  map[int64]*stream
	closed   bool
}

func newConnection(conn quicConn, sni string, isServer bool) *Connection {
	return &Connection{
		conn:     conn,
		sni:      sni,
		addr:     conn.RemoteAddr(),
		isServer: isServer,
		streams:  make(map[int64]*stream),
	}
}

// registerStream records a stream under this connection, replacing
// quicdoq_find_or_create_stream's linear scan (a map lookup by
// stream ID is the idiomatic equivalent of the C list-search-then-insert
// pattern).
func (c *Connection) registerStream(qs quicStream, isClient bool) *stream {
	c.mu.Lock()
	defer c.mu.Unlock()
	if st, ok := c.streams[qs.StreamID()]; ok {
		return st
	}
	st := newStream(c, qs, isClient)
	c.streams[qs.StreamID()] = st
	return st
}

// deleteStream removes a stream once it reaches a terminal state,
// mirroring quicdoq_delete_stream_ctx.
func (c *Connection) deleteStream(id int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.streams, id)
}

// openStream opens a new client-initiated stream and registers it.
func (c *Connection) openStream() (*stream, error) {
	qs, err := c.conn.OpenStream()
	if err != nil {
		return nil, err
	}
	return c.registerStream(qs, true), nil
}

// close tears down the connection and aborts every stream still open on
// it, mirroring the cleanup quicdoq_callback performs on
// stateless_reset/close/application_close.
func (c *Connection) close(code uint64) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	streams := make([]*stream, 0, len(c.streams))
	for _, st := range c.streams {
		streams = append(streams, st)
	}
	c.mu.Unlock()

	for _, st := range streams {
		st.abort(code)
	}
	c.conn.CloseWithError(code, "")
}

// registryKey identifies a connection by remote address and SNI, the
// same two-part key quicdoq_callback_create_context uses when deciding
// whether an incoming connection reuses an existing client connection.
type registryKey struct {
	addr string
	sni  string
}

// connectionRegistry is the service-wide table of active connections.
// The reference engine walks a doubly-linked list (first_cnx/last_cnx)
// in quicdoq_find_cnx_ctx without ever advancing the cursor, so a
// lookup that misses the head entry loops forever; a Go map keyed by
// (address, SNI) has no cursor and no equivalent hazard.
type connectionRegistry struct {
	mu    sync.Mutex
	byKey map[registryKey]*Connection
}

func newConnectionRegistry() *connectionRegistry {
	return &connectionRegistry{byKey: make(map[registryKey]*Connection)}
}

func (r *connectionRegistry) lookup(addr net.Addr, sni string) (*Connection, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byKey[registryKey{addr: addr.String(), sni: sni}]
	return c, ok
}

func (r *connectionRegistry) put(c *Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byKey[registryKey{addr: c.addr.String(), sni: c.sni}] = c
}

func (r *connectionRegistry) remove(c *Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byKey, registryKey{addr: c.addr.String(), sni: c.sni})
}

// closeAll closes every registered connection, used when the service
// shuts down.
func (r *connectionRegistry) closeAll(code uint64) {
	r.mu.Lock()
	conns := make([]*Connection, 0, len(r.byKey))
	for _, c := range r.byKey {
		conns = append(conns, c)
	}
	r.mu.Unlock()

	for _, c := range conns {
		c.close(code)
	}
}
