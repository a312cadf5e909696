// SPDX-License-Identifier: BSD-3-Clause

package quicdoq

import (
	"context"
	"net"
	"sync"
	"time"
)

// fakeAddr is a minimal net.Addr for tests that never dial a real
// socket.
type fakeAddr string

func (a fakeAddr) Network() string { return "udp" }
func (a fakeAddr) String() string  { return string(a) }

// fakeConn implements quicConn for tests that only need registry and
// stream bookkeeping, not an actual QUIC handshake.
type fakeConn struct {
	mu          sync.Mutex
	remote      net.Addr
	sni         string
	streams     []*fakeStream
	nextStream  int64
	closeCode   uint64
	closeReason string
	closed      bool
	acceptErr   error
}

func (c *fakeConn) AcceptStream(ctx context.Context) (quicStream, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.acceptErr != nil {
		return nil, c.acceptErr
	}
	if len(c.streams) == 0 {
		return nil, context.Canceled
	}
	s := c.streams[0]
	c.streams = c.streams[1:]
	return s, nil
}

func (c *fakeConn) OpenStream() (quicStream, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextStream++
	return newFakeStream(c.nextStream, nil), nil
}

func (c *fakeConn) RemoteAddr() net.Addr { return c.remote }
func (c *fakeConn) ServerName() string   { return c.sni }

func (c *fakeConn) CloseWithError(code uint64, reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.closeCode = code
	c.closeReason = reason
	return nil
}

func timeoutChan() <-chan time.Time {
	return time.After(2 * time.Second)
}
