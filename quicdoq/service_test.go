// SPDX-License-Identifier: BSD-3-Clause

package quicdoq

import (
	"bytes"
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type stubDialer struct {
	conn *fakeConn
	err  error
}

func (d *stubDialer) DialDoQ(ctx context.Context, addr net.Addr, sni string) (quicConn, error) {
	return d.conn, d.err
}

// preloadedResponse wraps writeFramedMessage's output as the data a
// fakeStream will hand back on Read, simulating a peer that has already
// written its framed response.
func preloadedResponse(t *testing.T, payload []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, writeFramedMessage(&buf, payload))
	return buf.Bytes()
}

func TestServicePostQueryDeliversResponseComplete(t *testing.T) {
	fc := &fakeConn{remote: fakeAddr("server:784")}
	respData := preloadedResponse(t, []byte("answer bytes"))
	fs := newFakeStream(1, respData)
	wrapped := &openStreamFunc{fakeConn: fc, open: func() (quicStream, error) { return fs, nil }}
	svc := NewService(nil, &stubDialer2{conn: wrapped})

	done := make(chan *Query, 1)
	q := NewQuery("example.net", fakeAddr("server:784"), []byte("query bytes"), func(code ReturnCode, q *Query) {
		done <- q
	})

	require.NoError(t, svc.PostQuery(context.Background(), q))

	select {
	case got := <-done:
		require.Equal(t, ResponseComplete, got.returnCode)
		require.Equal(t, []byte("answer bytes"), got.ResponseData)
	case <-time.After(2 * time.Second):
		t.Fatal("callback never fired")
	}
}

func TestServicePostQueryDeliversPartialResponses(t *testing.T) {
	fc := &fakeConn{remote: fakeAddr("server:784")}
	// Two back-to-back framed responses before the FIN: the first must
	// surface as ResponsePartial, the second as ResponseComplete.
	wire := append(preloadedResponse(t, []byte("first response")), preloadedResponse(t, []byte("second response"))...)
	fs := newFakeStream(1, wire)
	wrapped := &openStreamFunc{fakeConn: fc, open: func() (quicStream, error) { return fs, nil }}
	svc := NewService(nil, &stubDialer2{conn: wrapped})

	type delivery struct {
		code ReturnCode
		data []byte
	}
	deliveries := make(chan delivery, 2)
	q := NewQuery("example.net", fakeAddr("server:784"), []byte("query bytes"), func(code ReturnCode, q *Query) {
		deliveries <- delivery{code: code, data: append([]byte(nil), q.ResponseData...)}
	})

	require.NoError(t, svc.PostQuery(context.Background(), q))

	select {
	case got := <-deliveries:
		require.Equal(t, ResponsePartial, got.code)
		require.Equal(t, []byte("first response"), got.data)
	case <-time.After(2 * time.Second):
		t.Fatal("ResponsePartial never fired")
	}
	select {
	case got := <-deliveries:
		require.Equal(t, ResponseComplete, got.code)
		require.Equal(t, []byte("second response"), got.data)
	case <-time.After(2 * time.Second):
		t.Fatal("ResponseComplete never fired")
	}
}

func TestServicePostQueryFailsOnFinWithoutResponse(t *testing.T) {
	fc := &fakeConn{remote: fakeAddr("server:784")}
	fs := newFakeStream(1, nil) // peer sends FIN without any response
	wrapped := &openStreamFunc{fakeConn: fc, open: func() (quicStream, error) { return fs, nil }}
	svc := NewService(nil, &stubDialer2{conn: wrapped})

	done := make(chan *Query, 1)
	q := NewQuery("example.net", fakeAddr("server:784"), []byte("query bytes"), func(code ReturnCode, q *Query) {
		done <- q
	})

	require.NoError(t, svc.PostQuery(context.Background(), q))

	select {
	case got := <-done:
		require.Equal(t, QueryFailed, got.returnCode)
		require.ErrorIs(t, got.Err, ErrFramingViolation)
	case <-time.After(2 * time.Second):
		t.Fatal("callback never fired")
	}
}

// openStreamFunc is a quicConn whose OpenStream is overridable per test,
// needed because fakeConn's default OpenStream always mints a fresh
// empty stream.
type openStreamFunc struct {
	*fakeConn
	open func() (quicStream, error)
}

func (o *openStreamFunc) OpenStream() (quicStream, error) { return o.open() }

type stubDialer2 struct {
	conn *openStreamFunc
}

func (d *stubDialer2) DialDoQ(ctx context.Context, addr net.Addr, sni string) (quicConn, error) {
	return d.conn, nil
}

func TestServicePostQueryDialFailure(t *testing.T) {
	expectedErr := context.DeadlineExceeded
	svc := NewService(nil, &stubDialer{err: expectedErr})

	done := make(chan *Query, 1)
	q := NewQuery("example.net", fakeAddr("server:784"), []byte("q"), func(code ReturnCode, q *Query) {
		done <- q
	})
	err := svc.PostQuery(context.Background(), q)
	require.ErrorIs(t, err, expectedErr)

	select {
	case got := <-done:
		require.Equal(t, QueryFailed, got.returnCode)
	case <-time.After(2 * time.Second):
		t.Fatal("callback never fired")
	}
}

func TestServicePostQueryReusesConnection(t *testing.T) {
	fc := &fakeConn{remote: fakeAddr("server:784")}
	dialer := &stubDialer{conn: fc}
	svc := NewService(nil, dialer)

	conn1, err := svc.connectionFor(context.Background(), fakeAddr("server:784"), "example.net")
	require.NoError(t, err)
	conn2, err := svc.connectionFor(context.Background(), fakeAddr("server:784"), "example.net")
	require.NoError(t, err)
	require.Same(t, conn1, conn2)
}

func TestServiceCancelQueryAbortsStream(t *testing.T) {
	fc := &fakeConn{remote: fakeAddr("server:784")}
	svc := NewService(nil, &stubDialer{conn: fc})

	conn, err := svc.connectionFor(context.Background(), fakeAddr("server:784"), "example.net")
	require.NoError(t, err)
	st, err := conn.openStream()
	require.NoError(t, err)

	q := &Query{st: st}
	svc.CancelQuery(q)
	require.Equal(t, streamAborted, st.currentState())
}

func TestServicePostResponseDeliversToStream(t *testing.T) {
	fs := newFakeStream(9, nil)
	conn := newConnection(&fakeConn{remote: fakeAddr("client:1")}, "client.example", true)
	st := newStream(conn, fs, false)
	st.state = streamReceiving
	conn.streams[9] = st

	svc := NewService(nil, nil)
	q := &Query{st: st}
	require.NoError(t, svc.PostResponse(q, []byte("answer")))
	require.True(t, fs.closed)

	conn.mu.Lock()
	_, ok := conn.streams[9]
	conn.mu.Unlock()
	require.False(t, ok)
}

func TestServiceCancelResponseAbortsStream(t *testing.T) {
	fs := newFakeStream(10, nil)
	conn := newConnection(&fakeConn{remote: fakeAddr("client:1")}, "client.example", true)
	st := newStream(conn, fs, false)
	conn.streams[10] = st

	svc := NewService(nil, nil)
	q := &Query{st: st}
	require.NoError(t, svc.CancelResponse(q, ErrorCodeInternal))
	require.Equal(t, streamAborted, st.currentState())
}
