// SPDX-License-Identifier: BSD-3-Clause
//
// Adapted from: https://github.com/private-octopus/quicdoq/blob/master/quicdoq/quicdoq.c
// (quicdoq_stream_ctx_t, quicdoq_callback_data, quicdoq_callback_prepare_to_send)
//

package quicdoq

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"sync"

	"github.com/bassosimone/runtimex"
)

// streamState is the per-stream state machine. A stream starts Idle,
// moves to Receiving or Sending depending on which side originated it,
// and ends in Done or Aborted.
type streamState int

const (
	streamIdle streamState = iota
	streamReceiving
	streamSending
	streamDone
	streamAborted
)

// quicStream is the subset of [github.com/quic-go/quic-go.Stream] this
// package depends on. Narrowing to an interface lets tests exercise the
// stream state machine against an in-memory fake instead of a live QUIC
// connection.
type quicStream interface {
	io.Reader
	io.Writer
	StreamID() int64
	Close() error
	CancelRead(code uint64)
	CancelWrite(code uint64)
	// Context is cancelled when the stream terminates for any reason,
	// including a peer-initiated reset; its error distinguishes a clean
	// close from an abort the same way quicdoq_callback distinguishes
	// stream_fin from stream_reset/stop_sending.
	Context() context.Context
}

// ErrFrameTooLarge indicates a message does not fit in the DoQ two-byte
// length prefix (RFC 9250 Section 4.2).
var ErrFrameTooLarge = errors.New("quicdoq: message exceeds 65535 octets")

// maxMessageSize is the largest message the two-byte DoQ length prefix
// can express.
const maxMessageSize = math.MaxUint16

// writeFramedMessage writes msg to w prefixed by its big-endian uint16
// length. It does not close w: the caller sends the FIN that ends the
// message by closing the stream's write side.
func writeFramedMessage(w io.Writer, msg []byte) error {
	runtimex.Assert(len(msg) <= math.MaxUint16)
	var header [2]byte
	binary.BigEndian.PutUint16(header[:], uint16(len(msg)))
	if _, err := w.Write(header[:]); err != nil {
		return err
	}
	_, err := w.Write(msg)
	return err
}

// readFramedMessage reads one length-prefixed message from r.
func readFramedMessage(r io.Reader, maxSize int) ([]byte, error) {
	var header [2]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}
	length := int(binary.BigEndian.Uint16(header[:]))
	if length > maxSize {
		return nil, ErrResponseTooLong
	}
	buf := make([]byte, length)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// stream tracks one QUIC stream carrying exactly one DoQ query/response
// exchange, mirroring the reference engine's quicdoq_stream_ctx_t.
type stream struct {
	mu        sync.Mutex
	id        int64
	conn      *Connection
	qs        quicStream
	state     streamState
	isClient  bool
	query     *Query
	bytesSent uint64
	responded bool
}

// markResponded records that the application has posted, or is in the
// process of posting, a response or cancellation for this stream, so a
// later peer-initiated abort is not mistaken for an unanswered query.
func (s *stream) markResponded() {
	s.mu.Lock()
	s.responded = true
	s.mu.Unlock()
}

func (s *stream) hasResponded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.responded
}

// watchAbort blocks until the stream's context is done, then invokes fn
// if the stream was never answered and did not terminate cleanly. It is
// meant to run in its own goroutine, one per server-side incoming
// stream, mirroring the callback quicdoq_callback issues for
// stream_reset/stop_sending events the reference engine receives on an
// unanswered server stream.
func (s *stream) watchAbort(fn func()) {
	<-s.qs.Context().Done()
	if s.hasResponded() {
		return
	}
	fn()
}

func newStream(conn *Connection, qs quicStream, isClient bool) *stream {
	return &stream{
		id:       qs.StreamID(),
		conn:     conn,
		qs:       qs,
		state:    streamIdle,
		isClient: isClient,
	}
}

// sendQuery writes q's data as a client-initiated query on this stream
// and transitions Idle -> Sending -> Receiving once the write completes,
// mirroring quicdoq_callback_prepare_to_send for the client role.
func (s *stream) sendQuery(q *Query) error {
	s.mu.Lock()
	if s.state != streamIdle {
		s.mu.Unlock()
		return fmt.Errorf("quicdoq: stream %d not idle", s.id)
	}
	s.state = streamSending
	s.query = q
	s.mu.Unlock()

	if len(q.QueryData) > math.MaxUint16 {
		return ErrQueryTooLong
	}
	if err := writeFramedMessage(s.qs, q.QueryData); err != nil {
		s.transition(streamAborted)
		return err
	}
	// The client sends exactly one query followed by a FIN.
	if err := s.qs.Close(); err != nil {
		s.transition(streamAborted)
		return err
	}

	s.mu.Lock()
	s.bytesSent = uint64(len(q.QueryData) + 2)
	s.state = streamReceiving
	s.mu.Unlock()
	return nil
}

// sendResponse writes data as a server-initiated response on this
// stream and marks it Done.
func (s *stream) sendResponse(data []byte) error {
	s.mu.Lock()
	if s.state != streamReceiving && s.state != streamSending {
		s.mu.Unlock()
		return fmt.Errorf("quicdoq: stream %d not ready for a response", s.id)
	}
	s.state = streamSending
	s.mu.Unlock()
	s.markResponded()

	if len(data) > math.MaxUint16 {
		return ErrResponseTooLong
	}
	if err := writeFramedMessage(s.qs, data); err != nil {
		s.transition(streamAborted)
		return err
	}
	s.qs.Close()
	s.transition(streamDone)
	return nil
}

// abort resets both directions of the stream and marks it Aborted,
// mirroring the reference engine's response to stream_reset/stop_sending
// events (picoquic_reset_stream in quicdoq_callback).
func (s *stream) abort(code uint64) {
	// Mark the stream Aborted before cancelling, so a reader woken by the
	// cancellation already observes the local abort.
	s.transition(streamAborted)
	s.qs.CancelRead(code)
	s.qs.CancelWrite(code)
}

func (s *stream) transition(next streamState) {
	s.mu.Lock()
	s.state = next
	s.mu.Unlock()
}

func (s *stream) currentState() streamState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}
