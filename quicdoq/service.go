// SPDX-License-Identifier: BSD-3-Clause
//
// Adapted from: https://github.com/private-octopus/quicdoq/blob/master/quicdoq/quicdoq.c
// (quicdoq_create, quicdoq_post_query, quicdoq_cancel_query, quicdoq_post_response,
// quicdoq_cancel_response, quicdoq_callback)
//

package quicdoq

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync/atomic"

	"github.com/quic-go/quic-go"
)

// Dialer opens a new client-side QUIC connection to a DoQ server.
// Implementations wrap [github.com/quic-go/quic-go.Transport.Dial];
// tests substitute an in-memory fake the same way this module's other
// packages take dependency-injected dialers.
type Dialer interface {
	DialDoQ(ctx context.Context, addr net.Addr, sni string) (quicConn, error)
}

// Logger is the minimal logging seam this package and [relay] depend
// on, following the same "accept an interface, not a concrete logging
// package" posture this module's client/resolver abstractions use.
// A Service built by [NewService] logs nowhere until [Service.SetLogger]
// is called.
type Logger interface {
	Printf(format string, args ...any)
}

// noopLogger discards everything; it is the default when no Logger is
// supplied.
type noopLogger struct{}

func (noopLogger) Printf(string, ...any) {}

// Service is a combined DoQ client and server, mirroring quicdoq_ctx_t.
// A Service created only with a Dialer acts as a client; one whose
// Serve method is running also acts as a server. The two roles share
// the same connection registry, matching the reference engine's
// "combined client and server" mode used by recursive resolvers.
type Service struct {
	dialer   Dialer
	callback Callback
	registry *connectionRegistry
	logger   Logger

	// nextQueryID assigns internal IDs to server-side incoming
	// queries, for logging and correlation only; it is unrelated to
	// the on-wire DNS message ID, which DoQ pins to zero.
	nextQueryID atomic.Uint64
}

// NewService builds a Service. callback is the server-side callback
// invoked with IncomingQuery for every query a peer opens against this
// service, and with ResponseCancelled if the peer aborts before a
// response is posted; it may be nil for a client-only service. dialer
// supplies outgoing connections for [Service.PostQuery]; it may be nil
// for a server-only service.
func NewService(callback Callback, dialer Dialer) *Service {
	return &Service{
		dialer:   dialer,
		callback: callback,
		registry: newConnectionRegistry(),
		logger:   noopLogger{},
	}
}

// SetLogger installs l as the service's diagnostic log sink, replacing
// the default no-op. l must not be nil.
func (s *Service) SetLogger(l Logger) {
	s.logger = l
}

// PostQuery sends q to its ServerAddr/ServerName, reusing an existing
// connection if one is registered for that (address, SNI) pair or
// dialing a new one otherwise. The result is delivered asynchronously
// through q's callback as ResponseComplete, QueryCancelled or
// QueryFailed, possibly preceded by ResponsePartial;
// PostQuery itself only reports errors that prevent the query from
// ever being sent.
func (s *Service) PostQuery(ctx context.Context, q *Query) error {
	if s.dialer == nil {
		return fmt.Errorf("quicdoq: service has no dialer, cannot post outgoing queries")
	}
	conn, err := s.connectionFor(ctx, q.ServerAddr, q.ServerName)
	if err != nil {
		q.Err = err
		q.deliver(QueryFailed)
		return err
	}

	st, err := conn.openStream()
	if err != nil {
		q.Err = err
		q.deliver(QueryFailed)
		return err
	}
	q.st = st

	go s.runClientStream(st, q)
	return nil
}

func (s *Service) runClientStream(st *stream, q *Query) {
	if err := st.sendQuery(q); err != nil {
		q.Err = err
		s.finishStream(st, q, QueryFailed)
		return
	}

	// A server MAY write several length-prefixed responses before FIN
	// (RFC 9250 Section 4.2's XFR pattern). Each completed response
	// except the last is delivered as ResponsePartial; the one the FIN
	// closes is the ResponseComplete.
	var have []byte
	for {
		resp, err := readFramedMessage(st.qs, maxMessageSize)
		if err == nil {
			if have != nil {
				q.ResponseData = have
				q.deliver(ResponsePartial)
			}
			have = resp
			continue
		}
		switch {
		case st.currentState() == streamAborted:
			q.Err = ErrQueryCancelled
			s.finishStream(st, q, QueryCancelled)
		case isPeerReset(err):
			// Join so callers can still extract the application
			// error code the peer reset with.
			q.Err = errors.Join(ErrStreamReset, err)
			s.finishStream(st, q, QueryCancelled)
		case errors.Is(err, io.EOF) && have != nil:
			// Clean FIN at a frame boundary: the last complete
			// response is the final one.
			q.ResponseData = have
			st.transition(streamDone)
			s.finishStream(st, q, ResponseComplete)
		case errors.Is(err, ErrResponseTooLong):
			q.Err = err
			st.abort(ErrorCodeResponseTooLong)
			s.finishStream(st, q, QueryFailed)
		case errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF):
			// FIN before a single complete response, or mid-frame.
			q.Err = ErrFramingViolation
			st.abort(ErrorCodeProtocol)
			s.finishStream(st, q, QueryFailed)
		default:
			q.Err = err
			s.finishStream(st, q, QueryFailed)
		}
		return
	}
}

// isPeerReset reports whether err is a remote stream reset, the event
// the engine surfaces as QueryCancelled rather than QueryFailed.
func isPeerReset(err error) bool {
	var serr *quic.StreamError
	return errors.As(err, &serr) && serr.Remote
}

func (s *Service) finishStream(st *stream, q *Query, code ReturnCode) {
	st.conn.deleteStream(st.id)
	q.deliver(code)
}

// CancelQuery abandons a query previously posted with PostQuery,
// resetting its stream and asking the peer to stop sending, mirroring
// quicdoq_cancel_query. Unlike the reference implementation -- whose
// quicdoq_cancel_query body is a no-op that merely records the intent
// -- this actually issues the stream reset/stop-sending pair the
// documentation in quicdoq.h promises, and delivers QueryCancelled once
// the reset completes.
func (s *Service) CancelQuery(q *Query) {
	if q.st == nil {
		return
	}
	q.st.abort(ErrorCodeInternal)
}

// connectionFor returns the registered connection for (addr, sni),
// dialing and registering a new one if none exists.
func (s *Service) connectionFor(ctx context.Context, addr net.Addr, sni string) (*Connection, error) {
	if conn, ok := s.registry.lookup(addr, sni); ok {
		return conn, nil
	}
	qc, err := s.dialer.DialDoQ(ctx, addr, sni)
	if err != nil {
		return nil, err
	}
	conn := newConnection(qc, sni, false)
	s.registry.put(conn)
	return conn, nil
}

// PostResponse delivers the application's response to an incoming
// query previously announced through the server callback, mirroring
// quicdoq_post_response.
func (s *Service) PostResponse(q *Query, data []byte) error {
	if q.st == nil {
		return fmt.Errorf("quicdoq: query has no associated stream")
	}
	err := q.st.sendResponse(data)
	q.st.conn.deleteStream(q.st.id)
	return err
}

// CancelResponse terminates an incoming query without a response,
// resetting the stream with errorCode so the client observes a failure
// instead of an indefinite hang, mirroring quicdoq_cancel_response.
func (s *Service) CancelResponse(q *Query, errorCode uint64) error {
	if q.st == nil {
		return fmt.Errorf("quicdoq: query has no associated stream")
	}
	q.st.markResponded()
	q.st.abort(errorCode)
	q.st.conn.deleteStream(q.st.id)
	return nil
}

// Close shuts down the service, closing every registered connection.
func (s *Service) Close() error {
	s.registry.closeAll(ErrorCodeInternal)
	return nil
}
