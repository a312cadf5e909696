// SPDX-License-Identifier: BSD-3-Clause
//
// Adapted from: https://github.com/private-octopus/quicdoq/blob/master/quicdoq/quicdoq.c
// (quicdoq_callback_create_context, quicdoq_callback, quicdoq_callback_data)
//

package quicdoq

import (
	"context"
	"errors"
	"io"
)

// Listener accepts incoming QUIC connections for the server side of a
// Service. Implementations wrap [github.com/quic-go/quic-go.Listener].
type Listener interface {
	Accept(ctx context.Context) (quicConn, error)
	Close() error
}

// Serve accepts connections from ln until ctx is cancelled or Accept
// returns an error, dispatching one goroutine per connection and one
// goroutine per stream, following the accept-loop idiom this module's
// DoQ listeners converge on.
func (s *Service) Serve(ctx context.Context, ln Listener) error {
	if s.callback == nil {
		return errors.New("quicdoq: service has no server callback, cannot serve")
	}
	for {
		qc, err := ln.Accept(ctx)
		if err != nil {
			return err
		}
		conn := newConnection(qc, qc.ServerName(), true)
		s.registry.put(conn)
		go s.serveConnection(ctx, conn)
	}
}

func (s *Service) serveConnection(ctx context.Context, conn *Connection) {
	defer s.registry.remove(conn)
	for {
		qs, err := conn.conn.AcceptStream(ctx)
		if err != nil {
			conn.close(ErrorCodeInternal)
			return
		}
		st := conn.registerStream(qs, false)
		go s.serveStream(st, conn)
	}
}

func (s *Service) serveStream(st *stream, conn *Connection) {
	st.transition(streamReceiving)
	data, err := readFramedMessage(st.qs, maxMessageSize)
	if err != nil {
		conn.deleteStream(st.id)
		// A FIN before the length prefix and declared payload are
		// complete is a framing violation that closes the connection.
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			s.logger.Printf("quicdoq: closing connection %s: truncated query on stream %d", conn.addr, st.id)
			conn.close(ErrorCodeProtocol)
		}
		return
	}
	// A client sends exactly one length-prefixed query and then a FIN;
	// any byte beyond the declared payload is a framing violation that
	// closes the whole connection.
	var excess [1]byte
	n, rerr := st.qs.Read(excess[:])
	switch {
	case n == 0 && errors.Is(rerr, io.EOF):
		// clean FIN right after the framed query
	case n == 0 && isPeerReset(rerr):
		conn.deleteStream(st.id)
		return
	default:
		s.logger.Printf("quicdoq: closing connection %s: excess bytes after query on stream %d", conn.addr, st.id)
		conn.deleteStream(st.id)
		conn.close(ErrorCodeProtocol)
		return
	}
	// RFC 9250 Section 4.2.1: the on-wire DNS message ID MUST be
	// 0x0000 since the QUIC stream already disambiguates concurrent
	// exchanges. A non-zero ID, or a message too short to carry one,
	// is a framing violation that closes the whole connection.
	if len(data) < 2 || data[0] != 0 || data[1] != 0 {
		s.logger.Printf("quicdoq: closing connection %s: query on stream %d has non-zero DNS message ID", conn.addr, st.id)
		conn.deleteStream(st.id)
		conn.close(ErrorCodeProtocol)
		return
	}

	q := &Query{
		ServerName: conn.sni,
		ClientAddr: conn.addr,
		ID:         uint16(s.nextQueryID.Add(1)),
		QueryData:  data,
		st:         st,
	}
	go st.watchAbort(func() {
		s.callback(ResponseCancelled, q)
	})
	s.callback(IncomingQuery, q)
}
