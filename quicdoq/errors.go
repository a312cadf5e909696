// SPDX-License-Identifier: BSD-3-Clause
//
// Adapted from: https://github.com/private-octopus/quicdoq/blob/master/quicdoq/quicdoq.h
//

package quicdoq

import "errors"

// ALPN is the application-layer protocol negotiation token for DNS over
// QUIC (RFC 9250).
const ALPN = "doq"

// DefaultPort is the historical DoQ port used before RFC 9250 assigned
// 853; kept as the default for interop with existing deployments.
const DefaultPort = 784

// QUIC application error codes used to close streams and report
// failures to the peer.
const (
	ErrorCodeInternal         = 0x201
	ErrorCodeResponseTooLong  = 0x202
	ErrorCodeResponseTimedOut = 0x203
	ErrorCodeQueryTooLong     = 0x204

	// ErrorCodeProtocol closes a connection that violated DoQ framing:
	// a length mismatch, a FIN before the declared payload was
	// complete, excess bytes on a server stream, or a non-zero DNS
	// message ID on a server-received query (RFC 9250 Section 4.2.1).
	ErrorCodeProtocol = 0x205
)

// Sentinel errors surfaced through [QueryFailed] and by the connection
// registry and stream state machine.
var (
	// ErrQueryTooLong indicates a query exceeds the negotiated stream
	// limit or the codec's 16-bit length prefix.
	ErrQueryTooLong = errors.New("quicdoq: query too long")

	// ErrResponseTooLong indicates a response exceeds the negotiated
	// stream limit or the codec's 16-bit length prefix.
	ErrResponseTooLong = errors.New("quicdoq: response too long")

	// ErrConnectionClosed indicates the underlying QUIC connection was
	// closed, reset, or became unavailable before a query completed.
	ErrConnectionClosed = errors.New("quicdoq: connection closed")

	// ErrStreamReset indicates the peer reset the stream carrying the
	// query or response.
	ErrStreamReset = errors.New("quicdoq: stream reset")

	// ErrFramingViolation indicates the peer violated DoQ framing: a
	// FIN before at least one complete length-prefixed message, or a
	// FIN in the middle of a declared payload.
	ErrFramingViolation = errors.New("quicdoq: DoQ framing violation")

	// ErrQueryCancelled indicates the application cancelled the query
	// before a response arrived.
	ErrQueryCancelled = errors.New("quicdoq: query cancelled")

	// ErrServiceClosed indicates the service was shut down.
	ErrServiceClosed = errors.New("quicdoq: service closed")
)
