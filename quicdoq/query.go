// SPDX-License-Identifier: BSD-3-Clause
//
// Adapted from: https://github.com/private-octopus/quicdoq/blob/master/quicdoq/quicdoq.h
// (quicdoq_query_ctx_t, quicdoq_query_return_enum)
//

package quicdoq

import "net"

// ReturnCode identifies why a query's callback fired.
type ReturnCode int

const (
	// IncomingQuery signals a server-side callback carrying a freshly
	// received query.
	IncomingQuery ReturnCode = iota
	// QueryCancelled signals that a client-posted query was cancelled
	// before the server's response arrived.
	QueryCancelled
	// ResponseComplete signals that a client-posted query's response
	// arrived in full.
	ResponseComplete
	// ResponsePartial signals that a client-posted query received one
	// complete response and the server has started another on the same
	// stream (the multi-response pattern RFC 9250 allows before FIN).
	// ResponseData holds the completed intermediate response; a further
	// ResponsePartial, ResponseComplete, QueryCancelled, or QueryFailed
	// is still pending.
	ResponsePartial
	// ResponseCancelled signals that a server-side query's stream was
	// aborted (reset by the peer, or torn down with its connection)
	// before the application posted a response.
	ResponseCancelled
	// QueryFailed signals that a query failed for a reason other than
	// cancellation: connection loss, a framing violation, or a size
	// violation. A peer stream reset is reported as QueryCancelled.
	QueryFailed
)

// String renders the return code the way it is logged.
func (r ReturnCode) String() string {
	switch r {
	case IncomingQuery:
		return "incoming_query"
	case QueryCancelled:
		return "query_cancelled"
	case ResponseComplete:
		return "response_complete"
	case ResponsePartial:
		return "response_partial"
	case ResponseCancelled:
		return "response_cancelled"
	case QueryFailed:
		return "query_failed"
	default:
		return "unknown"
	}
}

// Callback is invoked to deliver a query's outcome. On the client side
// it is supplied by the caller of [Service.PostQuery] and fires zero or
// more times with ResponsePartial followed by exactly once with one of
// QueryCancelled, ResponseComplete, or QueryFailed. On the
// server side it is the service-wide callback registered with
// [NewService], and fires with IncomingQuery when a query arrives and
// again with ResponseCancelled if the client aborts before the
// application posts a response.
type Callback func(code ReturnCode, query *Query)

// Query mirrors a single query/response exchange, in either direction.
// On the client side, ServerName/ServerAddr identify the destination
// and QueryData is the caller's query; on the server side ServerName is
// the client's SNI, ClientAddr is the client's address, and QueryData
// is what the server received. Err carries the error behind QueryFailed
// when non-nil.
type Query struct {
	ServerName string
	ServerAddr net.Addr
	ClientAddr net.Addr

	// ID is assigned by whichever side originates the query: the
	// client for outgoing queries, the service's incoming-query counter
	// for incoming ones. It has no relation to the two-byte DNS message ID
	// carried inside QueryData -- DoQ streams already disambiguate
	// concurrent exchanges, so quicdoq always writes a zero message ID
	// on the wire (RFC 9250 Section 4.2.1).
	ID uint16

	QueryData    []byte
	ResponseData []byte

	Err error

	callback   Callback
	returnCode ReturnCode
	st         *stream
}

// NewQuery builds a client-originated query bound to the given server
// and callback. The callback fires exactly once with a terminal outcome,
// possibly preceded by ResponsePartial deliveries.
func NewQuery(serverName string, serverAddr net.Addr, data []byte, cb Callback) *Query {
	return &Query{
		ServerName: serverName,
		ServerAddr: serverAddr,
		QueryData:  data,
		callback:   cb,
	}
}

// ReturnCode reports the outcome most recently delivered through the
// query's callback.
func (q *Query) ReturnCode() ReturnCode {
	return q.returnCode
}

// deliver records the given outcome on the query and invokes the query's
// callback with it. It does not filter repeated deliveries: every call
// reaches the callback.
func (q *Query) deliver(code ReturnCode) {
	if q.callback == nil {
		return
	}
	q.returnCode = code
	q.callback(code, q)
}
