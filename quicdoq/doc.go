// SPDX-License-Identifier: BSD-3-Clause
//
// Adapted from: https://github.com/private-octopus/quicdoq (quicdoq.h, quicdoq_internal.h, quicdoq.c)
//

// Package quicdoq implements a DNS-over-QUIC (RFC 9250) client and server
// engine: a connection registry keyed by peer address and SNI, a
// per-connection stream state machine, and a typed callback contract
// through which the application posts queries and responses.
//
// The reference engine this package is modeled on runs as a single
// cooperative event loop driven by one transport callback. This port
// instead follows the idiom this module's DoQ examples converge on:
// goroutine-per-connection, goroutine-per-stream, with connection and
// stream state guarded by a mutex rather than single-threaded by
// construction. The wire semantics -- framing, stream roles, transport
// parameter policy, error codes -- are unchanged.
package quicdoq
