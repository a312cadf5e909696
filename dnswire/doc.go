// SPDX-License-Identifier: BSD-3-Clause
//
// Adapted from: https://github.com/private-octopus/quicdoq/blob/master/quicdoq/quicdoq_util.c
//

// Package dnswire implements a bit-exact DNS wire codec: name and query
// encoding, refusal-with-EDE synthesis, and the JSON rendering used for
// DoQ/DoH logging.
//
// The codec itself (names, queries, refusals, JSON rendering, RRTYPE
// table) never delegates to [github.com/miekg/dns]. The DoQ wire format
// (RFC 9250) and its accompanying EDNS(0)/EDE machinery are specified
// down to the byte in the system this package reimplements, so the codec
// builds and parses messages directly against the octet buffer instead
// of going through a general-purpose DNS library. Only the convenience
// helpers in exchange.go ([NewExchangeQuery], [ParseExchangeResponse],
// [ValidateExchange]) use miekg/dns.
package dnswire
