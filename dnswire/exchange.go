// SPDX-License-Identifier: BSD-3-Clause
//
// Adapted from: https://github.com/bassosimone/minest/blob/main/query.go
// Adapted from: https://github.com/bassosimone/minest/blob/main/response.go
//

package dnswire

import (
	"errors"

	"github.com/miekg/dns"
	"golang.org/x/net/idna"
)

// Additional errors emitted by [ValidateExchange].
var (
	// ErrInvalidQuery means that the query does not contain a single question.
	ErrInvalidQuery = errors.New("dnswire: invalid query")

	// ErrInvalidResponse means that the response does not answer the query.
	ErrInvalidResponse = errors.New("dnswire: invalid response")
)

// NewExchangeQuery builds the on-wire form of a query for a
// human-entered domain name, IDNA-encoding it and qualifying it fully
// before packing. The message ID is always zero, as required on a DoQ
// stream; maxUDPPayload is advertised through EDNS(0).
//
// Unlike [EncodeQuery], which copies label octets verbatim and accepts
// "\DDD" escapes, this helper accepts the names users actually type,
// including internationalized ones.
func NewExchangeQuery(name string, qtype, maxUDPPayload uint16) ([]byte, error) {
	punyName, err := idna.Lookup.ToASCII(name)
	if err != nil {
		return nil, err
	}
	if !dns.IsFqdn(punyName) {
		punyName = dns.Fqdn(punyName)
	}

	msg := new(dns.Msg)
	msg.Id = 0
	msg.RecursionDesired = true
	msg.Question = []dns.Question{{
		Name:   punyName,
		Qtype:  qtype,
		Qclass: dns.ClassINET,
	}}
	msg.SetEdns0(maxUDPPayload, false)
	return msg.Pack()
}

// ParseExchangeResponse unpacks a response received over DoQ.
func ParseExchangeResponse(data []byte) (*dns.Msg, error) {
	msg := new(dns.Msg)
	if err := msg.Unpack(data); err != nil {
		return nil, err
	}
	return msg, nil
}

// ValidateExchange checks that resp actually answers query: it must be
// a response, it must echo the query's ID, and its question section
// must match the query's.
func ValidateExchange(query, resp *dns.Msg) error {
	if !resp.Response {
		return ErrInvalidResponse
	}
	if resp.Id != query.Id {
		return ErrInvalidResponse
	}
	if len(query.Question) != 1 {
		return ErrInvalidQuery
	}
	if len(resp.Question) != 1 {
		return ErrInvalidResponse
	}
	query0, resp0 := query.Question[0], resp.Question[0]
	if !equalASCIIName(resp0.Name, query0.Name) {
		return ErrInvalidResponse
	}
	if resp0.Qclass != query0.Qclass || resp0.Qtype != query0.Qtype {
		return ErrInvalidResponse
	}
	return nil
}

func equalASCIIName(x, y string) bool {
	if len(x) != len(y) {
		return false
	}
	for i := 0; i < len(x); i++ {
		a := x[i]
		b := y[i]
		if 'A' <= a && a <= 'Z' {
			a += 0x20
		}
		if 'A' <= b && b <= 'Z' {
			b += 0x20
		}
		if a != b {
			return false
		}
	}
	return true
}
