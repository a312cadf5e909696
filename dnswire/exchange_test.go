// SPDX-License-Identifier: BSD-3-Clause

package dnswire

import (
	"testing"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/require"
)

func TestNewExchangeQueryForcesZeroID(t *testing.T) {
	wire, err := NewExchangeQuery("example.com", dns.TypeA, 1232)
	require.NoError(t, err)

	id, err := ID(wire)
	require.NoError(t, err)
	require.Equal(t, uint16(0), id)
}

func TestNewExchangeQueryEncodesIDNA(t *testing.T) {
	wire, err := NewExchangeQuery("bücher.example", dns.TypeA, 1232)
	require.NoError(t, err)

	msg := new(dns.Msg)
	require.NoError(t, msg.Unpack(wire))
	require.Len(t, msg.Question, 1)
	require.Equal(t, "xn--bcher-kva.example.", msg.Question[0].Name)
}

func TestNewExchangeQueryRejectsInvalidName(t *testing.T) {
	_, err := NewExchangeQuery("exa mple.com", dns.TypeA, 1232)
	require.Error(t, err)
}

func TestNewExchangeQueryParsesBackThroughWireCodec(t *testing.T) {
	wire, err := NewExchangeQuery("example.com", dns.TypeAAAA, 1232)
	require.NoError(t, err)

	parsed, err := ParseMessage(wire)
	require.NoError(t, err)
	require.Equal(t, "example.com.", parsed.QNAME)
	require.Equal(t, uint16(dns.TypeAAAA), parsed.QTYPE)
	require.Equal(t, uint16(dns.ClassINET), parsed.QCLASS)
	require.Equal(t, uint16(1), parsed.QDCOUNT)
	require.Equal(t, uint16(1), parsed.ARCOUNT)
}

func TestValidateExchange(t *testing.T) {
	query := new(dns.Msg)
	query.SetQuestion("example.com.", dns.TypeA)
	query.Id = 0

	t.Run("accepts a matching response", func(t *testing.T) {
		resp := new(dns.Msg)
		resp.SetReply(query)
		require.NoError(t, ValidateExchange(query, resp))
	})

	t.Run("rejects a non-response", func(t *testing.T) {
		require.ErrorIs(t, ValidateExchange(query, query.Copy()), ErrInvalidResponse)
	})

	t.Run("rejects a mismatched ID", func(t *testing.T) {
		resp := new(dns.Msg)
		resp.SetReply(query)
		resp.Id = 1
		require.ErrorIs(t, ValidateExchange(query, resp), ErrInvalidResponse)
	})

	t.Run("rejects a mismatched question", func(t *testing.T) {
		resp := new(dns.Msg)
		resp.SetReply(query)
		resp.Question[0].Name = "other.example."
		require.ErrorIs(t, ValidateExchange(query, resp), ErrInvalidResponse)
	})

	t.Run("accepts case-insensitive name echo", func(t *testing.T) {
		resp := new(dns.Msg)
		resp.SetReply(query)
		resp.Question[0].Name = "EXAMPLE.com."
		require.NoError(t, ValidateExchange(query, resp))
	})
}
