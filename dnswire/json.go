// SPDX-License-Identifier: BSD-3-Clause
//
// Adapted from: https://github.com/private-octopus/quicdoq/blob/master/quicdoq/quicdoq_util.c
// (quicdoq_parse_dns_query, quicdoq_parse_dns_RR)
//

package dnswire

import (
	"encoding/hex"
	"encoding/json"
	"strings"
)

// RR is the JSON-rendered shape of one resource record: its owner name,
// type, class, TTL, and hex-encoded RDATA. RDATA is never interpreted;
// logging only needs to show that it was present.
type RR struct {
	NAME     string `json:"NAME"`
	TYPE     uint16 `json:"TYPE"`
	CLASS    uint16 `json:"CLASS"`
	TTL      uint32 `json:"TTL"`
	RDATAHEX string `json:"RDATAHEX"`
}

// Message is the JSON-rendered shape of a complete DNS message, matching
// the field names and nesting produced by this module's DoQ/DoH query
// and response logging.
type Message struct {
	ID            uint16 `json:"ID"`
	QR            int    `json:"QR"`
	Opcode        uint8  `json:"Opcode"`
	AA            int    `json:"AA"`
	TC            int    `json:"TC"`
	RD            int    `json:"RD"`
	RA            int    `json:"RA"`
	AD            int    `json:"AD"`
	CD            int    `json:"CD"`
	RCODE         uint8  `json:"RCODE"`
	QDCOUNT       uint16 `json:"QDCOUNT"`
	ANCOUNT       uint16 `json:"ANCOUNT"`
	NSCOUNT       uint16 `json:"NSCOUNT"`
	ARCOUNT       uint16 `json:"ARCOUNT"`
	QNAME         string `json:"QNAME"`
	QTYPE         uint16 `json:"QTYPE"`
	QCLASS        uint16 `json:"QCLASS"`
	AnswerRRs     []RR   `json:"answerRRs"`
	AuthorityRRs  []RR   `json:"authorityRRs"`
	AdditionalRRs []RR   `json:"additionalRRs"`
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// parseRR reads one resource record starting at off and returns its JSON
// shape plus the offset of the byte following it.
func parseRR(packet []byte, off int) (RR, int, error) {
	name, next, err := DecodeName(packet, off)
	if err != nil {
		return RR{}, 0, err
	}
	typ, err := getU16(packet, next)
	if err != nil {
		return RR{}, 0, err
	}
	class, err := getU16(packet, next+2)
	if err != nil {
		return RR{}, 0, err
	}
	ttl, err := getU32(packet, next+4)
	if err != nil {
		return RR{}, 0, err
	}
	rdlen, err := getU16(packet, next+8)
	if err != nil {
		return RR{}, 0, err
	}
	rdStart := next + 10
	rdEnd := rdStart + int(rdlen)
	if rdEnd > len(packet) {
		return RR{}, 0, ErrShortMessage
	}
	return RR{
		NAME:     name,
		TYPE:     typ,
		CLASS:    class,
		TTL:      ttl,
		RDATAHEX: strings.ToUpper(hex.EncodeToString(packet[rdStart:rdEnd])),
	}, rdEnd, nil
}

// skipRRName advances past an RR's name without rendering it, used when
// scanning ahead (e.g. the question section, whose name is rendered
// separately as QNAME).
func skipRRName(packet []byte, off int) (int, error) {
	_, next, err := DecodeName(packet, off)
	return next, err
}

// parseRRs reads count consecutive resource records starting at off.
func parseRRs(packet []byte, off int, count uint16) ([]RR, int, error) {
	rrs := make([]RR, 0, count)
	for i := uint16(0); i < count; i++ {
		rr, next, err := parseRR(packet, off)
		if err != nil {
			return nil, 0, err
		}
		rrs = append(rrs, rr)
		off = next
	}
	return rrs, off, nil
}

// ParseMessage decodes packet into its [Message] JSON shape. The
// question section's single QNAME/QTYPE/QCLASS are hoisted to top-level
// fields, matching the rendering this module's DoQ/DoH stack logs.
func ParseMessage(packet []byte) (Message, error) {
	if len(packet) < HeaderSize {
		return Message{}, ErrShortMessage
	}
	id, err := ID(packet)
	if err != nil {
		return Message{}, err
	}
	flags, err := DecodeFlags(packet)
	if err != nil {
		return Message{}, err
	}
	counts, err := DecodeCounts(packet)
	if err != nil {
		return Message{}, err
	}

	off := HeaderSize
	var qname string
	var qtype, qclass uint16
	if counts.QDCOUNT > 0 {
		qname, off, err = DecodeName(packet, off)
		if err != nil {
			return Message{}, err
		}
		qtype, err = getU16(packet, off)
		if err != nil {
			return Message{}, err
		}
		qclass, err = getU16(packet, off+2)
		if err != nil {
			return Message{}, err
		}
		off += 4
		for i := uint16(1); i < counts.QDCOUNT; i++ {
			off, err = skipRRName(packet, off)
			if err != nil {
				return Message{}, err
			}
			off += 4
		}
	}

	answers, off, err := parseRRs(packet, off, counts.ANCOUNT)
	if err != nil {
		return Message{}, err
	}
	authority, off, err := parseRRs(packet, off, counts.NSCOUNT)
	if err != nil {
		return Message{}, err
	}
	additional, _, err := parseRRs(packet, off, counts.ARCOUNT)
	if err != nil {
		return Message{}, err
	}

	return Message{
		ID:            id,
		QR:            boolToInt(flags.QR),
		Opcode:        flags.Opcode,
		AA:            boolToInt(flags.AA),
		TC:            boolToInt(flags.TC),
		RD:            boolToInt(flags.RD),
		RA:            boolToInt(flags.RA),
		AD:            boolToInt(flags.AD),
		CD:            boolToInt(flags.CD),
		RCODE:         flags.RCODE,
		QDCOUNT:       counts.QDCOUNT,
		ANCOUNT:       counts.ANCOUNT,
		NSCOUNT:       counts.NSCOUNT,
		ARCOUNT:       counts.ARCOUNT,
		QNAME:         qname,
		QTYPE:         qtype,
		QCLASS:        qclass,
		AnswerRRs:     answers,
		AuthorityRRs:  authority,
		AdditionalRRs: additional,
	}, nil
}

// ToJSON renders packet as compact (non-indented) JSON matching
// [Message]'s field layout.
func ToJSON(packet []byte) ([]byte, error) {
	msg, err := ParseMessage(packet)
	if err != nil {
		return nil, err
	}
	return json.Marshal(msg)
}
