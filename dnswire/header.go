// SPDX-License-Identifier: BSD-3-Clause
//
// Adapted from: https://github.com/private-octopus/quicdoq/blob/master/quicdoq/quicdoq_util.c
//

package dnswire

import "errors"

// HeaderSize is the fixed size, in octets, of a DNS message header.
const HeaderSize = 12

// ErrShortMessage indicates that a message is too short to contain the
// structure being parsed.
var ErrShortMessage = errors.New("dnswire: message too short")

// RcodeRefused is the RCODE used to refuse a query.
const RcodeRefused = 5

// Flags mirrors the second and third header octets, decomposed bit by bit.
type Flags struct {
	QR     bool
	Opcode uint8
	AA     bool
	TC     bool
	RD     bool
	RA     bool
	AD     bool
	CD     bool
	RCODE  uint8
}

// putU16 appends the big-endian encoding of v to data.
func putU16(data []byte, v uint16) []byte {
	return append(data, byte(v>>8), byte(v))
}

// getU16 reads a big-endian uint16 at offset off.
func getU16(packet []byte, off int) (uint16, error) {
	if off+2 > len(packet) {
		return 0, ErrShortMessage
	}
	return uint16(packet[off])<<8 | uint16(packet[off+1]), nil
}

// getU32 reads a big-endian uint32 at offset off.
func getU32(packet []byte, off int) (uint32, error) {
	if off+4 > len(packet) {
		return 0, ErrShortMessage
	}
	return uint32(packet[off])<<24 | uint32(packet[off+1])<<16 |
		uint32(packet[off+2])<<8 | uint32(packet[off+3]), nil
}

// DecodeFlags decomposes the flags octets of a parsed header.
func DecodeFlags(packet []byte) (Flags, error) {
	if len(packet) < HeaderSize {
		return Flags{}, ErrShortMessage
	}
	b2, b3 := packet[2], packet[3]
	return Flags{
		QR:     b2&0x80 != 0,
		Opcode: (b2 >> 3) & 0x0F,
		AA:     b2&0x04 != 0,
		TC:     b2&0x02 != 0,
		RD:     b2&0x01 != 0,
		RA:     b3&0x80 != 0,
		AD:     b3&0x20 != 0,
		CD:     b3&0x10 != 0,
		RCODE:  b3 & 0x0F,
	}, nil
}

// Counts mirrors the header's four 16-bit section counts.
type Counts struct {
	QDCOUNT uint16
	ANCOUNT uint16
	NSCOUNT uint16
	ARCOUNT uint16
}

// DecodeCounts reads the section counts from a parsed header.
func DecodeCounts(packet []byte) (Counts, error) {
	if len(packet) < HeaderSize {
		return Counts{}, ErrShortMessage
	}
	qd, _ := getU16(packet, 4)
	an, _ := getU16(packet, 6)
	ns, _ := getU16(packet, 8)
	ar, _ := getU16(packet, 10)
	return Counts{QDCOUNT: qd, ANCOUNT: an, NSCOUNT: ns, ARCOUNT: ar}, nil
}

// ID reads the message ID (the first two header octets).
func ID(packet []byte) (uint16, error) {
	return getU16(packet, 0)
}
