// SPDX-License-Identifier: BSD-3-Clause
//
// Adapted from: https://github.com/private-octopus/quicdoq/blob/master/quicdoq/quicdoq_util.c
//

package dnswire

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrNameTooLong indicates that an encoded name exceeds the 255-octet limit.
var ErrNameTooLong = errors.New("dnswire: name too long")

// ErrEmptyLabel indicates that the textual name contains a non-terminating
// empty label (two consecutive dots).
var ErrEmptyLabel = errors.New("dnswire: empty label")

// ErrLabelTooLong indicates that a label exceeds 63 octets.
var ErrLabelTooLong = errors.New("dnswire: label too long")

// ErrInvalidEscape indicates a malformed "\DDD" escape sequence.
var ErrInvalidEscape = errors.New("dnswire: invalid escape sequence")

// EncodeName appends the on-wire encoding of a textual name to data and
// returns the result. The name is a sequence of '.'-separated labels,
// where "\DDD" (exactly three decimal digits) denotes a literal octet.
// No other escape syntax is accepted. A trailing dot is optional; the
// terminating root label is always appended. Octets are copied
// verbatim -- no case normalization is performed.
func EncodeName(data []byte, name string) ([]byte, error) {
	name = strings.TrimSuffix(name, ".")
	if name == "" {
		return append(data, 0x00), nil
	}

	start := len(data)
	labels := strings.Split(name, ".")
	for _, label := range labels {
		raw, err := unescapeLabel(label)
		if err != nil {
			return nil, err
		}
		if len(raw) == 0 {
			return nil, ErrEmptyLabel
		}
		if len(raw) > 0x3F {
			return nil, ErrLabelTooLong
		}
		data = append(data, byte(len(raw)))
		data = append(data, raw...)
	}
	data = append(data, 0x00)
	if len(data)-start > 255 {
		return nil, ErrNameTooLong
	}
	return data, nil
}

// unescapeLabel turns a textual label containing "\DDD" escapes into its
// raw octet form.
func unescapeLabel(label string) ([]byte, error) {
	out := make([]byte, 0, len(label))
	for i := 0; i < len(label); i++ {
		c := label[i]
		if c != '\\' {
			out = append(out, c)
			continue
		}
		if i+3 >= len(label) {
			return nil, ErrInvalidEscape
		}
		digits := label[i+1 : i+4]
		for _, d := range digits {
			if d < '0' || d > '9' {
				return nil, ErrInvalidEscape
			}
		}
		v, err := strconv.Atoi(digits)
		if err != nil || v > 255 {
			return nil, ErrInvalidEscape
		}
		out = append(out, byte(v))
		i += 3
	}
	return out, nil
}

// ErrNameLoop indicates that a compression pointer does not strictly
// point backwards, which would otherwise cause an infinite decoding loop.
var ErrNameLoop = errors.New("dnswire: compression pointer loop")

// ErrUnknownLabelType indicates a label whose top two bits are 01 or 10.
var ErrUnknownLabelType = errors.New("dnswire: unknown label type")

// ErrTruncatedName indicates the name runs past the end of the message.
var ErrTruncatedName = errors.New("dnswire: truncated name")

// DecodeName decodes the name starting at offset start in packet, honoring
// compression pointers, and returns the textual form plus the offset of
// the first byte after the name as it appears at start (not following
// any pointer). Each non-printable octet, '.', '\', leading/trailing
// space, or high-bit octet is rendered as "\DDD"; a trailing '.' is
// always appended.
func DecodeName(packet []byte, start int) (string, int, error) {
	var sb strings.Builder
	pos := start
	nextOffset := -1
	visited := 0

	for {
		if pos >= len(packet) {
			return "", 0, ErrTruncatedName
		}
		l := packet[pos]
		switch {
		case l == 0:
			pos++
			if nextOffset == -1 {
				nextOffset = pos
			}
			sb.WriteByte('.')
			return sb.String(), nextOffset, nil
		case l&0xC0 == 0xC0:
			if pos+2 > len(packet) {
				return "", 0, ErrTruncatedName
			}
			target := (int(l&0x3F) << 8) | int(packet[pos+1])
			if target >= pos {
				return "", 0, ErrNameLoop
			}
			if nextOffset == -1 {
				nextOffset = pos + 2
			}
			pos = target
			visited++
			if visited > len(packet) {
				return "", 0, ErrNameLoop
			}
		case l&0xC0 != 0:
			return "", 0, ErrUnknownLabelType
		default:
			labelStart := pos + 1
			labelEnd := labelStart + int(l)
			if labelEnd > len(packet) {
				return "", 0, ErrTruncatedName
			}
			if sb.Len() > 0 {
				sb.WriteByte('.')
			}
			writeEscapedLabel(&sb, packet[labelStart:labelEnd])
			pos = labelEnd
		}
	}
}

// writeEscapedLabel writes raw into sb, escaping any octet that is
// non-printable, '.', '\', a leading/trailing space, or has the high bit
// set, as "\DDD" (three-digit zero-padded decimal).
func writeEscapedLabel(sb *strings.Builder, raw []byte) {
	for i, c := range raw {
		leadOrTrailSpace := c == ' ' && (i == 0 || i == len(raw)-1)
		if c < 0x20 || c >= 0x7F || c == '.' || c == '\\' || leadOrTrailSpace {
			fmt.Fprintf(sb, "\\%03d", c)
		} else {
			sb.WriteByte(c)
		}
	}
}
