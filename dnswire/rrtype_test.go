// SPDX-License-Identifier: BSD-3-Clause

package dnswire

import "testing"

func TestRRTypeByNameTable(t *testing.T) {
	cases := map[string]uint16{
		"A": 1, "NS": 2, "CNAME": 5, "SOA": 6, "MX": 15, "TXT": 16,
		"AAAA": 28, "SRV": 33, "OPT": 41, "DS": 43, "RRSIG": 46,
		"NSEC": 47, "DNSKEY": 48, "TLSA": 52, "CAA": 257, "DLV": 32769,
	}
	for name, want := range cases {
		if got := RRTypeByName(name); got != want {
			t.Errorf("RRTypeByName(%q) = %d, want %d", name, got, want)
		}
	}
}

func TestRRTypeByNameDecimalFallback(t *testing.T) {
	if got := RRTypeByName("12345"); got != 12345 {
		t.Errorf("RRTypeByName(12345) = %d, want 12345", got)
	}
	if got := RRTypeByName("0"); got != 0 {
		t.Errorf("RRTypeByName(0) = %d, want 0", got)
	}
}

func TestRRTypeByNameUnknown(t *testing.T) {
	cases := []string{"NOTATYPE", "12A34", ""}
	for _, name := range cases {
		if got := RRTypeByName(name); got != TypeUnknown {
			t.Errorf("RRTypeByName(%q) = %d, want TypeUnknown", name, got)
		}
	}
}
