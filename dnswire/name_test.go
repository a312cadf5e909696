// SPDX-License-Identifier: BSD-3-Clause

package dnswire

import "testing"

func TestEncodeNamePassthroughChars(t *testing.T) {
	cases := []struct {
		name string
		want []byte
	}{
		{"example.com.", []byte{7, 'e', 'x', 'a', 'm', 'p', 'l', 'e', 3, 'c', 'o', 'm', 0}},
		{"example-2.com.", []byte{9, 'e', 'x', 'a', 'm', 'p', 'l', 'e', '-', '2', 3, 'c', 'o', 'm', 0}},
		{"example_3.com.", []byte{9, 'e', 'x', 'a', 'm', 'p', 'l', 'e', '_', '3', 3, 'c', 'o', 'm', 0}},
		{`example\0465.com.`, []byte{9, 'e', 'x', 'a', 'm', 'p', 'l', 'e', '.', '5', 3, 'c', 'o', 'm', 0}},
		{`example\1276.com.`, []byte{9, 'e', 'x', 'a', 'm', 'p', 'l', 'e', 0x7F, '6', 3, 'c', 'o', 'm', 0}},
		{`\032example-8.com.`, []byte{10, ' ', 'e', 'x', 'a', 'm', 'p', 'l', 'e', '-', '8', 3, 'c', 'o', 'm', 0}},
	}
	for _, tc := range cases {
		got, err := EncodeName(nil, tc.name)
		if err != nil {
			t.Fatalf("EncodeName(%q): %v", tc.name, err)
		}
		if string(got) != string(tc.want) {
			t.Errorf("EncodeName(%q) = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestDecodeNameEscaping(t *testing.T) {
	cases := []struct {
		wire []byte
		want string
	}{
		{[]byte{7, 'e', 'x', 'a', 'm', 'p', 'l', 'e', 3, 'c', 'o', 'm', 0}, "example.com."},
		{[]byte{9, 'e', 'x', 'a', 'm', 'p', 'l', 'e', ' ', '7', 3, 'c', 'o', 'm', 0}, "example 7.com."},
		{[]byte{9, 'e', 'x', 'a', 'm', 'p', 'l', 'e', '-', '9', 3, 0x8c, 0xFF, 0x81, 0}, `example-9.\140\255\129.`},
	}
	for _, tc := range cases {
		got, _, err := DecodeName(tc.wire, 0)
		if err != nil {
			t.Fatalf("DecodeName(%v): %v", tc.wire, err)
		}
		if got != tc.want {
			t.Errorf("DecodeName(%v) = %q, want %q", tc.wire, got, tc.want)
		}
	}
}

func TestDecodeNameRoundTrip(t *testing.T) {
	for _, name := range []string{"example.com.", "a.b.c.", "."} {
		wire, err := EncodeName(nil, name)
		if err != nil {
			t.Fatalf("EncodeName(%q): %v", name, err)
		}
		got, next, err := DecodeName(wire, 0)
		if err != nil {
			t.Fatalf("DecodeName(%q): %v", name, err)
		}
		if got != name {
			t.Errorf("round trip %q => %q", name, got)
		}
		if next != len(wire) {
			t.Errorf("round trip %q: next=%d, want %d", name, next, len(wire))
		}
	}
}

func TestDecodeNameCompressionPointer(t *testing.T) {
	// "com." at offset 0, "example.com." at offset 5 via a pointer back to offset 0.
	packet := []byte{3, 'c', 'o', 'm', 0, 7, 'e', 'x', 'a', 'm', 'p', 'l', 'e', 0xC0, 0x00}
	got, next, err := DecodeName(packet, 5)
	if err != nil {
		t.Fatalf("DecodeName: %v", err)
	}
	if got != "example.com." {
		t.Errorf("got %q, want %q", got, "example.com.")
	}
	if next != len(packet) {
		t.Errorf("next = %d, want %d", next, len(packet))
	}
}

func TestDecodeNameRejectsForwardPointer(t *testing.T) {
	packet := []byte{0xC0, 0x02, 0x00}
	_, _, err := DecodeName(packet, 0)
	if err != ErrNameLoop {
		t.Fatalf("got %v, want ErrNameLoop", err)
	}
}

func TestDecodeNameRejectsSelfPointer(t *testing.T) {
	packet := []byte{0xC0, 0x00}
	_, _, err := DecodeName(packet, 0)
	if err != ErrNameLoop {
		t.Fatalf("got %v, want ErrNameLoop", err)
	}
}

func TestEncodeNameEmptyLabel(t *testing.T) {
	_, err := EncodeName(nil, "a..b.")
	if err != ErrEmptyLabel {
		t.Fatalf("got %v, want ErrEmptyLabel", err)
	}
}

func TestEncodeNameTooLong(t *testing.T) {
	long := make([]byte, 0, 260)
	for i := 0; i < 50; i++ {
		long = append(long, []byte("aaaaa.")...)
	}
	_, err := EncodeName(nil, string(long))
	if err != ErrNameTooLong {
		t.Fatalf("got %v, want ErrNameTooLong", err)
	}
}
