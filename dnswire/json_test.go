// SPDX-License-Identifier: BSD-3-Clause

package dnswire

import (
	"encoding/json"
	"testing"
)

func TestParseMessageReferenceQuery(t *testing.T) {
	packet := []byte{
		1, 255, 0, 0,
		0, 1, 0, 0, 0, 0, 0, 1,
		7, 'e', 'x', 'a', 'm', 'p', 'l', 'e', 3, 'c', 'o', 'm', 0, 0, 1, 0, 0,
		0, 0, 41, 8, 0, 0, 0, 0, 0, 0, 0,
	}
	msg, err := ParseMessage(packet)
	if err != nil {
		t.Fatalf("ParseMessage: %v", err)
	}
	if msg.ID != 511 {
		t.Errorf("ID = %d, want 511", msg.ID)
	}
	if msg.QR != 0 || msg.Opcode != 0 || msg.AA != 0 || msg.TC != 0 || msg.RD != 0 {
		t.Errorf("unexpected flags: %+v", msg)
	}
	if msg.QDCOUNT != 1 || msg.ARCOUNT != 1 {
		t.Errorf("unexpected counts: %+v", msg)
	}
	if msg.QNAME != "example.com." || msg.QTYPE != 1 || msg.QCLASS != 0 {
		t.Errorf("unexpected question: %+v", msg)
	}
	if len(msg.AdditionalRRs) != 1 {
		t.Fatalf("additionalRRs = %d, want 1", len(msg.AdditionalRRs))
	}
	rr := msg.AdditionalRRs[0]
	if rr.NAME != "." || rr.TYPE != 41 || rr.CLASS != 2048 || rr.TTL != 0 || rr.RDATAHEX != "" {
		t.Errorf("unexpected OPT RR: %+v", rr)
	}
}

func TestToJSONRoundTrips(t *testing.T) {
	wire, err := EncodeQuery(42, "a.example.", 1, 0, 1232)
	if err != nil {
		t.Fatalf("EncodeQuery: %v", err)
	}
	out, err := ToJSON(wire)
	if err != nil {
		t.Fatalf("ToJSON: %v", err)
	}
	if len(out) == 0 {
		t.Fatal("ToJSON returned empty output")
	}
	var msg Message
	if err := json.Unmarshal(out, &msg); err != nil {
		t.Fatalf("json.Unmarshal: %v", err)
	}
	if msg.ID != 42 || msg.QNAME != "a.example." || msg.QTYPE != 1 || msg.QCLASS != 0 {
		t.Errorf("unexpected decoded message: %+v", msg)
	}
}

func TestParseMessageShortHeader(t *testing.T) {
	_, err := ParseMessage([]byte{0, 1, 2})
	if err != ErrShortMessage {
		t.Fatalf("got %v, want ErrShortMessage", err)
	}
}
