// SPDX-License-Identifier: BSD-3-Clause
//
// Adapted from: https://github.com/private-octopus/quicdoq/blob/master/quicdoq/quicdoq_util.c
// (quicdog_format_dns_query)
//

package dnswire

// TypeOPT is the RRTYPE of the EDNS(0) pseudo-RR.
const TypeOPT = 41

// EncodeQuery builds a complete DNS query message: a 12-byte header with
// QDCOUNT=1, ANCOUNT=0, NSCOUNT=0, ARCOUNT=1, followed by the question
// (qname/qtype/qclass) and a trailing OPT RR advertising maxUDPPayload as
// the requestor's UDP payload size. All header flags are zero.
func EncodeQuery(id uint16, qname string, qtype, qclass, maxUDPPayload uint16) ([]byte, error) {
	data := make([]byte, 0, HeaderSize+len(qname)+16)

	data = putU16(data, id)
	data = append(data, 0x00) // QR=0, Opcode=0, AA=0, TC=0, RD=0
	data = append(data, 0x00) // RA=0, Z=0, AD=0, CD=0, RCODE=0
	data = putU16(data, 1)    // QDCOUNT
	data = putU16(data, 0)    // ANCOUNT
	data = putU16(data, 0)    // NSCOUNT
	data = putU16(data, 1)    // ARCOUNT

	data, err := EncodeName(data, qname)
	if err != nil {
		return nil, err
	}
	data = putU16(data, qtype)
	data = putU16(data, qclass)

	// OPT RR: empty (root) name, TYPE=OPT, CLASS=maxUDPPayload,
	// TTL=0 (extended RCODE/flags), RDLEN=0.
	data = append(data, 0x00)
	data = putU16(data, TypeOPT)
	data = putU16(data, maxUDPPayload)
	data = append(data, 0x00, 0x00, 0x00, 0x00) // TTL
	data = putU16(data, 0)                      // RDLEN

	return data, nil
}
