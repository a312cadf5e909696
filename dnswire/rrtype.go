// SPDX-License-Identifier: BSD-3-Clause
//
// Adapted from: https://github.com/private-octopus/quicdoq/blob/master/quicdoq/quicdoq_util.c
// (rr_table, quicdoq_get_rr_type)
//

package dnswire

// TypeUnknown is returned by RRTypeByName when a mnemonic is neither
// found in the table nor parseable as a decimal RRTYPE.
const TypeUnknown = 0xFFFF

// rrTypeTable maps RRTYPE mnemonics to their numeric codes, as registered
// with IANA.
var rrTypeTable = map[string]uint16{
	"A": 1, "NS": 2, "MD": 3, "MF": 4, "CNAME": 5, "SOA": 6, "MB": 7,
	"MG": 8, "MR": 9, "NULL": 10, "WKS": 11, "PTR": 12, "HINFO": 13,
	"MINFO": 14, "MX": 15, "TXT": 16, "RP": 17, "AFSDB": 18, "X25": 19,
	"ISDN": 20, "RT": 21, "NSAP": 22, "NSAP-PTR": 23, "SIG": 24,
	"KEY": 25, "PX": 26, "GPOS": 27, "AAAA": 28, "LOC": 29, "NXT": 30,
	"EID": 31, "NIMLOC": 32, "SRV": 33, "ATMA": 34, "NAPTR": 35,
	"KX": 36, "CERT": 37, "A6": 38, "DNAME": 39, "SINK": 40, "OPT": 41,
	"APL": 42, "DS": 43, "SSHFP": 44, "IPSECKEY": 45, "RRSIG": 46,
	"NSEC": 47, "DNSKEY": 48, "DHCID": 49, "NSEC3": 50,
	"NSEC3PARAM": 51, "TLSA": 52, "SMIMEA": 53, "Unassigned": 54,
	"HIP": 55, "NINFO": 56, "RKEY": 57, "TALINK": 58, "CDS": 59,
	"CDNSKEY": 60, "OPENPGPKEY": 61, "CSYNC": 62, "ZONEMD": 63,
	"SPF": 99, "UINFO": 100, "UID": 101, "GID": 102, "UNSPEC": 103,
	"NID": 104, "L32": 105, "L64": 106, "LP": 107, "EUI48": 108,
	"EUI64": 109, "TKEY": 249, "TSIG": 250, "IXFR": 251, "AXFR": 252,
	"MAILB": 253, "MAILA": 254, "*": 255, "URI": 256, "CAA": 257,
	"AVC": 258, "DOA": 259, "AMTRELAY": 260, "TA": 32768, "DLV": 32769,
}

// RRTypeByName returns the numeric RRTYPE for the given mnemonic. If the
// mnemonic is not in the table, it is parsed as a run of decimal digits
// (each digit d contributing 10*acc+d); any non-digit character, or a
// name absent from both the table and that fallback, yields TypeUnknown.
func RRTypeByName(name string) uint16 {
	if t, ok := rrTypeTable[name]; ok {
		return t
	}
	if name == "" {
		return TypeUnknown
	}
	var acc uint16
	for i := 0; i < len(name); i++ {
		d := name[i]
		if d < '0' || d > '9' {
			return TypeUnknown
		}
		acc = 10*acc + uint16(d-'0')
	}
	return acc
}
