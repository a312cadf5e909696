// SPDX-License-Identifier: BSD-3-Clause

// Package relay forwards DoQ-delivered queries to a legacy UDP DNS
// resolver and correlates the UDP responses back to the waiting DoQ
// streams, mirroring the reference engine's udp_relay.c.
package relay
