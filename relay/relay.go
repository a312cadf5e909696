// SPDX-License-Identifier: BSD-3-Clause
//
// Adapted from: https://github.com/private-octopus/quicdoq/blob/master/quicdoq/udp_relay.c
// (quicdoq_udp_ctx_t, quicdog_udp_queued_t, quicdoq_udp_callback,
// quicdoq_udp_prepare_next_packet, quicdoq_udp_incoming_packet)
//

package relay

import (
	"context"
	"encoding/binary"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/bassosimone/runtimex"
	"github.com/private-octopus/quicdoq-go/quicdoq"
)

// MaxRepeat is the number of retransmission attempts a pending query is
// allowed before the relay gives up on it, matching
// QUICDOQ_UDP_MAX_REPEAT. A fifth send attempt -- the one that would
// follow MaxRepeat successful transmissions -- instead cancels the
// query with [quicdoq.ErrorCodeResponseTimedOut].
const MaxRepeat = 4

// DefaultRTO is the constant retransmission timeout used unless the
// caller overrides it, matching QUICDOQ_UDP_DEFAULT_RTO (1,000,000us).
const DefaultRTO = 1 * time.Second

// DefaultMaxMessageSize bounds both the outbound query and the inbound
// response the relay will forward, the same 16-bit DoQ length-prefix
// ceiling the stream codec enforces.
const DefaultMaxMessageSize = 65535

// noopLogger discards everything; it is the default when no Logger is
// supplied.
type noopLogger struct{}

func (noopLogger) Printf(string, ...any) {}

// pendingQuery is one in-flight UDP exchange, mirroring
// quicdog_udp_queued_t.
type pendingQuery struct {
	query        *quicdoq.Query
	arrivalTime  time.Time
	nextSendTime time.Time
	attempts     int
	udpID        uint16
}

// Relay forwards queries DoQ delivers via [Relay.Callback] to a UDP
// backend, retransmitting on a fixed RTO until a reply arrives or
// MaxRepeat attempts are exhausted, mirroring quicdoq_udp_ctx_t. The
// zero value is not usable; construct with [New].
type Relay struct {
	service *quicdoq.Service
	conn    net.PacketConn
	backend net.Addr
	logger  quicdoq.Logger

	rto            time.Duration
	maxMessageSize int

	mu      sync.Mutex
	nextID  uint16
	pending []*pendingQuery // ascending nextSendTime, mirroring the reference engine's doubly-linked list
	byID    map[uint16]*pendingQuery
	byQuery map[*quicdoq.Query]*pendingQuery

	wake chan struct{}
}

// New builds a Relay that forwards incoming DoQ queries to backend over
// conn and posts their responses back through service. conn is read for
// the lifetime of [Relay.Run]; callers typically dial it unconnected
// (net.ListenUDP) so the relay can serve many in-flight queries to the
// same backend concurrently.
func New(service *quicdoq.Service, conn net.PacketConn, backend net.Addr) *Relay {
	return &Relay{
		service:        service,
		conn:           conn,
		backend:        backend,
		logger:         noopLogger{},
		rto:            DefaultRTO,
		maxMessageSize: DefaultMaxMessageSize,
		byID:           make(map[uint16]*pendingQuery),
		byQuery:        make(map[*quicdoq.Query]*pendingQuery),
		wake:           make(chan struct{}, 1),
	}
}

// SetLogger installs l as the relay's diagnostic log sink.
func (r *Relay) SetLogger(l quicdoq.Logger) { r.logger = l }

// SetRTO overrides the default retransmission timeout.
func (r *Relay) SetRTO(rto time.Duration) { r.rto = rto }

// SetMaxMessageSize overrides the size ceiling enforced on outbound
// queries and inbound responses.
func (r *Relay) SetMaxMessageSize(n int) { r.maxMessageSize = n }

// Callback is a [quicdoq.Callback] suitable for [quicdoq.NewService]:
// register the relay as the service's server-side application so every
// query the DoQ server receives is forwarded over UDP. The server-side
// callback contract only ever delivers IncomingQuery (a fresh query to
// forward) and ResponseCancelled (the peer aborted before a response
// was posted).
func (r *Relay) Callback(code quicdoq.ReturnCode, q *quicdoq.Query) {
	switch code {
	case quicdoq.IncomingQuery:
		r.admit(q)
	case quicdoq.ResponseCancelled:
		r.withdraw(q)
	default:
		r.logger.Printf("relay: unexpected callback code %s for query id %d", code, q.ID)
	}
}

// admit reserves a UDP query ID for q and schedules its first
// transmission, mirroring quicdoq_udp_callback's quicdoq_incoming_query
// case.
func (r *Relay) admit(q *quicdoq.Query) {
	r.mu.Lock()
	id, ok := r.allocateIDLocked()
	if !ok {
		r.mu.Unlock()
		r.logger.Printf("relay: no available UDP query id for query %d, failing", q.ID)
		_ = r.service.CancelResponse(q, quicdoq.ErrorCodeInternal)
		return
	}
	now := time.Now()
	pq := &pendingQuery{
		query:        q,
		arrivalTime:  now,
		nextSendTime: now,
		udpID:        id,
	}
	r.byID[id] = pq
	r.byQuery[q] = pq
	r.insertLocked(pq)
	r.mu.Unlock()
	r.poke()
}

// allocateIDLocked scans up to four candidate IDs starting at nextID,
// rejecting any currently in flight, mirroring the reference engine's
// four-try loop in quicdoq_udp_callback.
func (r *Relay) allocateIDLocked() (uint16, bool) {
	for i := 0; i < 4; i++ {
		candidate := r.nextID
		r.nextID++
		if _, exists := r.byID[candidate]; !exists {
			return candidate, true
		}
	}
	return 0, false
}

// withdraw removes q's pending UDP query without sending a cancellation
// back to DoQ, since DoQ is the one that just told us the query is
// gone (quicdoq_udp_callback's quicdoq_query_cancelled/
// quicdoq_query_failed cases).
func (r *Relay) withdraw(q *quicdoq.Query) {
	r.mu.Lock()
	pq, ok := r.byQuery[q]
	if !ok {
		r.mu.Unlock()
		return
	}
	r.deleteLocked(pq)
	r.mu.Unlock()
	r.poke()
}

// Run drives retransmission and reception until ctx is cancelled or the
// backing socket fails, mirroring the reference engine's two entry
// points (quicdoq_udp_prepare_next_packet on a timer,
// quicdoq_udp_incoming_packet on receipt) folded into one loop plus a
// dedicated read goroutine, since Go's net.PacketConn has no
// non-blocking poll primitive.
func (r *Relay) Run(ctx context.Context) error {
	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		r.readLoop(ctx)
	}()
	go func() {
		<-ctx.Done()
		r.conn.Close()
	}()

	timer := time.NewTimer(r.nextWakeDuration())
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			<-readDone
			return ctx.Err()
		case <-r.wake:
			drainTimer(timer)
			timer.Reset(r.nextWakeDuration())
		case <-timer.C:
			r.transmitDue(time.Now())
			timer.Reset(r.nextWakeDuration())
		}
	}
}

func drainTimer(t *time.Timer) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
}

// poke wakes [Relay.Run]'s select loop so it recomputes the next wake
// time after a mutation made outside it (admit, withdraw, or an
// incoming packet).
func (r *Relay) poke() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// nextWakeDuration returns how long Run should sleep before the next
// scheduled retransmission, matching next_wake_time semantics: the
// head of pending, or an arbitrarily long poll (re-armed by poke) when
// pending is empty.
func (r *Relay) nextWakeDuration() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.pending) == 0 {
		return time.Hour
	}
	d := time.Until(r.pending[0].nextSendTime)
	if d < 0 {
		d = 0
	}
	return d
}

// NextWakeTime returns the send time of the earliest pending query, or
// the zero [time.Time] (standing in for +infinity) when nothing is
// pending, per the reference engine's next_wake_time field.
func (r *Relay) NextWakeTime() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.pending) == 0 {
		return time.Time{}
	}
	return r.pending[0].nextSendTime
}

// PendingCount reports how many queries are currently in flight to the
// UDP backend.
func (r *Relay) PendingCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// transmitDue sends (or retransmits) every pending query whose
// nextSendTime has arrived, mirroring quicdoq_udp_prepare_next_packet
// repeated until the head of the list is not yet due.
func (r *Relay) transmitDue(now time.Time) {
	for {
		r.mu.Lock()
		if len(r.pending) == 0 {
			r.mu.Unlock()
			return
		}
		head := r.pending[0]
		if head.nextSendTime.After(now) {
			r.mu.Unlock()
			return
		}
		if head.attempts >= MaxRepeat {
			r.deleteLocked(head)
			r.mu.Unlock()
			r.logger.Printf("relay: cancel after max repeat, udp query #%d", head.udpID)
			_ = r.service.CancelResponse(head.query, quicdoq.ErrorCodeResponseTimedOut)
			continue
		}
		if len(head.query.QueryData) > r.maxMessageSize {
			r.deleteLocked(head)
			r.mu.Unlock()
			r.logger.Printf("relay: query too long, udp query #%d", head.udpID)
			_ = r.service.CancelResponse(head.query, quicdoq.ErrorCodeQueryTooLong)
			continue
		}

		payload := r.buildOutboundLocked(head)
		head.attempts++
		head.nextSendTime = now.Add(r.rto)
		r.reinsertLocked(head)
		r.mu.Unlock()

		r.logger.Printf("relay: sending udp query #%d, attempt %d", head.udpID, head.attempts)
		if _, err := r.conn.WriteTo(payload, r.backend); err != nil {
			r.logger.Printf("relay: udp write failed: %v", err)
		}
	}
}

// buildOutboundLocked copies q's query bytes, replacing the first two
// (the DNS message ID, which DoQ requires to be zero on the wire) with
// the relay's own udpID so concurrent in-flight queries to the same
// backend cannot be confused for one another, mirroring
// quicdoq_udp_prepare_next_packet.
func (r *Relay) buildOutboundLocked(pq *pendingQuery) []byte {
	runtimex.Assert(len(pq.query.QueryData) >= 2)
	out := make([]byte, len(pq.query.QueryData))
	copy(out, pq.query.QueryData)
	binary.BigEndian.PutUint16(out, pq.udpID)
	return out
}

// readLoop reads UDP responses until ctx is cancelled or the socket
// errors, mirroring quicdoq_udp_incoming_packet's callers.
func (r *Relay) readLoop(ctx context.Context) {
	buf := make([]byte, 65535)
	for {
		n, _, err := r.conn.ReadFrom(buf)
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
				r.logger.Printf("relay: udp read failed: %v", err)
				return
			}
		}
		r.handlePacket(buf[:n])
	}
}

// handlePacket correlates an incoming UDP datagram to its pending query
// by the two-byte ID the relay itself assigned, mirroring
// quicdoq_udp_incoming_packet.
func (r *Relay) handlePacket(data []byte) {
	if len(data) < 2 {
		return // too short to carry even a DNS ID; drop
	}
	id := binary.BigEndian.Uint16(data)

	r.mu.Lock()
	pq, ok := r.byID[id]
	if !ok {
		r.mu.Unlock()
		return // stray or duplicate packet
	}
	if len(data) > r.maxMessageSize {
		r.deleteLocked(pq)
		r.mu.Unlock()
		r.logger.Printf("relay: incoming udp response too long, udp query #%d", id)
		_ = r.service.CancelResponse(pq.query, quicdoq.ErrorCodeResponseTooLong)
		return
	}
	r.deleteLocked(pq)
	r.mu.Unlock()

	resp := make([]byte, len(data))
	copy(resp, data)
	// Restore the original (always-zero-on-the-wire) DNS message ID
	// the client sent, undoing the relay's own ID substitution.
	resp[0] = pq.query.QueryData[0]
	resp[1] = pq.query.QueryData[1]
	pq.query.ResponseData = resp

	r.logger.Printf("relay: incoming udp for query #%d after %s, posting response", id, time.Since(pq.arrivalTime))
	if err := r.service.PostResponse(pq.query, resp); err != nil {
		r.logger.Printf("relay: post response failed for query #%d: %v", id, err)
	}
}

// insertLocked inserts pq into pending, keeping it ordered by
// nextSendTime ascending, mirroring quicdoq_udp_insert_in_list.
func (r *Relay) insertLocked(pq *pendingQuery) {
	i := sort.Search(len(r.pending), func(i int) bool {
		return r.pending[i].nextSendTime.After(pq.nextSendTime)
	})
	r.pending = append(r.pending, nil)
	copy(r.pending[i+1:], r.pending[i:])
	r.pending[i] = pq
}

// unlinkLocked removes pq from pending without touching the ID/query
// lookup tables, used by reinsertLocked when only the order changes.
func (r *Relay) unlinkLocked(pq *pendingQuery) {
	for i, p := range r.pending {
		if p == pq {
			r.pending = append(r.pending[:i], r.pending[i+1:]...)
			return
		}
	}
}

// reinsertLocked re-orders pq after its nextSendTime changes, mirroring
// quicdoq_udp_reinsert_in_list.
func (r *Relay) reinsertLocked(pq *pendingQuery) {
	r.unlinkLocked(pq)
	r.insertLocked(pq)
}

// deleteLocked fully retires pq: out of the ordered list and both
// lookup tables, mirroring quicdoq_udp_remove_from_list plus the
// caller's free().
func (r *Relay) deleteLocked(pq *pendingQuery) {
	r.unlinkLocked(pq)
	delete(r.byID, pq.udpID)
	delete(r.byQuery, pq.query)
}
