package mqttclient

import (
	"errors"
	"sort"
	"sync"
	"time"
)

var (
	ErrPacketIDExhausted = errors.New("no available packet IDs")
	ErrPacketIDNotFound  = errors.New("packet ID not found")
)

// PacketIDManager allocates packet identifiers (1-65535) for one connection.
// Publish, subscribe and unsubscribe share the namespace.
// MQTT 3.1.1 spec: Section 2.3.1
type PacketIDManager struct {
	mu   sync.Mutex
	used map[uint16]struct{}
	next uint16
}

// NewPacketIDManager creates a new packet ID manager.
func NewPacketIDManager() *PacketIDManager {
	return &PacketIDManager{
		used: make(map[uint16]struct{}),
		next: 1,
	}
}

// Allocate returns the next free identifier after the last one handed out,
// wrapping from 65535 back to 1.
func (m *PacketIDManager) Allocate() (uint16, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.used) >= 65535 {
		return 0, ErrPacketIDExhausted
	}

	for {
		id := m.next
		m.next++
		if m.next == 0 {
			m.next = 1
		}
		if _, ok := m.used[id]; !ok {
			m.used[id] = struct{}{}
			return id, nil
		}
	}
}

// Release releases a packet ID for reuse.
func (m *PacketIDManager) Release(id uint16) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.used[id]; !ok {
		return ErrPacketIDNotFound
	}
	delete(m.used, id)
	return nil
}

// IsUsed returns true if the packet ID is currently in use.
func (m *PacketIDManager) IsUsed(id uint16) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.used[id]
	return ok
}

// InUse returns the count of packet IDs currently in use.
func (m *PacketIDManager) InUse() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.used)
}

// Reset releases every identifier.
func (m *PacketIDManager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.used = make(map[uint16]struct{})
}

// publishPhase is the state of an outgoing QoS 1/2 publish.
type publishPhase int

const (
	// QoS 1
	phaseAwaitPuback publishPhase = iota
	// QoS 2, PUBLISH sent
	phaseAwaitPubrec
	// QoS 2, PUBREL sent
	phaseAwaitPubcomp
)

func (p publishPhase) String() string {
	switch p {
	case phaseAwaitPuback:
		return "awaiting PUBACK"
	case phaseAwaitPubrec:
		return "awaiting PUBREC"
	case phaseAwaitPubcomp:
		return "awaiting PUBCOMP"
	default:
		return "unknown"
	}
}

// pendingPublish is an outgoing QoS 1/2 publish awaiting its final ack.
//
// mu guards the stored packet, phase, retry state and timer. It is held while
// the stored packet is written, so a timer firing and an ack removing the
// entry never interleave. Lock order: tracker, entry, client write lock.
type pendingPublish struct {
	id    uint16
	topic string
	qos   byte
	seq   uint64
	done  *completion

	mu       sync.Mutex
	packet   Packet
	phase    publishPhase
	retries  int
	timer    *time.Timer
	sentAt   time.Time
	// timerGen invalidates callbacks of stopped timers that already fired.
	timerGen uint64
	// finished is set once the entry left the tracker; nothing may be
	// resent afterwards.
	finished bool
}

func newPendingPublish(pkt *PublishPacket, seq uint64, done *completion) *pendingPublish {
	phase := phaseAwaitPuback
	if pkt.QoS == QoS2 {
		phase = phaseAwaitPubrec
	}
	return &pendingPublish{
		id:     pkt.PacketID,
		topic:  pkt.Topic,
		qos:    pkt.QoS,
		seq:    seq,
		done:   done,
		packet: pkt,
		phase:  phase,
		sentAt: time.Now(),
	}
}

// finishLocked marks the entry finished and stops its timer. It returns false if
// the entry was already finished. Caller must hold e.mu.
func (e *pendingPublish) finishLocked() bool {
	if e.finished {
		return false
	}
	e.finished = true
	e.stopTimerLocked()
	return true
}

func (e *pendingPublish) stopTimerLocked() {
	e.timerGen++
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
}

// resendPacketLocked returns the packet to put on the wire again: a
// PUBLISH copy with DUP set, or the PUBREL as stored.
func (e *pendingPublish) resendPacketLocked() Packet {
	if pub, ok := e.packet.(*PublishPacket); ok {
		dup := pub.Clone()
		dup.DUP = true
		return dup
	}
	return e.packet
}

// publishTracker holds pending publishes by packet id.
type publishTracker struct {
	mu      sync.Mutex
	entries map[uint16]*pendingPublish
	seq     uint64
}

func newPublishTracker() *publishTracker {
	return &publishTracker{entries: make(map[uint16]*pendingPublish)}
}

// add stores a new entry for pkt.
func (t *publishTracker) add(pkt *PublishPacket, done *completion) *pendingPublish {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.seq++
	e := newPendingPublish(pkt, t.seq, done)
	t.entries[e.id] = e
	return e
}

func (t *publishTracker) get(id uint16) (*pendingPublish, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[id]
	return e, ok
}

// complete removes and finishes the entry for id if it is in phase.
// Acks for unknown ids or for the wrong phase return false.
func (t *publishTracker) complete(id uint16, phase publishPhase) (*pendingPublish, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[id]
	if !ok {
		return nil, false
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.phase != phase || e.finished {
		return nil, false
	}
	delete(t.entries, id)
	e.finishLocked()
	return e, true
}

// abandon removes and finishes the entry for id regardless of phase.
func (t *publishTracker) abandon(id uint16) (*pendingPublish, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[id]
	if !ok {
		return nil, false
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	delete(t.entries, id)
	if !e.finishLocked() {
		return nil, false
	}
	return e, true
}

// forget drops e if it is still the entry stored for its id. Used after
// e was finished outside the tracker lock.
func (t *publishTracker) forget(e *pendingPublish) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if cur, ok := t.entries[e.id]; ok && cur == e {
		delete(t.entries, e.id)
		return true
	}
	return false
}

// drain removes and finishes every entry, in send order.
func (t *publishTracker) drain() []*pendingPublish {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := t.sortedLocked()
	for _, e := range out {
		e.mu.Lock()
		e.finishLocked()
		e.mu.Unlock()
	}
	t.entries = make(map[uint16]*pendingPublish)
	return out
}

// list returns the live entries in send order.
func (t *publishTracker) list() []*pendingPublish {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sortedLocked()
}

func (t *publishTracker) sortedLocked() []*pendingPublish {
	out := make([]*pendingPublish, 0, len(t.entries))
	for _, e := range t.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}

func (t *publishTracker) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

func (t *publishTracker) has(id uint16) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.entries[id]
	return ok
}

// inboundTracker buffers inbound QoS 2 publishes between PUBREC and PUBREL.
type inboundTracker struct {
	mu       sync.Mutex
	messages map[uint16]*PublishPacket
}

func newInboundTracker() *inboundTracker {
	return &inboundTracker{messages: make(map[uint16]*PublishPacket)}
}

// store keeps pkt, replacing any entry with the same id. It reports whether
// an entry was replaced.
func (t *inboundTracker) store(pkt *PublishPacket) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	_, exists := t.messages[pkt.PacketID]
	t.messages[pkt.PacketID] = pkt
	return exists
}

// release removes and returns the buffered publish for id.
func (t *inboundTracker) release(id uint16) (*PublishPacket, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	pkt, ok := t.messages[id]
	if ok {
		delete(t.messages, id)
	}
	return pkt, ok
}

func (t *inboundTracker) clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.messages = make(map[uint16]*PublishPacket)
}

func (t *inboundTracker) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.messages)
}
