package mqttclient

import (
	"sort"
	"sync"
)

// pendingSubscription is a SUBSCRIBE awaiting SUBACK. On calls for the same
// filter made before the SUBACK arrives join it instead of sending again.
type pendingSubscription struct {
	filter string
	id     uint16
	qos    byte
	seq    uint64
	sent   bool

	subs  []*Subscription
	dones []*completion

	// upgrade is a higher QoS asked for after the SUBSCRIBE was written.
	// It is requested with a second SUBSCRIBE once this one is acknowledged.
	upgrade      byte
	upgradeDones []*completion
}

// allDones returns every completion waiting on the entry.
func (p *pendingSubscription) allDones() []*completion {
	out := make([]*completion, 0, len(p.dones)+len(p.upgradeDones))
	out = append(out, p.dones...)
	return append(out, p.upgradeDones...)
}

func (p *pendingSubscription) packet() *SubscribePacket {
	return &SubscribePacket{
		PacketID: p.id,
		Topics:   []TopicRequest{{Filter: p.filter, QoS: p.qos}},
	}
}

// subscribeTracker indexes pending subscriptions by filter and packet id.
type subscribeTracker struct {
	mu       sync.Mutex
	byFilter map[string]*pendingSubscription
	byID     map[uint16]*pendingSubscription
	seq      uint64
}

func newSubscribeTracker() *subscribeTracker {
	return &subscribeTracker{
		byFilter: make(map[string]*pendingSubscription),
		byID:     make(map[uint16]*pendingSubscription),
	}
}

// add queues sub for filter. A new entry takes an identifier from allocate;
// otherwise sub joins the entry already waiting for the filter and created
// is false. A higher QoS raises an unsent entry; on a sent entry it is kept
// as an upgrade and done waits for the upgrade SUBACK. sub and done may be
// nil for resubscriptions.
func (t *subscribeTracker) add(filter string, qos byte, sub *Subscription, done *completion, allocate func() (uint16, error)) (entry *pendingSubscription, created bool, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if p, ok := t.byFilter[filter]; ok {
		switch {
		case qos <= p.qos:
			p.attach(sub, done)
		case !p.sent:
			p.qos = qos
			p.attach(sub, done)
		default:
			p.attach(sub, nil)
			if qos > p.upgrade {
				p.upgrade = qos
			}
			if done != nil {
				p.upgradeDones = append(p.upgradeDones, done)
			}
		}
		return p, false, nil
	}

	id, err := allocate()
	if err != nil {
		return nil, false, err
	}

	t.seq++
	p := &pendingSubscription{filter: filter, id: id, qos: qos, seq: t.seq}
	p.attach(sub, done)
	t.byFilter[filter] = p
	t.byID[id] = p
	return p, true, nil
}

func (p *pendingSubscription) attach(sub *Subscription, done *completion) {
	if sub != nil {
		p.subs = append(p.subs, sub)
	}
	if done != nil {
		p.dones = append(p.dones, done)
	}
}

// join attaches dones to entry while it is still waiting. It reports false
// when entry was already acknowledged or drained.
func (t *subscribeTracker) join(entry *pendingSubscription, dones []*completion) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if cur, ok := t.byID[entry.id]; !ok || cur != entry {
		return false
	}
	entry.dones = append(entry.dones, dones...)
	return true
}

// markSent flags entry as written and returns its SUBSCRIBE packet, or nil
// if it was already sent or is gone.
func (t *subscribeTracker) markSent(entry *pendingSubscription) *SubscribePacket {
	t.mu.Lock()
	defer t.mu.Unlock()

	if cur, ok := t.byID[entry.id]; !ok || cur != entry || entry.sent {
		return nil
	}
	entry.sent = true
	return entry.packet()
}

// flush runs mark under the tracker lock, then flags every unsent entry as
// sent and returns their packets in creation order.
func (t *subscribeTracker) flush(mark func()) []*SubscribePacket {
	t.mu.Lock()
	defer t.mu.Unlock()

	if mark != nil {
		mark()
	}

	var unsent []*pendingSubscription
	for _, p := range t.byID {
		if !p.sent {
			unsent = append(unsent, p)
		}
	}
	sort.Slice(unsent, func(i, j int) bool { return unsent[i].seq < unsent[j].seq })

	out := make([]*SubscribePacket, 0, len(unsent))
	for _, p := range unsent {
		if p.upgrade > p.qos {
			p.qos = p.upgrade
			p.dones = append(p.dones, p.upgradeDones...)
		}
		p.upgrade = 0
		p.upgradeDones = nil
		p.sent = true
		out = append(out, p.packet())
	}
	return out
}

// unmarkAll flags every entry unsent so the next CONNACK flushes it again.
func (t *subscribeTracker) unmarkAll() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, p := range t.byID {
		p.sent = false
	}
}

// ack removes the entry matching a SUBACK and hands it to promote while the
// tracker is still locked, so a concurrent cancel sees either the pending
// entry or the promoted subscriptions.
func (t *subscribeTracker) ack(id uint16, promote func(p *pendingSubscription)) (*pendingSubscription, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	p, ok := t.byID[id]
	if !ok {
		return nil, false
	}
	delete(t.byID, id)
	delete(t.byFilter, p.filter)

	if promote != nil {
		promote(p)
	}
	return p, true
}

// cancel flags subs of filter waiting for SUBACK so they are not promoted,
// then runs after under the tracker lock. With no subs given every waiting
// subscription of filter is cancelled. It reports whether an entry for
// filter is still pending.
func (t *subscribeTracker) cancel(filter string, subs []*Subscription, after func()) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	p, ok := t.byFilter[filter]
	if ok {
		for _, s := range p.subs {
			if len(subs) == 0 || containsSubscription(subs, s) {
				s.cancelled.Store(true)
			}
		}
	}

	if after != nil {
		after()
	}
	return ok
}

func containsSubscription(list []*Subscription, sub *Subscription) bool {
	for _, s := range list {
		if s == sub {
			return true
		}
	}
	return false
}

// drain removes every entry.
func (t *subscribeTracker) drain() []*pendingSubscription {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]*pendingSubscription, 0, len(t.byID))
	for _, p := range t.byID {
		out = append(out, p)
	}
	t.byFilter = make(map[string]*pendingSubscription)
	t.byID = make(map[uint16]*pendingSubscription)
	return out
}

func (t *subscribeTracker) pending(filter string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.byFilter[filter]
	return ok
}

func (t *subscribeTracker) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.byID)
}

// pendingUnsubscription is an UNSUBSCRIBE awaiting UNSUBACK.
type pendingUnsubscription struct {
	filter string
	id     uint16
	seq    uint64
	token  *Token
}

func (p *pendingUnsubscription) packet() *UnsubscribePacket {
	return &UnsubscribePacket{PacketID: p.id, Filters: []string{p.filter}}
}

type unsubscribeTracker struct {
	mu      sync.Mutex
	entries map[uint16]*pendingUnsubscription
	seq     uint64
}

func newUnsubscribeTracker() *unsubscribeTracker {
	return &unsubscribeTracker{entries: make(map[uint16]*pendingUnsubscription)}
}

func (t *unsubscribeTracker) add(filter string, id uint16, token *Token) *pendingUnsubscription {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.seq++
	p := &pendingUnsubscription{filter: filter, id: id, seq: t.seq, token: token}
	t.entries[id] = p
	return p
}

func (t *unsubscribeTracker) ack(id uint16) (*pendingUnsubscription, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	p, ok := t.entries[id]
	if ok {
		delete(t.entries, id)
	}
	return p, ok
}

// list returns live entries in creation order.
func (t *unsubscribeTracker) list() []*pendingUnsubscription {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]*pendingUnsubscription, 0, len(t.entries))
	for _, p := range t.entries {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}

func (t *unsubscribeTracker) drain() []*pendingUnsubscription {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]*pendingUnsubscription, 0, len(t.entries))
	for _, p := range t.entries {
		out = append(out, p)
	}
	t.entries = make(map[uint16]*pendingUnsubscription)
	return out
}

func (t *unsubscribeTracker) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
