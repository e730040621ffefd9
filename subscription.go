package mqttclient

import (
	"sync"
	"sync/atomic"
	"time"
)

// MessageHandler receives messages for a subscription. It may run on the
// client's reader goroutine or on a handler worker and must not assume either.
type MessageHandler interface {
	OnMessage(topic string, payload []byte, received time.Time)
}

// MessageHandlerFunc adapts a function to MessageHandler.
type MessageHandlerFunc func(topic string, payload []byte, received time.Time)

// OnMessage calls f.
func (f MessageHandlerFunc) OnMessage(topic string, payload []byte, received time.Time) {
	f(topic, payload, received)
}

// Subscription is one handler registered for a topic filter. The pointer
// returned by On and Once identifies it for Off.
type Subscription struct {
	filter  string
	qos     byte
	handler MessageHandler
	oneShot bool

	// granted is the QoS the server acknowledged for filter. Guarded by
	// the registry lock once registered.
	granted byte

	// invoked is claimed once by a one-shot dispatch.
	invoked atomic.Bool
	// cancelled is set by Off before SUBACK promotes the subscription.
	cancelled atomic.Bool
}

func newSubscription(filter string, qos byte, handler MessageHandler, oneShot bool) *Subscription {
	return &Subscription{
		filter:  filter,
		qos:     qos,
		granted: qos,
		handler: handler,
		oneShot: oneShot,
	}
}

// Filter returns the topic filter.
func (s *Subscription) Filter() string { return s.filter }

// QoS returns the requested QoS.
func (s *Subscription) QoS() byte { return s.qos }

// OneShot reports whether the subscription was created by Once.
func (s *Subscription) OneShot() bool { return s.oneShot }

// claim marks a delivery. One-shot subscriptions succeed exactly once.
func (s *Subscription) claim() bool {
	if !s.oneShot {
		return true
	}
	return s.invoked.CompareAndSwap(false, true)
}

// subscriptionRegistry holds acknowledged subscriptions in registration order.
type subscriptionRegistry struct {
	mu   sync.RWMutex
	subs []*Subscription

	defaultHandler MessageHandler
	workers        *handlerPool

	// expired is called after a one-shot subscription delivered.
	expired func(*Subscription)
}

func newSubscriptionRegistry(defaultHandler MessageHandler, workers *handlerPool) *subscriptionRegistry {
	return &subscriptionRegistry{
		defaultHandler: defaultHandler,
		workers:        workers,
	}
}

func (r *subscriptionRegistry) register(sub *Subscription) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subs = append(r.subs, sub)
}

// remove deletes sub if it is registered for filter.
func (r *subscriptionRegistry) remove(filter string, sub *Subscription) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, s := range r.subs {
		if s == sub && s.filter == filter {
			r.subs = append(r.subs[:i:i], r.subs[i+1:]...)
			return true
		}
	}
	return false
}

// removeAll deletes every subscription for filter and returns them.
func (r *subscriptionRegistry) removeAll(filter string) []*Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()

	var removed []*Subscription
	kept := r.subs[:0:0]
	for _, s := range r.subs {
		if s.filter == filter {
			removed = append(removed, s)
			continue
		}
		kept = append(kept, s)
	}
	r.subs = kept
	return removed
}

// hasFilter reports whether any subscription is registered for filter.
func (r *subscriptionRegistry) hasFilter(filter string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, s := range r.subs {
		if s.filter == filter {
			return true
		}
	}
	return false
}

// maxQoS returns the highest QoS the server granted for filter.
func (r *subscriptionRegistry) maxQoS(filter string) (byte, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var qos byte
	found := false
	for _, s := range r.subs {
		if s.filter == filter {
			found = true
			if s.granted > qos {
				qos = s.granted
			}
		}
	}
	return qos, found
}

// grant records the QoS of the latest SUBACK for filter on every
// subscription registered for it.
func (r *subscriptionRegistry) grant(filter string, qos byte) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, s := range r.subs {
		if s.filter == filter {
			s.granted = qos
		}
	}
}

// filters returns each distinct filter once with the highest QoS
// registered for it, in registration order.
func (r *subscriptionRegistry) filters() []TopicRequest {
	r.mu.RLock()
	defer r.mu.RUnlock()

	index := make(map[string]int)
	var out []TopicRequest
	for _, s := range r.subs {
		if i, ok := index[s.filter]; ok {
			if s.qos > out[i].QoS {
				out[i].QoS = s.qos
			}
			continue
		}
		index[s.filter] = len(out)
		out = append(out, TopicRequest{Filter: s.filter, QoS: s.qos})
	}
	return out
}

func (r *subscriptionRegistry) len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs)
}

func (r *subscriptionRegistry) snapshot() []*Subscription {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Subscription, len(r.subs))
	copy(out, r.subs)
	return out
}

// dispatch delivers a message to every matching subscription and returns how
// many handlers were invoked. Registry changes made by handlers do not affect
// the iteration in progress. The default handler runs when nothing matched.
func (r *subscriptionRegistry) dispatch(topic string, payload []byte, received time.Time) int {
	count := 0
	for _, sub := range r.snapshot() {
		if !TopicMatch(sub.filter, topic) {
			continue
		}
		if !sub.claim() {
			continue
		}

		count++
		r.invoke(sub.handler, topic, payload, received)

		if sub.oneShot {
			r.remove(sub.filter, sub)
			if r.expired != nil {
				r.expired(sub)
			}
		}
	}

	if count == 0 && r.defaultHandler != nil {
		r.invoke(r.defaultHandler, topic, payload, received)
	}

	return count
}

func (r *subscriptionRegistry) invoke(h MessageHandler, topic string, payload []byte, received time.Time) {
	if r.workers != nil {
		r.workers.submit(func() { h.OnMessage(topic, payload, received) })
		return
	}
	h.OnMessage(topic, payload, received)
}

// handlerPool runs message handlers on a fixed set of goroutines. Submission
// blocks when the queue is full, which applies backpressure to the reader.
type handlerPool struct {
	mu     sync.RWMutex
	closed bool
	queue  chan func()
	wg     sync.WaitGroup
}

func newHandlerPool(workers, queueSize int) *handlerPool {
	if workers <= 0 {
		return nil
	}
	if queueSize <= 0 {
		queueSize = workers * 16
	}

	p := &handlerPool{queue: make(chan func(), queueSize)}
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.run()
	}
	return p
}

func (p *handlerPool) run() {
	defer p.wg.Done()
	for fn := range p.queue {
		fn()
	}
}

// submit queues fn. It returns false once the pool is stopped.
func (p *handlerPool) submit(fn func()) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return false
	}
	p.queue <- fn
	return true
}

// stop drains queued handlers and waits for the workers to exit.
func (p *handlerPool) stop() {
	if p == nil {
		return
	}

	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.queue)
	}
	p.mu.Unlock()

	p.wg.Wait()
}
