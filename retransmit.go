package mqttclient

import (
	"errors"
	"math"
	"time"
)

// RetryPolicy controls retransmission of unacknowledged publishes.
type RetryPolicy struct {
	// Interval is the first wait for an ack. Zero disables timers; pending
	// publishes are then only resent after a reconnect.
	Interval time.Duration
	// Multiplier grows the wait after each retransmission. Values below 1
	// keep the interval fixed.
	Multiplier float64
	// MaxInterval caps the grown wait. Zero means no cap.
	MaxInterval time.Duration
	// MaxRetries is the number of retransmissions before the publish fails
	// with ErrRetriesExhausted. Zero or negative retries forever.
	MaxRetries int
}

// DefaultRetryPolicy resends every 10 seconds, five times.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Interval:   10 * time.Second,
		Multiplier: 1,
		MaxRetries: 5,
	}
}

// Enabled reports whether timers are armed at all.
func (p RetryPolicy) Enabled() bool {
	return p.Interval > 0
}

// Backoff returns the wait after the given number of retransmissions.
func (p RetryPolicy) Backoff(retries int) time.Duration {
	if p.Interval <= 0 {
		return 0
	}
	if p.Multiplier <= 1 || retries <= 0 {
		return p.capped(p.Interval)
	}

	d := float64(p.Interval) * math.Pow(p.Multiplier, float64(retries))
	if d > math.MaxInt64 {
		d = math.MaxInt64
	}
	return p.capped(time.Duration(d))
}

func (p RetryPolicy) capped(d time.Duration) time.Duration {
	if p.MaxInterval > 0 && d > p.MaxInterval {
		return p.MaxInterval
	}
	return d
}

// exhausted reports whether retries reached the ceiling.
func (p RetryPolicy) exhausted(retries int) bool {
	return p.MaxRetries > 0 && retries >= p.MaxRetries
}

// armLocked starts the retransmission timer of e. Caller holds e.mu.
func (c *Client) armLocked(e *pendingPublish) {
	e.stopTimerLocked()
	if !c.opts.retry.Enabled() || e.finished {
		return
	}

	gen := e.timerGen
	e.timer = time.AfterFunc(c.opts.retry.Backoff(e.retries), func() {
		c.retransmit(e, gen)
	})
}

// retransmit runs when the timer of e expires: it resends the stored packet
// or, past the retry ceiling, fails the publish.
func (c *Client) retransmit(e *pendingPublish, gen uint64) {
	e.mu.Lock()
	if e.finished || e.timerGen != gen {
		e.mu.Unlock()
		return
	}
	e.timer = nil

	if c.opts.retry.exhausted(e.retries) {
		e.finishLocked()
		e.mu.Unlock()

		if c.pubs.forget(e) {
			c.logger.Warn("publish retries exhausted", LogFields{
				LogFieldTopic:    e.topic,
				LogFieldPacketID: e.id,
				LogFieldRetry:    e.retries,
			})
			c.finishPublish(e, ErrRetriesExhausted)
		}
		return
	}

	e.retries++
	pkt := e.resendPacketLocked()
	err := c.writePacket(pkt)
	if err == nil {
		c.metrics.Retransmitted(pkt.Type())
		c.logger.Debug("retransmitted", LogFields{
			LogFieldPacketType: pkt.Type().String(),
			LogFieldPacketID:   e.id,
			LogFieldRetry:      e.retries,
		})
	}

	// Without a connection the entry waits for replay instead.
	if !errors.Is(err, ErrNotConnected) {
		c.armLocked(e)
	}
	e.mu.Unlock()
}

// suspendTimers stops every retransmission timer while state is kept for a
// later session.
func (c *Client) suspendTimers() {
	for _, e := range c.pubs.list() {
		e.mu.Lock()
		e.stopTimerLocked()
		e.mu.Unlock()
	}
}
