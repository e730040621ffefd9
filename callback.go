package mqttclient

import (
	"context"
	"sync"
)

// AckFunc receives the outcome of a publish or subscribe. A nil error means
// the operation was acknowledged. It is called exactly once, from whichever
// goroutine resolved the operation, so it must not block.
type AckFunc func(err error)

// ConnectResult describes an accepted CONNACK.
type ConnectResult struct {
	SessionPresent bool
	ReasonCode     ReasonCode
	// Reconnect is true when this connection follows an earlier one.
	Reconnect bool
}

// ConnectFunc receives exactly one of a result or an error.
type ConnectFunc func(result *ConnectResult, err error)

// completion resolves an AckFunc at most once.
type completion struct {
	once sync.Once
	fn   AckFunc
}

func newCompletion(fn AckFunc) *completion {
	return &completion{fn: fn}
}

func (c *completion) resolve(err error) {
	if c == nil {
		return
	}
	c.once.Do(func() {
		if c.fn != nil {
			c.fn(err)
		}
	})
}

// connectCompletion resolves a ConnectFunc at most once.
type connectCompletion struct {
	once sync.Once
	fn   ConnectFunc
}

func newConnectCompletion(fn ConnectFunc) *connectCompletion {
	return &connectCompletion{fn: fn}
}

func (c *connectCompletion) succeed(result *ConnectResult) {
	c.once.Do(func() {
		if c.fn != nil {
			c.fn(result, nil)
		}
	})
}

func (c *connectCompletion) fail(err error) {
	c.once.Do(func() {
		if c.fn != nil {
			c.fn(nil, err)
		}
	})
}

// Token tracks an unsubscribe until UNSUBACK.
type Token struct {
	once sync.Once
	done chan struct{}
	err  error
}

func newToken() *Token {
	return &Token{done: make(chan struct{})}
}

func completedToken(err error) *Token {
	t := newToken()
	t.complete(err)
	return t
}

func (t *Token) complete(err error) {
	t.once.Do(func() {
		t.err = err
		close(t.done)
	})
}

// Done is closed once the operation finished.
func (t *Token) Done() <-chan struct{} {
	return t.done
}

// Err returns the outcome. It is nil until Done is closed.
func (t *Token) Err() error {
	select {
	case <-t.done:
		return t.err
	default:
		return nil
	}
}

// Wait blocks until the operation finished or ctx is done.
func (t *Token) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return t.err
	case <-ctx.Done():
		return ctx.Err()
	}
}
