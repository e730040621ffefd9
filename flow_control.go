package mqttclient

import (
	"errors"
	"sync"
)

var (
	ErrQuotaExceeded = errors.New("in-flight quota exceeded")
)

// FlowController caps the number of QoS 1 and 2 publishes awaiting their
// final acknowledgment. A zero limit means unlimited.
type FlowController struct {
	mu       sync.Mutex
	limit    int
	inFlight int
}

// NewFlowController creates a flow controller admitting at most limit
// publishes at a time.
func NewFlowController(limit int) *FlowController {
	if limit < 0 {
		limit = 0
	}
	return &FlowController{limit: limit}
}

// Limit returns the configured cap.
func (f *FlowController) Limit() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.limit
}

// InFlight returns the current number of admitted publishes.
func (f *FlowController) InFlight() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.inFlight
}

// Acquire admits one publish or returns ErrQuotaExceeded.
func (f *FlowController) Acquire() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.limit > 0 && f.inFlight >= f.limit {
		return ErrQuotaExceeded
	}
	f.inFlight++
	return nil
}

// Release frees one slot.
func (f *FlowController) Release() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.inFlight > 0 {
		f.inFlight--
	}
}

// Reset drops every admitted publish.
func (f *FlowController) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inFlight = 0
}
