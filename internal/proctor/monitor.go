// Package proctor holds the client-side proctoring heuristics: background
// detection with a violation cap, and a best-effort input lockout.
//
// Neither is a security boundary. Any client can fake visibility or replay
// clipboard content; these are deterrents only.
package proctor

import "sync"

// DefaultViolationLimit is the number of background transitions that ends a session.
const DefaultViolationLimit = 3

// Violation is the monitor state after a recorded violation.
type Violation struct {
	Count        int
	LimitReached bool
}

// Monitor counts foreground → background transitions. It only signals when
// the limit is reached; deciding what to do is the caller's job.
type Monitor struct {
	mu       sync.Mutex
	limit    int
	count    int
	hidden   bool
	attached bool
}

// NewMonitor returns a detached monitor. A limit below 1 uses DefaultViolationLimit.
func NewMonitor(limit int) *Monitor {
	if limit < 1 {
		limit = DefaultViolationLimit
	}
	return &Monitor{limit: limit}
}

// Attach starts observing visibility changes.
func (m *Monitor) Attach() {
	m.mu.Lock()
	m.attached = true
	m.mu.Unlock()
}

// Detach stops observing. Later visibility changes are ignored. Idempotent.
func (m *Monitor) Detach() {
	m.mu.Lock()
	m.attached = false
	m.mu.Unlock()
}

// Attached reports whether visibility changes are being observed.
func (m *Monitor) Attached() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attached
}

// RecordViolation increments the count and reports whether the limit is reached.
func (m *Monitor) RecordViolation() (count int, limitReached bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v := m.recordLocked()
	return v.Count, v.LimitReached
}

// VisibilityChanged feeds the foreground signal. Only a visible → hidden
// transition while attached is a violation; ok is false otherwise.
func (m *Monitor) VisibilityChanged(visible bool) (v Violation, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	wasHidden := m.hidden
	m.hidden = !visible
	if !m.attached || visible || wasHidden {
		return Violation{Count: m.count, LimitReached: m.count >= m.limit}, false
	}
	return m.recordLocked(), true
}

// Count returns the number of violations so far.
func (m *Monitor) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.count
}

// Limit returns the configured violation cap.
func (m *Monitor) Limit() int {
	return m.limit
}

func (m *Monitor) recordLocked() Violation {
	m.count++
	return Violation{Count: m.count, LimitReached: m.count >= m.limit}
}
