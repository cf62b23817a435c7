package countdown

import (
	"sync"
	"time"
)

// Ticker delivers periodic ticks. *time.Ticker satisfies it through realTicker.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// TickerFactory creates a Ticker firing every d.
type TickerFactory func(d time.Duration) Ticker

type realTicker struct{ t *time.Ticker }

func (r realTicker) C() <-chan time.Time { return r.t.C }
func (r realTicker) Stop()               { r.t.Stop() }

// RealTicker is the wall-clock TickerFactory.
func RealTicker(d time.Duration) Ticker {
	return realTicker{t: time.NewTicker(d)}
}

// ManualTicker is a Ticker advanced by hand. Each Tick blocks until the
// consuming loop receives it or the ticker is stopped.
type ManualTicker struct {
	c        chan time.Time
	stopped  chan struct{}
	stopOnce sync.Once
	now      time.Time
}

// NewManualTicker returns a ManualTicker whose clock starts at start.
func NewManualTicker(start time.Time) *ManualTicker {
	return &ManualTicker{
		c:       make(chan time.Time),
		stopped: make(chan struct{}),
		now:     start,
	}
}

// Factory returns a TickerFactory that always hands out m.
func (m *ManualTicker) Factory() TickerFactory {
	return func(time.Duration) Ticker { return m }
}

func (m *ManualTicker) C() <-chan time.Time { return m.c }

func (m *ManualTicker) Stop() {
	m.stopOnce.Do(func() { close(m.stopped) })
}

// Stopped reports whether the consumer has stopped the ticker.
func (m *ManualTicker) Stopped() bool {
	select {
	case <-m.stopped:
		return true
	default:
		return false
	}
}

// Tick delivers one tick. It reports false if the ticker was stopped first.
func (m *ManualTicker) Tick() bool {
	m.now = m.now.Add(time.Second)
	select {
	case m.c <- m.now:
		return true
	case <-m.stopped:
		return false
	}
}

// Advance delivers up to n ticks and returns how many were received.
func (m *ManualTicker) Advance(n int) int {
	for i := 0; i < n; i++ {
		if !m.Tick() {
			return i
		}
	}
	return n
}
