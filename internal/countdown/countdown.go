// Package countdown implements a one-second-granularity countdown clock.
package countdown

import (
	"errors"
	"sync"
	"time"
)

var (
	ErrNegativeDuration = errors.New("countdown: initial seconds must not be negative")
	ErrAlreadyStarted   = errors.New("countdown: timer already started")
)

// Option configures a Timer.
type Option func(*Timer)

// OnTick registers fn to receive the remaining seconds, once at start and
// after every tick.
func OnTick(fn func(remaining int)) Option {
	return func(t *Timer) { t.onTick = fn }
}

// OnExpire registers fn to run exactly once when the remaining seconds reach 0.
func OnExpire(fn func()) Option {
	return func(t *Timer) { t.onExpire = fn }
}

// WithTicker replaces the wall-clock ticker.
func WithTicker(f TickerFactory) Option {
	return func(t *Timer) { t.newTicker = f }
}

// Timer counts down from an initial number of seconds. A Timer runs once;
// callbacks are invoked from its own goroutine and never while its lock is held.
type Timer struct {
	mu        sync.Mutex
	remaining int
	started   bool
	running   bool
	stopped   bool

	stop chan struct{}
	done chan struct{}

	onTick    func(int)
	onExpire  func()
	newTicker TickerFactory
}

// New creates a stopped Timer.
func New(opts ...Option) *Timer {
	t := &Timer{
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
		onTick:    func(int) {},
		onExpire:  func() {},
		newTicker: RealTicker,
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Start begins counting down from initialSeconds. Start(0) expires immediately.
func (t *Timer) Start(initialSeconds int) error {
	if initialSeconds < 0 {
		return ErrNegativeDuration
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.started {
		return ErrAlreadyStarted
	}
	t.started = true
	t.running = true
	t.remaining = initialSeconds

	var tk Ticker
	if initialSeconds > 0 {
		tk = t.newTicker(time.Second)
	}
	go t.run(initialSeconds, tk)
	return nil
}

// Stop halts ticking. It is idempotent and does not wait for the goroutine.
func (t *Timer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return
	}
	t.stopped = true
	t.running = false
	close(t.stop)
}

// Remaining returns the current remaining seconds.
func (t *Timer) Remaining() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.remaining
}

// Running reports whether the timer is still counting.
func (t *Timer) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}

// Done is closed once the timer goroutine has exited.
func (t *Timer) Done() <-chan struct{} {
	return t.done
}

func (t *Timer) run(initial int, tk Ticker) {
	defer close(t.done)

	if tk == nil {
		if t.expireNow() {
			t.onTick(0)
			t.onExpire()
		}
		return
	}
	defer tk.Stop()

	t.onTick(initial)
	for {
		select {
		case <-t.stop:
			return
		case <-tk.C():
			remaining, expired, ok := t.tick()
			if !ok {
				return
			}
			t.onTick(remaining)
			if expired {
				t.onExpire()
				return
			}
		}
	}
}

// tick decrements once. ok is false if the timer was stopped meanwhile.
func (t *Timer) tick() (remaining int, expired, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.running {
		return t.remaining, false, false
	}
	if t.remaining > 0 {
		t.remaining--
	}
	if t.remaining == 0 {
		t.running = false
		return 0, true, true
	}
	return t.remaining, false, true
}

func (t *Timer) expireNow() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.running {
		return false
	}
	t.running = false
	return true
}
