package clock

import (
	"sync"
	"time"
)

// Clock abstracts wall time and ticker creation so the capture and sampling
// loops can be driven deterministically in tests instead of by real timers.
type Clock interface {
	Now() time.Time
	NewTicker(d time.Duration) Ticker
}

// Ticker mirrors time.Ticker behind an interface.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// System is the real clock.
type System struct{}

func (System) Now() time.Time { return time.Now() }

func (System) NewTicker(d time.Duration) Ticker {
	return &systemTicker{t: time.NewTicker(d)}
}

type systemTicker struct {
	t *time.Ticker
}

func (s *systemTicker) C() <-chan time.Time { return s.t.C }
func (s *systemTicker) Stop()               { s.t.Stop() }

// Manual is a test clock advanced explicitly. Tickers fire synchronously
// from Advance, so tests observe every tick in order.
type Manual struct {
	mu      sync.Mutex
	now     time.Time
	tickers []*manualTicker
}

// NewManual creates a manual clock starting at the given time.
func NewManual(start time.Time) *Manual {
	return &Manual{now: start}
}

func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *Manual) NewTicker(d time.Duration) Ticker {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := &manualTicker{
		clk:      m,
		ch:       make(chan time.Time, 64),
		interval: d,
		next:     m.now.Add(d),
	}
	m.tickers = append(m.tickers, t)
	return t
}

// Advance moves the clock forward, firing every due tick on every ticker.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	target := m.now.Add(d)
	for {
		earliest := target
		var due *manualTicker
		for _, t := range m.tickers {
			if !t.stopped && !t.next.After(earliest) {
				earliest = t.next
				due = t
			}
		}
		if due == nil {
			break
		}
		m.now = earliest
		due.fire(m.now)
		due.next = due.next.Add(due.interval)
	}
	m.now = target
}

type manualTicker struct {
	clk      *Manual
	ch       chan time.Time
	interval time.Duration
	next     time.Time
	stopped  bool // guarded by clk.mu
}

func (t *manualTicker) C() <-chan time.Time { return t.ch }

func (t *manualTicker) Stop() {
	t.clk.mu.Lock()
	t.stopped = true
	t.clk.mu.Unlock()
}

func (t *manualTicker) fire(now time.Time) {
	select {
	case t.ch <- now:
	default:
	}
}
