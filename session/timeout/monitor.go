// Package timeout implements the session countdown that forces a logout once
// the current token's lifetime has elapsed.
//
// States: Idle -> Armed -> {Fired -> Idle | Disarmed -> Idle}.
package timeout

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog/log"
)

type State int

const (
	Idle State = iota
	Armed
	Fired
	Disarmed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Armed:
		return "armed"
	case Fired:
		return "fired"
	case Disarmed:
		return "disarmed"
	}
	return "unknown"
}

// Monitor runs at most one single-shot countdown at a time.
type Monitor struct {
	mu         sync.Mutex
	clock      clock.Clock
	onExpire   func()
	timer      *clock.Timer
	generation uint64
	state      State
	duration   time.Duration
	deadline   time.Time
	fired      int
}

type Option func(*Monitor)

// WithClock sets the clock (primarily for testing)
func WithClock(c clock.Clock) Option {
	return func(m *Monitor) {
		m.clock = c
	}
}

// New returns an idle monitor that calls onExpire when an armed countdown elapses.
func New(onExpire func(), options ...Option) *Monitor {
	m := &Monitor{
		clock:    clock.New(),
		onExpire: onExpire,
	}
	for _, opt := range options {
		opt(m)
	}
	return m
}

// Arm starts a countdown of d, cancelling any countdown already running.
func (m *Monitor) Arm(d time.Duration) {
	if d < 0 {
		d = 0
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.stopLocked()
	m.generation++
	gen := m.generation
	m.state = Armed
	m.duration = d
	m.deadline = m.clock.Now().Add(d)
	m.timer = m.clock.AfterFunc(d, func() { m.fire(gen) })

	log.Debug().Dur("timeout", d).Msg("session timeout armed")
}

// Disarm cancels a pending countdown without side effects.
func (m *Monitor) Disarm() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != Armed {
		return
	}
	m.stopLocked()
	m.generation++
	m.state = Idle
	m.deadline = time.Time{}
	log.Debug().Msg("session timeout disarmed")
}

func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Duration is the length of the most recent countdown.
func (m *Monitor) Duration() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.duration
}

// Remaining is zero unless armed.
func (m *Monitor) Remaining() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != Armed {
		return 0
	}
	if r := m.deadline.Sub(m.clock.Now()); r > 0 {
		return r
	}
	return 0
}

// FiredCount reports how many countdowns have elapsed.
func (m *Monitor) FiredCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fired
}

func (m *Monitor) fire(gen uint64) {
	m.mu.Lock()
	if gen != m.generation || m.state != Armed {
		m.mu.Unlock()
		return
	}
	m.state = Fired
	m.timer = nil
	m.fired++
	onExpire := m.onExpire
	m.mu.Unlock()

	log.Info().Msg("session timeout elapsed")
	if onExpire != nil {
		onExpire()
	}

	m.mu.Lock()
	if m.generation == gen && m.state == Fired {
		m.state = Idle
		m.deadline = time.Time{}
	}
	m.mu.Unlock()
}

func (m *Monitor) stopLocked() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}
