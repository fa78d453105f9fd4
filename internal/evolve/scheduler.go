// Package evolve implements the auto-evolve scheduler: a one-shot deadline
// timer plus a one-second countdown ticker that, while armed, periodically
// runs a small-variation generation against the active pattern.
package evolve

import (
	"log"
	"sync"
	"time"
)

// State of the scheduler.
type State int

const (
	// Disarmed: no timers pending.
	Disarmed State = iota
	// ArmedCounting: deadline timer and countdown ticker running.
	ArmedCounting
	// Evolving: deadline fired, a variation request is in flight.
	Evolving
)

func (s State) String() string {
	switch s {
	case ArmedCounting:
		return "armed"
	case Evolving:
		return "evolving"
	default:
		return "disarmed"
	}
}

// AllowedIntervals are the configurable evolve periods, in seconds.
var AllowedIntervals = []int{60, 120, 180, 300}

// ValidInterval reports whether the given period is one of the fixed choices.
func ValidInterval(seconds int) bool {
	for _, v := range AllowedIntervals {
		if v == seconds {
			return true
		}
	}
	return false
}

// EvolveFunc runs one evolution step. A non-nil error disarms the scheduler;
// there is no automatic retry.
type EvolveFunc func() error

type armHandle struct {
	ticker   *time.Ticker
	deadline *time.Timer
	done     chan struct{}
}

// Scheduler drives the Disarmed / ArmedCounting / Evolving state machine.
// All transitions are serialized behind one mutex; timer callbacks check an
// arm generation so a cancelled arm's late timer events are ignored.
type Scheduler struct {
	evolveFn EvolveFunc

	mu        sync.Mutex
	state     State
	interval  time.Duration
	remaining int
	armID     uint64
	handle    *armHandle
}

// NewScheduler creates a disarmed scheduler. evolveFn is invoked each time
// the deadline fires.
func NewScheduler(evolveFn EvolveFunc) *Scheduler {
	return &Scheduler{evolveFn: evolveFn}
}

// Arm starts (or restarts) the countdown with the given interval. Any
// pending timers from a previous arm are cancelled first.
func (s *Scheduler) Arm(interval time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.armLocked(interval)
}

func (s *Scheduler) armLocked(interval time.Duration) {
	s.cancelLocked()

	s.state = ArmedCounting
	s.interval = interval
	s.remaining = int(interval / time.Second)
	s.armID++

	handle := &armHandle{
		ticker:   time.NewTicker(time.Second),
		deadline: time.NewTimer(interval),
		done:     make(chan struct{}),
	}
	s.handle = handle

	log.Printf("🧬 Auto-evolve armed (interval: %v)", interval)
	go s.watch(s.armID, handle)
}

// Disarm cancels pending timers and returns to Disarmed. Idempotent; called
// on stop, clear, and evolve failure.
func (s *Scheduler) Disarm() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Disarmed {
		log.Printf("🧬 Auto-evolve disarmed")
	}
	s.cancelLocked()
	s.state = Disarmed
	s.remaining = 0
}

// SetInterval reconfigures the period. While armed this cancels the
// in-flight deadline and re-arms with a fresh full-length countdown.
func (s *Scheduler) SetInterval(interval time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.interval = interval
	if s.state == ArmedCounting {
		s.armLocked(interval)
	}
}

// State returns the current state.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Enabled reports whether the scheduler is armed or mid-evolution.
func (s *Scheduler) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state != Disarmed
}

// Remaining returns the seconds left until the next evolution.
func (s *Scheduler) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remaining
}

// Interval returns the configured period.
func (s *Scheduler) Interval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interval
}

// watch consumes one arm's timer events until the deadline fires or the arm
// is cancelled.
func (s *Scheduler) watch(id uint64, handle *armHandle) {
	for {
		select {
		case <-handle.done:
			return
		case <-handle.ticker.C:
			s.tick(id)
		case <-handle.deadline.C:
			s.fire(id)
			return
		}
	}
}

// tick decrements the displayed countdown, floored at zero. Purely
// observational.
func (s *Scheduler) tick(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.armID != id || s.state != ArmedCounting {
		return
	}
	if s.remaining > 0 {
		s.remaining--
	}
}

// fire runs one evolution. Success re-arms with a fresh countdown; failure
// disarms entirely.
func (s *Scheduler) fire(id uint64) {
	s.mu.Lock()
	if s.armID != id || s.state != ArmedCounting {
		s.mu.Unlock()
		return
	}
	s.state = Evolving
	interval := s.interval
	s.mu.Unlock()

	err := s.evolveFn()

	s.mu.Lock()
	defer s.mu.Unlock()

	// A stop/clear during the evolution takes precedence over re-arming.
	if s.armID != id || s.state != Evolving {
		return
	}

	if err != nil {
		log.Printf("❌ Auto-evolve step failed, disarming: %v", err)
		s.cancelLocked()
		s.state = Disarmed
		s.remaining = 0
		return
	}

	s.armLocked(interval)
}

func (s *Scheduler) cancelLocked() {
	if s.handle == nil {
		return
	}
	s.handle.ticker.Stop()
	s.handle.deadline.Stop()
	close(s.handle.done)
	s.handle = nil
	s.armID++
}
