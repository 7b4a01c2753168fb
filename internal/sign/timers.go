package sign

import "time"

// Timer is a pending callback that can be cancelled
type Timer interface {
	// Stop cancels the timer; it reports false if the timer already fired or was stopped
	Stop() bool
}

// Timers schedules callbacks. The poller only schedules through this so tests
// can observe and fire timers deterministically.
type Timers interface {
	AfterFunc(d time.Duration, f func()) Timer
}

// RealTimers schedules with time.AfterFunc
type RealTimers struct{}

func (RealTimers) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Progress is a cosmetic indicator shown while a poll is in flight
type Progress interface {
	Animate()
	Finish()
}

type noProgress struct{}

func (noProgress) Animate() {}
func (noProgress) Finish()  {}
