package engine

import "time"

// Timer is a cancelable, restartable delay. A Reset before firing
// restarts the delay instead of double-firing.
type Timer interface {
	Stop() bool
	Reset(d time.Duration) bool
}

// Scheduler abstracts timer creation so tests can drive debounce and
// settle windows deterministically.
type Scheduler interface {
	AfterFunc(d time.Duration, fn func()) Timer
}

// NewScheduler returns the wall-clock scheduler.
func NewScheduler() Scheduler { return realScheduler{} }

type realScheduler struct{}

func (realScheduler) AfterFunc(d time.Duration, fn func()) Timer {
	return realTimer{t: time.AfterFunc(d, fn)}
}

type realTimer struct{ t *time.Timer }

func (rt realTimer) Stop() bool                 { return rt.t.Stop() }
func (rt realTimer) Reset(d time.Duration) bool { return rt.t.Reset(d) }
