package widget

import "time"

// Timer is a pending one-shot wake-up.
type Timer interface {
	Stop() bool
}

// Clock schedules wake-ups. Tests substitute a manual clock.
type Clock interface {
	AfterFunc(d time.Duration, fn func()) Timer
}

type systemClock struct{}

func (systemClock) AfterFunc(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, fn)
}

// SystemClock is the wall clock.
var SystemClock Clock = systemClock{}
