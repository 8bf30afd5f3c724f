// Package timing decides when things happen: the daily polling window and
// the apply moment, and waiting for that moment without firing early.
package timing

import (
	"context"
	"fmt"
	"time"
)

// Clock is the time source. Tests substitute a fake.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type RealClock struct{}

func (RealClock) Now() time.Time                         { return time.Now() }
func (RealClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// NextAt returns the next hh:mm in loc at or after now. A moment that
// already passed today rolls over to tomorrow.
func NextAt(now time.Time, hh, mm int, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	n := now.In(loc)
	t := time.Date(n.Year(), n.Month(), n.Day(), hh, mm, 0, 0, loc)
	if t.Before(n) {
		t = time.Date(n.Year(), n.Month(), n.Day()+1, hh, mm, 0, 0, loc)
	}
	return t
}

// TimeOfDay is an hh:mm wall-clock time.
type TimeOfDay struct{ Hour, Minute int }

func (t TimeOfDay) String() string { return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute) }

func (t TimeOfDay) on(day time.Time, loc *time.Location) time.Time {
	d := day.In(loc)
	return time.Date(d.Year(), d.Month(), d.Day(), t.Hour, t.Minute, 0, 0, loc)
}

type Phase int

const (
	// PhaseBefore: today's window has not opened yet.
	PhaseBefore Phase = iota
	// PhaseOpen: between window start (inclusive) and the apply moment.
	PhaseOpen
	// PhaseClosed: the apply moment has passed for today.
	PhaseClosed
)

func (p Phase) String() string {
	switch p {
	case PhaseBefore:
		return "before window"
	case PhaseOpen:
		return "window open"
	case PhaseClosed:
		return "window closed"
	}
	return "unknown"
}

// Window is the daily polling window ending at the apply moment.
type Window struct {
	Start   TimeOfDay
	ApplyAt TimeOfDay
	Loc     *time.Location
}

func (w Window) loc() *time.Location {
	if w.Loc == nil {
		return time.Local
	}
	return w.Loc
}

func (w Window) Phase(now time.Time) Phase {
	start := w.Start.on(now, w.loc())
	apply := w.ApplyAt.on(now, w.loc())
	switch {
	case now.Before(start):
		return PhaseBefore
	case now.Before(apply):
		return PhaseOpen
	default:
		return PhaseClosed
	}
}

// StartOn and ApplyOn return the window boundaries on the day of now.
func (w Window) StartOn(now time.Time) time.Time { return w.Start.on(now, w.loc()) }
func (w Window) ApplyOn(now time.Time) time.Time { return w.ApplyAt.on(now, w.loc()) }

// NextApply is the next apply moment at or after now.
func (w Window) NextApply(now time.Time) time.Time {
	return NextAt(now, w.ApplyAt.Hour, w.ApplyAt.Minute, w.loc())
}

// fineStep bounds each sleep once inside the spin lead.
const fineStep = time.Millisecond

// WaitUntil blocks until the clock reads t or later. It sleeps on one
// coarse timer until t-spin, then in steps of at most 1ms. It never
// returns nil before t.
func WaitUntil(ctx context.Context, clock Clock, t time.Time, spin time.Duration) error {
	if clock == nil {
		clock = RealClock{}
	}
	if spin < 0 {
		spin = 0
	}
	if coarse := t.Add(-spin).Sub(clock.Now()); coarse > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-clock.After(coarse):
		}
	}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		left := t.Sub(clock.Now())
		if left <= 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-clock.After(min(left, fineStep)):
		}
	}
}

// Countdown renders the time left until t as HH:MM:SS, clamped at zero.
// Partial seconds round up so it reads 00:00:00 only once t is reached.
func Countdown(now, t time.Time) string {
	d := t.Sub(now)
	if d < 0 {
		d = 0
	}
	secs := int64((d + time.Second - 1) / time.Second)
	return fmt.Sprintf("%02d:%02d:%02d", secs/3600, (secs/60)%60, secs%60)
}
