package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	logx "woonbot/pkg/logx"
)

func TestParseSchedule(t *testing.T) {
	t.Parallel()
	cases := []struct {
		in    string
		kind  SpecKind
		every time.Duration
		src   string
		bad   bool
	}{
		{in: "45 17 * * *", kind: SpecCron, src: "cron"},
		{in: "@daily", kind: SpecCron, src: "cron"},
		{in: "cron:@hourly", kind: SpecCron, src: "cron"},
		{in: "55m", kind: SpecInterval, every: 55 * time.Minute, src: "duration"},
		{in: "02:30", kind: SpecInterval, every: 150 * time.Minute, src: "hhmm"},
		{in: "every:00:05", kind: SpecInterval, every: 5 * time.Minute, src: "hhmm"},
		{in: "interval: 1h", kind: SpecInterval, every: time.Hour, src: "duration"},
		{in: "", bad: true},
		{in: "00:00", bad: true},
		{in: "01:75", bad: true},
		{in: "-5m", bad: true},
		{in: "soon", bad: true},
		{in: "cron:", bad: true},
	}
	for _, tc := range cases {
		ps, err := ParseSchedule(tc.in)
		if tc.bad {
			if err == nil {
				t.Fatalf("%q: expected error, got %+v", tc.in, ps)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%q: %v", tc.in, err)
		}
		if ps.Kind != tc.kind || ps.Every != tc.every || ps.Source != tc.src {
			t.Fatalf("%q: got %+v", tc.in, ps)
		}
	}
}

func TestAddDailyUsesTimezone(t *testing.T) {
	t.Parallel()
	s, err := New("Europe/Amsterdam", logx.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.AddDaily("scheduled-run", "17:45", 0, func(context.Context) error { return nil }); err != nil {
		t.Fatalf("AddDaily: %v", err)
	}
	if err := s.AddDaily("bad", "24:00", 0, func(context.Context) error { return nil }); err == nil {
		t.Fatalf("expected error for 24:00")
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)
	defer s.Stop(context.Background())

	es := s.Entries()
	if len(es) != 1 || es[0].Name != "scheduled-run" {
		t.Fatalf("entries: %+v", es)
	}
	next := es[0].Next.In(s.Location())
	if next.Hour() != 17 || next.Minute() != 45 {
		t.Fatalf("next = %v", next)
	}
}

func TestIntervalRunsAndRemove(t *testing.T) {
	t.Parallel()
	if _, err := New("Not/AZone", logx.Nop()); err == nil {
		t.Fatalf("expected timezone error")
	}
	s, _ := New("", logx.Nop())
	var runs atomic.Int32
	if err := s.AddSchedule("tick", "1s", time.Second, func(context.Context) error {
		runs.Add(1)
		return nil
	}); err != nil {
		t.Fatalf("AddSchedule: %v", err)
	}
	s.Start(context.Background())
	defer s.Stop(context.Background())

	deadline := time.Now().Add(3 * time.Second)
	for runs.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
	if runs.Load() == 0 {
		t.Fatalf("interval job never ran")
	}
	if !s.Remove("tick") || s.Remove("tick") {
		t.Fatalf("remove should succeed once")
	}
	if len(s.Entries()) != 0 {
		t.Fatalf("entries not empty after remove")
	}
}

func TestReplaceByName(t *testing.T) {
	t.Parallel()
	s, _ := New("UTC", logx.Nop())
	job := func(context.Context) error { return nil }
	_ = s.AddCron("a", "0 18 * * *", 0, job)
	_ = s.AddCron("a", "0 19 * * *", 0, job)
	es := s.Entries()
	if len(es) != 1 || es[0].Spec != "0 19 * * *" {
		t.Fatalf("entries: %+v", es)
	}
	if err := s.AddCron("b", "not a cron", 0, job); err == nil {
		t.Fatalf("expected parse error")
	}
}
