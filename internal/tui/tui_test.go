package tui

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"woonbot/internal/bot"
	"woonbot/internal/eventbus"
	"woonbot/internal/timing"
	"woonbot/internal/woonnet"
)

func testModel(t *testing.T, now time.Time, cancel context.CancelFunc) Model {
	t.Helper()
	loc, err := time.LoadLocation("Europe/Amsterdam")
	if err != nil {
		t.Fatalf("tz: %v", err)
	}
	w := timing.Window{Start: timing.TimeOfDay{Hour: 18}, ApplyAt: timing.TimeOfDay{Hour: 20}, Loc: loc}
	m := NewModel(w, make(chan eventbus.Event), cancel)
	m.now = func() time.Time { return now.In(loc) }
	return m
}

func TestViewShowsCountdown(t *testing.T) {
	t.Parallel()
	loc, _ := time.LoadLocation("Europe/Amsterdam")
	m := testModel(t, time.Date(2026, 3, 2, 19, 58, 30, 0, loc), nil)
	v := m.View()
	if !strings.Contains(v, "00:01:30") || !strings.Contains(v, "window open") {
		t.Fatalf("view:\n%s", v)
	}
}

func TestUpdateCollectsEventsAndQuits(t *testing.T) {
	t.Parallel()
	loc, _ := time.LoadLocation("Europe/Amsterdam")
	canceled := false
	m := testModel(t, time.Date(2026, 3, 2, 12, 0, 0, 0, loc), func() { canceled = true })

	at := time.Date(2026, 3, 2, 12, 0, 5, 0, loc)
	var tm tea.Model = m
	tm, _ = tm.Update(eventMsg(eventbus.Event{Type: bot.EventStatus, Time: at, Data: bot.StatusEvent{Text: "logging in as jan"}}))
	tm, _ = tm.Update(eventMsg(eventbus.Event{Type: bot.EventApplyFailed, Time: at, Data: bot.ApplyEvent{
		Listing: woonnet.Listing{ID: "101"}, Err: errors.New("no button"),
	}}))
	for i := 0; i < maxLines+3; i++ {
		tm, _ = tm.Update(eventMsg(eventbus.Event{Type: bot.EventStatus, Time: at, Data: bot.StatusEvent{Text: "tick"}}))
	}
	if got := len(tm.(Model).lines); got != maxLines {
		t.Fatalf("lines = %d", got)
	}

	tm, cmd := tm.Update(doneMsg{res: bot.Result{Attempted: 2, Succeeded: 2}})
	if cmd == nil || !strings.Contains(tm.View(), "applied to 2 of 2 listings") {
		t.Fatalf("done view:\n%s", tm.View())
	}

	_, cmd = tm.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if cmd == nil || !canceled {
		t.Fatalf("q should cancel and quit")
	}
}
