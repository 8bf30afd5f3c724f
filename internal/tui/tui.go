// Package tui is the terminal countdown view for a run: phase, time left
// until the apply moment and the latest status lines.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"woonbot/internal/bot"
	"woonbot/internal/eventbus"
	"woonbot/internal/timing"
)

const maxLines = 12

var (
	titleStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	countdownStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86")).Padding(0, 1).Border(lipgloss.RoundedBorder())
	phaseStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	okStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	errStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	helpStyle      = lipgloss.NewStyle().Faint(true)
)

type (
	tickMsg  time.Time
	eventMsg eventbus.Event
	doneMsg  struct {
		res bot.Result
		err error
	}
)

type Model struct {
	window  timing.Window
	now     func() time.Time
	events  <-chan eventbus.Event
	cancel  context.CancelFunc
	spinner spinner.Model

	lines []string
	done  *doneMsg
}

func NewModel(w timing.Window, events <-chan eventbus.Event, cancel context.CancelFunc) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	return Model{window: w, now: time.Now, events: events, cancel: cancel, spinner: sp}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, tick(), waitEvent(m.events))
}

func tick() tea.Cmd {
	return tea.Tick(200*time.Millisecond, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func waitEvent(ch <-chan eventbus.Event) tea.Cmd {
	return func() tea.Msg {
		e, ok := <-ch
		if !ok {
			return nil
		}
		return eventMsg(e)
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			if m.cancel != nil {
				m.cancel()
			}
			return m, tea.Quit
		}
	case tickMsg:
		if m.done != nil {
			return m, nil
		}
		return m, tick()
	case eventMsg:
		if line := describe(eventbus.Event(msg)); line != "" {
			m.lines = append(m.lines, line)
			if len(m.lines) > maxLines {
				m.lines = m.lines[len(m.lines)-maxLines:]
			}
		}
		return m, waitEvent(m.events)
	case doneMsg:
		m.done = &msg
		return m, tea.Quit
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func describe(e eventbus.Event) string {
	ts := e.Time.Format("15:04:05")
	switch d := e.Data.(type) {
	case bot.StatusEvent:
		return ts + "  " + d.Text
	case bot.ApplyEvent:
		if e.Type == bot.EventApplyFailed {
			return ts + "  " + errStyle.Render(fmt.Sprintf("failed %s: %v", d.Listing.ID, d.Err))
		}
		return ts + "  " + okStyle.Render("applied "+d.Listing.ID)
	}
	return ""
}

func (m Model) View() string {
	now := m.now()
	apply := m.window.NextApply(now)
	if m.window.Phase(now) != timing.PhaseClosed {
		apply = m.window.ApplyOn(now)
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("WoonnetBot") + "\n\n")
	b.WriteString(countdownStyle.Render(timing.Countdown(now, apply)) + "\n")
	b.WriteString(phaseStyle.Render(fmt.Sprintf("%s · apply at %s %s", m.window.Phase(now), apply.Format("15:04"), apply.Format("Mon 02 Jan"))) + "\n\n")
	for _, l := range m.lines {
		b.WriteString(l + "\n")
	}
	b.WriteString("\n")
	switch {
	case m.done == nil:
		b.WriteString(m.spinner.View() + " running\n")
	case m.done.err != nil:
		b.WriteString(errStyle.Render("run ended: "+m.done.err.Error()) + "\n")
	default:
		b.WriteString(okStyle.Render(m.done.res.Summary()) + "\n")
	}
	b.WriteString(helpStyle.Render("q: cancel and quit") + "\n")
	return b.String()
}

// Run shows the view while run executes. Quitting the view cancels run.
func Run(ctx context.Context, bus eventbus.Bus, w timing.Window, run func(ctx context.Context) (bot.Result, error)) (bot.Result, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	events, unsub := bus.Subscribe(64, "bot.")
	defer unsub()

	p := tea.NewProgram(NewModel(w, events, cancel), tea.WithContext(ctx))
	type outcome struct {
		res bot.Result
		err error
	}
	out := make(chan outcome, 1)
	go func() {
		res, err := run(ctx)
		out <- outcome{res, err}
		p.Send(doneMsg{res: res, err: err})
	}()
	_, perr := p.Run()
	cancel()
	o := <-out
	if o.err == nil && perr != nil && !errors.Is(perr, tea.ErrProgramKilled) {
		o.err = perr
	}
	return o.res, o.err
}
