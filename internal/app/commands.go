package app

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"woonbot/internal/bot"
	"woonbot/internal/scheduler"
	"woonbot/internal/timing"
	kit "woonbot/internal/transport"
	telegram "woonbot/internal/transport/telegram/adapter"
	"woonbot/internal/transport/telegram/router"
	logx "woonbot/pkg/logx"
)

func (a *App) owners() []int64 {
	if t := a.Config().Telegram; t != nil {
		return t.OwnerUserIDs
	}
	return nil
}

func (a *App) commandRouter(sched *scheduler.Service) *router.Router {
	log := a.log.With(logx.String("comp", "commands"))
	r := router.New(
		router.MWPanicRecover(log),
		router.MWRequestLog(log),
		router.MWOwnerOnly(a.owners),
		router.MWTimeout(30*time.Second),
	)
	r.Handle("status", "phase, countdown and last result", func(context.Context, *router.Request) (string, error) {
		return a.statusText(sched), nil
	})
	r.Handle("listings", "listings from the last check", func(context.Context, *router.Request) (string, error) {
		return a.listingsText(), nil
	})
	r.Handle("history", "recent applications [n]", func(ctx context.Context, req *router.Request) (string, error) {
		n := 10
		if len(req.Args) > 0 {
			if v, err := strconv.Atoi(req.Args[0]); err == nil && v > 0 {
				n = min(v, 50)
			}
		}
		return a.historyText(ctx, n)
	})
	r.Handle("run", "apply now with the saved selection", func(_ context.Context, _ *router.Request) (string, error) {
		if a.bot.Status().Running {
			return "", bot.ErrBusy
		}
		a.sup.Go0("commands.run", func(c context.Context) {
			_, err := a.bot.RunNow(c, bot.RunOptions{Selection: a.selection(c, RunFlags{})})
			a.reportRunError(c, "telegram /run", err)
		})
		return "Run started.", nil
	})
	r.Handle("help", "list commands", func(context.Context, *router.Request) (string, error) {
		return r.Help(), nil
	})
	return r
}

func (a *App) publishCommands(r *router.Router) {
	cmds := make([]telegram.Command, 0)
	for _, c := range r.Commands() {
		cmds = append(cmds, telegram.Command{Name: c[0], Description: c[1]})
	}
	if err := a.tg.SetCommands(cmds); err != nil {
		a.log.Debug("telegram command menu not set", logx.Err(err))
	}
}

func (a *App) dispatchLoop(ctx context.Context, r *router.Router, inbox <-chan kit.Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-inbox:
			reply, err := r.Dispatch(ctx, msg)
			switch {
			case errors.Is(err, router.ErrNotOwner):
				continue
			case err != nil:
				reply = "Error: " + err.Error()
			}
			if reply == "" {
				continue
			}
			to := kit.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID}
			if _, err := a.tg.SendText(ctx, to, reply, &kit.SendOptions{DisablePreview: true}); err != nil {
				a.log.Warn("reply failed", logx.Err(err))
			}
		}
	}
}

func (a *App) statusText(sched *scheduler.Service) string {
	st := a.bot.Status()
	w := a.bot.Window()
	now := time.Now()
	var b strings.Builder
	fmt.Fprintf(&b, "Phase: %s (%s-%s %s)\n", w.Phase(now), w.Start, w.ApplyAt, w.Loc)
	fmt.Fprintf(&b, "Next apply: %s (in %s)\n", st.NextApply.Format("Mon 02 Jan 15:04"), timing.Countdown(now, st.NextApply))
	if st.Running {
		fmt.Fprintf(&b, "Running: %s run %s\n", st.Mode, shortID(st.RunID))
		if st.Text != "" {
			fmt.Fprintf(&b, "Status: %s\n", st.Text)
		}
	} else {
		b.WriteString("Idle\n")
	}
	for _, e := range sched.Entries() {
		if e.Name == scheduledRunName && !e.Next.IsZero() {
			fmt.Fprintf(&b, "Next scheduled run: %s\n", e.Next.Format("Mon 02 Jan 15:04"))
		}
	}
	if r := st.LastResult; r != nil {
		fmt.Fprintf(&b, "Last run (%s, %s): %s", r.Mode, r.Finished.Format("02 Jan 15:04"), r.Summary())
		if st.LastError != "" {
			fmt.Fprintf(&b, "\nLast error: %s", st.LastError)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func (a *App) listingsText() string {
	ls := a.bot.Status().LastListings
	if len(ls) == 0 {
		return "No listings seen yet."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d listings (cheapest first):\n", len(ls))
	for i, l := range ls {
		if i == 20 {
			fmt.Fprintf(&b, "... and %d more", len(ls)-20)
			break
		}
		fmt.Fprintf(&b, "%s  %s  %s\n", l.ID, l.Address, l.PriceText)
	}
	return strings.TrimRight(b.String(), "\n")
}

func (a *App) historyText(ctx context.Context, n int) (string, error) {
	if a.store == nil {
		return "Storage is disabled.", nil
	}
	apps, err := a.store.RecentApplications(ctx, n)
	if err != nil {
		return "", err
	}
	if len(apps) == 0 {
		return "No applications recorded.", nil
	}
	var b strings.Builder
	for _, ap := range apps {
		mark := "ok"
		switch {
		case !ap.OK:
			mark = "failed: " + ap.Error
		case ap.DryRun:
			mark = "dry run"
		}
		fmt.Fprintf(&b, "%s  %s  %s  %s\n", ap.At.Format("02 Jan 15:04"), ap.ListingID, ap.Address, mark)
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
