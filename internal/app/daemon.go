package app

import (
	"context"
	"errors"
	"strings"
	"time"

	"woonbot/internal/bot"
	"woonbot/internal/config"
	"woonbot/internal/scheduler"
	kit "woonbot/internal/transport"
	logx "woonbot/pkg/logx"
	"woonbot/pkg/systemd"
)

const scheduledRunName = "scheduled-run"

// Daemon runs until ctx is done: a cron trigger starts the scheduled run
// every day, Telegram accepts owner commands, and config edits are
// applied live.
func (a *App) Daemon(ctx context.Context) error {
	cfg := a.Config()
	sched, err := scheduler.New(cfg.Schedule.Timezone, a.log.With(logx.String("comp", "scheduler")))
	if err != nil {
		return err
	}
	if err := a.registerTrigger(sched, cfg); err != nil {
		return err
	}

	a.start(ctx)
	defer a.Stop(context.WithoutCancel(ctx), StopSignal)

	sched.Start(a.sup.Context())
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		sched.Stop(sctx)
		cancel()
	}()

	if a.tg != nil {
		r := a.commandRouter(sched)
		inbox := make(chan kit.Message, 64)
		if err := a.tg.Start(a.sup.Context(), inbox); err != nil {
			return err
		}
		a.publishCommands(r)
		a.sup.Go0("commands.dispatch", func(c context.Context) { a.dispatchLoop(c, r, inbox) })
	}

	sub := a.cfgm.Subscribe(4)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		last := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case next, ok := <-sub:
				if !ok {
					return
				}
				a.applyConfig(sched, last, next)
				last = next
			}
		}
	})
	a.sup.Go("config.watch", a.cfgm.Watch)

	a.sup.Go0("systemd.watchdog", func(c context.Context) {
		systemd.Watchdog(c, a.log.With(logx.String("comp", "systemd")))
	})
	status, unsub := a.bus.Subscribe(16, bot.EventStatus)
	a.sup.Go0("systemd.status", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e := <-status:
				if st, ok := e.Data.(bot.StatusEvent); ok {
					_, _ = systemd.Status(st.Text)
				}
			}
		}
	})

	if _, err := systemd.Ready(); err != nil {
		a.log.Warn("sd_notify READY failed", logx.Err(err))
	}
	_, _ = systemd.Status("idle; next apply " + a.bot.Status().NextApply.Format("2006-01-02 15:04 MST"))
	a.log.Info("daemon started", logx.String("trigger", cfg.Schedule.DaemonTrigger))

	select {
	case <-ctx.Done():
	case <-a.sup.Context().Done():
	}
	_, _ = systemd.Stopping()
	if err := a.sup.Err(); err != nil {
		return err
	}
	return nil
}

func (a *App) registerTrigger(sched *scheduler.Service, cfg *config.Config) error {
	return sched.AddSchedule(scheduledRunName, cfg.Schedule.DaemonTrigger, 0, func(ctx context.Context) error {
		res, err := a.bot.RunScheduled(ctx, bot.RunOptions{Selection: a.selection(ctx, RunFlags{})})
		a.reportRunError(ctx, "scheduled run", err)
		if err != nil && !errors.Is(err, bot.ErrWindowClosed) {
			return err
		}
		a.log.Info("scheduled run done", logx.String("result", res.Summary()))
		return nil
	})
}

// applyConfig applies a reloaded config to the live components. Sections
// that need a restart are reported, not applied.
func (a *App) applyConfig(sched *scheduler.Service, prev, next *config.Config) {
	sections, fields := config.SummarizeChange(prev, next)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	cfg := next.WithDefaults()
	a.logs.Apply(mapLogConfig(cfg, a.opts.LogLevel))
	a.notif.Apply(mapNotifierConfig(cfg))

	for _, s := range sections {
		switch s {
		case "schedule":
			if w, err := mapWindow(cfg); err == nil {
				a.bot.SetSchedule(w, mapTiming(cfg))
			}
			if err := a.registerTrigger(sched, cfg); err != nil {
				a.log.Warn("daemon trigger not updated", logx.Err(err))
			}
		case "telegram":
			// Owners are read per message; the bot connection is not rebuilt.
			if telegramConn(prev) != telegramConn(next) {
				a.log.Warn("config section changed; restart required", logx.String("section", s))
			}
		case "site", "browser", "credentials", "storage", "report":
			a.log.Warn("config section changed; restart required", logx.String("section", s))
		}
	}
	a.log.Info("config reloaded", append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, fields...)...)
}

func telegramConn(cfg *config.Config) [2]string {
	if cfg == nil || cfg.Telegram == nil {
		return [2]string{}
	}
	return [2]string{strings.TrimSpace(cfg.Telegram.Token), strings.TrimSpace(cfg.Telegram.PollTimeout)}
}
