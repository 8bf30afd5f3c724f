// Package app wires configuration, logging, storage, the site client, the
// browser, notifications and the bot into the CLI and daemon entry points.
package app

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"woonbot/internal/bot"
	"woonbot/internal/browser"
	"woonbot/internal/config"
	"woonbot/internal/credentials"
	"woonbot/internal/eventbus"
	"woonbot/internal/notifier"
	"woonbot/internal/report"
	rtsup "woonbot/internal/runtime/supervisor"
	"woonbot/internal/storage"
	kit "woonbot/internal/transport"
	telegram "woonbot/internal/transport/telegram/adapter"
	"woonbot/internal/woonnet"
	logx "woonbot/pkg/logx"
)

type Options struct {
	ConfigPath string
	// LogLevel overrides logging.level when set.
	LogLevel string
	Version  string
}

type App struct {
	opts Options
	cfgm *config.Manager

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store
	creds credentials.Store
	site  *woonnet.Client
	bot   *bot.Bot
	rep   *report.Reporter

	tg    *telegram.Adapter // nil without telegram config
	notif *notifier.Service

	sup *rtsup.Supervisor
}

// New loads the config and builds every component. Nothing runs yet.
func New(opts Options) (*App, error) {
	if err := config.LoadEnv(config.EnvFiles(opts.ConfigPath)...); err != nil {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	cfgm := config.NewManager(opts.ConfigPath)
	raw, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	cfg := raw.WithDefaults()

	logs, log := logx.New(mapLogConfig(cfg, opts.LogLevel), nil)
	log = log.With(logx.String("comp", "app"))
	cfgm.SetLogger(log.With(logx.String("comp", "config")))
	if _, err := os.Stat(opts.ConfigPath); errors.Is(err, fs.ErrNotExist) {
		log.Info("no config file; using defaults", logx.String("path", opts.ConfigPath))
	}

	a := &App{opts: opts, cfgm: cfgm, log: log, logs: logs, bus: eventbus.New()}
	ok := false
	defer func() {
		if !ok {
			a.close()
		}
	}()

	a.rep = report.New(report.Options{
		ProxyURL: cfg.Report.ProxyURL,
		Version:  opts.Version,
		Timeout:  config.MustDuration(cfg.Report.Timeout, 15*time.Second),
		LogTail:  logs.Tail,
		Log:      log.With(logx.String("comp", "report")),
	})

	if t := cfg.Telegram; t != nil && strings.TrimSpace(t.Token) != "" {
		tg, err := telegram.New(telegram.Config{
			Token:       t.Token,
			PollTimeout: config.MustDuration(t.PollTimeout, 10*time.Second),
		}, log.With(logx.String("comp", "telegram")))
		if err != nil {
			return nil, fmt.Errorf("telegram: %w", err)
		}
		a.tg = tg
		logs.SetSender(tg)
	}
	var sender kit.Adapter
	if a.tg != nil {
		sender = a.tg
	}
	a.notif = notifier.New(mapNotifierConfig(cfg), sender, log.With(logx.String("comp", "notifier")), a.bus)

	st, err := storage.Open(mapStorageConfig(cfg), log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, fmt.Errorf("storage: %w", err)
	}
	a.store = st

	a.creds, err = credentials.Open(mapCredentialOptions(cfg, log.With(logx.String("comp", "credentials"))))
	if err != nil {
		return nil, err
	}

	a.site, err = woonnet.New(mapSiteOptions(cfg, log.With(logx.String("comp", "woonnet"))))
	if err != nil {
		return nil, err
	}

	w, err := mapWindow(cfg)
	if err != nil {
		return nil, err
	}
	bopts := mapBrowserOptions(cfg, log.With(logx.String("comp", "browser")))
	a.bot = bot.New(bot.Options{
		Site:         a.site,
		NewSession:   func() bot.Session { return bot.BrowserSession(browser.New(bopts)) },
		Credentials:  a.creds,
		Store:        st,
		Bus:          a.bus,
		Window:       w,
		Timing:       mapTiming(cfg),
		HTMLFallback: *cfg.Site.HTMLFallback,
		Log:          log,
	})
	ok = true
	return a, nil
}

func (a *App) Log() logx.Logger { return a.log }

func (a *App) Bus() eventbus.Bus { return a.bus }

func (a *App) Bot() *bot.Bot { return a.bot }

func (a *App) Config() *config.Config { return a.cfgm.Get().WithDefaults() }

// start brings up the pieces every mode needs: the supervisor (panics go
// to the crash reporter), the notifier and the event forwarder.
func (a *App) start(ctx context.Context) {
	a.sup = rtsup.New(ctx,
		rtsup.WithLogger(a.log.With(logx.String("comp", "supervisor"))),
		rtsup.WithPanicHook(func(name string, recovered any, stack string) {
			rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 20*time.Second)
			defer cancel()
			a.rep.Report(rctx, fmt.Errorf("panic: %v", recovered), name, stack)
		}),
	)
	if a.notif.Enabled() {
		// Workers outlive the app context; Stop drains the queue.
		a.notif.Start(context.WithoutCancel(a.sup.Context()))
	}
	events, unsub := a.bus.Subscribe(128, "bot.")
	a.sup.Go0("events.forward", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				// Forward what is already queued, such as the final
				// bot.done of a CLI run.
				dctx := context.WithoutCancel(c)
				for {
					select {
					case e, ok := <-events:
						if !ok {
							return
						}
						a.onBotEvent(dctx, e)
					default:
						return
					}
				}
			case e, ok := <-events:
				if !ok {
					return
				}
				a.onBotEvent(c, e)
			}
		}
	})
}

// onBotEvent turns run progress into operator notifications.
func (a *App) onBotEvent(ctx context.Context, e eventbus.Event) {
	var (
		text     string
		priority int
	)
	switch d := e.Data.(type) {
	case bot.ApplyEvent:
		switch {
		case e.Type == bot.EventApplied && d.DryRun:
			text, priority = fmt.Sprintf("Apply button found for %s (dry run)", listingLabel(d.Listing)), 3
		case e.Type == bot.EventApplied:
			text, priority = fmt.Sprintf("Applied to %s", listingLabel(d.Listing)), 6
		default:
			text, priority = fmt.Sprintf("Application for %s failed: %v", listingLabel(d.Listing), d.Err), 8
		}
	case bot.Result:
		text, priority = fmt.Sprintf("Run %s (%s) finished: %s", d.RunID[:8], d.Mode, d.Summary()), 5
	default:
		return
	}
	if !a.notif.Enabled() {
		return
	}
	cfg := a.Config()
	if cfg.Telegram == nil {
		return
	}
	err := a.notif.Notify(ctx, kit.Notification{
		Channel:  "telegram",
		Priority: priority,
		Target:   kit.ChatTarget{ChatID: cfg.Telegram.ChatID, ThreadID: cfg.Telegram.ThreadID},
		Text:     text,
	})
	if err != nil && !errors.Is(err, notifier.ErrDisabled) {
		a.log.Debug("notification not queued", logx.Err(err))
	}
}

func listingLabel(l woonnet.Listing) string {
	if l.Address == "" {
		return l.ID
	}
	if l.PriceText != "" {
		return fmt.Sprintf("%s (%s, %s)", l.ID, l.Address, l.PriceText)
	}
	return fmt.Sprintf("%s (%s)", l.ID, l.Address)
}

// reportRunError sends unexpected run failures to the crash reporter.
func (a *App) reportRunError(ctx context.Context, where string, err error) {
	if err == nil || !a.rep.Enabled() {
		return
	}
	switch {
	case errors.Is(err, context.Canceled),
		errors.Is(err, bot.ErrBusy),
		errors.Is(err, bot.ErrNoTargets),
		errors.Is(err, bot.ErrWindowClosed),
		errors.Is(err, bot.ErrNoCreds):
		return
	}
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 20*time.Second)
	defer cancel()
	a.rep.Report(rctx, err, where, "")
}

// Stop shuts components down in dependency order. Each step is bounded so
// one stuck component cannot stall the rest.
func (a *App) Stop(ctx context.Context, reason StopReason) {
	a.log.Info("stopping", logx.String("reason", string(reason)))
	if a.sup != nil {
		a.sup.Cancel()
	}
	step := func(name string, limit time.Duration, fn func(context.Context) error) {
		start := time.Now()
		sctx, cancel := context.WithTimeout(ctx, limit)
		defer cancel()
		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(sctx)
		}()
		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-sctx.Done():
			a.log.Warn("stop step deadline reached (continuing)", logx.String("name", name), logx.Duration("elapsed", time.Since(start)))
		}
	}
	if a.sup != nil {
		step("supervisor", 3*time.Second, a.sup.Wait)
	}
	step("notifier", 5*time.Second, func(c context.Context) error { a.notif.Stop(c); return nil })
	if a.tg != nil {
		step("telegram", 3*time.Second, a.tg.Stop)
	}
	a.log.Info("stopped")
	a.close()
}

func (a *App) close() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn("storage close failed", logx.Err(err))
		}
		a.store = nil
	}
	if a.logs != nil {
		_ = a.logs.Close()
	}
}
