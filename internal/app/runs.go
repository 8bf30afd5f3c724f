package app

import (
	"context"
	"errors"
	"strings"

	"woonbot/internal/bot"
	"woonbot/internal/config"
	"woonbot/internal/storage"
	logx "woonbot/pkg/logx"
)

// RunFlags are the selection flags given on the command line. The *Set
// fields tell an explicit flag apart from its zero value.
type RunFlags struct {
	Count    int
	CountSet bool
	Max      bool
	MaxSet   bool
	IDs      []string
	IDsSet   bool
	Reapply  bool
	DryRun   bool
}

// resolveSelection layers flags over saved preferences over config.
func resolveSelection(f RunFlags, p storage.Prefs, cfg config.BotConfig) bot.Selection {
	sel := bot.Selection{
		Count:   cfg.Count,
		Max:     cfg.Max,
		IDs:     cfg.ListingIDs,
		Reapply: cfg.Reapply || f.Reapply,
	}
	if p.Count > 0 || p.Max || len(p.ListingIDs) > 0 {
		sel.Count, sel.Max, sel.IDs = p.Count, p.Max, p.ListingIDs
	}
	if f.CountSet {
		sel.Count = f.Count
	}
	if f.MaxSet {
		sel.Max = f.Max
	}
	// An explicit --count or --max asks for cheapest-first selection; saved
	// or configured ids would otherwise take precedence over it.
	if (f.CountSet || f.MaxSet) && !f.IDsSet {
		sel.IDs = nil
	}
	if f.IDsSet {
		sel.IDs = cleanIDs(f.IDs)
		// Explicit ids on the command line may name listings that are not
		// discoverable yet.
		sel.Force = len(sel.IDs) > 0
	}
	if sel.Count <= 0 {
		sel.Count = 1
	}
	return sel
}

func cleanIDs(in []string) []string {
	out := make([]string, 0, len(in))
	for _, raw := range in {
		for _, id := range strings.Split(raw, ",") {
			if id = strings.TrimSpace(id); id != "" {
				out = append(out, id)
			}
		}
	}
	return out
}

func (a *App) loadPrefs(ctx context.Context) storage.Prefs {
	if a.store == nil {
		return storage.Prefs{}
	}
	p, err := a.store.LoadPrefs(ctx)
	if err != nil {
		a.log.Warn("loading preferences failed", logx.Err(err))
	}
	return p
}

func (a *App) savePrefs(ctx context.Context, mutate func(p *storage.Prefs)) {
	if a.store == nil {
		return
	}
	p := a.loadPrefs(ctx)
	mutate(&p)
	if err := a.store.SavePrefs(ctx, p); err != nil {
		a.log.Warn("saving preferences failed", logx.Err(err))
	}
}

func (a *App) selection(ctx context.Context, f RunFlags) bot.Selection {
	return resolveSelection(f, a.loadPrefs(ctx), a.Config().Bot)
}

// rememberSelection saves the run's options. Forced ids are one-off: they
// are not saved, since later runs would look them up unforced.
func (a *App) rememberSelection(ctx context.Context, mode string, sel bot.Selection) {
	a.savePrefs(ctx, func(p *storage.Prefs) {
		p.Mode, p.Count, p.Max = mode, sel.Count, sel.Max
		if !sel.Force {
			p.ListingIDs = sel.IDs
		}
	})
}

// Run performs one run in the given mode and returns when it is done.
func (a *App) Run(ctx context.Context, mode string, f RunFlags) (bot.Result, error) {
	a.start(ctx)
	defer a.Stop(context.WithoutCancel(ctx), StopRunDone)

	sel := a.selection(ctx, f)
	a.rememberSelection(ctx, mode, sel)
	opts := bot.RunOptions{Selection: sel, DryRun: f.DryRun}

	var (
		res bot.Result
		err error
	)
	switch mode {
	case bot.ModeNow:
		res, err = a.bot.RunNow(ctx, opts)
	case bot.ModeScheduled:
		res, err = a.bot.RunScheduled(ctx, opts)
	default:
		return bot.Result{}, errors.New("unknown run mode: " + mode)
	}
	a.reportRunError(ctx, mode+" run", err)
	return res, err
}

// RunTest checks (and with apply, submits) a single listing.
func (a *App) RunTest(ctx context.Context, listingID string, apply bool) (bot.Result, error) {
	a.start(ctx)
	defer a.Stop(context.WithoutCancel(ctx), StopRunDone)

	a.savePrefs(ctx, func(p *storage.Prefs) {
		p.Mode, p.TestID, p.TestApply = bot.ModeTest, listingID, apply
	})
	res, err := a.bot.RunTest(ctx, listingID, apply)
	a.reportRunError(ctx, "test run", err)
	return res, err
}

// Prefs returns the saved preferences (zero when storage is off).
func (a *App) Prefs(ctx context.Context) storage.Prefs { return a.loadPrefs(ctx) }
