package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"woonbot/internal/browser"
	"woonbot/internal/timing"
	"woonbot/internal/woonnet"
	logx "woonbot/pkg/logx"
)

// RunNow logs in, discovers listings and applies to the targets at once.
func (b *Bot) RunNow(ctx context.Context, opts RunOptions) (Result, error) {
	return b.exclusive(ctx, ModeNow, func(ctx context.Context, r *run) (Result, error) {
		res := Result{DryRun: opts.DryRun}
		if err := r.login(ctx); err != nil {
			return res, err
		}
		r.status("fetching listings")
		ls, err := r.discover(ctx)
		if err != nil {
			return res, err
		}
		targets := r.selectTargets(ctx, ls, opts.Selection)
		if len(targets) == 0 {
			return res, ErrNoTargets
		}
		r.status("applying to %s", describe(targets))
		res.Attempted = len(targets)
		tabs := r.prepare(ctx, targets, &res)
		r.submit(ctx, tabs, browser.SubmitOptions{DryRun: opts.DryRun}, &res)
		return res, nil
	})
}

// RunScheduled waits for today's window, polls until targets appear,
// prepares their pages ahead of the apply moment and submits them all at
// that moment.
func (b *Bot) RunScheduled(ctx context.Context, opts RunOptions) (Result, error) {
	return b.exclusive(ctx, ModeScheduled, func(ctx context.Context, r *run) (Result, error) {
		res := Result{DryRun: opts.DryRun}
		w, t := b.schedule()
		applyAt := w.ApplyOn(b.clock.Now())
		if w.Phase(b.clock.Now()) == timing.PhaseClosed {
			return res, fmt.Errorf("%w: apply moment %s already passed", ErrWindowClosed, w.ApplyAt)
		}

		if err := r.login(ctx); err != nil {
			return res, err
		}

		for {
			now := b.clock.Now()
			if w.Phase(now) != timing.PhaseBefore {
				break
			}
			start := w.StartOn(now)
			r.status("waiting for window (opens %s, in %s)", w.Start, timing.Countdown(now, start))
			if err := b.sleep(ctx, min(t.IdleCheck, start.Sub(now))); err != nil {
				return res, err
			}
		}

		var targets []woonnet.Listing
		for {
			now := b.clock.Now()
			if w.Phase(now) == timing.PhaseClosed {
				return res, ErrWindowClosed
			}
			r.status("checking listings (%s until %s)", timing.Countdown(now, applyAt), w.ApplyAt)
			ls, err := r.discover(ctx)
			switch {
			case err == nil:
				targets = r.selectTargets(ctx, ls, opts.Selection)
			case errors.Is(err, woonnet.ErrNotPublished):
				r.log.Info("listings not published yet")
			case ctx.Err() != nil:
				return res, ctx.Err()
			default:
				r.log.Warn("listing check failed", logx.Err(err))
			}
			if len(targets) > 0 {
				break
			}
			if err := b.sleep(ctx, min(t.PollInterval, applyAt.Sub(b.clock.Now()))); err != nil {
				return res, err
			}
		}
		r.status("targets: %s", describe(targets))

		prepareAt := applyAt.Add(-t.PrepareLead)
		if now := b.clock.Now(); now.Before(prepareAt) {
			r.status("preparing pages at %s", prepareAt.Format("15:04:05"))
			if err := timing.WaitUntil(ctx, b.clock, prepareAt, 0); err != nil {
				return res, err
			}
		}
		res.Attempted = len(targets)
		tabs := r.prepare(ctx, targets, &res)
		if len(tabs) == 0 {
			return res, nil
		}

		r.status("waiting for %s (%s)", w.ApplyAt, timing.Countdown(b.clock.Now(), applyAt))
		if err := timing.WaitUntil(ctx, b.clock, applyAt, t.SpinLead); err != nil {
			return res, err
		}
		r.status("submitting %d applications", len(tabs))
		r.submit(ctx, tabs, browser.SubmitOptions{
			Deadline: applyAt.Add(t.SubmitRetryFor),
			DryRun:   opts.DryRun,
		}, &res)
		return res, nil
	})
}

// RunTest opens one listing and checks the apply button. It clicks only
// when apply is set.
func (b *Bot) RunTest(ctx context.Context, listingID string, apply bool) (Result, error) {
	listingID = strings.TrimSpace(listingID)
	if listingID == "" {
		return Result{}, errors.New("bot: listing id required")
	}
	return b.exclusive(ctx, ModeTest, func(ctx context.Context, r *run) (Result, error) {
		res := Result{DryRun: !apply, Attempted: 1}
		if err := r.login(ctx); err != nil {
			return res, err
		}
		l := r.details(ctx, listingID)
		r.status("testing listing %s (apply=%v)", describe([]woonnet.Listing{l}), apply)
		tabs := r.prepare(ctx, []woonnet.Listing{l}, &res)
		r.submit(ctx, tabs, browser.SubmitOptions{DryRun: !apply}, &res)
		if err := res.Failures[listingID]; err != nil {
			return res, err
		}
		return res, nil
	})
}

// details looks the listing up for display. The test goes ahead with the
// bare id when the lookup fails.
func (r *run) details(ctx context.Context, id string) woonnet.Listing {
	l, err := r.b.opts.Site.Details(ctx, id)
	if err != nil {
		r.log.Warn("listing details unavailable", logx.String("listing", id), logx.Err(err))
		return woonnet.Listing{ID: id}
	}
	l.ID = id
	return l
}

func describe(ls []woonnet.Listing) string {
	parts := make([]string, 0, len(ls))
	for _, l := range ls {
		switch {
		case l.Address != "" && l.PriceText != "":
			parts = append(parts, fmt.Sprintf("%s (%s, %s)", l.ID, l.Address, l.PriceText))
		case l.Address != "":
			parts = append(parts, fmt.Sprintf("%s (%s)", l.ID, l.Address))
		default:
			parts = append(parts, l.ID)
		}
	}
	return strings.Join(parts, ", ")
}
