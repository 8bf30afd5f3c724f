package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"woonbot/internal/timing"
	logx "woonbot/pkg/logx"
)

// Tab is an application page that was opened ahead of the apply moment.
type Tab struct {
	ListingID string
	URL       string

	page *rod.Page
	b    *Browser
}

type SubmitOptions struct {
	// Deadline bounds reloading while the site still says applications
	// are not open. Zero means a single attempt.
	Deadline time.Time
	// DryRun finds the apply button without clicking it.
	DryRun bool
}

// Submit applies to the listing. While the "can't apply yet" banner is
// shown the page is reloaded until opts.Deadline.
func (t *Tab) Submit(ctx context.Context, opts SubmitOptions) error {
	log := t.b.log.With(logx.String("listing", t.ListingID))
	blocked := func(ctx context.Context) (bool, error) {
		has, _, err := t.page.Context(ctx).Has(selCantApply)
		if err != nil {
			return false, fmt.Errorf("check banner: %w", err)
		}
		return has, nil
	}
	reload := func(ctx context.Context) error {
		if err := t.page.Context(ctx).Timeout(t.b.opts.NavigationTimeout).Reload(); err != nil {
			return fmt.Errorf("reload: %w", err)
		}
		_ = t.page.Context(ctx).Timeout(t.b.opts.NavigationTimeout).WaitLoad()
		return nil
	}
	if err := waitOpen(ctx, t.b.opts.Clock, opts.Deadline, blocked, reload, log); err != nil {
		return err
	}

	btn, err := t.page.Context(ctx).Timeout(t.b.opts.ElementTimeout).ElementX(xpathApplyBtn)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return ErrNoApplyButton
	}
	if opts.DryRun {
		log.Info("apply button found (dry run, not clicked)")
		return nil
	}
	if err := btn.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("click apply: %w", err)
	}
	// Give the form post a moment to land before the tab is closed.
	_ = t.page.Context(ctx).Timeout(3 * time.Second).WaitLoad()
	log.Info("application submitted")
	return nil
}

// waitOpen returns once blocked reports false. A tab loaded before the
// apply moment shows a stale banner, so the first reload happens at once;
// later reloads are spaced by reloadInterval. Past the deadline (or with
// none) it gives up with ErrApplyNotOpen.
func waitOpen(ctx context.Context, clock timing.Clock, deadline time.Time,
	blocked func(context.Context) (bool, error), reload func(context.Context) error, log logx.Logger,
) error {
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if attempt > 0 {
			if attempt > 1 {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-clock.After(reloadInterval):
				}
			}
			if err := reload(ctx); err != nil {
				return err
			}
		}
		b, err := blocked(ctx)
		if err != nil {
			return err
		}
		if !b {
			return nil
		}
		if deadline.IsZero() || !clock.Now().Before(deadline) {
			return ErrApplyNotOpen
		}
		log.Debug("applications not open yet; reloading", logx.Int("attempt", attempt+1))
	}
}

func (t *Tab) Close() error {
	t.b.mu.Lock()
	for i, other := range t.b.tabs {
		if other == t {
			t.b.tabs = append(t.b.tabs[:i], t.b.tabs[i+1:]...)
			break
		}
	}
	t.b.mu.Unlock()
	return t.page.Close()
}
