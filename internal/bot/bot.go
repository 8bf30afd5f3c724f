package bot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"woonbot/internal/browser"
	"woonbot/internal/eventbus"
	"woonbot/internal/storage"
	"woonbot/internal/timing"
	"woonbot/internal/woonnet"
	logx "woonbot/pkg/logx"
)

type Options struct {
	Site Site
	// NewSession returns a fresh browser for each run.
	NewSession   func() Session
	Credentials  CredentialSource
	Store        storage.Store // optional
	Bus          eventbus.Bus  // optional
	Clock        timing.Clock
	Window       timing.Window
	Timing       Timing
	HTMLFallback bool
	Log          logx.Logger
}

type Bot struct {
	opts  Options
	log   logx.Logger
	clock timing.Clock

	mu      sync.Mutex
	running bool
	status  Status
}

func New(opts Options) *Bot {
	if opts.Clock == nil {
		opts.Clock = timing.RealClock{}
	}
	opts.Timing = opts.Timing.withDefaults()
	log := opts.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Bot{opts: opts, log: log.With(logx.String("comp", "bot")), clock: opts.Clock}
}

// Status returns a copy of the current state.
func (b *Bot) Status() Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	st := b.status
	st.Running = b.running
	st.NextApply = b.opts.Window.NextApply(b.clock.Now())
	return st
}

func (b *Bot) Window() timing.Window {
	w, _ := b.schedule()
	return w
}

// SetSchedule replaces the window and intervals. A run in progress keeps
// the values it started with.
func (b *Bot) SetSchedule(w timing.Window, t Timing) {
	b.mu.Lock()
	b.opts.Window = w
	b.opts.Timing = t.withDefaults()
	b.mu.Unlock()
}

func (b *Bot) schedule() (timing.Window, Timing) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.opts.Window, b.opts.Timing
}

// run is the state of one session.
type run struct {
	b    *Bot
	id   string
	mode string
	log  logx.Logger
	sess Session
}

func (r *run) status(format string, args ...any) {
	text := fmt.Sprintf(format, args...)
	r.log.Info(text)
	r.b.mu.Lock()
	r.b.status.Text = text
	r.b.mu.Unlock()
	r.b.publish(EventStatus, StatusEvent{RunID: r.id, Mode: r.mode, Text: text})
}

func (b *Bot) publish(typ string, data any) {
	if b.opts.Bus == nil {
		return
	}
	b.opts.Bus.Publish(eventbus.Event{Type: typ, Time: b.clock.Now(), Data: data})
}

// exclusive runs fn as the only active run, then records and publishes
// its result. The browser session, if opened, is always closed.
func (b *Bot) exclusive(ctx context.Context, mode string, fn func(ctx context.Context, r *run) (Result, error)) (Result, error) {
	b.mu.Lock()
	if b.running {
		b.mu.Unlock()
		return Result{}, ErrBusy
	}
	b.running = true
	id := uuid.NewString()
	b.status.RunID = id
	b.status.Mode = mode
	b.status.LastError = ""
	b.mu.Unlock()

	r := &run{b: b, id: id, mode: mode, log: b.log.With(logx.String("run", id[:8]), logx.String("mode", mode))}
	started := b.clock.Now()
	res, err := fn(ctx, r)
	if r.sess != nil {
		if cerr := r.sess.Close(); cerr != nil {
			r.log.Debug("browser close failed", logx.Err(cerr))
		}
	}
	res.RunID, res.Mode, res.Started, res.Finished = id, mode, started, b.clock.Now()
	if res.Failures == nil {
		res.Failures = map[string]error{}
	}

	if st := b.opts.Store; st != nil {
		rec := storage.Run{
			ID: id, Mode: mode, StartedAt: started, FinishedAt: res.Finished,
			Attempted: res.Attempted, Succeeded: res.Succeeded,
		}
		if err != nil {
			rec.Error = err.Error()
		}
		if serr := st.AppendRun(context.WithoutCancel(ctx), rec); serr != nil {
			r.log.Warn("storing run failed", logx.Err(serr))
		}
	}

	b.mu.Lock()
	b.running = false
	b.status.LastResult = &res
	if err != nil {
		b.status.LastError = err.Error()
	}
	b.mu.Unlock()

	if err != nil {
		r.status("run ended: %v", err)
	} else {
		r.status("run finished: %s", res.Summary())
	}
	b.publish(EventDone, res)
	return res, err
}

// login starts a browser, signs in and hands its cookies to the site
// client.
func (r *run) login(ctx context.Context) error {
	creds, err := r.b.opts.Credentials.Get(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNoCreds, err)
	}
	if !creds.Complete() {
		return ErrNoCreds
	}
	r.sess = r.b.opts.NewSession()
	r.status("starting browser")
	if err := r.sess.Start(ctx); err != nil {
		return fmt.Errorf("start browser: %w", err)
	}
	r.status("logging in as %s", creds.Username)
	if err := r.sess.Login(ctx, creds.Username, creds.Password); err != nil {
		return err
	}
	return r.syncCookies(ctx)
}

func (r *run) syncCookies(ctx context.Context) error {
	cookies, err := r.sess.Cookies(ctx)
	if err != nil {
		return fmt.Errorf("read session cookies: %w", err)
	}
	r.b.opts.Site.SetCookies(cookies)
	return nil
}

// discover fetches listings once. An expired API session is refreshed
// from the browser and retried.
func (r *run) discover(ctx context.Context) ([]woonnet.Listing, error) {
	ls, err := r.b.opts.Site.Listings(ctx, r.b.opts.HTMLFallback)
	if errors.Is(err, woonnet.ErrUnauthorized) && r.sess != nil {
		r.log.Warn("api session rejected; refreshing cookies")
		if cerr := r.syncCookies(ctx); cerr != nil {
			return nil, cerr
		}
		ls, err = r.b.opts.Site.Listings(ctx, r.b.opts.HTMLFallback)
	}
	if err != nil {
		return nil, err
	}
	r.b.mu.Lock()
	r.b.status.LastListings = ls
	r.b.mu.Unlock()
	r.b.publish(EventListings, ls)
	return ls, nil
}

func (r *run) selectTargets(ctx context.Context, ls []woonnet.Listing, sel Selection) []woonnet.Listing {
	skip := map[string]bool{}
	if st := r.b.opts.Store; st != nil && !sel.Reapply {
		for _, l := range ls {
			ok, err := st.HasApplied(ctx, l.ID)
			if err != nil {
				r.log.Warn("application history lookup failed", logx.String("listing", l.ID), logx.Err(err))
				continue
			}
			if ok {
				skip[l.ID] = true
			}
		}
		for _, id := range sel.IDs {
			ok, err := st.HasApplied(ctx, id)
			if err != nil {
				r.log.Warn("application history lookup failed", logx.String("listing", id), logx.Err(err))
				continue
			}
			if ok {
				skip[id] = true
			}
		}
	}
	targets := SelectTargets(ls, sel, skip)
	if len(skip) > 0 {
		r.log.Info("skipping listings applied to before", logx.Int("count", len(skip)))
	}
	r.b.publish(EventTargets, targets)
	return targets
}

type prepared struct {
	listing woonnet.Listing
	tab     Submitter
}

// prepare opens a tab per target. Targets that fail to open are recorded
// in res and dropped.
func (r *run) prepare(ctx context.Context, targets []woonnet.Listing, res *Result) []prepared {
	out := make([]prepared, 0, len(targets))
	for _, l := range targets {
		tab, err := r.sess.Prepare(ctx, l.ID)
		if err != nil {
			r.fail(ctx, l, res, false, err)
			continue
		}
		out = append(out, prepared{listing: l, tab: tab})
	}
	r.status("prepared %d of %d application pages", len(out), len(targets))
	return out
}

// submit clicks every prepared tab concurrently. Per-target errors are
// collected in res, never returned.
func (r *run) submit(ctx context.Context, tabs []prepared, opts browser.SubmitOptions, res *Result) {
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for _, p := range tabs {
		g.Go(func() error {
			err := p.tab.Submit(gctx, opts)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				r.fail(ctx, p.listing, res, opts.DryRun, err)
				return nil
			}
			res.Succeeded++
			r.record(ctx, p.listing, opts.DryRun, nil)
			r.b.publish(EventApplied, ApplyEvent{RunID: r.id, Listing: p.listing, DryRun: opts.DryRun})
			return nil
		})
	}
	_ = g.Wait()
}

func (r *run) fail(ctx context.Context, l woonnet.Listing, res *Result, dry bool, err error) {
	if res.Failures == nil {
		res.Failures = map[string]error{}
	}
	res.Failures[l.ID] = err
	r.log.Warn("application failed", logx.String("listing", l.ID), logx.Err(err))
	r.record(ctx, l, dry, err)
	r.b.publish(EventApplyFailed, ApplyEvent{RunID: r.id, Listing: l, DryRun: dry, Err: err})
}

func (r *run) record(ctx context.Context, l woonnet.Listing, dry bool, err error) {
	st := r.b.opts.Store
	if st == nil {
		return
	}
	a := storage.Application{
		RunID: r.id, ListingID: l.ID, Address: l.Address, Price: l.Price,
		At: r.b.clock.Now(), OK: err == nil, DryRun: dry,
	}
	if err != nil {
		a.Error = err.Error()
	}
	if serr := st.RecordApplication(context.WithoutCancel(ctx), a); serr != nil {
		r.log.Warn("storing application failed", logx.Err(serr))
	}
}

// sleep waits d on the bot clock or until ctx is done.
func (b *Bot) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-b.clock.After(d):
		return nil
	}
}
