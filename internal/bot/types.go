// Package bot runs application sessions: log in, discover listings, pick
// targets and submit at the apply moment. Progress is published on the
// event bus under "bot.".
package bot

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	"woonbot/internal/browser"
	"woonbot/internal/credentials"
	"woonbot/internal/woonnet"
)

// Event types.
const (
	EventStatus      = "bot.status"
	EventListings    = "bot.listings"
	EventTargets     = "bot.targets"
	EventApplied     = "bot.applied"
	EventApplyFailed = "bot.apply_failed"
	EventDone        = "bot.done"
)

// Run modes.
const (
	ModeNow       = "now"
	ModeScheduled = "scheduled"
	ModeTest      = "test"
)

var (
	ErrBusy         = errors.New("bot: a run is already in progress")
	ErrWindowClosed = errors.New("bot: window closed without targets")
	ErrNoCreds      = errors.New("bot: no credentials stored")
	ErrNoTargets    = errors.New("bot: no listings to apply to")
)

// Site is the listing API.
type Site interface {
	SetCookies(cookies []*http.Cookie)
	Listings(ctx context.Context, htmlFallback bool) ([]woonnet.Listing, error)
	Details(ctx context.Context, id string) (woonnet.Listing, error)
}

// Session is one logged-in browser.
type Session interface {
	Start(ctx context.Context) error
	Login(ctx context.Context, username, password string) error
	Cookies(ctx context.Context) ([]*http.Cookie, error)
	Prepare(ctx context.Context, listingID string) (Submitter, error)
	Close() error
}

// Submitter is a prepared application page.
type Submitter interface {
	Submit(ctx context.Context, opts browser.SubmitOptions) error
	Close() error
}

type CredentialSource interface {
	Get(ctx context.Context) (credentials.Credentials, error)
}

// Selection says which discovered listings become targets.
type Selection struct {
	// Count cheapest listings; values <= 0 mean 1.
	Count int
	// Max selects every listing.
	Max bool
	// IDs are explicit picks applied in this order.
	IDs []string
	// Force keeps explicit ids that discovery did not return.
	Force bool
	// Reapply keeps listings storage says were applied to.
	Reapply bool
}

type RunOptions struct {
	Selection Selection
	// DryRun finds the apply button but never clicks it.
	DryRun bool
}

// Result of one run.
type Result struct {
	RunID     string
	Mode      string
	Attempted int
	Succeeded int
	DryRun    bool
	Failures  map[string]error
	Started   time.Time
	Finished  time.Time
}

func (r Result) Summary() string {
	s := fmt.Sprintf("applied to %d of %d listings", r.Succeeded, r.Attempted)
	if r.DryRun {
		s += " (dry run)"
	}
	return s
}

// FailedIDs returns the failed listing ids, sorted.
func (r Result) FailedIDs() []string {
	out := make([]string, 0, len(r.Failures))
	for id := range r.Failures {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Event payloads.
type (
	StatusEvent struct {
		RunID string
		Mode  string
		Text  string
	}
	ApplyEvent struct {
		RunID   string
		Listing woonnet.Listing
		DryRun  bool
		Err     error
	}
)

// Timing holds the scheduled-run intervals.
type Timing struct {
	PollInterval   time.Duration
	IdleCheck      time.Duration
	PrepareLead    time.Duration
	SpinLead       time.Duration
	SubmitRetryFor time.Duration
}

func (t Timing) withDefaults() Timing {
	if t.PollInterval <= 0 {
		t.PollInterval = time.Minute
	}
	if t.IdleCheck <= 0 {
		t.IdleCheck = 5 * time.Minute
	}
	if t.PrepareLead < 0 {
		t.PrepareLead = 0
	}
	if t.SpinLead < 0 {
		t.SpinLead = 0
	}
	if t.SubmitRetryFor < 0 {
		t.SubmitRetryFor = 0
	}
	return t
}

// Status is a snapshot for /status and the terminal view.
type Status struct {
	Running      bool
	RunID        string
	Mode         string
	Text         string
	NextApply    time.Time
	LastListings []woonnet.Listing
	LastResult   *Result
	LastError    string
}
