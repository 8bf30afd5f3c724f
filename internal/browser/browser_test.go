package browser

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/go-rod/rod/lib/proto"

	logx "woonbot/pkg/logx"
)

func TestToHTTPCookies(t *testing.T) {
	t.Parallel()
	exp := time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC)
	in := []*proto.NetworkCookie{
		{Name: "ASP.NET_SessionId", Value: "s1", Domain: ".woonnetrijnmond.nl", Path: "/", HTTPOnly: true, Secure: true},
		{Name: "auth", Value: "a1", Domain: "www.woonnetrijnmond.nl", Path: "/", Expires: proto.TimeSinceEpoch(exp.Unix())},
	}
	out := toHTTPCookies(in)
	if len(out) != 2 {
		t.Fatalf("len=%d", len(out))
	}
	if out[0].Domain != "woonnetrijnmond.nl" || !out[0].HttpOnly || !out[0].Secure {
		t.Fatalf("first cookie %+v", out[0])
	}
	if !out[0].Expires.IsZero() {
		t.Fatalf("session cookie got expiry %v", out[0].Expires)
	}
	if !out[1].Expires.Equal(exp) {
		t.Fatalf("expires=%v want %v", out[1].Expires, exp)
	}
}

func TestOperationsRequireStart(t *testing.T) {
	t.Parallel()
	b := New(Options{BaseURL: "https://example.invalid/"})
	ctx := context.Background()
	if err := b.Login(ctx, "u", "p"); !errors.Is(err, ErrNotStarted) {
		t.Fatalf("login err=%v", err)
	}
	if _, err := b.Prepare(ctx, "1"); !errors.Is(err, ErrNotStarted) {
		t.Fatalf("prepare err=%v", err)
	}
	if _, err := b.Cookies(ctx); !errors.Is(err, ErrNotStarted) {
		t.Fatalf("cookies err=%v", err)
	}
	if err := b.Close(); err != nil {
		t.Fatalf("close on unstarted browser: %v", err)
	}
	if b.opts.BaseURL != "https://example.invalid" {
		t.Fatalf("base url not trimmed: %q", b.opts.BaseURL)
	}
}

// stepClock advances its time by every duration it is asked to wait.
type stepClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *stepClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	c.sleeps = append(c.sleeps, d)
	ch := make(chan time.Time, 1)
	ch <- c.now
	return ch
}

func TestWaitOpen(t *testing.T) {
	t.Parallel()
	start := time.Date(2026, 3, 2, 20, 0, 0, 0, time.UTC)
	cases := []struct {
		name        string
		deadline    time.Time
		blockedFor  int // banner checks that still show the banner
		wantErr     error
		wantReloads int
		wantSleeps  int
	}{
		{"open at once", start.Add(time.Second), 0, nil, 0, 0},
		{"stale banner reloads without waiting", start.Add(time.Second), 1, nil, 1, 0},
		{"later reloads are spaced", start.Add(30 * time.Second), 3, nil, 3, 2},
		{"gives up at deadline", start.Add(time.Second), 100, ErrApplyNotOpen, 3, 2},
		{"no deadline means one check", time.Time{}, 1, ErrApplyNotOpen, 0, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			clock := &stepClock{now: start}
			checks, reloads := 0, 0
			blocked := func(context.Context) (bool, error) {
				checks++
				return checks <= tc.blockedFor, nil
			}
			reload := func(context.Context) error {
				reloads++
				return nil
			}
			err := waitOpen(context.Background(), clock, tc.deadline, blocked, reload, logx.Nop())
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("err=%v want %v", err, tc.wantErr)
			}
			if reloads != tc.wantReloads || len(clock.sleeps) != tc.wantSleeps {
				t.Fatalf("reloads=%d sleeps=%v", reloads, clock.sleeps)
			}
			for _, d := range clock.sleeps {
				if d != reloadInterval {
					t.Fatalf("sleep %v, want %v", d, reloadInterval)
				}
			}
		})
	}
}

func TestCloseKeepsExternalChrome(t *testing.T) {
	t.Parallel()
	if New(Options{ControlURL: "ws://127.0.0.1:9222"}).ownsChrome() {
		t.Fatalf("browser reached through control url must not be shut down")
	}
	if !New(Options{}).ownsChrome() {
		t.Fatalf("launched browser should be shut down on close")
	}
}
