// Package browser drives the WoonnetRijnmond site in Chrome through the
// DevTools protocol (go-rod): logging in and clicking the apply button.
package browser

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"woonbot/internal/timing"
	logx "woonbot/pkg/logx"
)

// Page selectors.
const (
	selUsername    = "#username"
	selPassword    = "#password"
	xpathLogin     = "//a[contains(@class, 'js-submit-button') and contains(text(), 'Inloggen')]"
	logoutText     = "Uitloggen"
	selCantApply   = "div.msg.msg--red"
	xpathApplyBtn  = "//button[@name='Command' and (@value='plaats-einkomen' or @value='plaats')]"
	loginPath      = "/inloggeninschrijven/"
	applyPathFmt   = "/reageren/%s"
	reloadInterval = 500 * time.Millisecond
)

var (
	ErrLoginFailed   = errors.New("browser: login failed")
	ErrApplyNotOpen  = errors.New("browser: applications not open yet")
	ErrNoApplyButton = errors.New("browser: apply button not found")
	ErrNotStarted    = errors.New("browser: not started")
)

type Options struct {
	BaseURL           string
	Headless          bool
	Bin               string
	ControlURL        string
	ProfileDir        string
	ElementTimeout    time.Duration
	NavigationTimeout time.Duration
	// Clock times reloads against the submit deadline. Defaults to the
	// real clock.
	Clock timing.Clock
	Log   logx.Logger
}

// Browser owns one Chrome instance and the tabs opened in it.
type Browser struct {
	opts Options
	log  logx.Logger

	mu       sync.Mutex
	launch   *launcher.Launcher
	browser  *rod.Browser
	loginTab *rod.Page
	tabs     []*Tab
}

func New(opts Options) *Browser {
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	if opts.ElementTimeout <= 0 {
		opts.ElementTimeout = 10 * time.Second
	}
	if opts.NavigationTimeout <= 0 {
		opts.NavigationTimeout = 30 * time.Second
	}
	if opts.Clock == nil {
		opts.Clock = timing.RealClock{}
	}
	log := opts.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Browser{opts: opts, log: log}
}

// Start launches Chrome with the persistent profile, or connects to an
// already running one when ControlURL is set.
func (b *Browser) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.browser != nil {
		return nil
	}

	controlURL := b.opts.ControlURL
	if controlURL == "" {
		l := launcher.New().Headless(b.opts.Headless)
		if b.opts.Bin != "" {
			l = l.Bin(b.opts.Bin)
		}
		if b.opts.ProfileDir != "" {
			if err := os.MkdirAll(b.opts.ProfileDir, 0o700); err != nil {
				return fmt.Errorf("profile dir: %w", err)
			}
			l = l.UserDataDir(b.opts.ProfileDir)
		}
		u, err := l.Context(ctx).Launch()
		if err != nil {
			return fmt.Errorf("launch chrome: %w", err)
		}
		b.launch = l
		controlURL = u
	}

	rb := rod.New().ControlURL(controlURL).Context(ctx)
	if err := rb.Connect(); err != nil {
		if b.launch != nil {
			b.launch.Kill()
			b.launch = nil
		}
		return fmt.Errorf("connect to chrome: %w", err)
	}
	b.browser = rb
	b.log.Debug("browser started", logx.Bool("headless", b.opts.Headless), logx.String("profile", b.opts.ProfileDir))
	return nil
}

// ownsChrome reports whether Close should terminate the browser process.
func (b *Browser) ownsChrome() bool { return b.opts.ControlURL == "" }

func (b *Browser) started() (*rod.Browser, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.browser == nil {
		return nil, ErrNotStarted
	}
	return b.browser, nil
}

func (b *Browser) open(ctx context.Context, rb *rod.Browser, url string) (*rod.Page, error) {
	page, err := rb.Context(ctx).Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return nil, fmt.Errorf("open tab: %w", err)
	}
	if err := page.Timeout(b.opts.NavigationTimeout).Navigate(url); err != nil {
		_ = page.Close()
		return nil, fmt.Errorf("navigate %s: %w", url, err)
	}
	if err := page.Timeout(b.opts.NavigationTimeout).WaitLoad(); err != nil {
		b.log.Debug("page load wait failed", logx.String("url", url), logx.Err(err))
	}
	return page, nil
}

// Login signs in and waits for the logout link. A form that never shows
// up, or a logout link that never appears, is ErrLoginFailed.
func (b *Browser) Login(ctx context.Context, username, password string) error {
	rb, err := b.started()
	if err != nil {
		return err
	}
	page, err := b.open(ctx, rb, b.opts.BaseURL+loginPath)
	if err != nil {
		return err
	}
	b.mu.Lock()
	if b.loginTab != nil {
		_ = b.loginTab.Close()
	}
	b.loginTab = page
	b.mu.Unlock()

	p := page.Context(ctx).Timeout(b.opts.ElementTimeout)
	user, err := p.Element(selUsername)
	if err != nil {
		return fmt.Errorf("%w: username field: %v", ErrLoginFailed, err)
	}
	if err := user.Input(username); err != nil {
		return fmt.Errorf("%w: type username: %v", ErrLoginFailed, err)
	}
	pass, err := p.Element(selPassword)
	if err != nil {
		return fmt.Errorf("%w: password field: %v", ErrLoginFailed, err)
	}
	if err := pass.Input(password); err != nil {
		return fmt.Errorf("%w: type password: %v", ErrLoginFailed, err)
	}
	btn, err := p.ElementX(xpathLogin)
	if err != nil {
		return fmt.Errorf("%w: login button: %v", ErrLoginFailed, err)
	}
	if err := btn.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("%w: click login: %v", ErrLoginFailed, err)
	}
	if _, err := page.Context(ctx).Timeout(b.opts.ElementTimeout).ElementR("a", logoutText); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: check credentials or website status", ErrLoginFailed)
	}
	b.log.Info("login successful", logx.String("user", username))
	return nil
}

// Cookies exports the session cookies for the site's HTTP client.
func (b *Browser) Cookies(ctx context.Context) ([]*http.Cookie, error) {
	b.mu.Lock()
	page := b.loginTab
	b.mu.Unlock()
	if page == nil {
		return nil, ErrNotStarted
	}
	cks, err := page.Context(ctx).Cookies([]string{b.opts.BaseURL})
	if err != nil {
		return nil, fmt.Errorf("read cookies: %w", err)
	}
	return toHTTPCookies(cks), nil
}

func toHTTPCookies(in []*proto.NetworkCookie) []*http.Cookie {
	out := make([]*http.Cookie, 0, len(in))
	for _, c := range in {
		hc := &http.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Path:     c.Path,
			Domain:   strings.TrimPrefix(c.Domain, "."),
			Secure:   c.Secure,
			HttpOnly: c.HTTPOnly,
		}
		if c.Expires > 0 {
			hc.Expires = c.Expires.Time()
		}
		out = append(out, hc)
	}
	return out
}

// Prepare opens the application page of a listing in its own tab.
func (b *Browser) Prepare(ctx context.Context, listingID string) (*Tab, error) {
	rb, err := b.started()
	if err != nil {
		return nil, err
	}
	url := b.opts.BaseURL + fmt.Sprintf(applyPathFmt, listingID)
	page, err := b.open(ctx, rb, url)
	if err != nil {
		return nil, fmt.Errorf("prepare %s: %w", listingID, err)
	}
	t := &Tab{ListingID: listingID, URL: url, page: page, b: b}
	b.mu.Lock()
	b.tabs = append(b.tabs, t)
	b.mu.Unlock()
	b.log.Debug("tab prepared", logx.String("listing", listingID))
	return t, nil
}

// Close closes every tab it opened. A Chrome it launched is shut down; one
// reached through ControlURL keeps running. It is safe to call twice.
func (b *Browser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, t := range b.tabs {
		_ = t.page.Close()
	}
	b.tabs = nil
	if b.loginTab != nil {
		_ = b.loginTab.Close()
		b.loginTab = nil
	}

	var err error
	if b.browser != nil {
		if b.ownsChrome() {
			err = b.browser.Close()
		}
		b.browser = nil
	}
	if b.launch != nil {
		b.launch.Kill()
		b.launch = nil
	}
	return err
}
