// Package woonnet is the HTTP client for the WoonnetRijnmond site: the
// ASMX JSON endpoints used for discovery and the public listing page as a
// fallback.
package woonnet

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	logx "woonbot/pkg/logx"
)

const (
	LoginPath     = "/inloggeninschrijven/"
	DiscoveryPath = "/nieuw-aanbod/"
	DiscoverAPI   = "/wsWoonnetRijnmond/Woonwensen/wsWoonwensen.asmx/GetWoonwensResultatenVoorPagina"
	DetailsAPI    = "/wsWoonnetRijnmond/WoningenModule/Service.asmx/getAanbodEnVolgendeViaId"
)

var (
	// ErrUnauthorized means the session is missing or expired.
	ErrUnauthorized = errors.New("woonnet: not logged in")
	// ErrNotPublished means today's listings are not out yet ("Nog even geduld").
	ErrNotPublished = errors.New("woonnet: listings not published yet")
)

type Options struct {
	BaseURL        string
	UserAgent      string
	Timeout        time.Duration
	RequestsPerSec int
	PageSize       int
	Log            logx.Logger
	// HTTPClient overrides the default client. Its Jar, when set, is used
	// for the session cookies.
	HTTPClient *http.Client
}

type Client struct {
	base     *url.URL
	http     *http.Client
	ua       string
	pageSize int
	limiter  *rate.Limiter
	log      logx.Logger
}

func New(opts Options) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("woonnet: invalid base url %q", opts.BaseURL)
	}
	hc := opts.HTTPClient
	if hc == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}
	if hc.Jar == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, err
		}
		hc.Jar = jar
	}
	rps := opts.RequestsPerSec
	if rps <= 0 {
		rps = 2
	}
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = 100
	}
	log := opts.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Client{
		base:     base,
		http:     hc,
		ua:       opts.UserAgent,
		pageSize: pageSize,
		limiter:  rate.NewLimiter(rate.Limit(rps), rps),
		log:      log,
	}, nil
}

func (c *Client) BaseURL() string { return c.base.String() }

// URL resolves a site path against the base URL.
func (c *Client) URL(path string) string {
	return c.base.String() + "/" + strings.TrimLeft(path, "/")
}

// ApplyURL is the application page of a listing.
func (c *Client) ApplyURL(id string) string { return c.URL("/reageren/" + id) }

// SetCookies adopts the browser's session cookies.
func (c *Client) SetCookies(cookies []*http.Cookie) {
	c.http.Jar.SetCookies(c.base, cookies)
}

func (c *Client) do(ctx context.Context, req *http.Request) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	if c.ua != "" {
		req.Header.Set("User-Agent", c.ua)
	}
	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	c.log.Debug("site request",
		logx.String("method", req.Method),
		logx.String("path", req.URL.Path),
		logx.Int("status", resp.StatusCode),
		logx.Duration("took", time.Since(start)),
	)
	return resp, nil
}

// postASMX calls an ASMX JSON method and decodes its "d" payload into out.
func (c *Client) postASMX(ctx context.Context, path string, body, out any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL(path), bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Requested-With", "XMLHttpRequest")

	resp, err := c.do(ctx, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden ||
		strings.HasPrefix(resp.Request.URL.Path, LoginPath) {
		return ErrUnauthorized
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: unexpected status %d: %s", path, resp.StatusCode, snippet(raw))
	}
	if ct := resp.Header.Get("Content-Type"); strings.Contains(ct, "text/html") {
		// A login page served with 200 instead of a redirect.
		return ErrUnauthorized
	}
	return decodeD(raw, out)
}

// decodeD unwraps the ASMX envelope {"d": ...}. Depending on the method
// the payload is either an object or a JSON document encoded as a string.
func decodeD(raw []byte, out any) error {
	var env struct {
		D json.RawMessage `json:"d"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("decode envelope: %w", err)
	}
	d := bytes.TrimSpace(env.D)
	if len(d) == 0 || bytes.Equal(d, []byte("null")) {
		return fmt.Errorf("decode envelope: missing d")
	}
	if d[0] == '"' {
		var inner string
		if err := json.Unmarshal(d, &inner); err != nil {
			return fmt.Errorf("decode d string: %w", err)
		}
		d = []byte(inner)
	}
	if err := json.Unmarshal(d, out); err != nil {
		return fmt.Errorf("decode d: %w", err)
	}
	return nil
}

func snippet(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}
