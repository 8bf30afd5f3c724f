// Package report sends crash reports to a webhook proxy that forwards
// them to Discord.
package report

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	logx "woonbot/pkg/logx"
)

const (
	embedColor = 15158332
	stackTail  = 950
	logTail    = 1000
)

type Options struct {
	ProxyURL string
	Version  string
	Timeout  time.Duration
	// LogTail returns the last n bytes of the log file. Optional.
	LogTail func(n int) (string, error)
	Log     logx.Logger
	Client  *http.Client
}

type Reporter struct {
	opts Options
	http *http.Client
	log  logx.Logger
}

func New(opts Options) *Reporter {
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	hc := opts.Client
	if hc == nil {
		hc = &http.Client{Timeout: opts.Timeout}
	}
	log := opts.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Reporter{opts: opts, http: hc, log: log}
}

func (r *Reporter) Enabled() bool {
	return r != nil && strings.TrimSpace(r.opts.ProxyURL) != ""
}

type field struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type embed struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Color       int     `json:"color"`
	Fields      []field `json:"fields"`
	Timestamp   string  `json:"timestamp,omitempty"`
}

type payload struct {
	Embeds []embed `json:"embeds"`
}

// Report posts err with the place it happened (where) and an optional
// stack trace. Failures are logged only.
func (r *Reporter) Report(ctx context.Context, err error, where, stack string) {
	if err == nil || !r.Enabled() {
		return
	}
	body, merr := json.Marshal(r.build(err, where, stack))
	if merr != nil {
		r.log.Error("crash report encode failed", logx.Err(merr))
		return
	}

	ctx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
	defer cancel()
	req, rerr := http.NewRequestWithContext(ctx, http.MethodPost, r.opts.ProxyURL, bytes.NewReader(body))
	if rerr != nil {
		r.log.Error("crash report request failed", logx.Err(rerr))
		return
	}
	req.Header.Set("Content-Type", "application/json")
	resp, derr := r.http.Do(req)
	if derr != nil {
		r.log.Error("could not send crash report", logx.Err(derr))
		return
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
	if resp.StatusCode >= 300 {
		r.log.Error("crash report rejected", logx.Int("status", resp.StatusCode))
		return
	}
	r.log.Info("crash report sent")
}

func (r *Reporter) build(err error, where, stack string) payload {
	e := embed{
		Title:       fmt.Sprintf("🔴 WoonnetBot Critical Error (v%s)", r.opts.Version),
		Description: fmt.Sprintf("An unhandled error occurred **%s**.", where),
		Color:       embedColor,
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
		Fields: []field{
			{Name: "Error Type", Value: "`" + fmt.Sprintf("%T", err) + "`", Inline: true},
			{Name: "Error Message", Value: "`" + err.Error() + "`", Inline: true},
		},
	}
	if strings.TrimSpace(stack) != "" {
		e.Fields = append(e.Fields, field{Name: "Traceback", Value: "```go\n" + tail(stack, stackTail) + "\n```"})
	}
	if r.opts.LogTail != nil {
		s, lerr := r.opts.LogTail(logTail)
		switch {
		case lerr != nil:
			e.Fields = append(e.Fields, field{Name: "Log File Error", Value: "Could not read log file: " + lerr.Error()})
		case s != "":
			e.Fields = append(e.Fields, field{
				Name:  "Log File Tail (Last 1000 chars)",
				Value: "```\n" + tail(s, logTail) + "\n```",
			})
		}
	}
	return payload{Embeds: []embed{e}}
}

// tail keeps the last n bytes of s without splitting a UTF-8 sequence.
func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	s = s[len(s)-n:]
	for i := 0; i < len(s) && i < utf8.UTFMax; i++ {
		if utf8.RuneStart(s[i]) {
			return s[i:]
		}
	}
	if len(s) < utf8.UTFMax {
		return ""
	}
	return s
}
