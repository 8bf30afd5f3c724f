package report

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestReportPostsEmbed(t *testing.T) {
	t.Parallel()
	got := make(chan payload, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content-type %q", ct)
		}
		var p payload
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			t.Errorf("decode: %v", err)
		}
		got <- p
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	r := New(Options{
		ProxyURL: srv.URL,
		Version:  "1.2.3",
		LogTail:  func(n int) (string, error) { return strings.Repeat("x", 1500), nil },
	})
	r.Report(context.Background(), errors.New("browser crashed"), "during scheduled run", strings.Repeat("s", 2000))

	p := <-got
	if len(p.Embeds) != 1 {
		t.Fatalf("embeds=%d", len(p.Embeds))
	}
	e := p.Embeds[0]
	if e.Title != "🔴 WoonnetBot Critical Error (v1.2.3)" || e.Color != 15158332 {
		t.Fatalf("embed header %+v", e)
	}
	if len(e.Fields) != 4 {
		t.Fatalf("fields=%d", len(e.Fields))
	}
	if e.Fields[1].Value != "`browser crashed`" {
		t.Fatalf("message field %q", e.Fields[1].Value)
	}
	if n := strings.Count(e.Fields[2].Value, "s"); n != 950 {
		t.Fatalf("stack tail has %d chars, want 950", n)
	}
	if n := strings.Count(e.Fields[3].Value, "x"); n != 1000 {
		t.Fatalf("log tail has %d chars, want 1000", n)
	}
}

func TestReportDisabledWithoutURL(t *testing.T) {
	t.Parallel()
	r := New(Options{})
	if r.Enabled() {
		t.Fatalf("reporter without url should be disabled")
	}
	r.Report(context.Background(), errors.New("x"), "here", "")
}

func TestTailKeepsRunes(t *testing.T) {
	t.Parallel()
	s := "ab€"
	if got := tail(s, 2); got != "" {
		t.Fatalf("tail split a rune: %q", got)
	}
	if got := tail(s, 3); got != "€" {
		t.Fatalf("tail=%q", got)
	}
}

func TestReportWithoutStackOmitsTraceback(t *testing.T) {
	t.Parallel()
	r := New(Options{ProxyURL: "http://127.0.0.1:1", Version: "1"})
	p := r.build(errors.New("login failed"), "during run", "")
	for _, f := range p.Embeds[0].Fields {
		if f.Name == "Traceback" {
			t.Fatalf("unexpected traceback field %q", f.Value)
		}
	}
	if len(p.Embeds[0].Fields) != 2 {
		t.Fatalf("fields=%d, want error type and message only", len(p.Embeds[0].Fields))
	}
}
