package woonnet

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestParsePrice(t *testing.T) {
	t.Parallel()
	cases := []struct {
		in   string
		want float64
	}{
		{"€ 1.234,56", 1234.56},
		{"€ 812,50 p/m", 812.50},
		{"950", 950},
		{" € 700,- ", 700},
	}
	for _, tc := range cases {
		got, err := ParsePrice(tc.in)
		if err != nil || got != tc.want {
			t.Fatalf("ParsePrice(%q)=%v,%v want %v", tc.in, got, err, tc.want)
		}
	}
	if _, err := ParsePrice("op aanvraag"); err == nil {
		t.Fatalf("expected error for text without digits")
	}
}

func TestListingIDFromURL(t *testing.T) {
	t.Parallel()
	cases := map[string]string{
		"https://www.woonnetrijnmond.nl/details/12345": "12345",
		"/reageren/987":                                "987",
		"https://x/details/42/":                        "42",
		"https://x/details/42?from=search":             "42",
		"https://x/details/straat-1":                   "",
		"":                                             "",
	}
	for in, want := range cases {
		if got := ListingIDFromURL(in); got != want {
			t.Fatalf("ListingIDFromURL(%q)=%q want %q", in, got, want)
		}
	}
}

func TestSortByPrice(t *testing.T) {
	t.Parallel()
	ls := []Listing{
		{ID: "30", Price: 900},
		{ID: "100", Price: 700},
		{ID: "9", Price: 700},
		{ID: "1", Price: 1200},
	}
	SortByPrice(ls)
	var ids []string
	for _, l := range ls {
		ids = append(ids, l.ID)
	}
	if got := strings.Join(ids, ","); got != "9,100,30,1" {
		t.Fatalf("order=%s", got)
	}
}

func newTestClient(t *testing.T, h http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := New(Options{BaseURL: srv.URL, RequestsPerSec: 100, PageSize: 2})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return c
}

func TestDiscoverDecodesBothEnvelopeShapes(t *testing.T) {
	t.Parallel()
	page := map[string]any{
		"AantalResultaten": 2,
		"Resultaten": []map[string]any{
			{"Id": 111, "Adres": "Coolsingel 1", "Plaats": "Rotterdam", "Huur": "€ 950,00"},
			{"Id": "222", "Adres": "Blaak 2", "Plaats": "Rotterdam", "Huur": 812.5, "Voorrang": true},
		},
	}
	inner, _ := json.Marshal(page)

	shapes := map[string]any{
		"object": map[string]any{"d": page},
		"string": map[string]any{"d": string(inner)},
	}
	for name, body := range shapes {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPost || r.URL.Path != DiscoverAPI {
					t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
				}
				var req discoverRequest
				b, _ := io.ReadAll(r.Body)
				if err := json.Unmarshal(b, &req); err != nil || req.Page != 1 || req.PageSize != 2 {
					t.Errorf("bad request body %s", b)
				}
				w.Header().Set("Content-Type", "application/json; charset=utf-8")
				_ = json.NewEncoder(w).Encode(body)
			}))
			ls, total, err := c.Discover(context.Background(), 1)
			if err != nil {
				t.Fatalf("discover: %v", err)
			}
			if total != 2 || len(ls) != 2 {
				t.Fatalf("total=%d len=%d", total, len(ls))
			}
			if ls[0].ID != "111" || ls[0].Price != 950 || ls[0].Address != "Coolsingel 1" {
				t.Fatalf("first listing %+v", ls[0])
			}
			if ls[1].ID != "222" || ls[1].Price != 812.5 || !ls[1].Priority {
				t.Fatalf("second listing %+v", ls[1])
			}
			if !strings.HasSuffix(ls[1].URL, "/reageren/222") {
				t.Fatalf("url %q", ls[1].URL)
			}
		})
	}
}

func TestListingsSkipsUnpricedRecords(t *testing.T) {
	t.Parallel()
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"d":{"AantalResultaten":2,"Resultaten":[{"Id":1,"Huur":"€ 650,00"},{"Id":2}]}}`)
	}))
	ls, err := c.Listings(context.Background(), false)
	if err != nil {
		t.Fatalf("listings: %v", err)
	}
	if len(ls) != 1 || ls[0].ID != "1" || ls[0].Price != 650 {
		t.Fatalf("listings %+v, want only the priced one", ls)
	}
}

func TestDiscoverUnauthorized(t *testing.T) {
	t.Parallel()
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == DiscoverAPI {
			http.Redirect(w, r, LoginPath, http.StatusFound)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		_, _ = io.WriteString(w, "<html>login</html>")
	}))
	_, _, err := c.Discover(context.Background(), 1)
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("err=%v, want ErrUnauthorized", err)
	}
}

func TestSetCookiesSentToAPI(t *testing.T) {
	t.Parallel()
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ck, err := r.Cookie("ASP.NET_SessionId"); err != nil || ck.Value != "abc" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = io.WriteString(w, `{"d":{"Aanbod":{"Adres":"Blaak 2","Huur":"€ 700,00"}}}`)
	}))
	if _, err := c.Details(context.Background(), "5"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("without cookie: err=%v", err)
	}
	c.SetCookies([]*http.Cookie{{Name: "ASP.NET_SessionId", Value: "abc", Path: "/"}})
	l, err := c.Details(context.Background(), "5")
	if err != nil {
		t.Fatalf("details: %v", err)
	}
	if l.ID != "5" || l.Price != 700 {
		t.Fatalf("listing %+v", l)
	}
}

const discoveryHTML = `<html><body>
<h1>Nieuw aanbod</h1>
<div class="box--obj box--prio">
  <a href="/details/300">Bekijk</a><div class="box__title">Witte de  Withstraat 3</div>
  <span class="box__price">€ 1.050,00</span>
</div>
<div class="box--obj box--prio">
  <a href="/details/200">Bekijk</a><span class="box__price">€ 780,25</span>
</div>
<div class="box--obj box--prio">
  <a href="/details/oops">Bekijk</a><span class="box__price">€ 500,00</span>
</div>
<div class="box--obj">
  <a href="/details/999">Geen voorrang</a><span class="box__price">€ 400,00</span>
</div>
</body></html>`

func TestListingsFallsBackToHTML(t *testing.T) {
	t.Parallel()
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case DiscoverAPI:
			w.WriteHeader(http.StatusInternalServerError)
		case DiscoveryPath:
			w.Header().Set("Content-Type", "text/html")
			_, _ = io.WriteString(w, discoveryHTML)
		default:
			http.NotFound(w, r)
		}
	}))
	if _, err := c.Listings(context.Background(), false); err == nil {
		t.Fatalf("expected api error without fallback")
	}
	ls, err := c.Listings(context.Background(), true)
	if err != nil {
		t.Fatalf("listings: %v", err)
	}
	if len(ls) != 2 || ls[0].ID != "200" || ls[1].ID != "300" {
		t.Fatalf("listings %+v", ls)
	}
	if ls[1].Address != "Witte de Withstraat 3" || ls[1].Price != 1050 {
		t.Fatalf("parsed card %+v", ls[1])
	}
}

func TestDiscoverHTMLNotPublished(t *testing.T) {
	t.Parallel()
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `<html><h1>Nog even geduld...</h1></html>`)
	}))
	if _, err := c.DiscoverHTML(context.Background()); !errors.Is(err, ErrNotPublished) {
		t.Fatalf("err=%v, want ErrNotPublished", err)
	}
}
