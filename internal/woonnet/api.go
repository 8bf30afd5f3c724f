package woonnet

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	logx "woonbot/pkg/logx"
)

type discoverRequest struct {
	Page     int    `json:"paginaNummer"`
	PageSize int    `json:"paginaGrootte"`
	Filter   string `json:"filterMode"`
}

type discoverResponse struct {
	Results []apiListing `json:"Resultaten"`
	Total   int          `json:"AantalResultaten"`
}

type detailsRequest struct {
	ID string `json:"Id"`
}

type detailsResponse struct {
	Listing apiListing `json:"Aanbod"`
	NextID  flexString `json:"VolgendeId"`
}

type apiListing struct {
	ID       flexString `json:"Id"`
	Street   string     `json:"Adres"`
	City     string     `json:"Plaats"`
	Rent     flexString `json:"Huur"`
	URL      string     `json:"Url"`
	Priority bool       `json:"Voorrang"`
}

func (a apiListing) listing(c *Client) (Listing, error) {
	id := strings.TrimSpace(string(a.ID))
	if id == "" {
		id = ListingIDFromURL(a.URL)
	}
	if id == "" {
		return Listing{}, errors.New("listing without id")
	}
	l := Listing{
		ID:        id,
		Address:   strings.TrimSpace(a.Street),
		City:      strings.TrimSpace(a.City),
		PriceText: strings.TrimSpace(string(a.Rent)),
		URL:       a.URL,
		Priority:  a.Priority,
	}
	if l.URL == "" {
		l.URL = c.ApplyURL(id)
	} else if strings.HasPrefix(l.URL, "/") {
		l.URL = c.URL(l.URL)
	}
	if l.PriceText != "" {
		p, err := ParsePrice(l.PriceText)
		if err != nil {
			return Listing{}, fmt.Errorf("listing %s: price %q: %w", id, l.PriceText, err)
		}
		l.Price = p
	}
	return l, nil
}

// flexString accepts a JSON string or number.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	// Amounts come as 812.5; render them the way the site prints them.
	if strings.Contains(n.String(), ".") {
		v, err := n.Float64()
		if err != nil {
			return err
		}
		*f = flexString(strings.Replace(strconv.FormatFloat(v, 'f', 2, 64), ".", ",", 1))
		return nil
	}
	*f = flexString(n.String())
	return nil
}

// Discover returns one page (1-based) of listings from the API. Records
// that cannot be parsed or carry no price are logged and skipped.
func (c *Client) Discover(ctx context.Context, page int) ([]Listing, int, error) {
	if page < 1 {
		page = 1
	}
	var resp discoverResponse
	err := c.postASMX(ctx, DiscoverAPI, discoverRequest{Page: page, PageSize: c.pageSize, Filter: "Alle"}, &resp)
	if err != nil {
		return nil, 0, err
	}
	out := make([]Listing, 0, len(resp.Results))
	for _, a := range resp.Results {
		l, err := a.listing(c)
		if err != nil {
			c.log.Warn("skipping listing", logx.Err(err))
			continue
		}
		// Without a price the listing cannot be ranked.
		if l.Price <= 0 {
			c.log.Warn("skipping listing without price", logx.String("listing", l.ID))
			continue
		}
		out = append(out, l)
	}
	return out, resp.Total, nil
}

// DiscoverAll pages through the API until every listing was fetched.
func (c *Client) DiscoverAll(ctx context.Context) ([]Listing, error) {
	var all []Listing
	for page := 1; ; page++ {
		ls, total, err := c.Discover(ctx, page)
		if err != nil {
			return nil, err
		}
		all = append(all, ls...)
		if len(ls) == 0 || len(ls) < c.pageSize || (total > 0 && len(all) >= total) {
			return all, nil
		}
	}
}

// Details fetches a single listing by id.
func (c *Client) Details(ctx context.Context, id string) (Listing, error) {
	var resp detailsResponse
	if err := c.postASMX(ctx, DetailsAPI, detailsRequest{ID: id}, &resp); err != nil {
		return Listing{}, err
	}
	if resp.Listing.ID == "" {
		resp.Listing.ID = flexString(id)
	}
	return resp.Listing.listing(c)
}

// Listings discovers through the API and, when allowed, falls back to
// the public page on any error other than cancellation. The result is
// sorted cheapest first.
func (c *Client) Listings(ctx context.Context, htmlFallback bool) ([]Listing, error) {
	ls, err := c.DiscoverAll(ctx)
	if err != nil {
		if !htmlFallback || ctx.Err() != nil {
			return nil, err
		}
		c.log.Warn("api discovery failed; using listing page", logx.Err(err))
		ls, err = c.DiscoverHTML(ctx)
		if err != nil {
			return nil, err
		}
	}
	SortByPrice(ls)
	return ls, nil
}
