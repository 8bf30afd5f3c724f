package woonnet

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"

	logx "woonbot/pkg/logx"
)

// Selectors for the public listing page.
const (
	selPageTitle = "h1"
	selPriority  = ".box--obj.box--prio"
	selLink      = "a[href*='/details/'], a[href*='/reageren/']"
	selPrice     = ".box__price, .price"
	selAddress   = ".box__title, .address"

	notPublishedMarker = "Nog even geduld"
)

// DiscoverHTML scrapes the priority listing cards from the public
// discovery page. It returns ErrNotPublished while the page still shows
// the waiting message.
func (c *Client) DiscoverHTML(ctx context.Context) ([]Listing, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL(DiscoveryPath), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/html")
	resp, err := c.do(ctx, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s: unexpected status %d", DiscoveryPath, resp.StatusCode)
	}
	return c.parseDiscoveryPage(resp.Body)
}

func (c *Client) parseDiscoveryPage(r io.Reader) ([]Listing, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse discovery page: %w", err)
	}
	if strings.Contains(doc.Find(selPageTitle).First().Text(), notPublishedMarker) {
		return nil, ErrNotPublished
	}

	var out []Listing
	doc.Find(selPriority).Each(func(i int, s *goquery.Selection) {
		href, ok := s.Find(selLink).First().Attr("href")
		if !ok {
			return
		}
		id := ListingIDFromURL(href)
		if id == "" {
			c.log.Debug("listing card without id", logx.String("href", href))
			return
		}
		priceText := strings.TrimSpace(s.Find(selPrice).First().Text())
		price, err := ParsePrice(priceText)
		if err != nil {
			c.log.Warn("could not parse listing, skipping", logx.String("id", id), logx.String("price", priceText), logx.Err(err))
			return
		}
		if strings.HasPrefix(href, "/") {
			href = c.URL(href)
		}
		out = append(out, Listing{
			ID:        id,
			Address:   strings.Join(strings.Fields(s.Find(selAddress).First().Text()), " "),
			PriceText: priceText,
			Price:     price,
			URL:       href,
			Priority:  true,
		})
	})
	return out, nil
}
