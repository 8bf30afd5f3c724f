package bot

import (
	"context"

	"woonbot/internal/browser"
)

// BrowserSession adapts *browser.Browser to Session.
func BrowserSession(b *browser.Browser) Session { return browserSession{b} }

type browserSession struct{ *browser.Browser }

func (s browserSession) Prepare(ctx context.Context, id string) (Submitter, error) {
	t, err := s.Browser.Prepare(ctx, id)
	if err != nil {
		return nil, err
	}
	return t, nil
}
