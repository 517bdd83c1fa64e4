package functional

import (
	"context"
	"net/url"
	"strings"

	"github.com/ternarybob/paritas/internal/interfaces"
	"github.com/ternarybob/paritas/internal/models"
)

const collectAnchorsJS = `(() => {
	const seen = new Set();
	const out = [];
	document.querySelectorAll('a[href]').forEach(a => {
		const raw = a.getAttribute('href') || '';
		const href = a.href;
		if (!href || seen.has(href)) return;
		seen.add(href);
		out.push({ href: href, raw: raw, text: (a.textContent || '').trim().slice(0, 80) });
	});
	return out;
})()`

type anchorInfo struct {
	Href string `json:"href"`
	Raw  string `json:"raw"`
	Text string `json:"text"`
}

// probeLinks visits every navigable anchor on the page and records the
// broken ones (status >= 400 or navigation failure). The page is
// restored after each probe. Probe traffic is drained and discarded so
// it cannot leak into the page's own evidence.
func (s *Service) probeLinks(ctx context.Context, page interfaces.PageSession, pageURL string, followExternal bool) ([]models.BrokenLink, error) {
	var anchors []anchorInfo
	if err := page.Evaluate(ctx, collectAnchorsJS, &anchors); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		s.logger.Warn().Err(err).Str("url", pageURL).Msg("Failed to collect anchors")
		return nil, nil
	}

	pageOrigin, err := url.Parse(pageURL)
	if err != nil {
		return nil, nil
	}

	var broken []models.BrokenLink
	for _, anchor := range anchors {
		if err := ctx.Err(); err != nil {
			return broken, err
		}
		if !probeTarget(anchor, pageOrigin, pageURL, followExternal) {
			continue
		}

		nav, err := page.Navigate(ctx, anchor.Href)
		if err != nil {
			return broken, err
		}
		if nav.Error != "" {
			broken = append(broken, models.BrokenLink{Href: anchor.Href, Text: anchor.Text, Error: nav.Error})
		} else if nav.Status >= 400 {
			broken = append(broken, models.BrokenLink{Href: anchor.Href, Text: anchor.Text, Status: nav.Status})
		}

		page.NetworkEvents()
		page.ConsoleMessages()
		page.JSErrors()

		if err := s.restorePage(ctx, page, pageURL); err != nil {
			return broken, err
		}
	}

	return broken, nil
}

// probeTarget decides whether an anchor is worth a navigation: fragment,
// mailto, tel, and javascript anchors never are; external origins only
// when configured.
func probeTarget(anchor anchorInfo, pageOrigin *url.URL, pageURL string, followExternal bool) bool {
	raw := strings.TrimSpace(anchor.Raw)
	if raw == "" || strings.HasPrefix(raw, "#") {
		return false
	}
	lower := strings.ToLower(raw)
	for _, scheme := range []string{"mailto:", "tel:", "javascript:"} {
		if strings.HasPrefix(lower, scheme) {
			return false
		}
	}

	target, err := url.Parse(anchor.Href)
	if err != nil {
		return false
	}
	if target.Scheme != "http" && target.Scheme != "https" {
		return false
	}
	if anchor.Href == pageURL {
		return false
	}
	if !followExternal && !strings.EqualFold(target.Host, pageOrigin.Host) {
		return false
	}
	return true
}
