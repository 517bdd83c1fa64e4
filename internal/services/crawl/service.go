package crawl

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/ternarybob/paritas/internal/common"
	"github.com/ternarybob/paritas/internal/interfaces"
	"github.com/ternarybob/paritas/internal/models"
)

// Service discovers pages on both sides of a comparison job and pairs
// them up for the downstream stages. Discovery is a bounded BFS with a
// headless fetch per page; a token bucket keeps the crawl polite.
type Service struct {
	driver     interfaces.BrowserDriver
	httpClient *http.Client
	rateLimit  rate.Limit
	rateBurst  int
	logger     arbor.ILogger
}

var _ interfaces.CrawlService = (*Service)(nil)

// NewService creates a crawl service
func NewService(driver interfaces.BrowserDriver, cfg common.CrawlerConfig, logger arbor.ILogger) *Service {
	limit := rate.Limit(cfg.RateLimit)
	if limit <= 0 {
		limit = rate.Limit(2)
	}
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 4
	}

	return &Service{
		driver:     driver,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		rateLimit:  limit,
		rateBurst:  burst,
		logger:     logger,
	}
}

// Discover crawls baseline and candidate and matches their pages
func (s *Service) Discover(ctx context.Context, job *models.ComparisonJob) (*models.PageMatchResult, *models.CrawlSiteResult, *models.CrawlSiteResult, error) {
	baseline, err := s.crawlSite(ctx, job.BaselineURL, job.CrawlConfig)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("baseline crawl failed: %w", err)
	}

	candidate, err := s.crawlSite(ctx, job.CandidateURL, job.CrawlConfig)
	if err != nil {
		return nil, baseline, nil, fmt.Errorf("candidate crawl failed: %w", err)
	}

	matches := MatchPages(job, baseline, candidate)

	s.logger.Info().
		Str("job_id", job.ID).
		Int("baseline_pages", len(baseline.Pages)).
		Int("candidate_pages", len(candidate.Pages)).
		Int("matches", len(matches.Matches)).
		Int("unmatched_baseline", len(matches.UnmatchedBaseline)).
		Int("unmatched_candidate", len(matches.UnmatchedCandidate)).
		Msg("Page discovery completed")

	return matches, baseline, candidate, nil
}

type frontierEntry struct {
	url   *url.URL
	depth int
}

func (s *Service) crawlSite(ctx context.Context, seedURL string, cfg models.CrawlConfig) (*models.CrawlSiteResult, error) {
	seed, err := NormalizeURL(seedURL, nil)
	if err != nil {
		return nil, common.WrapError(common.KindInvalidInput, err, "invalid seed url %q", seedURL)
	}

	browserCtx, err := s.driver.NewContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open browser context: %w", err)
	}
	defer browserCtx.Close()

	page, err := browserCtx.NewPage(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open page: %w", err)
	}
	defer page.Close()

	result := &models.CrawlSiteResult{
		Seed:  seed.String(),
		Pages: make([]models.PageDescriptor, 0),
	}

	frontier := []frontierEntry{{url: seed, depth: 0}}

	// Sitemap URLs join the frontier at depth 1 so a depth-0 crawl
	// still only touches the seed.
	for _, raw := range fetchSitemapSeeds(ctx, s.httpClient, seed) {
		u, err := NormalizeURL(raw, seed)
		if err != nil || !sameOrigin(u, seed) {
			continue
		}
		frontier = append(frontier, frontierEntry{url: u, depth: 1})
		result.SitemapSeeds++
	}

	limiter := rate.NewLimiter(s.rateLimit, s.rateBurst)
	visited := make(map[string]bool)

	for len(frontier) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if len(result.Pages) >= cfg.MaxPages {
			break
		}

		entry := frontier[0]
		frontier = frontier[1:]

		pageURL := entry.url.String()
		if visited[pageURL] {
			continue
		}
		visited[pageURL] = true

		if entry.depth > cfg.Depth {
			result.SkippedURLs = append(result.SkippedURLs, pageURL)
			continue
		}
		if !cfg.MatchesPath(entry.url.Path) {
			result.SkippedURLs = append(result.SkippedURLs, pageURL)
			continue
		}

		if err := limiter.Wait(ctx); err != nil {
			return nil, err
		}

		nav, err := page.Navigate(ctx, pageURL)
		if err != nil {
			return nil, err
		}
		if nav.Error != "" {
			result.FetchErrors = append(result.FetchErrors, fmt.Sprintf("%s: %s", pageURL, nav.Error))
			continue
		}
		if nav.Status >= 400 {
			result.SkippedURLs = append(result.SkippedURLs, fmt.Sprintf("%s (status %d)", pageURL, nav.Status))
			continue
		}

		html, err := page.HTML(ctx)
		if err != nil {
			result.FetchErrors = append(result.FetchErrors, fmt.Sprintf("%s: %v", pageURL, err))
			continue
		}

		title, meta, hrefs := parsePage(html)
		descriptor := models.PageDescriptor{
			URL:            pageURL,
			NormalizedPath: entry.url.Path,
			Title:          title,
			Status:         nav.Status,
			Depth:          entry.depth,
			DiscoveryIndex: len(result.Pages),
			Meta:           meta,
		}

		for _, href := range hrefs {
			resolved, err := NormalizeURL(href, entry.url)
			if err != nil {
				continue
			}
			if !sameOrigin(resolved, seed) && !cfg.FollowExternal {
				continue
			}
			link := resolved.String()
			descriptor.Links = append(descriptor.Links, link)
			if !visited[link] {
				frontier = append(frontier, frontierEntry{url: resolved, depth: entry.depth + 1})
			}
		}

		result.Pages = append(result.Pages, descriptor)
	}

	s.logger.Debug().
		Str("seed", result.Seed).
		Int("pages", len(result.Pages)).
		Int("skipped", len(result.SkippedURLs)).
		Int("fetch_errors", len(result.FetchErrors)).
		Msg("Site crawl completed")

	return result, nil
}

// parsePage extracts the title, the bounded metadata set, and the raw
// hrefs from a rendered page
func parsePage(html string) (string, map[string]string, []string) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", nil, nil
	}

	title := strings.TrimSpace(doc.Find("title").First().Text())

	meta := make(map[string]string)
	doc.Find("meta").Each(func(_ int, sel *goquery.Selection) {
		name, _ := sel.Attr("name")
		if name == "" {
			name, _ = sel.Attr("property")
		}
		content, _ := sel.Attr("content")
		switch strings.ToLower(name) {
		case "description", "keywords", "og:title", "og:description":
			meta[strings.ToLower(name)] = content
		}
	})
	if len(meta) == 0 {
		meta = nil
	}

	var hrefs []string
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href := strings.TrimSpace(sel.AttrOr("href", ""))
		if href == "" ||
			strings.HasPrefix(href, "#") ||
			strings.HasPrefix(href, "javascript:") ||
			strings.HasPrefix(href, "mailto:") ||
			strings.HasPrefix(href, "tel:") {
			return
		}
		hrefs = append(hrefs, href)
	})

	return title, meta, hrefs
}
