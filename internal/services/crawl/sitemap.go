package crawl

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

const (
	sitemapMaxBytes   = 5 << 20
	sitemapMaxDepth   = 3
	sitemapMaxEntries = 500
)

// Only the <loc> elements matter in either document shape.
type sitemapURLSet struct {
	XMLName xml.Name     `xml:"urlset"`
	Entries []sitemapLoc `xml:"url"`
}

type sitemapIndex struct {
	XMLName  xml.Name     `xml:"sitemapindex"`
	Sitemaps []sitemapLoc `xml:"sitemap"`
}

type sitemapLoc struct {
	Loc string `xml:"loc"`
}

// fetchSitemapSeeds pulls /sitemap.xml from the seed's origin and
// returns the page URLs it lists, following sitemap indexes to a
// bounded depth. A missing or malformed sitemap is not an error.
func fetchSitemapSeeds(ctx context.Context, client *http.Client, seed *url.URL) []string {
	sitemapURL := fmt.Sprintf("%s://%s/sitemap.xml", seed.Scheme, seed.Host)
	seeds := make([]string, 0)
	collectSitemap(ctx, client, sitemapURL, 0, &seeds)
	return seeds
}

func collectSitemap(ctx context.Context, client *http.Client, sitemapURL string, depth int, seeds *[]string) {
	if depth > sitemapMaxDepth || len(*seeds) >= sitemapMaxEntries {
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sitemapURL, nil)
	if err != nil {
		return
	}
	resp, err := client.Do(req)
	if err != nil {
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, sitemapMaxBytes))
	if err != nil {
		return
	}

	// A sitemap index points at further sitemaps rather than pages
	var index sitemapIndex
	if err := xml.Unmarshal(body, &index); err == nil && len(index.Sitemaps) > 0 {
		for _, sm := range index.Sitemaps {
			if sm.Loc == "" {
				continue
			}
			collectSitemap(ctx, client, sm.Loc, depth+1, seeds)
			if len(*seeds) >= sitemapMaxEntries {
				return
			}
		}
		return
	}

	var urlset sitemapURLSet
	if err := xml.Unmarshal(body, &urlset); err != nil {
		return
	}
	for _, entry := range urlset.Entries {
		if entry.Loc == "" {
			continue
		}
		*seeds = append(*seeds, entry.Loc)
		if len(*seeds) >= sitemapMaxEntries {
			return
		}
	}
}
