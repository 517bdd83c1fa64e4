package models

// PageDescriptor is one discovered page on one side of the comparison.
// DiscoveryIndex preserves BFS order; matching tie-breaks on it.
type PageDescriptor struct {
	URL            string            `json:"url"`
	NormalizedPath string            `json:"normalizedPath"`
	Title          string            `json:"title"`
	Status         int               `json:"status"`
	Depth          int               `json:"depth"`
	DiscoveryIndex int               `json:"discoveryIndex"`
	Meta           map[string]string `json:"meta,omitempty"` // description, keywords, og:title, og:description
	Links          []string          `json:"links,omitempty"`
}

// CrawlSiteResult is the bounded BFS output for a single site
type CrawlSiteResult struct {
	Seed         string           `json:"seed"`
	Pages        []PageDescriptor `json:"pages"`
	SkippedURLs  []string         `json:"skippedUrls,omitempty"`  // rejected by filters, depth, or page cap
	FetchErrors  []string         `json:"fetchErrors,omitempty"`  // URLs that failed to load
	SitemapSeeds int              `json:"sitemapSeeds,omitempty"` // extra seeds contributed by sitemap.xml
}

// Match reasons, in rule-priority order
const (
	MatchReasonExplicit = "explicit" // pinned by the job's PageMap
	MatchReasonPath     = "path"     // exact normalized-path equality
	MatchReasonTitle    = "title"    // exact title equality, case-insensitive
)

// MatchedPage pairs a baseline page with the candidate page the pipeline
// will compare it against.
type MatchedPage struct {
	Baseline   PageDescriptor `json:"baseline"`
	Candidate  PageDescriptor `json:"candidate"`
	Confidence float64        `json:"confidence"`
	Reason     string         `json:"reason"`
}

// PageMatchResult holds the full matching outcome: matched pairs plus the
// leftovers on each side, which are excluded from later stages.
type PageMatchResult struct {
	Matches            []MatchedPage    `json:"matches"`
	UnmatchedBaseline  []PageDescriptor `json:"unmatchedBaseline,omitempty"`
	UnmatchedCandidate []PageDescriptor `json:"unmatchedCandidate,omitempty"`
}

// DerivedPageMap converts the matches into PageMap entries so a follow-up
// job can pin what this run discovered.
func (r *PageMatchResult) DerivedPageMap() []PageMapEntry {
	entries := make([]PageMapEntry, 0, len(r.Matches))
	for _, m := range r.Matches {
		entries = append(entries, PageMapEntry{
			BaselinePath:  m.Baseline.NormalizedPath,
			CandidatePath: m.Candidate.NormalizedPath,
			Notes:         m.Reason,
		})
	}
	return entries
}
