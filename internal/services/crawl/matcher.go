package crawl

import (
	"strings"

	"github.com/ternarybob/paritas/internal/models"
)

// MatchPages pairs baseline pages with candidate pages. Rules apply in
// priority order and every matched page drops out of consideration for
// later rules. Within a rule the baseline side is walked in discovery
// order and the earliest-discovered candidate wins, so the result is
// deterministic for a given pair of crawls.
func MatchPages(job *models.ComparisonJob, baseline, candidate *models.CrawlSiteResult) *models.PageMatchResult {
	result := &models.PageMatchResult{Matches: make([]models.MatchedPage, 0)}

	baseUsed := make([]bool, len(baseline.Pages))
	candUsed := make([]bool, len(candidate.Pages))

	// Rule 1: pairs pinned by the job's PageMap
	for _, entry := range job.PageMap {
		bi := findByPath(baseline.Pages, baseUsed, NormalizePath(entry.BaselinePath))
		ci := findByPath(candidate.Pages, candUsed, NormalizePath(entry.CandidatePath))
		if bi < 0 || ci < 0 {
			continue
		}
		baseUsed[bi], candUsed[ci] = true, true
		result.Matches = append(result.Matches, models.MatchedPage{
			Baseline:   baseline.Pages[bi],
			Candidate:  candidate.Pages[ci],
			Confidence: 1.0,
			Reason:     models.MatchReasonExplicit,
		})
	}

	// Rule 2: exact normalized-path equality
	for bi := range baseline.Pages {
		if baseUsed[bi] {
			continue
		}
		ci := findByPath(candidate.Pages, candUsed, baseline.Pages[bi].NormalizedPath)
		if ci < 0 {
			continue
		}
		baseUsed[bi], candUsed[ci] = true, true
		result.Matches = append(result.Matches, models.MatchedPage{
			Baseline:   baseline.Pages[bi],
			Candidate:  candidate.Pages[ci],
			Confidence: 0.9,
			Reason:     models.MatchReasonPath,
		})
	}

	// Rule 3: exact title equality, case-insensitive and trimmed.
	// Pages without a title never match on this rule.
	for bi := range baseline.Pages {
		if baseUsed[bi] {
			continue
		}
		title := canonicalTitle(baseline.Pages[bi].Title)
		if title == "" {
			continue
		}
		ci := findByTitle(candidate.Pages, candUsed, title)
		if ci < 0 {
			continue
		}
		baseUsed[bi], candUsed[ci] = true, true
		result.Matches = append(result.Matches, models.MatchedPage{
			Baseline:   baseline.Pages[bi],
			Candidate:  candidate.Pages[ci],
			Confidence: 0.7,
			Reason:     models.MatchReasonTitle,
		})
	}

	for bi, page := range baseline.Pages {
		if !baseUsed[bi] {
			result.UnmatchedBaseline = append(result.UnmatchedBaseline, page)
		}
	}
	for ci, page := range candidate.Pages {
		if !candUsed[ci] {
			result.UnmatchedCandidate = append(result.UnmatchedCandidate, page)
		}
	}

	return result
}

func findByPath(pages []models.PageDescriptor, used []bool, path string) int {
	for i := range pages {
		if !used[i] && pages[i].NormalizedPath == path {
			return i
		}
	}
	return -1
}

func findByTitle(pages []models.PageDescriptor, used []bool, title string) int {
	for i := range pages {
		if !used[i] && canonicalTitle(pages[i].Title) == title {
			return i
		}
	}
	return -1
}

func canonicalTitle(title string) string {
	return strings.ToLower(strings.TrimSpace(title))
}
