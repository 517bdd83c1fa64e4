package models

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"
)

// JobStatus represents the state of a comparison job
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusActive    JobStatus = "active"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// ComparisonJob declares what to compare: a baseline (production) site
// against a candidate (migrated) site, with crawl bounds and the set of
// diff stages to run. Jobs are mutable until deleted; deleting a job
// cascades to its runs and their artifacts.
type ComparisonJob struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	Description  string         `json:"description,omitempty"`
	BaselineURL  string         `json:"baselineUrl"`
	CandidateURL string         `json:"candidateUrl"`
	CrawlConfig  CrawlConfig    `json:"crawlConfig"`
	PageMap      []PageMapEntry `json:"pageMap,omitempty"`
	TestMatrix   TestMatrix     `json:"testMatrix"`
	Status       JobStatus      `json:"status"`
	Schedule     string         `json:"schedule,omitempty"` // optional cron expression for recurring runs
	CreatedAt    time.Time      `json:"createdAt"`
	UpdatedAt    time.Time      `json:"updatedAt"`
	MigratedFrom string         `json:"migratedFrom,omitempty"` // legacy job id this was converted from
	Version      int            `json:"version"`                // snapshot format version at creation/migration
}

// CrawlConfig bounds the discovery crawl on each site
type CrawlConfig struct {
	Depth           int      `json:"depth"`                     // maximum BFS depth; 0 = seed URL only
	MaxPages        int      `json:"maxPages"`                  // hard page cap per site
	IncludePatterns []string `json:"includePatterns,omitempty"` // allow-list over URL paths when non-empty
	ExcludePatterns []string `json:"excludePatterns,omitempty"` // always win over includes
	FollowExternal  bool     `json:"followExternal"`            // follow links leaving the seed origin
}

// PageMapEntry pins a baseline path to a candidate path, overriding
// automatic matching with a confidence-1.0 pair.
type PageMapEntry struct {
	BaselinePath  string `json:"baselinePath"`
	CandidatePath string `json:"candidatePath"`
	Notes         string `json:"notes,omitempty"`
}

// TestMatrix selects which diff stages run. The seo slot is reserved;
// no stage ships for it yet.
type TestMatrix struct {
	Visual     bool `json:"visual"`
	Functional bool `json:"functional"`
	Data       bool `json:"data"`
	SEO        bool `json:"seo"`
}

// JobUpdate carries a partial job update; nil fields are left untouched.
// ID and CreatedAt are never updatable.
type JobUpdate struct {
	Name         *string         `json:"name,omitempty"`
	Description  *string         `json:"description,omitempty"`
	BaselineURL  *string         `json:"baselineUrl,omitempty"`
	CandidateURL *string         `json:"candidateUrl,omitempty"`
	CrawlConfig  *CrawlConfig    `json:"crawlConfig,omitempty"`
	PageMap      *[]PageMapEntry `json:"pageMap,omitempty"`
	TestMatrix   *TestMatrix     `json:"testMatrix,omitempty"`
	Status       *JobStatus      `json:"status,omitempty"`
	Schedule     *string         `json:"schedule,omitempty"`
}

// DefaultCrawlConfig returns the crawl bounds applied when a job omits them
func DefaultCrawlConfig() CrawlConfig {
	return CrawlConfig{
		Depth:          1,
		MaxPages:       10,
		FollowExternal: false,
	}
}

// DefaultTestMatrix enables every diff stage
func DefaultTestMatrix() TestMatrix {
	return TestMatrix{Visual: true, Functional: true, Data: true, SEO: true}
}

// Validate checks the job against its invariants: name present, both URLs
// absolute and distinct, crawl bounds sane.
func (j *ComparisonJob) Validate() error {
	if strings.TrimSpace(j.Name) == "" {
		return errors.New("job name is required")
	}
	if err := validateAbsoluteURL(j.BaselineURL, "baselineUrl"); err != nil {
		return err
	}
	if err := validateAbsoluteURL(j.CandidateURL, "candidateUrl"); err != nil {
		return err
	}
	if j.BaselineURL == j.CandidateURL {
		return errors.New("baselineUrl and candidateUrl must differ")
	}
	if j.CrawlConfig.Depth < 0 {
		return fmt.Errorf("crawlConfig.depth must be >= 0, got %d", j.CrawlConfig.Depth)
	}
	if j.CrawlConfig.MaxPages < 1 {
		return fmt.Errorf("crawlConfig.maxPages must be >= 1, got %d", j.CrawlConfig.MaxPages)
	}
	return nil
}

func validateAbsoluteURL(raw, field string) error {
	if strings.TrimSpace(raw) == "" {
		return fmt.Errorf("%s is required", field)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s is not a valid URL: %v", field, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s must be an absolute http(s) URL", field)
	}
	if u.Host == "" {
		return fmt.Errorf("%s must include a host", field)
	}
	return nil
}

// MatchesPath reports whether a URL path passes the include/exclude filters.
// Exclude patterns always take precedence; a non-empty include list is an
// allow-list. Patterns are glob-style where "*" matches any substring
// within a single path segment.
func (c *CrawlConfig) MatchesPath(path string) bool {
	for _, pattern := range c.ExcludePatterns {
		if globMatch(pattern, path) {
			return false
		}
	}
	if len(c.IncludePatterns) == 0 {
		return true
	}
	for _, pattern := range c.IncludePatterns {
		if globMatch(pattern, path) {
			return true
		}
	}
	return false
}

func globMatch(pattern, path string) bool {
	parts := strings.Split(pattern, "*")
	for i, part := range parts {
		parts[i] = regexp.QuoteMeta(part)
	}
	re, err := regexp.Compile("^" + strings.Join(parts, "[^/]*") + "$")
	if err != nil {
		return false
	}
	return re.MatchString(path)
}
