package models

// SeedJobFile is one YAML document in the seeds directory. Each file can
// declare several comparison jobs to register at startup.
type SeedJobFile struct {
	Jobs []SeedJob `yaml:"jobs"`
}

// SeedJob is a declarative comparison job. Missing crawl or matrix
// sections take the same defaults as API-created jobs.
type SeedJob struct {
	Name         string          `yaml:"name"`
	Description  string          `yaml:"description"`
	BaselineURL  string          `yaml:"baseline_url"`
	CandidateURL string          `yaml:"candidate_url"`
	Schedule     string          `yaml:"schedule"` // optional cron expression
	Crawl        *SeedCrawl      `yaml:"crawl"`
	Tests        *SeedTestMatrix `yaml:"tests"`
	PageMap      []SeedPagePair  `yaml:"page_map"`
}

type SeedCrawl struct {
	Depth           *int     `yaml:"depth"`
	MaxPages        *int     `yaml:"max_pages"`
	IncludePatterns []string `yaml:"include_patterns"`
	ExcludePatterns []string `yaml:"exclude_patterns"`
	FollowExternal  *bool    `yaml:"follow_external"`
}

type SeedTestMatrix struct {
	Visual     *bool `yaml:"visual"`
	Functional *bool `yaml:"functional"`
	Data       *bool `yaml:"data"`
	SEO        *bool `yaml:"seo"`
}

type SeedPagePair struct {
	BaselinePath  string `yaml:"baseline_path"`
	CandidatePath string `yaml:"candidate_path"`
	Notes         string `yaml:"notes"`
}

// ToComparisonJob converts the seed into a job, applying defaults for
// absent sections. The caller assigns id, status, and timestamps.
func (s *SeedJob) ToComparisonJob() *ComparisonJob {
	job := &ComparisonJob{
		Name:         s.Name,
		Description:  s.Description,
		BaselineURL:  s.BaselineURL,
		CandidateURL: s.CandidateURL,
		Schedule:     s.Schedule,
		CrawlConfig:  DefaultCrawlConfig(),
		TestMatrix:   DefaultTestMatrix(),
		Version:      SnapshotVersion,
	}
	if s.Crawl != nil {
		if s.Crawl.Depth != nil {
			job.CrawlConfig.Depth = *s.Crawl.Depth
		}
		if s.Crawl.MaxPages != nil {
			job.CrawlConfig.MaxPages = *s.Crawl.MaxPages
		}
		job.CrawlConfig.IncludePatterns = s.Crawl.IncludePatterns
		job.CrawlConfig.ExcludePatterns = s.Crawl.ExcludePatterns
		if s.Crawl.FollowExternal != nil {
			job.CrawlConfig.FollowExternal = *s.Crawl.FollowExternal
		}
	}
	if s.Tests != nil {
		if s.Tests.Visual != nil {
			job.TestMatrix.Visual = *s.Tests.Visual
		}
		if s.Tests.Functional != nil {
			job.TestMatrix.Functional = *s.Tests.Functional
		}
		if s.Tests.Data != nil {
			job.TestMatrix.Data = *s.Tests.Data
		}
		if s.Tests.SEO != nil {
			job.TestMatrix.SEO = *s.Tests.SEO
		}
	}
	for _, p := range s.PageMap {
		job.PageMap = append(job.PageMap, PageMapEntry{
			BaselinePath:  p.BaselinePath,
			CandidatePath: p.CandidatePath,
			Notes:         p.Notes,
		})
	}
	return job
}
