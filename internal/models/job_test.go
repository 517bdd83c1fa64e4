package models

import "testing"

func validJob() *ComparisonJob {
	return &ComparisonJob{
		Name:         "prod vs staging",
		BaselineURL:  "https://a.test",
		CandidateURL: "https://b.test",
		CrawlConfig:  DefaultCrawlConfig(),
		TestMatrix:   DefaultTestMatrix(),
	}
}

func TestComparisonJob_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*ComparisonJob)
		wantErr bool
	}{
		{"valid job", func(j *ComparisonJob) {}, false},
		{"empty name", func(j *ComparisonJob) { j.Name = "" }, true},
		{"whitespace name", func(j *ComparisonJob) { j.Name = "   " }, true},
		{"missing baseline", func(j *ComparisonJob) { j.BaselineURL = "" }, true},
		{"missing candidate", func(j *ComparisonJob) { j.CandidateURL = "" }, true},
		{"relative baseline", func(j *ComparisonJob) { j.BaselineURL = "/just/a/path" }, true},
		{"non-http scheme", func(j *ComparisonJob) { j.BaselineURL = "ftp://a.test" }, true},
		{"equal urls", func(j *ComparisonJob) { j.CandidateURL = j.BaselineURL }, true},
		{"negative depth", func(j *ComparisonJob) { j.CrawlConfig.Depth = -1 }, true},
		{"zero max pages", func(j *ComparisonJob) { j.CrawlConfig.MaxPages = 0 }, true},
		{"depth zero is fine", func(j *ComparisonJob) { j.CrawlConfig.Depth = 0 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := validJob()
			tt.mutate(job)
			err := job.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestDefaultCrawlConfig(t *testing.T) {
	config := DefaultCrawlConfig()

	if config.Depth != 1 {
		t.Errorf("Depth = %d, want 1", config.Depth)
	}
	if config.MaxPages != 10 {
		t.Errorf("MaxPages = %d, want 10", config.MaxPages)
	}
	if config.FollowExternal {
		t.Error("FollowExternal = true, want false")
	}
}

func TestDefaultTestMatrix(t *testing.T) {
	matrix := DefaultTestMatrix()

	if !matrix.Visual || !matrix.Functional || !matrix.Data || !matrix.SEO {
		t.Errorf("DefaultTestMatrix() = %+v, want all true", matrix)
	}
}

func TestCrawlConfig_MatchesPath(t *testing.T) {
	tests := []struct {
		name    string
		include []string
		exclude []string
		path    string
		want    bool
	}{
		{"no patterns allows all", nil, nil, "/anything", true},
		{"include exact", []string{"/blog"}, nil, "/blog", true},
		{"include exact misses other", []string{"/blog"}, nil, "/about", false},
		{"include star within segment", []string{"/blog/*"}, nil, "/blog/post-1", true},
		{"star does not cross segments", []string{"/blog/*"}, nil, "/blog/2024/post", false},
		{"two stars cross two segments", []string{"/blog/*/*"}, nil, "/blog/2024/post", true},
		{"exclude wins over include", []string{"/blog/*"}, []string{"/blog/draft*"}, "/blog/draft-1", false},
		{"exclude alone", nil, []string{"/admin*"}, "/administrator", false},
		{"exclude misses deeper path", nil, []string{"/admin*"}, "/admin/login", true},
		{"mid-segment star", []string{"/p*e"}, nil, "/price", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := CrawlConfig{
				IncludePatterns: tt.include,
				ExcludePatterns: tt.exclude,
			}
			if got := config.MatchesPath(tt.path); got != tt.want {
				t.Errorf("MatchesPath(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}
