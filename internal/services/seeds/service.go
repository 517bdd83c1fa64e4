package seeds

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/ternarybob/arbor"
	"gopkg.in/yaml.v3"

	"github.com/ternarybob/paritas/internal/interfaces"
	"github.com/ternarybob/paritas/internal/models"
)

// seedFile is one YAML declaration file: a jobs list, or a single job
// at the top level
type seedFile struct {
	Jobs []seedJob `yaml:"jobs"`
}

type seedJob struct {
	Name         string        `yaml:"name"`
	Description  string        `yaml:"description"`
	BaselineURL  string        `yaml:"baselineUrl"`
	CandidateURL string        `yaml:"candidateUrl"`
	Schedule     string        `yaml:"schedule"`
	CrawlConfig  *seedCrawl    `yaml:"crawlConfig"`
	TestMatrix   *seedMatrix   `yaml:"testMatrix"`
	PageMap      []seedMapping `yaml:"pageMap"`
}

type seedCrawl struct {
	Depth           int      `yaml:"depth"`
	MaxPages        int      `yaml:"maxPages"`
	IncludePatterns []string `yaml:"includePatterns"`
	ExcludePatterns []string `yaml:"excludePatterns"`
	FollowExternal  bool     `yaml:"followExternal"`
}

type seedMatrix struct {
	Visual     bool `yaml:"visual"`
	Functional bool `yaml:"functional"`
	Data       bool `yaml:"data"`
	SEO        bool `yaml:"seo"`
}

type seedMapping struct {
	BaselinePath  string `yaml:"baselinePath"`
	CandidatePath string `yaml:"candidatePath"`
	Notes         string `yaml:"notes"`
}

// Service loads declarative comparison jobs from a directory of YAML
// files at startup. Loading is idempotent by job name: a name that
// already exists in the snapshot is left alone, so seed files can ship
// alongside a data directory without duplicating jobs on every boot.
type Service struct {
	jobs   interfaces.JobService
	logger arbor.ILogger
}

var _ interfaces.SeedService = (*Service)(nil)

// NewService creates the seed loader
func NewService(jobs interfaces.JobService, logger arbor.ILogger) *Service {
	return &Service{jobs: jobs, logger: logger}
}

// LoadFromDir reads every *.yaml / *.yml file in dir and creates the
// jobs it declares. Unparseable files and invalid jobs are logged and
// skipped; one bad file must not block the rest. Returns the number of
// jobs created.
func (s *Service) LoadFromDir(ctx context.Context, dir string) (int, error) {
	if dir == "" {
		return 0, nil
	}

	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		s.logger.Warn().Str("dir", dir).Msg("Seed jobs directory does not exist")
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	existing, err := s.existingNames(ctx)
	if err != nil {
		return 0, err
	}

	created := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		declared, err := loadSeedFile(path)
		if err != nil {
			s.logger.Warn().Err(err).Str("file", entry.Name()).Msg("Skipping unparseable seed file")
			continue
		}

		for _, seed := range declared {
			if seed.Name == "" {
				s.logger.Warn().Str("file", entry.Name()).Msg("Skipping seed job without a name")
				continue
			}
			if existing[seed.Name] {
				s.logger.Debug().Str("name", seed.Name).Msg("Seed job already exists, skipping")
				continue
			}

			job, err := s.jobs.CreateJob(ctx, seed.toJob())
			if err != nil {
				s.logger.Warn().Err(err).Str("file", entry.Name()).Str("name", seed.Name).Msg("Skipping invalid seed job")
				continue
			}

			existing[seed.Name] = true
			created++
			s.logger.Info().Str("job_id", job.ID).Str("name", job.Name).Str("file", entry.Name()).Msg("Seed job created")
		}
	}

	if created > 0 {
		s.logger.Info().Int("created", created).Str("dir", dir).Msg("Seed jobs loaded")
	}
	return created, nil
}

func (s *Service) existingNames(ctx context.Context) (map[string]bool, error) {
	jobs, err := s.jobs.ListJobs(ctx)
	if err != nil {
		return nil, err
	}
	names := make(map[string]bool, len(jobs))
	for _, job := range jobs {
		names[job.Name] = true
	}
	return names, nil
}

// loadSeedFile parses a declaration file. A file either lists jobs
// under a "jobs" key or declares a single job at the top level.
func loadSeedFile(path string) ([]seedJob, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var file seedFile
	if err := yaml.Unmarshal(data, &file); err == nil && len(file.Jobs) > 0 {
		return file.Jobs, nil
	}

	var single seedJob
	if err := yaml.Unmarshal(data, &single); err != nil {
		return nil, err
	}
	if single.Name == "" && single.BaselineURL == "" {
		return nil, nil
	}
	return []seedJob{single}, nil
}

func (j *seedJob) toJob() *models.ComparisonJob {
	job := &models.ComparisonJob{
		Name:         j.Name,
		Description:  j.Description,
		BaselineURL:  j.BaselineURL,
		CandidateURL: j.CandidateURL,
		Schedule:     j.Schedule,
	}
	if j.CrawlConfig != nil {
		job.CrawlConfig = models.CrawlConfig{
			Depth:           j.CrawlConfig.Depth,
			MaxPages:        j.CrawlConfig.MaxPages,
			IncludePatterns: j.CrawlConfig.IncludePatterns,
			ExcludePatterns: j.CrawlConfig.ExcludePatterns,
			FollowExternal:  j.CrawlConfig.FollowExternal,
		}
	}
	if j.TestMatrix != nil {
		job.TestMatrix = models.TestMatrix{
			Visual:     j.TestMatrix.Visual,
			Functional: j.TestMatrix.Functional,
			Data:       j.TestMatrix.Data,
			SEO:        j.TestMatrix.SEO,
		}
	}
	for _, m := range j.PageMap {
		job.PageMap = append(job.PageMap, models.PageMapEntry{
			BaselinePath:  m.BaselinePath,
			CandidatePath: m.CandidatePath,
			Notes:         m.Notes,
		})
	}
	return job
}
