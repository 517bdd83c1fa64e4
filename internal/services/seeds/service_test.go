package seeds

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/paritas/internal/common"
	"github.com/ternarybob/paritas/internal/models"
	"github.com/ternarybob/paritas/internal/queue"
	"github.com/ternarybob/paritas/internal/services/events"
	"github.com/ternarybob/paritas/internal/services/jobs"
	"github.com/ternarybob/paritas/internal/storage/artifacts"
	"github.com/ternarybob/paritas/internal/storage/badger"
	"github.com/ternarybob/paritas/internal/storage/snapshot"
)

func newSeedEnv(t *testing.T) (*Service, *jobs.Service) {
	t.Helper()
	logger := common.GetLogger()

	store, err := snapshot.NewStore(logger, t.TempDir())
	require.NoError(t, err)

	db, err := badger.NewBadgerDB(logger, filepath.Join(t.TempDir(), "paritas.db"), false)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	eventService := events.NewService(badger.NewEventStorage(db, logger), logger)
	require.NoError(t, eventService.Start())
	t.Cleanup(func() { eventService.Stop() })

	runQueue, err := queue.NewRunQueue(db.DB(), logger, time.Minute, 3)
	require.NoError(t, err)

	jobService := jobs.NewService(store, artifacts.NewRegistry(logger, store), eventService, runQueue, logger)
	return NewService(jobService, logger), jobService
}

func writeSeed(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
}

func TestLoadFromDir_CreatesJobs(t *testing.T) {
	svc, jobService := newSeedEnv(t)
	dir := t.TempDir()

	writeSeed(t, dir, "sites.yaml", `
jobs:
  - name: Storefront cutover
    description: Main storefront migration
    baselineUrl: https://www.example.com
    candidateUrl: https://beta.example.com
    schedule: "0 6 * * *"
    crawlConfig:
      depth: 2
      maxPages: 50
      excludePatterns:
        - /admin/*
    testMatrix:
      visual: true
      functional: true
      data: false
    pageMap:
      - baselinePath: /old-checkout
        candidatePath: /checkout
        notes: renamed during replatform
  - name: Docs migration
    baselineUrl: https://docs.example.com
    candidateUrl: https://docs-next.example.com
`)
	writeSeed(t, dir, "single.yml", `
name: Blog migration
baselineUrl: https://blog.example.com
candidateUrl: https://blog-next.example.com
`)

	created, err := svc.LoadFromDir(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, 3, created)

	all, err := jobService.ListJobs(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 3)

	byName := make(map[string]*models.ComparisonJob)
	for _, job := range all {
		byName[job.Name] = job
	}

	storefront := byName["Storefront cutover"]
	require.NotNil(t, storefront)
	assert.Equal(t, "https://www.example.com", storefront.BaselineURL)
	assert.Equal(t, 2, storefront.CrawlConfig.Depth)
	assert.Equal(t, 50, storefront.CrawlConfig.MaxPages)
	assert.Equal(t, []string{"/admin/*"}, storefront.CrawlConfig.ExcludePatterns)
	assert.Equal(t, "0 6 * * *", storefront.Schedule)
	assert.True(t, storefront.TestMatrix.Visual)
	assert.False(t, storefront.TestMatrix.Data)
	require.Len(t, storefront.PageMap, 1)
	assert.Equal(t, "/checkout", storefront.PageMap[0].CandidatePath)

	// Omitted crawl config and matrix get the creation defaults
	docs := byName["Docs migration"]
	require.NotNil(t, docs)
	assert.Equal(t, models.DefaultCrawlConfig(), docs.CrawlConfig)
	assert.Equal(t, models.DefaultTestMatrix(), docs.TestMatrix)
}

func TestLoadFromDir_IdempotentByName(t *testing.T) {
	svc, jobService := newSeedEnv(t)
	ctx := context.Background()
	dir := t.TempDir()

	// One name already exists in the snapshot
	_, err := jobService.CreateJob(ctx, &models.ComparisonJob{
		Name:         "Docs migration",
		BaselineURL:  "https://docs.example.com",
		CandidateURL: "https://docs-next.example.com",
	})
	require.NoError(t, err)

	writeSeed(t, dir, "a.yaml", `
jobs:
  - name: Docs migration
    baselineUrl: https://other.example.com
    candidateUrl: https://other-next.example.com
  - name: Blog migration
    baselineUrl: https://blog.example.com
    candidateUrl: https://blog-next.example.com
`)
	// A second file declaring the same new name is skipped too
	writeSeed(t, dir, "b.yaml", `
name: Blog migration
baselineUrl: https://dup.example.com
candidateUrl: https://dup-next.example.com
`)

	created, err := svc.LoadFromDir(ctx, dir)
	require.NoError(t, err)
	assert.Equal(t, 1, created)

	all, err := jobService.ListJobs(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	// The existing job was not overwritten
	for _, job := range all {
		if job.Name == "Docs migration" {
			assert.Equal(t, "https://docs.example.com", job.BaselineURL)
		}
		if job.Name == "Blog migration" {
			assert.Equal(t, "https://blog.example.com", job.BaselineURL)
		}
	}

	// Reloading the same directory creates nothing
	created, err = svc.LoadFromDir(ctx, dir)
	require.NoError(t, err)
	assert.Zero(t, created)
}

func TestLoadFromDir_SkipsBadFilesAndJobs(t *testing.T) {
	svc, jobService := newSeedEnv(t)
	dir := t.TempDir()

	writeSeed(t, dir, "broken.yaml", "jobs: [ not yaml")
	writeSeed(t, dir, "invalid-job.yaml", `
name: Same sides
baselineUrl: https://same.example.com
candidateUrl: https://same.example.com
`)
	writeSeed(t, dir, "nameless.yaml", `
baselineUrl: https://a.example.com
candidateUrl: https://b.example.com
`)
	writeSeed(t, dir, "good.yaml", `
name: Survivor
baselineUrl: https://a.example.com
candidateUrl: https://b.example.com
`)

	created, err := svc.LoadFromDir(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, 1, created)

	all, err := jobService.ListJobs(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 1)
}

func TestLoadFromDir_IgnoresNonYAML(t *testing.T) {
	svc, _ := newSeedEnv(t)
	dir := t.TempDir()

	writeSeed(t, dir, "readme.txt", "not a seed")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "nested"), 0755))

	created, err := svc.LoadFromDir(context.Background(), dir)
	require.NoError(t, err)
	assert.Zero(t, created)
}

func TestLoadFromDir_MissingOrUnsetDir(t *testing.T) {
	svc, _ := newSeedEnv(t)
	ctx := context.Background()

	created, err := svc.LoadFromDir(ctx, "")
	require.NoError(t, err)
	assert.Zero(t, created)

	created, err = svc.LoadFromDir(ctx, filepath.Join(t.TempDir(), "nope"))
	require.NoError(t, err)
	assert.Zero(t, created)
}
