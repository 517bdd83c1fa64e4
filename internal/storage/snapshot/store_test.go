package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/paritas/internal/common"
	"github.com/ternarybob/paritas/internal/models"
)

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	dir := t.TempDir()
	store, err := NewStore(common.GetLogger(), dir)
	require.NoError(t, err)
	return store, dir
}

func TestNewStore_InitializesEmptySnapshot(t *testing.T) {
	store, dir := newTestStore(t)

	snapshot, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.SnapshotVersion, snapshot.Version)
	assert.Empty(t, snapshot.ComparisonJobs)
	assert.Empty(t, snapshot.Runs)

	// File exists on disk immediately
	_, err = os.Stat(filepath.Join(dir, "snapshot.json"))
	assert.NoError(t, err)

	// Artifact root is created alongside
	info, err := os.Stat(store.ArtifactRoot())
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestStore_SaveAndReload(t *testing.T) {
	store, dir := newTestStore(t)
	ctx := context.Background()

	snapshot, err := store.Load(ctx)
	require.NoError(t, err)
	snapshot.ComparisonJobs = append(snapshot.ComparisonJobs, &models.ComparisonJob{
		ID:           "job_1",
		Name:         "A",
		BaselineURL:  "https://a.test",
		CandidateURL: "https://b.test",
		Status:       models.JobStatusPending,
	})
	require.NoError(t, store.Save(ctx, snapshot))

	// A fresh store over the same directory sees the saved state
	reopened, err := NewStore(common.GetLogger(), dir)
	require.NoError(t, err)
	loaded, err := reopened.Load(ctx)
	require.NoError(t, err)
	require.Len(t, loaded.ComparisonJobs, 1)
	assert.Equal(t, "A", loaded.ComparisonJobs[0].Name)
}

func TestStore_LoadReturnsCopy(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Update(ctx, func(s *models.StorageSnapshot) error {
		s.ComparisonJobs = append(s.ComparisonJobs, &models.ComparisonJob{ID: "job_1", Name: "original"})
		return nil
	}))

	first, err := store.Load(ctx)
	require.NoError(t, err)
	first.ComparisonJobs[0].Name = "mutated"

	second, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "original", second.ComparisonJobs[0].Name)
}

func TestStore_UpdateAbortsOnError(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	boom := errors.New("boom")
	err := store.Update(ctx, func(s *models.StorageSnapshot) error {
		s.ComparisonJobs = append(s.ComparisonJobs, &models.ComparisonJob{ID: "job_x"})
		return boom
	})
	require.ErrorIs(t, err, boom)

	snapshot, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, snapshot.ComparisonJobs, "aborted update must leave no trace")
}

func TestStore_SaveLeavesNoTempFiles(t *testing.T) {
	store, dir := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, store.Update(ctx, func(s *models.StorageSnapshot) error {
			s.Runs = append(s.Runs, &models.Run{ID: common.NewRunID(), JobID: "job_1", Status: models.RunStatusQueued, TriggeredAt: time.Now()})
			return nil
		}))
	}

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		if e.Name() != "snapshot.json" && e.Name() != "artifacts" {
			t.Errorf("unexpected file left behind: %s", e.Name())
		}
	}
}

func TestStore_MigratesLegacySnapshot(t *testing.T) {
	dir := t.TempDir()
	legacy := `{
		"jobs": [
			{"id": "j1", "name": "old site", "sourceUrl": "https://a.test", "targetUrl": "https://b.test"}
		]
	}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "snapshot.json"), []byte(legacy), 0644))

	store, err := NewStore(common.GetLogger(), dir)
	require.NoError(t, err)

	snapshot, err := store.Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, models.SnapshotVersion, snapshot.Version)
	require.Len(t, snapshot.ComparisonJobs, 1)

	job := snapshot.ComparisonJobs[0]
	assert.Equal(t, "https://a.test", job.BaselineURL)
	assert.Equal(t, "https://b.test", job.CandidateURL)
	assert.Equal(t, "j1", job.MigratedFrom)
	assert.Equal(t, models.JobStatusPending, job.Status)
	assert.Equal(t, 1, job.CrawlConfig.Depth)
	assert.Equal(t, 10, job.CrawlConfig.MaxPages)
	assert.False(t, job.CrawlConfig.FollowExternal)
	assert.True(t, job.TestMatrix.Visual && job.TestMatrix.Functional && job.TestMatrix.Data && job.TestMatrix.SEO)
	require.NotNil(t, snapshot.Metadata.LastMigration)
	assert.Empty(t, snapshot.LegacyJobs)

	// Migration persisted: the on-disk file no longer carries the legacy key
	data, err := os.ReadFile(filepath.Join(dir, "snapshot.json"))
	require.NoError(t, err)
	var onDisk map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &onDisk))
	assert.NotContains(t, onDisk, "jobs")
	assert.Contains(t, onDisk, "comparisonJobs")
}

func TestStore_MigrationIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	legacy := `{"jobs": [{"id": "j1", "sourceUrl": "https://a.test", "targetUrl": "https://b.test"}]}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "snapshot.json"), []byte(legacy), 0644))

	store, err := NewStore(common.GetLogger(), dir)
	require.NoError(t, err)

	// First migration happened during open; invoking again is a no-op
	count, err := store.MigrateLegacy(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	// Reopening migrates nothing further
	reopened, err := NewStore(common.GetLogger(), dir)
	require.NoError(t, err)
	count, err = reopened.MigrateLegacy(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	snapshot, err := reopened.Load(context.Background())
	require.NoError(t, err)
	assert.Len(t, snapshot.ComparisonJobs, 1, "legacy job must not be duplicated")
}

func TestStore_CorruptSnapshotRefusesToOpen(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "snapshot.json"), []byte("{not json"), 0644))

	_, err := NewStore(common.GetLogger(), dir)
	require.Error(t, err)
	assert.True(t, common.IsKind(err, common.KindStorageCorruption))
}

func TestStore_RoundTripPreservesOrder(t *testing.T) {
	store, dir := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Update(ctx, func(s *models.StorageSnapshot) error {
		for _, id := range []string{"job_a", "job_b", "job_c"} {
			s.ComparisonJobs = append(s.ComparisonJobs, &models.ComparisonJob{ID: id})
		}
		return nil
	}))

	reopened, err := NewStore(common.GetLogger(), dir)
	require.NoError(t, err)
	snapshot, err := reopened.Load(ctx)
	require.NoError(t, err)

	require.Len(t, snapshot.ComparisonJobs, 3)
	assert.Equal(t, "job_a", snapshot.ComparisonJobs[0].ID)
	assert.Equal(t, "job_b", snapshot.ComparisonJobs[1].ID)
	assert.Equal(t, "job_c", snapshot.ComparisonJobs[2].ID)
}
