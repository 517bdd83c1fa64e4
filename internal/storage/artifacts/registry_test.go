package artifacts

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
	"github.com/ternarybob/paritas/internal/storage/snapshot"
)

func newTestRegistry(t *testing.T) (*Registry, *snapshot.Store) {
	t.Helper()
	store, err := snapshot.NewStore(common.GetLogger(), t.TempDir())
	require.NoError(t, err)
	return NewRegistry(common.GetLogger(), store), store
}

func seedRun(t *testing.T, store *snapshot.Store, runID string) {
	t.Helper()
	require.NoError(t, store.Update(context.Background(), func(s *models.StorageSnapshot) error {
		s.Runs = append(s.Runs, &models.Run{ID: runID, JobID: "job_1", Status: models.RunStatusRunning, TriggeredAt: time.Now()})
		return nil
	}))
}

func TestRegistry_WriteProducesLogicalPath(t *testing.T) {
	registry, _ := newTestRegistry(t)

	logical, err := registry.Write(context.Background(), "run_1", "baseline/index/snapshot.html", []byte("<html></html>"))
	require.NoError(t, err)
	assert.Equal(t, "data/artifacts/run_1/baseline/index/snapshot.html", logical)

	physical := filepath.Join(registry.root, "run_1", "baseline", "index", "snapshot.html")
	data, err := os.ReadFile(physical)
	require.NoError(t, err)
	assert.Equal(t, "<html></html>", string(data))
}

func TestRegistry_Resolve(t *testing.T) {
	registry, _ := newTestRegistry(t)

	logical, err := registry.Write(context.Background(), "run_1", "baseline/index/desktop.png", []byte{1, 2, 3})
	require.NoError(t, err)

	physical, err := registry.Resolve(logical)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(registry.root, "run_1", "baseline", "index", "desktop.png"), physical)

	data, err := os.ReadFile(physical)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, data)

	for _, bad := range []string{"", "artifacts/run_1/x", "data/artifacts", "data/artifacts/../run_1/x"} {
		_, err := registry.Resolve(bad)
		assert.Error(t, err, "path %q should be rejected", bad)
	}
}

func TestRegistry_WriteRejectsEscapes(t *testing.T) {
	registry, _ := newTestRegistry(t)

	for _, bad := range []string{"../outside.txt", "/abs.txt", "a/../../b", ""} {
		_, err := registry.Write(context.Background(), "run_1", bad, []byte("x"))
		assert.Error(t, err, "path %q should be rejected", bad)
		assert.True(t, common.IsKind(err, common.KindInvalidInput))
	}
}

func TestRegistry_CommitRegistersArtifact(t *testing.T) {
	registry, store := newTestRegistry(t)
	ctx := context.Background()
	seedRun(t, store, "run_1")

	artifact, err := registry.Commit(ctx, "run_1", models.ArtifactTypeLog, "Crawl Log", "crawl.log", []byte("discovered 4 pages"))
	require.NoError(t, err)
	assert.Equal(t, "data/artifacts/run_1/crawl.log", artifact.Path)
	assert.Equal(t, models.ArtifactTypeLog, artifact.Type)
	assert.NotEmpty(t, artifact.ID)

	listed, err := registry.ListForRun(ctx, "run_1")
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, "Crawl Log", listed[0].Label)
}

func TestRegistry_RegisterRequiresBackingFile(t *testing.T) {
	registry, store := newTestRegistry(t)
	seedRun(t, store, "run_1")

	_, err := registry.Register(context.Background(), "run_1", models.ArtifactTypeOther, "ghost", "data/artifacts/run_1/missing.json")
	assert.Error(t, err)
}

func TestRegistry_RegisterRequiresRun(t *testing.T) {
	registry, _ := newTestRegistry(t)
	ctx := context.Background()

	logical, err := registry.Write(ctx, "run_ghost", "x.log", []byte("orphan"))
	require.NoError(t, err)

	_, err = registry.Register(ctx, "run_ghost", models.ArtifactTypeLog, "orphan", logical)
	require.Error(t, err)
	assert.True(t, common.IsKind(err, common.KindNotFound))
}

func TestRegistry_RegisterRejectsForeignRunPath(t *testing.T) {
	registry, store := newTestRegistry(t)
	ctx := context.Background()
	seedRun(t, store, "run_1")
	seedRun(t, store, "run_2")

	logical, err := registry.Write(ctx, "run_2", "report.json", []byte("{}"))
	require.NoError(t, err)

	// run_1 may not claim a file under run_2's subtree
	_, err = registry.Register(ctx, "run_1", models.ArtifactTypeReport, "stolen", logical)
	require.Error(t, err)
	assert.True(t, common.IsKind(err, common.KindInvalidInput))
}

func TestRegistry_CommitJSON(t *testing.T) {
	registry, store := newTestRegistry(t)
	ctx := context.Background()
	seedRun(t, store, "run_1")

	summary := &models.VisualSummary{PagesCompared: 3, PagesWithDiffs: 1}
	artifact, err := registry.CommitJSON(ctx, "run_1", models.ArtifactTypeOther, "Visual Summary", "visual-summary.json", summary)
	require.NoError(t, err)

	physical := filepath.Join(registry.root, "run_1", "visual-summary.json")
	data, err := os.ReadFile(physical)
	require.NoError(t, err)
	assert.Contains(t, string(data), "\"pagesCompared\": 3")
	assert.Equal(t, "data/artifacts/run_1/visual-summary.json", artifact.Path)
}

func TestRegistry_RemoveRunFiles(t *testing.T) {
	registry, store := newTestRegistry(t)
	ctx := context.Background()
	seedRun(t, store, "run_1")

	_, err := registry.Write(ctx, "run_1", "baseline/index/screenshot-desktop.png", []byte{0x89, 0x50})
	require.NoError(t, err)

	require.NoError(t, registry.RemoveRunFiles("run_1"))
	_, err = os.Stat(filepath.Join(registry.root, "run_1"))
	assert.True(t, os.IsNotExist(err))
}
