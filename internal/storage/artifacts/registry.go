package artifacts

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/paritas/internal/common"
	"github.com/ternarybob/paritas/internal/interfaces"
	"github.com/ternarybob/paritas/internal/models"
)

// logicalPrefix is the stable prefix every registered artifact path
// carries, independent of where DATA_DIR points on this machine.
const logicalPrefix = "data/artifacts"

// Registry writes evidence files under the artifact root and records
// them in the snapshot. File writes and registry rows are decoupled on
// purpose: a crash between the two leaves an orphan file (cleaned by a
// later sweep) but never a registry row without a backing file.
type Registry struct {
	store  interfaces.SnapshotStore
	root   string
	logger arbor.ILogger
}

// NewRegistry creates an artifact registry over the snapshot store
func NewRegistry(logger arbor.ILogger, store interfaces.SnapshotStore) *Registry {
	return &Registry{
		store:  store,
		root:   store.ArtifactRoot(),
		logger: logger,
	}
}

// Write stores data at data/artifacts/{runId}/{relPath} and returns the
// logical artifact path
func (r *Registry) Write(ctx context.Context, runID, relPath string, data []byte) (string, error) {
	physical, logical, err := r.resolve(runID, relPath)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(physical), 0755); err != nil {
		return "", fmt.Errorf("failed to create artifact directory: %w", err)
	}
	if err := os.WriteFile(physical, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write artifact file: %w", err)
	}
	return logical, nil
}

// WriteJSON marshals v with indentation and stores it like Write
func (r *Registry) WriteJSON(ctx context.Context, runID, relPath string, v interface{}) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal artifact JSON: %w", err)
	}
	return r.Write(ctx, runID, relPath, data)
}

// Register appends a RunArtifact row for an already-written file. The
// file must exist and lie inside the run's subtree, and the run must be
// present in the snapshot.
func (r *Registry) Register(ctx context.Context, runID string, artifactType models.ArtifactType, label, logicalPath string) (*models.RunArtifact, error) {
	wantPrefix := path.Join(logicalPrefix, runID) + "/"
	if !strings.HasPrefix(logicalPath, wantPrefix) {
		return nil, common.NewError(common.KindInvalidInput, "artifact path %q is outside %s", logicalPath, wantPrefix)
	}

	physical := filepath.Join(r.root, filepath.FromSlash(strings.TrimPrefix(logicalPath, logicalPrefix+"/")))
	if _, err := os.Stat(physical); err != nil {
		return nil, fmt.Errorf("artifact file missing at %s: %w", physical, err)
	}

	artifact := &models.RunArtifact{
		ID:        common.NewArtifactID(),
		RunID:     runID,
		Type:      artifactType,
		Label:     label,
		Path:      logicalPath,
		CreatedAt: time.Now().UTC(),
	}

	err := r.store.Update(ctx, func(snapshot *models.StorageSnapshot) error {
		if snapshot.FindRun(runID) == nil {
			return common.NewError(common.KindNotFound, "run %s not found", runID)
		}
		snapshot.Artifacts = append(snapshot.Artifacts, artifact)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return artifact, nil
}

// Commit writes the file and registers it in one call
func (r *Registry) Commit(ctx context.Context, runID string, artifactType models.ArtifactType, label, relPath string, data []byte) (*models.RunArtifact, error) {
	logical, err := r.Write(ctx, runID, relPath, data)
	if err != nil {
		return nil, err
	}
	return r.Register(ctx, runID, artifactType, label, logical)
}

// CommitJSON marshals v, writes it, and registers it
func (r *Registry) CommitJSON(ctx context.Context, runID string, artifactType models.ArtifactType, label, relPath string, v interface{}) (*models.RunArtifact, error) {
	logical, err := r.WriteJSON(ctx, runID, relPath, v)
	if err != nil {
		return nil, err
	}
	return r.Register(ctx, runID, artifactType, label, logical)
}

// Resolve maps a logical artifact path back to the absolute file path
// under the artifact root. Later stages use it to read evidence
// written by earlier ones.
func (r *Registry) Resolve(logicalPath string) (string, error) {
	cleaned := path.Clean(logicalPath)
	if !strings.HasPrefix(cleaned, logicalPrefix+"/") {
		return "", common.NewError(common.KindInvalidInput, "artifact path %q is outside %s", logicalPath, logicalPrefix)
	}
	rel := strings.TrimPrefix(cleaned, logicalPrefix+"/")
	if rel == "" || strings.HasPrefix(rel, "../") {
		return "", common.NewError(common.KindInvalidInput, "invalid artifact path %q", logicalPath)
	}
	return filepath.Join(r.root, filepath.FromSlash(rel)), nil
}

// ListForRun returns the registered artifacts for a run in registration order
func (r *Registry) ListForRun(ctx context.Context, runID string) ([]*models.RunArtifact, error) {
	snapshot, err := r.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	return snapshot.ArtifactsForRun(runID), nil
}

// RemoveRunFiles deletes a run's artifact directory. Best-effort: the
// caller removes the registry rows in the same snapshot update that
// drops the run.
func (r *Registry) RemoveRunFiles(runID string) error {
	if runID == "" {
		return nil
	}
	dir := filepath.Join(r.root, runID)
	if err := os.RemoveAll(dir); err != nil {
		r.logger.Warn().Err(err).Str("run_id", runID).Msg("Failed to remove artifact directory")
		return err
	}
	return nil
}

// resolve maps (runID, relPath) to the physical file location and the
// logical registry path, rejecting escapes from the run's subtree.
func (r *Registry) resolve(runID, relPath string) (string, string, error) {
	if runID == "" {
		return "", "", common.NewError(common.KindInvalidInput, "artifact runID is required")
	}
	cleaned := path.Clean(strings.ReplaceAll(relPath, "\\", "/"))
	if cleaned == "." || cleaned == "" || strings.HasPrefix(cleaned, "/") || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", "", common.NewError(common.KindInvalidInput, "invalid artifact path %q", relPath)
	}
	physical := filepath.Join(r.root, runID, filepath.FromSlash(cleaned))
	logical := path.Join(logicalPrefix, runID, cleaned)
	return physical, logical, nil
}

var _ interfaces.ArtifactRegistry = (*Registry)(nil)
