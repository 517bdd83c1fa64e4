package interfaces

import (
	"context"

	"github.com/ternarybob/paritas/internal/models"
)

// SnapshotStore - durable, crash-safe home for the StorageSnapshot.
// Load migrates legacy shapes before returning; Save is atomic
// (temp file + rename); writes are serialized so snapshot transitions
// are linearizable.
type SnapshotStore interface {
	// Load returns a deep copy of the current snapshot, running and
	// persisting any pending migration first.
	Load(ctx context.Context) (*models.StorageSnapshot, error)

	// Save atomically replaces the on-disk snapshot.
	Save(ctx context.Context, snapshot *models.StorageSnapshot) error

	// Update applies fn to the live snapshot under the store's write
	// lock and persists the result. fn returning an error aborts the
	// update with nothing written.
	Update(ctx context.Context, fn func(*models.StorageSnapshot) error) error

	// ArtifactRoot returns the directory holding per-run artifact
	// trees.
	ArtifactRoot() string

	// MigrateLegacy converts any legacy jobs still present and returns
	// the number migrated. Idempotent.
	MigrateLegacy(ctx context.Context) (int, error)

	Close() error
}

// ArtifactRegistry - writes evidence files under the artifact root and
// records them in the snapshot. Registration verifies the backing file
// exists inside the run's subtree, so a crash between file write and
// registration leaves an orphan file but never a dangling registry row.
type ArtifactRegistry interface {
	// Write stores data at data/artifacts/{runId}/{relPath} and returns
	// the logical artifact path.
	Write(ctx context.Context, runID, relPath string, data []byte) (string, error)

	// WriteJSON marshals v with indentation and stores it like Write.
	WriteJSON(ctx context.Context, runID, relPath string, v interface{}) (string, error)

	// Register appends a RunArtifact for an already-written file.
	Register(ctx context.Context, runID string, artifactType models.ArtifactType, label, logicalPath string) (*models.RunArtifact, error)

	// Resolve maps a logical artifact path to its absolute file path.
	Resolve(logicalPath string) (string, error)

	// Commit writes the file and registers it in one call.
	Commit(ctx context.Context, runID string, artifactType models.ArtifactType, label, relPath string, data []byte) (*models.RunArtifact, error)

	// CommitJSON marshals v, writes it, and registers it.
	CommitJSON(ctx context.Context, runID string, artifactType models.ArtifactType, label, relPath string, v interface{}) (*models.RunArtifact, error)

	// ListForRun returns the registered artifacts for a run in
	// registration order.
	ListForRun(ctx context.Context, runID string) ([]*models.RunArtifact, error)

	// RemoveRunFiles deletes a run's artifact directory. Best-effort:
	// orphan files are tolerable, orphan registry rows are not.
	RemoveRunFiles(runID string) error
}
