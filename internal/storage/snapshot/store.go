package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/paritas/internal/common"
	"github.com/ternarybob/paritas/internal/interfaces"
	"github.com/ternarybob/paritas/internal/models"
)

const snapshotFileName = "snapshot.json"

// Store is the durable home for the StorageSnapshot: a single JSON file
// under the data directory, written atomically (temp file + rename) and
// mutated only under the store's write lock. The in-memory snapshot is
// authoritative between saves; callers only ever see deep copies.
type Store struct {
	mu           sync.Mutex
	path         string
	dataDir      string
	artifactRoot string
	current      *models.StorageSnapshot
	logger       arbor.ILogger
}

// NewStore opens (or initializes) the snapshot at {dataDir}/snapshot.json,
// running any pending migration before returning. A snapshot that cannot
// be parsed refuses to open so a corrupt file is never partially written.
func NewStore(logger arbor.ILogger, dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	artifactRoot := filepath.Join(dataDir, "artifacts")
	if err := os.MkdirAll(artifactRoot, 0755); err != nil {
		return nil, fmt.Errorf("failed to create artifact root: %w", err)
	}

	s := &Store{
		path:         filepath.Join(dataDir, snapshotFileName),
		dataDir:      dataDir,
		artifactRoot: artifactRoot,
		logger:       logger,
	}

	if err := s.open(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) open() error {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		s.logger.Info().Str("path", s.path).Msg("No snapshot found, initializing empty store")
		s.current = models.NewEmptySnapshot()
		return s.persistLocked()
	}
	if err != nil {
		return fmt.Errorf("failed to read snapshot: %w", err)
	}

	var snapshot models.StorageSnapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return common.WrapError(common.KindStorageCorruption, err, "snapshot at %s cannot be parsed", s.path)
	}
	normalize(&snapshot)
	s.current = &snapshot

	migrated, err := s.migrateLocked()
	if err != nil {
		return err
	}
	if migrated > 0 {
		s.logger.Info().Int("count", migrated).Msg("Migrated legacy jobs to current snapshot version")
	}

	s.logger.Info().
		Str("path", s.path).
		Int("jobs", len(s.current.ComparisonJobs)).
		Int("runs", len(s.current.Runs)).
		Int("artifacts", len(s.current.Artifacts)).
		Msg("Snapshot loaded")
	return nil
}

// normalize replaces nil entity slices so the on-disk form always
// round-trips with explicit arrays.
func normalize(snapshot *models.StorageSnapshot) {
	if snapshot.ComparisonJobs == nil {
		snapshot.ComparisonJobs = []*models.ComparisonJob{}
	}
	if snapshot.Runs == nil {
		snapshot.Runs = []*models.Run{}
	}
	if snapshot.Artifacts == nil {
		snapshot.Artifacts = []*models.RunArtifact{}
	}
}

// Load returns a deep copy of the current snapshot
func (s *Store) Load(ctx context.Context) (*models.StorageSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current.Clone()
}

// Save atomically replaces the snapshot on disk and in memory
func (s *Store) Save(ctx context.Context, snapshot *models.StorageSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied, err := snapshot.Clone()
	if err != nil {
		return fmt.Errorf("failed to copy snapshot for save: %w", err)
	}
	normalize(copied)

	previous := s.current
	s.current = copied
	if err := s.persistLocked(); err != nil {
		s.current = previous
		return err
	}
	return nil
}

// Update applies fn to a working copy of the snapshot under the write
// lock and persists the result. An error from fn aborts with nothing
// changed, in memory or on disk.
func (s *Store) Update(ctx context.Context, fn func(*models.StorageSnapshot) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	working, err := s.current.Clone()
	if err != nil {
		return fmt.Errorf("failed to copy snapshot for update: %w", err)
	}
	if err := fn(working); err != nil {
		return err
	}
	normalize(working)

	previous := s.current
	s.current = working
	if err := s.persistLocked(); err != nil {
		s.current = previous
		return err
	}
	return nil
}

// persistLocked writes the current snapshot to a sibling temp file,
// flushes it, and renames it over the target. Callers hold s.mu.
func (s *Store) persistLocked() error {
	data, err := json.MarshalIndent(s.current, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), snapshotFileName+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp snapshot: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write temp snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to sync temp snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp snapshot: %w", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace snapshot: %w", err)
	}
	return nil
}

// ArtifactRoot returns the directory holding per-run artifact trees
func (s *Store) ArtifactRoot() string {
	return s.artifactRoot
}

// DataDir returns the directory containing the snapshot and artifacts
func (s *Store) DataDir() string {
	return s.dataDir
}

// MigrateLegacy converts any legacy jobs still present. Idempotent.
func (s *Store) MigrateLegacy(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.migrateLocked()
}

// Close is a no-op for the file-backed store; it exists so the app can
// treat every storage backend uniformly at shutdown.
func (s *Store) Close() error {
	return nil
}

var _ interfaces.SnapshotStore = (*Store)(nil)
