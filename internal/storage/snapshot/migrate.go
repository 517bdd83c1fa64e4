package snapshot

import (
	"fmt"
	"time"

	"github.com/ternarybob/paritas/internal/models"
)

// migrateLocked lifts the snapshot to the current format version and
// persists the result when anything changed. Rules are total over every
// legacy shape and non-destructive: the old shape is summarized in the
// metadata notes. Callers hold s.mu.
//
// Rule 1 (version < 2): legacy jobs carrying sourceUrl/targetUrl become
// ComparisonJobs with the same URLs as baseline/candidate, default
// CrawlConfig and TestMatrix, and a migration back-pointer. The legacy
// id is preserved so anything that referenced it still resolves.
func (s *Store) migrateLocked() (int, error) {
	snapshot := s.current
	if snapshot.Version >= models.SnapshotVersion && len(snapshot.LegacyJobs) == 0 {
		return 0, nil
	}

	now := time.Now().UTC()
	migrated := 0

	for _, legacy := range snapshot.LegacyJobs {
		if alreadyMigrated(snapshot, legacy.ID) {
			continue
		}

		name := legacy.Name
		if name == "" {
			name = fmt.Sprintf("Migrated job %s", legacy.ID)
		}
		createdAt := legacy.CreatedAt
		if createdAt.IsZero() {
			createdAt = now
		}

		snapshot.ComparisonJobs = append(snapshot.ComparisonJobs, &models.ComparisonJob{
			ID:           legacy.ID,
			Name:         name,
			BaselineURL:  legacy.SourceURL,
			CandidateURL: legacy.TargetURL,
			CrawlConfig:  models.DefaultCrawlConfig(),
			TestMatrix:   models.DefaultTestMatrix(),
			Status:       models.JobStatusPending,
			CreatedAt:    createdAt,
			UpdatedAt:    now,
			MigratedFrom: legacy.ID,
			Version:      models.SnapshotVersion,
		})
		migrated++
	}

	oldVersion := snapshot.Version
	snapshot.LegacyJobs = nil
	snapshot.Version = models.SnapshotVersion
	snapshot.Metadata.LastMigration = &now
	if migrated > 0 {
		snapshot.Metadata.Notes = append(snapshot.Metadata.Notes,
			fmt.Sprintf("%s: migrated %d legacy sourceUrl/targetUrl job(s) from version %d", now.Format(time.RFC3339), migrated, oldVersion))
	}

	if err := s.persistLocked(); err != nil {
		return 0, err
	}
	return migrated, nil
}

// alreadyMigrated reports whether a job claiming the legacy id exists,
// either directly or via a back-pointer.
func alreadyMigrated(snapshot *models.StorageSnapshot, legacyID string) bool {
	for _, job := range snapshot.ComparisonJobs {
		if job.ID == legacyID || job.MigratedFrom == legacyID {
			return true
		}
	}
	return false
}
