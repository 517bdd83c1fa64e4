package models

// RunEvent is a single pipeline log line persisted for a run. Events are
// what GET /api/runs/:id/events serves; the heavier evidence lives in the
// artifact tree.
//
// Timestamp Format:
//   - Timestamp: "15:04:05.000" (HH:MM:SS.mmm) for display
//   - FullTimestamp: RFC3339Nano for accurate sorting
//
// Levels: "debug", "info", "warn", "error"
type RunEvent struct {
	ID            string `json:"id"`
	Timestamp     string `json:"timestamp"`
	FullTimestamp string `json:"fullTimestamp"`
	Level         string `json:"level" badgerhold:"index"`

	// RunIDField is the primary query field, stored flat for badgerhold
	// indexing. Access via RunID() for symmetry with other getters.
	RunIDField string `json:"runId" badgerhold:"index"`

	// Stage names the pipeline stage that emitted the event, empty for
	// orchestrator-level events.
	Stage   string `json:"stage,omitempty" badgerhold:"index"`
	Message string `json:"message"`

	// Sequence is a composite sort key (UnixNano + counter) giving stable
	// ordering when timestamps collide.
	Sequence string `json:"sequence" badgerhold:"index"`
}

// RunID returns the owning run's id
func (e *RunEvent) RunID() string { return e.RunIDField }
