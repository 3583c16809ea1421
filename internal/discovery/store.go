package discovery

import (
	"context"
	"time"
)

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	// Archived filters by archival state; nil returns both.
	Archived *bool
	// SourceClass filters manual vs automated runs; empty returns both.
	SourceClass SourceClass
	// Status filters by run status; empty returns all.
	Status Status
	// Limit caps the number of returned runs (most recent first).
	Limit int
}

// Finalization carries everything the engine writes when a run reaches
// a terminal state.
type Finalization struct {
	Status  Status
	Results []Candidate
	Stats   map[string]any
	Counts  MaterializeResult
	Error   string
}

// ArchivalState is a run's id plus archival flag, used to validate
// bulk actions before applying them.
type ArchivalState struct {
	ID         string
	ArchivedAt *time.Time
}

// RunStore defines persistence for discovery runs. Both the Postgres
// and SQLite backends implement it.
type RunStore interface {
	CreateRun(ctx context.Context, run *Run) error
	GetRun(ctx context.Context, id string) (*Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]Run, error)

	// MarkRunning moves a pending run to running.
	MarkRunning(ctx context.Context, id string) error

	// FinalizeRun writes the terminal status, results, stats and counts
	// in one update and stamps finished_at.
	FinalizeRun(ctx context.Context, id string, fin Finalization) error

	// CancelRequested polls the cooperative cancellation flag.
	CancelRequested(ctx context.Context, id string) (bool, error)

	// RequestCancel stamps the cancellation request iff the run is
	// pending or running and has no prior request. Returns the number
	// of rows affected (0 or 1).
	RequestCancel(ctx context.Context, id, requestedBy string) (int64, error)

	// ClaimMaterialization flips dry_run true -> false. Returns false
	// when the run was already claimed; the compare-and-swap guarantees
	// at-most-once materialization per run.
	ClaimMaterialization(ctx context.Context, id string) (bool, error)

	// CompleteMaterialization writes the materialization counts and the
	// final status, setting finished_at only if unset.
	CompleteMaterialization(ctx context.Context, id string, res MaterializeResult, status Status) error

	// ArchivalStates returns id plus archival flag for the given ids,
	// omitting ids that do not exist.
	ArchivalStates(ctx context.Context, ids []string) ([]ArchivalState, error)

	// ArchiveRuns archives the currently-unarchived runs among ids.
	ArchiveRuns(ctx context.Context, ids []string, archivedBy *string) (int64, error)
	// UnarchiveRuns unarchives the currently-archived runs among ids.
	UnarchiveRuns(ctx context.Context, ids []string) (int64, error)
	// DeleteRuns deletes the runs. Callers must have validated that
	// every target is archived.
	DeleteRuns(ctx context.Context, ids []string) (int64, error)

	// AppendCandidateAudit records a finalized run's candidates in the
	// audit table for reporting.
	AppendCandidateAudit(ctx context.Context, runID string, cands []Candidate) (int64, error)

	Migrate(ctx context.Context) error
	Close() error
}
