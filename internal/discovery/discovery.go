// Package discovery implements the discovery run engine: bounded
// multi-channel candidate search, deterministic deduplication, dry-run
// previews, and one-way materialization into company records.
package discovery

import (
	"encoding/json"
	"time"

	"github.com/sells-group/prospect-cli/internal/intent"
)

// Status is the lifecycle state of a discovery run.
type Status string

// Run statuses. Pending and running are the only non-terminal states.
const (
	StatusPending             Status = "pending"
	StatusRunning             Status = "running"
	StatusCompleted           Status = "completed"
	StatusCompletedWithErrors Status = "completed_with_errors"
	StatusFailed              Status = "failed"
	StatusCancelled           Status = "cancelled"
)

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool {
	return s != StatusPending && s != StatusRunning
}

// SourceClass classifies how a run was initiated. Stored explicitly at
// creation time rather than derived from mode/triggered_by after the fact.
type SourceClass string

const (
	SourceManual    SourceClass = "manual"
	SourceAutomated SourceClass = "automated"
)

// Run trigger modes.
const (
	ModeManual = "manual"
	ModeDaily  = "daily"
)

// ClassifySource derives the source class once, at run creation.
func ClassifySource(mode, triggeredBy string) SourceClass {
	if mode == ModeDaily || triggeredBy == "cron" {
		return SourceAutomated
	}
	return SourceManual
}

// Candidate is an unvalidated business record discovered during a run.
// Candidates live inside the run's results JSON and are never persisted
// independently.
type Candidate struct {
	Name           string          `json:"name"`
	Website        string          `json:"website,omitempty"`
	Email          string          `json:"email,omitempty"`
	Phone          string          `json:"phone,omitempty"`
	Description    string          `json:"description,omitempty"`
	Industry       string          `json:"industry,omitempty"`
	RelevanceScore float64         `json:"relevance_score,omitempty"`
	Channel        string          `json:"channel"`
	RawMetadata    json.RawMessage `json:"raw_metadata,omitempty"`
}

// Run is a discovery run record.
type Run struct {
	ID            string      `json:"id" db:"id"`
	Mode          string      `json:"mode" db:"mode"`
	TriggeredBy   string      `json:"triggered_by" db:"triggered_by"`
	TriggeredByID *string     `json:"triggered_by_id,omitempty" db:"triggered_by_id"`
	SourceClass   SourceClass `json:"source_class" db:"source_class"`

	IntentID   string                 `json:"intent_id" db:"intent_id"`
	IntentName string                 `json:"intent_name" db:"intent_name"`
	Config     *intent.ResolvedConfig `json:"config" db:"config"`

	// DryRun is true while the run is a preview. Materialization flips
	// it to false exactly once; it never flips back.
	DryRun bool   `json:"dry_run" db:"dry_run"`
	Status Status `json:"status" db:"status"`
	Error  *string `json:"error,omitempty" db:"error"`

	// Results holds the ordered candidate sequence. Populated for dry
	// runs and retained after materialization for audit.
	Results []Candidate    `json:"results,omitempty" db:"results"`
	Stats   map[string]any `json:"stats,omitempty" db:"stats"`

	CreatedCompaniesCount int `json:"created_companies_count" db:"created_companies_count"`
	CreatedContactsCount  int `json:"created_contacts_count" db:"created_contacts_count"`
	CreatedLeadsCount     int `json:"created_leads_count" db:"created_leads_count"`
	SkippedCount          int `json:"skipped_count" db:"skipped_count"`
	ErrorCount            int `json:"error_count" db:"error_count"`

	StartedAt         time.Time  `json:"started_at" db:"started_at"`
	FinishedAt        *time.Time `json:"finished_at,omitempty" db:"finished_at"`
	CancelRequestedAt *time.Time `json:"cancel_requested_at,omitempty" db:"cancel_requested_at"`
	CancelRequestedBy *string    `json:"cancel_requested_by,omitempty" db:"cancel_requested_by"`
	ArchivedAt        *time.Time `json:"archived_at,omitempty" db:"archived_at"`
	ArchivedByID      *string    `json:"archived_by_id,omitempty" db:"archived_by_id"`
	CreatedAt         time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at" db:"updated_at"`
}

// Archived reports whether the run is currently archived.
func (r *Run) Archived() bool {
	return r.ArchivedAt != nil
}

// StartRequest describes a run-start operation.
type StartRequest struct {
	IntentID      string            `json:"intent_id"`
	Overrides     *intent.Overrides `json:"overrides,omitempty"`
	DryRun        bool              `json:"dry_run"`
	Mode          string            `json:"mode"`
	TriggeredBy   string            `json:"triggered_by"`
	TriggeredByID *string           `json:"triggered_by_id,omitempty"`
}

// MaterializeResult reports per-entity created/skipped counts plus
// row-level errors from one materialization pass.
type MaterializeResult struct {
	CompaniesCreated int      `json:"companies_created"`
	CompaniesSkipped int      `json:"companies_skipped"`
	ContactsCreated  int      `json:"contacts_created"`
	ContactsSkipped  int      `json:"contacts_skipped"`
	LeadsCreated     int      `json:"leads_created"`
	LeadsSkipped     int      `json:"leads_skipped"`
	Errors           []string `json:"errors,omitempty"`
}
