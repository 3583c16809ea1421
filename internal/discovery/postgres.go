package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/prospect-cli/internal/db"
	"github.com/sells-group/prospect-cli/internal/intent"
)

// PostgresRunStore implements RunStore using pgx.
type PostgresRunStore struct {
	pool db.Pool
}

// NewPostgresRunStore creates a new PostgresRunStore.
func NewPostgresRunStore(pool db.Pool) *PostgresRunStore {
	return &PostgresRunStore{pool: pool}
}

// Migrate creates the discovery tables if they do not exist.
func (s *PostgresRunStore) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS discovery_runs (
			id UUID PRIMARY KEY,
			mode TEXT NOT NULL DEFAULT 'manual',
			triggered_by TEXT NOT NULL DEFAULT '',
			triggered_by_id TEXT,
			source_class TEXT NOT NULL DEFAULT 'manual',
			intent_id TEXT NOT NULL,
			intent_name TEXT NOT NULL DEFAULT '',
			config JSONB,
			dry_run BOOLEAN NOT NULL DEFAULT TRUE,
			status TEXT NOT NULL DEFAULT 'pending',
			error TEXT,
			results JSONB,
			stats JSONB,
			created_companies_count INT NOT NULL DEFAULT 0,
			created_contacts_count INT NOT NULL DEFAULT 0,
			created_leads_count INT NOT NULL DEFAULT 0,
			skipped_count INT NOT NULL DEFAULT 0,
			error_count INT NOT NULL DEFAULT 0,
			started_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			finished_at TIMESTAMPTZ,
			cancel_requested_at TIMESTAMPTZ,
			cancel_requested_by TEXT,
			archived_at TIMESTAMPTZ,
			archived_by_id TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS discovery_runs_started_at_idx
			ON discovery_runs (started_at DESC)`,
		`CREATE INDEX IF NOT EXISTS discovery_runs_status_idx
			ON discovery_runs (status)`,
		`CREATE TABLE IF NOT EXISTS discovery_run_candidates (
			id BIGSERIAL PRIMARY KEY,
			run_id UUID NOT NULL REFERENCES discovery_runs(id) ON DELETE CASCADE,
			position INT NOT NULL,
			name TEXT NOT NULL DEFAULT '',
			website TEXT NOT NULL DEFAULT '',
			channel TEXT NOT NULL DEFAULT '',
			relevance_score DOUBLE PRECISION NOT NULL DEFAULT 0,
			raw_metadata JSONB,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS intents (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			category TEXT NOT NULL DEFAULT '',
			definition JSONB,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return eris.Wrap(err, "discovery: migrate")
		}
	}
	return nil
}

// CreateRun inserts a new run record.
func (s *PostgresRunStore) CreateRun(ctx context.Context, run *Run) error {
	cfgJSON, err := json.Marshal(run.Config)
	if err != nil {
		return eris.Wrap(err, "discovery: marshal run config")
	}

	err = s.pool.QueryRow(ctx,
		`INSERT INTO discovery_runs
			(id, mode, triggered_by, triggered_by_id, source_class,
			 intent_id, intent_name, config, dry_run, status, started_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at, updated_at`,
		run.ID, run.Mode, run.TriggeredBy, run.TriggeredByID, run.SourceClass,
		run.IntentID, run.IntentName, cfgJSON, run.DryRun, run.Status, run.StartedAt,
	).Scan(&run.CreatedAt, &run.UpdatedAt)
	if err != nil {
		return eris.Wrap(err, "discovery: create run")
	}
	return nil
}

const runColumns = `id, mode, triggered_by, triggered_by_id, source_class,
	intent_id, intent_name, config, dry_run, status, error, results, stats,
	created_companies_count, created_contacts_count, created_leads_count,
	skipped_count, error_count,
	started_at, finished_at, cancel_requested_at, cancel_requested_by,
	archived_at, archived_by_id, created_at, updated_at`

func scanRun(row pgx.Row) (*Run, error) {
	var r Run
	var cfgJSON, resultsJSON, statsJSON []byte
	err := row.Scan(
		&r.ID, &r.Mode, &r.TriggeredBy, &r.TriggeredByID, &r.SourceClass,
		&r.IntentID, &r.IntentName, &cfgJSON, &r.DryRun, &r.Status, &r.Error,
		&resultsJSON, &statsJSON,
		&r.CreatedCompaniesCount, &r.CreatedContactsCount, &r.CreatedLeadsCount,
		&r.SkippedCount, &r.ErrorCount,
		&r.StartedAt, &r.FinishedAt, &r.CancelRequestedAt, &r.CancelRequestedBy,
		&r.ArchivedAt, &r.ArchivedByID, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(cfgJSON) > 0 {
		r.Config = &intent.ResolvedConfig{}
		if err := json.Unmarshal(cfgJSON, r.Config); err != nil {
			return nil, eris.Wrap(err, "discovery: unmarshal run config")
		}
	}
	if len(resultsJSON) > 0 {
		if err := json.Unmarshal(resultsJSON, &r.Results); err != nil {
			return nil, eris.Wrap(err, "discovery: unmarshal run results")
		}
	}
	if len(statsJSON) > 0 {
		if err := json.Unmarshal(statsJSON, &r.Stats); err != nil {
			return nil, eris.Wrap(err, "discovery: unmarshal run stats")
		}
	}
	return &r, nil
}

// GetRun fetches a single run by id.
func (s *PostgresRunStore) GetRun(ctx context.Context, id string) (*Run, error) {
	row := s.pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT %s FROM discovery_runs WHERE id = $1`, runColumns), id)
	run, err := scanRun(row)
	if eris.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrRunNotFound, "run %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "discovery: get run %s", id)
	}
	return run, nil
}

// ListRuns returns runs matching the filter, most recent first.
func (s *PostgresRunStore) ListRuns(ctx context.Context, filter RunFilter) ([]Run, error) {
	conditions := []string{"TRUE"}
	var args []any
	argIdx := 1

	if filter.Archived != nil {
		if *filter.Archived {
			conditions = append(conditions, "archived_at IS NOT NULL")
		} else {
			conditions = append(conditions, "archived_at IS NULL")
		}
	}
	if filter.SourceClass != "" {
		conditions = append(conditions, fmt.Sprintf("source_class = $%d", argIdx))
		args = append(args, filter.SourceClass)
		argIdx++
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argIdx))
		args = append(args, filter.Status)
		argIdx++
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}

	query := fmt.Sprintf(
		`SELECT %s FROM discovery_runs WHERE %s ORDER BY started_at DESC LIMIT $%d`,
		runColumns, strings.Join(conditions, " AND "), argIdx,
	)
	args = append(args, limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "discovery: list runs")
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "discovery: scan run")
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// MarkRunning moves a pending run to running.
func (s *PostgresRunStore) MarkRunning(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE discovery_runs SET status = 'running', updated_at = now()
		WHERE id = $1 AND status = 'pending'`,
		id,
	)
	if err != nil {
		return eris.Wrapf(err, "discovery: mark running %s", id)
	}
	return nil
}

// FinalizeRun writes the terminal state in one update.
func (s *PostgresRunStore) FinalizeRun(ctx context.Context, id string, fin Finalization) error {
	resultsJSON, err := json.Marshal(fin.Results)
	if err != nil {
		return eris.Wrap(err, "discovery: marshal results")
	}
	statsJSON, err := json.Marshal(fin.Stats)
	if err != nil {
		return eris.Wrap(err, "discovery: marshal stats")
	}

	var errMsg *string
	if fin.Error != "" {
		errMsg = &fin.Error
	}

	_, err = s.pool.Exec(ctx,
		`UPDATE discovery_runs SET
			status = $2,
			results = $3,
			stats = $4,
			error = $5,
			created_companies_count = $6,
			created_contacts_count = $7,
			created_leads_count = $8,
			skipped_count = $9,
			error_count = $10,
			finished_at = now(),
			updated_at = now()
		WHERE id = $1`,
		id, fin.Status, resultsJSON, statsJSON, errMsg,
		fin.Counts.CompaniesCreated, fin.Counts.ContactsCreated, fin.Counts.LeadsCreated,
		fin.Counts.CompaniesSkipped+fin.Counts.ContactsSkipped+fin.Counts.LeadsSkipped,
		len(fin.Counts.Errors),
	)
	if err != nil {
		return eris.Wrapf(err, "discovery: finalize run %s", id)
	}
	return nil
}

// CancelRequested polls the cooperative cancellation flag.
func (s *PostgresRunStore) CancelRequested(ctx context.Context, id string) (bool, error) {
	var requested bool
	err := s.pool.QueryRow(ctx,
		`SELECT cancel_requested_at IS NOT NULL FROM discovery_runs WHERE id = $1`,
		id,
	).Scan(&requested)
	if eris.Is(err, pgx.ErrNoRows) {
		return false, eris.Wrapf(ErrRunNotFound, "run %s", id)
	}
	if err != nil {
		return false, eris.Wrapf(err, "discovery: poll cancel %s", id)
	}
	return requested, nil
}

// RequestCancel stamps the cancellation request iff the run is still
// active and unrequested.
func (s *PostgresRunStore) RequestCancel(ctx context.Context, id, requestedBy string) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE discovery_runs SET
			cancel_requested_at = now(),
			cancel_requested_by = $2,
			updated_at = now()
		WHERE id = $1
			AND status IN ('pending', 'running')
			AND cancel_requested_at IS NULL`,
		id, requestedBy,
	)
	if err != nil {
		return 0, eris.Wrapf(err, "discovery: request cancel %s", id)
	}
	return tag.RowsAffected(), nil
}

// ClaimMaterialization flips dry_run true -> false exactly once.
func (s *PostgresRunStore) ClaimMaterialization(ctx context.Context, id string) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE discovery_runs SET dry_run = FALSE, updated_at = now()
		WHERE id = $1 AND dry_run = TRUE`,
		id,
	)
	if err != nil {
		return false, eris.Wrapf(err, "discovery: claim materialization %s", id)
	}
	return tag.RowsAffected() > 0, nil
}

// CompleteMaterialization writes the materialization counts and status.
func (s *PostgresRunStore) CompleteMaterialization(ctx context.Context, id string, res MaterializeResult, status Status) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE discovery_runs SET
			status = $2,
			created_companies_count = $3,
			created_contacts_count = $4,
			created_leads_count = $5,
			skipped_count = $6,
			error_count = $7,
			finished_at = COALESCE(finished_at, now()),
			updated_at = now()
		WHERE id = $1`,
		id, status,
		res.CompaniesCreated, res.ContactsCreated, res.LeadsCreated,
		res.CompaniesSkipped+res.ContactsSkipped+res.LeadsSkipped,
		len(res.Errors),
	)
	if err != nil {
		return eris.Wrapf(err, "discovery: complete materialization %s", id)
	}
	return nil
}

// ArchivalStates returns id plus archival timestamp for existing ids.
func (s *PostgresRunStore) ArchivalStates(ctx context.Context, ids []string) ([]ArchivalState, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, archived_at FROM discovery_runs WHERE id = ANY($1)`,
		ids,
	)
	if err != nil {
		return nil, eris.Wrap(err, "discovery: archival states")
	}
	defer rows.Close()

	var states []ArchivalState
	for rows.Next() {
		var st ArchivalState
		if err := rows.Scan(&st.ID, &st.ArchivedAt); err != nil {
			return nil, eris.Wrap(err, "discovery: scan archival state")
		}
		states = append(states, st)
	}
	return states, rows.Err()
}

// ArchiveRuns archives the currently-unarchived runs among ids.
func (s *PostgresRunStore) ArchiveRuns(ctx context.Context, ids []string, archivedBy *string) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE discovery_runs SET
			archived_at = now(),
			archived_by_id = $2,
			updated_at = now()
		WHERE id = ANY($1) AND archived_at IS NULL`,
		ids, archivedBy,
	)
	if err != nil {
		return 0, eris.Wrap(err, "discovery: archive runs")
	}
	return tag.RowsAffected(), nil
}

// UnarchiveRuns unarchives the currently-archived runs among ids.
func (s *PostgresRunStore) UnarchiveRuns(ctx context.Context, ids []string) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE discovery_runs SET
			archived_at = NULL,
			archived_by_id = NULL,
			updated_at = now()
		WHERE id = ANY($1) AND archived_at IS NOT NULL`,
		ids,
	)
	if err != nil {
		return 0, eris.Wrap(err, "discovery: unarchive runs")
	}
	return tag.RowsAffected(), nil
}

// DeleteRuns permanently removes the runs. The candidate audit rows go
// with them via ON DELETE CASCADE.
func (s *PostgresRunStore) DeleteRuns(ctx context.Context, ids []string) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM discovery_runs WHERE id = ANY($1)`,
		ids,
	)
	if err != nil {
		return 0, eris.Wrap(err, "discovery: delete runs")
	}
	return tag.RowsAffected(), nil
}

// AppendCandidateAudit bulk-copies a finalized run's candidates into the
// audit table.
func (s *PostgresRunStore) AppendCandidateAudit(ctx context.Context, runID string, cands []Candidate) (int64, error) {
	if len(cands) == 0 {
		return 0, nil
	}
	rows := make([][]any, len(cands))
	for i, c := range cands {
		var raw []byte
		if len(c.RawMetadata) > 0 {
			raw = []byte(c.RawMetadata)
		}
		rows[i] = []any{runID, i, c.Name, c.Website, c.Channel, c.RelevanceScore, raw, time.Now()}
	}
	return db.CopyFrom(ctx, s.pool, "discovery_run_candidates",
		[]string{"run_id", "position", "name", "website", "channel", "relevance_score", "raw_metadata", "created_at"},
		rows,
	)
}

// Close is a no-op; the pool is owned by the caller.
func (s *PostgresRunStore) Close() error {
	return nil
}
