package discovery

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/prospect-cli/internal/intent"
)

// SQLiteRunStore implements RunStore on an embedded SQLite database for
// single-node deployments without Postgres.
type SQLiteRunStore struct {
	db *sql.DB
}

// NewSQLiteRunStore opens a SQLite database at the given path and
// configures WAL mode.
func NewSQLiteRunStore(path string) (*SQLiteRunStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, eris.Wrap(err, "discovery: open sqlite")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "discovery: %s", pragma)
		}
	}
	return &SQLiteRunStore{db: db}, nil
}

// DB exposes the underlying handle so the company store can share it.
func (s *SQLiteRunStore) DB() *sql.DB {
	return s.db
}

// Migrate creates the discovery tables if they do not exist.
func (s *SQLiteRunStore) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS discovery_runs (
			id TEXT PRIMARY KEY,
			mode TEXT NOT NULL DEFAULT 'manual',
			triggered_by TEXT NOT NULL DEFAULT '',
			triggered_by_id TEXT,
			source_class TEXT NOT NULL DEFAULT 'manual',
			intent_id TEXT NOT NULL,
			intent_name TEXT NOT NULL DEFAULT '',
			config TEXT,
			dry_run INTEGER NOT NULL DEFAULT 1,
			status TEXT NOT NULL DEFAULT 'pending',
			error TEXT,
			results TEXT,
			stats TEXT,
			created_companies_count INTEGER NOT NULL DEFAULT 0,
			created_contacts_count INTEGER NOT NULL DEFAULT 0,
			created_leads_count INTEGER NOT NULL DEFAULT 0,
			skipped_count INTEGER NOT NULL DEFAULT 0,
			error_count INTEGER NOT NULL DEFAULT 0,
			started_at TEXT NOT NULL DEFAULT (datetime('now')),
			finished_at TEXT,
			cancel_requested_at TEXT,
			cancel_requested_by TEXT,
			archived_at TEXT,
			archived_by_id TEXT,
			created_at TEXT NOT NULL DEFAULT (datetime('now')),
			updated_at TEXT NOT NULL DEFAULT (datetime('now'))
		)`,
		`CREATE INDEX IF NOT EXISTS discovery_runs_started_at_idx
			ON discovery_runs (started_at DESC)`,
		`CREATE TABLE IF NOT EXISTS discovery_run_candidates (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL REFERENCES discovery_runs(id) ON DELETE CASCADE,
			position INTEGER NOT NULL,
			name TEXT NOT NULL DEFAULT '',
			website TEXT NOT NULL DEFAULT '',
			channel TEXT NOT NULL DEFAULT '',
			relevance_score REAL NOT NULL DEFAULT 0,
			raw_metadata TEXT,
			created_at TEXT NOT NULL DEFAULT (datetime('now'))
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return eris.Wrap(err, "discovery: migrate sqlite")
		}
	}
	return nil
}

const sqliteTimeFormat = "2006-01-02 15:04:05"

func sqliteTime(t time.Time) string {
	return t.UTC().Format(sqliteTimeFormat)
}

func parseSQLiteTime(s *string) (*time.Time, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	t, err := time.Parse(sqliteTimeFormat, *s)
	if err != nil {
		// Some drivers hand back RFC 3339.
		t, err = time.Parse(time.RFC3339, *s)
		if err != nil {
			return nil, eris.Wrapf(err, "discovery: parse time %q", *s)
		}
	}
	return &t, nil
}

// CreateRun inserts a new run record.
func (s *SQLiteRunStore) CreateRun(ctx context.Context, run *Run) error {
	cfgJSON, err := json.Marshal(run.Config)
	if err != nil {
		return eris.Wrap(err, "discovery: marshal run config")
	}

	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO discovery_runs
			(id, mode, triggered_by, triggered_by_id, source_class,
			 intent_id, intent_name, config, dry_run, status,
			 started_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Mode, run.TriggeredBy, run.TriggeredByID, run.SourceClass,
		run.IntentID, run.IntentName, string(cfgJSON), run.DryRun, run.Status,
		sqliteTime(run.StartedAt), sqliteTime(now), sqliteTime(now),
	)
	if err != nil {
		return eris.Wrap(err, "discovery: create run")
	}
	run.CreatedAt = now
	run.UpdatedAt = now
	return nil
}

func (s *SQLiteRunStore) scanRun(row interface{ Scan(...any) error }) (*Run, error) {
	var r Run
	var cfgJSON, resultsJSON, statsJSON sql.NullString
	var startedAt, createdAt, updatedAt string
	var finishedAt, cancelAt, archivedAt *string

	err := row.Scan(
		&r.ID, &r.Mode, &r.TriggeredBy, &r.TriggeredByID, &r.SourceClass,
		&r.IntentID, &r.IntentName, &cfgJSON, &r.DryRun, &r.Status, &r.Error,
		&resultsJSON, &statsJSON,
		&r.CreatedCompaniesCount, &r.CreatedContactsCount, &r.CreatedLeadsCount,
		&r.SkippedCount, &r.ErrorCount,
		&startedAt, &finishedAt, &cancelAt, &r.CancelRequestedBy,
		&archivedAt, &r.ArchivedByID, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if cfgJSON.Valid && cfgJSON.String != "" && cfgJSON.String != "null" {
		r.Config = &intent.ResolvedConfig{}
		if err := json.Unmarshal([]byte(cfgJSON.String), r.Config); err != nil {
			return nil, eris.Wrap(err, "discovery: unmarshal run config")
		}
	}
	if resultsJSON.Valid && resultsJSON.String != "" {
		if err := json.Unmarshal([]byte(resultsJSON.String), &r.Results); err != nil {
			return nil, eris.Wrap(err, "discovery: unmarshal run results")
		}
	}
	if statsJSON.Valid && statsJSON.String != "" {
		if err := json.Unmarshal([]byte(statsJSON.String), &r.Stats); err != nil {
			return nil, eris.Wrap(err, "discovery: unmarshal run stats")
		}
	}

	for _, pair := range []struct {
		src *string
		dst *time.Time
	}{
		{&startedAt, &r.StartedAt},
		{&createdAt, &r.CreatedAt},
		{&updatedAt, &r.UpdatedAt},
	} {
		t, err := parseSQLiteTime(pair.src)
		if err != nil {
			return nil, err
		}
		if t != nil {
			*pair.dst = *t
		}
	}
	if r.FinishedAt, err = parseSQLiteTime(finishedAt); err != nil {
		return nil, err
	}
	if r.CancelRequestedAt, err = parseSQLiteTime(cancelAt); err != nil {
		return nil, err
	}
	if r.ArchivedAt, err = parseSQLiteTime(archivedAt); err != nil {
		return nil, err
	}
	return &r, nil
}

// GetRun fetches a single run by id.
func (s *SQLiteRunStore) GetRun(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT %s FROM discovery_runs WHERE id = ?`, runColumns), id)
	run, err := s.scanRun(row)
	if eris.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrRunNotFound, "run %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "discovery: get run %s", id)
	}
	return run, nil
}

// ListRuns returns runs matching the filter, most recent first.
func (s *SQLiteRunStore) ListRuns(ctx context.Context, filter RunFilter) ([]Run, error) {
	conditions := []string{"1=1"}
	var args []any

	if filter.Archived != nil {
		if *filter.Archived {
			conditions = append(conditions, "archived_at IS NOT NULL")
		} else {
			conditions = append(conditions, "archived_at IS NULL")
		}
	}
	if filter.SourceClass != "" {
		conditions = append(conditions, "source_class = ?")
		args = append(args, filter.SourceClass)
	}
	if filter.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, filter.Status)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}

	query := fmt.Sprintf(
		`SELECT %s FROM discovery_runs WHERE %s ORDER BY started_at DESC LIMIT ?`,
		runColumns, strings.Join(conditions, " AND "),
	)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "discovery: list runs")
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := s.scanRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "discovery: scan run")
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// MarkRunning moves a pending run to running.
func (s *SQLiteRunStore) MarkRunning(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE discovery_runs SET status = 'running', updated_at = datetime('now')
		WHERE id = ? AND status = 'pending'`,
		id,
	)
	if err != nil {
		return eris.Wrapf(err, "discovery: mark running %s", id)
	}
	return nil
}

// FinalizeRun writes the terminal state in one update.
func (s *SQLiteRunStore) FinalizeRun(ctx context.Context, id string, fin Finalization) error {
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

	_, err = s.db.ExecContext(ctx,
		`UPDATE discovery_runs SET
			status = ?,
			results = ?,
			stats = ?,
			error = ?,
			created_companies_count = ?,
			created_contacts_count = ?,
			created_leads_count = ?,
			skipped_count = ?,
			error_count = ?,
			finished_at = datetime('now'),
			updated_at = datetime('now')
		WHERE id = ?`,
		fin.Status, string(resultsJSON), string(statsJSON), errMsg,
		fin.Counts.CompaniesCreated, fin.Counts.ContactsCreated, fin.Counts.LeadsCreated,
		fin.Counts.CompaniesSkipped+fin.Counts.ContactsSkipped+fin.Counts.LeadsSkipped,
		len(fin.Counts.Errors),
		id,
	)
	if err != nil {
		return eris.Wrapf(err, "discovery: finalize run %s", id)
	}
	return nil
}

// CancelRequested polls the cooperative cancellation flag.
func (s *SQLiteRunStore) CancelRequested(ctx context.Context, id string) (bool, error) {
	var requested bool
	err := s.db.QueryRowContext(ctx,
		`SELECT cancel_requested_at IS NOT NULL FROM discovery_runs WHERE id = ?`,
		id,
	).Scan(&requested)
	if eris.Is(err, sql.ErrNoRows) {
		return false, eris.Wrapf(ErrRunNotFound, "run %s", id)
	}
	if err != nil {
		return false, eris.Wrapf(err, "discovery: poll cancel %s", id)
	}
	return requested, nil
}

// RequestCancel stamps the cancellation request iff the run is still
// active and unrequested.
func (s *SQLiteRunStore) RequestCancel(ctx context.Context, id, requestedBy string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE discovery_runs SET
			cancel_requested_at = datetime('now'),
			cancel_requested_by = ?,
			updated_at = datetime('now')
		WHERE id = ?
			AND status IN ('pending', 'running')
			AND cancel_requested_at IS NULL`,
		requestedBy, id,
	)
	if err != nil {
		return 0, eris.Wrapf(err, "discovery: request cancel %s", id)
	}
	return res.RowsAffected()
}

// ClaimMaterialization flips dry_run true -> false exactly once.
func (s *SQLiteRunStore) ClaimMaterialization(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE discovery_runs SET dry_run = 0, updated_at = datetime('now')
		WHERE id = ? AND dry_run = 1`,
		id,
	)
	if err != nil {
		return false, eris.Wrapf(err, "discovery: claim materialization %s", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "discovery: claim materialization rows")
	}
	return n > 0, nil
}

// CompleteMaterialization writes the materialization counts and status.
func (s *SQLiteRunStore) CompleteMaterialization(ctx context.Context, id string, res MaterializeResult, status Status) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE discovery_runs SET
			status = ?,
			created_companies_count = ?,
			created_contacts_count = ?,
			created_leads_count = ?,
			skipped_count = ?,
			error_count = ?,
			finished_at = COALESCE(finished_at, datetime('now')),
			updated_at = datetime('now')
		WHERE id = ?`,
		status,
		res.CompaniesCreated, res.ContactsCreated, res.LeadsCreated,
		res.CompaniesSkipped+res.ContactsSkipped+res.LeadsSkipped,
		len(res.Errors),
		id,
	)
	if err != nil {
		return eris.Wrapf(err, "discovery: complete materialization %s", id)
	}
	return nil
}

func sqlitePlaceholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func idArgs(ids []string) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}

// ArchivalStates returns id plus archival timestamp for existing ids.
func (s *SQLiteRunStore) ArchivalStates(ctx context.Context, ids []string) ([]ArchivalState, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := fmt.Sprintf(
		`SELECT id, archived_at FROM discovery_runs WHERE id IN (%s)`,
		sqlitePlaceholders(len(ids)),
	)
	rows, err := s.db.QueryContext(ctx, query, idArgs(ids)...)
	if err != nil {
		return nil, eris.Wrap(err, "discovery: archival states")
	}
	defer rows.Close()

	var states []ArchivalState
	for rows.Next() {
		var st ArchivalState
		var archivedAt *string
		if err := rows.Scan(&st.ID, &archivedAt); err != nil {
			return nil, eris.Wrap(err, "discovery: scan archival state")
		}
		if st.ArchivedAt, err = parseSQLiteTime(archivedAt); err != nil {
			return nil, err
		}
		states = append(states, st)
	}
	return states, rows.Err()
}

// ArchiveRuns archives the currently-unarchived runs among ids.
func (s *SQLiteRunStore) ArchiveRuns(ctx context.Context, ids []string, archivedBy *string) (int64, error) {
	query := fmt.Sprintf(
		`UPDATE discovery_runs SET
			archived_at = datetime('now'),
			archived_by_id = ?,
			updated_at = datetime('now')
		WHERE id IN (%s) AND archived_at IS NULL`,
		sqlitePlaceholders(len(ids)),
	)
	args := append([]any{archivedBy}, idArgs(ids)...)
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, eris.Wrap(err, "discovery: archive runs")
	}
	return res.RowsAffected()
}

// UnarchiveRuns unarchives the currently-archived runs among ids.
func (s *SQLiteRunStore) UnarchiveRuns(ctx context.Context, ids []string) (int64, error) {
	query := fmt.Sprintf(
		`UPDATE discovery_runs SET
			archived_at = NULL,
			archived_by_id = NULL,
			updated_at = datetime('now')
		WHERE id IN (%s) AND archived_at IS NOT NULL`,
		sqlitePlaceholders(len(ids)),
	)
	res, err := s.db.ExecContext(ctx, query, idArgs(ids)...)
	if err != nil {
		return 0, eris.Wrap(err, "discovery: unarchive runs")
	}
	return res.RowsAffected()
}

// DeleteRuns permanently removes the runs and their audit rows.
func (s *SQLiteRunStore) DeleteRuns(ctx context.Context, ids []string) (int64, error) {
	// SQLite only enforces ON DELETE CASCADE with foreign_keys on, so
	// clear the audit rows explicitly.
	auditQuery := fmt.Sprintf(
		`DELETE FROM discovery_run_candidates WHERE run_id IN (%s)`,
		sqlitePlaceholders(len(ids)),
	)
	if _, err := s.db.ExecContext(ctx, auditQuery, idArgs(ids)...); err != nil {
		return 0, eris.Wrap(err, "discovery: delete run candidates")
	}

	query := fmt.Sprintf(
		`DELETE FROM discovery_runs WHERE id IN (%s)`,
		sqlitePlaceholders(len(ids)),
	)
	res, err := s.db.ExecContext(ctx, query, idArgs(ids)...)
	if err != nil {
		return 0, eris.Wrap(err, "discovery: delete runs")
	}
	return res.RowsAffected()
}

// AppendCandidateAudit records a finalized run's candidates.
func (s *SQLiteRunStore) AppendCandidateAudit(ctx context.Context, runID string, cands []Candidate) (int64, error) {
	if len(cands) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "discovery: begin audit tx")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO discovery_run_candidates
			(run_id, position, name, website, channel, relevance_score, raw_metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, eris.Wrap(err, "discovery: prepare audit insert")
	}
	defer stmt.Close()

	for i, c := range cands {
		var raw *string
		if len(c.RawMetadata) > 0 {
			v := string(c.RawMetadata)
			raw = &v
		}
		if _, err := stmt.ExecContext(ctx, runID, i, c.Name, c.Website, c.Channel, c.RelevanceScore, raw); err != nil {
			return 0, eris.Wrapf(err, "discovery: audit insert %d", i)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "discovery: commit audit tx")
	}
	return int64(len(cands)), nil
}

// Close closes the underlying database handle.
func (s *SQLiteRunStore) Close() error {
	return s.db.Close()
}
