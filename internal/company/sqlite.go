package company

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/rotisserie/eris"
)

// SQLiteStore implements Store using a shared database/sql handle
// opened by the run store's SQLite backend.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a SQLiteStore on an already-open handle.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS companies (
	id                INTEGER PRIMARY KEY AUTOINCREMENT,
	name              TEXT NOT NULL,
	domain            TEXT NOT NULL DEFAULT '',
	website           TEXT NOT NULL DEFAULT '',
	industry          TEXT NOT NULL DEFAULT '',
	description       TEXT NOT NULL DEFAULT '',
	source_channel    TEXT NOT NULL DEFAULT '',
	discovered_by_run TEXT NOT NULL DEFAULT '',
	relevance_score   REAL NOT NULL DEFAULT 0,
	discovered_at     DATETIME NOT NULL DEFAULT (datetime('now')),
	created_at        DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE UNIQUE INDEX IF NOT EXISTS companies_domain_key
	ON companies (domain) WHERE domain <> '';
CREATE INDEX IF NOT EXISTS idx_companies_name ON companies (LOWER(TRIM(name)));

CREATE TABLE IF NOT EXISTS contacts (
	id                INTEGER PRIMARY KEY AUTOINCREMENT,
	company_id        INTEGER NOT NULL REFERENCES companies(id) ON DELETE CASCADE,
	name              TEXT NOT NULL DEFAULT '',
	email             TEXT NOT NULL DEFAULT '',
	phone             TEXT NOT NULL DEFAULT '',
	source_channel    TEXT NOT NULL DEFAULT '',
	discovered_by_run TEXT NOT NULL DEFAULT '',
	created_at        DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_contacts_company_id ON contacts (company_id);

CREATE TABLE IF NOT EXISTS leads (
	id                INTEGER PRIMARY KEY AUTOINCREMENT,
	company_id        INTEGER NOT NULL REFERENCES companies(id) ON DELETE CASCADE,
	status            TEXT NOT NULL DEFAULT 'new',
	score             REAL NOT NULL DEFAULT 0,
	source_channel    TEXT NOT NULL DEFAULT '',
	discovered_by_run TEXT NOT NULL DEFAULT '',
	created_at        DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_leads_company_id ON leads (company_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "company: sqlite migrate")
}

func (s *SQLiteStore) CreateCompany(ctx context.Context, c *Company) (bool, error) {
	if c.DiscoveredAt.IsZero() {
		c.DiscoveredAt = time.Now().UTC()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO companies (name, domain, website, industry, description,
			source_channel, discovered_by_run, relevance_score, discovered_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.Name, c.Domain, c.Website, c.Industry, c.Description,
		c.SourceChannel, c.DiscoveredByRun, c.RelevanceScore, c.DiscoveredAt, c.CreatedAt,
	)
	if err != nil {
		return false, eris.Wrapf(err, "company: sqlite create %q", c.Name)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "company: sqlite rows affected")
	}
	if n == 0 {
		return false, nil
	}
	id, err := res.LastInsertId()
	if err != nil {
		return false, eris.Wrap(err, "company: sqlite last insert id")
	}
	c.ID = id
	return true, nil
}

const sqliteCompanyColumns = `id, name, domain, website, industry, description,
	source_channel, discovered_by_run, relevance_score, discovered_at, created_at`

func (s *SQLiteStore) FindByDomain(ctx context.Context, domain string) (*Company, error) {
	if domain == "" {
		return nil, nil
	}
	return s.findOne(ctx,
		`SELECT `+sqliteCompanyColumns+` FROM companies WHERE domain = ? ORDER BY id LIMIT 1`,
		domain)
}

func (s *SQLiteStore) FindByDomainContaining(ctx context.Context, domain string) (*Company, error) {
	if domain == "" {
		return nil, nil
	}
	return s.findOne(ctx, `
		SELECT `+sqliteCompanyColumns+` FROM companies
		WHERE domain <> '' AND (instr(domain, ?) > 0 OR instr(?, domain) > 0)
		ORDER BY id LIMIT 1`,
		domain, domain)
}

func (s *SQLiteStore) FindByName(ctx context.Context, name string) (*Company, error) {
	if name == "" {
		return nil, nil
	}
	return s.findOne(ctx, `
		SELECT `+sqliteCompanyColumns+` FROM companies
		WHERE LOWER(TRIM(name)) = LOWER(TRIM(?))
		ORDER BY id LIMIT 1`,
		name)
}

func (s *SQLiteStore) findOne(ctx context.Context, query string, args ...any) (*Company, error) {
	var c Company
	err := s.db.QueryRowContext(ctx, query, args...).Scan(
		&c.ID, &c.Name, &c.Domain, &c.Website, &c.Industry, &c.Description,
		&c.SourceChannel, &c.DiscoveredByRun, &c.RelevanceScore, &c.DiscoveredAt, &c.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "company: sqlite find")
	}
	return &c, nil
}

func (s *SQLiteStore) CreateContact(ctx context.Context, c *Contact) error {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO contacts (company_id, name, email, phone, source_channel, discovered_by_run, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.CompanyID, c.Name, c.Email, c.Phone, c.SourceChannel, c.DiscoveredByRun, c.CreatedAt,
	)
	if err != nil {
		return eris.Wrapf(err, "company: sqlite create contact for company %d", c.CompanyID)
	}
	c.ID, _ = res.LastInsertId()
	return nil
}

func (s *SQLiteStore) CreateLead(ctx context.Context, l *Lead) error {
	if l.Status == "" {
		l.Status = LeadStatusNew
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO leads (company_id, status, score, source_channel, discovered_by_run, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		l.CompanyID, l.Status, l.Score, l.SourceChannel, l.DiscoveredByRun, l.CreatedAt,
	)
	if err != nil {
		return eris.Wrapf(err, "company: sqlite create lead for company %d", l.CompanyID)
	}
	l.ID, _ = res.LastInsertId()
	return nil
}
