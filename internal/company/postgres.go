package company

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/prospect-cli/internal/db"
)

// PostgresStore implements Store using pgx.
type PostgresStore struct {
	pool db.Pool
}

// NewPostgresStore creates a PostgresStore on the given pool.
func NewPostgresStore(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS companies (
	id                BIGSERIAL PRIMARY KEY,
	name              TEXT NOT NULL,
	domain            TEXT NOT NULL DEFAULT '',
	website           TEXT NOT NULL DEFAULT '',
	industry          TEXT NOT NULL DEFAULT '',
	description       TEXT NOT NULL DEFAULT '',
	source_channel    TEXT NOT NULL DEFAULT '',
	discovered_by_run TEXT NOT NULL DEFAULT '',
	relevance_score   DOUBLE PRECISION NOT NULL DEFAULT 0,
	discovered_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	created_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE UNIQUE INDEX IF NOT EXISTS companies_domain_key
	ON companies (domain) WHERE domain <> '';
CREATE INDEX IF NOT EXISTS idx_companies_name ON companies (LOWER(TRIM(name)));

CREATE TABLE IF NOT EXISTS contacts (
	id                BIGSERIAL PRIMARY KEY,
	company_id        BIGINT NOT NULL REFERENCES companies(id) ON DELETE CASCADE,
	name              TEXT NOT NULL DEFAULT '',
	email             TEXT NOT NULL DEFAULT '',
	phone             TEXT NOT NULL DEFAULT '',
	source_channel    TEXT NOT NULL DEFAULT '',
	discovered_by_run TEXT NOT NULL DEFAULT '',
	created_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_contacts_company_id ON contacts (company_id);

CREATE TABLE IF NOT EXISTS leads (
	id                BIGSERIAL PRIMARY KEY,
	company_id        BIGINT NOT NULL REFERENCES companies(id) ON DELETE CASCADE,
	status            TEXT NOT NULL DEFAULT 'new',
	score             DOUBLE PRECISION NOT NULL DEFAULT 0,
	source_channel    TEXT NOT NULL DEFAULT '',
	discovered_by_run TEXT NOT NULL DEFAULT '',
	created_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_leads_company_id ON leads (company_id);
`

// Migrate creates the entity tables.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "company: migrate")
}

const companyColumns = `id, name, domain, website, industry, description,
	source_channel, discovered_by_run, relevance_score, discovered_at, created_at`

// CreateCompany inserts a company with ON CONFLICT DO NOTHING on the
// unique domain index, so two runs materializing the same domain
// concurrently produce one record.
func (s *PostgresStore) CreateCompany(ctx context.Context, c *Company) (bool, error) {
	if c.DiscoveredAt.IsZero() {
		c.DiscoveredAt = time.Now().UTC()
	}

	err := s.pool.QueryRow(ctx, `
		INSERT INTO companies (name, domain, website, industry, description,
			source_channel, discovered_by_run, relevance_score, discovered_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (domain) WHERE domain <> '' DO NOTHING
		RETURNING id, created_at`,
		c.Name, c.Domain, c.Website, c.Industry, c.Description,
		c.SourceChannel, c.DiscoveredByRun, c.RelevanceScore, c.DiscoveredAt,
	).Scan(&c.ID, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		// Conflict: an equivalent record already exists.
		return false, nil
	}
	if err != nil {
		return false, eris.Wrapf(err, "company: create %q", c.Name)
	}
	return true, nil
}

// FindByDomain matches the normalized domain exactly.
func (s *PostgresStore) FindByDomain(ctx context.Context, domain string) (*Company, error) {
	if domain == "" {
		return nil, nil
	}
	return s.findOne(ctx,
		`SELECT `+companyColumns+` FROM companies WHERE domain = $1 ORDER BY id LIMIT 1`,
		domain)
}

// FindByDomainContaining matches by substring containment in either
// direction, preferring the oldest record.
func (s *PostgresStore) FindByDomainContaining(ctx context.Context, domain string) (*Company, error) {
	if domain == "" {
		return nil, nil
	}
	return s.findOne(ctx, `
		SELECT `+companyColumns+` FROM companies
		WHERE domain <> '' AND (domain LIKE '%' || $1 || '%' OR $1 LIKE '%' || domain || '%')
		ORDER BY id LIMIT 1`,
		domain)
}

// FindByName matches the trimmed name case-insensitively.
func (s *PostgresStore) FindByName(ctx context.Context, name string) (*Company, error) {
	if name == "" {
		return nil, nil
	}
	return s.findOne(ctx, `
		SELECT `+companyColumns+` FROM companies
		WHERE LOWER(TRIM(name)) = LOWER(TRIM($1))
		ORDER BY id LIMIT 1`,
		name)
}

func (s *PostgresStore) findOne(ctx context.Context, query string, args ...any) (*Company, error) {
	var c Company
	err := s.pool.QueryRow(ctx, query, args...).Scan(
		&c.ID, &c.Name, &c.Domain, &c.Website, &c.Industry, &c.Description,
		&c.SourceChannel, &c.DiscoveredByRun, &c.RelevanceScore, &c.DiscoveredAt, &c.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "company: find")
	}
	return &c, nil
}

// CreateContact inserts a contact and fills in its id.
func (s *PostgresStore) CreateContact(ctx context.Context, c *Contact) error {
	err := s.pool.QueryRow(ctx, `
		INSERT INTO contacts (company_id, name, email, phone, source_channel, discovered_by_run)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`,
		c.CompanyID, c.Name, c.Email, c.Phone, c.SourceChannel, c.DiscoveredByRun,
	).Scan(&c.ID, &c.CreatedAt)
	return eris.Wrapf(err, "company: create contact for company %d", c.CompanyID)
}

// CreateLead inserts a lead and fills in its id.
func (s *PostgresStore) CreateLead(ctx context.Context, l *Lead) error {
	if l.Status == "" {
		l.Status = LeadStatusNew
	}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO leads (company_id, status, score, source_channel, discovered_by_run)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`,
		l.CompanyID, l.Status, l.Score, l.SourceChannel, l.DiscoveredByRun,
	).Scan(&l.ID, &l.CreatedAt)
	return eris.Wrapf(err, "company: create lead for company %d", l.CompanyID)
}
