// Package company persists the entities discovery runs materialize:
// companies, their contacts, and sales leads.
package company

import (
	"context"
	"time"
)

// Company is a persisted business record. Records created by a
// discovery run carry a provenance stamp: the source channel, the
// originating run id, the candidate's relevance score and the
// discovery timestamp.
type Company struct {
	ID          int64     `json:"id" db:"id"`
	Name        string    `json:"name" db:"name"`
	Domain      string    `json:"domain,omitempty" db:"domain"`
	Website     string    `json:"website,omitempty" db:"website"`
	Industry    string    `json:"industry,omitempty" db:"industry"`
	Description string    `json:"description,omitempty" db:"description"`

	SourceChannel   string    `json:"source_channel,omitempty" db:"source_channel"`
	DiscoveredByRun string    `json:"discovered_by_run,omitempty" db:"discovered_by_run"`
	RelevanceScore  float64   `json:"relevance_score,omitempty" db:"relevance_score"`
	DiscoveredAt    time.Time `json:"discovered_at" db:"discovered_at"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
}

// Contact is a person attached to a company.
type Contact struct {
	ID              int64     `json:"id" db:"id"`
	CompanyID       int64     `json:"company_id" db:"company_id"`
	Name            string    `json:"name,omitempty" db:"name"`
	Email           string    `json:"email,omitempty" db:"email"`
	Phone           string    `json:"phone,omitempty" db:"phone"`
	SourceChannel   string    `json:"source_channel,omitempty" db:"source_channel"`
	DiscoveredByRun string    `json:"discovered_by_run,omitempty" db:"discovered_by_run"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
}

// Lead is an open sales opportunity on a company.
type Lead struct {
	ID              int64     `json:"id" db:"id"`
	CompanyID       int64     `json:"company_id" db:"company_id"`
	Status          string    `json:"status" db:"status"`
	Score           float64   `json:"score,omitempty" db:"score"`
	SourceChannel   string    `json:"source_channel,omitempty" db:"source_channel"`
	DiscoveredByRun string    `json:"discovered_by_run,omitempty" db:"discovered_by_run"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
}

// LeadStatusNew is the status assigned to freshly materialized leads.
const LeadStatusNew = "new"

// Store defines the persistence contract the materializer consumes.
// Find methods return (nil, nil) when no record matches.
type Store interface {
	// CreateCompany inserts the company and fills in its id. Returns
	// created=false without error when a unique-domain conflict means
	// an equivalent record already exists.
	CreateCompany(ctx context.Context, c *Company) (created bool, err error)

	// FindByDomain matches the normalized domain exactly.
	FindByDomain(ctx context.Context, domain string) (*Company, error)

	// FindByDomainContaining matches by substring containment in either
	// direction, to handle path suffixes on stored records.
	FindByDomainContaining(ctx context.Context, domain string) (*Company, error)

	// FindByName matches the trimmed name case-insensitively.
	FindByName(ctx context.Context, name string) (*Company, error)

	CreateContact(ctx context.Context, c *Contact) error
	CreateLead(ctx context.Context, l *Lead) error

	Migrate(ctx context.Context) error
}
