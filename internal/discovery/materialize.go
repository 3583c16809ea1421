package discovery

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/prospect-cli/internal/company"
)

// Materializer converts discovery candidates into persisted Company,
// Contact and Lead records, deduplicating against the store.
type Materializer struct {
	runs      RunStore
	companies company.Store
}

// NewMaterializer creates a Materializer.
func NewMaterializer(runs RunStore, companies company.Store) *Materializer {
	return &Materializer{runs: runs, companies: companies}
}

// Materialize processes the candidates sequentially with partial-failure
// semantics: every per-candidate error is recorded and counted as a
// skip, and processing continues with the next candidate. The error
// return is reserved for batch-fatal conditions; per-row failures never
// abort the pass.
func (m *Materializer) Materialize(ctx context.Context, runID string, cands []Candidate, maxLeads int) (*MaterializeResult, error) {
	log := zap.L().With(zap.String("phase", "materialize"), zap.String("run_id", runID))
	res := &MaterializeResult{}
	now := time.Now().UTC()

	for i, c := range cands {
		name := strings.TrimSpace(c.Name)
		domain := NormalizeWebsite(c.Website)

		if name == "" && domain == "" {
			res.Errors = append(res.Errors, fmt.Sprintf("candidate %d: missing both name and website", i))
			res.CompaniesSkipped++
			continue
		}

		existing, err := m.findExisting(ctx, domain, name)
		if err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("candidate %d (%s): lookup: %v", i, name, err))
			res.CompaniesSkipped++
			continue
		}
		if existing != nil {
			res.CompaniesSkipped++
			continue
		}

		rec := &company.Company{
			Name:            name,
			Domain:          domain,
			Website:         c.Website,
			Industry:        c.Industry,
			Description:     c.Description,
			SourceChannel:   c.Channel,
			DiscoveredByRun: runID,
			RelevanceScore:  c.RelevanceScore,
			DiscoveredAt:    now,
		}
		created, err := m.companies.CreateCompany(ctx, rec)
		if err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("candidate %d (%s): create: %v", i, name, err))
			res.CompaniesSkipped++
			continue
		}
		if !created {
			// Lost the create race to a concurrent run; same outcome as
			// finding the record up front.
			res.CompaniesSkipped++
			continue
		}
		res.CompaniesCreated++

		if c.Email != "" || c.Phone != "" {
			contact := &company.Contact{
				CompanyID:       rec.ID,
				Email:           c.Email,
				Phone:           c.Phone,
				SourceChannel:   c.Channel,
				DiscoveredByRun: runID,
			}
			if err := m.companies.CreateContact(ctx, contact); err != nil {
				res.Errors = append(res.Errors, fmt.Sprintf("candidate %d (%s): contact: %v", i, name, err))
				res.ContactsSkipped++
			} else {
				res.ContactsCreated++
			}
		}

		if maxLeads <= 0 || res.LeadsCreated < maxLeads {
			lead := &company.Lead{
				CompanyID:       rec.ID,
				Status:          company.LeadStatusNew,
				Score:           c.RelevanceScore,
				SourceChannel:   c.Channel,
				DiscoveredByRun: runID,
			}
			if err := m.companies.CreateLead(ctx, lead); err != nil {
				res.Errors = append(res.Errors, fmt.Sprintf("candidate %d (%s): lead: %v", i, name, err))
				res.LeadsSkipped++
			} else {
				res.LeadsCreated++
			}
		} else {
			res.LeadsSkipped++
		}
	}

	log.Info("materialization pass done",
		zap.Int("companies_created", res.CompaniesCreated),
		zap.Int("companies_skipped", res.CompaniesSkipped),
		zap.Int("errors", len(res.Errors)),
	)
	return res, nil
}

// findExisting applies the two-stage dedupe strategy against the
// persisted store: exact domain first, then domain containment, then
// case-insensitive name.
func (m *Materializer) findExisting(ctx context.Context, domain, name string) (*company.Company, error) {
	if domain != "" {
		rec, err := m.companies.FindByDomain(ctx, domain)
		if err != nil || rec != nil {
			return rec, err
		}
		rec, err = m.companies.FindByDomainContaining(ctx, domain)
		if err != nil || rec != nil {
			return rec, err
		}
	}
	if name != "" {
		return m.companies.FindByName(ctx, name)
	}
	return nil, nil
}

// MaterializeRun converts a previously dry run's stored results into
// persisted entities and updates the same run record. The dry_run flag
// is claimed with a compare-and-swap before any entity is created, so
// a second invocation fails with ErrNotDryRun and creates nothing.
func (m *Materializer) MaterializeRun(ctx context.Context, runID string) (*Run, error) {
	run, err := m.runs.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !run.DryRun {
		return nil, eris.Wrapf(ErrNotDryRun, "run %s", runID)
	}
	if len(run.Results) == 0 {
		return nil, eris.Wrapf(ErrEmptyResults, "run %s", runID)
	}

	claimed, err := m.runs.ClaimMaterialization(ctx, runID)
	if err != nil {
		return nil, eris.Wrap(err, "materialize: claim")
	}
	if !claimed {
		return nil, eris.Wrapf(ErrNotDryRun, "run %s", runID)
	}

	maxLeads := 0
	if run.Config != nil {
		maxLeads = run.Config.Limits.MaxLeads
	}

	res, err := m.Materialize(ctx, runID, run.Results, maxLeads)
	if err != nil {
		return nil, err
	}

	status := StatusCompleted
	if len(res.Errors) > 0 {
		status = StatusCompletedWithErrors
	}
	if err := m.runs.CompleteMaterialization(ctx, runID, *res, status); err != nil {
		return nil, eris.Wrap(err, "materialize: complete")
	}

	return m.runs.GetRun(ctx, runID)
}
