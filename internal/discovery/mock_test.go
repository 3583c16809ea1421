package discovery

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/sells-group/prospect-cli/internal/company"
)

func nowPtr() *time.Time {
	t := time.Now().UTC()
	return &t
}

// mockRunStore implements RunStore in memory for testing.
type mockRunStore struct {
	mu   sync.Mutex
	runs map[string]*Run

	// cancelAfterPolls makes CancelRequested return true once the poll
	// count reaches the threshold (0 = never).
	cancelAfterPolls int
	pollCount        int

	finalized     []Finalization
	auditByRun    map[string][]Candidate
	createErr     error
	markErr       error
	finalizeErr   error
	deletedIDs    []string
	archivedIDs   []string
	unarchivedIDs []string
}

func newMockRunStore() *mockRunStore {
	return &mockRunStore{
		runs:       make(map[string]*Run),
		auditByRun: make(map[string][]Candidate),
	}
}

func (m *mockRunStore) CreateRun(_ context.Context, run *Run) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *run
	m.runs[run.ID] = &cp
	return nil
}

func (m *mockRunStore) GetRun(_ context.Context, id string) (*Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[id]
	if !ok {
		return nil, ErrRunNotFound
	}
	cp := *run
	return &cp, nil
}

func (m *mockRunStore) ListRuns(_ context.Context, filter RunFilter) ([]Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Run
	for _, run := range m.runs {
		if filter.Archived != nil && *filter.Archived != (run.ArchivedAt != nil) {
			continue
		}
		if filter.SourceClass != "" && run.SourceClass != filter.SourceClass {
			continue
		}
		if filter.Status != "" && run.Status != filter.Status {
			continue
		}
		out = append(out, *run)
	}
	return out, nil
}

func (m *mockRunStore) MarkRunning(_ context.Context, id string) error {
	if m.markErr != nil {
		return m.markErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if run, ok := m.runs[id]; ok && run.Status == StatusPending {
		run.Status = StatusRunning
	}
	return nil
}

func (m *mockRunStore) FinalizeRun(_ context.Context, id string, fin Finalization) error {
	if m.finalizeErr != nil {
		return m.finalizeErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.finalized = append(m.finalized, fin)
	if run, ok := m.runs[id]; ok {
		run.Status = fin.Status
		run.Results = fin.Results
		run.Stats = fin.Stats
		if fin.Error != "" {
			msg := fin.Error
			run.Error = &msg
		}
	}
	return nil
}

func (m *mockRunStore) CancelRequested(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pollCount++
	if m.cancelAfterPolls > 0 && m.pollCount >= m.cancelAfterPolls {
		return true, nil
	}
	if run, ok := m.runs[id]; ok {
		return run.CancelRequestedAt != nil, nil
	}
	return false, nil
}

func (m *mockRunStore) RequestCancel(_ context.Context, id, requestedBy string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[id]
	if !ok {
		return 0, nil
	}
	if run.Status.Terminal() || run.CancelRequestedAt != nil {
		return 0, nil
	}
	now := nowPtr()
	run.CancelRequestedAt = now
	run.CancelRequestedBy = &requestedBy
	return 1, nil
}

func (m *mockRunStore) ClaimMaterialization(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[id]
	if !ok || !run.DryRun {
		return false, nil
	}
	run.DryRun = false
	return true, nil
}

func (m *mockRunStore) CompleteMaterialization(_ context.Context, id string, res MaterializeResult, status Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if run, ok := m.runs[id]; ok {
		run.Status = status
		run.CreatedCompaniesCount = res.CompaniesCreated
		run.CreatedContactsCount = res.ContactsCreated
		run.CreatedLeadsCount = res.LeadsCreated
		run.SkippedCount = res.CompaniesSkipped + res.ContactsSkipped + res.LeadsSkipped
		run.ErrorCount = len(res.Errors)
	}
	return nil
}

func (m *mockRunStore) ArchivalStates(_ context.Context, ids []string) ([]ArchivalState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var states []ArchivalState
	for _, id := range ids {
		if run, ok := m.runs[id]; ok {
			states = append(states, ArchivalState{ID: id, ArchivedAt: run.ArchivedAt})
		}
	}
	return states, nil
}

func (m *mockRunStore) ArchiveRuns(_ context.Context, ids []string, archivedBy *string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, id := range ids {
		if run, ok := m.runs[id]; ok && run.ArchivedAt == nil {
			run.ArchivedAt = nowPtr()
			run.ArchivedByID = archivedBy
			m.archivedIDs = append(m.archivedIDs, id)
			n++
		}
	}
	return n, nil
}

func (m *mockRunStore) UnarchiveRuns(_ context.Context, ids []string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, id := range ids {
		if run, ok := m.runs[id]; ok && run.ArchivedAt != nil {
			run.ArchivedAt = nil
			run.ArchivedByID = nil
			m.unarchivedIDs = append(m.unarchivedIDs, id)
			n++
		}
	}
	return n, nil
}

func (m *mockRunStore) DeleteRuns(_ context.Context, ids []string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, id := range ids {
		if _, ok := m.runs[id]; ok {
			delete(m.runs, id)
			m.deletedIDs = append(m.deletedIDs, id)
			n++
		}
	}
	return n, nil
}

func (m *mockRunStore) AppendCandidateAudit(_ context.Context, runID string, cands []Candidate) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.auditByRun[runID] = append(m.auditByRun[runID], cands...)
	return int64(len(cands)), nil
}

func (m *mockRunStore) Migrate(_ context.Context) error { return nil }
func (m *mockRunStore) Close() error                    { return nil }

// mockSearcher implements Searcher with canned per-query results.
type mockSearcher struct {
	results map[string][]Candidate
	err     error
	calls   []string
}

func (m *mockSearcher) Search(_ context.Context, query string) ([]Candidate, error) {
	m.calls = append(m.calls, query)
	if m.err != nil {
		return nil, m.err
	}
	return m.results[query], nil
}

// mockCompanyStore implements company.Store in memory.
type mockCompanyStore struct {
	nextID    int64
	companies []*company.Company
	contacts  []*company.Contact
	leads     []*company.Lead

	createCompanyErr error
	createContactErr error
	createLeadErr    error
	findErr          error

	// conflictDomains simulates a unique-index race: CreateCompany on a
	// listed domain returns created=false without inserting.
	conflictDomains map[string]bool
}

func (m *mockCompanyStore) CreateCompany(_ context.Context, c *company.Company) (bool, error) {
	if m.createCompanyErr != nil {
		return false, m.createCompanyErr
	}
	if m.conflictDomains[c.Domain] {
		return false, nil
	}
	m.nextID++
	c.ID = m.nextID
	cp := *c
	m.companies = append(m.companies, &cp)
	return true, nil
}

func (m *mockCompanyStore) FindByDomain(_ context.Context, domain string) (*company.Company, error) {
	if m.findErr != nil {
		return nil, m.findErr
	}
	for _, c := range m.companies {
		if c.Domain != "" && c.Domain == domain {
			return c, nil
		}
	}
	return nil, nil
}

func (m *mockCompanyStore) FindByDomainContaining(_ context.Context, domain string) (*company.Company, error) {
	if m.findErr != nil {
		return nil, m.findErr
	}
	for _, c := range m.companies {
		if c.Domain == "" {
			continue
		}
		if strings.Contains(c.Domain, domain) || strings.Contains(domain, c.Domain) {
			return c, nil
		}
	}
	return nil, nil
}

func (m *mockCompanyStore) FindByName(_ context.Context, name string) (*company.Company, error) {
	if m.findErr != nil {
		return nil, m.findErr
	}
	for _, c := range m.companies {
		if strings.EqualFold(strings.TrimSpace(c.Name), strings.TrimSpace(name)) {
			return c, nil
		}
	}
	return nil, nil
}

func (m *mockCompanyStore) CreateContact(_ context.Context, c *company.Contact) error {
	if m.createContactErr != nil {
		return m.createContactErr
	}
	m.nextID++
	c.ID = m.nextID
	cp := *c
	m.contacts = append(m.contacts, &cp)
	return nil
}

func (m *mockCompanyStore) CreateLead(_ context.Context, l *company.Lead) error {
	if m.createLeadErr != nil {
		return m.createLeadErr
	}
	m.nextID++
	l.ID = m.nextID
	cp := *l
	m.leads = append(m.leads, &cp)
	return nil
}

func (m *mockCompanyStore) Migrate(_ context.Context) error { return nil }
