package discovery

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/prospect-cli/internal/intent"
)

// Engine owns the discovery run state machine. A run executes
// synchronously within the triggering invocation; cancellation is
// cooperative, polled between channel/query steps and never preemptive
// mid-query.
type Engine struct {
	runs     RunStore
	sources  *SourceRegistry
	resolver *intent.Resolver
	mat      *Materializer
}

// NewEngine creates an Engine with the given collaborators.
func NewEngine(runs RunStore, sources *SourceRegistry, resolver *intent.Resolver, mat *Materializer) *Engine {
	return &Engine{runs: runs, sources: sources, resolver: resolver, mat: mat}
}

// Start resolves the intent, creates the run record and executes it to
// a terminal state. Configuration errors surface before any run record
// exists; later failures land on the run as status=failed.
func (e *Engine) Start(ctx context.Context, req StartRequest) (*Run, error) {
	cfg, err := e.resolver.Resolve(req.IntentID, req.Overrides)
	if err != nil {
		return nil, err
	}

	mode := req.Mode
	if mode == "" {
		mode = ModeManual
	}
	triggeredBy := req.TriggeredBy
	if triggeredBy == "" {
		triggeredBy = ModeManual
	}

	now := time.Now().UTC()
	run := &Run{
		ID:            uuid.New().String(),
		Mode:          mode,
		TriggeredBy:   triggeredBy,
		TriggeredByID: req.TriggeredByID,
		SourceClass:   ClassifySource(mode, triggeredBy),
		IntentID:      cfg.IntentID,
		IntentName:    cfg.IntentName,
		Config:        cfg,
		DryRun:        req.DryRun,
		Status:        StatusPending,
		StartedAt:     now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := e.runs.CreateRun(ctx, run); err != nil {
		return nil, eris.Wrap(err, "engine: create run")
	}

	log := zap.L().With(
		zap.String("run_id", run.ID),
		zap.String("intent", cfg.IntentID),
		zap.Bool("dry_run", run.DryRun),
	)
	log.Info("run accepted",
		zap.Int("queries", cfg.QueriesCount),
		zap.Int("include_keywords", cfg.IncludeKeywordsCount),
		zap.Int("exclude_keywords", cfg.ExcludeKeywordsCount),
		zap.Strings("clamped", cfg.Clamped),
	)

	if err := e.runs.MarkRunning(ctx, run.ID); err != nil {
		e.failRun(ctx, run, eris.Wrap(err, "engine: mark running"))
		return run, eris.Wrap(err, "engine: mark running")
	}
	run.Status = StatusRunning

	e.executeRun(ctx, run, cfg, log)
	return run, nil
}

// executeRun drives the channel/query fan-out and finalizes the run.
// Every terminal transition happens here.
func (e *Engine) executeRun(ctx context.Context, run *Run, cfg *intent.ResolvedConfig, log *zap.Logger) {
	start := time.Now()
	budget := time.Duration(cfg.Limits.TimeBudgetMs) * time.Millisecond

	var (
		gathered     []Candidate
		sourceErrors []string
		cancelled    bool
		budgetSpent  bool
	)

steps:
	for _, channel := range cfg.Channels {
		// Checkpoint at least once per channel, plus once per query below.
		if cancelled, budgetSpent = e.checkpoint(ctx, run.ID, start, budget, log); cancelled || budgetSpent {
			break steps
		}

		for _, query := range cfg.Queries {
			if cancelled, budgetSpent = e.checkpoint(ctx, run.ID, start, budget, log); cancelled || budgetSpent {
				break steps
			}

			cands, err := e.sources.Search(ctx, channel, query)
			if err != nil {
				// Per-call failures are non-fatal; the run continues.
				log.Warn("source call failed",
					zap.String("channel", channel),
					zap.String("query", query),
					zap.Error(err),
				)
				sourceErrors = append(sourceErrors, err.Error())
				continue
			}
			gathered = append(gathered, cands...)
		}
	}

	filtered := FilterKeywords(gathered, cfg.IncludeKeywords, cfg.ExcludeKeywords)
	deduped := Dedupe(filtered)
	final := TopByScore(deduped, cfg.Limits.MaxCompanies)

	stats := map[string]any{
		"gathered":           len(gathered),
		"after_filter":       len(filtered),
		"total_after_dedupe": len(deduped),
		"source_errors":      len(sourceErrors),
		"duration_ms":        time.Since(start).Milliseconds(),
		"budget_exhausted":   budgetSpent,
	}

	switch {
	case cancelled:
		// Finalize whatever was gathered before the cancellation
		// checkpoint; the terminal status is always cancelled.
		e.finalize(ctx, run, Finalization{
			Status:  StatusCancelled,
			Results: final,
			Stats:   stats,
		}, log)

	case run.DryRun:
		status := StatusCompleted
		if len(sourceErrors) > 0 {
			status = StatusCompletedWithErrors
		}
		e.finalize(ctx, run, Finalization{
			Status:  status,
			Results: final,
			Stats:   stats,
		}, log)

	default:
		res, err := e.mat.Materialize(ctx, run.ID, final, cfg.Limits.MaxLeads)
		if err != nil {
			e.failRun(ctx, run, eris.Wrap(err, "engine: materialize"))
			return
		}
		status := StatusCompleted
		if len(res.Errors) > 0 || len(sourceErrors) > 0 {
			status = StatusCompletedWithErrors
		}
		e.finalize(ctx, run, Finalization{
			Status:  status,
			Results: final,
			Stats:   stats,
			Counts:  *res,
		}, log)
	}
}

// checkpoint polls the cooperative cancellation flag and the time
// budget. Store errors while polling are logged and ignored; a run is
// never failed by its own checkpoint.
func (e *Engine) checkpoint(ctx context.Context, runID string, start time.Time, budget time.Duration, log *zap.Logger) (cancelled, budgetSpent bool) {
	if ctx.Err() != nil {
		log.Warn("context cancelled, stopping run", zap.Error(ctx.Err()))
		return true, false
	}

	requested, err := e.runs.CancelRequested(ctx, runID)
	if err != nil {
		log.Warn("cancel poll failed", zap.Error(err))
	} else if requested {
		log.Info("cancellation observed at checkpoint")
		return true, false
	}

	if budget > 0 && time.Since(start) >= budget {
		log.Info("time budget exhausted", zap.Duration("budget", budget))
		return false, true
	}
	return false, false
}

func (e *Engine) finalize(ctx context.Context, run *Run, fin Finalization, log *zap.Logger) {
	if err := e.runs.FinalizeRun(ctx, run.ID, fin); err != nil {
		e.failRun(ctx, run, eris.Wrap(err, "engine: finalize run"))
		return
	}
	run.Status = fin.Status
	run.Results = fin.Results
	run.Stats = fin.Stats
	run.CreatedCompaniesCount = fin.Counts.CompaniesCreated
	run.CreatedContactsCount = fin.Counts.ContactsCreated
	run.CreatedLeadsCount = fin.Counts.LeadsCreated
	run.SkippedCount = fin.Counts.CompaniesSkipped + fin.Counts.ContactsSkipped + fin.Counts.LeadsSkipped
	run.ErrorCount = len(fin.Counts.Errors)

	if len(fin.Results) > 0 {
		if _, err := e.runs.AppendCandidateAudit(ctx, run.ID, fin.Results); err != nil {
			log.Warn("candidate audit write failed", zap.Error(err))
		}
	}

	log.Info("run finalized",
		zap.String("status", string(fin.Status)),
		zap.Int("results", len(fin.Results)),
		zap.Int("companies_created", fin.Counts.CompaniesCreated),
		zap.Int("errors", len(fin.Counts.Errors)),
	)
}

func (e *Engine) failRun(ctx context.Context, run *Run, cause error) {
	zap.L().Error("run failed", zap.String("run_id", run.ID), zap.Error(cause))
	msg := cause.Error()
	run.Status = StatusFailed
	run.Error = &msg
	if err := e.runs.FinalizeRun(ctx, run.ID, Finalization{Status: StatusFailed, Error: msg}); err != nil {
		zap.L().Error("recording run failure failed", zap.String("run_id", run.ID), zap.Error(err))
	}
}
