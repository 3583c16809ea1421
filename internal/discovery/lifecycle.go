package discovery

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Bulk lifecycle actions.
const (
	ActionArchive   = "archive"
	ActionUnarchive = "unarchive"
	ActionDelete    = "delete"
)

// BulkResult reports the outcome of one bulk lifecycle call.
type BulkResult struct {
	Action   string `json:"action"`
	Affected int64  `json:"affected"`
}

// Lifecycle implements run cancellation and bulk archive, unarchive
// and delete with their validation guards.
type Lifecycle struct {
	runs RunStore
}

// NewLifecycle creates a Lifecycle over the given run store.
func NewLifecycle(runs RunStore) *Lifecycle {
	return &Lifecycle{runs: runs}
}

// Cancel records a cancellation request against an active run. The
// request is applied with a single conditional update; when no row
// changes, the run is re-read to report why.
func (l *Lifecycle) Cancel(ctx context.Context, id, requestedBy string) error {
	n, err := l.runs.RequestCancel(ctx, id, requestedBy)
	if err != nil {
		return eris.Wrap(err, "lifecycle: request cancel")
	}
	if n > 0 {
		zap.L().Info("cancellation requested",
			zap.String("run_id", id),
			zap.String("requested_by", requestedBy),
		)
		return nil
	}

	run, err := l.runs.GetRun(ctx, id)
	if err != nil {
		return err
	}
	if run.CancelRequestedAt != nil && !run.Status.Terminal() {
		return eris.Wrapf(ErrCancelAlreadyRequested, "run %s", id)
	}
	return eris.Wrapf(ErrRunTerminal, "run %s is %s", id, run.Status)
}

// Bulk applies archive, unarchive or delete to a set of runs. The
// whole batch is validated before anything changes: every id must
// exist, and delete additionally requires every run to be archived.
// Validation failures reject the entire request.
func (l *Lifecycle) Bulk(ctx context.Context, action string, ids []string, actor string) (*BulkResult, error) {
	switch action {
	case ActionArchive, ActionUnarchive, ActionDelete:
	default:
		return nil, eris.Wrapf(ErrUnknownAction, "%q", action)
	}
	if len(ids) == 0 {
		return &BulkResult{Action: action}, nil
	}

	states, err := l.runs.ArchivalStates(ctx, ids)
	if err != nil {
		return nil, eris.Wrap(err, "lifecycle: load runs")
	}
	found := make(map[string]ArchivalState, len(states))
	for _, s := range states {
		found[s.ID] = s
	}
	var missing []string
	for _, id := range ids {
		if _, ok := found[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		return nil, eris.Wrapf(ErrRunsNotFound, "%v", missing)
	}

	if action == ActionDelete {
		var live []string
		for _, id := range ids {
			if found[id].ArchivedAt == nil {
				live = append(live, id)
			}
		}
		if len(live) > 0 {
			return nil, eris.Wrapf(ErrNotArchived, "%v", live)
		}
	}

	var n int64
	switch action {
	case ActionArchive:
		by := &actor
		if actor == "" {
			by = nil
		}
		n, err = l.runs.ArchiveRuns(ctx, ids, by)
	case ActionUnarchive:
		n, err = l.runs.UnarchiveRuns(ctx, ids)
	case ActionDelete:
		n, err = l.runs.DeleteRuns(ctx, ids)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "lifecycle: %s", action)
	}

	zap.L().Info("bulk lifecycle action applied",
		zap.String("action", action),
		zap.Int("requested", len(ids)),
		zap.Int64("affected", n),
	)
	return &BulkResult{Action: action, Affected: n}, nil
}
