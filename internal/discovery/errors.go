package discovery

import "github.com/rotisserie/eris"

// Invariant-violation errors. These reject caller mistakes before any
// mutation and never partially apply.
var (
	// ErrRunNotFound indicates the run id does not exist.
	ErrRunNotFound = eris.New("discovery: run not found")

	// ErrRunsNotFound indicates a bulk action referenced at least one
	// missing run id; the whole batch is rejected.
	ErrRunsNotFound = eris.New("discovery: some runs not found")

	// ErrCancelAlreadyRequested indicates the run already has a pending
	// cancellation request.
	ErrCancelAlreadyRequested = eris.New("discovery: cancellation already requested")

	// ErrRunTerminal indicates the run is in a terminal state and cannot
	// be cancelled.
	ErrRunTerminal = eris.New("discovery: run already in terminal state")

	// ErrNotDryRun indicates the run has already been materialized (or
	// was never a preview); materialization is one-way and at-most-once.
	ErrNotDryRun = eris.New("discovery: run is not a dry run")

	// ErrEmptyResults indicates the run has no candidate results to
	// materialize.
	ErrEmptyResults = eris.New("discovery: run has no results")

	// ErrNotArchived indicates a bulk delete targeted a run that is not
	// archived; no runs in the batch are deleted.
	ErrNotArchived = eris.New("discovery: run not archived")

	// ErrUnknownAction indicates an unrecognized bulk lifecycle action.
	ErrUnknownAction = eris.New("discovery: unknown bulk action")

	// ErrUnknownChannel indicates a resolved config referenced a channel
	// with no registered searcher. Non-fatal at the engine: the
	// channel's steps are recorded as source errors.
	ErrUnknownChannel = eris.New("discovery: unknown channel")
)
