package models

// Document is an external document layered into a run context, such as a mail
// message referenced by the trigger payload.
type Document struct {
	ID      string `json:"id"`
	Subject string `json:"subject,omitempty"`
	Body    string `json:"body"`
}

// RunContext is the ephemeral input assembled for a single run from the
// latest committed state plus fresh external data. It is never persisted.
type RunContext struct {
	RunID       string
	WorkflowID  string
	State       *WorkflowState
	TriggerData map[string]any
	Documents   []Document
	Variables   map[string]any
	StepOutputs map[string]string
}

// Artifact is a single output blob produced by a run.
type Artifact struct {
	Name string `json:"name"`
	Data []byte `json:"data"`
}

// RunResult is produced once per run by the engine and consumed by the
// committer, then discarded. Canceled marks a run stopped by shutdown before
// it could finish; such a result is never committed and the trigger returns
// to pending with no attempt charged.
type RunResult struct {
	NewStateData map[string]any
	Artifacts    []Artifact
	Success      bool
	Canceled     bool
	ErrorDetail  string
}

// CommitOutcome describes what the committer did with a run result.
type CommitOutcome string

const (
	// OutcomeCommitted: state advanced, artifacts written, trigger consumed.
	OutcomeCommitted CommitOutcome = "committed"
	// OutcomeAlreadyApplied: a prior interrupted commit had already advanced
	// the state; the trigger was marked consumed without re-applying.
	OutcomeAlreadyApplied CommitOutcome = "already_applied"
	// OutcomeConflict: the optimistic version guard rejected the commit; the
	// run must be redone from fresh context.
	OutcomeConflict CommitOutcome = "conflict"
	// OutcomeFailedRetryable: the run failed; the trigger returns to pending
	// with its attempt counter incremented.
	OutcomeFailedRetryable CommitOutcome = "failed_retryable"
	// OutcomeAbandoned: the attempt budget is exhausted; the trigger is
	// surfaced for operator attention and never retried automatically.
	OutcomeAbandoned CommitOutcome = "abandoned"
)
