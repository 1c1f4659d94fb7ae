package domain

import (
	"fmt"
	"strings"
	"time"
)

// RunState is a stage of the onboarding workflow state machine.
type RunState string

const (
	RunStateInit            RunState = "INIT"
	RunStateOrgLookup       RunState = "ORG_LOOKUP"
	RunStateContactFetch    RunState = "CONTACT_FETCH"
	RunStateProjectFetch    RunState = "PROJECT_FETCH"
	RunStateBatchProcessing RunState = "BATCH_PROCESSING"
	RunStateLandscapeUpdate RunState = "LANDSCAPE_UPDATE"
	RunStateReporting       RunState = "REPORTING"
	RunStateDone            RunState = "DONE"
	RunStateAborted         RunState = "ABORTED"
)

var runStateOrder = []RunState{
	RunStateInit,
	RunStateOrgLookup,
	RunStateContactFetch,
	RunStateProjectFetch,
	RunStateBatchProcessing,
	RunStateLandscapeUpdate,
	RunStateReporting,
	RunStateDone,
}

func (s RunState) String() string { return string(s) }

func (s RunState) IsValid() bool {
	if s == RunStateAborted {
		return true
	}
	for _, state := range runStateOrder {
		if state == s {
			return true
		}
	}
	return false
}

func (s RunState) IsTerminal() bool {
	return s == RunStateDone || s == RunStateAborted
}

// CanTransitionTo allows the next forward state and Aborted from any non-terminal state.
func (s RunState) CanTransitionTo(next RunState) bool {
	if s.IsTerminal() {
		return false
	}
	if next == RunStateAborted {
		return true
	}
	for i, state := range runStateOrder {
		if state == s {
			return i+1 < len(runStateOrder) && runStateOrder[i+1] == next
		}
	}
	return false
}

// RunStatus is the overall outcome of a workflow run.
type RunStatus string

const (
	RunStatusRunning        RunStatus = "RUNNING"
	RunStatusSuccess        RunStatus = "SUCCESS"
	RunStatusPartialFailure RunStatus = "PARTIAL_FAILURE"
	RunStatusAborted        RunStatus = "ABORTED"
)

func (s RunStatus) String() string { return string(s) }

func (s RunStatus) IsValid() bool {
	switch s {
	case RunStatusRunning, RunStatusSuccess, RunStatusPartialFailure, RunStatusAborted:
		return true
	}
	return false
}

func ParseRunStatusFromString(s string) (RunStatus, error) {
	st := RunStatus(strings.ToUpper(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", fmt.Errorf("%w: invalid run status %q", ErrValidation, s)
	}
	return st, nil
}

// LandscapeResult captures the best-effort landscape pull request.
type LandscapeResult struct {
	Attempted      bool
	Succeeded      bool
	Attempts       int
	PullRequestURL string
	Number         int
	Branch         string
	Error          string
}

// StepMetrics accumulates counts and timings for one pipeline step across a run.
type StepMetrics struct {
	Succeeded     int
	Failed        int
	Skipped       int
	TotalDuration time.Duration
	MaxDuration   time.Duration
}

func (m StepMetrics) Total() int { return m.Succeeded + m.Failed + m.Skipped }

// AverageDuration is computed over executed steps only.
func (m StepMetrics) AverageDuration() time.Duration {
	executed := m.Succeeded + m.Failed
	if executed == 0 {
		return 0
	}
	return m.TotalDuration / time.Duration(executed)
}

// CallMetrics accumulates outward attempts for one service operation.
type CallMetrics struct {
	Attempts      int
	Failures      int
	TotalDuration time.Duration
}

// RunMetrics is the aggregated timing and outcome report for a run.
type RunMetrics struct {
	Steps    map[Step]StepMetrics
	Calls    map[string]CallMetrics
	Outcomes map[OutcomeStatus]int
	Duration time.Duration
}

// WorkflowRun is the top-level aggregate for one organization and project pair.
type WorkflowRun struct {
	ID               string
	OrganizationName string
	ProjectSlug      string
	Organization     *Organization
	Project          *Project
	ContactCount     int
	BatchSize        int
	BatchesCompleted int
	Outcomes         []BatchOutcome
	Landscape        *LandscapeResult
	Metrics          *RunMetrics

	State       RunState
	Status      RunStatus
	AbortedIn   RunState
	AbortReason string

	// PersistenceErrors never change Status; they only degrade what was reported to the store.
	PersistenceErrors []string

	StartedAt   time.Time
	CompletedAt *time.Time
}

func NewWorkflowRun(id, organization, projectSlug string, startedAt time.Time) *WorkflowRun {
	return &WorkflowRun{
		ID:               id,
		OrganizationName: organization,
		ProjectSlug:      projectSlug,
		State:            RunStateInit,
		Status:           RunStatusRunning,
		StartedAt:        startedAt,
	}
}

// Transition moves the run to the next state or returns ErrConflict for an illegal move.
func (r *WorkflowRun) Transition(next RunState) error {
	if !r.State.CanTransitionTo(next) {
		return fmt.Errorf("%w: invalid run transition %s -> %s", ErrConflict, r.State, next)
	}
	r.State = next
	return nil
}

// Abort records the failing state and reason and moves the run to Aborted.
func (r *WorkflowRun) Abort(cause error) {
	if r.State.IsTerminal() {
		return
	}
	r.AbortedIn = r.State
	if cause != nil {
		r.AbortReason = cause.Error()
	}
	r.State = RunStateAborted
	r.Status = RunStatusAborted
}

// Finish sets the final status from the outcomes and landscape result. Aborted runs keep their status.
func (r *WorkflowRun) Finish(completedAt time.Time) {
	r.CompletedAt = &completedAt
	if r.Status == RunStatusAborted {
		return
	}

	r.Status = RunStatusSuccess
	for _, outcome := range r.Outcomes {
		if outcome.Status != OutcomeSuccess {
			r.Status = RunStatusPartialFailure
			break
		}
	}
	if r.Landscape != nil && r.Landscape.Attempted && !r.Landscape.Succeeded {
		r.Status = RunStatusPartialFailure
	}
}

func (r *WorkflowRun) RecordPersistenceError(err error) {
	if err == nil {
		return
	}
	r.PersistenceErrors = append(r.PersistenceErrors, err.Error())
}

func (r *WorkflowRun) OutcomeCounts() map[OutcomeStatus]int {
	counts := map[OutcomeStatus]int{
		OutcomeSuccess:        0,
		OutcomePartialFailure: 0,
		OutcomeFailure:        0,
	}
	for _, outcome := range r.Outcomes {
		counts[outcome.Status]++
	}
	return counts
}

// FailureRate is the share of processed contacts that did not fully succeed.
func (r *WorkflowRun) FailureRate() float64 {
	return FailureRate(r.Outcomes)
}

func FailureRate(outcomes []BatchOutcome) float64 {
	if len(outcomes) == 0 {
		return 0
	}
	failed := 0
	for _, outcome := range outcomes {
		if outcome.Status != OutcomeSuccess {
			failed++
		}
	}
	return float64(failed) / float64(len(outcomes))
}

func (r *WorkflowRun) Summary() RunSummary {
	counts := r.OutcomeCounts()
	summary := RunSummary{
		RunID:          r.ID,
		Organization:   r.OrganizationName,
		ProjectSlug:    r.ProjectSlug,
		Status:         r.Status,
		State:          r.State,
		AbortReason:    r.AbortReason,
		ContactCount:   r.ContactCount,
		Succeeded:      counts[OutcomeSuccess],
		PartialFailure: counts[OutcomePartialFailure],
		Failed:         counts[OutcomeFailure],
		StartedAt:      r.StartedAt,
		CompletedAt:    r.CompletedAt,
		Outcomes:       r.Outcomes,
	}
	if r.Organization != nil {
		summary.MemberID = r.Organization.MemberID
	}
	if r.Project != nil {
		summary.ProjectName = r.Project.DisplayName()
	}
	if r.Landscape != nil {
		summary.LandscapeAttempted = r.Landscape.Attempted
		summary.LandscapeURL = r.Landscape.PullRequestURL
		summary.LandscapeError = r.Landscape.Error
	}
	return summary
}

// RunSummary is the persisted read model of a run.
type RunSummary struct {
	RunID              string
	Organization       string
	MemberID           string
	ProjectSlug        string
	ProjectName        string
	Status             RunStatus
	State              RunState
	AbortReason        string
	ContactCount       int
	Succeeded          int
	PartialFailure     int
	Failed             int
	LandscapeAttempted bool
	LandscapeURL       string
	LandscapeError     string
	StartedAt          time.Time
	CompletedAt        *time.Time
	Outcomes           []BatchOutcome
}
