package domain

import (
	"errors"
	"testing"
	"time"
)

func TestRunStateTransitions(t *testing.T) {
	t.Parallel()

	run := NewWorkflowRun("run-1", "Acme Corp", "cncf", time.Unix(0, 0))

	for _, next := range []RunState{
		RunStateOrgLookup,
		RunStateContactFetch,
		RunStateProjectFetch,
		RunStateBatchProcessing,
		RunStateLandscapeUpdate,
		RunStateReporting,
		RunStateDone,
	} {
		if err := run.Transition(next); err != nil {
			t.Fatalf("Transition(%s) unexpected error = %v", next, err)
		}
	}

	if err := run.Transition(RunStateAborted); !errors.Is(err, ErrConflict) {
		t.Fatalf("Transition from DONE error = %v, want ErrConflict", err)
	}
}

func TestRunStateRejectsSkippingStates(t *testing.T) {
	t.Parallel()

	run := NewWorkflowRun("run-1", "Acme Corp", "cncf", time.Unix(0, 0))
	if err := run.Transition(RunStateBatchProcessing); !errors.Is(err, ErrConflict) {
		t.Fatalf("Transition() error = %v, want ErrConflict", err)
	}
	if run.State != RunStateInit {
		t.Fatalf("State = %s, want INIT", run.State)
	}
}

func TestWorkflowRunAbort(t *testing.T) {
	t.Parallel()

	run := NewWorkflowRun("run-1", "Unknown Corp", "cncf", time.Unix(0, 0))
	if err := run.Transition(RunStateOrgLookup); err != nil {
		t.Fatalf("Transition() unexpected error = %v", err)
	}

	run.Abort(&OrganizationNotFoundError{Name: "Unknown Corp"})
	run.Finish(time.Unix(10, 0))

	if run.State != RunStateAborted || run.Status != RunStatusAborted {
		t.Fatalf("state/status = %s/%s, want ABORTED/ABORTED", run.State, run.Status)
	}
	if run.AbortedIn != RunStateOrgLookup {
		t.Fatalf("AbortedIn = %s, want ORG_LOOKUP", run.AbortedIn)
	}
	if run.AbortReason == "" {
		t.Fatalf("AbortReason should be set")
	}
	if run.CompletedAt == nil {
		t.Fatalf("CompletedAt should be set")
	}
}

func TestWorkflowRunFinishStatus(t *testing.T) {
	t.Parallel()

	success := BatchOutcome{Status: OutcomeSuccess}
	partial := BatchOutcome{Status: OutcomePartialFailure}

	tests := []struct {
		name      string
		outcomes  []BatchOutcome
		landscape *LandscapeResult
		want      RunStatus
	}{
		{
			name:      "all success",
			outcomes:  []BatchOutcome{success, success},
			landscape: &LandscapeResult{Attempted: true, Succeeded: true},
			want:      RunStatusSuccess,
		},
		{
			name:     "no contacts",
			outcomes: nil,
			want:     RunStatusSuccess,
		},
		{
			name:      "one partial contact",
			outcomes:  []BatchOutcome{success, partial},
			landscape: &LandscapeResult{Attempted: true, Succeeded: true},
			want:      RunStatusPartialFailure,
		},
		{
			name:      "landscape failure downgrades",
			outcomes:  []BatchOutcome{success},
			landscape: &LandscapeResult{Attempted: true, Error: "boom"},
			want:      RunStatusPartialFailure,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			run := NewWorkflowRun("run-1", "Acme Corp", "cncf", time.Unix(0, 0))
			run.Outcomes = tt.outcomes
			run.Landscape = tt.landscape
			run.Finish(time.Unix(1, 0))

			if run.Status != tt.want {
				t.Fatalf("Status = %s, want %s", run.Status, tt.want)
			}
		})
	}
}

func TestWorkflowRunSummary(t *testing.T) {
	t.Parallel()

	run := NewWorkflowRun("run-1", "Acme Corp", "cncf", time.Unix(0, 0))
	run.Organization = &Organization{Name: "Acme Corp", MemberID: "mem-1"}
	run.Project = &Project{Slug: "cncf", Name: "Cloud Native Computing Foundation"}
	run.ContactCount = 3
	run.Outcomes = []BatchOutcome{
		{Status: OutcomeSuccess},
		{Status: OutcomeFailure},
		{Status: OutcomeSuccess},
	}
	run.Landscape = &LandscapeResult{Attempted: true, Succeeded: true, PullRequestURL: "https://example.test/pr/1"}
	run.Finish(time.Unix(5, 0))

	summary := run.Summary()
	if summary.Succeeded != 2 || summary.Failed != 1 || summary.PartialFailure != 0 {
		t.Fatalf("Summary() counts = %+v", summary)
	}
	if summary.MemberID != "mem-1" || summary.ProjectName != "Cloud Native Computing Foundation" {
		t.Fatalf("Summary() member/project = %q/%q", summary.MemberID, summary.ProjectName)
	}
	if summary.LandscapeURL != "https://example.test/pr/1" {
		t.Fatalf("Summary() landscape url = %q", summary.LandscapeURL)
	}
	if got := run.FailureRate(); got < 0.33 || got > 0.34 {
		t.Fatalf("FailureRate() = %v, want ~0.333", got)
	}
}
