package domain

import (
	"fmt"
	"strings"
	"time"
)

// Step identifies one stage of the per-contact pipeline.
type Step string

const (
	StepClassify  Step = "classify"
	StepCommittee Step = "committee"
	StepChat      Step = "chat"
	StepEmail     Step = "email"

	// StepDispatch marks contacts that never entered the pipeline, e.g. after cancellation.
	StepDispatch Step = "dispatch"
)

func (s Step) String() string { return string(s) }

func (s Step) IsValid() bool {
	switch s {
	case StepClassify, StepCommittee, StepChat, StepEmail, StepDispatch:
		return true
	}
	return false
}

func ParseStepFromString(s string) (Step, error) {
	st := Step(strings.ToLower(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", fmt.Errorf("%w: invalid step %q", ErrValidation, s)
	}
	return st, nil
}

// StepStatus is the result of a single pipeline step.
type StepStatus string

const (
	StepStatusSucceeded StepStatus = "SUCCEEDED"
	StepStatusFailed    StepStatus = "FAILED"
	StepStatusSkipped   StepStatus = "SKIPPED"
)

func (s StepStatus) String() string { return string(s) }

func (s StepStatus) IsValid() bool {
	switch s {
	case StepStatusSucceeded, StepStatusFailed, StepStatusSkipped:
		return true
	}
	return false
}

func ParseStepStatusFromString(s string) (StepStatus, error) {
	st := StepStatus(strings.ToUpper(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", fmt.Errorf("%w: invalid step status %q", ErrValidation, s)
	}
	return st, nil
}

// StepResult records one step for one contact, including how many outward attempts it took.
type StepResult struct {
	Step          Step
	Status        StepStatus
	Attempts      int
	Reason        string
	AlreadyMember bool
	Duration      time.Duration
}

// OutcomeStatus is the overall result for a contact.
type OutcomeStatus string

const (
	OutcomeSuccess        OutcomeStatus = "SUCCESS"
	OutcomePartialFailure OutcomeStatus = "PARTIAL_FAILURE"
	OutcomeFailure        OutcomeStatus = "FAILURE"
)

func (s OutcomeStatus) String() string { return string(s) }

func (s OutcomeStatus) IsValid() bool {
	switch s {
	case OutcomeSuccess, OutcomePartialFailure, OutcomeFailure:
		return true
	}
	return false
}

func ParseOutcomeStatusFromString(s string) (OutcomeStatus, error) {
	st := OutcomeStatus(strings.ToUpper(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", fmt.Errorf("%w: invalid outcome status %q", ErrValidation, s)
	}
	return st, nil
}

// ComputeOutcomeStatus derives the contact status from its outward steps. Classification is local and
// is not counted as an attempted step.
func ComputeOutcomeStatus(steps []StepResult) OutcomeStatus {
	var succeeded, failed, skipped int
	for _, step := range steps {
		if step.Step == StepClassify {
			continue
		}
		switch step.Status {
		case StepStatusSucceeded:
			succeeded++
		case StepStatusFailed:
			failed++
		case StepStatusSkipped:
			skipped++
		}
	}

	switch {
	case succeeded == 0:
		return OutcomeFailure
	case failed == 0 && skipped == 0:
		return OutcomeSuccess
	default:
		return OutcomePartialFailure
	}
}

// BatchOutcome is the immutable per-contact result produced by the batch processor.
type BatchOutcome struct {
	ID          string
	RunID       string
	ContactID   string
	ContactName string
	Email       string
	Title       string
	Category    Category
	Committee   string
	CommitteeID string
	BatchNumber int
	Index       int
	Steps       []StepResult
	Status      OutcomeStatus
	CompletedAt time.Time
}

// Step returns the recorded result for a step, if any.
func (o BatchOutcome) Step(step Step) (StepResult, bool) {
	for _, result := range o.Steps {
		if result.Step == step {
			return result, true
		}
	}
	return StepResult{}, false
}

// FailedSteps lists the steps that failed, in pipeline order.
func (o BatchOutcome) FailedSteps() []StepResult {
	var failed []StepResult
	for _, result := range o.Steps {
		if result.Status == StepStatusFailed {
			failed = append(failed, result)
		}
	}
	return failed
}
