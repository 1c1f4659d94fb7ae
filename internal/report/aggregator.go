// Package report aggregates per-step timings and outcomes of a run and renders them.
package report

import (
	"sync"
	"time"

	"github.com/kursadbilgin/onboarding-engine/internal/domain"
	"github.com/kursadbilgin/onboarding-engine/internal/retry"
)

// Aggregator accumulates metrics for a single run. It is safe for concurrent use by batch workers.
type Aggregator struct {
	mu       sync.Mutex
	now      func() time.Time
	started  time.Time
	steps    map[domain.Step]domain.StepMetrics
	calls    map[string]domain.CallMetrics
	outcomes map[domain.OutcomeStatus]int
}

func NewAggregator(now func() time.Time) *Aggregator {
	if now == nil {
		now = time.Now
	}
	return &Aggregator{
		now:      now,
		started:  now(),
		steps:    make(map[domain.Step]domain.StepMetrics),
		calls:    make(map[string]domain.CallMetrics),
		outcomes: make(map[domain.OutcomeStatus]int),
	}
}

// ObserveAttempt implements retry.Observer.
func (a *Aggregator) ObserveAttempt(attempt retry.Attempt) {
	key := attempt.Service + "." + attempt.Operation

	a.mu.Lock()
	defer a.mu.Unlock()

	call := a.calls[key]
	call.Attempts++
	if attempt.Err != nil {
		call.Failures++
	}
	call.TotalDuration += attempt.Duration
	a.calls[key] = call
}

func (a *Aggregator) RecordOutcome(outcome domain.BatchOutcome) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.outcomes[outcome.Status]++
	for _, step := range outcome.Steps {
		m := a.steps[step.Step]
		switch step.Status {
		case domain.StepStatusSucceeded:
			m.Succeeded++
		case domain.StepStatusFailed:
			m.Failed++
		case domain.StepStatusSkipped:
			m.Skipped++
		}
		m.TotalDuration += step.Duration
		if step.Duration > m.MaxDuration {
			m.MaxDuration = step.Duration
		}
		a.steps[step.Step] = m
	}
}

// FailedSteps returns failure counts per step so far.
func (a *Aggregator) FailedSteps() map[domain.Step]int {
	a.mu.Lock()
	defer a.mu.Unlock()

	failed := make(map[domain.Step]int, len(a.steps))
	for step, m := range a.steps {
		if m.Failed > 0 {
			failed[step] = m.Failed
		}
	}
	return failed
}

// Snapshot copies the current state into a RunMetrics value.
func (a *Aggregator) Snapshot() domain.RunMetrics {
	a.mu.Lock()
	defer a.mu.Unlock()

	snapshot := domain.RunMetrics{
		Steps:    make(map[domain.Step]domain.StepMetrics, len(a.steps)),
		Calls:    make(map[string]domain.CallMetrics, len(a.calls)),
		Outcomes: make(map[domain.OutcomeStatus]int, len(a.outcomes)),
		Duration: a.now().Sub(a.started),
	}
	for k, v := range a.steps {
		snapshot.Steps[k] = v
	}
	for k, v := range a.calls {
		snapshot.Calls[k] = v
	}
	for k, v := range a.outcomes {
		snapshot.Outcomes[k] = v
	}
	return snapshot
}
