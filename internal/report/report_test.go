package report

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kursadbilgin/onboarding-engine/internal/domain"
	"github.com/kursadbilgin/onboarding-engine/internal/retry"
)

func fixedClock(times ...time.Time) func() time.Time {
	var mu sync.Mutex
	i := 0
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t := times[i]
		if i < len(times)-1 {
			i++
		}
		return t
	}
}

func sampleOutcomes() []domain.BatchOutcome {
	return []domain.BatchOutcome{
		{
			ContactID: "cnt-001",
			Email:     "john@acme.test",
			Category:  domain.CategoryPrimary,
			Committee: "Governing Board",
			Index:     0,
			Status:    domain.OutcomeSuccess,
			Steps: []domain.StepResult{
				{Step: domain.StepClassify, Status: domain.StepStatusSucceeded},
				{Step: domain.StepCommittee, Status: domain.StepStatusSucceeded, Attempts: 1, Duration: 100 * time.Millisecond},
				{Step: domain.StepChat, Status: domain.StepStatusSucceeded, Attempts: 1, Duration: 200 * time.Millisecond},
				{Step: domain.StepEmail, Status: domain.StepStatusSucceeded, Attempts: 1, Duration: 50 * time.Millisecond},
			},
		},
		{
			ContactID: "cnt-002",
			Email:     "jane@acme.test",
			Category:  domain.CategoryMarketing,
			Committee: "Marketing Committee",
			Index:     1,
			Status:    domain.OutcomePartialFailure,
			Steps: []domain.StepResult{
				{Step: domain.StepClassify, Status: domain.StepStatusSucceeded},
				{Step: domain.StepCommittee, Status: domain.StepStatusSucceeded, Attempts: 1, Duration: 300 * time.Millisecond},
				{Step: domain.StepChat, Status: domain.StepStatusFailed, Attempts: 3, Reason: "chat invite failed", Duration: 400 * time.Millisecond},
				{Step: domain.StepEmail, Status: domain.StepStatusSucceeded, Attempts: 2, Duration: 50 * time.Millisecond},
			},
		},
	}
}

func TestAggregatorRecordsOutcomesAndAttempts(t *testing.T) {
	t.Parallel()

	start := time.Unix(100, 0)
	aggregator := NewAggregator(fixedClock(start, start.Add(3*time.Second)))

	for _, outcome := range sampleOutcomes() {
		aggregator.RecordOutcome(outcome)
	}
	aggregator.ObserveAttempt(retry.Attempt{Service: "chat", Operation: "invite", Number: 1, Err: errors.New("503"), Duration: time.Second})
	aggregator.ObserveAttempt(retry.Attempt{Service: "chat", Operation: "invite", Number: 2, Duration: time.Second})

	snapshot := aggregator.Snapshot()

	if snapshot.Outcomes[domain.OutcomeSuccess] != 1 || snapshot.Outcomes[domain.OutcomePartialFailure] != 1 {
		t.Fatalf("outcomes = %v", snapshot.Outcomes)
	}

	chat := snapshot.Steps[domain.StepChat]
	if chat.Succeeded != 1 || chat.Failed != 1 {
		t.Fatalf("chat metrics = %+v", chat)
	}
	if chat.MaxDuration != 400*time.Millisecond || chat.AverageDuration() != 300*time.Millisecond {
		t.Fatalf("chat durations max=%s avg=%s", chat.MaxDuration, chat.AverageDuration())
	}

	call := snapshot.Calls["chat.invite"]
	if call.Attempts != 2 || call.Failures != 1 || call.TotalDuration != 2*time.Second {
		t.Fatalf("chat.invite call metrics = %+v", call)
	}
	if snapshot.Duration != 3*time.Second {
		t.Fatalf("Duration = %s, want 3s", snapshot.Duration)
	}

	failed := aggregator.FailedSteps()
	if len(failed) != 1 || failed[domain.StepChat] != 1 {
		t.Fatalf("FailedSteps() = %v", failed)
	}
}

func TestAggregatorConcurrentUse(t *testing.T) {
	t.Parallel()

	aggregator := NewAggregator(nil)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			aggregator.RecordOutcome(domain.BatchOutcome{Status: domain.OutcomeSuccess})
			aggregator.ObserveAttempt(retry.Attempt{Service: "email", Operation: "send"})
		}()
	}
	wg.Wait()

	snapshot := aggregator.Snapshot()
	if snapshot.Outcomes[domain.OutcomeSuccess] != 20 || snapshot.Calls["email.send"].Attempts != 20 {
		t.Fatalf("snapshot = %+v", snapshot)
	}
}

func TestRenderTable(t *testing.T) {
	t.Parallel()

	aggregator := NewAggregator(nil)
	outcomes := sampleOutcomes()
	for _, outcome := range outcomes {
		aggregator.RecordOutcome(outcome)
	}
	metrics := aggregator.Snapshot()

	summary := domain.RunSummary{
		RunID:              "run-1",
		Organization:       "Acme Corp",
		ProjectSlug:        "cncf",
		Status:             domain.RunStatusPartialFailure,
		ContactCount:       2,
		Succeeded:          1,
		PartialFailure:     1,
		LandscapeAttempted: true,
		LandscapeURL:       "https://github.com/cncf/landscape/pull/1001",
		Outcomes:           outcomes,
	}

	var buf bytes.Buffer
	RenderTable(&buf, summary, &metrics)
	out := buf.String()

	for _, want := range []string{
		"Onboarding run run-1",
		"Acme Corp",
		"PARTIAL_FAILURE",
		"jane@acme.test",
		"failed (3 tries)",
		"https://github.com/cncf/landscape/pull/1001",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("RenderTable() output missing %q:\n%s", want, out)
		}
	}
}

func TestNewDocumentJSON(t *testing.T) {
	t.Parallel()

	metrics := domain.RunMetrics{
		Steps: map[domain.Step]domain.StepMetrics{
			domain.StepEmail: {Succeeded: 2, TotalDuration: 100 * time.Millisecond},
		},
		Duration: 1500 * time.Millisecond,
	}
	summary := domain.RunSummary{
		RunID:        "run-1",
		Organization: "Unknown Corp",
		ProjectSlug:  "cncf",
		Status:       domain.RunStatusAborted,
		State:        domain.RunStateAborted,
		AbortReason:  `organization "Unknown Corp" not found`,
	}

	raw, err := json.Marshal(NewDocument(summary, &metrics))
	if err != nil {
		t.Fatalf("json.Marshal() error = %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("json.Unmarshal() error = %v", err)
	}
	if decoded["status"] != "ABORTED" || decoded["abortReason"] == nil {
		t.Fatalf("document = %s", raw)
	}
	if _, ok := decoded["landscape"]; ok {
		t.Fatalf("landscape should be omitted when not attempted: %s", raw)
	}
	steps := decoded["steps"].(map[string]any)
	if steps["email"].(map[string]any)["averageMillis"].(float64) != 50 {
		t.Fatalf("email average = %v", steps["email"])
	}
}
