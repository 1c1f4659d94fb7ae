package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/onboarding-engine/internal/domain"
	"github.com/kursadbilgin/onboarding-engine/internal/repository"
	goredis "github.com/redis/go-redis/v9"
)

const (
	defaultRecordTTL = 7 * 24 * time.Hour
	keyPrefix        = "onboarding:run:"
)

var _ repository.RunRepository = (*RunJournal)(nil)

// RunJournal stores runs as a JSON record plus an append-only list of outcomes.
// Each outcome is a single RPUSH so concurrent contact workers need no extra locking.
type RunJournal struct {
	client *goredis.Client
	ttl    time.Duration
}

func NewRunJournal(client *goredis.Client, ttl time.Duration) (*RunJournal, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if ttl <= 0 {
		ttl = defaultRecordTTL
	}
	return &RunJournal{client: client, ttl: ttl}, nil
}

type runRecord struct {
	ID                 string     `json:"id"`
	OrganizationName   string     `json:"organizationName"`
	MemberID           string     `json:"memberId,omitempty"`
	ProjectSlug        string     `json:"projectSlug"`
	ProjectName        string     `json:"projectName,omitempty"`
	ContactCount       int        `json:"contactCount"`
	BatchSize          int        `json:"batchSize"`
	BatchesCompleted   int        `json:"batchesCompleted"`
	State              string     `json:"state"`
	Status             string     `json:"status"`
	AbortedIn          string     `json:"abortedIn,omitempty"`
	AbortReason        string     `json:"abortReason,omitempty"`
	LandscapeAttempted bool       `json:"landscapeAttempted"`
	LandscapeURL       string     `json:"landscapeUrl,omitempty"`
	LandscapeError     string     `json:"landscapeError,omitempty"`
	StartedAt          time.Time  `json:"startedAt"`
	CompletedAt        *time.Time `json:"completedAt,omitempty"`
}

type outcomeRecord struct {
	ID          string       `json:"id"`
	ContactID   string       `json:"contactId"`
	ContactName string       `json:"contactName,omitempty"`
	Email       string       `json:"email"`
	Title       string       `json:"title,omitempty"`
	Category    string       `json:"category"`
	Committee   string       `json:"committee,omitempty"`
	CommitteeID string       `json:"committeeId,omitempty"`
	BatchNumber int          `json:"batch"`
	Index       int          `json:"index"`
	Status      string       `json:"status"`
	Steps       []stepRecord `json:"steps"`
	CompletedAt time.Time    `json:"completedAt"`
}

type stepRecord struct {
	Step           string `json:"step"`
	Status         string `json:"status"`
	Attempts       int    `json:"attempts,omitempty"`
	Reason         string `json:"reason,omitempty"`
	AlreadyMember  bool   `json:"alreadyMember,omitempty"`
	DurationMillis int64  `json:"durationMillis"`
}

func (j *RunJournal) CreateRun(ctx context.Context, run *domain.WorkflowRun) error {
	if run == nil || run.ID == "" {
		return fmt.Errorf("%w: run id is required", domain.ErrValidation)
	}

	payload, err := json.Marshal(newRunRecord(run))
	if err != nil {
		return &domain.PersistenceError{Op: "create run", Cause: err}
	}

	created, err := j.client.SetNX(ctx, runKey(run.ID), payload, j.ttl).Result()
	if err != nil {
		return &domain.PersistenceError{Op: "create run", Cause: err}
	}
	if !created {
		return &domain.PersistenceError{Op: "create run", Cause: fmt.Errorf("%w: run %q already exists", domain.ErrConflict, run.ID)}
	}
	return nil
}

func (j *RunJournal) AppendOutcome(ctx context.Context, runID string, outcome domain.BatchOutcome) error {
	if runID == "" {
		return fmt.Errorf("%w: run id is required", domain.ErrValidation)
	}
	if outcome.ID == "" {
		outcome.ID = uuid.NewString()
	}

	payload, err := json.Marshal(newOutcomeRecord(outcome))
	if err != nil {
		return &domain.PersistenceError{Op: "append outcome", Cause: err}
	}

	_, err = j.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.RPush(ctx, outcomesKey(runID), payload)
		pipe.Expire(ctx, outcomesKey(runID), j.ttl)
		return nil
	})
	if err != nil {
		return &domain.PersistenceError{Op: "append outcome", Cause: err}
	}
	return nil
}

func (j *RunJournal) FinalizeRun(ctx context.Context, run *domain.WorkflowRun) error {
	if run == nil || run.ID == "" {
		return fmt.Errorf("%w: run id is required", domain.ErrValidation)
	}

	payload, err := json.Marshal(newRunRecord(run))
	if err != nil {
		return &domain.PersistenceError{Op: "finalize run", Cause: err}
	}

	updated, err := j.client.SetXX(ctx, runKey(run.ID), payload, j.ttl).Result()
	if err != nil {
		return &domain.PersistenceError{Op: "finalize run", Cause: err}
	}
	if !updated {
		return &domain.PersistenceError{Op: "finalize run", Cause: fmt.Errorf("%w: run %q", domain.ErrNotFound, run.ID)}
	}
	return nil
}

func (j *RunJournal) GetSummary(ctx context.Context, runID string) (*domain.RunSummary, error) {
	raw, err := j.client.Get(ctx, runKey(runID)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, fmt.Errorf("%w: run %q", domain.ErrNotFound, runID)
	}
	if err != nil {
		return nil, &domain.PersistenceError{Op: "get run", Cause: err}
	}

	var record runRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, &domain.PersistenceError{Op: "get run", Cause: err}
	}

	items, err := j.client.LRange(ctx, outcomesKey(runID), 0, -1).Result()
	if err != nil {
		return nil, &domain.PersistenceError{Op: "list outcomes", Cause: err}
	}

	outcomes := make([]domain.BatchOutcome, 0, len(items))
	for _, item := range items {
		var o outcomeRecord
		if err := json.Unmarshal([]byte(item), &o); err != nil {
			return nil, &domain.PersistenceError{Op: "list outcomes", Cause: err}
		}
		outcomes = append(outcomes, o.toDomain(runID))
	}
	sort.SliceStable(outcomes, func(a, b int) bool { return outcomes[a].Index < outcomes[b].Index })

	return record.toSummary(outcomes), nil
}

func runKey(runID string) string {
	return keyPrefix + runID
}

func outcomesKey(runID string) string {
	return keyPrefix + runID + ":outcomes"
}

func newRunRecord(run *domain.WorkflowRun) runRecord {
	record := runRecord{
		ID:               run.ID,
		OrganizationName: run.OrganizationName,
		ProjectSlug:      run.ProjectSlug,
		ContactCount:     run.ContactCount,
		BatchSize:        run.BatchSize,
		BatchesCompleted: run.BatchesCompleted,
		State:            run.State.String(),
		Status:           run.Status.String(),
		AbortedIn:        run.AbortedIn.String(),
		AbortReason:      run.AbortReason,
		StartedAt:        run.StartedAt,
		CompletedAt:      run.CompletedAt,
	}
	if run.Organization != nil {
		record.MemberID = run.Organization.MemberID
	}
	if run.Project != nil {
		record.ProjectName = run.Project.DisplayName()
	}
	if run.Landscape != nil {
		record.LandscapeAttempted = run.Landscape.Attempted
		record.LandscapeURL = run.Landscape.PullRequestURL
		record.LandscapeError = run.Landscape.Error
	}
	return record
}

func (r runRecord) toSummary(outcomes []domain.BatchOutcome) *domain.RunSummary {
	summary := &domain.RunSummary{
		RunID:              r.ID,
		Organization:       r.OrganizationName,
		MemberID:           r.MemberID,
		ProjectSlug:        r.ProjectSlug,
		ProjectName:        r.ProjectName,
		Status:             domain.RunStatus(r.Status),
		State:              domain.RunState(r.State),
		AbortReason:        r.AbortReason,
		ContactCount:       r.ContactCount,
		LandscapeAttempted: r.LandscapeAttempted,
		LandscapeURL:       r.LandscapeURL,
		LandscapeError:     r.LandscapeError,
		StartedAt:          r.StartedAt,
		CompletedAt:        r.CompletedAt,
		Outcomes:           outcomes,
	}
	for _, outcome := range outcomes {
		switch outcome.Status {
		case domain.OutcomeSuccess:
			summary.Succeeded++
		case domain.OutcomePartialFailure:
			summary.PartialFailure++
		case domain.OutcomeFailure:
			summary.Failed++
		}
	}
	return summary
}

func newOutcomeRecord(outcome domain.BatchOutcome) outcomeRecord {
	record := outcomeRecord{
		ID:          outcome.ID,
		ContactID:   outcome.ContactID,
		ContactName: outcome.ContactName,
		Email:       outcome.Email,
		Title:       outcome.Title,
		Category:    outcome.Category.String(),
		Committee:   outcome.Committee,
		CommitteeID: outcome.CommitteeID,
		BatchNumber: outcome.BatchNumber,
		Index:       outcome.Index,
		Status:      outcome.Status.String(),
		CompletedAt: outcome.CompletedAt,
		Steps:       make([]stepRecord, 0, len(outcome.Steps)),
	}
	for _, step := range outcome.Steps {
		record.Steps = append(record.Steps, stepRecord{
			Step:           step.Step.String(),
			Status:         step.Status.String(),
			Attempts:       step.Attempts,
			Reason:         step.Reason,
			AlreadyMember:  step.AlreadyMember,
			DurationMillis: step.Duration.Milliseconds(),
		})
	}
	return record
}

func (o outcomeRecord) toDomain(runID string) domain.BatchOutcome {
	outcome := domain.BatchOutcome{
		ID:          o.ID,
		RunID:       runID,
		ContactID:   o.ContactID,
		ContactName: o.ContactName,
		Email:       o.Email,
		Title:       o.Title,
		Category:    domain.Category(o.Category),
		Committee:   o.Committee,
		CommitteeID: o.CommitteeID,
		BatchNumber: o.BatchNumber,
		Index:       o.Index,
		Status:      domain.OutcomeStatus(o.Status),
		CompletedAt: o.CompletedAt,
		Steps:       make([]domain.StepResult, 0, len(o.Steps)),
	}
	for _, step := range o.Steps {
		outcome.Steps = append(outcome.Steps, domain.StepResult{
			Step:          domain.Step(step.Step),
			Status:        domain.StepStatus(step.Status),
			Attempts:      step.Attempts,
			Reason:        step.Reason,
			AlreadyMember: step.AlreadyMember,
			Duration:      time.Duration(step.DurationMillis) * time.Millisecond,
		})
	}
	return outcome
}
