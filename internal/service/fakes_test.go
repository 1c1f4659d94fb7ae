package service

import (
	"context"
	"sync"
	"time"

	"github.com/kursadbilgin/onboarding-engine/internal/domain"
	"github.com/kursadbilgin/onboarding-engine/internal/provider"
	"github.com/kursadbilgin/onboarding-engine/internal/queue"
	"github.com/kursadbilgin/onboarding-engine/internal/retry"
	"go.uber.org/zap"
)

// fastPolicy keeps real backoff behaviour with millisecond delays.
func fastPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
		Multiplier:  2,
		MaxDelay:    10 * time.Millisecond,
		Timeout:     time.Second,
	}
}

func newTestAdapter() *retry.Adapter {
	return retry.NewAdapter(fastPolicy(), zap.NewNop())
}

type fakeCommittees struct {
	isMemberFn  func(ctx context.Context, projectID, committeeID, email string) (bool, error)
	addMemberFn func(ctx context.Context, projectID, committeeID string, contact domain.Contact) error
}

func (f *fakeCommittees) IsMember(ctx context.Context, projectID, committeeID, email string) (bool, error) {
	if f.isMemberFn != nil {
		return f.isMemberFn(ctx, projectID, committeeID, email)
	}
	return false, nil
}

func (f *fakeCommittees) AddMember(ctx context.Context, projectID, committeeID string, contact domain.Contact) error {
	if f.addMemberFn != nil {
		return f.addMemberFn(ctx, projectID, committeeID, contact)
	}
	return nil
}

type fakeChat struct {
	inviteFn func(ctx context.Context, email, channel string) error
}

func (f *fakeChat) Invite(ctx context.Context, email, channel string) error {
	if f.inviteFn != nil {
		return f.inviteFn(ctx, email, channel)
	}
	return nil
}

type fakeMailer struct {
	sendFn func(ctx context.Context, message provider.EmailMessage) error
}

func (f *fakeMailer) Send(ctx context.Context, message provider.EmailMessage) error {
	if f.sendFn != nil {
		return f.sendFn(ctx, message)
	}
	return nil
}

type fakeCodeHost struct {
	openFn func(ctx context.Context, request provider.LandscapeRequest) (*provider.PullRequest, error)
}

func (f *fakeCodeHost) OpenLandscapeUpdate(ctx context.Context, request provider.LandscapeRequest) (*provider.PullRequest, error) {
	if f.openFn != nil {
		return f.openFn(ctx, request)
	}
	return &provider.PullRequest{Number: 1, URL: "https://github.com/test/landscape/pull/1"}, nil
}

// memoryRunRepo records every write and can be told to fail.
type memoryRunRepo struct {
	mu        sync.Mutex
	created   []*domain.WorkflowRun
	appended  []domain.BatchOutcome
	finalized []domain.RunStatus
	states    []domain.RunState
	summaries map[string]*domain.RunSummary

	createErr   error
	appendErr   error
	finalizeErr error
	getFn       func(ctx context.Context, runID string) (*domain.RunSummary, error)
}

func (r *memoryRunRepo) CreateRun(ctx context.Context, run *domain.WorkflowRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return r.createErr
	}
	r.created = append(r.created, run)
	return nil
}

func (r *memoryRunRepo) AppendOutcome(ctx context.Context, runID string, outcome domain.BatchOutcome) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.appendErr != nil {
		return r.appendErr
	}
	r.appended = append(r.appended, outcome)
	return nil
}

func (r *memoryRunRepo) FinalizeRun(ctx context.Context, run *domain.WorkflowRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finalizeErr != nil {
		return r.finalizeErr
	}
	r.finalized = append(r.finalized, run.Status)
	r.states = append(r.states, run.State)
	if r.summaries == nil {
		r.summaries = make(map[string]*domain.RunSummary)
	}
	summary := run.Summary()
	r.summaries[run.ID] = &summary
	return nil
}

func (r *memoryRunRepo) GetSummary(ctx context.Context, runID string) (*domain.RunSummary, error) {
	if r.getFn != nil {
		return r.getFn(ctx, runID)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if summary, ok := r.summaries[runID]; ok {
		return summary, nil
	}
	return nil, domain.ErrNotFound
}

func (r *memoryRunRepo) appendedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.appended)
}

type fakePublisher struct {
	mu        sync.Mutex
	published []queue.Message
	queues    []string
	publishFn func(ctx context.Context, queueName string, msg queue.Message) error
}

func (f *fakePublisher) Publish(ctx context.Context, queueName string, msg queue.Message) error {
	if f.publishFn != nil {
		if err := f.publishFn(ctx, queueName, msg); err != nil {
			return err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, msg)
	f.queues = append(f.queues, queueName)
	return nil
}

func (f *fakePublisher) Close() error {
	return nil
}

type fakeRunner struct {
	runFn func(ctx context.Context, req RunRequest) (*domain.WorkflowRun, error)
}

func (f *fakeRunner) Run(ctx context.Context, req RunRequest) (*domain.WorkflowRun, error) {
	if f.runFn != nil {
		return f.runFn(ctx, req)
	}
	run := domain.NewWorkflowRun(req.RunID, req.Organization, req.ProjectSlug, time.Now())
	run.State = domain.RunStateDone
	run.Status = domain.RunStatusSuccess
	return run, nil
}

type fakeConsumer struct {
	consumeFn func(ctx context.Context, queue string, handler queue.MessageHandler) error
	closeFn   func() error
}

func (f *fakeConsumer) Consume(ctx context.Context, queueName string, handler queue.MessageHandler) error {
	if f.consumeFn != nil {
		return f.consumeFn(ctx, queueName, handler)
	}
	return nil
}

func (f *fakeConsumer) Close() error {
	if f.closeFn != nil {
		return f.closeFn()
	}
	return nil
}
