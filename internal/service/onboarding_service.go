package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/onboarding-engine/internal/domain"
	"github.com/kursadbilgin/onboarding-engine/internal/queue"
	"github.com/kursadbilgin/onboarding-engine/internal/repository"
	"go.uber.org/zap"
)

// Submission is the answer to an accepted onboarding request.
type Submission struct {
	RunID         string
	CorrelationID string
	Queued        bool

	// Run is set only when the request was executed synchronously.
	Run *domain.WorkflowRun
}

// OnboardingService accepts onboarding requests from the API and MCP surfaces. Requests are queued
// when a publisher is configured and otherwise run in the background of this process.
type OnboardingService struct {
	runner    WorkflowRunner
	runs      repository.RunRepository
	publisher queue.Publisher
	logger    *zap.Logger
	now       func() time.Time
	newID     func() string

	mu      sync.Mutex
	pending map[string]RunRequest
	wg      sync.WaitGroup
}

func NewOnboardingService(
	runner WorkflowRunner,
	runs repository.RunRepository,
	publisher queue.Publisher,
	logger *zap.Logger,
) (*OnboardingService, error) {
	if runner == nil {
		return nil, fmt.Errorf("workflow runner is required")
	}
	if runs == nil {
		return nil, fmt.Errorf("run repository is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &OnboardingService{
		runner:    runner,
		runs:      runs,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
		newID:     uuid.NewString,
		pending:   make(map[string]RunRequest),
	}, nil
}

// Submit accepts a request. With wait set the run executes before Submit returns.
func (s *OnboardingService) Submit(ctx context.Context, req RunRequest, wait bool) (*Submission, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if req.RunID == "" {
		req.RunID = s.newID()
	}
	if req.CorrelationID == "" {
		req.CorrelationID = s.newID()
	}

	submission := &Submission{RunID: req.RunID, CorrelationID: req.CorrelationID}

	if wait {
		run, err := s.runner.Run(ctx, req)
		if run == nil {
			return nil, err
		}
		submission.Run = run
		return submission, nil
	}

	if s.publisher != nil {
		msg := queue.OnboardingRequestMessage{
			RunID:         req.RunID,
			CorrelationID: req.CorrelationID,
			Organization:  req.Organization,
			ProjectSlug:   req.ProjectSlug,
			BatchSize:     req.BatchSize,
			RequestedAt:   s.now().UTC(),
		}
		if err := s.publisher.Publish(ctx, queue.RequestQueue, msg); err != nil {
			s.logger.Error("failed to publish onboarding request",
				zap.String("runId", req.RunID),
				zap.String("correlationId", req.CorrelationID),
				zap.Error(err),
			)
			return nil, fmt.Errorf("failed to queue onboarding request: %w", err)
		}
		submission.Queued = true
		return submission, nil
	}

	s.mu.Lock()
	s.pending[req.RunID] = req
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			s.mu.Lock()
			delete(s.pending, req.RunID)
			s.mu.Unlock()
		}()

		if _, err := s.runner.Run(context.WithoutCancel(ctx), req); err != nil {
			s.logger.Warn("background onboarding run aborted",
				zap.String("runId", req.RunID),
				zap.Error(err),
			)
		}
	}()

	return submission, nil
}

// GetRun returns the stored summary of a run. A run accepted by this process that has not been
// stored yet is reported as RUNNING.
func (s *OnboardingService) GetRun(ctx context.Context, runID string) (*domain.RunSummary, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	summary, err := s.runs.GetSummary(ctx, runID)
	if err == nil {
		return summary, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	s.mu.Lock()
	req, ok := s.pending[runID]
	s.mu.Unlock()
	if !ok {
		return nil, err
	}

	return &domain.RunSummary{
		RunID:        runID,
		Organization: req.Organization,
		ProjectSlug:  req.ProjectSlug,
		Status:       domain.RunStatusRunning,
		State:        domain.RunStateInit,
	}, nil
}

// Wait blocks until background runs finish or ctx is done.
func (s *OnboardingService) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
