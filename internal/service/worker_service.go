package service

import (
	"context"
	"fmt"

	"github.com/kursadbilgin/onboarding-engine/internal/domain"
	"github.com/kursadbilgin/onboarding-engine/internal/queue"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const minWorkerConcurrency = 1

// WorkflowRunner executes one onboarding run. *Orchestrator satisfies it.
type WorkflowRunner interface {
	Run(ctx context.Context, req RunRequest) (*domain.WorkflowRun, error)
}

type WorkerService struct {
	consumer    queue.Consumer
	runner      WorkflowRunner
	logger      *zap.Logger
	concurrency int
}

func NewWorkerService(
	consumer queue.Consumer,
	runner WorkflowRunner,
	concurrency int,
	logger *zap.Logger,
) (*WorkerService, error) {
	if consumer == nil {
		return nil, fmt.Errorf("consumer is required")
	}
	if runner == nil {
		return nil, fmt.Errorf("workflow runner is required")
	}
	if concurrency < minWorkerConcurrency {
		concurrency = minWorkerConcurrency
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &WorkerService{
		consumer:    consumer,
		runner:      runner,
		logger:      logger,
		concurrency: concurrency,
	}, nil
}

// Start consumes onboarding requests until context cancellation. Each worker runs one workflow at a time.
func (s *WorkerService) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	queueNames := queue.WorkQueueNames()
	if len(queueNames) == 0 {
		return fmt.Errorf("no work queues configured")
	}

	g, groupCtx := errgroup.WithContext(ctx)
	for i := 0; i < s.concurrency; i++ {
		queueName := queueNames[i%len(queueNames)]
		workerID := i + 1

		g.Go(func() error {
			s.logger.Info("worker started",
				zap.Int("workerId", workerID),
				zap.String("queue", queueName),
			)

			err := s.consumer.Consume(groupCtx, queueName, s.processMessage)
			if err != nil {
				s.logger.Error("worker stopped with error",
					zap.Int("workerId", workerID),
					zap.String("queue", queueName),
					zap.Error(err),
				)
				return err
			}

			s.logger.Info("worker stopped",
				zap.Int("workerId", workerID),
				zap.String("queue", queueName),
			)
			return nil
		})
	}

	return g.Wait()
}

// processMessage acks aborted runs: their report is already persisted and a redelivery would abort again.
func (s *WorkerService) processMessage(ctx context.Context, msg queue.OnboardingRequestMessage) error {
	run, err := s.runner.Run(ctx, RunRequest{
		RunID:         msg.RunID,
		Organization:  msg.Organization,
		ProjectSlug:   msg.ProjectSlug,
		BatchSize:     msg.BatchSize,
		CorrelationID: msg.CorrelationID,
	})
	if run == nil {
		if err == nil {
			err = fmt.Errorf("run %s produced no result", msg.RunID)
		}
		return fmt.Errorf("failed to run onboarding request: %w", err)
	}

	if err != nil {
		s.logger.Warn("queued onboarding run aborted",
			zap.String("runId", run.ID),
			zap.String("correlationId", msg.CorrelationID),
			zap.Error(err),
		)
		return nil
	}

	s.logger.Info("queued onboarding run completed",
		zap.String("runId", run.ID),
		zap.String("correlationId", msg.CorrelationID),
		zap.String("status", run.Status.String()),
	)
	return nil
}
