package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/onboarding-engine/internal/domain"
	"github.com/kursadbilgin/onboarding-engine/internal/observability"
	"github.com/kursadbilgin/onboarding-engine/internal/provider"
	"github.com/kursadbilgin/onboarding-engine/internal/queue"
	"github.com/kursadbilgin/onboarding-engine/internal/report"
	"github.com/kursadbilgin/onboarding-engine/internal/repository"
	"github.com/kursadbilgin/onboarding-engine/internal/retry"
	"go.uber.org/zap"
)

const DefaultMaxFailureRate = 0.2

// EventPublisher publishes run-completed events. queue.Publisher satisfies it.
type EventPublisher interface {
	Publish(ctx context.Context, queue string, msg queue.Message) error
}

type OrchestratorOptions struct {
	Batch          BatchOptions
	MaxFailureRate float64
	RunTimeout     time.Duration
}

// RunRequest identifies one organization and project pair to onboard.
type RunRequest struct {
	RunID         string
	Organization  string
	ProjectSlug   string
	BatchSize     int
	CorrelationID string
}

func (r RunRequest) Validate() error {
	if strings.TrimSpace(r.Organization) == "" {
		return fmt.Errorf("%w: organization is required", domain.ErrValidation)
	}
	if strings.TrimSpace(r.ProjectSlug) == "" {
		return fmt.Errorf("%w: project slug is required", domain.ErrValidation)
	}
	if r.BatchSize < 0 {
		return fmt.Errorf("%w: batch size must not be negative", domain.ErrValidation)
	}
	return nil
}

// Orchestrator drives a workflow run through its states. Only organization, contact and project
// resolution can abort a run; everything after that is recorded per contact.
type Orchestrator struct {
	collaborators provider.Collaborators
	adapter       *retry.Adapter
	runs          repository.RunRepository
	events        EventPublisher
	metrics       *observability.Metrics
	logger        *zap.Logger
	options       OrchestratorOptions
	now           func() time.Time
	newID         func() string
}

func NewOrchestrator(
	collaborators provider.Collaborators,
	adapter *retry.Adapter,
	runs repository.RunRepository,
	options OrchestratorOptions,
	logger *zap.Logger,
) (*Orchestrator, error) {
	if collaborators.Directory == nil || collaborators.Projects == nil {
		return nil, fmt.Errorf("directory and project collaborators are required")
	}
	if collaborators.Committees == nil || collaborators.Chat == nil || collaborators.Mailer == nil {
		return nil, fmt.Errorf("committee, chat and email collaborators are required")
	}
	if adapter == nil {
		return nil, fmt.Errorf("retry adapter is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if options.MaxFailureRate <= 0 {
		options.MaxFailureRate = DefaultMaxFailureRate
	}
	options.Batch = options.Batch.normalized()

	return &Orchestrator{
		collaborators: collaborators,
		adapter:       adapter,
		runs:          runs,
		logger:        logger,
		options:       options,
		now:           time.Now,
		newID:         uuid.NewString,
	}, nil
}

func (o *Orchestrator) SetMetrics(metrics *observability.Metrics) {
	if o == nil {
		return
	}
	o.metrics = metrics
}

func (o *Orchestrator) SetEventPublisher(events EventPublisher) {
	if o == nil {
		return
	}
	o.events = events
}

// Run executes one workflow run. The returned run is always complete, including when it was
// aborted; the error is the abort cause and is nil for Success and PartialFailure runs.
// Only an invalid request returns a nil run.
func (o *Orchestrator) Run(ctx context.Context, req RunRequest) (*domain.WorkflowRun, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	runID := req.RunID
	if runID == "" {
		runID = o.newID()
	}
	ctx = observability.WithRunID(ctx, runID)
	if req.CorrelationID != "" {
		ctx = observability.WithCorrelationID(ctx, req.CorrelationID)
	}
	logger := observability.WithContextLogger(o.logger, ctx)

	if o.options.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.options.RunTimeout)
		defer cancel()
	}

	run := domain.NewWorkflowRun(runID, strings.TrimSpace(req.Organization), strings.TrimSpace(req.ProjectSlug), o.now().UTC())
	run.BatchSize = o.options.Batch.Size
	if req.BatchSize > 0 {
		run.BatchSize = min(req.BatchSize, maxBatchSize)
	}

	o.metrics.IncRunInFlight()
	defer o.metrics.DecRunInFlight()

	state := &runState{
		run:        run,
		aggregator: report.NewAggregator(o.now),
		recorder: &outcomeRecorder{
			runs:    o.runs,
			run:     run,
			metrics: o.metrics,
			logger:  logger,
		},
		logger: logger,
	}
	state.adapter = o.adapter.WithObserver(state.aggregator).WithLogger(logger)

	// Persistence outlives run cancellation so a canceled run still leaves its report behind.
	persistCtx := context.WithoutCancel(ctx)
	state.recorder.record(persistCtx, "create run", func(ctx context.Context) error {
		return o.runs.CreateRun(ctx, run)
	})

	logger.Info("onboarding run started",
		zap.String("organization", run.OrganizationName),
		zap.String("project", run.ProjectSlug),
		zap.Int("batchSize", run.BatchSize),
	)

	runErr := o.execute(ctx, state)
	if runErr != nil {
		run.Abort(runErr)
		logger.Error("onboarding run aborted",
			zap.String("state", run.AbortedIn.String()),
			zap.Error(runErr),
		)
	}

	o.finish(persistCtx, state, req.CorrelationID)
	return run, runErr
}

type runState struct {
	run        *domain.WorkflowRun
	aggregator *report.Aggregator
	adapter    *retry.Adapter
	recorder   *outcomeRecorder
	logger     *zap.Logger
}

func (o *Orchestrator) execute(ctx context.Context, state *runState) error {
	run := state.run

	if err := run.Transition(domain.RunStateOrgLookup); err != nil {
		return err
	}
	organization, _, err := retry.Call(ctx, state.adapter, provider.ServiceMembers, "resolve_organization",
		func(ctx context.Context) (*domain.Organization, error) {
			return o.collaborators.Directory.ResolveOrganization(ctx, run.OrganizationName)
		})
	if err != nil {
		return fmt.Errorf("organization lookup: %w", err)
	}
	run.Organization = organization

	if err := run.Transition(domain.RunStateContactFetch); err != nil {
		return err
	}
	contacts, _, err := retry.Call(ctx, state.adapter, provider.ServiceMembers, "list_contacts",
		func(ctx context.Context) ([]domain.Contact, error) {
			return o.collaborators.Directory.ListContacts(ctx, organization.MemberID)
		})
	if err != nil {
		return fmt.Errorf("contact fetch: %w", err)
	}
	for i := range contacts {
		if contacts[i].Organization == "" {
			contacts[i].Organization = organization.Name
		}
	}
	run.ContactCount = len(contacts)

	if err := run.Transition(domain.RunStateProjectFetch); err != nil {
		return err
	}
	project, _, err := retry.Call(ctx, state.adapter, provider.ServiceProjects, "get_project",
		func(ctx context.Context) (*domain.Project, error) {
			return o.collaborators.Projects.GetProject(ctx, run.ProjectSlug)
		})
	if err != nil {
		return fmt.Errorf("project fetch: %w", err)
	}
	run.Project = project

	if err := run.Transition(domain.RunStateBatchProcessing); err != nil {
		return err
	}
	if err := o.processContacts(ctx, state, contacts); err != nil {
		return err
	}

	if err := run.Transition(domain.RunStateLandscapeUpdate); err != nil {
		return err
	}
	run.Landscape = o.updateLandscape(ctx, state)

	return run.Transition(domain.RunStateReporting)
}

func (o *Orchestrator) processContacts(ctx context.Context, state *runState, contacts []domain.Contact) error {
	run := state.run

	processor, err := NewBatchProcessor(o.collaborators, state.adapter, o.options.Batch, state.logger)
	if err != nil {
		return err
	}
	processor.now = o.now

	persistCtx := context.WithoutCancel(ctx)
	run.Outcomes = processor.Process(ctx, BatchRun{
		RunID:        run.ID,
		Organization: *run.Organization,
		Project:      *run.Project,
		Contacts:     contacts,
		BatchSize:    run.BatchSize,
		OnOutcome: func(_ context.Context, outcome domain.BatchOutcome) {
			state.aggregator.RecordOutcome(outcome)
			o.metrics.ObserveOutcome(outcome)
			state.recorder.record(persistCtx, "append outcome", func(ctx context.Context) error {
				return o.runs.AppendOutcome(ctx, run.ID, outcome)
			})
		},
		AfterBatch: func(batchNumber int, outcomes []domain.BatchOutcome) {
			run.BatchesCompleted = batchNumber
			o.checkFailureRate(state, batchNumber, outcomes)
		},
	})

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("batch processing interrupted after %d batches: %w", run.BatchesCompleted, err)
	}
	return nil
}

// checkFailureRate warns when the share of non-successful contacts so far exceeds the threshold.
// The run continues either way.
func (o *Orchestrator) checkFailureRate(state *runState, batchNumber int, outcomes []domain.BatchOutcome) {
	rate := domain.FailureRate(outcomes)
	if rate <= o.options.MaxFailureRate {
		return
	}

	failed := state.aggregator.FailedSteps()
	state.logger.Warn("contact failure rate above threshold",
		zap.Int("batch", batchNumber),
		zap.Float64("failureRate", rate),
		zap.Float64("maxFailureRate", o.options.MaxFailureRate),
		zap.Int("committeeFailures", failed[domain.StepCommittee]),
		zap.Int("chatFailures", failed[domain.StepChat]),
		zap.Int("emailFailures", failed[domain.StepEmail]),
	)
	o.metrics.IncFailureRateAlert()
}

// updateLandscape is best effort: a failure is recorded on the run but never aborts it.
func (o *Orchestrator) updateLandscape(ctx context.Context, state *runState) *domain.LandscapeResult {
	if o.collaborators.CodeHost == nil {
		return &domain.LandscapeResult{}
	}

	run := state.run
	request := provider.LandscapeRequest{
		ProjectSlug:  run.ProjectSlug,
		Organization: run.Organization.Name,
		OrgSlug:      run.Organization.Slug(),
		LogoURL:      run.Organization.LogoURL,
		RunID:        run.ID,
	}

	pr, attempts, err := retry.Call(ctx, state.adapter, provider.ServiceCodeHost, "open_landscape_update",
		func(ctx context.Context) (*provider.PullRequest, error) {
			return o.collaborators.CodeHost.OpenLandscapeUpdate(ctx, request)
		})

	result := &domain.LandscapeResult{Attempted: true, Attempts: attempts}
	if err != nil {
		result.Error = err.Error()
		state.logger.Warn("landscape update failed",
			zap.String("organization", run.Organization.Name),
			zap.Int("attempts", attempts),
			zap.Error(err),
		)
		return result
	}

	result.Succeeded = true
	if pr != nil {
		result.PullRequestURL = pr.URL
		result.Number = pr.Number
		result.Branch = pr.Branch
	}
	state.logger.Info("landscape update opened",
		zap.String("pullRequestUrl", result.PullRequestURL),
	)
	return result
}

func (o *Orchestrator) finish(ctx context.Context, state *runState, correlationID string) {
	run := state.run

	metrics := state.aggregator.Snapshot()
	run.Metrics = &metrics
	run.Finish(o.now().UTC())

	// The stored record carries the terminal state; the run itself only reaches Done once the
	// summary has been written.
	final := *run
	if run.State == domain.RunStateReporting {
		final.State = domain.RunStateDone
	}
	persisted := state.recorder.record(ctx, "finalize run", func(ctx context.Context) error {
		return o.runs.FinalizeRun(ctx, &final)
	})
	if persisted && run.State == domain.RunStateReporting {
		if err := run.Transition(domain.RunStateDone); err != nil {
			state.logger.Error("failed to complete run", zap.Error(err))
		}
	}

	summary := run.Summary()
	if o.events != nil {
		if err := o.events.Publish(ctx, queue.CompletedQueue, queue.NewRunCompletedMessage(summary, correlationID)); err != nil {
			state.logger.Warn("failed to publish run completed event", zap.Error(err))
		}
	}

	o.metrics.ObserveRunFinished(run.Status, metrics.Duration)
	state.logger.Info("onboarding run finished",
		zap.String("status", run.Status.String()),
		zap.Int("contacts", run.ContactCount),
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("partialFailure", summary.PartialFailure),
		zap.Int("failed", summary.Failed),
		zap.Int("persistenceErrors", len(run.PersistenceErrors)),
		zap.Duration("duration", metrics.Duration),
	)
}

// outcomeRecorder serializes persistence failures onto the run. Store writes themselves are
// independent appends and are not serialized here.
type outcomeRecorder struct {
	runs    repository.RunRepository
	run     *domain.WorkflowRun
	metrics *observability.Metrics
	logger  *zap.Logger

	mu sync.Mutex
}

// record reports whether the write succeeded. Without a store nothing is written and the write counts as done.
func (r *outcomeRecorder) record(ctx context.Context, operation string, write func(ctx context.Context) error) bool {
	if r.runs == nil {
		return true
	}

	err := write(ctx)
	if err == nil {
		return true
	}
	if !errors.Is(err, domain.ErrPersistence) {
		err = &domain.PersistenceError{Op: operation, Cause: err}
	}

	r.mu.Lock()
	r.run.RecordPersistenceError(err)
	r.mu.Unlock()

	r.metrics.IncPersistenceError(operation)
	r.logger.Error("failed to persist run state",
		zap.String("operation", operation),
		zap.Error(err),
	)
	return false
}
