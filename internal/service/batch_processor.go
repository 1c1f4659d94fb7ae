package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/onboarding-engine/internal/classifier"
	"github.com/kursadbilgin/onboarding-engine/internal/domain"
	"github.com/kursadbilgin/onboarding-engine/internal/provider"
	"github.com/kursadbilgin/onboarding-engine/internal/retry"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultBatchSize = 10
	maxBatchSize     = 100
)

// BatchMode selects how contacts inside one batch are processed.
type BatchMode string

const (
	BatchModeParallel   BatchMode = "parallel"
	BatchModeSequential BatchMode = "sequential"
)

func (m BatchMode) IsValid() bool {
	return m == BatchModeParallel || m == BatchModeSequential
}

func ParseBatchModeFromString(s string) (BatchMode, error) {
	mode := BatchMode(strings.ToLower(strings.TrimSpace(s)))
	if !mode.IsValid() {
		return "", fmt.Errorf("%w: invalid batch mode %q", domain.ErrValidation, s)
	}
	return mode, nil
}

type BatchOptions struct {
	Size int
	Mode BatchMode
}

func (o BatchOptions) normalized() BatchOptions {
	if o.Size < 1 {
		o.Size = DefaultBatchSize
	}
	o.Size = min(o.Size, maxBatchSize)
	if !o.Mode.IsValid() {
		o.Mode = BatchModeParallel
	}
	return o
}

// BatchRun is the input of one Process call.
type BatchRun struct {
	RunID        string
	Organization domain.Organization
	Project      domain.Project
	Contacts     []domain.Contact

	// BatchSize overrides the processor batch size when positive.
	BatchSize int

	// OnOutcome is called once per contact as soon as its outcome is final. In parallel mode it is
	// called concurrently from batch workers.
	OnOutcome func(ctx context.Context, outcome domain.BatchOutcome)

	// AfterBatch is called after each batch with every outcome collected so far.
	AfterBatch func(batchNumber int, outcomes []domain.BatchOutcome)
}

// BatchProcessor runs the per-contact pipeline over consecutive batches of contacts.
type BatchProcessor struct {
	committees provider.Committees
	chat       provider.Chat
	mailer     provider.Mailer
	adapter    *retry.Adapter
	options    BatchOptions
	logger     *zap.Logger
	now        func() time.Time
}

func NewBatchProcessor(
	collaborators provider.Collaborators,
	adapter *retry.Adapter,
	options BatchOptions,
	logger *zap.Logger,
) (*BatchProcessor, error) {
	if collaborators.Committees == nil || collaborators.Chat == nil || collaborators.Mailer == nil {
		return nil, fmt.Errorf("committee, chat and email collaborators are required")
	}
	if adapter == nil {
		return nil, fmt.Errorf("retry adapter is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &BatchProcessor{
		committees: collaborators.Committees,
		chat:       collaborators.Chat,
		mailer:     collaborators.Mailer,
		adapter:    adapter,
		options:    options.normalized(),
		logger:     logger,
		now:        time.Now,
	}, nil
}

func (p *BatchProcessor) Options() BatchOptions { return p.options }

// Process returns exactly one outcome per contact, in input order. Batches run strictly one after
// another. Once ctx is done, contacts of batches that have not started get a Failure outcome.
func (p *BatchProcessor) Process(ctx context.Context, run BatchRun) []domain.BatchOutcome {
	size := p.options.Size
	if run.BatchSize > 0 {
		size = min(run.BatchSize, maxBatchSize)
	}

	outcomes := make([]domain.BatchOutcome, len(run.Contacts))
	for start := 0; start < len(run.Contacts); start += size {
		end := min(start+size, len(run.Contacts))
		batchNumber := start/size + 1

		if err := ctx.Err(); err != nil {
			for i := start; i < len(run.Contacts); i++ {
				outcomes[i] = p.notDispatched(run, i/size+1, i, err)
				p.emit(ctx, run, outcomes[i])
			}
			p.logger.Warn("batch processing stopped",
				zap.String("runId", run.RunID),
				zap.Int("batch", batchNumber),
				zap.Int("notDispatched", len(run.Contacts)-start),
				zap.Error(err),
			)
			break
		}

		batchStart := p.now()
		p.processBatch(ctx, run, batchNumber, start, end, outcomes)
		p.logger.Info("batch processed",
			zap.String("runId", run.RunID),
			zap.Int("batch", batchNumber),
			zap.Int("contacts", end-start),
			zap.Duration("duration", p.now().Sub(batchStart)),
		)

		if run.AfterBatch != nil {
			run.AfterBatch(batchNumber, outcomes[:end])
		}
	}

	return outcomes
}

func (p *BatchProcessor) processBatch(ctx context.Context, run BatchRun, batchNumber, start, end int, outcomes []domain.BatchOutcome) {
	if p.options.Mode == BatchModeSequential {
		for i := start; i < end; i++ {
			outcomes[i] = p.processContact(ctx, run, batchNumber, i)
			p.emit(ctx, run, outcomes[i])
		}
		return
	}

	// Contact failures are recorded in outcomes, never returned, so one contact cannot cancel its siblings.
	var g errgroup.Group
	g.SetLimit(end - start)
	for i := start; i < end; i++ {
		index := i
		g.Go(func() error {
			outcomes[index] = p.processContact(ctx, run, batchNumber, index)
			p.emit(ctx, run, outcomes[index])
			return nil
		})
	}
	_ = g.Wait()
}

func (p *BatchProcessor) processContact(ctx context.Context, run BatchRun, batchNumber, index int) domain.BatchOutcome {
	contact := run.Contacts[index]
	outcome := newOutcome(run, contact, batchNumber, index)

	if err := ctx.Err(); err != nil {
		return p.notDispatched(run, batchNumber, index, err)
	}

	classification := classifier.ClassifyContact(&contact)
	outcome.Category = classification.Category

	if err := contact.Validate(); err != nil {
		outcome.Steps = append(outcome.Steps, domain.StepResult{
			Step:   domain.StepDispatch,
			Status: domain.StepStatusFailed,
			Reason: err.Error(),
		})
		return p.complete(outcome)
	}

	classify := domain.StepResult{Step: domain.StepClassify, Status: domain.StepStatusSucceeded}
	if !classification.IsClassified() {
		classify.Reason = "no title keyword matched"
	}
	outcome.Steps = append(outcome.Steps, classify)

	committee, found := run.Project.CommitteeFor(classification.Category)
	switch {
	case !classification.IsClassified():
		outcome.Steps = append(outcome.Steps,
			skipped(domain.StepCommittee, "contact is unclassified"),
			skipped(domain.StepChat, "contact is unclassified"),
		)
	case !found:
		kind, _ := classification.Category.CommitteeKind()
		reason := fmt.Sprintf("no %s committee", kind)
		outcome.Steps = append(outcome.Steps,
			skipped(domain.StepCommittee, reason),
			skipped(domain.StepChat, reason),
		)
	default:
		outcome.Committee = committee.Name
		outcome.CommitteeID = committee.ID
		contact.Classification.CommitteeID = committee.ID

		outcome.Steps = append(outcome.Steps, p.assignCommittee(ctx, run.Project, committee, contact))
		if committee.ChatChannel == "" {
			outcome.Steps = append(outcome.Steps, skipped(domain.StepChat, "committee has no chat channel"))
		} else {
			outcome.Steps = append(outcome.Steps, p.inviteToChat(ctx, contact, committee))
		}
	}

	outcome.Steps = append(outcome.Steps, p.sendWelcome(ctx, run, contact, outcome.Committee))
	return p.complete(outcome)
}

func (p *BatchProcessor) assignCommittee(ctx context.Context, project domain.Project, committee domain.Committee, contact domain.Contact) domain.StepResult {
	var alreadyMember bool
	result := p.runStep(ctx, contact, domain.StepCommittee, provider.ServiceCommittees, "assign_member", func(ctx context.Context) error {
		member, err := p.committees.IsMember(ctx, project.ID, committee.ID, contact.Email)
		if err != nil {
			return err
		}
		if member {
			alreadyMember = true
			return nil
		}
		return p.committees.AddMember(ctx, project.ID, committee.ID, contact)
	})
	result.AlreadyMember = alreadyMember && result.Status == domain.StepStatusSucceeded
	return result
}

func (p *BatchProcessor) inviteToChat(ctx context.Context, contact domain.Contact, committee domain.Committee) domain.StepResult {
	return p.runStep(ctx, contact, domain.StepChat, provider.ServiceChat, "invite", func(ctx context.Context) error {
		return p.chat.Invite(ctx, contact.Email, committee.ChatChannel)
	})
}

func (p *BatchProcessor) sendWelcome(ctx context.Context, run BatchRun, contact domain.Contact, committeeName string) domain.StepResult {
	message := welcomeMessage(run, contact, committeeName)
	return p.runStep(ctx, contact, domain.StepEmail, provider.ServiceEmail, "send", func(ctx context.Context) error {
		return p.mailer.Send(ctx, message)
	})
}

func (p *BatchProcessor) runStep(
	ctx context.Context,
	contact domain.Contact,
	step domain.Step,
	service string,
	operation string,
	fn func(ctx context.Context) error,
) domain.StepResult {
	start := p.now()
	attempts, err := p.adapter.Do(ctx, service, operation, fn)
	result := domain.StepResult{
		Step:     step,
		Status:   domain.StepStatusSucceeded,
		Attempts: attempts,
		Duration: p.now().Sub(start),
	}
	if err != nil {
		result.Status = domain.StepStatusFailed
		result.Reason = err.Error()
		p.logger.Warn("contact step failed",
			zap.String("contactId", contact.ID),
			zap.String("step", step.String()),
			zap.Int("attempts", attempts),
			zap.Error(err),
		)
	}
	return result
}

func (p *BatchProcessor) notDispatched(run BatchRun, batchNumber, index int, cause error) domain.BatchOutcome {
	contact := run.Contacts[index]
	outcome := newOutcome(run, contact, batchNumber, index)
	outcome.Category = classifier.Classify(contact.Title).Category
	outcome.Steps = []domain.StepResult{{
		Step:   domain.StepDispatch,
		Status: domain.StepStatusFailed,
		Reason: "not dispatched: " + cause.Error(),
	}}
	return p.complete(outcome)
}

func (p *BatchProcessor) complete(outcome domain.BatchOutcome) domain.BatchOutcome {
	outcome.Status = domain.ComputeOutcomeStatus(outcome.Steps)
	outcome.CompletedAt = p.now().UTC()
	return outcome
}

func (p *BatchProcessor) emit(ctx context.Context, run BatchRun, outcome domain.BatchOutcome) {
	if run.OnOutcome != nil {
		run.OnOutcome(ctx, outcome)
	}
}

func newOutcome(run BatchRun, contact domain.Contact, batchNumber, index int) domain.BatchOutcome {
	return domain.BatchOutcome{
		ID:          uuid.NewString(),
		RunID:       run.RunID,
		ContactID:   contact.ID,
		ContactName: contact.FullName(),
		Email:       contact.Email,
		Title:       contact.Title,
		Category:    domain.CategoryUnclassified,
		BatchNumber: batchNumber,
		Index:       index,
	}
}

func skipped(step domain.Step, reason string) domain.StepResult {
	return domain.StepResult{Step: step, Status: domain.StepStatusSkipped, Reason: reason}
}

func welcomeMessage(run BatchRun, contact domain.Contact, committeeName string) provider.EmailMessage {
	category := domain.CategoryUnclassified
	if contact.Classification != nil {
		category = contact.Classification.Category
	}

	projectName := run.Project.DisplayName()
	subject := fmt.Sprintf("Welcome to %s", projectName)
	if committeeName != "" {
		subject = fmt.Sprintf("Welcome to the %s %s", projectName, committeeName)
	}

	return provider.EmailMessage{
		To:       contact.Email,
		Template: category.EmailTemplate(),
		Subject:  subject,
		Variables: map[string]string{
			"first_name":   contact.FirstName,
			"organization": run.Organization.Name,
			"project":      projectName,
			"committee":    committeeName,
			"title":        contact.Title,
		},
	}
}
