package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/kursadbilgin/onboarding-engine/internal/domain"
	"gorm.io/gorm"
)

// RunRepository persists workflow runs incrementally: one run row, then one appended
// outcome per contact, then the final state.
type RunRepository interface {
	CreateRun(ctx context.Context, run *domain.WorkflowRun) error
	AppendOutcome(ctx context.Context, runID string, outcome domain.BatchOutcome) error
	FinalizeRun(ctx context.Context, run *domain.WorkflowRun) error
	GetSummary(ctx context.Context, runID string) (*domain.RunSummary, error)
}

type GormRunRepo struct {
	db *gorm.DB
}

func NewGormRunRepo(db *gorm.DB) *GormRunRepo {
	return &GormRunRepo{db: db}
}

func (r *GormRunRepo) CreateRun(ctx context.Context, run *domain.WorkflowRun) error {
	if run == nil || run.ID == "" {
		return fmt.Errorf("%w: run id is required", domain.ErrValidation)
	}

	model := runModelFromDomain(run)
	err := r.db.WithContext(ctx).Create(model).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		err = fmt.Errorf("%w: run %q already exists", domain.ErrConflict, run.ID)
	}
	if err != nil {
		return &domain.PersistenceError{Op: "create run", Cause: err}
	}
	return nil
}

func (r *GormRunRepo) AppendOutcome(ctx context.Context, runID string, outcome domain.BatchOutcome) error {
	if runID == "" {
		return fmt.Errorf("%w: run id is required", domain.ErrValidation)
	}
	if outcome.ID == "" {
		outcome.ID = uuid.NewString()
	}

	model := outcomeModelFromDomain(runID, &outcome)
	steps := model.Steps
	for i := range steps {
		steps[i].ID = uuid.NewString()
		steps[i].OutcomeID = model.ID
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Steps").Create(model).Error; err != nil {
			return err
		}
		if len(steps) == 0 {
			return nil
		}
		return tx.Create(&steps).Error
	})
	if err != nil {
		return &domain.PersistenceError{Op: "append outcome", Cause: err}
	}
	return nil
}

func (r *GormRunRepo) FinalizeRun(ctx context.Context, run *domain.WorkflowRun) error {
	if run == nil || run.ID == "" {
		return fmt.Errorf("%w: run id is required", domain.ErrValidation)
	}

	model := runModelFromDomain(run)
	result := r.db.WithContext(ctx).
		Model(&RunModel{}).
		Where("id = ?", run.ID).
		Updates(map[string]any{
			"member_id":           model.MemberID,
			"project_name":        model.ProjectName,
			"contact_count":       model.ContactCount,
			"batches_completed":   model.BatchesCompleted,
			"state":               model.State,
			"status":              model.Status,
			"aborted_in":          model.AbortedIn,
			"abort_reason":        model.AbortReason,
			"landscape_attempted": model.LandscapeAttempted,
			"landscape_url":       model.LandscapeURL,
			"landscape_error":     model.LandscapeError,
			"duration_millis":     model.DurationMillis,
			"completed_at":        model.CompletedAt,
		})
	if result.Error != nil {
		return &domain.PersistenceError{Op: "finalize run", Cause: result.Error}
	}
	if result.RowsAffected == 0 {
		return &domain.PersistenceError{Op: "finalize run", Cause: fmt.Errorf("%w: run %q", domain.ErrNotFound, run.ID)}
	}
	return nil
}

func (r *GormRunRepo) GetSummary(ctx context.Context, runID string) (*domain.RunSummary, error) {
	var run RunModel
	err := r.db.WithContext(ctx).First(&run, "id = ?", runID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: run %q", domain.ErrNotFound, runID)
	}
	if err != nil {
		return nil, &domain.PersistenceError{Op: "get run", Cause: err}
	}

	var outcomes []OutcomeModel
	err = r.db.WithContext(ctx).
		Preload("Steps", func(db *gorm.DB) *gorm.DB {
			return db.Order("sequence ASC")
		}).
		Where("run_id = ?", runID).
		Order("position ASC").
		Find(&outcomes).Error
	if err != nil {
		return nil, &domain.PersistenceError{Op: "list outcomes", Cause: err}
	}

	return runModelToSummary(&run, outcomes), nil
}
