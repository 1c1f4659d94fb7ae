package repository

import (
	"time"

	"github.com/kursadbilgin/onboarding-engine/internal/domain"
)

// RunModel is the persistence model for the onboarding_runs table.
type RunModel struct {
	ID                 string           `gorm:"type:varchar(36);primaryKey"`
	OrganizationName   string           `gorm:"type:varchar(255);not null"`
	MemberID           *string          `gorm:"type:varchar(64)"`
	ProjectSlug        string           `gorm:"type:varchar(128);not null"`
	ProjectName        *string          `gorm:"type:varchar(255)"`
	ContactCount       int              `gorm:"not null;default:0"`
	BatchSize          int              `gorm:"not null;default:0"`
	BatchesCompleted   int              `gorm:"not null;default:0"`
	State              domain.RunState  `gorm:"type:varchar(20);not null"`
	Status             domain.RunStatus `gorm:"type:varchar(20);not null"`
	AbortedIn          *string          `gorm:"type:varchar(20)"`
	AbortReason        *string          `gorm:"type:text"`
	LandscapeAttempted bool             `gorm:"not null;default:false"`
	LandscapeURL       *string          `gorm:"type:varchar(512)"`
	LandscapeError     *string          `gorm:"type:text"`
	DurationMillis     int64            `gorm:"not null;default:0"`
	StartedAt          time.Time        `gorm:"not null"`
	CompletedAt        *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

func (RunModel) TableName() string {
	return "onboarding_runs"
}

// OutcomeModel is the persistence model for contact_outcomes. Rows are only ever inserted.
type OutcomeModel struct {
	ID          string               `gorm:"type:varchar(36);primaryKey"`
	RunID       string               `gorm:"type:varchar(36);not null;index"`
	ContactID   string               `gorm:"type:varchar(64);not null"`
	ContactName string               `gorm:"type:varchar(255)"`
	Email       string               `gorm:"type:varchar(255);not null"`
	Title       string               `gorm:"type:varchar(255)"`
	Category    domain.Category      `gorm:"type:varchar(20);not null"`
	Committee   *string              `gorm:"type:varchar(255)"`
	CommitteeID *string              `gorm:"type:varchar(64)"`
	BatchNumber int                  `gorm:"not null"`
	Position    int                  `gorm:"not null"`
	Status      domain.OutcomeStatus `gorm:"type:varchar(20);not null"`
	Steps       []StepModel          `gorm:"foreignKey:OutcomeID"`
	CompletedAt time.Time
	CreatedAt   time.Time
}

func (OutcomeModel) TableName() string {
	return "contact_outcomes"
}

// StepModel is the persistence model for outcome_steps.
type StepModel struct {
	ID             string            `gorm:"type:varchar(36);primaryKey"`
	OutcomeID      string            `gorm:"type:varchar(36);not null;index"`
	Sequence       int               `gorm:"not null"`
	Step           domain.Step       `gorm:"type:varchar(20);not null"`
	Status         domain.StepStatus `gorm:"type:varchar(20);not null"`
	Attempts       int               `gorm:"not null;default:0"`
	Reason         *string           `gorm:"type:text"`
	AlreadyMember  bool              `gorm:"not null;default:false"`
	DurationMillis int64             `gorm:"not null;default:0"`
	CreatedAt      time.Time
}

func (StepModel) TableName() string {
	return "outcome_steps"
}

func runModelFromDomain(r *domain.WorkflowRun) *RunModel {
	if r == nil {
		return nil
	}

	model := &RunModel{
		ID:               r.ID,
		OrganizationName: r.OrganizationName,
		ProjectSlug:      r.ProjectSlug,
		ContactCount:     r.ContactCount,
		BatchSize:        r.BatchSize,
		BatchesCompleted: r.BatchesCompleted,
		State:            r.State,
		Status:           r.Status,
		AbortReason:      optional(r.AbortReason),
		StartedAt:        r.StartedAt,
		CompletedAt:      r.CompletedAt,
	}
	if r.Organization != nil {
		model.MemberID = optional(r.Organization.MemberID)
	}
	if r.Project != nil {
		model.ProjectName = optional(r.Project.DisplayName())
	}
	if r.AbortedIn != "" {
		model.AbortedIn = optional(r.AbortedIn.String())
	}
	if r.Landscape != nil {
		model.LandscapeAttempted = r.Landscape.Attempted
		model.LandscapeURL = optional(r.Landscape.PullRequestURL)
		model.LandscapeError = optional(r.Landscape.Error)
	}
	if r.Metrics != nil {
		model.DurationMillis = r.Metrics.Duration.Milliseconds()
	}
	return model
}

func runModelToSummary(m *RunModel, outcomes []OutcomeModel) *domain.RunSummary {
	if m == nil {
		return nil
	}

	summary := &domain.RunSummary{
		RunID:              m.ID,
		Organization:       m.OrganizationName,
		MemberID:           deref(m.MemberID),
		ProjectSlug:        m.ProjectSlug,
		ProjectName:        deref(m.ProjectName),
		Status:             m.Status,
		State:              m.State,
		AbortReason:        deref(m.AbortReason),
		ContactCount:       m.ContactCount,
		LandscapeAttempted: m.LandscapeAttempted,
		LandscapeURL:       deref(m.LandscapeURL),
		LandscapeError:     deref(m.LandscapeError),
		StartedAt:          m.StartedAt,
		CompletedAt:        m.CompletedAt,
		Outcomes:           make([]domain.BatchOutcome, 0, len(outcomes)),
	}
	for i := range outcomes {
		outcome := outcomeModelToDomain(&outcomes[i])
		switch outcome.Status {
		case domain.OutcomeSuccess:
			summary.Succeeded++
		case domain.OutcomePartialFailure:
			summary.PartialFailure++
		case domain.OutcomeFailure:
			summary.Failed++
		}
		summary.Outcomes = append(summary.Outcomes, *outcome)
	}
	return summary
}

func outcomeModelFromDomain(runID string, o *domain.BatchOutcome) *OutcomeModel {
	if o == nil {
		return nil
	}

	model := &OutcomeModel{
		ID:          o.ID,
		RunID:       runID,
		ContactID:   o.ContactID,
		ContactName: o.ContactName,
		Email:       o.Email,
		Title:       o.Title,
		Category:    o.Category,
		Committee:   optional(o.Committee),
		CommitteeID: optional(o.CommitteeID),
		BatchNumber: o.BatchNumber,
		Position:    o.Index,
		Status:      o.Status,
		CompletedAt: o.CompletedAt,
		Steps:       make([]StepModel, 0, len(o.Steps)),
	}
	for i, step := range o.Steps {
		model.Steps = append(model.Steps, StepModel{
			OutcomeID:      o.ID,
			Sequence:       i,
			Step:           step.Step,
			Status:         step.Status,
			Attempts:       step.Attempts,
			Reason:         optional(step.Reason),
			AlreadyMember:  step.AlreadyMember,
			DurationMillis: step.Duration.Milliseconds(),
		})
	}
	return model
}

func outcomeModelToDomain(m *OutcomeModel) *domain.BatchOutcome {
	if m == nil {
		return nil
	}

	outcome := &domain.BatchOutcome{
		ID:          m.ID,
		RunID:       m.RunID,
		ContactID:   m.ContactID,
		ContactName: m.ContactName,
		Email:       m.Email,
		Title:       m.Title,
		Category:    m.Category,
		Committee:   deref(m.Committee),
		CommitteeID: deref(m.CommitteeID),
		BatchNumber: m.BatchNumber,
		Index:       m.Position,
		Status:      m.Status,
		CompletedAt: m.CompletedAt,
		Steps:       make([]domain.StepResult, 0, len(m.Steps)),
	}
	for _, step := range m.Steps {
		outcome.Steps = append(outcome.Steps, domain.StepResult{
			Step:          step.Step,
			Status:        step.Status,
			Attempts:      step.Attempts,
			Reason:        deref(step.Reason),
			AlreadyMember: step.AlreadyMember,
			Duration:      time.Duration(step.DurationMillis) * time.Millisecond,
		})
	}
	return outcome
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
