package queue

import (
	"fmt"
	"strings"
	"time"

	"github.com/kursadbilgin/onboarding-engine/internal/domain"
)

// OnboardingRequestMessage asks a worker to run one onboarding workflow.
// RunID is assigned by the submitter so callers can poll for the report immediately.
type OnboardingRequestMessage struct {
	RunID         string    `json:"runId"`
	CorrelationID string    `json:"correlationId,omitempty"`
	Organization  string    `json:"organization"`
	ProjectSlug   string    `json:"projectSlug"`
	BatchSize     int       `json:"batchSize,omitempty"`
	RequestedAt   time.Time `json:"requestedAt"`
}

func (m OnboardingRequestMessage) Validate() error {
	if strings.TrimSpace(m.RunID) == "" {
		return fmt.Errorf("%w: runId is required", domain.ErrValidation)
	}
	if strings.TrimSpace(m.Organization) == "" {
		return fmt.Errorf("%w: organization is required", domain.ErrValidation)
	}
	if strings.TrimSpace(m.ProjectSlug) == "" {
		return fmt.Errorf("%w: projectSlug is required", domain.ErrValidation)
	}
	if m.BatchSize < 0 {
		return fmt.Errorf("%w: batchSize must not be negative", domain.ErrValidation)
	}
	return nil
}

func (m OnboardingRequestMessage) Envelope() (string, string) {
	return m.RunID, m.CorrelationID
}

// RunCompletedMessage announces the final state of a run.
type RunCompletedMessage struct {
	RunID          string           `json:"runId"`
	CorrelationID  string           `json:"correlationId,omitempty"`
	Organization   string           `json:"organization"`
	ProjectSlug    string           `json:"projectSlug"`
	Status         domain.RunStatus `json:"status"`
	AbortReason    string           `json:"abortReason,omitempty"`
	ContactCount   int              `json:"contactCount"`
	Succeeded      int              `json:"succeeded"`
	PartialFailure int              `json:"partialFailure"`
	Failed         int              `json:"failed"`
	LandscapeURL   string           `json:"landscapeUrl,omitempty"`
	CompletedAt    time.Time        `json:"completedAt"`
}

func NewRunCompletedMessage(summary domain.RunSummary, correlationID string) RunCompletedMessage {
	msg := RunCompletedMessage{
		RunID:          summary.RunID,
		CorrelationID:  correlationID,
		Organization:   summary.Organization,
		ProjectSlug:    summary.ProjectSlug,
		Status:         summary.Status,
		AbortReason:    summary.AbortReason,
		ContactCount:   summary.ContactCount,
		Succeeded:      summary.Succeeded,
		PartialFailure: summary.PartialFailure,
		Failed:         summary.Failed,
		LandscapeURL:   summary.LandscapeURL,
	}
	if summary.CompletedAt != nil {
		msg.CompletedAt = *summary.CompletedAt
	}
	return msg
}

func (m RunCompletedMessage) Validate() error {
	if strings.TrimSpace(m.RunID) == "" {
		return fmt.Errorf("%w: runId is required", domain.ErrValidation)
	}
	if !m.Status.IsValid() || m.Status == domain.RunStatusRunning {
		return fmt.Errorf("%w: invalid final status %q", domain.ErrValidation, m.Status)
	}
	return nil
}

func (m RunCompletedMessage) Envelope() (string, string) {
	return m.RunID, m.CorrelationID
}
