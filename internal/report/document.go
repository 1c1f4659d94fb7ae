package report

import (
	"sort"
	"time"

	"github.com/kursadbilgin/onboarding-engine/internal/domain"
)

// Document is the JSON shape of a run report shared by the CLI, HTTP API and MCP tools.
type Document struct {
	RunID          string             `json:"runId"`
	Organization   string             `json:"organization"`
	MemberID       string             `json:"memberId,omitempty"`
	Project        string             `json:"project"`
	ProjectName    string             `json:"projectName,omitempty"`
	Status         string             `json:"status"`
	State          string             `json:"state"`
	AbortReason    string             `json:"abortReason,omitempty"`
	ContactCount   int                `json:"contactCount"`
	Succeeded      int                `json:"succeeded"`
	PartialFailure int                `json:"partialFailure"`
	Failed         int                `json:"failed"`
	Landscape      *LandscapeDoc      `json:"landscape,omitempty"`
	StartedAt      time.Time          `json:"startedAt"`
	CompletedAt    *time.Time         `json:"completedAt,omitempty"`
	Contacts       []ContactDoc       `json:"contacts"`
	Steps          map[string]StepDoc `json:"steps,omitempty"`
	DurationMillis int64              `json:"durationMillis,omitempty"`
}

type LandscapeDoc struct {
	PullRequestURL string `json:"pullRequestUrl,omitempty"`
	Error          string `json:"error,omitempty"`
}

type ContactDoc struct {
	ContactID   string    `json:"contactId"`
	Name        string    `json:"name,omitempty"`
	Email       string    `json:"email"`
	Title       string    `json:"title,omitempty"`
	Category    string    `json:"category"`
	Committee   string    `json:"committee,omitempty"`
	BatchNumber int       `json:"batch"`
	Status      string    `json:"status"`
	Steps       []StepLog `json:"steps"`
}

type StepLog struct {
	Step     string `json:"step"`
	Status   string `json:"status"`
	Attempts int    `json:"attempts,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

type StepDoc struct {
	Succeeded     int   `json:"succeeded"`
	Failed        int   `json:"failed"`
	Skipped       int   `json:"skipped"`
	AverageMillis int64 `json:"averageMillis"`
}

func NewDocument(summary domain.RunSummary, metrics *domain.RunMetrics) Document {
	doc := Document{
		RunID:          summary.RunID,
		Organization:   summary.Organization,
		MemberID:       summary.MemberID,
		Project:        summary.ProjectSlug,
		ProjectName:    summary.ProjectName,
		Status:         summary.Status.String(),
		State:          summary.State.String(),
		AbortReason:    summary.AbortReason,
		ContactCount:   summary.ContactCount,
		Succeeded:      summary.Succeeded,
		PartialFailure: summary.PartialFailure,
		Failed:         summary.Failed,
		StartedAt:      summary.StartedAt,
		CompletedAt:    summary.CompletedAt,
		Contacts:       make([]ContactDoc, 0, len(summary.Outcomes)),
	}

	if summary.LandscapeAttempted {
		doc.Landscape = &LandscapeDoc{PullRequestURL: summary.LandscapeURL, Error: summary.LandscapeError}
	}

	for _, outcome := range summary.Outcomes {
		contact := ContactDoc{
			ContactID:   outcome.ContactID,
			Name:        outcome.ContactName,
			Email:       outcome.Email,
			Title:       outcome.Title,
			Category:    outcome.Category.String(),
			Committee:   outcome.Committee,
			BatchNumber: outcome.BatchNumber,
			Status:      outcome.Status.String(),
			Steps:       make([]StepLog, 0, len(outcome.Steps)),
		}
		for _, step := range outcome.Steps {
			contact.Steps = append(contact.Steps, StepLog{
				Step:     step.Step.String(),
				Status:   step.Status.String(),
				Attempts: step.Attempts,
				Reason:   step.Reason,
			})
		}
		doc.Contacts = append(doc.Contacts, contact)
	}

	if metrics != nil {
		doc.DurationMillis = metrics.Duration.Milliseconds()
		doc.Steps = make(map[string]StepDoc, len(metrics.Steps))
		for step, m := range metrics.Steps {
			doc.Steps[step.String()] = StepDoc{
				Succeeded:     m.Succeeded,
				Failed:        m.Failed,
				Skipped:       m.Skipped,
				AverageMillis: m.AverageDuration().Milliseconds(),
			}
		}
	}

	return doc
}

// orderedSteps returns pipeline steps present in metrics in pipeline order.
func orderedSteps(metrics *domain.RunMetrics) []domain.Step {
	if metrics == nil {
		return nil
	}
	rank := map[domain.Step]int{
		domain.StepClassify:  0,
		domain.StepCommittee: 1,
		domain.StepChat:      2,
		domain.StepEmail:     3,
		domain.StepDispatch:  4,
	}
	steps := make([]domain.Step, 0, len(metrics.Steps))
	for step := range metrics.Steps {
		steps = append(steps, step)
	}
	sort.Slice(steps, func(i, j int) bool { return rank[steps[i]] < rank[steps[j]] })
	return steps
}
