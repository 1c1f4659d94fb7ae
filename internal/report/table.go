package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/kursadbilgin/onboarding-engine/internal/domain"
)

// RenderTable writes a human readable run report.
func RenderTable(w io.Writer, summary domain.RunSummary, metrics *domain.RunMetrics) {
	overview := table.NewWriter()
	overview.SetOutputMirror(w)
	overview.SetTitle("Onboarding run " + summary.RunID)
	overview.AppendRows([]table.Row{
		{"Organization", summary.Organization},
		{"Project", summary.ProjectSlug},
		{"Status", summary.Status},
		{"Contacts", summary.ContactCount},
		{"Succeeded / Partial / Failed", fmt.Sprintf("%d / %d / %d", summary.Succeeded, summary.PartialFailure, summary.Failed)},
	})
	if summary.AbortReason != "" {
		overview.AppendRow(table.Row{"Aborted", summary.AbortReason})
	}
	if summary.LandscapeAttempted {
		landscape := summary.LandscapeURL
		if summary.LandscapeError != "" {
			landscape = "failed: " + summary.LandscapeError
		}
		overview.AppendRow(table.Row{"Landscape", landscape})
	}
	overview.Render()

	if len(summary.Outcomes) > 0 {
		contacts := table.NewWriter()
		contacts.SetOutputMirror(w)
		contacts.AppendHeader(table.Row{"#", "Contact", "Category", "Committee", "Committee Step", "Chat", "Email", "Status"})
		for _, outcome := range summary.Outcomes {
			contacts.AppendRow(table.Row{
				outcome.Index + 1,
				outcome.Email,
				outcome.Category,
				outcome.Committee,
				stepCell(outcome, domain.StepCommittee),
				stepCell(outcome, domain.StepChat),
				stepCell(outcome, domain.StepEmail),
				outcome.Status,
			})
		}
		contacts.Render()
	}

	steps := orderedSteps(metrics)
	if len(steps) > 0 {
		timings := table.NewWriter()
		timings.SetOutputMirror(w)
		timings.AppendHeader(table.Row{"Step", "Succeeded", "Failed", "Skipped", "Avg", "Max"})
		for _, step := range steps {
			m := metrics.Steps[step]
			timings.AppendRow(table.Row{step, m.Succeeded, m.Failed, m.Skipped, m.AverageDuration(), m.MaxDuration})
		}
		timings.AppendFooter(table.Row{"Total", "", "", "", "", metrics.Duration})
		timings.Render()
	}
}

func stepCell(outcome domain.BatchOutcome, step domain.Step) string {
	result, ok := outcome.Step(step)
	if !ok {
		return "-"
	}
	cell := strings.ToLower(result.Status.String())
	if result.Attempts > 1 {
		cell = fmt.Sprintf("%s (%d tries)", cell, result.Attempts)
	}
	if result.AlreadyMember {
		cell += " (member)"
	}
	return cell
}
