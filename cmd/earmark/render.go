package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"earmark/internal/analysis"
	"earmark/internal/tier"
)

func displayLabel(label analysis.Label) string {
	if label == analysis.LabelAI || label == "" {
		return string(label)
	}
	return cases.Title(language.Und).String(strings.ToLower(string(label)))
}

func formatPercent(confidence float64) string {
	return fmt.Sprintf("%.0f%%", confidence*100)
}

func formatOffset(seconds float64) string {
	total := int(seconds)
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}

func formatAge(now, then time.Time) string {
	if then.IsZero() {
		return "unknown"
	}
	return now.Sub(then).Round(time.Second).String() + " ago"
}

// renderDeliverable prints a shaped result: verdict, clip summary, the chunk
// timeline, then the transcript or a note about withheld features.
func renderDeliverable(out io.Writer, jobID string, d tier.Deliverable) {
	result := d.Result
	fmt.Fprintf(out, "Verdict: %s (%s confidence)\n", displayLabel(result.OverallLabel), formatPercent(result.AggregateConfidence))
	fmt.Fprintf(out, "Job: %s\n", jobID)

	summary := analysis.SummarizeChunks(result.Chunks)
	if result.Summary != nil {
		summary = *result.Summary
	}
	if summary.TotalClips > 0 {
		fmt.Fprintf(out, "Clips: %d total, %d AI (%.0f%%), %d human (%.0f%%)\n",
			summary.TotalClips, summary.AIClips, summary.PercentAI, summary.HumanClips, summary.PercentHuman)
	}

	if len(result.Chunks) > 0 {
		rows := make([][]string, 0, len(result.Chunks))
		for _, chunk := range result.Chunks {
			rows = append(rows, []string{
				strconv.Itoa(chunk.Index + 1),
				formatOffset(chunk.StartSeconds),
				displayLabel(chunk.Label),
				formatPercent(chunk.Confidence),
			})
		}
		fmt.Fprintln(out, renderTable(out, []string{"#", "Start", "Verdict", "Confidence"}, rows,
			[]columnAlignment{alignRight, alignRight, alignLeft, alignRight}))
	}

	switch {
	case result.Transcript != nil && strings.TrimSpace(result.Transcript.Text) != "":
		fmt.Fprintln(out, "Transcript:")
		fmt.Fprintf(out, "  %s\n", strings.TrimSpace(result.Transcript.Text))
		if result.Transcript.Summary != "" {
			fmt.Fprintf(out, "Summary: %s\n", result.Transcript.Summary)
		}
		if result.Transcript.Sentiment != "" {
			fmt.Fprintf(out, "Sentiment: %s\n", result.Transcript.Sentiment)
		}
	case d.IsLimited:
		fmt.Fprintf(out, "Upgrade to Pro to unlock: %s\n", strings.Join(d.Withheld, ", "))
	}
}

type deliverableView struct {
	JobID    string           `json:"job_id"`
	State    string           `json:"state"`
	Tier     string           `json:"tier,omitempty"`
	Limited  bool             `json:"limited,omitempty"`
	Withheld []string         `json:"withheld,omitempty"`
	Result   *analysis.Result `json:"result,omitempty"`
	Error    string           `json:"error,omitempty"`
}

func viewFor(jobID string, state analysis.State, d *tier.Deliverable) deliverableView {
	view := deliverableView{JobID: jobID, State: string(state)}
	if d != nil {
		result := d.Result
		view.Tier = string(d.Tier)
		view.Limited = d.IsLimited
		view.Withheld = d.Withheld
		view.Result = &result
	}
	return view
}
