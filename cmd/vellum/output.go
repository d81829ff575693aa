package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/vellum-dms/vellum/internal/types"
	"github.com/vellum-dms/vellum/internal/ui"
)

func printJSON(v interface{}) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		FatalError("marshaling output: %v", err)
	}
	fmt.Println(string(out))
}

func formatDate(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Format("2006-01-02")
}

// formatDocumentLine renders a one-line document summary for list output.
func formatDocumentLine(doc *types.Document) string {
	return fmt.Sprintf("%-24s %-28s %s %s",
		doc.ID,
		ui.RenderStatus(doc.Status),
		doc.Title,
		ui.RenderMuted("("+doc.Author+")"))
}

func printDocumentDetail(doc *types.Document) {
	fmt.Printf("%s  %s\n", ui.RenderAccent(doc.ID), doc.Title)
	fmt.Printf("  status:          %s\n", ui.RenderStatus(doc.Status))
	fmt.Printf("  author:          %s\n", doc.Author)
	if doc.Reviewer != "" {
		fmt.Printf("  reviewer:        %s\n", doc.Reviewer)
	}
	if doc.Approver != "" {
		fmt.Printf("  approver:        %s\n", doc.Approver)
	}
	if doc.Classification != "" {
		fmt.Printf("  classification:  %s\n", doc.Classification)
	}
	fmt.Printf("  controlled:      %v\n", doc.Controlled)
	fmt.Printf("  effective:       %s\n", formatDate(doc.EffectiveDate))
	fmt.Printf("  obsolescence:    %s\n", formatDate(doc.ObsolescenceDate))
	fmt.Printf("  review due:      %s\n", formatDate(doc.ReviewDueDate))
	fmt.Printf("  created:         %s\n", doc.CreatedAt.Format(time.RFC3339))
	fmt.Printf("  updated:         %s\n", doc.UpdatedAt.Format(time.RFC3339))
}

func printTransitionRecord(rec *types.TransitionRecord) {
	from := string(rec.From)
	if from == "" {
		from = "·"
	}
	fmt.Printf("  %3d  %s  %-26s → %-28s %s (%s)",
		rec.Seq,
		ui.RenderMuted(rec.CreatedAt.Format("2006-01-02 15:04:05")),
		from,
		ui.RenderStatus(rec.To),
		rec.Actor,
		rec.ActorRole)
	if rec.Reason != "" {
		fmt.Printf("  %s", ui.RenderMuted(rec.Reason))
	}
	fmt.Println()
}

func printTask(task *types.WorkflowTask) {
	due := "-"
	if task.DueAt != nil {
		due = task.DueAt.Format("2006-01-02")
	}
	fmt.Printf("  %-38s %-16s %-12s %-14s due %s  %s\n",
		ui.RenderMuted(task.ID),
		string(task.Type),
		ui.RenderTaskState(task.State),
		task.Assignee,
		due,
		task.DocumentID)
}

func printEdge(edge *types.DependencyEdge) {
	marker := ui.IconPass
	if !edge.Active {
		marker = ui.IconSkip
	}
	fmt.Printf("  %s %-24s %-14s %s\n",
		marker, edge.FromID, string(edge.Type), edge.ToFamilyID)
}
