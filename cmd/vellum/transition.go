package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/vellum-dms/vellum/internal/lifecycle"
	"github.com/vellum-dms/vellum/internal/timeparsing"
	"github.com/vellum-dms/vellum/internal/types"
)

// runTransition executes one lifecycle operation and prints the resulting
// document. Errors from the engine carry their own context (illegal
// transition, missing role, dependency block) and are printed as-is.
func runTransition(req lifecycle.Request) {
	doc, err := engine.Transition(rootCtx, req)
	if err != nil {
		FatalErrorRespectJSON("%v", err)
	}
	if jsonOutput {
		printJSON(doc)
		return
	}
	fmt.Println(formatDocumentLine(doc))
}

// parseDateFlag parses a date flag value: RFC3339, "2006-01-02", a compact
// duration like 30d, or natural language like "next monday".
func parseDateFlag(value, flag string) *time.Time {
	if value == "" {
		return nil
	}
	t, err := timeparsing.Parse(value, time.Now())
	if err != nil {
		FatalError("invalid --%s value %q: %v", flag, value, err)
	}
	return &t
}

var submitCmd = &cobra.Command{
	Use:     "submit [id]",
	GroupID: "workflow",
	Short:   "Submit a draft for review",
	Args:    cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		reviewer, _ := cmd.Flags().GetString("reviewer")
		runTransition(lifecycle.Request{
			DocumentID: args[0],
			Operation:  types.OpSubmitForReview,
			Actor:      getActor(),
			Reviewer:   reviewer,
		})
	},
}

var reviewCmd = &cobra.Command{
	Use:     "review",
	GroupID: "workflow",
	Short:   "Begin or complete a document review",
}

var reviewBeginCmd = &cobra.Command{
	Use:   "begin [id]",
	Short: "Take up a pending review",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runTransition(lifecycle.Request{
			DocumentID: args[0],
			Operation:  types.OpBeginReview,
			Actor:      getActor(),
		})
	},
}

var reviewCompleteCmd = &cobra.Command{
	Use:   "complete [id]",
	Short: "Record the review outcome",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		outcome, _ := cmd.Flags().GetString("outcome")
		reason, _ := cmd.Flags().GetString("reason")
		runTransition(lifecycle.Request{
			DocumentID: args[0],
			Operation:  types.OpCompleteReview,
			Actor:      getActor(),
			Outcome:    lifecycle.ReviewOutcome(outcome),
			Reason:     reason,
		})
	},
}

var approvalCmd = &cobra.Command{
	Use:     "approval",
	GroupID: "workflow",
	Short:   "Work with pending approvals",
}

var approvalBeginCmd = &cobra.Command{
	Use:   "begin [id]",
	Short: "Take up a pending approval",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runTransition(lifecycle.Request{
			DocumentID: args[0],
			Operation:  types.OpBeginApproval,
			Actor:      getActor(),
		})
	},
}

var routeCmd = &cobra.Command{
	Use:     "route [id]",
	GroupID: "workflow",
	Short:   "Route a reviewed document for approval",
	Args:    cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		approver, _ := cmd.Flags().GetString("approver")
		runTransition(lifecycle.Request{
			DocumentID: args[0],
			Operation:  types.OpRouteForApproval,
			Actor:      getActor(),
			Approver:   approver,
		})
	},
}

var approveCmd = &cobra.Command{
	Use:     "approve [id]",
	GroupID: "workflow",
	Short:   "Approve a document with an effective date",
	Long: `Approve a routed document. The effective date may be today (the document
becomes effective immediately) or a future date (the document waits in
approved_pending_effective until the activation sweep picks it up).`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		effective, _ := cmd.Flags().GetString("effective")
		runTransition(lifecycle.Request{
			DocumentID:    args[0],
			Operation:     types.OpApprove,
			Actor:         getActor(),
			EffectiveDate: parseDateFlag(effective, "effective"),
		})
	},
}

var rejectCmd = &cobra.Command{
	Use:     "reject [id]",
	GroupID: "workflow",
	Short:   "Reject a routed document back to draft",
	Args:    cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		reason, _ := cmd.Flags().GetString("reason")
		runTransition(lifecycle.Request{
			DocumentID: args[0],
			Operation:  types.OpReject,
			Actor:      getActor(),
			Reason:     reason,
		})
	},
}

var obsoleteCmd = &cobra.Command{
	Use:     "obsolete [id]",
	GroupID: "documents",
	Short:   "Schedule an effective document for obsolescence",
	Args:    cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		on, _ := cmd.Flags().GetString("on")
		runTransition(lifecycle.Request{
			DocumentID:       args[0],
			Operation:        types.OpScheduleObsolescence,
			Actor:            getActor(),
			ObsolescenceDate: parseDateFlag(on, "on"),
		})
	},
}

var terminateCmd = &cobra.Command{
	Use:     "terminate [id]",
	GroupID: "documents",
	Short:   "Permanently terminate a document",
	Args:    cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		reason, _ := cmd.Flags().GetString("reason")
		runTransition(lifecycle.Request{
			DocumentID: args[0],
			Operation:  types.OpTerminate,
			Actor:      getActor(),
			Reason:     reason,
		})
	},
}

var reviseCmd = &cobra.Command{
	Use:     "revise [id]",
	GroupID: "documents",
	Short:   "Create a new draft version of an effective document",
	Args:    cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		change, _ := cmd.Flags().GetString("change")
		runTransition(lifecycle.Request{
			DocumentID: args[0],
			Operation:  types.OpCreateNewVersion,
			Actor:      getActor(),
			ChangeType: types.ChangeType(change),
		})
	},
}

func init() {
	submitCmd.Flags().String("reviewer", "", "Reviewer to assign (required)")
	reviewCompleteCmd.Flags().String("outcome", "approve", "Review outcome: approve or reject")
	reviewCompleteCmd.Flags().String("reason", "", "Reason (required when rejecting)")
	reviewCmd.AddCommand(reviewBeginCmd, reviewCompleteCmd)
	approvalCmd.AddCommand(approvalBeginCmd)
	routeCmd.Flags().String("approver", "", "Approver to assign (required)")
	approveCmd.Flags().String("effective", "", "Effective date: 2026-09-15, 30d, or natural language (required)")
	rejectCmd.Flags().String("reason", "", "Rejection reason (required)")
	obsoleteCmd.Flags().String("on", "", "Obsolescence date (required)")
	terminateCmd.Flags().String("reason", "", "Termination reason (required)")
	reviseCmd.Flags().String("change", "minor", "Change type: major or minor")

	rootCmd.AddCommand(submitCmd, reviewCmd, approvalCmd, routeCmd, approveCmd,
		rejectCmd, obsoleteCmd, terminateCmd, reviseCmd)
}
