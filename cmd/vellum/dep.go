package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vellum-dms/vellum/internal/graph"
	"github.com/vellum-dms/vellum/internal/types"
	"github.com/vellum-dms/vellum/internal/ui"
)

var depCmd = &cobra.Command{
	Use:     "dep",
	GroupID: "deps",
	Short:   "Manage dependency edges between documents",
}

var depAddCmd = &cobra.Command{
	Use:   "add [from-id] [to-family]",
	Short: "Declare that a document depends on a family",
	Long: `Add a dependency edge from a document version to a document family.
The edge is rejected when it would create a cycle in the family graph.`,
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		edgeType, _ := cmd.Flags().GetString("type")
		edge := &types.DependencyEdge{
			FromID:     args[0],
			ToFamilyID: args[1],
			Type:       types.EdgeType(edgeType),
			CreatedBy:  getActor(),
		}
		if err := engine.AddDependency(rootCtx, edge); err != nil {
			FatalErrorRespectJSON("%v", err)
		}
		if jsonOutput {
			printJSON(edge)
			return
		}
		fmt.Printf("%s %s %s %s\n", ui.RenderPass(ui.IconPass),
			edge.FromID, string(edge.Type), edge.ToFamilyID)
	},
}

var depListCmd = &cobra.Command{
	Use:   "list [id]",
	Short: "List dependency edges from a document",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		edges, err := store.EdgesFrom(rootCtx, args[0])
		if err != nil {
			FatalErrorRespectJSON("%v", err)
		}
		if jsonOutput {
			printJSON(edges)
			return
		}
		if len(edges) == 0 {
			fmt.Println("No dependencies")
			return
		}
		for _, edge := range edges {
			printEdge(edge)
		}
	},
}

var depDependentsCmd = &cobra.Command{
	Use:   "dependents [family]",
	Short: "List active documents depending on a family",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		criticalOnly, _ := cmd.Flags().GetBool("critical")
		deps, err := graph.ActiveDependents(rootCtx, store, args[0], criticalOnly)
		if err != nil {
			FatalErrorRespectJSON("%v", err)
		}
		if jsonOutput {
			printJSON(deps)
			return
		}
		if len(deps) == 0 {
			fmt.Println("No active dependents")
			return
		}
		for _, d := range deps {
			fmt.Printf("  %-24s %-28s %s\n",
				d.DocumentID, ui.RenderStatus(d.Status), string(d.EdgeType))
		}
	},
}

var depCheckCmd = &cobra.Command{
	Use:   "check [id]",
	Short: "Check whether a destructive operation would be blocked",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		opStr, _ := cmd.Flags().GetString("op")
		op := types.Operation(opStr)
		if !op.Destructive() {
			FatalErrorWithHint(fmt.Sprintf("%q is not a destructive operation", opStr),
				"Use --op schedule_obsolescence or --op terminate")
		}
		result, err := engine.DependencyCheck(rootCtx, args[0], op)
		if err != nil {
			FatalErrorRespectJSON("%v", err)
		}
		if jsonOutput {
			printJSON(result)
			return
		}
		if !result.Blocked {
			fmt.Printf("%s %s is not blocked\n", ui.RenderPass(ui.IconPass), opStr)
			return
		}
		fmt.Printf("%s %s is blocked by active dependents:\n", ui.RenderFail(ui.IconFail), opStr)
		for _, d := range result.BlockingChain {
			fmt.Printf("  %-24s %-28s %s\n",
				d.DocumentID, ui.RenderStatus(d.Status), string(d.EdgeType))
		}
	},
}

func init() {
	depAddCmd.Flags().String("type", "references", "Edge type: references, implements, derived-from")
	depDependentsCmd.Flags().Bool("critical", false, "Only critical edge types (references, implements)")
	depCheckCmd.Flags().String("op", "schedule_obsolescence", "Operation to check: schedule_obsolescence or terminate")
	depCmd.AddCommand(depAddCmd, depListCmd, depDependentsCmd, depCheckCmd)
	rootCmd.AddCommand(depCmd)
}
