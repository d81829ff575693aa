package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vellum-dms/vellum/internal/types"
	"github.com/vellum-dms/vellum/internal/ui"
)

var showCmd = &cobra.Command{
	Use:     "show [id...]",
	GroupID: "documents",
	Short:   "Show document details",
	Args:    cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		type detail struct {
			Document *types.Document         `json:"document"`
			Edges    []*types.DependencyEdge `json:"dependencies,omitempty"`
			Tasks    []*types.WorkflowTask   `json:"open_tasks,omitempty"`
		}
		var details []detail
		for _, id := range args {
			doc, err := store.GetDocument(rootCtx, id)
			if err != nil {
				FatalErrorRespectJSON("fetching %s: %v", id, err)
			}
			edges, err := store.EdgesFrom(rootCtx, id)
			if err != nil {
				FatalErrorRespectJSON("fetching dependencies for %s: %v", id, err)
			}
			open := types.TaskOpen
			tasks, err := store.ListTasks(rootCtx, types.TaskFilter{
				State:      &open,
				DocumentID: id,
			})
			if err != nil {
				FatalErrorRespectJSON("fetching tasks for %s: %v", id, err)
			}
			details = append(details, detail{Document: doc, Edges: edges, Tasks: tasks})
		}
		if jsonOutput {
			printJSON(details)
			return
		}
		for i, d := range details {
			if i > 0 {
				fmt.Println(ui.RenderSeparator())
			}
			printDocumentDetail(d.Document)
			if len(d.Edges) > 0 {
				fmt.Println(ui.RenderCategory("dependencies"))
				for _, edge := range d.Edges {
					printEdge(edge)
				}
			}
			if len(d.Tasks) > 0 {
				fmt.Println(ui.RenderCategory("open tasks"))
				for _, task := range d.Tasks {
					printTask(task)
				}
			}
		}
	},
}

func init() {
	rootCmd.AddCommand(showCmd)
}
