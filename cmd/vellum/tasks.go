package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/vellum-dms/vellum/internal/types"
)

var tasksCmd = &cobra.Command{
	Use:     "tasks",
	GroupID: "workflow",
	Short:   "List workflow tasks",
	Run: func(cmd *cobra.Command, args []string) {
		var filter types.TaskFilter
		if s, _ := cmd.Flags().GetString("state"); s != "" {
			state := types.TaskState(s)
			if !state.IsValid() {
				FatalError("invalid task state %q", s)
			}
			filter.State = &state
		}
		if s, _ := cmd.Flags().GetString("type"); s != "" {
			taskType := types.TaskType(s)
			if !taskType.IsValid() {
				FatalError("invalid task type %q", s)
			}
			filter.Type = &taskType
		}
		filter.DocumentID, _ = cmd.Flags().GetString("doc")
		filter.Assignee, _ = cmd.Flags().GetString("assignee")
		filter.Limit, _ = cmd.Flags().GetInt("limit")
		if overdue, _ := cmd.Flags().GetBool("overdue"); overdue {
			now := time.Now()
			filter.DueBefore = &now
			if filter.State == nil {
				open := types.TaskOpen
				filter.State = &open
			}
		}

		tasks, err := store.ListTasks(rootCtx, filter)
		if err != nil {
			FatalErrorRespectJSON("%v", err)
		}
		if jsonOutput {
			printJSON(tasks)
			return
		}
		if len(tasks) == 0 {
			fmt.Println("No tasks")
			return
		}
		for _, task := range tasks {
			printTask(task)
		}
	},
}

func init() {
	tasksCmd.Flags().String("state", "", "Filter by state: open, done, escalated")
	tasksCmd.Flags().String("type", "", "Filter by type: review, approval, periodic_review")
	tasksCmd.Flags().String("doc", "", "Filter by document ID")
	tasksCmd.Flags().String("assignee", "", "Filter by assignee")
	tasksCmd.Flags().Bool("overdue", false, "Only tasks past their due date")
	tasksCmd.Flags().Int("limit", 0, "Maximum number of results (0 = all)")
	rootCmd.AddCommand(tasksCmd)
}
