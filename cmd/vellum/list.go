package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vellum-dms/vellum/internal/types"
)

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	GroupID: "documents",
	Short:   "List documents",
	Run: func(cmd *cobra.Command, args []string) {
		var filter types.DocumentFilter
		if s, _ := cmd.Flags().GetString("status"); s != "" {
			status := types.DocumentStatus(s)
			if !status.IsValid() {
				FatalError("invalid status %q", s)
			}
			filter.Status = &status
		}
		filter.FamilyID, _ = cmd.Flags().GetString("family")
		filter.Author, _ = cmd.Flags().GetString("author")
		filter.TitleContains, _ = cmd.Flags().GetString("title")
		filter.Limit, _ = cmd.Flags().GetInt("limit")

		docs, err := store.ListDocuments(rootCtx, filter)
		if err != nil {
			FatalErrorRespectJSON("%v", err)
		}
		if jsonOutput {
			printJSON(docs)
			return
		}
		if len(docs) == 0 {
			fmt.Println("No documents")
			return
		}
		for _, doc := range docs {
			fmt.Println(formatDocumentLine(doc))
		}
	},
}

func init() {
	listCmd.Flags().String("status", "", "Filter by status")
	listCmd.Flags().String("family", "", "Filter by document family")
	listCmd.Flags().String("author", "", "Filter by author")
	listCmd.Flags().String("title", "", "Filter by title substring")
	listCmd.Flags().Int("limit", 0, "Maximum number of results (0 = all)")
	rootCmd.AddCommand(listCmd)
}
