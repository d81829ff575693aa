package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vellum-dms/vellum/internal/types"
)

var createCmd = &cobra.Command{
	Use:     "create [title]",
	Aliases: []string{"new"},
	GroupID: "documents",
	Short:   "Create a new draft document",
	Args:    cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		family, _ := cmd.Flags().GetString("family")
		if family == "" {
			FatalErrorWithHint("family required",
				"Pass --family to name the document family, e.g. --family SOP-104")
		}
		versionStr, _ := cmd.Flags().GetString("doc-version")
		version, err := types.ParseVersion(versionStr)
		if err != nil {
			FatalError("invalid version %q: %v", versionStr, err)
		}
		classification, _ := cmd.Flags().GetString("classification")
		controlled, _ := cmd.Flags().GetBool("controlled")
		author, _ := cmd.Flags().GetString("author")
		if author == "" {
			author = getActor()
		}

		doc := &types.Document{
			ID:             types.DocumentID(family, version),
			FamilyID:       family,
			Version:        version,
			Title:          args[0],
			Author:         author,
			Classification: classification,
			Controlled:     controlled,
		}
		created, err := engine.Create(rootCtx, doc, getActor())
		if err != nil {
			FatalErrorRespectJSON("%v", err)
		}
		if jsonOutput {
			printJSON(created)
			return
		}
		fmt.Printf("Created %s\n", formatDocumentLine(created))
	},
}

func init() {
	createCmd.Flags().String("family", "", "Document family identifier (required)")
	createCmd.Flags().String("doc-version", "1.0", "Initial version, e.g. 1.0")
	createCmd.Flags().String("author", "", "Document author (default: current actor)")
	createCmd.Flags().String("classification", "", "Classification label, e.g. SOP, WI, FORM")
	createCmd.Flags().Bool("controlled", true, "Mark the document as controlled")
	rootCmd.AddCommand(createCmd)
}
