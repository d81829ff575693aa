package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/vellum-dms/vellum/internal/audit"
	"github.com/vellum-dms/vellum/internal/ui"
)

var historyCmd = &cobra.Command{
	Use:     "history [id]",
	GroupID: "audit",
	Short:   "Show the audit trail for a document",
	Args:    cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		verify, _ := cmd.Flags().GetBool("verify")
		recorder := audit.NewRecorder(store)
		records, err := recorder.History(rootCtx, args[0])
		if err != nil {
			FatalErrorRespectJSON("%v", err)
		}
		if verify {
			if err := recorder.VerifyIntegrity(rootCtx, args[0]); err != nil {
				FatalErrorRespectJSON("%v", err)
			}
		}
		if jsonOutput {
			printJSON(records)
			return
		}
		for _, rec := range records {
			printTransitionRecord(rec)
		}
		if verify {
			fmt.Printf("%s audit chain verified (%d records)\n",
				ui.RenderPass(ui.IconPass), len(records))
		}
	},
}

var verifyCmd = &cobra.Command{
	Use:     "verify [id...]",
	GroupID: "audit",
	Short:   "Verify audit chain integrity",
	Long: `Verify the audit checksum chain. With document IDs, each named trail is
checked; with no arguments every document in the database is checked.`,
	Run: func(cmd *cobra.Command, args []string) {
		recorder := audit.NewRecorder(store)
		var failures []*audit.IntegrityError
		if len(args) == 0 {
			var err error
			failures, err = recorder.VerifyAll(rootCtx)
			if err != nil {
				FatalErrorRespectJSON("%v", err)
			}
		} else {
			for _, id := range args {
				if err := recorder.VerifyIntegrity(rootCtx, id); err != nil {
					var ie *audit.IntegrityError
					if !errors.As(err, &ie) {
						FatalErrorRespectJSON("%v", err)
					}
					failures = append(failures, ie)
				}
			}
		}
		if jsonOutput {
			printJSON(map[string]interface{}{
				"ok":       len(failures) == 0,
				"failures": failures,
			})
			if len(failures) > 0 {
				os.Exit(1)
			}
			return
		}
		if len(failures) == 0 {
			fmt.Printf("%s all audit chains verified\n", ui.RenderPass(ui.IconPass))
			return
		}
		for _, f := range failures {
			fmt.Printf("%s %s: %s\n", ui.RenderFail(ui.IconFail), f.DocumentID, f.Reason)
		}
		os.Exit(1)
	},
}

func init() {
	historyCmd.Flags().Bool("verify", false, "Verify the checksum chain before printing")
	rootCmd.AddCommand(historyCmd, verifyCmd)
}
