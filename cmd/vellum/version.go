package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version and Build are set at link time via -ldflags.
var (
	Version = "0.3.0"
	Build   = "dev"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		if jsonOutput {
			printJSON(map[string]string{"version": Version, "build": Build})
			return
		}
		fmt.Printf("vellum version %s (%s)\n", Version, Build)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
