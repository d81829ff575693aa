package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/vellum-dms/vellum/internal/config"
	"github.com/vellum-dms/vellum/internal/ui"
)

const defaultConfigYAML = `# vellum configuration
# db: .vellum/vellum.db
# actor: alice
# roles-file: .vellum/roles.toml

daemon:
  activation-interval: 1h
  obsolescence-interval: 3h
  escalation-interval: 3h
  review-interval: 24h
`

const defaultRolesTOML = `# Standing role grants. Per-document roles (author, reviewer, approver)
# come from the document record itself.

admins = []
reviewers = []
approvers = []
`

var initCmd = &cobra.Command{
	Use:     "init",
	GroupID: "documents",
	Short:   "Initialize a vellum workspace in the current directory",
	Run: func(cmd *cobra.Command, args []string) {
		dir := config.ConfigDirName
		if err := os.MkdirAll(dir, 0o755); err != nil {
			FatalError("creating %s: %v", dir, err)
		}
		wrote := false
		for name, content := range map[string]string{
			"config.yaml": defaultConfigYAML,
			"roles.toml":  defaultRolesTOML,
		} {
			path := filepath.Join(dir, name)
			if _, err := os.Stat(path); err == nil {
				continue // never overwrite an existing config
			}
			if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
				FatalError("writing %s: %v", path, err)
			}
			wrote = true
		}
		if jsonOutput {
			printJSON(map[string]interface{}{"dir": dir, "created": wrote})
			return
		}
		if wrote {
			fmt.Printf("%s initialized %s/\n", ui.RenderPass(ui.IconPass), dir)
		} else {
			fmt.Printf("%s %s/ already initialized\n", ui.IconInfo, dir)
		}
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
