package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/gumo-py/gumo-logging/internal/tools"
)

var fetchToolsCmd = &cobra.Command{
	Use:   "fetch-tools",
	Short: "Download and unpack the pinned helper toolchain",
	Long: `Downloads the tools listed in TOOLS.yml into the workspace .tools
directory. Tools that are already present with an unchanged pin are
skipped.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		wd, err := os.Getwd()
		if err != nil {
			return err
		}

		printTask("Fetching toolchain")
		if err := tools.Fetch(cmd.Context(), wd); err != nil {
			return err
		}

		printTask("Done")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(fetchToolsCmd)
}
