// Package cmd implements the gumo multi-tool: the task runner plus the
// helper commands the pipeline tasks invoke.
package cmd

import (
	"github.com/mitchellh/colorstring"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "gumo",
	Short: "Build and release tooling for gumo-logging",
	Long: `This command bundles the tools used to build, test and release the
gumo-logging package: the task runner, the artifact packer, the index
upload/install client and a few cross-platform shell helpers.`,
}

// Execute runs the root command and exits on error.
func Execute() {
	cobra.CheckErr(rootCmd.Execute())
}

func printTask(msg string) {
	colorstring.Printf("[blue][bold]==>[default] %s\n", msg)
}

func printSubtask(msg string) {
	colorstring.Printf("[green][bold]  ->[reset] %s\n", msg)
}
