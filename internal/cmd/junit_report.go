package cmd

import (
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/gumo-py/gumo-logging/internal/junit"
)

var junitReportCmd = &cobra.Command{
	Use:   "junit-report",
	Short: "Convert a `go test -json` stream to a JUnit XML report",
	Long: `Reads test2json events from stdin and writes a JUnit XML report.
The command exits non-zero if the converted report contains failures, so
"go test -json ./... | gumo junit-report" fails whenever the suite does.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		output, err := cmd.Flags().GetString("output")
		if err != nil {
			return err
		}

		if err := os.MkdirAll(filepath.Dir(output), 0770); err != nil {
			return eris.Wrapf(err, "failed to create report directory for %s", output)
		}

		handle, err := os.Create(output)
		if err != nil {
			return eris.Wrapf(err, "failed to create report %s", output)
		}

		summary, err := junit.Convert(cmd.InOrStdin(), handle)
		if cerr := handle.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return err
		}

		printSubtask(output)
		if summary.Failures > 0 {
			return eris.Errorf("test suite reported %d failed test(s)", summary.Failures)
		}

		return nil
	},
}

func init() {
	junitReportCmd.Flags().StringP("output", "o", "reports/junit.xml", "report destination")

	rootCmd.AddCommand(junitReportCmd)
}
