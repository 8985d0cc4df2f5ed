package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/gumo-py/gumo-logging/internal/config"
	"github.com/gumo-py/gumo-logging/internal/dist"
)

var packCmd = &cobra.Command{
	Use:   "pack",
	Short: "Build the distribution artifacts",
	Long: `Reads package.yml from the working directory and writes the source
archive, the wheel and the package metadata directory.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		compression, err := cmd.Flags().GetString("compression")
		if err != nil {
			return err
		}

		wd, err := os.Getwd()
		if err != nil {
			return err
		}

		manifest, err := dist.LoadManifest(filepath.Join(wd, dist.ManifestName))
		if err != nil {
			return err
		}

		cfg, err := config.Load(filepath.Join(wd, config.FileName))
		if err != nil {
			return err
		}

		printTask(fmt.Sprintf("Building %s %s", manifest.Name, manifest.Version))
		builder := dist.Builder{
			Manifest:    manifest,
			RootDir:     wd,
			DistDir:     filepath.Join(wd, cfg.DistDir),
			Compression: compression,
		}

		result, err := builder.Build(cmd.Context())
		if err != nil {
			return err
		}

		printSubtask(result.SDist)
		printSubtask(result.Wheel)
		printSubtask(result.MetadataDir)
		return nil
	},
}

func init() {
	packCmd.Flags().StringP("compression", "c", "gz", "source archive compression (gz, xz or br)")

	rootCmd.AddCommand(packCmd)
}
