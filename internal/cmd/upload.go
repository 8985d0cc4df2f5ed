package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/gumo-py/gumo-logging/internal/config"
	"github.com/gumo-py/gumo-logging/internal/dist"
	"github.com/gumo-py/gumo-logging/internal/index"
)

var uploadCmd = &cobra.Command{
	Use:   "upload [artifacts...]",
	Short: "Upload built artifacts to a package index",
	Long: `Uploads the given artifacts to the configured production or staging
index. The first rejected upload aborts the remaining ones.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		repository, err := cmd.Flags().GetString("repository")
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

		indexCfg, err := cfg.IndexFor(repository)
		if err != nil {
			return err
		}

		client := index.NewClient(index.Index{
			BaseURL:   indexCfg.URL,
			UploadURL: indexCfg.UploadURL,
			Username:  indexCfg.Username,
			Password:  indexCfg.Password,
		})

		printTask(fmt.Sprintf("Uploading %s %s to %s", manifest.Name, manifest.Version, indexCfg.UploadURL))
		for _, artifact := range args {
			if _, err := os.Stat(artifact); err != nil {
				return eris.Wrapf(err, "artifact %s is missing; run the build task first", artifact)
			}

			if err := client.Upload(cmd.Context(), manifest, artifact); err != nil {
				return err
			}
			printSubtask(artifact)
		}

		return nil
	},
}

func init() {
	uploadCmd.Flags().StringP("repository", "r", "production", "target repository (production or staging)")

	rootCmd.AddCommand(uploadCmd)
}
