package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/gumo-py/gumo-logging/internal/config"
	"github.com/gumo-py/gumo-logging/internal/index"
)

var installCmd = &cobra.Command{
	Use:   "install [package|wheels...]",
	Short: "Install a package into the local site directory",
	Long: `Installs either a published package from the configured index
(gumo install --repository staging gumo-logging) or locally built wheels
(gumo install --local dist/gumo_logging-0.1.0.whl).`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		repository, err := cmd.Flags().GetString("repository")
		if err != nil {
			return err
		}

		version, err := cmd.Flags().GetString("version")
		if err != nil {
			return err
		}

		local, err := cmd.Flags().GetBool("local")
		if err != nil {
			return err
		}

		wd, err := os.Getwd()
		if err != nil {
			return err
		}

		cfg, err := config.Load(filepath.Join(wd, config.FileName))
		if err != nil {
			return err
		}

		siteDir := filepath.Join(wd, cfg.SiteDir)

		if local {
			for _, wheel := range args {
				if err := index.InstallLocal(wheel, siteDir); err != nil {
					return err
				}
				printSubtask(fmt.Sprintf("installed %s into %s", filepath.Base(wheel), cfg.SiteDir))
			}
			return nil
		}

		if len(args) != 1 {
			return eris.New("expected exactly one package name")
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

		printTask(fmt.Sprintf("Installing %s from %s", args[0], indexCfg.URL))
		installed, err := client.Install(cmd.Context(), args[0], version, siteDir)
		if err != nil {
			return err
		}

		printSubtask(fmt.Sprintf("installed %s %s into %s", args[0], installed, cfg.SiteDir))
		return nil
	},
}

func init() {
	installCmd.Flags().StringP("repository", "r", "staging", "source repository (production or staging)")
	installCmd.Flags().StringP("version", "v", "", "version to install (defaults to the newest release)")
	installCmd.Flags().BoolP("local", "l", false, "treat the arguments as locally built wheel files")

	rootCmd.AddCommand(installCmd)
}
