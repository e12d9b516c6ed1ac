package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/timothygachengo/riju/pkg/config"
)

var (
	flagManifest string

	// Cfg holds the resolved project configuration, available to all
	// subcommands after PersistentPreRunE completes.
	Cfg *config.Config

	// ProjectRoot is the directory containing the manifest.
	ProjectRoot string
)

func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "riju",
		Short: "Riju build and deploy tooling",
		Long:  "riju reconciles the project's build artifacts (images, packages, tests, deploys) against their declared inputs and the published artifact store.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			manifest := flagManifest
			if manifest == "" {
				wd, err := os.Getwd()
				if err != nil {
					return fmt.Errorf("getting working directory: %w", err)
				}
				manifest = filepath.Join(wd, config.ManifestFileName)
			}

			cfg, err := config.Load(manifest)
			if err != nil {
				return err
			}
			Cfg = cfg
			ProjectRoot = filepath.Dir(manifest)
			return nil
		},
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&flagManifest, "manifest", "", "path to riju.toml (default ./riju.toml)")

	root.AddCommand(newDepsCmd())

	return root
}

func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
