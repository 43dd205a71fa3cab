package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/kikiluvv/splice/internal/config"
	"github.com/kikiluvv/splice/internal/logging"
)

var (
	cfgFile     string
	verbose     bool
	projectPath string
)

func main() {
	ctx := context.Background()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:          "splice",
	Short:        "splice - multi-track timeline editor",
	Long:         "A non-linear video and audio editor: import media, arrange clips on tracks, cut, trim, fade, preview and export.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Initialize logging
		logging.Init(verbose)

		// Load config
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}

		// Store config in context
		ctx := config.WithConfig(cmd.Context(), cfg)
		cmd.SetContext(ctx)

		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./splice.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVarP(&projectPath, "project", "p", "project.splice", "project file")

	rootCmd.AddCommand(newCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(trackCmd)
	rootCmd.AddCommand(clipCmd)
	rootCmd.AddCommand(renderCmd)
	rootCmd.AddCommand(previewCmd)
}
