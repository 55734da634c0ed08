// Package cmd provides the CLI commands for lightning-local-search.
package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/marklambrecht/lightning-local-search/internal/config"
	"github.com/marklambrecht/lightning-local-search/internal/logging"
)

var (
	vaultFlag      string
	debugMode      bool
	loggingCleanup func()
)

// NewRootCmd creates the root command for the lls CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lls",
		Short: "Local full-text search over a note collection",
		Long: `lightning-local-search maintains a full-text index over a folder of
markdown notes and answers structured queries: free text, #tags,
path: filters, date ranges, "exact phrases", -exclusions and
frontmatter key:value filters.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&vaultFlag, "vault", ".", "Path to the note collection")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging")

	cmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logCfg := logging.DefaultConfig()
		logCfg.Level = cfg.LogLevel
		logCfg.FilePath = filepath.Join(cfg.DataDir, "lls.log")
		logCfg.WriteToStderr = false
		if debugMode {
			logCfg.Level = "debug"
			logCfg.WriteToStderr = true
		}
		cleanup, err := logging.Setup(logCfg)
		if err != nil {
			return fmt.Errorf("failed to set up logging: %w", err)
		}
		loggingCleanup = cleanup
		return nil
	}
	cmd.PersistentPostRun = func(cmd *cobra.Command, args []string) {
		if loggingCleanup != nil {
			loggingCleanup()
		}
	}

	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newWatchCmd())
	cmd.AddCommand(newStatusCmd())
	return cmd
}

// loadConfig resolves the vault flag and loads its configuration.
func loadConfig() (config.Config, error) {
	vaultPath, err := filepath.Abs(vaultFlag)
	if err != nil {
		return config.Config{}, fmt.Errorf("failed to resolve vault path: %w", err)
	}
	return config.Load(vaultPath)
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}
