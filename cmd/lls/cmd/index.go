package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marklambrecht/lightning-local-search/internal/cache"
	"github.com/marklambrecht/lightning-local-search/internal/extract"
	"github.com/marklambrecht/lightning-local-search/internal/vault"
)

func newIndexCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "index",
		Short: "Rebuild the search index from scratch",
		Long: `Rebuild the full-text index by scanning every note in the vault,
ignoring any persisted snapshot, then persist the fresh index.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			v, err := vault.NewFSVault(ctx, cfg.VaultPath)
			if err != nil {
				return err
			}
			defer func() { _ = v.Close() }()

			kv, err := cache.NewFileStore(cfg.DataDir)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			manager := cache.NewManager(v, extract.NewExtractor(), kv, cache.Options{
				StalenessFraction: cfg.Index.StalenessFraction,
				PersistDelay:      cfg.PersistDelay(),
				PersistEnabled:    cfg.Index.Persist,
				Progress: func(done, total int) {
					if done%100 == 0 || done == total {
						fmt.Fprintf(out, "\rindexing %d/%d", done, total)
					}
				},
			})
			if err := manager.Rebuild(ctx); err != nil {
				return err
			}
			if err := manager.Persist(); err != nil {
				fmt.Fprintf(out, "\nwarning: index not persisted: %v\n", err)
			}

			info := manager.Info()
			fmt.Fprintf(out, "\nindexed %d documents\n", info.DocumentCount)
			return manager.Close()
		},
	}
}
