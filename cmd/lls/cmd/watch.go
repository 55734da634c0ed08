package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/marklambrecht/lightning-local-search/internal/extract"
	"github.com/marklambrecht/lightning-local-search/internal/index"
)

func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Keep the index up to date as notes change",
		Long: `Watch the vault for file changes and apply them to the index
incrementally. Rapid edits are coalesced; the index is persisted
periodically and once more on shutdown. Runs until interrupted.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			manager, v, cleanup, err := openIndex(ctx, cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			sync := index.NewSyncManager(v, extract.NewExtractor(), manager,
				cfg.DebounceWindow(), manager.NoteChanged)
			defer sync.Stop()

			fmt.Fprintf(cmd.OutOrStdout(), "watching %s (%d documents indexed)\n",
				cfg.VaultPath, manager.Info().DocumentCount)

			g, ctx := errgroup.WithContext(ctx)
			g.Go(func() error { return sync.Run(ctx) })
			if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
}
