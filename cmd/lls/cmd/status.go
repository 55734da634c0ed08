package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marklambrecht/lightning-local-search/internal/cache"
	"github.com/marklambrecht/lightning-local-search/internal/store"
	"github.com/marklambrecht/lightning-local-search/internal/vault"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show index snapshot status",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			kv, err := cache.NewFileStore(cfg.DataDir)
			if err != nil {
				return err
			}

			v, err := vault.NewFSVault(ctx, cfg.VaultPath)
			if err != nil {
				return err
			}
			defer func() { _ = v.Close() }()

			files, err := v.List(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "vault:           %s\n", cfg.VaultPath)
			fmt.Fprintf(out, "notes on disk:   %d\n", len(files))

			info, found := cache.PeekSnapshot(kv, "")
			if !found {
				fmt.Fprintln(out, "snapshot:        none (first search will rebuild)")
				return nil
			}
			fmt.Fprintf(out, "snapshot:        %d documents, built %s\n",
				info.DocumentCount, info.BuiltAt.Format("2006-01-02 15:04:05"))
			fmt.Fprintf(out, "schema version:  %d (current %d)\n",
				info.SchemaVersion, store.SchemaVersion)

			if info.SchemaVersion != store.SchemaVersion {
				fmt.Fprintln(out, "note: schema mismatch, next load rebuilds")
			} else if len(files) > 0 &&
				info.DocumentCount < int(float64(len(files))*cfg.Index.StalenessFraction) {
				fmt.Fprintln(out, "note: snapshot looks stale, next load rebuilds")
			}
			return nil
		},
	}
}
