package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/marklambrecht/lightning-local-search/internal/cache"
	"github.com/marklambrecht/lightning-local-search/internal/config"
	"github.com/marklambrecht/lightning-local-search/internal/extract"
	"github.com/marklambrecht/lightning-local-search/internal/query"
	"github.com/marklambrecht/lightning-local-search/internal/search"
	"github.com/marklambrecht/lightning-local-search/internal/vault"
)

// searchOptions holds CLI flags for search.
type searchOptions struct {
	limit         int
	excerptLen    int
	format        string // "text", "json"
	caseSensitive bool
	noFuzzy       bool
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the note collection",
		Long: `Search the indexed note collection.

Query syntax:
  planning meeting          free text
  "quarterly planning"      exact phrase
  #project -#old            include / exclude tags
  path:work                 folder or path prefix
  created:>2024-01-01       date filters (created:, modified:, <, >)
  heading:overview          heading content
  status:active             frontmatter property
  -dentist                  exclude a term

Examples:
  lls search "#project path:work planning"
  lls search 'created:>2024-01-01 meeting' --limit 5
  lls search 'status:draft' --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd.Context(), cmd, strings.Join(args, " "), opts)
		},
	}

	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 0, "Maximum number of results (default from config)")
	cmd.Flags().IntVar(&opts.excerptLen, "excerpt", 0, "Excerpt length in characters (default from config)")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")
	cmd.Flags().BoolVar(&opts.caseSensitive, "case-sensitive", false, "Match phrases and terms exactly")
	cmd.Flags().BoolVar(&opts.noFuzzy, "no-fuzzy", false, "Disable fuzzy term matching")

	return cmd
}

func runSearch(ctx context.Context, cmd *cobra.Command, raw string, opts searchOptions) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	manager, _, cleanup, err := openIndex(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	coordinator, err := search.NewCoordinator(manager)
	if err != nil {
		return err
	}

	searchOpts := search.Options{
		Limit:         cfg.Search.Limit,
		ExcerptLength: cfg.Search.ExcerptLength,
		Fuzzy:         cfg.Search.Fuzzy && !opts.noFuzzy,
		CaseSensitive: cfg.Search.CaseSensitive || opts.caseSensitive,
	}
	if opts.limit > 0 {
		searchOpts.Limit = opts.limit
	}
	if opts.excerptLen > 0 {
		searchOpts.ExcerptLength = opts.excerptLen
	}

	results, err := coordinator.Search(ctx, query.Parse(raw), searchOpts)
	if err != nil {
		return err
	}

	if opts.format == "json" {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}
	printResults(cmd, results)
	return nil
}

// printResults renders text output; plain single-line entries when the
// output is piped.
func printResults(cmd *cobra.Command, results []search.Result) {
	out := cmd.OutOrStdout()
	if len(results) == 0 {
		fmt.Fprintln(out, "no results")
		return
	}

	plain := true
	if f, ok := out.(*os.File); ok {
		plain = !isatty.IsTerminal(f.Fd())
	}

	for i, r := range results {
		if plain {
			fmt.Fprintf(out, "%s\t%.3f\t%s\n", r.Path, r.Score, r.Excerpt)
			continue
		}
		fmt.Fprintf(out, "%d. %s  (%s, score %.3f)\n", i+1, r.Title, r.Path, r.Score)
		if len(r.Tags) > 0 {
			fmt.Fprintf(out, "   tags: %s\n", strings.Join(r.Tags, ", "))
		}
		if r.Excerpt != "" {
			fmt.Fprintf(out, "   %s\n", r.Excerpt)
		}
	}
}

// openIndex wires the vault, extractor and cache manager, initializing
// the index from snapshot or rebuild. The cleanup closes everything.
func openIndex(ctx context.Context, cfg config.Config) (*cache.Manager, *vault.FSVault, func(), error) {
	v, err := vault.NewFSVault(ctx, cfg.VaultPath)
	if err != nil {
		return nil, nil, nil, err
	}
	kv, err := cache.NewFileStore(cfg.DataDir)
	if err != nil {
		_ = v.Close()
		return nil, nil, nil, err
	}

	manager := cache.NewManager(v, extract.NewExtractor(), kv, cache.Options{
		StalenessFraction: cfg.Index.StalenessFraction,
		PersistDelay:      cfg.PersistDelay(),
		PersistEnabled:    cfg.Index.Persist,
	})
	if err := manager.Initialize(ctx); err != nil {
		_ = v.Close()
		return nil, nil, nil, err
	}

	cleanup := func() {
		_ = manager.Close()
		_ = v.Close()
	}
	return manager, v, cleanup, nil
}
