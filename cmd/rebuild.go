package main

import (
	"encoding/json"
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/familyhub/centres-api/internal/cache"
	"github.com/familyhub/centres-api/internal/centre"
)

var (
	rebuildFetch  bool
	rebuildDryRun bool
)

var rebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Normalize the cached dataset into the centres table",
	Long: "Reads the cached catalog document (or refreshes it first with --fetch), " +
		"normalizes every record, and atomically replaces the centres table. " +
		"With --dry-run nothing is written and only the report is printed.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("rebuild"); err != nil {
			return err
		}

		pool, err := openPool(ctx, cfg)
		if err != nil {
			return err
		}
		defer pool.Close()

		store, closeCache, err := openCache(ctx, cfg.Cache, pool)
		if err != nil {
			return eris.Wrap(err, "open cache")
		}
		defer closeCache()

		refresher := cache.NewRefresher(newCKANClient(cfg.CKAN), store, cfg.Cache.Key)
		source := centre.PayloadSourceFunc(refresher.Read)
		if rebuildFetch {
			source = centre.PayloadSourceFunc(refresher.Refresh)
		}

		report, err := centre.NewRebuilder(source, centre.NewPostgresStore(pool)).Run(ctx, rebuildDryRun)
		if err != nil {
			if eris.Is(err, cache.ErrNotFound) {
				return eris.Wrap(err, "nothing cached yet; run `centres refresh` or pass --fetch")
			}
			return err
		}

		out, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return eris.Wrap(err, "encode report")
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(out))
		return nil
	},
}

func init() {
	rebuildCmd.Flags().BoolVar(&rebuildFetch, "fetch", false, "refresh the cache from the catalog before rebuilding")
	rebuildCmd.Flags().BoolVar(&rebuildDryRun, "dry-run", false, "normalize and report without writing")
	rootCmd.AddCommand(rebuildCmd)
}
