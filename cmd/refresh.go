package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/familyhub/centres-api/internal/cache"
	"github.com/familyhub/centres-api/internal/db"
)

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Fetch the catalog and replace the cached document",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("refresh"); err != nil {
			return err
		}

		var pool db.Pool
		if cfg.Cache.Driver == "postgres" {
			p, err := openPool(ctx, cfg)
			if err != nil {
				return err
			}
			defer p.Close()
			pool = p
		}

		store, closeCache, err := openCache(ctx, cfg.Cache, pool)
		if err != nil {
			return eris.Wrap(err, "open cache")
		}
		defer closeCache()

		payload, err := cache.NewRefresher(newCKANClient(cfg.CKAN), store, cfg.Cache.Key).Refresh(ctx)
		if err != nil {
			return eris.Wrap(err, "refresh cache")
		}

		fmt.Fprintf(cmd.OutOrStdout(), "cached %d bytes under %q\n", len(payload), cfg.Cache.Key)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(refreshCmd)
}
