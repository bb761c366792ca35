package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/familyhub/centres-api/internal/centre"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply centres schema migrations",
	Long:  "Applies all pending SQL migrations to the centres schema in lexicographic order.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("migrate"); err != nil {
			return err
		}

		pool, err := openPool(ctx, cfg)
		if err != nil {
			return err
		}
		defer pool.Close()

		if err := centre.Migrate(ctx, pool); err != nil {
			return eris.Wrap(err, "centres migrate")
		}

		zap.L().Info("all migrations applied successfully")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
