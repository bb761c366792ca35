package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/familyhub/centres-api/internal/api"
	"github.com/familyhub/centres-api/internal/cache"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the centres HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if servePort != 0 {
			cfg.Server.Port = servePort
		}
		if err := cfg.Validate("serve"); err != nil {
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

		catalog := newCKANClient(cfg.CKAN)
		centres := newCentreService(cfg.Centres, pool)

		if ready, err := centres.IndexReady(ctx); err != nil || !ready {
			zap.L().Warn("spatial index not ready; nearest queries will fail until `centres migrate` and `centres rebuild` run",
				zap.Bool("ready", ready), zap.Error(err))
		}

		handler := api.NewRouter(api.Deps{
			Catalog:  catalog,
			Cache:    cache.NewRefresher(catalog, store, cfg.Cache.Key),
			Centres:  centres,
			Geocoder: newGeocoder(cfg.Geocode),
		}, api.Options{
			CORSOrigins:    cfg.Server.CORSOrigins,
			RequestTimeout: time.Duration(cfg.Server.RequestTimeoutSecs) * time.Second,
		})

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				zap.L().Warn("server shutdown", zap.Error(err))
			}
		}()

		zap.L().Info("starting server", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
