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

	"github.com/sells-group/census-map/internal/dashboard"
	"github.com/sells-group/census-map/internal/dataset"
	"github.com/sells-group/census-map/internal/metrics"
	"github.com/sells-group/census-map/internal/render"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Load the datasets and serve the census map dashboard",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		dc, err := env.loader().Load(ctx, sources())
		if err != nil {
			return eris.Wrap(err, "load datasets")
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           buildRouter(dc, env.Metrics),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

// buildRouter wires the dashboard over a loaded data context.
func buildRouter(dc *dataset.Context, m *metrics.Metrics) http.Handler {
	return dashboard.NewHandler(dc, dashboardOptions(), m).Router()
}

func dashboardOptions() dashboard.Options {
	return dashboard.Options{
		SiteTitle:      cfg.Server.SiteTitle,
		GithubURL:      cfg.Server.GithubURL,
		SourceURL:      cfg.Server.SourceURL,
		CORSOrigins:    cfg.Server.CORSOrigins,
		RequestTimeout: time.Duration(cfg.Server.RequestTimeoutSecs) * time.Second,
		Render: render.Options{
			Zoom:       cfg.Render.Zoom,
			MapStyle:   cfg.Render.MapStyle,
			ColorScale: cfg.Render.ColorScale,
		},
		CacheEntries: cfg.Render.CacheEntries,
	}
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
