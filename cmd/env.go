package main

import (
	"context"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/census-map/internal/catalog"
	"github.com/sells-group/census-map/internal/dataset"
	"github.com/sells-group/census-map/internal/fetcher"
	"github.com/sells-group/census-map/internal/metrics"
	"github.com/sells-group/census-map/internal/store"
)

// appEnv holds the clients shared by the serve and snapshot commands.
type appEnv struct {
	Store   store.Store
	Fetcher *fetcher.Router
	Catalog *catalog.Catalog
	Metrics *metrics.Metrics
}

// Close releases resources held by the environment.
func (e *appEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initEnv validates the config for mode and opens the local table store.
// Only snapshot migrates; serve expects an existing table. Callers should
// defer env.Close().
func initEnv(ctx context.Context, mode string) (*appEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	cat, err := catalog.Default()
	if err != nil {
		return nil, eris.Wrap(err, "load catalog")
	}

	if mode == "serve" && cfg.Store.Driver == "sqlite" {
		if _, err := os.Stat(cfg.Store.DatabaseURL); err != nil {
			return nil, eris.Wrapf(err, "local table %s not found, run `census-map snapshot` first", cfg.Store.DatabaseURL)
		}
	}

	st, err := store.Open(ctx, cfg.Store.Driver, cfg.Store.DatabaseURL)
	if err != nil {
		return nil, eris.Wrap(err, "open store")
	}

	if mode == "snapshot" {
		if err := st.Migrate(ctx); err != nil {
			_ = st.Close()
			return nil, eris.Wrap(err, "migrate store")
		}
	}

	zap.L().Debug("environment ready",
		zap.String("mode", mode),
		zap.String("store", cfg.Store.Driver),
	)

	return &appEnv{
		Store:   st,
		Fetcher: newFetcher(),
		Catalog: cat,
		Metrics: metrics.New(),
	}, nil
}

func newFetcher() *fetcher.Router {
	timeout := time.Duration(cfg.Fetch.TimeoutSecs) * time.Second
	return fetcher.NewRouter(
		fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
			UserAgent:    cfg.Fetch.UserAgent,
			Timeout:      timeout,
			MaxRetries:   cfg.Fetch.MaxRetries,
			RateLimiters: fetcher.DefaultRateLimiters(),
		}),
		fetcher.NewFTPFetcher(fetcher.FTPOptions{Timeout: timeout}),
	)
}

func (e *appEnv) loader() *dataset.Loader {
	return &dataset.Loader{
		Fetcher: e.Fetcher,
		Store:   e.Store,
		Catalog: e.Catalog,
		Metrics: e.Metrics,
	}
}

func sources() dataset.Sources {
	return dataset.Sources{
		CountiesURL:         cfg.Sources.CountiesURL,
		CountiesCharset:     cfg.Sources.CountiesCharset,
		RUCCURL:             cfg.Sources.RUCCURL,
		BoundariesURL:       cfg.Sources.BoundariesURL,
		BoundariesShapefile: cfg.Sources.BoundariesShapefile,
	}
}
