// Package dataset builds the immutable data context the dashboard serves
// from: the merged county table, its column schema, the state partition
// index and the county boundaries.
package dataset

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/census-map/internal/boundary"
	"github.com/sells-group/census-map/internal/catalog"
	"github.com/sells-group/census-map/internal/census"
	"github.com/sells-group/census-map/internal/fetcher"
	"github.com/sells-group/census-map/internal/metrics"
	"github.com/sells-group/census-map/internal/partition"
	"github.com/sells-group/census-map/internal/store"
)

// Source names used in logs and metrics.
const (
	SourceLocalTable = "local_table"
	SourceCounties   = "counties"
	SourceRUCC       = "rucc"
	SourceBoundaries = "boundaries"
)

// Sources locates the startup inputs. Locations may be http(s) or ftp
// URLs or local paths.
type Sources struct {
	CountiesURL     string
	CountiesCharset string
	RUCCURL         string
	BoundariesURL   string
	// BoundariesShapefile, when set, replaces BoundariesURL with a TIGER
	// county shapefile (.shp with sidecars, or .zip).
	BoundariesShapefile string
}

// Context is everything loaded at startup. It is never mutated after Load
// returns.
type Context struct {
	Catalog    *catalog.Catalog
	Table      *census.Table
	Schema     census.Schema
	Index      *partition.Index
	Boundaries *boundary.Collection
	Snapshot   *store.Snapshot // nil when no local table store is configured
	LoadedAt   time.Time
}

// Loader reads the startup sources.
type Loader struct {
	Fetcher fetcher.Fetcher
	// Store is the local pre-processed table. When nil the schema is
	// derived from the catalog.
	Store   store.Store
	Catalog *catalog.Catalog
	TempDir string
	Metrics *metrics.Metrics
}

// Load reads every source in order and builds the Context. Any failure is
// fatal for the caller; nothing is retried here.
func (l *Loader) Load(ctx context.Context, src Sources) (*Context, error) {
	if l.Catalog == nil {
		return nil, eris.New("dataset: loader has no catalog")
	}
	out := &Context{Catalog: l.Catalog}

	err := l.timed(SourceLocalTable, func() error {
		snap, schema, err := l.loadSchema(ctx)
		if err != nil {
			return err
		}
		out.Snapshot = snap
		out.Schema = schema
		return nil
	})
	if err != nil {
		return nil, err
	}

	table, err := l.BuildTable(ctx, src)
	if err != nil {
		return nil, err
	}
	out.Table = table

	err = l.timed(SourceBoundaries, func() error {
		b, err := l.loadBoundaries(ctx, src)
		if err != nil {
			return err
		}
		out.Boundaries = b
		return nil
	})
	if err != nil {
		return nil, err
	}

	fipsCodes := make([]string, 0, table.Len())
	for _, r := range table.Rows() {
		fipsCodes = append(fipsCodes, r.FIPS)
	}
	if missing := out.Boundaries.Missing(fipsCodes); len(missing) > 0 {
		zap.L().Warn("dataset: counties without boundary polygons",
			zap.Int("count", len(missing)),
			zap.Strings("sample", sample(missing, 10)),
		)
	}

	var orphans int
	for _, id := range out.Boundaries.FIPS() {
		if _, ok := table.Lookup(id); !ok {
			orphans++
		}
	}
	if orphans > 0 {
		zap.L().Debug("dataset: boundary polygons without county rows", zap.Int("count", orphans))
	}

	out.Index = partition.Build(table, l.Catalog.StateNames())
	if n := out.Index.Len(); n != table.Len() {
		return nil, eris.Errorf("dataset: state index holds %d rows, table has %d", n, table.Len())
	}
	out.LoadedAt = time.Now().UTC()

	l.Metrics.SetDatasetRows(SourceCounties, table.Len())
	l.Metrics.SetDatasetRows(SourceBoundaries, out.Boundaries.Len())

	zap.L().Info("dataset: loaded",
		zap.Int("counties", table.Len()),
		zap.Int("boundaries", out.Boundaries.Len()),
		zap.Int("schema_columns", out.Schema.Len()),
		zap.Int("states", len(out.Index.States())),
		zap.Int("states_with_counties", len(table.States())),
	)
	return out, nil
}

// BuildTable downloads the county CSV and the RUCC spreadsheet, joins
// them and drops rows for jurisdictions outside the catalog.
func (l *Loader) BuildTable(ctx context.Context, src Sources) (*census.Table, error) {
	if l.Catalog == nil {
		return nil, eris.New("dataset: loader has no catalog")
	}

	var counties []census.Record
	err := l.timed(SourceCounties, func() error {
		var err error
		counties, err = l.loadCounties(ctx, src)
		return err
	})
	if err != nil {
		return nil, err
	}

	var rucc map[int]census.RUCCRow
	err = l.timed(SourceRUCC, func() error {
		var err error
		rucc, err = l.loadRUCC(ctx, src.RUCCURL)
		return err
	})
	if err != nil {
		return nil, err
	}

	merged := census.Merge(counties, rucc)
	kept, dropped := census.FilterStates(merged, l.Catalog.HasState)
	for state, n := range dropped {
		zap.L().Info("dataset: dropped rows outside the state catalog",
			zap.String("state", state),
			zap.Int("rows", n),
		)
	}

	table, err := census.NewTable(kept)
	if err != nil {
		return nil, eris.Wrap(err, "dataset: build table")
	}
	return table, nil
}

func (l *Loader) loadSchema(ctx context.Context) (*store.Snapshot, census.Schema, error) {
	if l.Store == nil {
		return nil, census.DefaultSchema(l.Catalog.VariableNames()), nil
	}
	snap, err := l.Store.LatestSnapshot(ctx)
	if err != nil {
		if eris.Is(err, store.ErrNoSnapshot) {
			return nil, census.Schema{}, eris.Wrap(err, "dataset: local table is empty, run `census-map snapshot` first")
		}
		return nil, census.Schema{}, eris.Wrap(err, "dataset: read local table")
	}
	schema, err := l.Store.LoadSchema(ctx, snap.ID)
	if err != nil {
		return nil, census.Schema{}, eris.Wrap(err, "dataset: read local table schema")
	}
	for _, name := range l.Catalog.VariableNames() {
		if _, ok := schema.Kind(name); !ok {
			zap.L().Warn("dataset: variable missing from local table schema", zap.String("variable", name))
		}
	}
	zap.L().Info("dataset: local table snapshot",
		zap.String("snapshot_id", snap.ID),
		zap.Time("created_at", snap.CreatedAt),
		zap.Int("rows", snap.Rows),
	)
	return snap, schema, nil
}

func (l *Loader) loadCounties(ctx context.Context, src Sources) ([]census.Record, error) {
	if src.CountiesURL == "" {
		return nil, eris.New("dataset: counties source is not configured")
	}
	rc, err := l.Fetcher.Download(ctx, src.CountiesURL)
	if err != nil {
		return nil, eris.Wrap(err, "dataset: download counties")
	}
	defer rc.Close() //nolint:errcheck

	r, err := fetcher.DecodeCharset(rc, src.CountiesCharset)
	if err != nil {
		return nil, eris.Wrap(err, "dataset: counties")
	}
	rows, err := fetcher.ReadCSV(ctx, r, fetcher.CSVOptions{TrimSpace: true})
	if err != nil {
		return nil, eris.Wrap(err, "dataset: read counties csv")
	}
	return census.ParseCounties(rows, l.Catalog.VariableNames())
}

func (l *Loader) loadRUCC(ctx context.Context, location string) (map[int]census.RUCCRow, error) {
	if location == "" {
		return nil, eris.New("dataset: rucc source is not configured")
	}
	path, cleanup, err := l.downloadTemp(ctx, location, "rucc-*")
	if err != nil {
		return nil, eris.Wrap(err, "dataset: download rucc")
	}
	defer cleanup()

	format, err := fetcher.DetectFileFormat(path)
	if err != nil {
		return nil, eris.Wrap(err, "dataset: rucc")
	}

	var rows [][]string
	switch format {
	case fetcher.FormatXLSX:
		rows, err = fetcher.ReadXLSX(path, fetcher.XLSXOptions{})
	case fetcher.FormatCSV:
		rows, err = readCSVFile(ctx, path)
	case fetcher.FormatXLS:
		rows, err = fetcher.ReadXLS(path, fetcher.XLSXOptions{})
	}
	if err != nil {
		return nil, eris.Wrapf(err, "dataset: read rucc %s", format)
	}
	return census.ParseRUCC(rows)
}

func (l *Loader) loadBoundaries(ctx context.Context, src Sources) (*boundary.Collection, error) {
	if src.BoundariesShapefile != "" {
		return l.loadShapefile(ctx, src.BoundariesShapefile)
	}
	if src.BoundariesURL == "" {
		return nil, eris.New("dataset: boundaries source is not configured")
	}
	rc, err := l.Fetcher.Download(ctx, src.BoundariesURL)
	if err != nil {
		return nil, eris.Wrap(err, "dataset: download boundaries")
	}
	defer rc.Close() //nolint:errcheck

	c, err := boundary.ReadGeoJSON(rc)
	if err != nil {
		return nil, eris.Wrap(err, "dataset: boundaries")
	}
	return c, nil
}

// loadShapefile reads a local shapefile in place. Remote shapefiles must
// be zip archives since the .dbf sidecar has to travel with the .shp.
func (l *Loader) loadShapefile(ctx context.Context, location string) (*boundary.Collection, error) {
	if !isRemote(location) {
		return boundary.LoadShapefile(strings.TrimPrefix(location, "file://"))
	}
	if !strings.HasSuffix(strings.ToLower(location), ".zip") {
		return nil, eris.Errorf("dataset: remote shapefile %s must be a .zip archive", location)
	}
	path, cleanup, err := l.downloadTemp(ctx, location, "boundaries-*.zip")
	if err != nil {
		return nil, eris.Wrap(err, "dataset: download shapefile")
	}
	defer cleanup()
	return boundary.LoadShapefile(path)
}

func (l *Loader) downloadTemp(ctx context.Context, location, pattern string) (string, func(), error) {
	f, err := os.CreateTemp(l.TempDir, pattern)
	if err != nil {
		return "", nil, eris.Wrap(err, "dataset: create temp file")
	}
	path := f.Name()
	_ = f.Close()
	cleanup := func() { _ = os.Remove(path) }

	n, err := l.Fetcher.DownloadToFile(ctx, location, path)
	if err != nil {
		cleanup()
		return "", nil, err
	}
	zap.L().Debug("dataset: downloaded", zap.String("location", location), zap.Int64("bytes", n))
	return path, cleanup, nil
}

func (l *Loader) timed(source string, fn func() error) error {
	start := time.Now()
	err := fn()
	elapsed := time.Since(start)
	l.Metrics.ObserveSourceLoad(source, elapsed)
	if err != nil {
		zap.L().Error("dataset: source failed", zap.String("source", source), zap.Error(err))
		return err
	}
	zap.L().Info("dataset: source loaded", zap.String("source", source), zap.Duration("elapsed", elapsed))
	return nil
}

func readCSVFile(ctx context.Context, path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrap(err, "dataset: open csv")
	}
	defer f.Close() //nolint:errcheck
	return fetcher.ReadCSV(ctx, f, fetcher.CSVOptions{TrimSpace: true})
}

func isRemote(location string) bool {
	return strings.Contains(location, "://") && !strings.HasPrefix(location, "file://")
}

func sample(s []string, n int) []string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
