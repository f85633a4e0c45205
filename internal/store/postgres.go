package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/census-map/internal/census"
	"github.com/sells-group/census-map/internal/db"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(4)
	minConns := int32(1)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS snapshots (
	id              TEXT PRIMARY KEY,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	counties_source TEXT NOT NULL DEFAULT '',
	rucc_source     TEXT NOT NULL DEFAULT '',
	row_count       INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS snapshot_columns (
	snapshot_id TEXT NOT NULL REFERENCES snapshots(id) ON DELETE CASCADE,
	position    INTEGER NOT NULL,
	name        TEXT NOT NULL,
	kind        TEXT NOT NULL,
	PRIMARY KEY (snapshot_id, name)
);

CREATE TABLE IF NOT EXISTS counties (
	snapshot_id TEXT NOT NULL REFERENCES snapshots(id) ON DELETE CASCADE,
	position    INTEGER NOT NULL,
	fips        CHAR(5) NOT NULL,
	county_id   INTEGER NOT NULL,
	county      TEXT NOT NULL,
	state       TEXT NOT NULL,
	PRIMARY KEY (snapshot_id, fips)
);

CREATE TABLE IF NOT EXISTS county_values (
	snapshot_id TEXT NOT NULL REFERENCES snapshots(id) ON DELETE CASCADE,
	fips        CHAR(5) NOT NULL,
	variable    TEXT NOT NULL,
	value       DOUBLE PRECISION NOT NULL,
	PRIMARY KEY (snapshot_id, fips, variable)
);

CREATE INDEX IF NOT EXISTS idx_snapshots_created_at ON snapshots(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_counties_state ON counties(snapshot_id, state);
`

// Migrate creates the snapshot tables.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

// Close closes the pool.
func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// SaveSnapshot inserts the snapshot row and COPYs its columns, counties
// and values in one transaction.
func (s *PostgresStore) SaveSnapshot(ctx context.Context, snap *Snapshot, table *census.Table, schema census.Schema) error {
	snap.ID = uuid.New().String()
	snap.CreatedAt = time.Now().UTC()
	snap.Rows = table.Len()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin snapshot")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx,
		`INSERT INTO snapshots (id, created_at, counties_source, rucc_source, row_count) VALUES ($1, $2, $3, $4, $5)`,
		snap.ID, snap.CreatedAt, snap.CountiesSource, snap.RUCCSource, snap.Rows,
	); err != nil {
		return eris.Wrap(err, "postgres: insert snapshot")
	}

	cols := schema.Columns()
	colRows := make([][]any, 0, len(cols))
	for i, c := range cols {
		colRows = append(colRows, []any{snap.ID, i, c.Name, string(c.Kind)})
	}
	if _, err := db.CopyFrom(ctx, tx, "snapshot_columns", []string{"snapshot_id", "position", "name", "kind"}, colRows); err != nil {
		return eris.Wrap(err, "postgres: copy columns")
	}

	records := table.Rows()
	countyRows := make([][]any, 0, len(records))
	for i, r := range records {
		countyRows = append(countyRows, []any{snap.ID, i, r.FIPS, r.CountyID, r.County, r.State})
	}
	if _, err := db.CopyFrom(ctx, tx, "counties", []string{"snapshot_id", "position", "fips", "county_id", "county", "state"}, countyRows); err != nil {
		return eris.Wrap(err, "postgres: copy counties")
	}

	values := valueRows(table)
	valRows := make([][]any, 0, len(values))
	for _, v := range values {
		valRows = append(valRows, []any{snap.ID, v.fips, v.variable, v.value})
	}
	n, err := db.CopyFrom(ctx, tx, "county_values", []string{"snapshot_id", "fips", "variable", "value"}, valRows)
	if err != nil {
		return eris.Wrap(err, "postgres: copy values")
	}

	if err := tx.Commit(ctx); err != nil {
		return eris.Wrap(err, "postgres: commit snapshot")
	}
	zap.L().Debug("postgres: snapshot saved",
		zap.String("snapshot_id", snap.ID),
		zap.Int("counties", snap.Rows),
		zap.Int64("values", n),
	)
	return nil
}

// LatestSnapshot returns the most recently saved snapshot.
func (s *PostgresStore) LatestSnapshot(ctx context.Context) (*Snapshot, error) {
	var snap Snapshot
	err := s.pool.QueryRow(ctx,
		`SELECT id, created_at, counties_source, rucc_source, row_count FROM snapshots ORDER BY created_at DESC LIMIT 1`,
	).Scan(&snap.ID, &snap.CreatedAt, &snap.CountiesSource, &snap.RUCCSource, &snap.Rows)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: latest snapshot")
	}
	return &snap, nil
}

// LoadSchema returns the column schema of a snapshot.
func (s *PostgresStore) LoadSchema(ctx context.Context, snapshotID string) (census.Schema, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT name, kind FROM snapshot_columns WHERE snapshot_id = $1 ORDER BY position`, snapshotID)
	if err != nil {
		return census.Schema{}, eris.Wrap(err, "postgres: query columns")
	}
	defer rows.Close()

	var cols []census.Column
	for rows.Next() {
		var name, kind string
		if err := rows.Scan(&name, &kind); err != nil {
			return census.Schema{}, eris.Wrap(err, "postgres: scan column")
		}
		cols = append(cols, census.Column{Name: name, Kind: census.ColumnKind(kind)})
	}
	if err := rows.Err(); err != nil {
		return census.Schema{}, eris.Wrap(err, "postgres: iterate columns")
	}
	if len(cols) == 0 {
		return census.Schema{}, eris.Wrapf(ErrNoSnapshot, "postgres: snapshot %s has no columns", snapshotID)
	}
	return census.NewSchema(cols), nil
}

// LoadTable reads back the merged table of a snapshot.
func (s *PostgresStore) LoadTable(ctx context.Context, snapshotID string) (*census.Table, error) {
	b := newTableBuilder()

	rows, err := s.pool.Query(ctx,
		`SELECT fips, county_id, county, state FROM counties WHERE snapshot_id = $1 ORDER BY position`, snapshotID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query counties")
	}
	for rows.Next() {
		var (
			fips, county, state string
			countyID            int
		)
		if err := rows.Scan(&fips, &countyID, &county, &state); err != nil {
			rows.Close()
			return nil, eris.Wrap(err, "postgres: scan county")
		}
		b.addCounty(fips, countyID, county, state)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: iterate counties")
	}

	vrows, err := s.pool.Query(ctx,
		`SELECT fips, variable, value FROM county_values WHERE snapshot_id = $1`, snapshotID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query values")
	}
	defer vrows.Close()
	for vrows.Next() {
		var (
			fips, variable string
			value          float64
		)
		if err := vrows.Scan(&fips, &variable, &value); err != nil {
			return nil, eris.Wrap(err, "postgres: scan value")
		}
		if err := b.addValue(fips, variable, value); err != nil {
			return nil, err
		}
	}
	if err := vrows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: iterate values")
	}

	return b.table()
}
