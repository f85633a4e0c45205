package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/census-map/internal/census"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS snapshots (
	id              TEXT PRIMARY KEY,
	created_at      DATETIME NOT NULL,
	counties_source TEXT NOT NULL DEFAULT '',
	rucc_source     TEXT NOT NULL DEFAULT '',
	row_count       INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS snapshot_columns (
	snapshot_id TEXT NOT NULL REFERENCES snapshots(id),
	position    INTEGER NOT NULL,
	name        TEXT NOT NULL,
	kind        TEXT NOT NULL,
	PRIMARY KEY (snapshot_id, name)
);

CREATE TABLE IF NOT EXISTS counties (
	snapshot_id TEXT NOT NULL REFERENCES snapshots(id),
	position    INTEGER NOT NULL,
	fips        TEXT NOT NULL,
	county_id   INTEGER NOT NULL,
	county      TEXT NOT NULL,
	state       TEXT NOT NULL,
	PRIMARY KEY (snapshot_id, fips)
);

CREATE TABLE IF NOT EXISTS county_values (
	snapshot_id TEXT NOT NULL REFERENCES snapshots(id),
	fips        TEXT NOT NULL,
	variable    TEXT NOT NULL,
	value       REAL NOT NULL,
	PRIMARY KEY (snapshot_id, fips, variable)
);

CREATE INDEX IF NOT EXISTS idx_snapshots_created_at ON snapshots(created_at);
CREATE INDEX IF NOT EXISTS idx_counties_state ON counties(snapshot_id, state);
`

// Migrate creates the snapshot tables.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveSnapshot writes the snapshot in one transaction.
func (s *SQLiteStore) SaveSnapshot(ctx context.Context, snap *Snapshot, table *census.Table, schema census.Schema) error {
	snap.ID = uuid.New().String()
	snap.CreatedAt = time.Now().UTC()
	snap.Rows = table.Len()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin snapshot")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO snapshots (id, created_at, counties_source, rucc_source, row_count) VALUES (?, ?, ?, ?, ?)`,
		snap.ID, snap.CreatedAt, snap.CountiesSource, snap.RUCCSource, snap.Rows,
	); err != nil {
		return eris.Wrap(err, "sqlite: insert snapshot")
	}

	for i, c := range schema.Columns() {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO snapshot_columns (snapshot_id, position, name, kind) VALUES (?, ?, ?, ?)`,
			snap.ID, i, c.Name, string(c.Kind),
		); err != nil {
			return eris.Wrapf(err, "sqlite: insert column %s", c.Name)
		}
	}

	countyStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO counties (snapshot_id, position, fips, county_id, county, state) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare counties")
	}
	defer countyStmt.Close()
	for i, r := range table.Rows() {
		if _, err := countyStmt.ExecContext(ctx, snap.ID, i, r.FIPS, r.CountyID, r.County, r.State); err != nil {
			return eris.Wrapf(err, "sqlite: insert county %s", r.FIPS)
		}
	}

	valueStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO county_values (snapshot_id, fips, variable, value) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare values")
	}
	defer valueStmt.Close()
	for _, v := range valueRows(table) {
		if _, err := valueStmt.ExecContext(ctx, snap.ID, v.fips, v.variable, v.value); err != nil {
			return eris.Wrapf(err, "sqlite: insert value %s/%s", v.fips, v.variable)
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit snapshot")
}

// LatestSnapshot returns the most recently saved snapshot.
func (s *SQLiteStore) LatestSnapshot(ctx context.Context) (*Snapshot, error) {
	var snap Snapshot
	err := s.db.QueryRowContext(ctx,
		`SELECT id, created_at, counties_source, rucc_source, row_count FROM snapshots ORDER BY created_at DESC, rowid DESC LIMIT 1`,
	).Scan(&snap.ID, &snap.CreatedAt, &snap.CountiesSource, &snap.RUCCSource, &snap.Rows)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: latest snapshot")
	}
	return &snap, nil
}

// LoadSchema returns the column schema of a snapshot.
func (s *SQLiteStore) LoadSchema(ctx context.Context, snapshotID string) (census.Schema, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, kind FROM snapshot_columns WHERE snapshot_id = ? ORDER BY position`, snapshotID)
	if err != nil {
		return census.Schema{}, eris.Wrap(err, "sqlite: query columns")
	}
	defer rows.Close()

	var cols []census.Column
	for rows.Next() {
		var name, kind string
		if err := rows.Scan(&name, &kind); err != nil {
			return census.Schema{}, eris.Wrap(err, "sqlite: scan column")
		}
		cols = append(cols, census.Column{Name: name, Kind: census.ColumnKind(kind)})
	}
	if err := rows.Err(); err != nil {
		return census.Schema{}, eris.Wrap(err, "sqlite: iterate columns")
	}
	if len(cols) == 0 {
		return census.Schema{}, eris.Wrapf(ErrNoSnapshot, "sqlite: snapshot %s has no columns", snapshotID)
	}
	return census.NewSchema(cols), nil
}

// LoadTable reads back the merged table of a snapshot.
func (s *SQLiteStore) LoadTable(ctx context.Context, snapshotID string) (*census.Table, error) {
	b := newTableBuilder()

	rows, err := s.db.QueryContext(ctx,
		`SELECT fips, county_id, county, state FROM counties WHERE snapshot_id = ? ORDER BY position`, snapshotID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query counties")
	}
	for rows.Next() {
		var (
			fips, county, state string
			countyID            int
		)
		if err := rows.Scan(&fips, &countyID, &county, &state); err != nil {
			rows.Close()
			return nil, eris.Wrap(err, "sqlite: scan county")
		}
		b.addCounty(fips, countyID, county, state)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: iterate counties")
	}

	vrows, err := s.db.QueryContext(ctx,
		`SELECT fips, variable, value FROM county_values WHERE snapshot_id = ?`, snapshotID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query values")
	}
	defer vrows.Close()
	for vrows.Next() {
		var (
			fips, variable string
			value          float64
		)
		if err := vrows.Scan(&fips, &variable, &value); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan value")
		}
		if err := b.addValue(fips, variable, value); err != nil {
			return nil, err
		}
	}
	if err := vrows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: iterate values")
	}

	return b.table()
}
