// Package store persists the local pre-processed county table: snapshots
// of the merged table together with its column schema.
package store

import (
	"context"
	"sort"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/census-map/internal/census"
)

// ErrNoSnapshot is returned when the store holds no snapshot.
var ErrNoSnapshot = eris.New("store: no snapshot")

// Snapshot describes one saved copy of the merged table.
type Snapshot struct {
	ID             string    `json:"id" yaml:"id"`
	CreatedAt      time.Time `json:"created_at" yaml:"created_at"`
	CountiesSource string    `json:"counties_source" yaml:"counties_source"`
	RUCCSource     string    `json:"rucc_source" yaml:"rucc_source"`
	Rows           int       `json:"rows" yaml:"rows"`
}

// Store defines persistence for the local table.
type Store interface {
	// SaveSnapshot writes table and schema as a new snapshot. ID, CreatedAt
	// and Rows of snap are filled in.
	SaveSnapshot(ctx context.Context, snap *Snapshot, table *census.Table, schema census.Schema) error
	LatestSnapshot(ctx context.Context) (*Snapshot, error)
	LoadSchema(ctx context.Context, snapshotID string) (census.Schema, error)
	LoadTable(ctx context.Context, snapshotID string) (*census.Table, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// Open returns the store for driver ("sqlite" or "postgres").
func Open(ctx context.Context, driver, dsn string) (Store, error) {
	switch driver {
	case "", "sqlite":
		if dsn == "" {
			dsn = "census.db"
		}
		return NewSQLite(dsn)
	case "postgres":
		if dsn == "" {
			return nil, eris.New("store: postgres requires a database url (CENSUSMAP_STORE_DATABASE_URL)")
		}
		return NewPostgres(ctx, dsn, nil)
	default:
		return nil, eris.Errorf("store: unsupported driver %q", driver)
	}
}

// valueRow is one (county, variable, value) cell of a snapshot.
type valueRow struct {
	fips     string
	variable string
	value    float64
}

// valueRows flattens the table values in row order, variables sorted.
func valueRows(table *census.Table) []valueRow {
	var out []valueRow
	for _, r := range table.Rows() {
		names := make([]string, 0, len(r.Values))
		for name := range r.Values {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			out = append(out, valueRow{fips: r.FIPS, variable: name, value: r.Values[name]})
		}
	}
	return out
}

// tableBuilder assembles records read back from a store.
type tableBuilder struct {
	records []census.Record
	byFIPS  map[string]int
}

func newTableBuilder() *tableBuilder {
	return &tableBuilder{byFIPS: map[string]int{}}
}

func (b *tableBuilder) addCounty(fips string, countyID int, county, state string) {
	b.byFIPS[fips] = len(b.records)
	b.records = append(b.records, census.Record{
		FIPS:     fips,
		CountyID: countyID,
		County:   county,
		State:    state,
		Values:   map[string]float64{},
	})
}

func (b *tableBuilder) addValue(fips, variable string, value float64) error {
	i, ok := b.byFIPS[fips]
	if !ok {
		return eris.Errorf("store: value for unknown county %s", fips)
	}
	b.records[i].Values[variable] = value
	return nil
}

func (b *tableBuilder) table() (*census.Table, error) {
	return census.NewTable(b.records)
}
