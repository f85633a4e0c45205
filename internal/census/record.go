// Package census parses the county demographics table and the USDA
// rural-urban continuum codes and joins them into one table keyed by
// county FIPS code.
package census

import (
	"sort"

	"github.com/rotisserie/eris"
)

// Record is one county row of the merged table.
type Record struct {
	FIPS     string             `json:"fips"`
	CountyID int                `json:"county_id"`
	County   string             `json:"county"`
	State    string             `json:"state"`
	Values   map[string]float64 `json:"values"`
}

// Value returns the numeric value of column name and whether it is present.
// Blank source cells and counties without a RUCC row have no value.
func (r Record) Value(name string) (float64, bool) {
	v, ok := r.Values[name]
	return v, ok
}

// Table is the immutable merged county table.
type Table struct {
	rows   []Record
	byFIPS map[string]int
}

// NewTable indexes rows by FIPS. Duplicate or malformed FIPS codes are
// rejected.
func NewTable(rows []Record) (*Table, error) {
	t := &Table{
		rows:   append([]Record(nil), rows...),
		byFIPS: make(map[string]int, len(rows)),
	}
	for i, r := range t.rows {
		if len(r.FIPS) != 5 {
			return nil, eris.Errorf("census: row %d has malformed FIPS %q", i, r.FIPS)
		}
		if j, dup := t.byFIPS[r.FIPS]; dup {
			return nil, eris.Errorf("census: duplicate FIPS %s (rows %d and %d)", r.FIPS, j, i)
		}
		t.byFIPS[r.FIPS] = i
	}
	return t, nil
}

// Len returns the number of rows.
func (t *Table) Len() int {
	return len(t.rows)
}

// Rows returns the rows in source order. Callers must not modify the
// records' Values maps.
func (t *Table) Rows() []Record {
	return append([]Record(nil), t.rows...)
}

// Lookup returns the row for a 5-digit FIPS code.
func (t *Table) Lookup(fips string) (Record, bool) {
	i, ok := t.byFIPS[fips]
	if !ok {
		return Record{}, false
	}
	return t.rows[i], true
}

// States returns the distinct state names in the table, sorted.
func (t *Table) States() []string {
	seen := map[string]struct{}{}
	for _, r := range t.rows {
		seen[r.State] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
