// Package partition splits the county table into per-state subsets.
package partition

import (
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/census-map/internal/census"
)

// ErrUnknownState is returned by Lookup for a state with no partition.
var ErrUnknownState = eris.New("partition: unknown state")

// Partition is the immutable subset of records for one state, in table order.
type Partition struct {
	State   string
	records []census.Record
}

// Len returns the number of counties in the partition.
func (p *Partition) Len() int {
	return len(p.records)
}

// Records returns the partition rows in table order.
func (p *Partition) Records() []census.Record {
	return append([]census.Record(nil), p.records...)
}

// Index maps state names to partitions. It is built once and read-only.
type Index struct {
	order []string
	parts map[string]*Partition
}

// Build groups the table rows by state. Every name in states gets a
// partition, possibly empty. Rows for states outside the list are not
// indexed and are logged.
func Build(table *census.Table, states []string) *Index {
	idx := &Index{
		order: append([]string(nil), states...),
		parts: make(map[string]*Partition, len(states)),
	}
	for _, s := range states {
		idx.parts[s] = &Partition{State: s}
	}

	var skipped int
	for _, r := range table.Rows() {
		p, ok := idx.parts[r.State]
		if !ok {
			skipped++
			continue
		}
		p.records = append(p.records, r)
	}
	if skipped > 0 {
		zap.L().Warn("partition: rows outside the state list",
			zap.Int("skipped", skipped),
		)
	}
	return idx
}

// Lookup returns the partition for state.
func (i *Index) Lookup(state string) (*Partition, error) {
	p, ok := i.parts[state]
	if !ok {
		return nil, eris.Wrapf(ErrUnknownState, "partition: lookup %q", state)
	}
	return p, nil
}

// States returns the indexed state names in catalog order.
func (i *Index) States() []string {
	return append([]string(nil), i.order...)
}

// Len returns the total number of indexed rows.
func (i *Index) Len() int {
	var n int
	for _, p := range i.parts {
		n += len(p.records)
	}
	return n
}
