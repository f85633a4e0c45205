package census

// ColumnKind classifies a table column.
type ColumnKind string

// Column kinds recorded in the local table.
const (
	KindNumeric     ColumnKind = "numeric"
	KindCategorical ColumnKind = "categorical"
)

// Column is one entry of a Schema.
type Column struct {
	Name string     `json:"name"`
	Kind ColumnKind `json:"kind"`
}

// Schema is the ordered column list of the local pre-processed table.
type Schema struct {
	columns []Column
	idx     map[string]int
}

// NewSchema builds a schema; a later duplicate name replaces the earlier kind.
func NewSchema(columns []Column) Schema {
	s := Schema{idx: make(map[string]int, len(columns))}
	for _, c := range columns {
		if i, ok := s.idx[c.Name]; ok {
			s.columns[i].Kind = c.Kind
			continue
		}
		s.idx[c.Name] = len(s.columns)
		s.columns = append(s.columns, c)
	}
	return s
}

// DefaultSchema describes the merged table: identifying text columns are
// categorical and every variable is numeric.
func DefaultSchema(variables []string) Schema {
	cols := []Column{
		{Name: ColFIPS, Kind: KindCategorical},
		{Name: ColState, Kind: KindCategorical},
		{Name: ColCounty, Kind: KindCategorical},
	}
	for _, v := range variables {
		cols = append(cols, Column{Name: v, Kind: KindNumeric})
	}
	return NewSchema(cols)
}

// Kind returns the kind of column name.
func (s Schema) Kind(name string) (ColumnKind, bool) {
	i, ok := s.idx[name]
	if !ok {
		return "", false
	}
	return s.columns[i].Kind, true
}

// IsCategorical reports whether name is declared categorical.
func (s Schema) IsCategorical(name string) bool {
	k, ok := s.Kind(name)
	return ok && k == KindCategorical
}

// Columns returns the columns in order.
func (s Schema) Columns() []Column {
	return append([]Column(nil), s.columns...)
}

// Len returns the number of columns.
func (s Schema) Len() int {
	return len(s.columns)
}
