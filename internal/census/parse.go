package census

import (
	"math"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/census-map/internal/fips"
)

// Source column names.
const (
	ColCountyID = "CountyId"
	ColState    = "State"
	ColCounty   = "County"
	ColFIPS     = "FIPS"

	ColRUCC            = "RUCC_2013"
	ColRUCCCountyName  = "County_Name"
	ColRUCCDescription = "Description"
)

// RUCCRow is one row of the rural-urban continuum code spreadsheet.
type RUCCRow struct {
	CountyID    int
	FIPS        string
	State       string
	County      string
	Code        float64
	Description string
}

// header maps column names to indexes. Names are matched after trimming
// whitespace and a UTF-8 byte order mark.
type header map[string]int

func newHeader(row []string) header {
	h := make(header, len(row))
	for i, name := range row {
		name = strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))
		if _, dup := h[name]; !dup {
			h[name] = i
		}
	}
	return h
}

func (h header) require(names ...string) error {
	var missing []string
	for _, n := range names {
		if _, ok := h[n]; !ok {
			missing = append(missing, n)
		}
	}
	if len(missing) > 0 {
		return eris.Errorf("missing column(s) %s", strings.Join(missing, ", "))
	}
	return nil
}

func (h header) get(row []string, name string) string {
	i, ok := h[name]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// missingMarkers are cell values read as absent in addition to blanks.
var missingMarkers = map[string]bool{
	"nan": true,
	"na":  true,
	"n/a": true,
}

// parseNumber parses a numeric cell. Blank cells and NA markers are absent,
// not zero. Infinities are rejected.
func parseNumber(s string) (float64, bool, error) {
	if s == "" || missingMarkers[strings.ToLower(s)] {
		return 0, false, nil
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
	if err != nil {
		return 0, false, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false, eris.Errorf("non-finite value %q", s)
	}
	return v, true, nil
}

// ParseCounties parses the county demographics table. rows[0] is the
// header. Every name in variables must be a column except RUCC_2013, which
// the spreadsheet supplies.
func ParseCounties(rows [][]string, variables []string) ([]Record, error) {
	if len(rows) == 0 {
		return nil, eris.New("census: counties: empty table")
	}
	h := newHeader(rows[0])

	numeric := make([]string, 0, len(variables))
	for _, v := range variables {
		if v != ColRUCC {
			numeric = append(numeric, v)
		}
	}
	required := append([]string{ColCountyID, ColState, ColCounty}, numeric...)
	if err := h.require(required...); err != nil {
		return nil, eris.Wrap(err, "census: counties")
	}

	records := make([]Record, 0, len(rows)-1)
	for i, row := range rows[1:] {
		line := i + 2
		if isBlankRow(row) {
			continue
		}
		id, code, err := fips.ParseCounty(h.get(row, ColCountyID))
		if err != nil {
			return nil, eris.Wrapf(err, "census: counties: line %d", line)
		}
		rec := Record{
			FIPS:     code,
			CountyID: id,
			County:   h.get(row, ColCounty),
			State:    h.get(row, ColState),
			Values:   make(map[string]float64, len(variables)),
		}
		for _, name := range numeric {
			v, ok, err := parseNumber(h.get(row, name))
			if err != nil {
				return nil, eris.Wrapf(err, "census: counties: line %d column %s", line, name)
			}
			if ok {
				rec.Values[name] = v
			}
		}
		records = append(records, rec)
	}
	return records, nil
}

// ParseRUCC parses the rural-urban continuum spreadsheet. rows[0] is the
// header. The result is keyed by numeric county identifier.
func ParseRUCC(rows [][]string) (map[int]RUCCRow, error) {
	if len(rows) == 0 {
		return nil, eris.New("census: rucc: empty table")
	}
	h := newHeader(rows[0])
	if err := h.require(ColFIPS, ColRUCC); err != nil {
		return nil, eris.Wrap(err, "census: rucc")
	}

	out := make(map[int]RUCCRow, len(rows)-1)
	for i, row := range rows[1:] {
		line := i + 2
		if isBlankRow(row) {
			continue
		}
		id, code, err := fips.ParseCounty(h.get(row, ColFIPS))
		if err != nil {
			return nil, eris.Wrapf(err, "census: rucc: line %d", line)
		}
		if _, dup := out[id]; dup {
			return nil, eris.Errorf("census: rucc: line %d: duplicate FIPS %s", line, code)
		}
		v, ok, err := parseNumber(h.get(row, ColRUCC))
		if err != nil {
			return nil, eris.Wrapf(err, "census: rucc: line %d column %s", line, ColRUCC)
		}
		if !ok {
			continue
		}
		out[id] = RUCCRow{
			CountyID:    id,
			FIPS:        code,
			State:       h.get(row, ColState),
			County:      h.get(row, ColRUCCCountyName),
			Code:        v,
			Description: h.get(row, ColRUCCDescription),
		}
	}
	return out, nil
}

// Merge left-joins RUCC codes onto counties by county identifier. Counties
// without a RUCC row keep no RUCC_2013 value. Inputs are not modified.
func Merge(counties []Record, rucc map[int]RUCCRow) []Record {
	out := make([]Record, len(counties))
	var unmatched int
	for i, c := range counties {
		vals := make(map[string]float64, len(c.Values)+1)
		for k, v := range c.Values {
			vals[k] = v
		}
		if r, ok := rucc[c.CountyID]; ok {
			vals[ColRUCC] = r.Code
		} else {
			unmatched++
		}
		c.Values = vals
		out[i] = c
	}
	if unmatched > 0 {
		zap.L().Debug("census: counties without rural-urban code", zap.Int("count", unmatched))
	}
	return out
}

// FilterStates keeps records whose state satisfies keep and counts the
// dropped rows per state.
func FilterStates(records []Record, keep func(string) bool) ([]Record, map[string]int) {
	kept := make([]Record, 0, len(records))
	dropped := map[string]int{}
	for _, r := range records {
		if keep(r.State) {
			kept = append(kept, r)
			continue
		}
		dropped[r.State]++
	}
	return kept, dropped
}

func isBlankRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
