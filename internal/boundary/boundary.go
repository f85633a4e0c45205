// Package boundary holds county polygons keyed by 5-digit FIPS code and
// serves per-state subsets of them as GeoJSON.
package boundary

import (
	"encoding/json"
	"io"
	"sort"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
	"go.uber.org/zap"

	"github.com/sells-group/census-map/internal/fips"
)

// Collection is an immutable set of county features in source order.
type Collection struct {
	features []*geojson.Feature
	byFIPS   map[string]int
}

// NewCollection indexes features by ID. Features without an ID are
// skipped; duplicate IDs are an error.
func NewCollection(features []*geojson.Feature) (*Collection, error) {
	c := &Collection{byFIPS: make(map[string]int, len(features))}
	var skipped int
	for _, f := range features {
		if f == nil || f.ID == "" || f.Geometry == nil {
			skipped++
			continue
		}
		if _, dup := c.byFIPS[f.ID]; dup {
			return nil, eris.Errorf("boundary: duplicate feature id %s", f.ID)
		}
		c.byFIPS[f.ID] = len(c.features)
		c.features = append(c.features, f)
	}
	if skipped > 0 {
		zap.L().Debug("boundary: skipped features without id or geometry", zap.Int("skipped", skipped))
	}
	return c, nil
}

// ReadGeoJSON decodes a GeoJSON FeatureCollection whose feature ids are
// county FIPS codes.
func ReadGeoJSON(r io.Reader) (*Collection, error) {
	var fc geojson.FeatureCollection
	if err := json.NewDecoder(r).Decode(&fc); err != nil {
		return nil, eris.Wrap(err, "boundary: decode geojson")
	}
	return NewCollection(fc.Features)
}

// Len returns the number of features.
func (c *Collection) Len() int {
	return len(c.features)
}

// Has reports whether a feature exists for fips.
func (c *Collection) Has(fips string) bool {
	_, ok := c.byFIPS[fips]
	return ok
}

// FIPS returns the feature ids, sorted.
func (c *Collection) FIPS() []string {
	out := make([]string, 0, len(c.byFIPS))
	for id := range c.byFIPS {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Subset returns the features in the state with the given 2-digit FIPS
// code, with a bounding box over their geometry. An empty code selects
// every feature.
func (c *Collection) Subset(state string) *geojson.FeatureCollection {
	fc := &geojson.FeatureCollection{Features: []*geojson.Feature{}}
	bounds := geom.NewBounds(geom.XY)
	for _, f := range c.features {
		if state != "" && fips.StatePrefix(f.ID) != state {
			continue
		}
		fc.Features = append(fc.Features, f)
		bounds.Extend(f.Geometry)
	}
	if len(fc.Features) > 0 && !bounds.IsEmpty() {
		fc.BBox = bounds
	}
	return fc
}

// Encode marshals Subset(state).
func (c *Collection) Encode(state string) ([]byte, error) {
	data, err := json.Marshal(c.Subset(state))
	if err != nil {
		return nil, eris.Wrapf(err, "boundary: encode subset %q", state)
	}
	return data, nil
}

// Missing returns the codes in fips that have no feature.
func (c *Collection) Missing(fips []string) []string {
	var out []string
	for _, f := range fips {
		if !c.Has(f) {
			out = append(out, f)
		}
	}
	return out
}
