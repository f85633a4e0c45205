// Package render turns one state's county records and a selected variable
// into a choropleth map description that the browser draws with Plotly.
package render

import (
	"github.com/rotisserie/eris"

	"github.com/sells-group/census-map/internal/catalog"
	"github.com/sells-group/census-map/internal/census"
	"github.com/sells-group/census-map/internal/partition"
)

// ErrNonNumericVariable is returned when the selected column is categorical.
var ErrNonNumericVariable = eris.New("render: variable is not numeric")

// Map defaults.
const (
	DefaultZoom       = 5
	DefaultMapStyle   = "carto-positron"
	DefaultColorScale = "Earth"
	FeatureIDKey      = "id"
)

// Options controls the map viewport and palette. Zero values take the
// defaults above.
type Options struct {
	Zoom       float64
	MapStyle   string
	ColorScale string
}

func (o Options) withDefaults() Options {
	if o.Zoom <= 0 {
		o.Zoom = DefaultZoom
	}
	if o.MapStyle == "" {
		o.MapStyle = DefaultMapStyle
	}
	if o.ColorScale == "" {
		o.ColorScale = DefaultColorScale
	}
	return o
}

// Viewport positions the base map.
type Viewport struct {
	CenterLat float64 `json:"center_lat"`
	CenterLon float64 `json:"center_lon"`
	Zoom      float64 `json:"zoom"`
	Style     string  `json:"style"`
}

// Margins are the figure margins in pixels.
type Margins struct {
	R int `json:"r"`
	T int `json:"t"`
	L int `json:"l"`
	B int `json:"b"`
}

// MapSpec describes one choropleth. Locations, Z and Text are parallel:
// entry i is the FIPS code, value and county name of one county.
type MapSpec struct {
	State           string    `json:"state"`
	Variable        string    `json:"variable"`
	Label           string    `json:"label"`
	Geometry        string    `json:"geometry"`
	FeatureIDKey    string    `json:"feature_id_key"`
	Locations       []string  `json:"locations"`
	Z               []float64 `json:"z"`
	Text            []string  `json:"text"`
	ValMin          float64   `json:"val_min"`
	ValMax          float64   `json:"val_max"`
	ColorScale      string    `json:"color_scale"`
	Flat            bool      `json:"flat"`
	MarkerLineWidth float64   `json:"marker_line_width"`
	Viewport        Viewport  `json:"viewport"`
	Margins         Margins   `json:"margins"`
}

// Renderer builds MapSpecs. It holds no mutable state and is safe for
// concurrent use.
type Renderer struct {
	schema census.Schema
	opts   Options
}

// NewRenderer returns a Renderer that validates variables against schema.
func NewRenderer(schema census.Schema, opts Options) *Renderer {
	return &Renderer{schema: schema, opts: opts.withDefaults()}
}

// Render builds the map of variable v over partition p, centered on the
// state's centroid. geometry is the boundary reference the browser loads.
// Counties without a value for v are left out. When no county has a value
// the range is [0, 0].
func (r *Renderer) Render(p *partition.Partition, v catalog.Variable, st catalog.State, geometry string) (*MapSpec, error) {
	if r.schema.IsCategorical(v.Name) {
		return nil, eris.Wrapf(ErrNonNumericVariable, "render: %s", v.Name)
	}

	records := p.Records()
	spec := &MapSpec{
		State:        st.Name,
		Variable:     v.Name,
		Label:        v.Label,
		Geometry:     geometry,
		FeatureIDKey: FeatureIDKey,
		Locations:    make([]string, 0, len(records)),
		Z:            make([]float64, 0, len(records)),
		Text:         make([]string, 0, len(records)),
		ColorScale:   r.opts.ColorScale,
		Viewport: Viewport{
			CenterLat: st.Lat,
			CenterLon: st.Lon,
			Zoom:      r.opts.Zoom,
			Style:     r.opts.MapStyle,
		},
	}

	for _, rec := range records {
		val, ok := rec.Value(v.Name)
		if !ok {
			continue
		}
		if len(spec.Z) == 0 || val < spec.ValMin {
			spec.ValMin = val
		}
		if len(spec.Z) == 0 || val > spec.ValMax {
			spec.ValMax = val
		}
		spec.Locations = append(spec.Locations, rec.FIPS)
		spec.Z = append(spec.Z, val)
		spec.Text = append(spec.Text, rec.County)
	}
	spec.Flat = spec.ValMin == spec.ValMax

	return spec, nil
}
