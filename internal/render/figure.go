package render

import (
	"encoding/json"

	"github.com/rotisserie/eris"
)

// FlatColor fills every county when a map has no value spread.
const FlatColor = "rgb(40,210,40)"

// Figure is a Plotly figure: one choroplethmapbox trace and its layout.
type Figure struct {
	Data   []Trace `json:"data"`
	Layout Layout  `json:"layout"`
}

// Trace is a Plotly choroplethmapbox trace.
type Trace struct {
	Type          string    `json:"type"`
	GeoJSON       string    `json:"geojson"`
	FeatureIDKey  string    `json:"featureidkey"`
	Locations     []string  `json:"locations"`
	Z             []float64 `json:"z"`
	Text          []string  `json:"text"`
	ColorScale    any       `json:"colorscale"`
	ZMin          float64   `json:"zmin"`
	ZMax          float64   `json:"zmax"`
	Marker        Marker    `json:"marker"`
	ColorBar      ColorBar  `json:"colorbar"`
	HoverTemplate string    `json:"hovertemplate"`
}

// Marker styles the county outlines.
type Marker struct {
	Line struct {
		Width float64 `json:"width"`
	} `json:"line"`
}

// ColorBar labels the legend.
type ColorBar struct {
	Title struct {
		Text string `json:"text"`
	} `json:"title"`
}

// Layout is the Plotly layout for a mapbox figure.
type Layout struct {
	Mapbox struct {
		Style  string  `json:"style"`
		Zoom   float64 `json:"zoom"`
		Center struct {
			Lat float64 `json:"lat"`
			Lon float64 `json:"lon"`
		} `json:"center"`
	} `json:"mapbox"`
	Margin Margins `json:"margin"`
}

// Figure converts the spec to a Plotly figure. A flat spec gets a single
// color scale so every county shares one fill.
func (s *MapSpec) Figure() Figure {
	tr := Trace{
		Type:          "choroplethmapbox",
		GeoJSON:       s.Geometry,
		FeatureIDKey:  s.FeatureIDKey,
		Locations:     s.Locations,
		Z:             s.Z,
		Text:          s.Text,
		ColorScale:    s.ColorScale,
		ZMin:          s.ValMin,
		ZMax:          s.ValMax,
		HoverTemplate: "%{text}<br>" + s.Variable + ": %{z}<extra></extra>",
	}
	if s.Flat {
		tr.ColorScale = [][2]any{{0, FlatColor}, {1, FlatColor}}
	}
	tr.Marker.Line.Width = s.MarkerLineWidth
	tr.ColorBar.Title.Text = s.Variable

	var l Layout
	l.Mapbox.Style = s.Viewport.Style
	l.Mapbox.Zoom = s.Viewport.Zoom
	l.Mapbox.Center.Lat = s.Viewport.CenterLat
	l.Mapbox.Center.Lon = s.Viewport.CenterLon
	l.Margin = s.Margins

	return Figure{Data: []Trace{tr}, Layout: l}
}

// EncodeFigure marshals the Plotly figure.
func (s *MapSpec) EncodeFigure() ([]byte, error) {
	data, err := json.Marshal(s.Figure())
	if err != nil {
		return nil, eris.Wrapf(err, "render: encode figure %s/%s", s.State, s.Variable)
	}
	return data, nil
}
