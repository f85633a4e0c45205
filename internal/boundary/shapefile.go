package boundary

import (
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
	"go.uber.org/zap"

	"github.com/sells-group/census-map/internal/fips"
)

// TIGER/Line county shapefile attribute names.
const (
	FieldGEOID    = "GEOID"
	FieldStateFP  = "STATEFP"
	FieldCountyFP = "COUNTYFP"
	FieldName     = "NAME"
)

// shapeSource is the subset of the go-shp readers LoadShapefile needs.
type shapeSource interface {
	Next() bool
	Shape() (int, shp.Shape)
	Attribute(n int) string
	Fields() []shp.Field
	Err() error
	Close() error
}

// LoadShapefile reads a TIGER/Line county shapefile (.shp, or a .zip
// holding one) into a Collection. Feature ids come from GEOID, or from
// STATEFP+COUNTYFP when GEOID is absent.
func LoadShapefile(path string) (*Collection, error) {
	var (
		src shapeSource
		err error
	)
	if strings.HasSuffix(strings.ToLower(path), ".zip") {
		src, err = shp.OpenZip(path)
	} else {
		src, err = shp.Open(path)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "boundary: open shapefile %s", path)
	}
	defer func() { _ = src.Close() }()

	fieldIdx := make(map[string]int)
	for i, f := range src.Fields() {
		fieldIdx[strings.ToUpper(strings.TrimSpace(f.String()))] = i
	}
	attr := func(name string) string {
		i, ok := fieldIdx[name]
		if !ok {
			return ""
		}
		return strings.TrimSpace(strings.TrimRight(src.Attribute(i), "\x00"))
	}

	_, hasGEOID := fieldIdx[FieldGEOID]
	_, hasState := fieldIdx[FieldStateFP]
	_, hasCounty := fieldIdx[FieldCountyFP]
	if !hasGEOID && !(hasState && hasCounty) {
		return nil, eris.Errorf("boundary: shapefile %s has neither %s nor %s/%s", path, FieldGEOID, FieldStateFP, FieldCountyFP)
	}

	var (
		features []*geojson.Feature
		skipped  int
	)
	for src.Next() {
		_, shape := src.Shape()

		id := attr(FieldGEOID)
		if id == "" {
			id = fips.Combine(attr(FieldStateFP), attr(FieldCountyFP))
		}
		poly, ok := shape.(*shp.Polygon)
		if id == "" || !ok {
			skipped++
			continue
		}
		g := polygonToMultiPolygon(poly)
		if g == nil {
			skipped++
			continue
		}

		props := map[string]interface{}{}
		if name := attr(FieldName); name != "" {
			props["NAME"] = name
		}
		features = append(features, &geojson.Feature{ID: id, Geometry: g, Properties: props})
	}
	if err := src.Err(); err != nil {
		return nil, eris.Wrapf(err, "boundary: read shapefile %s", path)
	}

	if skipped > 0 {
		zap.L().Debug("boundary: skipped shapefile records",
			zap.String("path", path),
			zap.Int("skipped", skipped),
		)
	}
	return NewCollection(features)
}

// polygonToMultiPolygon converts a shapefile polygon to a MultiPolygon
// with one polygon per part. Malformed parts are dropped.
func polygonToMultiPolygon(p *shp.Polygon) *geom.MultiPolygon {
	if p == nil || p.NumParts == 0 || len(p.Points) == 0 {
		return nil
	}

	mp := geom.NewMultiPolygon(geom.XY)
	for i := int32(0); i < p.NumParts; i++ {
		start := p.Parts[i]
		end := int32(len(p.Points))
		if i+1 < p.NumParts {
			end = p.Parts[i+1]
		}
		if start < 0 || end > int32(len(p.Points)) || end-start < 4 {
			zap.L().Debug("boundary: skipping short ring", zap.Int32("part", i))
			continue
		}

		flat := make([]float64, 0, (end-start)*2)
		for j := start; j < end; j++ {
			flat = append(flat, p.Points[j].X, p.Points[j].Y)
		}

		poly := geom.NewPolygon(geom.XY)
		if err := poly.Push(geom.NewLinearRingFlat(geom.XY, flat)); err != nil {
			zap.L().Debug("boundary: skipping malformed ring", zap.Int32("part", i), zap.Error(err))
			continue
		}
		if err := mp.Push(poly); err != nil {
			zap.L().Debug("boundary: skipping malformed polygon", zap.Int32("part", i), zap.Error(err))
			continue
		}
	}

	if mp.NumPolygons() == 0 {
		return nil
	}
	return mp
}
