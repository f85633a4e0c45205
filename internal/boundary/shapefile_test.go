package boundary

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/jonas-p/go-shp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testCounty struct {
	geoid, statefp, countyfp, name string
	ring                           []shp.Point
}

func square(x, y, size float64) []shp.Point {
	return []shp.Point{
		{X: x, Y: y},
		{X: x, Y: y + size},
		{X: x + size, Y: y + size},
		{X: x + size, Y: y},
		{X: x, Y: y},
	}
}

// writeShapefile writes a polygon shapefile and returns the .shp path.
func writeShapefile(t *testing.T, fields []shp.Field, counties []testCounty) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "tl_2017_us_county.shp")

	w, err := shp.Create(path, shp.POLYGON)
	require.NoError(t, err)
	require.NoError(t, w.SetFields(fields))

	for _, c := range counties {
		poly := shp.Polygon(*shp.NewPolyLine([][]shp.Point{c.ring}))
		row := int(w.Write(&poly))
		vals := map[string]string{
			FieldGEOID:    c.geoid,
			FieldStateFP:  c.statefp,
			FieldCountyFP: c.countyfp,
			FieldName:     c.name,
		}
		for i, f := range fields {
			require.NoError(t, w.WriteAttribute(row, i, vals[f.String()]))
		}
	}
	w.Close()

	// go-shp v0.1.1 writes "<base>dbf" but reads "<base>.dbf".
	base := path[:len(path)-len(".shp")]
	if _, err := os.Stat(base + "dbf"); err == nil {
		require.NoError(t, os.Rename(base+"dbf", base+".dbf"))
	}
	return path
}

func TestLoadShapefile(t *testing.T) {
	path := writeShapefile(t,
		[]shp.Field{
			shp.StringField(FieldGEOID, 5),
			shp.StringField(FieldName, 40),
		},
		[]testCounty{
			{geoid: "51001", name: "Accomack", ring: square(-76, 37.5, 0.5)},
			{geoid: "01001", name: "Autauga", ring: square(-86.9, 32.3, 0.4)},
		},
	)

	c, err := LoadShapefile(path)
	require.NoError(t, err)
	assert.Equal(t, 2, c.Len())
	assert.True(t, c.Has("51001"))
	assert.True(t, c.Has("01001"))

	fc := c.Subset("51")
	require.Len(t, fc.Features, 1)
	assert.Equal(t, "Accomack", fc.Features[0].Properties["NAME"])
	require.NotNil(t, fc.BBox)
	assert.InDelta(t, -76.0, fc.BBox.Min(0), 1e-9)
	assert.InDelta(t, 38.0, fc.BBox.Max(1), 1e-9)
}

func TestLoadShapefile_StateCountyFallback(t *testing.T) {
	path := writeShapefile(t,
		[]shp.Field{
			shp.StringField(FieldStateFP, 2),
			shp.StringField(FieldCountyFP, 3),
		},
		[]testCounty{
			{statefp: "9", countyfp: "1", ring: square(-73.6, 41.0, 0.5)},
		},
	)

	c, err := LoadShapefile(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"09001"}, c.FIPS())
}

func TestLoadShapefile_NoIDFields(t *testing.T) {
	path := writeShapefile(t,
		[]shp.Field{shp.StringField(FieldName, 20)},
		[]testCounty{{name: "x", ring: square(0, 0, 1)}},
	)

	_, err := LoadShapefile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "GEOID")
}

func TestLoadShapefile_Missing(t *testing.T) {
	_, err := LoadShapefile(filepath.Join(t.TempDir(), "nope.shp"))
	assert.Error(t, err)
}

func TestPolygonToMultiPolygon(t *testing.T) {
	poly := &shp.Polygon{
		NumParts: 2,
		Parts:    []int32{0, 5},
		Points:   append(square(-80, 25, 1), square(-81, 26, 1)...),
	}
	mp := polygonToMultiPolygon(poly)
	require.NotNil(t, mp)
	assert.Equal(t, 2, mp.NumPolygons())

	short := &shp.Polygon{
		NumParts: 1,
		Parts:    []int32{0},
		Points:   []shp.Point{{X: 0, Y: 0}, {X: 1, Y: 1}},
	}
	assert.Nil(t, polygonToMultiPolygon(short))
	assert.Nil(t, polygonToMultiPolygon(nil))
}
