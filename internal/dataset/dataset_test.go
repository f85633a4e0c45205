package dataset

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/census-map/internal/catalog"
	"github.com/sells-group/census-map/internal/census"
	"github.com/sells-group/census-map/internal/fetcher"
	"github.com/sells-group/census-map/internal/metrics"
	"github.com/sells-group/census-map/internal/store"
)

const countiesCSV = `CountyId,State,County,TotalPop,MeanCommute
1001,Alabama,Autauga County,55036,25.8
51059,Virginia,Fairfax County,1143529,33.2
51510,Virginia,Alexandria city,154710,
72001,Puerto Rico,Adjuntas Municipio,19143,28.5
`

const boundariesGeoJSON = `{"type":"FeatureCollection","features":[
{"type":"Feature","id":"51059","properties":{},"geometry":{"type":"Polygon","coordinates":[[[-77.5,38.6],[-77.0,38.6],[-77.0,39.0],[-77.5,39.0],[-77.5,38.6]]]}},
{"type":"Feature","id":"01001","properties":{},"geometry":{"type":"Polygon","coordinates":[[[-86.9,32.3],[-86.4,32.3],[-86.4,32.7],[-86.9,32.7],[-86.9,32.3]]]}}
]}`

var ruccSheet = [][]string{
	{"FIPS", "State", "County_Name", "RUCC_2013", "Description"},
	{"01001", "AL", "Autauga County", "2", "Metro"},
	{"51059", "VA", "Fairfax County", "1", "Metro"},
}

func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	cat, err := catalog.New(
		[]catalog.State{
			{Name: "Alabama", Lat: 32.7794, Lon: -86.8287, FIPS: "01"},
			{Name: "New Mexico", Lat: 34.307144, Lon: -106.018066, FIPS: "35"},
			{Name: "Virginia", Lat: 37.926868, Lon: -78.024902, FIPS: "51"},
		},
		[]catalog.Variable{
			{Name: "TotalPop", Label: "Total population"},
			{Name: "MeanCommute", Label: "Mean commute"},
			{Name: "RUCC_2013", Label: "Rural-urban continuum code"},
		},
	)
	require.NoError(t, err)
	return cat
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func writeRUCCXLSX(t *testing.T, dir string) string {
	t.Helper()
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Rural-urban Continuum Code 2013")
	require.NoError(t, err)
	for _, rowData := range ruccSheet {
		row := sheet.AddRow()
		for _, v := range rowData {
			row.AddCell().SetString(v)
		}
	}
	path := filepath.Join(dir, "ruralurbancodes2013.xlsx")
	require.NoError(t, f.Save(path))
	return path
}

func testSources(t *testing.T) Sources {
	t.Helper()
	dir := t.TempDir()
	return Sources{
		CountiesURL:   writeFile(t, dir, "acs2017_county_data.csv", countiesCSV),
		RUCCURL:       writeRUCCXLSX(t, dir),
		BoundariesURL: writeFile(t, dir, "geojson-counties-fips.json", boundariesGeoJSON),
	}
}

func newLoader(t *testing.T) *Loader {
	t.Helper()
	return &Loader{
		Fetcher: fetcher.NewRouter(fetcher.NewHTTPFetcher(fetcher.HTTPOptions{Timeout: 5 * time.Second}), nil),
		Catalog: testCatalog(t),
		TempDir: t.TempDir(),
	}
}

func TestLoad(t *testing.T) {
	l := newLoader(t)
	dc, err := l.Load(context.Background(), testSources(t))
	require.NoError(t, err)

	assert.Equal(t, 3, dc.Table.Len(), "Puerto Rico is dropped")
	assert.Nil(t, dc.Snapshot)
	assert.Equal(t, 6, dc.Schema.Len())
	assert.Equal(t, 2, dc.Boundaries.Len())
	assert.False(t, dc.LoadedAt.IsZero())

	fx, ok := dc.Table.Lookup("51059")
	require.True(t, ok)
	code, ok := fx.Value("RUCC_2013")
	require.True(t, ok)
	assert.InDelta(t, 1.0, code, 1e-9)

	alex, ok := dc.Table.Lookup("51510")
	require.True(t, ok)
	_, ok = alex.Value("RUCC_2013")
	assert.False(t, ok)

	va, err := dc.Index.Lookup("Virginia")
	require.NoError(t, err)
	assert.Equal(t, 2, va.Len())
	assert.Equal(t, 3, dc.Index.Len())
}

func TestLoad_RUCCAsCSV(t *testing.T) {
	src := testSources(t)
	src.RUCCURL = writeFile(t, t.TempDir(), "rucc.csv",
		"FIPS,State,County_Name,RUCC_2013\n1001,AL,Autauga County,2\n51059.0,VA,Fairfax County,1\n")

	tbl, err := newLoader(t).BuildTable(context.Background(), src)
	require.NoError(t, err)
	al, ok := tbl.Lookup("01001")
	require.True(t, ok)
	code, ok := al.Value("RUCC_2013")
	require.True(t, ok)
	assert.InDelta(t, 2.0, code, 1e-9)
}

func TestLoad_RUCCAsXLS(t *testing.T) {
	src := testSources(t)
	src.RUCCURL = filepath.Join("..", "fetcher", "testdata", "ruralurbancodes2013.xls")

	dc, err := newLoader(t).Load(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, 3, dc.Table.Len())

	al, ok := dc.Table.Lookup("01001")
	require.True(t, ok)
	code, ok := al.Value("RUCC_2013")
	require.True(t, ok)
	assert.InDelta(t, 2.0, code, 1e-9)

	fx, ok := dc.Table.Lookup("51059")
	require.True(t, ok)
	code, ok = fx.Value("RUCC_2013")
	require.True(t, ok)
	assert.InDelta(t, 1.0, code, 1e-9)

	alex, ok := dc.Table.Lookup("51510")
	require.True(t, ok)
	_, ok = alex.Value("RUCC_2013")
	assert.False(t, ok)
}

func TestLoad_MalformedXLS(t *testing.T) {
	src := testSources(t)
	src.RUCCURL = writeFile(t, t.TempDir(), "rucc.xls",
		string([]byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1, 0x00, 0x00}))

	_, err := newLoader(t).Load(context.Background(), src)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read rucc xls")
}

func TestLoad_RemoteCountiesWithCharset(t *testing.T) {
	body := "CountyId,State,County,TotalPop,MeanCommute\n" +
		"35013,New Mexico,Do\xf1a Ana County,215338,21.4\n"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(body)) //nolint:errcheck
	}))
	defer srv.Close()

	src := testSources(t)
	src.CountiesURL = srv.URL + "/acs2017_county_data.csv"
	src.CountiesCharset = "iso-8859-1"

	tbl, err := newLoader(t).BuildTable(context.Background(), src)
	require.NoError(t, err)
	r, ok := tbl.Lookup("35013")
	require.True(t, ok)
	assert.Equal(t, "Doña Ana County", r.County)
}

func TestLoad_RemoteFailureIsFatal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	src := testSources(t)
	src.BoundariesURL = srv.URL + "/missing.json"

	_, err := newLoader(t).Load(context.Background(), src)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "download boundaries")
}

func TestLoad_SourceErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Sources)
		want   string
	}{
		{"no counties", func(s *Sources) { s.CountiesURL = "" }, "counties source"},
		{"no rucc", func(s *Sources) { s.RUCCURL = "" }, "rucc source"},
		{"no boundaries", func(s *Sources) { s.BoundariesURL = "" }, "boundaries source"},
		{"remote shp", func(s *Sources) { s.BoundariesShapefile = "https://example.com/tl_2017_us_county.shp" }, "must be a .zip"},
		{"missing counties file", func(s *Sources) { s.CountiesURL = "/nonexistent/counties.csv" }, "download counties"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := testSources(t)
			tt.mutate(&src)
			_, err := newLoader(t).Load(context.Background(), src)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad_MissingColumn(t *testing.T) {
	src := testSources(t)
	src.CountiesURL = writeFile(t, t.TempDir(), "c.csv", "CountyId,State,County,TotalPop\n1001,Alabama,Autauga County,55036\n")

	_, err := newLoader(t).Load(context.Background(), src)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MeanCommute")
}

func TestLoad_NoLoaderCatalog(t *testing.T) {
	l := newLoader(t)
	l.Catalog = nil
	_, err := l.Load(context.Background(), testSources(t))
	assert.Error(t, err)
}

func TestLoad_SchemaFromStore(t *testing.T) {
	ctx := context.Background()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "census.db"))
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck
	require.NoError(t, st.Migrate(ctx))

	l := newLoader(t)
	l.Store = st

	_, err = l.Load(ctx, testSources(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "census-map snapshot")

	src := testSources(t)
	tbl, err := l.BuildTable(ctx, src)
	require.NoError(t, err)
	schema := census.NewSchema(append(
		census.DefaultSchema(l.Catalog.VariableNames()).Columns(),
		census.Column{Name: "MeanCommute", Kind: census.KindCategorical},
	))
	snap := &store.Snapshot{CountiesSource: src.CountiesURL, RUCCSource: src.RUCCURL}
	require.NoError(t, st.SaveSnapshot(ctx, snap, tbl, schema))

	dc, err := l.Load(ctx, src)
	require.NoError(t, err)
	require.NotNil(t, dc.Snapshot)
	assert.Equal(t, snap.ID, dc.Snapshot.ID)
	assert.True(t, dc.Schema.IsCategorical("MeanCommute"))
}

func TestLoad_RecordsMetrics(t *testing.T) {
	l := newLoader(t)
	l.Metrics = metrics.New()
	_, err := l.Load(context.Background(), testSources(t))
	require.NoError(t, err)

	rr := httptest.NewRecorder()
	l.Metrics.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rr.Body.String()
	assert.Contains(t, body, `censusmap_dataset_rows{dataset="counties"} 3`)
	assert.Contains(t, body, `censusmap_source_load_duration_seconds_count{source="rucc"} 1`)
}

func TestIsRemote(t *testing.T) {
	assert.True(t, isRemote("https://example.com/a.zip"))
	assert.True(t, isRemote("ftp://example.com/a.zip"))
	assert.False(t, isRemote("file:///tmp/a.shp"))
	assert.False(t, isRemote("/tmp/a.shp"))
}
