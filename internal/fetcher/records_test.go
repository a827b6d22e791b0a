package fetcher

import (
	"archive/zip"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"
)

const recordsCSV = `name,address,city,state,type
Portland Food Pantry,100 Main St,Portland,OR,food pantry
Salem Shelter,2 Oak Ave,Salem,OR,shelter
`

func writeTestFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0o644)
}

func TestCSVRecords(t *testing.T) {
	records, err := CSVRecords(context.Background(), strings.NewReader(recordsCSV))
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "Portland Food Pantry", records[0]["name"])
	assert.Equal(t, "OR", records[0]["state"])
	assert.Equal(t, "Salem Shelter", records[1]["name"])
	assert.Equal(t, "shelter", records[1]["type"])
}

func TestCSVRecords_ShortRow(t *testing.T) {
	input := "name,city,state\nOnly Name\n"
	records, err := CSVRecords(context.Background(), strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "Only Name", records[0]["name"])
	assert.NotContains(t, records[0], "city")
}

func TestCSVRecords_Empty(t *testing.T) {
	records, err := CSVRecords(context.Background(), strings.NewReader(""))
	require.NoError(t, err)
	assert.Nil(t, records)
}

func TestJSONRecords(t *testing.T) {
	input := `[{"name":"A","city":"Portland"},{"name":"B","city":"Salem","beds":12}]`
	records, err := JSONRecords(context.Background(), strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "A", records[0]["name"])
	assert.Equal(t, float64(12), records[1]["beds"])
}

func TestXLSXRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "resources.xlsx")
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Resources")
	require.NoError(t, err)
	for _, row := range [][]string{
		{"name", "city", "state"},
		{"Eugene Clinic", "Eugene", "OR"},
	} {
		r := sheet.AddRow()
		for _, cell := range row {
			r.AddCell().SetString(cell)
		}
	}
	require.NoError(t, f.Save(path))

	records, err := XLSXRecords(path)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "Eugene Clinic", records[0]["name"])
	assert.Equal(t, "Eugene", records[0]["city"])
}

func TestReadRecords_LocalCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feed.csv")
	require.NoError(t, writeTestFile(path, recordsCSV))

	records, err := ReadRecords(context.Background(), path)
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestReadRecords_ZippedCSV(t *testing.T) {
	dir := t.TempDir()
	zipPath := filepath.Join(dir, "feed.zip")

	zf, err := os.Create(zipPath)
	require.NoError(t, err)
	zw := zip.NewWriter(zf)
	w, err := zw.Create("feed.csv")
	require.NoError(t, err)
	_, err = w.Write([]byte(recordsCSV))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, zf.Close())

	records, err := ReadRecords(context.Background(), zipPath)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "Salem Shelter", records[1]["name"])
}

func TestReadRecords_HTTPJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[{"name":"Remote Resource","city":"Bend"}]`))
	}))
	defer srv.Close()

	records, err := ReadRecords(context.Background(), srv.URL+"/feed.json")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "Remote Resource", records[0]["name"])
}

func TestReadRecords_UnsupportedFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feed.parquet")
	require.NoError(t, writeTestFile(path, "x"))

	_, err := ReadRecords(context.Background(), path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported source format")
}
