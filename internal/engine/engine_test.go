package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func writeCSV(t *testing.T, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data.csv")
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))
	return path
}

func TestLoad_Basic(t *testing.T) {
	e := newTestEngine(t)
	path := writeCSV(t, "region,population,density\nLombardia,10027602,420.5\nLazio,5720796,332.1\n")

	require.NoError(t, e.Load(context.Background(), path, Options{}))

	assert.Equal(t, 2, e.RowCount())
	assert.Equal(t, 2, e.LoadedRows())

	cols := e.Columns()
	require.Len(t, cols, 3)
	assert.Equal(t, "region", cols[0].Name)
	assert.Equal(t, "TEXT", cols[0].Type)
	assert.Equal(t, "INTEGER", cols[1].Type)
	assert.Equal(t, "REAL", cols[2].Type)
}

func TestLoad_SanitizesHeaders(t *testing.T) {
	e := newTestEngine(t)
	path := writeCSV(t, "id,2020,unit price,ort (plz)\n1,2,3,4\n")

	require.NoError(t, e.Load(context.Background(), path, Options{}))

	cols := e.Columns()
	require.Len(t, cols, 4)
	assert.Equal(t, "2020", cols[1].Raw, "raw spelling preserved")
	assert.Equal(t, "column1", cols[1].Name, "digit-leading header renamed")
	assert.Equal(t, "unit_price", cols[2].Name)
	assert.Equal(t, "unit price", cols[2].Raw)
	assert.Equal(t, "ort__plz_", cols[3].Name)
}

func TestLoad_DuplicateHeaders(t *testing.T) {
	e := newTestEngine(t)
	path := writeCSV(t, "id,value,value\n1,2,3\n")

	require.NoError(t, e.Load(context.Background(), path, Options{}))

	cols := e.Columns()
	assert.Equal(t, "value", cols[1].Name)
	assert.Equal(t, "value_1", cols[2].Name)
	assert.Equal(t, "value", cols[2].Raw, "both raw spellings identical")
}

func TestLoad_EmptyFieldsBecomeNull(t *testing.T) {
	e := newTestEngine(t)
	path := writeCSV(t, "a,b\n1,\n,2\n3,4\n")

	require.NoError(t, e.Load(context.Background(), path, Options{}))

	sums, err := e.Summarize(context.Background())
	require.NoError(t, err)
	require.Len(t, sums, 2)
	assert.InDelta(t, 33.3, sums[0].NullPct, 0.4)
	assert.InDelta(t, 33.3, sums[1].NullPct, 0.4)
	assert.Equal(t, 2, sums[0].Distinct)
}

func TestLoad_SampleCapKeepsCounting(t *testing.T) {
	e := newTestEngine(t)
	data := "id,v\n"
	for i := 0; i < 30; i++ {
		data += "1,2\n"
	}
	path := writeCSV(t, data)

	require.NoError(t, e.Load(context.Background(), path, Options{SampleRows: 10}))

	assert.Equal(t, 30, e.RowCount(), "row count covers the whole file")
	assert.Equal(t, 10, e.LoadedRows(), "table holds only the sample")
}

func TestLoad_StrictRejectsRaggedRows(t *testing.T) {
	e := newTestEngine(t)
	path := writeCSV(t, "a,b,c\n1,2,3\n4,5\n")

	err := e.Load(context.Background(), path, Options{})
	require.Error(t, err)
	assert.True(t, IsRetryable(err), "ragged rows are a retryable parse failure")
}

func TestLoad_LenientPadsAndTruncates(t *testing.T) {
	e := newTestEngine(t)
	path := writeCSV(t, "a,b,c\n1,2\n4,5,6,7\n")

	require.NoError(t, e.Load(context.Background(), path, Options{Lenient: true}))
	assert.Equal(t, 2, e.LoadedRows())

	sums, err := e.Summarize(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 50.0, sums[2].NullPct, 0.1, "short row padded with NULL")
}

func TestLoad_InvalidUTF8IsRetryable(t *testing.T) {
	e := newTestEngine(t)
	path := writeCSV(t, "citt\xe0,popolazione\nMilano,1366180\n")

	err := e.Load(context.Background(), path, Options{})
	require.Error(t, err)
	assert.True(t, IsRetryable(err), "encoding recovery should get a chance")

	e2 := newTestEngine(t)
	err = e2.Load(context.Background(), path, Options{Lenient: true})
	require.Error(t, err, "lenient mode does not excuse bad encoding")
	assert.True(t, IsRetryable(err))
}

func TestLoad_MissingFileIsTerminal(t *testing.T) {
	e := newTestEngine(t)

	err := e.Load(context.Background(), filepath.Join(t.TempDir(), "nope.csv"), Options{})
	require.Error(t, err)
	assert.False(t, IsRetryable(err))
}

func TestLoad_Separator(t *testing.T) {
	e := newTestEngine(t)
	path := writeCSV(t, "a;b\n1;2\n")

	require.NoError(t, e.Load(context.Background(), path, Options{Separator: ';'}))
	require.Len(t, e.Columns(), 2)
	assert.Equal(t, 1, e.RowCount())
}

func TestLoad_BOMSkipped(t *testing.T) {
	e := newTestEngine(t)
	path := writeCSV(t, "\xef\xbb\xbfid,value\n1,2\n")

	require.NoError(t, e.Load(context.Background(), path, Options{}))
	assert.Equal(t, "id", e.Columns()[0].Raw, "BOM must not leak into the first header")
}

func TestCells(t *testing.T) {
	e := newTestEngine(t)
	path := writeCSV(t, "name,2020\nMilano,5\nTorino,\n")

	require.NoError(t, e.Load(context.Background(), path, Options{}))

	cells, err := e.Cells(context.Background(), 100)
	require.NoError(t, err)
	require.Len(t, cells, 3, "NULL cells skipped")
	assert.Equal(t, Cell{Column: "name", Value: "Milano"}, cells[0])
	assert.Equal(t, Cell{Column: "2020", Value: "5"}, cells[1], "cells carry raw column names")
}

func TestCells_RowLimit(t *testing.T) {
	e := newTestEngine(t)
	path := writeCSV(t, "a\n1\n2\n3\n")

	require.NoError(t, e.Load(context.Background(), path, Options{}))

	cells, err := e.Cells(context.Background(), 2)
	require.NoError(t, err)
	assert.Len(t, cells, 2)
}

func TestColumnValues(t *testing.T) {
	e := newTestEngine(t)
	path := writeCSV(t, "code,name\n001,a\n002,b\n001,c\n")

	require.NoError(t, e.Load(context.Background(), path, Options{}))

	col, ok := e.ColumnByRaw("code")
	require.True(t, ok)

	vals, err := e.ColumnValues(context.Background(), col, 100)
	require.NoError(t, err)
	assert.Equal(t, []string{"001", "002", "001"}, vals)

	distinct, err := e.DistinctValues(context.Background(), col, 100)
	require.NoError(t, err)
	assert.Len(t, distinct, 2)
}

func TestTypeInference_CommaDecimalsStayText(t *testing.T) {
	e := newTestEngine(t)
	path := writeCSV(t, "price,qty\n\"1.234,56\",3\n\"2.345,67\",4\n")

	require.NoError(t, e.Load(context.Background(), path, Options{}))

	cols := e.Columns()
	assert.Equal(t, "TEXT", cols[0].Type, "locale decimals do not parse as numbers")
	assert.Equal(t, "INTEGER", cols[1].Type)
}
