package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/garyjia/supplier-ingest/internal/models"
)

const invoiceText = `ALMCE S.L.
C.I.F.: B-14891592
| 24001877 | 15/03/24 |
| 12345 | CAFETERA X | 2 | 50,00 | 100,00 |
| TOTAL IMP. | 126,20 |
`

func setupEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("INGEST_OPENAI_API_KEY", "")
	t.Setenv("INGEST_DATABASE_PATH", filepath.Join(dir, "catalog.db"))
	t.Setenv("INGEST_OUTPUT_DIR", filepath.Join(dir, "runs"))
	t.Setenv("INGEST_LOGGER_LEVEL", "error")
	return dir
}

func execute(t *testing.T, args ...string) (*bytes.Buffer, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd(&out)
	root.SetArgs(args)
	root.SetErr(&bytes.Buffer{})
	return &out, root.Execute()
}

func TestContentTypeFor(t *testing.T) {
	tests := []struct {
		path string
		doc  []byte
		want string
	}{
		{"factura.pdf", nil, "application/pdf"},
		{"scan.PNG", nil, "image/png"},
		{"scan.jpg", nil, "image/jpeg"},
		{"factura.txt", nil, "text/plain"},
		{"factura", []byte("%PDF-1.7\n"), "application/pdf"},
		{"notes", []byte("plain words"), "text/plain; charset=utf-8"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, contentTypeFor(tt.path, tt.doc))
		})
	}
}

func TestInvoiceCommand(t *testing.T) {
	dir := setupEnv(t)
	path := filepath.Join(dir, "factura.txt")
	require.NoError(t, os.WriteFile(path, []byte(invoiceText), 0o644))

	out, err := execute(t, "invoice", path)
	require.NoError(t, err)

	var res models.ImportResult
	require.NoError(t, json.Unmarshal(out.Bytes(), &res))
	assert.Len(t, res.Created, 1)
	assert.Equal(t, path, res.Source)

	out, err = execute(t, "runs")
	require.NoError(t, err)
	var runs []string
	require.NoError(t, json.Unmarshal(out.Bytes(), &runs))
	require.Len(t, runs, 1)
	assert.FileExists(t, filepath.Join(dir, "runs", runs[0], "report.xlsx"))

	out, err = execute(t, "runs", runs[0])
	require.NoError(t, err)
	var archived models.ImportResult
	require.NoError(t, json.Unmarshal(out.Bytes(), &archived))
	assert.Equal(t, res.RunID, archived.RunID)
}

func TestInvoiceCommand_DryRunNoArchive(t *testing.T) {
	dir := setupEnv(t)
	path := filepath.Join(dir, "factura.txt")
	require.NoError(t, os.WriteFile(path, []byte(invoiceText), 0o644))

	_, err := execute(t, "invoice", path, "--dry-run", "--no-archive")
	require.NoError(t, err)
	assert.NoFileExists(t, filepath.Join(dir, "catalog.db"))
	assert.NoDirExists(t, filepath.Join(dir, "runs"))
}

func TestInvoiceCommand_UnsupportedSupplier(t *testing.T) {
	dir := setupEnv(t)
	path := filepath.Join(dir, "otra.txt")
	require.NoError(t, os.WriteFile(path, []byte("PROVEEDOR DESCONOCIDO\nsin lineas"), 0o644))

	out, err := execute(t, "invoice", path, "--no-archive")
	require.ErrorIs(t, err, models.ErrAdapter)

	// the envelope is still printed
	var res models.ImportResult
	require.NoError(t, json.Unmarshal(out.Bytes(), &res))
	require.NotEmpty(t, res.Failed)
}

func TestMigrateCommand(t *testing.T) {
	setupEnv(t)

	out, err := execute(t, "migrate")
	require.NoError(t, err)
	var first map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &first))
	assert.Positive(t, first["applied"])

	out, err = execute(t, "migrate")
	require.NoError(t, err)
	var second map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &second))
	assert.EqualValues(t, 0, second["applied"])
}

func TestOCRCommand(t *testing.T) {
	dir := setupEnv(t)
	path := filepath.Join(dir, "factura.txt")
	require.NoError(t, os.WriteFile(path, []byte(invoiceText), 0o644))

	out, err := execute(t, "ocr", path)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "CAFETERA X")

	_, err = execute(t, "ocr", filepath.Join(dir, "missing.pdf"))
	assert.Error(t, err)
}

// chatServer answers every chat completion with content
func chatServer(t *testing.T, content string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		body, err := json.Marshal(map[string]any{
			"id":     "chatcmpl-1",
			"object": "chat.completion",
			"model":  "gpt-test",
			"choices": []map[string]any{{
				"index":         0,
				"message":       map[string]any{"role": "assistant", "content": content},
				"finish_reason": "stop",
			}},
		})
		assert.NoError(t, err)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(body)
	}))
	t.Cleanup(server.Close)
	return server, &calls
}

func TestPricelistCommand_DryRun(t *testing.T) {
	dir := setupEnv(t)
	server, calls := chatServer(t, `{"productos": [
		{"referencia_proveedor": "A1", "nombre": "Batidora de vaso", "precio_coste": "20,50", "precio_venta": 34.9},
		{"referencia_proveedor": "A2", "nombre": "Plancha vapor", "precio_coste": 30}
	]}`)
	t.Setenv("INGEST_OPENAI_API_KEY", "sk-test")
	t.Setenv("INGEST_OPENAI_BASE_URL", server.URL+"/v1")

	f := excelize.NewFile()
	rows := [][]any{
		{"COD.", "DESCRIPCIÓN", "COSTE", "P.V.P"},
		{"A1", "Batidora de vaso", "20,50", 34.9},
		{"A2", "Plancha vapor", 30, nil},
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		r := row
		require.NoError(t, f.SetSheetRow("Sheet1", cell, &r))
	}
	path := filepath.Join(dir, "tarifa.xlsx")
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	out, err := execute(t, "pricelist", path, "--supplier", "Hogar Norte", "--dry-run", "--no-archive", "--progress")
	require.NoError(t, err)

	var res models.ImportResult
	require.NoError(t, json.Unmarshal(out.Bytes(), &res))
	assert.Len(t, res.Created, 2)
	assert.Empty(t, res.Failed)
	assert.False(t, res.Cancelled)
	require.Len(t, res.Chunks, 1)
	assert.True(t, res.Chunks[0].OK)
	assert.Equal(t, 2, res.Chunks[0].Products)
	assert.Equal(t, int32(1), calls.Load())

	assert.NoFileExists(t, filepath.Join(dir, "catalog.db"))
	assert.NoDirExists(t, filepath.Join(dir, "runs"))
}
