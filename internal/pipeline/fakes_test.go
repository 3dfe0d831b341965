package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/garyjia/supplier-ingest/internal/application/port"
	"github.com/garyjia/supplier-ingest/internal/extraction"
	"github.com/garyjia/supplier-ingest/internal/repository"
)

// rowLLM answers every prompt with respond(rows), rows being the JSON row objects of the prompt
type rowLLM struct {
	respond func(ctx context.Context, rows []map[string]any) (string, error)
	calls   atomic.Int32
	started chan struct{}
}

func newRowLLM(respond func(ctx context.Context, rows []map[string]any) (string, error)) *rowLLM {
	return &rowLLM{respond: respond, started: make(chan struct{}, 64)}
}

func (l *rowLLM) Complete(ctx context.Context, req port.CompletionRequest) (*port.Completion, error) {
	l.calls.Add(1)
	select {
	case l.started <- struct{}{}:
	default:
	}

	user := req.Messages[len(req.Messages)-1].Content
	var rows []map[string]any
	if i := strings.Index(user, "## Rows\n"); i >= 0 {
		for _, line := range strings.Split(user[i+len("## Rows\n"):], "\n") {
			var row map[string]any
			if err := json.Unmarshal([]byte(line), &row); err == nil {
				rows = append(rows, row)
			}
		}
	}
	content, err := l.respond(ctx, rows)
	if err != nil {
		return nil, err
	}
	return &port.Completion{Content: content, Model: "fake"}, nil
}

// columnProducts maps COD/DESCRIPCION/P.V.P style columns to product objects the way a model would
func columnProducts(_ context.Context, rows []map[string]any) (string, error) {
	items := []map[string]any{}
	for _, r := range rows {
		item := map[string]any{}
		for col, v := range r {
			switch upper := strings.ToUpper(col); {
			case strings.HasPrefix(upper, "COD"), strings.HasPrefix(upper, "REF"):
				item["referencia_proveedor"] = v
			case strings.HasPrefix(upper, "DESC"), strings.HasPrefix(upper, "ART"):
				item["nombre"] = v
			case strings.Contains(upper, "COSTE"), strings.Contains(upper, "NETO"):
				item["precio_coste"] = v
			case strings.Contains(upper, "P.V.P"), strings.Contains(upper, "PVP"):
				item["precio_venta"] = v
			case strings.HasPrefix(upper, "FAM"):
				item["categoria"] = v
			}
		}
		if _, ok := item["precio_coste"]; !ok {
			item["precio_coste"] = item["precio_venta"]
			delete(item, "precio_venta")
		}
		items = append(items, item)
	}
	out, err := json.Marshal(map[string]any{"productos": items})
	return string(out), err
}

// MockOCRProvider mocks port.OCRProvider
type MockOCRProvider struct {
	mock.Mock
}

func (m *MockOCRProvider) OCR(ctx context.Context, document []byte, contentType string) (*port.OCRResult, error) {
	args := m.Called(ctx, document, contentType)
	if r := args.Get(0); r != nil {
		return r.(*port.OCRResult), args.Error(1)
	}
	return nil, args.Error(1)
}

// writeWorkbook saves sheets (in order) to a temp xlsx and returns its path
func writeWorkbook(t *testing.T, sheets []string, content map[string][][]any) string {
	t.Helper()
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	require.NoError(t, f.SetSheetName("Sheet1", sheets[0]))
	for _, name := range sheets[1:] {
		_, err := f.NewSheet(name)
		require.NoError(t, err)
	}
	for name, rows := range content {
		for i, row := range rows {
			cell, err := excelize.CoordinatesToCellName(1, i+1)
			require.NoError(t, err)
			r := row
			require.NoError(t, f.SetSheetRow(name, cell, &r))
		}
	}

	path := filepath.Join(t.TempDir(), "tarifa.xlsx")
	require.NoError(t, f.SaveAs(path))
	return path
}

type fixture struct {
	coord *Coordinator
	sink  *repository.MemorySink
	llm   *rowLLM
	ocr   *MockOCRProvider
}

func newFixture(t *testing.T, llm *rowLLM, tweak func(*extraction.Config, *Config)) *fixture {
	t.Helper()

	ecfg := extraction.DefaultConfig()
	ecfg.ChunkSize = 2
	ecfg.MaxRetries = 0
	ecfg.BackoffBase = time.Millisecond
	ecfg.PerCallTimeout = 2 * time.Second
	ecfg.GracefulCancelTimeout = 50 * time.Millisecond
	pcfg := DefaultConfig()
	pcfg.SinkTimeout = time.Second
	pcfg.OverallTimeout = 10 * time.Second
	if tweak != nil {
		tweak(&ecfg, &pcfg)
	}

	prompts, err := extraction.NewPromptBuilder(extraction.DefaultPromptTemplate())
	require.NoError(t, err)
	orch, err := extraction.NewOrchestrator(llm, prompts, ecfg, nil)
	require.NoError(t, err)

	sink := repository.NewMemorySink()
	ocr := &MockOCRProvider{}
	coord, err := NewCoordinator(Dependencies{Extractor: orch, Sink: sink, OCR: ocr}, pcfg, nil)
	require.NoError(t, err)
	return &fixture{coord: coord, sink: sink, llm: llm, ocr: ocr}
}

func productsJSON(items ...string) string {
	return fmt.Sprintf(`{"productos": [%s]}`, strings.Join(items, ","))
}
