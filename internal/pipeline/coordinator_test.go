package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/supplier-ingest/internal/application/port"
	"github.com/garyjia/supplier-ingest/internal/catalog"
	"github.com/garyjia/supplier-ingest/internal/extraction"
	"github.com/garyjia/supplier-ingest/internal/models"
	"github.com/garyjia/supplier-ingest/internal/repository"
)

var refrigeratorSheet = map[string][][]any{
	"Productos": {
		{nil, nil, nil},
		{"COD.", "DESCRIPCIÓN", "P.V.P", "STOCK"},
		{"A1", "Refrigerator X", 499.00, 3},
	},
}

func TestImportPriceList_HeaderDetection(t *testing.T) {
	fx := newFixture(t, newRowLLM(columnProducts), nil)
	path := writeWorkbook(t, []string{"Productos"}, refrigeratorSheet)

	res, err := fx.coord.ImportPriceList(context.Background(), path, "Hogar Norte")
	require.NoError(t, err)

	require.Len(t, res.Created, 1)
	assert.Empty(t, res.Updated)
	assert.Empty(t, res.Failed)
	assert.False(t, res.Cancelled)
	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, path, res.Source)
	require.Len(t, res.Chunks, 1)
	assert.True(t, res.Chunks[0].OK)

	stored := fx.sink.Products()
	require.Len(t, stored, 1)
	p := stored[0].Product
	assert.Equal(t, "A1", p.Code)
	assert.Equal(t, "Refrigerator X", p.Name)
	assert.True(t, p.Price.Equal(decimal.RequireFromString("499.00")), p.Price.String())
	assert.Equal(t, "OTROS", p.Category.Path())
	require.NotNil(t, p.Supplier)
	assert.Equal(t, "Hogar Norte", p.Supplier.Name)
	assert.Equal(t, res.Created[0], stored[0].ID)
}

func TestImportPriceList_Idempotent(t *testing.T) {
	fx := newFixture(t, newRowLLM(columnProducts), nil)
	path := writeWorkbook(t, []string{"Productos"}, map[string][][]any{
		"Productos": {
			{"COD.", "DESCRIPCIÓN", "P.V.P"},
			{"A1", "Frigorífico combi", 499.00},
			{"A2", "Lavadora 8kg", 329.00},
			{"A3", "Microondas 20L", 89.90},
		},
	})
	ctx := context.Background()

	first, err := fx.coord.ImportPriceList(ctx, path, "Hogar Norte")
	require.NoError(t, err)
	require.Len(t, first.Created, 3)

	second, err := fx.coord.ImportPriceList(ctx, path, " hogar norte ")
	require.NoError(t, err)
	assert.Empty(t, second.Created)
	assert.ElementsMatch(t, first.IDs(), second.IDs())

	assert.Len(t, fx.sink.Products(), 3)
	suppliers, err := fx.sink.ListSuppliers(ctx)
	require.NoError(t, err)
	assert.Len(t, suppliers, 1)
}

func TestImportPriceList_SameNameDifferentCodes(t *testing.T) {
	fx := newFixture(t, newRowLLM(columnProducts), nil)
	path := writeWorkbook(t, []string{"Hoja1"}, map[string][][]any{
		"Hoja1": {
			{"COD.", "DESCRIPCIÓN", "P.V.P"},
			{"C1", "Cafetera X", 10},
			{"C2", "Cafetera X", 12},
		},
	})
	ctx := context.Background()

	res, err := fx.coord.ImportPriceList(ctx, path, "ACME")
	require.NoError(t, err)
	assert.Len(t, res.Created, 2)
	assert.Empty(t, res.Updated)
	assert.Empty(t, res.Failed)

	stored := fx.sink.Products()
	require.Len(t, stored, 2)
	assert.Equal(t, "C1", stored[0].Code)
	assert.Equal(t, "C2", stored[1].Code)
	assert.True(t, stored[0].Product.Price.Equal(decimal.NewFromInt(10)))

	var duplicates []models.Warning
	for _, w := range res.Warnings {
		if w.Kind == models.KindDuplicate {
			duplicates = append(duplicates, w)
		}
	}
	require.Len(t, duplicates, 1)
	assert.Equal(t, "product C2", duplicates[0].Scope)
	assert.Contains(t, duplicates[0].Message, `"C1"`)

	// a second import updates both SKUs in place
	again, err := fx.coord.ImportPriceList(ctx, path, "ACME")
	require.NoError(t, err)
	assert.Empty(t, again.Created)
	assert.ElementsMatch(t, res.Created, again.Updated)
	assert.Len(t, fx.sink.Products(), 2)
}

func TestImportPriceList_NetCostAndCategories(t *testing.T) {
	llm := newRowLLM(func(context.Context, []map[string]any) (string, error) {
		return productsJSON(
			`{"referencia_proveedor": "F-5", "nombre": "FREIDORA SIN ACEITE 5L", "precio_coste": "126,20", "precio_venta": 149.9}`,
			`{"referencia_proveedor": "K-1", "nombre": "Kit limpieza", "precio_coste": 12.62, "categoria": "Hogar", "subcategoria": "Limpieza"}`,
		), nil
	})
	fx := newFixture(t, llm, nil)
	path := writeWorkbook(t, []string{"Lista"}, map[string][][]any{
		"Lista": {
			{"REF", "ARTICULO", "NETO"},
			{"F-5", "FREIDORA SIN ACEITE 5L", 126.2},
		},
	})

	res, err := fx.coord.ImportPriceList(context.Background(), path, "ALMCE")
	require.NoError(t, err)
	require.Len(t, res.Created, 2)

	stored := fx.sink.Products()
	require.Len(t, stored, 2)

	fryer := stored[0].Product
	assert.True(t, fryer.Cost.Equal(decimal.RequireFromString("100.00")), fryer.Cost.String())
	assert.True(t, fryer.Price.Equal(decimal.RequireFromString("149.9")))
	assert.Equal(t, "FREIDORAS", fryer.Category.Path())
	require.NotNil(t, fryer.MarginPct)
	assert.True(t, fryer.MarginPct.Equal(decimal.RequireFromString("49.9")))

	// no keyword: the model's category wins; no retail price: price equals net cost
	kit := stored[1].Product
	assert.Equal(t, "Hogar / Limpieza", kit.Category.Path())
	assert.True(t, kit.Cost.Equal(decimal.RequireFromString("10")))
	assert.True(t, kit.Price.Equal(kit.Cost))
}

func TestImportPriceList_FailedChunkAndInvalidProduct(t *testing.T) {
	llm := newRowLLM(func(_ context.Context, rows []map[string]any) (string, error) {
		if rows[0]["COD."] == "B1" {
			return `{}`, nil
		}
		return productsJSON(
			`{"referencia_proveedor": "A1", "nombre": "Batidora", "precio_coste": 20}`,
			`{"referencia_proveedor": "A2", "nombre": "", "precio_coste": 20}`,
		), nil
	})
	fx := newFixture(t, llm, nil)
	path := writeWorkbook(t, []string{"Productos"}, map[string][][]any{
		"Productos": {
			{"COD.", "DESCRIPCIÓN", "P.V.P"},
			{"A1", "Batidora", 20},
			{"A2", "sin nombre", 20},
			{"B1", "Plancha", 30},
		},
	})

	res, err := fx.coord.ImportPriceList(context.Background(), path, "Hogar Norte")
	require.NoError(t, err)

	assert.Len(t, res.Created, 1)
	require.Len(t, res.Failed, 2)

	chunk := res.Failed[0]
	assert.Equal(t, models.KindExtraction, chunk.Kind)
	assert.Equal(t, 2, chunk.RowIndex)
	assert.Contains(t, chunk.Message, "chunk 1")

	invalid := res.Failed[1]
	assert.Equal(t, models.KindValidation, invalid.Kind)
	assert.Equal(t, 1, invalid.RowIndex)

	require.Len(t, res.Chunks, 2)
	assert.True(t, res.Chunks[0].OK)
	assert.False(t, res.Chunks[1].OK)
}

func TestImportPriceList_OnlyRuleSheet(t *testing.T) {
	fx := newFixture(t, newRowLLM(columnProducts), nil)
	path := writeWorkbook(t, []string{"Reglas de cálculo"}, map[string][][]any{
		"Reglas de cálculo": {
			{"Descuento", "10% sobre tarifa"},
			{"Portes", "pagados desde 300 €"},
		},
	})

	res, err := fx.coord.ImportPriceList(context.Background(), path, "")
	require.NoError(t, err)
	assert.Empty(t, res.Created)
	assert.Empty(t, res.Updated)
	assert.Empty(t, res.Failed)
	require.NotNil(t, res.BusinessRules)
	assert.Contains(t, res.BusinessRules.Lines(), "Descuento | 10% sobre tarifa")
	assert.Zero(t, fx.llm.calls.Load())
}

func TestImportPriceList_UnreadableWorkbook(t *testing.T) {
	fx := newFixture(t, newRowLLM(columnProducts), nil)
	path := filepath.Join(t.TempDir(), "broken.xlsx")
	require.NoError(t, os.WriteFile(path, []byte("not a zip"), 0o600))

	res, err := fx.coord.ImportPriceList(context.Background(), path, "X")
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrParse)
	require.NotNil(t, res)
	require.Len(t, res.Failed, 1)
	assert.Equal(t, RunLevelRow, res.Failed[0].RowIndex)
	assert.Equal(t, models.KindParse, res.Failed[0].Kind)
}

func TestImportPriceList_Cancelled(t *testing.T) {
	llm := newRowLLM(func(ctx context.Context, rows []map[string]any) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	fx := newFixture(t, llm, func(e *extraction.Config, _ *Config) {
		e.ChunkSize = 1
		e.MaxParallel = 1
		e.MaxRetries = 1
		e.GracefulCancelTimeout = 20 * time.Millisecond
	})
	path := writeWorkbook(t, []string{"Productos"}, map[string][][]any{
		"Productos": {
			{"COD.", "DESCRIPCIÓN", "P.V.P"},
			{"A1", "Batidora", 20},
			{"A2", "Plancha", 30},
			{"A3", "Horno", 90},
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-llm.started
		cancel()
	}()

	res, err := fx.coord.ImportPriceList(ctx, path, "Hogar Norte")
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrCancelled)
	assert.True(t, res.Cancelled)
	assert.Empty(t, res.Created)
	assert.Equal(t, int32(1), llm.calls.Load())
	assert.Zero(t, fx.sink.Calls(repository.OpUpsertProduct))
	require.Len(t, res.Chunks, 3)
	for _, c := range res.Chunks {
		assert.Equal(t, models.KindCancelled, c.Kind)
	}
}

func TestImportPriceList_CancelKeepsFinishedChunks(t *testing.T) {
	llm := newRowLLM(func(ctx context.Context, rows []map[string]any) (string, error) {
		if rows[0]["COD."] == "A1" {
			return columnProducts(ctx, rows)
		}
		<-ctx.Done()
		return "", ctx.Err()
	})
	fx := newFixture(t, llm, func(e *extraction.Config, _ *Config) {
		e.ChunkSize = 1
		e.MaxParallel = 1
		e.GracefulCancelTimeout = 20 * time.Millisecond
	})
	path := writeWorkbook(t, []string{"Productos"}, map[string][][]any{
		"Productos": {
			{"COD.", "DESCRIPCIÓN", "P.V.P"},
			{"A1", "Batidora", 20},
			{"A2", "Plancha", 30},
			{"A3", "Horno", 90},
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-llm.started
		<-llm.started
		cancel()
	}()

	res, err := fx.coord.ImportPriceList(ctx, path, "Hogar Norte")
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrCancelled)
	assert.True(t, res.Cancelled)

	require.Len(t, res.Created, 1)
	stored := fx.sink.Products()
	require.Len(t, stored, 1)
	assert.Equal(t, "A1", stored[0].Code)
	assert.Equal(t, res.Created[0], stored[0].ID)

	require.Len(t, res.Chunks, 3)
	assert.True(t, res.Chunks[0].OK)
	for _, c := range res.Chunks[1:] {
		assert.Equal(t, models.KindCancelled, c.Kind)
	}
	assert.Len(t, res.Failed, 2)
}

func TestImportPriceList_ProgressDuringExtraction(t *testing.T) {
	llm := newRowLLM(func(ctx context.Context, rows []map[string]any) (string, error) {
		time.Sleep(30 * time.Millisecond)
		return columnProducts(ctx, rows)
	})
	fx := newFixture(t, llm, func(e *extraction.Config, p *Config) {
		e.ChunkSize = 1
		e.MaxParallel = 1
		p.ProgressInterval = 10 * time.Millisecond
	})
	var events []ProgressEvent
	fx.coord.OnProgress(func(e ProgressEvent) { events = append(events, e) })
	path := writeWorkbook(t, []string{"Productos"}, map[string][][]any{
		"Productos": {
			{"COD.", "DESCRIPCIÓN", "P.V.P"},
			{"A1", "Batidora", 20},
			{"A2", "Plancha", 30},
			{"A3", "Horno", 90},
			{"A4", "Tostadora", 25},
		},
	})

	_, err := fx.coord.ImportPriceList(context.Background(), path, "Hogar Norte")
	require.NoError(t, err)

	var extract []ProgressEvent
	for _, e := range events {
		if e.Phase == PhaseExtract {
			extract = append(extract, e)
		}
	}
	// start, one event per chunk, then the phase summary
	require.Len(t, extract, 6)
	for i, e := range extract[:5] {
		assert.Equal(t, i, e.Index)
		assert.Equal(t, i, e.OK)
		assert.Equal(t, 4, e.Total)
	}
	assert.Equal(t, ProgressEvent{RunID: extract[0].RunID, Phase: PhaseExtract, Index: 4, Total: 4, OK: 4}, extract[5])
}

func TestImportPriceList_SinkFailureIsPerProduct(t *testing.T) {
	fx := newFixture(t, newRowLLM(columnProducts), nil)
	fx.sink.FailOn(repository.OpUpsertProduct, errors.New("erp unavailable"))
	path := writeWorkbook(t, []string{"Productos"}, refrigeratorSheet)

	res, err := fx.coord.ImportPriceList(context.Background(), path, "Hogar Norte")
	require.NoError(t, err)
	assert.Empty(t, res.Created)
	require.Len(t, res.Failed, 1)
	assert.Equal(t, models.KindSink, res.Failed[0].Kind)
	assert.Equal(t, 0, res.Failed[0].RowIndex)
}

func TestImportPriceList_SimilarSupplierWarning(t *testing.T) {
	fx := newFixture(t, newRowLLM(columnProducts), nil)
	fx.sink.SeedSupplier(models.Supplier{Name: "Orbegozo"})
	path := writeWorkbook(t, []string{"Productos"}, refrigeratorSheet)

	res, err := fx.coord.ImportPriceList(context.Background(), path, "Orbegoso")
	require.NoError(t, err)

	var found bool
	for _, w := range res.Warnings {
		if w.Kind == models.KindDuplicate && w.Scope == "supplier" {
			found = true
			assert.Contains(t, w.Message, "Orbegozo")
		}
	}
	assert.True(t, found, "expected a similar-supplier warning, got %v", res.Warnings)
}

func TestResolveSupplier_MalformedContact(t *testing.T) {
	fx := newFixture(t, newRowLLM(columnProducts), nil)
	r := fx.coord.newRun("test")

	id, err := fx.coord.resolveSupplier(context.Background(), r, catalog.NewIndex(nil),
		models.Supplier{Name: "Electro Sur", VAT: "X-1", Email: "ventas"})
	require.NoError(t, err)
	assert.NotZero(t, id)

	warnings := r.warnings.List()
	require.Len(t, warnings, 2)
	assert.Contains(t, warnings[0].Message, "tax ID")
	assert.Contains(t, warnings[1].Message, "email")
}

func TestImportPriceList_ProgressEvents(t *testing.T) {
	fx := newFixture(t, newRowLLM(columnProducts), nil)
	var events []ProgressEvent
	fx.coord.OnProgress(func(e ProgressEvent) { events = append(events, e) })
	path := writeWorkbook(t, []string{"Productos"}, refrigeratorSheet)

	res, err := fx.coord.ImportPriceList(context.Background(), path, "Hogar Norte")
	require.NoError(t, err)

	phases := map[Phase]ProgressEvent{}
	for _, e := range events {
		assert.Equal(t, res.RunID, e.RunID)
		phases[e.Phase] = e
	}
	require.Contains(t, phases, PhaseUpsert)
	last := phases[PhaseUpsert]
	assert.Equal(t, 1, last.Index)
	assert.Equal(t, 1, last.Total)
	assert.Equal(t, 1, last.OK)
}

const almceInvoice = `ALMCE S.L.
C.I.F.: B-14891592
| 24001877 | 15/03/24 |
| 12345 | CAFETERA X | 2 | 50,00 | 100,00 |
| 12346 | TOSTADOR DUO | 1 | 20,00 | 20,00 |
| TOTAL IMP. | 151,44 |
`

func TestImportInvoice_Idempotent(t *testing.T) {
	fx := newFixture(t, newRowLLM(columnProducts), nil)
	ctx := context.Background()
	ocr := &port.OCRResult{FullText: almceInvoice}

	first, err := fx.coord.ImportInvoice(ctx, ocr)
	require.NoError(t, err)
	require.Len(t, first.Created, 1)
	assert.Empty(t, first.Failed)

	second, err := fx.coord.ImportInvoice(ctx, ocr)
	require.NoError(t, err)
	assert.Empty(t, second.Created)
	require.Len(t, second.Updated, 1)
	assert.Equal(t, first.Created[0], second.Updated[0])

	assert.Equal(t, 1, fx.sink.Calls(repository.OpCreatePurchase))
	purchases := fx.sink.Purchases()
	require.Len(t, purchases, 1)
	p := purchases[0]
	assert.Equal(t, "24001877", p.Invoice.Number)
	assert.Len(t, p.ProductIDs, 2)
	assert.NotZero(t, p.ProductIDs[0])
	assert.True(t, p.Invoice.Totals.SurchargeRate.Valid)

	// line products were ensured once, on the first import
	assert.Equal(t, 2, fx.sink.Calls(repository.OpEnsureProduct))
}

func TestImportInvoice_UnsupportedSupplierWritesNothing(t *testing.T) {
	fx := newFixture(t, newRowLLM(columnProducts), nil)

	res, err := fx.coord.ImportInvoice(context.Background(), &port.OCRResult{FullText: "FACTURA DESCONOCIDA\n| 1 | X | 1 | 1,00 | 1,00 |"})
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrUnsupportedSupplier)
	require.Len(t, res.Failed, 1)
	assert.Equal(t, models.KindAdapter, res.Failed[0].Kind)
	assert.Zero(t, fx.sink.Calls(repository.OpUpsertSupplier))
	assert.Zero(t, fx.sink.Calls(repository.OpCreatePurchase))
}

func TestImportInvoice_NoLinesWritesNothing(t *testing.T) {
	fx := newFixture(t, newRowLLM(columnProducts), nil)

	_, err := fx.coord.ImportInvoice(context.Background(), &port.OCRResult{FullText: "ALMCE S.L.\nsin líneas"})
	assert.ErrorIs(t, err, models.ErrInvoiceParse)
	assert.Zero(t, fx.sink.Calls(repository.OpUpsertSupplier))
}

func TestImportInvoiceDocument(t *testing.T) {
	fx := newFixture(t, newRowLLM(columnProducts), nil)
	doc := []byte("%PDF-1.7 fake")
	fx.ocr.On("OCR", mock.Anything, doc, "application/pdf").
		Return(&port.OCRResult{FullText: almceInvoice, Pages: []string{almceInvoice}}, nil).Once()

	res, err := fx.coord.ImportInvoiceDocument(context.Background(), doc, "application/pdf")
	require.NoError(t, err)
	assert.Len(t, res.Created, 1)
	fx.ocr.AssertExpectations(t)
}

func TestImportInvoiceDocument_OCRFailure(t *testing.T) {
	fx := newFixture(t, newRowLLM(columnProducts), nil)
	fx.ocr.On("OCR", mock.Anything, mock.Anything, "image/png").
		Return(nil, errors.New("ocr service down")).Once()

	res, err := fx.coord.ImportInvoiceDocument(context.Background(), []byte{1}, "image/png")
	require.Error(t, err)
	require.Len(t, res.Failed, 1)
	assert.Equal(t, RunLevelRow, res.Failed[0].RowIndex)
}

func TestNewCoordinatorValidation(t *testing.T) {
	_, err := NewCoordinator(Dependencies{}, DefaultConfig(), nil)
	assert.Error(t, err)

	cfg := DefaultConfig()
	cfg.SinkTimeout = 0
	_, err = NewCoordinator(Dependencies{Sink: repository.NewMemorySink()}, cfg, nil)
	assert.Error(t, err)
}
