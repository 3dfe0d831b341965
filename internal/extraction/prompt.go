package extraction

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"

	"github.com/garyjia/supplier-ingest/internal/application/port"
	"github.com/garyjia/supplier-ingest/internal/models"
)

const defaultSystemPrompt = `You extract product data from supplier price lists of a household appliance retailer.
You always answer with one valid JSON object and nothing else.`

const defaultUserTemplate = `Supplier: {{.Supplier}}
{{if .Rules}}
## Business Rules (Maximum Priority)
These rules come from the supplier's own workbook. Apply them before any other instruction.
{{range .Rules}}- {{.}}
{{end}}{{end}}
## Task
Extract every product from the {{.RowCount}} rows below (chunk {{.ChunkNumber}} of {{.ChunkTotal}}).
Each row is a JSON object mapping the column names of the workbook to cell values.
Skip rows that are not products (titles, subtotals, notes). Never invent values.

Return a single JSON object shaped as {"productos": [ ... ]} where every product has:
- "nombre": product name, required
- "referencia_proveedor": supplier reference or code, required
- "precio_coste": net purchase price as a number, required
- "precio_venta": recommended retail price as a number, or null when the row has none
- "categoria": product category
- "subcategoria": product subcategory, or null
- "descripcion": extra description, or null
- "ean": barcode, or null

## Rows
{{.Rows}}`

// PromptTemplate is the overridable text of the extraction prompt
type PromptTemplate struct {
	System       string `yaml:"system"`
	UserTemplate string `yaml:"user_template"`
}

// DefaultPromptTemplate returns the built-in prompt
func DefaultPromptTemplate() PromptTemplate {
	return PromptTemplate{System: defaultSystemPrompt, UserTemplate: defaultUserTemplate}
}

type promptData struct {
	Supplier    string
	Rules       []string
	RowCount    int
	ChunkNumber int
	ChunkTotal  int
	Rows        string
}

// PromptBuilder renders chunk prompts. It is safe for concurrent use.
type PromptBuilder struct {
	system string
	user   *template.Template
}

// NewPromptBuilder compiles t, using the default text for empty fields
func NewPromptBuilder(t PromptTemplate) (*PromptBuilder, error) {
	def := DefaultPromptTemplate()
	if strings.TrimSpace(t.System) == "" {
		t.System = def.System
	}
	if strings.TrimSpace(t.UserTemplate) == "" {
		t.UserTemplate = def.UserTemplate
	}
	tmpl, err := template.New("extraction").Parse(t.UserTemplate)
	if err != nil {
		return nil, fmt.Errorf("failed to parse prompt template: %w", err)
	}
	return &PromptBuilder{system: t.System, user: tmpl}, nil
}

// Build renders the messages for one chunk
func (b *PromptBuilder) Build(batch models.ExtractionBatch, chunks int, supplier string, rules *models.BusinessRules) ([]port.Message, error) {
	var rows strings.Builder
	for _, r := range batch.Rows {
		line, err := json.Marshal(r)
		if err != nil {
			return nil, fmt.Errorf("failed to encode row %d: %w", r.Line, err)
		}
		rows.Write(line)
		rows.WriteByte('\n')
	}

	if strings.TrimSpace(supplier) == "" {
		supplier = "unknown"
	}
	data := promptData{
		Supplier:    supplier,
		Rules:       rules.Lines(),
		RowCount:    len(batch.Rows),
		ChunkNumber: batch.Index + 1,
		ChunkTotal:  chunks,
		Rows:        strings.TrimRight(rows.String(), "\n"),
	}

	var buf bytes.Buffer
	if err := b.user.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("failed to execute prompt template: %w", err)
	}

	return []port.Message{
		{Role: port.RoleSystem, Content: b.system},
		{Role: port.RoleUser, Content: buf.String()},
	}, nil
}
