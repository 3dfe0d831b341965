package extraction

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/shopspring/decimal"

	"github.com/garyjia/supplier-ingest/internal/locale"
	"github.com/garyjia/supplier-ingest/internal/models"
)

// Candidate is a product as the model reported it, before categorization and price conversion
type Candidate struct {
	Code        string
	Name        string
	Description string
	Category    string
	Subcategory string
	Barcode     string
	Cost        decimal.Decimal
	Price       *decimal.Decimal
	Chunk       int
}

const responseSchema = `{
  "type": "object",
  "required": ["productos"],
  "properties": {
    "productos": {
      "type": "array",
      "items": {"type": "object"}
    }
  }
}`

var productsSchema = compileSchema()

func compileSchema() *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("productos.json", strings.NewReader(responseSchema)); err != nil {
		panic(fmt.Sprintf("add schema: %v", err))
	}
	return compiler.MustCompile("productos.json")
}

// parseResponse decodes a model answer into candidates. Non-JSON prose around the
// object is tolerated; a missing or malformed "productos" array is an extraction error.
func parseResponse(content string, chunk int, rec models.Recorder) ([]Candidate, error) {
	doc, err := decodeObject(content)
	if err != nil {
		return nil, err
	}
	if err := productsSchema.Validate(doc); err != nil {
		return nil, fmt.Errorf("%w: response does not match schema: %v", models.ErrExtraction, err)
	}

	items := doc.(map[string]any)["productos"].([]any)
	out := make([]Candidate, 0, len(items))
	for i, item := range items {
		obj := item.(map[string]any)
		prec := models.Scoped(rec, fmt.Sprintf("chunk %d item %d", chunk, i))

		c := Candidate{
			Code:        text(obj["referencia_proveedor"]),
			Name:        text(obj["nombre"]),
			Description: text(obj["descripcion"]),
			Category:    text(obj["categoria"]),
			Subcategory: text(obj["subcategoria"]),
			Barcode:     text(obj["ean"]),
			Cost:        locale.ParseDecimal(obj["precio_coste"], prec),
			Chunk:       chunk,
		}
		if v, ok := obj["precio_venta"]; ok && !models.IsBlank(v) {
			p := locale.ParseDecimal(v, prec)
			c.Price = &p
		}
		out = append(out, c)
	}
	return out, nil
}

func decodeObject(content string) (any, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, fmt.Errorf("%w: empty response", models.ErrExtraction)
	}

	var doc any
	if err := json.Unmarshal([]byte(content), &doc); err == nil {
		return doc, nil
	}

	// Models sometimes wrap the object in prose or code fences
	raw := extractJSON(content)
	if raw == "" {
		return nil, fmt.Errorf("%w: response is not JSON", models.ErrExtraction)
	}
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, fmt.Errorf("%w: response is not JSON: %v", models.ErrExtraction, err)
	}
	return doc, nil
}

// text renders a JSON scalar as trimmed text. Numeric references such as 12345 keep no decimals.
func text(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return ""
	}
}

// extractJSON returns the first balanced {...} block in content
func extractJSON(content string) string {
	start := strings.IndexByte(content, '{')
	if start < 0 {
		return ""
	}
	end := findJSONEnd(content, start)
	if end <= start {
		return ""
	}
	return content[start:end]
}

func findJSONEnd(content string, start int) int {
	braceCount := 0
	inString := false
	escapeNext := false

	for i := start; i < len(content); i++ {
		char := content[i]

		if escapeNext {
			escapeNext = false
			continue
		}
		if char == '\\' {
			escapeNext = true
			continue
		}
		if char == '"' {
			inString = !inString
			continue
		}
		if inString {
			continue
		}

		switch char {
		case '{':
			braceCount++
		case '}':
			braceCount--
			if braceCount == 0 {
				return i + 1
			}
		}
	}
	return -1
}
