package openai

import (
	"bytes"
	"fmt"
	"os"
	"text/template"

	"gopkg.in/yaml.v3"

	"github.com/garyjia/supplier-ingest/internal/extraction"
)

// PromptConfig holds the prompts and model parameters that can be overridden from YAML
type PromptConfig struct {
	ProductExtraction struct {
		System       string `yaml:"system"`
		UserTemplate string `yaml:"user_template"`
	} `yaml:"product_extraction"`

	InvoiceOCR struct {
		Temperature  float32 `yaml:"temperature"`
		MaxTokens    int     `yaml:"max_tokens"`
		System       string  `yaml:"system"`
		UserTemplate string  `yaml:"user_template"`
	} `yaml:"invoice_ocr"`
}

const defaultOCRSystem = `You transcribe scanned Spanish supplier invoices and delivery notes. You never summarize or translate.`

const defaultOCRTemplate = `Transcribe page {{.Page}} of {{.Pages}} of this document exactly as printed.
Render every table as pipe-delimited rows, one row per line, e.g. "| 12345 | DESCRIPTION | 2 | 10,00 | 20,00 |".
Keep numbers in their original format (decimal comma, thousands dot). Keep header fields such as C.I.F., invoice number and date.
Return only the transcription.`

// DefaultPrompts returns the built-in prompts
func DefaultPrompts() *PromptConfig {
	p := &PromptConfig{}
	def := extraction.DefaultPromptTemplate()
	p.ProductExtraction.System = def.System
	p.ProductExtraction.UserTemplate = def.UserTemplate
	p.InvoiceOCR.Temperature = 0
	p.InvoiceOCR.MaxTokens = 4096
	p.InvoiceOCR.System = defaultOCRSystem
	p.InvoiceOCR.UserTemplate = defaultOCRTemplate
	return p
}

// LoadPrompts loads prompt overrides from a YAML file. Fields missing from the file keep their defaults.
func LoadPrompts(promptsPath string) (*PromptConfig, error) {
	data, err := os.ReadFile(promptsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read prompts file: %w", err)
	}

	prompts := DefaultPrompts()
	if err := yaml.Unmarshal(data, prompts); err != nil {
		return nil, fmt.Errorf("failed to unmarshal prompts: %w", err)
	}
	return prompts, nil
}

// ExtractionTemplate returns the product extraction prompt for the orchestrator
func (p *PromptConfig) ExtractionTemplate() extraction.PromptTemplate {
	return extraction.PromptTemplate{
		System:       p.ProductExtraction.System,
		UserTemplate: p.ProductExtraction.UserTemplate,
	}
}

// renderTemplate renders a template with provided data
func renderTemplate(templateStr string, data interface{}) (string, error) {
	tmpl, err := template.New("prompt").Parse(templateStr)
	if err != nil {
		return "", fmt.Errorf("failed to parse template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute template: %w", err)
	}

	return buf.String(), nil
}
