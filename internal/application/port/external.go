package port

import (
	"context"
	"time"
)

// Message roles understood by LLM backends
const (
	RoleSystem = "system"
	RoleUser   = "user"
)

// Message is one turn of a chat completion prompt
type Message struct {
	Role    string
	Content string
}

// CompletionRequest asks the model for a single answer.
// When JSONMode is set the returned content must parse as a JSON object.
type CompletionRequest struct {
	Messages []Message
	JSONMode bool
	Timeout  time.Duration
}

// Completion is the model's answer
type Completion struct {
	Content string
	Model   string
}

// LLMClient defines the language model transport
type LLMClient interface {
	Complete(ctx context.Context, req CompletionRequest) (*Completion, error)
}

// OCRResult is the text recognized in a document
type OCRResult struct {
	FullText string            `json:"full_text"`
	Pages    []string          `json:"pages,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// OCRProvider defines document text recognition.
// Blank documents yield an empty FullText, not an error.
type OCRProvider interface {
	OCR(ctx context.Context, document []byte, contentType string) (*OCRResult, error)
}
