package ocr

import (
	"context"
	"fmt"
	"mime"
	"strings"

	"go.uber.org/zap"

	"github.com/garyjia/supplier-ingest/internal/application/port"
	"github.com/garyjia/supplier-ingest/internal/models"
	"github.com/garyjia/supplier-ingest/pkg/utils"
)

// PlainText treats the document as already recognized text, e.g. a saved OCR transcript
type PlainText struct{}

func (PlainText) OCR(_ context.Context, document []byte, _ string) (*port.OCRResult, error) {
	text := strings.TrimSpace(utils.SanitizeString(string(document)))
	return &port.OCRResult{FullText: text, Pages: []string{text}, Metadata: map[string]string{"provider": "plain_text"}}, nil
}

type route struct {
	pattern   string
	providers []port.OCRProvider
}

// Router dispatches documents to providers by media type. Patterns are exact types
// ("application/pdf") or families ("image/*"). When several providers serve a type they
// are tried in order until one returns non-blank text; the PDF text layer first and vision
// OCR for scans is the usual chain.
type Router struct {
	routes []route
	logger *zap.Logger
}

func NewRouter(logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{logger: logger}
}

// Handle appends providers for pattern. Later calls for the same pattern extend its chain.
func (r *Router) Handle(pattern string, providers ...port.OCRProvider) *Router {
	pattern = strings.ToLower(strings.TrimSpace(pattern))
	for i := range r.routes {
		if r.routes[i].pattern == pattern {
			r.routes[i].providers = append(r.routes[i].providers, providers...)
			return r
		}
	}
	r.routes = append(r.routes, route{pattern: pattern, providers: providers})
	return r
}

func (r *Router) lookup(mediaType string) []port.OCRProvider {
	for _, rt := range r.routes {
		if rt.pattern == mediaType {
			return rt.providers
		}
	}
	for _, rt := range r.routes {
		if family, ok := strings.CutSuffix(rt.pattern, "/*"); ok && strings.HasPrefix(mediaType, family+"/") {
			return rt.providers
		}
	}
	return nil
}

// OCR implements port.OCRProvider
func (r *Router) OCR(ctx context.Context, document []byte, contentType string) (*port.OCRResult, error) {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid content type %q: %w", models.ErrAdapter, contentType, err)
	}
	providers := r.lookup(mediaType)
	if len(providers) == 0 {
		return nil, fmt.Errorf("%w: no OCR provider for %s", models.ErrAdapter, mediaType)
	}
	if len(document) == 0 {
		return &port.OCRResult{FullText: ""}, nil
	}

	var last *port.OCRResult
	for i, p := range providers {
		res, err := p.OCR(ctx, document, mediaType)
		if err != nil {
			// a later provider may still read the document
			if i < len(providers)-1 && ctx.Err() == nil {
				r.logger.Warn("OCR provider failed, trying next", zap.Int("provider", i), zap.Error(err))
				continue
			}
			return nil, err
		}
		if strings.TrimSpace(res.FullText) != "" {
			return res, nil
		}
		last = res
		r.logger.Debug("OCR provider returned blank text", zap.Int("provider", i), zap.String("content_type", mediaType))
	}
	if last == nil {
		last = &port.OCRResult{FullText: ""}
	}
	return last, nil
}
