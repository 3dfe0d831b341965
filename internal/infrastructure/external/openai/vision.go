package openai

import (
	"context"
	"encoding/base64"
	"fmt"
	"mime"
	"strconv"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/garyjia/supplier-ingest/internal/application/port"
	"github.com/garyjia/supplier-ingest/internal/models"
)

// PageRenderer rasterizes PDF pages to PNG
type PageRenderer interface {
	RenderPages(ctx context.Context, document []byte, maxPages int) ([][]byte, error)
}

// VisionOCR implements port.OCRProvider by transcribing page images with a vision model.
// PDFs are rasterized page by page through the renderer.
type VisionOCR struct {
	api      chatCompleter
	model    string
	prompts  *PromptConfig
	renderer PageRenderer
	maxPages int
	limiter  *rate.Limiter
	logger   *zap.Logger
}

// NewVisionOCR creates a vision OCR provider. renderer may be nil, in which case PDFs are rejected.
func NewVisionOCR(cfg Config, prompts *PromptConfig, renderer PageRenderer, maxPages int, logger *zap.Logger) (*VisionOCR, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai api key is required")
	}
	return newVisionOCR(newAPI(cfg), cfg, prompts, renderer, maxPages, logger), nil
}

func newVisionOCR(api chatCompleter, cfg Config, prompts *PromptConfig, renderer PageRenderer, maxPages int, logger *zap.Logger) *VisionOCR {
	if logger == nil {
		logger = zap.NewNop()
	}
	if prompts == nil {
		prompts = DefaultPrompts()
	}
	model := cfg.VisionModel
	if model == "" {
		model = cfg.Model
	}
	return &VisionOCR{
		api:      api,
		model:    model,
		prompts:  prompts,
		renderer: renderer,
		maxPages: maxPages,
		limiter:  newLimiter(cfg.RequestsPerMinute),
		logger:   logger,
	}
}

// OCR transcribes an image or PDF. An empty document yields an empty result.
func (v *VisionOCR) OCR(ctx context.Context, document []byte, contentType string) (*port.OCRResult, error) {
	if len(document) == 0 {
		return &port.OCRResult{FullText: ""}, nil
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid content type %q: %w", models.ErrAdapter, contentType, err)
	}

	var images [][]byte
	imageType := mediaType
	switch {
	case strings.HasPrefix(mediaType, "image/"):
		images = [][]byte{document}
	case mediaType == "application/pdf":
		if v.renderer == nil {
			return nil, fmt.Errorf("%w: no PDF renderer configured for vision OCR", models.ErrAdapter)
		}
		if images, err = v.renderer.RenderPages(ctx, document, v.maxPages); err != nil {
			return nil, err
		}
		imageType = "image/png"
	default:
		return nil, fmt.Errorf("%w: vision OCR cannot read %s", models.ErrAdapter, mediaType)
	}

	v.logger.Info("Transcribing document with Vision API",
		zap.String("content_type", mediaType),
		zap.Int("pages", len(images)))

	pages := make([]string, 0, len(images))
	for i, img := range images {
		text, err := v.transcribe(ctx, img, imageType, i+1, len(images))
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", i+1, err)
		}
		pages = append(pages, text)
	}

	return &port.OCRResult{
		FullText: strings.Join(pages, "\n\n"),
		Pages:    pages,
		Metadata: map[string]string{
			"provider": "openai_vision",
			"model":    v.model,
			"pages":    strconv.Itoa(len(pages)),
		},
	}, nil
}

func (v *VisionOCR) transcribe(ctx context.Context, image []byte, mimeType string, page, pages int) (string, error) {
	prompt, err := renderTemplate(v.prompts.InvoiceOCR.UserTemplate, struct{ Page, Pages int }{page, pages})
	if err != nil {
		return "", err
	}
	if err := v.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter: %w", contextErr(ctx, err))
	}

	started := time.Now()
	resp, err := v.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       v.model,
		MaxTokens:   v.prompts.InvoiceOCR.MaxTokens,
		Temperature: v.prompts.InvoiceOCR.Temperature,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: v.prompts.InvoiceOCR.System,
			},
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{
						Type: openai.ChatMessagePartTypeText,
						Text: prompt,
					},
					{
						Type: openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{
							URL:    fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(image)),
							Detail: openai.ImageURLDetailHigh,
						},
					},
				},
			},
		},
	})
	if err != nil {
		v.logger.Error("Vision API call failed", zap.Int("page", page), zap.Error(err))
		return "", fmt.Errorf("%w: vision API call failed: %w", models.ErrAdapter, contextErr(ctx, err))
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: no response from Vision API", models.ErrAdapter)
	}

	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	v.logger.Debug("Page transcribed",
		zap.Int("page", page),
		zap.Int("chars", len(text)),
		zap.Duration("elapsed", time.Since(started)))
	return text, nil
}
