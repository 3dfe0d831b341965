package port

import (
	"context"

	"github.com/garyjia/supplier-ingest/internal/models"
)

// ResultArchive persists finished runs together with rendered reports
type ResultArchive interface {
	Save(ctx context.Context, result *models.ImportResult, attachments map[string][]byte) (string, error)
}
