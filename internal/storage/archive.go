// Package storage archives import runs on the local filesystem: one folder per run
// holding result.json and any attached reports.
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/supplier-ingest/internal/application/port"
	"github.com/garyjia/supplier-ingest/internal/models"
)

// ResultFile is the name of the serialized ImportResult inside a run folder
const ResultFile = "result.json"

// RunArchive implements port.ResultArchive
type RunArchive struct {
	folders *FolderManager
	files   *LocalFileStorage
	now     func() time.Time
	logger  *zap.Logger
}

func NewRunArchive(baseDir string, logger *zap.Logger) *RunArchive {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RunArchive{
		folders: NewFolderManager(baseDir, logger),
		files:   NewLocalFileStorage(baseDir, logger),
		now:     time.Now,
		logger:  logger,
	}
}

// Save writes result and attachments (file name -> content) into a new run folder
// and returns the folder path.
func (a *RunArchive) Save(ctx context.Context, result *models.ImportResult, attachments map[string][]byte) (string, error) {
	if result == nil {
		return "", fmt.Errorf("nothing to archive: nil result")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	dir, err := a.folders.CreateFolder(a.folders.RunFolderName(result.RunID, result.Source, a.now()))
	if err != nil {
		return "", err
	}

	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode result: %w", err)
	}
	if err := a.files.SaveFile(filepath.Join(dir, ResultFile), data); err != nil {
		return "", err
	}

	for name, content := range attachments {
		if name != filepath.Base(name) || name == ResultFile {
			return "", fmt.Errorf("invalid attachment name %q", name)
		}
		if err := a.files.SaveFile(filepath.Join(dir, name), content); err != nil {
			return "", err
		}
	}

	a.logger.Info("Run archived",
		zap.String("run_id", result.RunID),
		zap.String("dir", dir),
		zap.Int("attachments", len(attachments)))
	return dir, nil
}

// Load reads the result archived in a run folder
func (a *RunArchive) Load(folder string) (*models.ImportResult, error) {
	data, err := a.files.ReadFile(filepath.Join(a.folders.FolderPath(folder), ResultFile))
	if err != nil {
		return nil, err
	}
	var result models.ImportResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", ResultFile, err)
	}
	return &result, nil
}

// Runs lists archived run folders, oldest first
func (a *RunArchive) Runs() ([]string, error) {
	return a.folders.ListFolders()
}

var _ port.ResultArchive = (*RunArchive)(nil)
