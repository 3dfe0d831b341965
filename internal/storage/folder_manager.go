package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
)

var unsafeFolderChars = regexp.MustCompile(`[^a-zA-Z0-9\-_]`)

// FolderManager manages one folder per import run
type FolderManager struct {
	baseDir string
	logger  *zap.Logger
}

// NewFolderManager creates a new FolderManager
func NewFolderManager(baseDir string, logger *zap.Logger) *FolderManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FolderManager{
		baseDir: baseDir,
		logger:  logger,
	}
}

// RunFolderName names a run folder so a plain listing sorts by start time:
// 20240315-101500_tarifa-almce_3f2a9c1e
func (m *FolderManager) RunFolderName(runID, source string, at time.Time) string {
	parts := []string{at.UTC().Format("20060102-150405")}

	stem := strings.TrimSuffix(filepath.Base(source), filepath.Ext(source))
	stem = strings.ReplaceAll(strings.ToLower(stem), " ", "-")
	if stem = m.SanitizeFolderName(stem); stem != "" {
		parts = append(parts, stem)
	}

	id := m.SanitizeFolderName(runID)
	if len(id) > 8 {
		id = id[:8]
	}
	if id != "" {
		parts = append(parts, id)
	}
	return strings.Join(parts, "_")
}

// CreateFolder creates {baseDir}/{name} and returns its path. Existing folders are reused.
func (m *FolderManager) CreateFolder(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("cannot create folder: empty name")
	}

	// Sanitize the folder name to prevent path traversal
	safeName := m.SanitizeFolderName(name)
	if safeName == "" {
		return "", fmt.Errorf("cannot create folder: %q has no safe characters", name)
	}
	folderPath := filepath.Join(m.baseDir, safeName)

	if err := os.MkdirAll(folderPath, 0755); err != nil {
		m.logger.Error("Failed to create run folder",
			zap.String("name", name),
			zap.String("folder_path", folderPath),
			zap.Error(err))
		return "", fmt.Errorf("failed to create folder: %w", err)
	}

	m.logger.Debug("Created run folder", zap.String("folder_path", folderPath))
	return folderPath, nil
}

// FolderPath returns the path of a folder without creating it
func (m *FolderManager) FolderPath(name string) string {
	return filepath.Join(m.baseDir, m.SanitizeFolderName(name))
}

// FolderExists checks if the folder already exists
func (m *FolderManager) FolderExists(name string) bool {
	info, err := os.Stat(m.FolderPath(name))
	if err != nil {
		return false
	}
	return info.IsDir()
}

// DeleteFolder removes a folder and all contents. Missing folders are not an error.
func (m *FolderManager) DeleteFolder(name string) error {
	folderPath := m.FolderPath(name)
	if _, err := os.Stat(folderPath); os.IsNotExist(err) {
		return nil
	}

	if err := os.RemoveAll(folderPath); err != nil {
		m.logger.Error("Failed to delete run folder",
			zap.String("folder_path", folderPath),
			zap.Error(err))
		return fmt.Errorf("failed to delete folder: %w", err)
	}

	m.logger.Debug("Deleted run folder", zap.String("folder_path", folderPath))
	return nil
}

// ListFolders returns folder names in ascending order, oldest run first
func (m *FolderManager) ListFolders() ([]string, error) {
	entries, err := os.ReadDir(m.baseDir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list folders: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// SanitizeFolderName returns a filesystem-safe version of the name.
// Only alphanumerics, hyphens and underscores survive.
func (m *FolderManager) SanitizeFolderName(name string) string {
	name = strings.ReplaceAll(name, "..", "")
	name = strings.ReplaceAll(name, "/", "")
	name = strings.ReplaceAll(name, "\\", "")
	return unsafeFolderChars.ReplaceAllString(name, "")
}
