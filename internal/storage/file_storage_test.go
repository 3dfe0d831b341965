package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLocalFileStorage_SaveFile(t *testing.T) {
	tempDir := t.TempDir()
	fs := NewLocalFileStorage(tempDir, zap.NewNop())

	t.Run("saves file successfully", func(t *testing.T) {
		fullPath := filepath.Join(tempDir, "20240315-101500_tarifa", "result.json")
		content := []byte(`{"run_id": "r1"}`)

		require.NoError(t, fs.SaveFile(fullPath, content))
		assert.FileExists(t, fullPath)

		saved, err := fs.ReadFile(fullPath)
		require.NoError(t, err)
		assert.Equal(t, content, saved)
	})

	t.Run("creates parent directories", func(t *testing.T) {
		fullPath := filepath.Join(tempDir, "deep", "nested", "report.xlsx")
		require.NoError(t, fs.SaveFile(fullPath, []byte("xlsx")))
		assert.FileExists(t, fullPath)
	})

	t.Run("overwrites existing file and leaves no temp files", func(t *testing.T) {
		fullPath := filepath.Join(tempDir, "overwrite", "result.json")
		require.NoError(t, fs.SaveFile(fullPath, []byte("original")))
		require.NoError(t, fs.SaveFile(fullPath, []byte("updated")))

		content, err := os.ReadFile(fullPath)
		require.NoError(t, err)
		assert.Equal(t, []byte("updated"), content)

		entries, err := os.ReadDir(filepath.Dir(fullPath))
		require.NoError(t, err)
		assert.Len(t, entries, 1)
	})

	t.Run("saves empty file", func(t *testing.T) {
		fullPath := filepath.Join(tempDir, "empty.txt")
		require.NoError(t, fs.SaveFile(fullPath, []byte{}))

		info, err := os.Stat(fullPath)
		require.NoError(t, err)
		assert.Equal(t, int64(0), info.Size())
	})

	t.Run("refuses paths outside base", func(t *testing.T) {
		err := fs.SaveFile(filepath.Join(tempDir, "..", "escape.json"), []byte("x"))
		assert.Error(t, err)
		_, err = fs.ReadFile("/etc/passwd")
		assert.Error(t, err)
	})
}

func TestLocalFileStorage_ValidatePath(t *testing.T) {
	tempDir := t.TempDir()
	fs := NewLocalFileStorage(tempDir, nil)

	tests := []struct {
		name    string
		path    string
		wantErr bool
	}{
		{"valid path within base", filepath.Join(tempDir, "run", "result.json"), false},
		{"base itself", tempDir, false},
		{"outside base", "/etc/passwd", true},
		{"traversal", filepath.Join(tempDir, "..", "..", "etc", "passwd"), true},
		{"similar prefix", tempDir + "_malicious/file.txt", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := fs.ValidatePath(tt.path)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "escapes base directory")
				return
			}
			assert.NoError(t, err)
		})
	}
}
