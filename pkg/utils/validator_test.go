package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeVAT(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"dashed", "B-14891592", "B14891592"},
		{"lowercase with dots", "b.14 891 592", "B14891592"},
		{"country prefix", "ES-B14891592", "ESB14891592"},
		{"empty", "  ", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeVAT(tt.in))
		})
	}
}

func TestValidateVAT(t *testing.T) {
	assert.NoError(t, ValidateVAT("B-14891592"))
	assert.NoError(t, ValidateVAT("12345678Z"))
	assert.NoError(t, ValidateVAT("ESB14891592"))
	assert.Error(t, ValidateVAT(""))
	assert.Error(t, ValidateVAT("B-123"))
}

func TestValidateEmail(t *testing.T) {
	assert.NoError(t, ValidateEmail("compras@almce.es"))
	assert.Error(t, ValidateEmail("not-an-email"))
}

func TestNormalizeSpaceAndFoldKey(t *testing.T) {
	assert.Equal(t, "ALMCE S.L.", NormalizeSpace("  ALMCE \t S.L.\n"))
	assert.Equal(t, "almce s.l.", FoldKey("  ALMCE   S.L. "))
	assert.Equal(t, "", FoldKey("   "))
}

func TestSanitizeString(t *testing.T) {
	assert.Equal(t, "line1\nline2", SanitizeString("line1\x00\nline2\x07"))
}
