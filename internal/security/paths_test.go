package security

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithinDir(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	safe := filepath.Join(root, "safe")
	other := filepath.Join(root, "other")
	require.NoError(t, os.MkdirAll(safe, 0o755))
	require.NoError(t, os.MkdirAll(other, 0o755))
	require.NoError(t, os.Symlink(other, filepath.Join(safe, "link")))

	tests := []struct {
		name    string
		path    string
		wantErr bool
	}{
		{"direct child", filepath.Join(safe, "GL699.csv"), false},
		{"missing nested dirs", filepath.Join(safe, "a", "b", "out.csv"), false},
		{"dot dot escape", filepath.Join(safe, "..", "other", "out.csv"), true},
		{"sibling with shared prefix", safe + "-evil/out.csv", true},
		{"through symlink", filepath.Join(safe, "link", "out.csv"), true},
		{"the dir itself", safe, false},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := WithinDir(tt.path, safe)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrOutsideAllowedDirs)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateOutputPath(t *testing.T) {
	t.Parallel()
	a, b := t.TempDir(), t.TempDir()
	assert.NoError(t, ValidateOutputPath(filepath.Join(b, "x.csv"), a, b))
	assert.ErrorIs(t, ValidateOutputPath("/definitely/not/here.csv", a, b), ErrOutsideAllowedDirs)
	assert.NoError(t, ValidateOutputPath(filepath.Join(os.TempDir(), "lbl.csv")))
}

func TestSanitizeFilename(t *testing.T) {
	t.Parallel()
	tests := map[string]string{
		"GL699":            "GL699",
		"HD 10700 / tau":   "HD_10700_tau",
		"../../etc/passwd": "etc_passwd",
		"":                 "unknown",
		"***":              "unknown",
		"FP_FP":            "FP_FP",
	}
	for in, want := range tests {
		assert.Equal(t, want, SanitizeFilename(in), in)
	}
}

func TestExportFilename(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "GL699_lbl_3f2a9c1e.csv", ExportFilename("GL699", "3f2a9c1e-0000-4000-8000-000000000000"))
	assert.Equal(t, "HD_1_lbl_r1.csv", ExportFilename("HD 1", "r1"))
}
