// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package acquire

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/paper-collector/internal/testutil"
)

func TestInspectReadsInfoDictionary(t *testing.T) {
	path := testutil.WritePDF(t, filepath.Join(t.TempDir(), "short.pdf"), 3, "Sparse Attention Revisited")

	res := NewInspector(nil).Inspect(path, 30)
	require.NoError(t, res.Err)
	assert.Equal(t, 3, res.Pages)
	assert.Equal(t, "Sparse Attention Revisited", res.Metadata.Title)
	assert.Equal(t, "Test Author", res.Metadata.Author)
	assert.Equal(t, "paper-collector tests", res.Metadata.Producer)
	assert.False(t, res.Metadata.TitleSynthesized)
	assert.Positive(t, res.Metadata.FileSize)
	assert.FileExists(t, path)
}

func TestInspectEnforcesPageLimit(t *testing.T) {
	path := testutil.WritePDF(t, filepath.Join(t.TempDir(), "long.pdf"), 45, "A Survey")

	res := NewInspector(nil).Inspect(path, 30)

	var tooLong *TooLongError
	require.True(t, errors.As(res.Err, &tooLong), "err = %v", res.Err)
	assert.True(t, errors.Is(res.Err, ErrTooLong))
	assert.Equal(t, 45, tooLong.Pages)
	assert.Equal(t, 30, tooLong.MaxPages)
	assert.Equal(t, 45, res.Pages)
	assert.NoFileExists(t, path)
}

func TestInspectPageLimitBoundaryAndDisabled(t *testing.T) {
	dir := t.TempDir()

	exact := testutil.WritePDF(t, filepath.Join(dir, "exact.pdf"), 30, "Exact")
	res := NewInspector(nil).Inspect(exact, 30)
	require.NoError(t, res.Err)
	assert.FileExists(t, exact)

	long := testutil.WritePDF(t, filepath.Join(dir, "long.pdf"), 45, "Long")
	res = NewInspector(nil).Inspect(long, 0)
	require.NoError(t, res.Err)
	assert.Equal(t, 45, res.Pages)
	assert.FileExists(t, long)
}

func TestInspectMalformedDegrades(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.pdf")
	require.NoError(t, os.WriteFile(path, []byte("<html>not a pdf</html>"), 0o644))

	res := NewInspector(nil).Inspect(path, 30)
	require.NoError(t, res.Err)
	assert.Equal(t, 0, res.Pages)
	assert.Equal(t, int64(22), res.Metadata.FileSize)
	assert.FileExists(t, path)
}

func TestInspectMissingFile(t *testing.T) {
	res := NewInspector(nil).Inspect(filepath.Join(t.TempDir(), "absent.pdf"), 30)
	assert.Error(t, res.Err)
	assert.False(t, errors.Is(res.Err, ErrTooLong))
}

func TestFirstLineTitle(t *testing.T) {
	long := strings.Repeat("x", 150)
	tests := []struct {
		name, in, want string
	}{
		{"first non-empty line", "\n\n  Deep Residual Learning  \nKaiming He", "Deep Residual Learning"},
		{"truncated", long + "\nrest", strings.Repeat("x", 100)},
		{"multibyte truncation", strings.Repeat("é", 120), strings.Repeat("é", 100)},
		{"blank", " \n\t\n", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, firstLineTitle(tt.in))
		})
	}
}
