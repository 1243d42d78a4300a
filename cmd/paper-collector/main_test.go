// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/paper-collector/internal/secrets"
	"github.com/pdiddy/paper-collector/pkg/types"
)

// resetViper restores a clean viper with defaults and env binding.
func resetViper(t *testing.T) {
	t.Helper()
	viper.Reset()
	setDefaults(types.DefaultConfig())
	bindEnv()
	t.Cleanup(viper.Reset)
}

func TestLoadConfigDefaults(t *testing.T) {
	resetViper(t)

	c, err := loadConfig(secrets.Secrets{})
	require.NoError(t, err)

	d := types.DefaultConfig()
	assert.Equal(t, d.Acquisition.MaxPages, c.Acquisition.MaxPages)
	assert.Equal(t, d.Acquisition.MaxBytes, c.Acquisition.MaxBytes)
	assert.Equal(t, d.Acquisition.DownloadDelay, c.Acquisition.DownloadDelay)
	assert.Equal(t, d.Search.Timeout, c.Search.Timeout)
	assert.Equal(t, "papers.db", c.Store.Path)
	assert.Equal(t, ":8001", c.API.Addr)
}

func TestLoadConfigEnvOverride(t *testing.T) {
	t.Setenv("PAPER_COLLECTOR_ACQUISITION_MAX_PAGES", "50")
	t.Setenv("PAPER_COLLECTOR_ACQUISITION_DOWNLOAD_DELAY", "250ms")
	t.Setenv("PAPER_COLLECTOR_STORE_PATH", "/tmp/other.db")
	resetViper(t)

	c, err := loadConfig(secrets.Secrets{})
	require.NoError(t, err)
	assert.Equal(t, 50, c.Acquisition.MaxPages)
	assert.Equal(t, 250*time.Millisecond, c.Acquisition.DownloadDelay)
	assert.Equal(t, "/tmp/other.db", c.Store.Path)
}

func TestLoadConfigSecrets(t *testing.T) {
	resetViper(t)
	s := secrets.Secrets{secrets.NCBIAPIKey: "from-secret", secrets.NCBIEmail: "me@example.org"}

	c, err := loadConfig(s)
	require.NoError(t, err)
	assert.Equal(t, "from-secret", c.Search.NCBIAPIKey)
	assert.Equal(t, "me@example.org", c.Search.NCBIEmail)

	viper.Set("search.ncbi_api_key", "from-config")
	c, err = loadConfig(s)
	require.NoError(t, err)
	assert.Equal(t, "from-config", c.Search.NCBIAPIKey, "configured key wins over secret")
}

func TestLoadConfigInvalid(t *testing.T) {
	resetViper(t)
	viper.Set("log.level", "verbose")

	_, err := loadConfig(secrets.Secrets{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid config")
}

func TestRunGroup(t *testing.T) {
	ts := time.Date(2026, 3, 9, 7, 5, 59, 0, time.UTC)
	assert.Equal(t, "20260309_0705", runGroup(ts))
}

func TestParseID(t *testing.T) {
	id, err := parseID("42")
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)

	for _, bad := range []string{"", "abc", "0", "-3"} {
		_, err := parseID(bad)
		assert.Error(t, err, bad)
	}
}

func TestPrintPaper(t *testing.T) {
	p := types.Paper{
		ID: 7,
		Candidate: types.Candidate{
			Title:   "Sparse Attention",
			Authors: []string{"A. One", "B. Two"},
			URL:     "http://arxiv.org/abs/2401.00001v1",
			Source:  types.SourceArxiv,
		},
		SkipReason: "too-long: 45 pages",
		CreatedAt:  time.Date(2026, 1, 2, 3, 4, 0, 0, time.UTC),
	}

	var buf bytes.Buffer
	printPaper(&buf, p)
	out := buf.String()
	assert.Contains(t, out, "ID:        7")
	assert.Contains(t, out, "Authors:   A. One, B. Two")
	assert.Contains(t, out, "Skipped:   too-long: 45 pages")
	assert.NotContains(t, out, "File:")
}
