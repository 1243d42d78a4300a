// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package acquire

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"

	"github.com/pdiddy/paper-collector/internal/httputil"
	"github.com/pdiddy/paper-collector/pkg/types"
)

// ErrTooLarge reports a download that exceeds the byte ceiling.
var ErrTooLarge = errors.New("document too large")

// DownloadConfig is the immutable configuration of a Downloader.
type DownloadConfig struct {
	// Dir is the base directory documents are written to.
	Dir string

	// Group is an optional subdirectory of Dir (e.g. a run timestamp).
	Group string

	// MaxBytes is the size ceiling; 0 uses types.DefaultMaxBytes.
	MaxBytes int64

	UserAgent  string
	MaxRetries int
}

// DownloadResult is the outcome of one Fetch.
type DownloadResult struct {
	Path string

	// Bytes is the number of bytes written; 0 when the file already existed.
	Bytes int64

	// AlreadyExisted is true when the destination was present and no
	// request was made.
	AlreadyExisted bool

	Err error
}

// OK reports whether the destination holds the document.
func (r DownloadResult) OK() bool { return r.Err == nil }

// Downloader retrieves documents under a size ceiling and writes each
// destination at most once.
type Downloader struct {
	client *http.Client
	cfg    DownloadConfig
	logger *slog.Logger
	now    func() time.Time
}

// NewDownloader builds a Downloader. cfg is copied and never modified.
func NewDownloader(client *http.Client, cfg DownloadConfig, logger *slog.Logger) *Downloader {
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = types.DefaultMaxBytes
	}
	cfg.Group = sanitizeGroup(cfg.Group)
	if logger == nil {
		logger = slog.Default()
	}
	return &Downloader{client: client, cfg: cfg, logger: logger, now: time.Now}
}

// Config returns the downloader's configuration.
func (d *Downloader) Config() DownloadConfig { return d.cfg }

// WithGroup returns a Downloader writing into group under the same base
// directory. The receiver is unchanged.
func (d *Downloader) WithGroup(group string) *Downloader {
	cp := *d
	cp.cfg.Group = sanitizeGroup(group)
	return &cp
}

// FileName derives the local file name for a document URL. A URL path
// ending in .pdf yields its sanitized base name; any other URL yields a
// synthesized unique name.
func (d *Downloader) FileName(documentURL string) string {
	if u, err := url.Parse(documentURL); err == nil {
		base := path.Base(u.Path)
		if strings.HasSuffix(strings.ToLower(base), ".pdf") {
			if name := sanitizeFileName(base); name != "" && !strings.HasPrefix(name, ".") {
				return name
			}
		}
	}
	return fmt.Sprintf("paper_%s_%s.pdf", d.now().Format("20060102_150405"), uuid.NewString()[:8])
}

// Destination returns base/[group/]FileName(documentURL).
func (d *Downloader) Destination(documentURL string) string {
	return filepath.Join(d.cfg.Dir, d.cfg.Group, d.FileName(documentURL))
}

// Fetch downloads documentURL to dest. An existing dest succeeds without
// any request. The body is streamed to a temporary file in dest's
// directory and renamed on success, so dest never holds a partial file.
func (d *Downloader) Fetch(ctx context.Context, documentURL, dest string) DownloadResult {
	res := DownloadResult{Path: dest}

	if info, err := os.Stat(dest); err == nil && info.Mode().IsRegular() {
		res.AlreadyExisted = true
		d.logger.Debug("document already present", "path", dest)
		return res
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		res.Err = fmt.Errorf("creating directory %s: %w", filepath.Dir(dest), err)
		return res
	}

	resp, err := httputil.Get(ctx, d.client, documentURL, d.cfg.UserAgent, "application/pdf", d.cfg.MaxRetries)
	if err != nil {
		res.Err = fmt.Errorf("downloading %s: %w", documentURL, err)
		return res
	}
	defer resp.Body.Close()

	if resp.ContentLength > d.cfg.MaxBytes {
		res.Err = fmt.Errorf("%w: %d bytes declared, limit %d", ErrTooLarge, resp.ContentLength, d.cfg.MaxBytes)
		return res
	}

	tmpFile, err := os.CreateTemp(filepath.Dir(dest), ".acquire-*.tmp")
	if err != nil {
		res.Err = fmt.Errorf("creating temp file: %w", err)
		return res
	}
	tmpPath := tmpFile.Name()

	n, copyErr := io.Copy(tmpFile, io.LimitReader(resp.Body, d.cfg.MaxBytes+1))
	closeErr := tmpFile.Close()
	switch {
	case copyErr != nil:
		res.Err = fmt.Errorf("writing download: %w", copyErr)
	case n > d.cfg.MaxBytes:
		res.Err = fmt.Errorf("%w: more than %d bytes received", ErrTooLarge, d.cfg.MaxBytes)
	case closeErr != nil:
		res.Err = fmt.Errorf("closing temp file: %w", closeErr)
	}
	if res.Err != nil {
		os.Remove(tmpPath)
		return res
	}

	if err := os.Rename(tmpPath, dest); err != nil {
		os.Remove(tmpPath)
		res.Err = fmt.Errorf("renaming temp file: %w", err)
		return res
	}

	res.Bytes = n
	d.logger.Info("downloaded document", "url", documentURL, "path", dest, "bytes", n)
	return res
}

// sanitizeFileName keeps letters, digits, space, hyphen, underscore and
// period, then trims trailing spaces.
func sanitizeFileName(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '_' || r == '.':
			b.WriteRune(r)
		}
	}
	return strings.TrimRight(b.String(), " ")
}

// sanitizeGroup reduces a group key to a single safe path element.
func sanitizeGroup(group string) string {
	return strings.Trim(sanitizeFileName(group), " .")
}
