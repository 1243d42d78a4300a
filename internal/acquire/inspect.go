// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package acquire

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/pdiddy/paper-collector/pkg/types"
)

// maxTitleRunes bounds a title synthesized from page text.
const maxTitleRunes = 100

// ErrTooLong reports a document over the page ceiling.
var ErrTooLong = errors.New("document too long")

// TooLongError carries the observed page count of a rejected document.
type TooLongError struct {
	Pages    int
	MaxPages int
}

func (e *TooLongError) Error() string {
	return fmt.Sprintf("document too long (%d pages, max: %d)", e.Pages, e.MaxPages)
}

func (e *TooLongError) Unwrap() error { return ErrTooLong }

// Inspection is the outcome of inspecting a downloaded file.
type Inspection struct {
	Metadata types.DocumentMetadata
	Pages    int

	// Err is a *TooLongError when the page ceiling was exceeded (the file
	// has been deleted), or a stat/remove failure.
	Err error
}

// Inspector reads PDF metadata and enforces the page ceiling.
type Inspector struct {
	Logger *slog.Logger
}

// NewInspector builds an Inspector.
func NewInspector(logger *slog.Logger) *Inspector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Inspector{Logger: logger}
}

// Inspect extracts metadata from the PDF at path. When maxPages > 0 and
// the document has more pages, the file is deleted and Err is a
// *TooLongError. Unreadable documents yield partial metadata with 0 pages
// and pass the page check.
func (in *Inspector) Inspect(path string, maxPages int) Inspection {
	info, err := os.Stat(path)
	if err != nil {
		return Inspection{Err: fmt.Errorf("inspecting %s: %w", path, err)}
	}

	meta := types.DocumentMetadata{FileSize: info.Size()}
	if err := readPDFMetadata(path, &meta); err != nil {
		in.Logger.Warn("PDF metadata unreadable", "path", path, "error", err)
	}
	res := Inspection{Metadata: meta, Pages: meta.Pages}

	if maxPages > 0 && meta.Pages > maxPages {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			in.Logger.Error("removing oversized document", "path", path, "error", err)
		}
		in.Logger.Info("document over page limit, deleted", "path", path, "pages", meta.Pages, "max_pages", maxPages)
		res.Err = &TooLongError{Pages: meta.Pages, MaxPages: maxPages}
	}
	return res
}

// readPDFMetadata fills meta from the info dictionary and page tree. The
// pdf library panics on some malformed files; panics are reported as errors.
func readPDFMetadata(path string, meta *types.DocumentMetadata) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("parsing PDF: %v", r)
		}
	}()

	f, r, err := pdf.Open(path)
	if err != nil {
		return fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	infoDict := r.Trailer().Key("Info")
	meta.Title = strings.TrimSpace(infoDict.Key("Title").Text())
	meta.Author = strings.TrimSpace(infoDict.Key("Author").Text())
	meta.Subject = strings.TrimSpace(infoDict.Key("Subject").Text())
	meta.Creator = strings.TrimSpace(infoDict.Key("Creator").Text())
	meta.Producer = strings.TrimSpace(infoDict.Key("Producer").Text())
	meta.Pages = r.NumPage()

	if meta.Title == "" && meta.Pages > 0 {
		text, textErr := r.Page(1).GetPlainText(nil)
		if textErr != nil {
			return fmt.Errorf("extract first page text: %w", textErr)
		}
		if title := firstLineTitle(text); title != "" {
			meta.Title = title
			meta.TitleSynthesized = true
		}
	}
	return nil
}

// firstLineTitle returns the first non-empty line of text, truncated to
// maxTitleRunes.
func firstLineTitle(text string) string {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if r := []rune(line); len(r) > maxTitleRunes {
			line = strings.TrimSpace(string(r[:maxTitleRunes]))
		}
		return line
	}
	return ""
}
