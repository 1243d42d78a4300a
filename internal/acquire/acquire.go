// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package acquire turns paper references into validated local documents:
// it resolves reference URLs to document URLs, downloads them under a size
// ceiling, and inspects the result against a page ceiling.
package acquire

import (
	"context"
	"errors"
	"log/slog"

	"github.com/pdiddy/paper-collector/pkg/types"
)

// Outcome is the result of acquiring one paper's document.
type Outcome struct {
	Kind        types.OutcomeKind
	DocumentURL string
	Strategy    Strategy
	FilePath    string
	Metadata    *types.DocumentMetadata

	// Pages is the observed page count (also set for too-long outcomes).
	Pages int
	Err   error
}

// Acquirer composes a Resolver, a Downloader and an Inspector.
type Acquirer struct {
	Resolver   *Resolver
	Downloader *Downloader
	Inspector  *Inspector

	// MaxPages is the page ceiling; 0 or less disables it.
	MaxPages int

	Logger *slog.Logger
}

// NewAcquirer builds an Acquirer from the acquisition configuration.
func NewAcquirer(r *Resolver, d *Downloader, in *Inspector, maxPages int, logger *slog.Logger) *Acquirer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Acquirer{Resolver: r, Downloader: d, Inspector: in, MaxPages: maxPages, Logger: logger}
}

// References lists the URLs tried for a candidate, document URL first,
// then the canonical reference URL.
func References(c types.Candidate) []string {
	var refs []string
	for _, u := range []string{c.DocumentURL, c.URL} {
		if u != "" && (len(refs) == 0 || refs[0] != u) {
			refs = append(refs, u)
		}
	}
	return refs
}

// Resolve tries each reference in order and returns the first resolution
// that found a document URL, or the last failed one.
func (a *Acquirer) Resolve(ctx context.Context, refs []string) Resolution {
	last := Resolution{Err: ErrNoDocument}
	for _, ref := range refs {
		if ctx.Err() != nil {
			last.Err = ctx.Err()
			break
		}
		res := a.Resolver.Resolve(ctx, ref)
		if res.Found() {
			return res
		}
		last = res
	}
	return last
}

// Acquire resolves, downloads and inspects the document for c, writing it
// into group under the downloader's base directory.
func (a *Acquirer) Acquire(ctx context.Context, c types.Candidate, group string) Outcome {
	dl := a.Downloader.WithGroup(group)
	return a.acquire(ctx, c, dl, dl.Destination)
}

// AcquireTo is Acquire with a fixed destination path, used to restore a
// document whose recorded file has gone missing.
func (a *Acquirer) AcquireTo(ctx context.Context, c types.Candidate, dest string) Outcome {
	return a.acquire(ctx, c, a.Downloader, func(string) string { return dest })
}

func (a *Acquirer) acquire(ctx context.Context, c types.Candidate, dl *Downloader, destination func(documentURL string) string) Outcome {
	res := a.Resolve(ctx, References(c))
	if !res.Found() {
		return Outcome{Kind: types.OutcomeNoDocument, Strategy: res.Strategy, Err: res.Err}
	}

	out := Outcome{DocumentURL: res.DocumentURL, Strategy: res.Strategy}
	dest := destination(res.DocumentURL)

	fetched := dl.Fetch(ctx, res.DocumentURL, dest)
	if !fetched.OK() {
		out.Kind = types.OutcomeFailed
		if errors.Is(fetched.Err, ErrTooLarge) {
			out.Kind = types.OutcomeTooLarge
		}
		out.Err = fetched.Err
		return out
	}

	insp := a.Inspector.Inspect(dest, a.MaxPages)
	out.Pages = insp.Pages
	if insp.Err != nil {
		out.Kind = types.OutcomeFailed
		if errors.Is(insp.Err, ErrTooLong) {
			out.Kind = types.OutcomeTooLong
		}
		out.Err = insp.Err
		return out
	}

	meta := insp.Metadata
	out.Metadata = &meta
	out.FilePath = dest
	out.Kind = types.OutcomeDownloaded
	if fetched.AlreadyExisted {
		out.Kind = types.OutcomeAlreadyPresent
	}
	return out
}
