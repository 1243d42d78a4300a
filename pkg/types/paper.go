// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types defines shared data structures for the paper-collector
// acquisition pipeline: candidates produced by source adapters, persisted
// papers, document metadata, outcome kinds, and stage configuration.
package types

import (
	"fmt"
	"time"
)

// Source identifies the remote service a candidate came from.
type Source string

const (
	SourceArxiv  Source = "arxiv"
	SourcePubMed Source = "pubmed"
)

// ParseSource converts a string into a Source.
func ParseSource(s string) (Source, error) {
	switch Source(s) {
	case SourceArxiv, SourcePubMed:
		return Source(s), nil
	default:
		return "", fmt.Errorf("unknown source %q: use arxiv or pubmed", s)
	}
}

// Candidate is a paper record produced by a source adapter that has not
// been persisted yet. URL is the canonical reference URL and the identity
// key of the paper across the whole corpus.
type Candidate struct {
	// Title is the paper title.
	Title string `json:"title" yaml:"title"`

	// Authors lists the paper authors in byline order.
	Authors []string `json:"authors" yaml:"authors"`

	// Abstract is the paper abstract, or a source-specific placeholder.
	Abstract string `json:"abstract" yaml:"abstract"`

	// URL is the canonical reference URL (arXiv entry id, PubMed record URL).
	URL string `json:"url" yaml:"url"`

	// DocumentURL points at the document or a redirect toward it
	// (e.g. https://doi.org/<doi>). Empty when unknown.
	DocumentURL string `json:"pdf_url,omitempty" yaml:"pdf_url,omitempty"`

	// DOI is the digital object identifier when the source supplies one.
	DOI string `json:"doi,omitempty" yaml:"doi,omitempty"`

	// PublishedDate is an ISO date (YYYY-MM-DD). The day may be defaulted.
	PublishedDate string `json:"published_date,omitempty" yaml:"published_date,omitempty"`

	// Keywords lists source keywords. arXiv never supplies any.
	Keywords []string `json:"keywords" yaml:"keywords"`

	// Source identifies the adapter that produced the candidate.
	Source Source `json:"source" yaml:"source"`
}

// Paper is a persisted Candidate.
type Paper struct {
	// ID is assigned by the store on first insert.
	ID int64 `json:"id" yaml:"id"`

	Candidate `yaml:",inline"`

	// FilePath is the local document path, set after a successful download.
	FilePath string `json:"file_path,omitempty" yaml:"file_path,omitempty"`

	// SkipReason records a policy skip (e.g. page limit) for the document.
	SkipReason string `json:"skip_reason,omitempty" yaml:"skip_reason,omitempty"`

	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt time.Time `json:"updated_at" yaml:"updated_at"`
}

// HasDocument reports whether a local file has been attached to the paper.
func (p Paper) HasDocument() bool {
	return p.FilePath != ""
}

// DocumentMetadata holds structural metadata read from a downloaded PDF.
type DocumentMetadata struct {
	Title    string `json:"title,omitempty" yaml:"title,omitempty"`
	Author   string `json:"author,omitempty" yaml:"author,omitempty"`
	Subject  string `json:"subject,omitempty" yaml:"subject,omitempty"`
	Creator  string `json:"creator,omitempty" yaml:"creator,omitempty"`
	Producer string `json:"producer,omitempty" yaml:"producer,omitempty"`

	// Pages is the page count, 0 when it could not be read.
	Pages int `json:"pages" yaml:"pages"`

	// FileSize is the file size in bytes.
	FileSize int64 `json:"file_size" yaml:"file_size"`

	// TitleSynthesized is true when Title came from the first page text
	// rather than the document info dictionary.
	TitleSynthesized bool `json:"title_synthesized,omitempty" yaml:"title_synthesized,omitempty"`
}

// OutcomeKind classifies the result of acquiring a paper's document.
type OutcomeKind string

const (
	OutcomeDownloaded     OutcomeKind = "downloaded"
	OutcomeAlreadyPresent OutcomeKind = "already-present"
	OutcomeNoDocument     OutcomeKind = "no-document"
	OutcomeTooLong        OutcomeKind = "too-long"
	OutcomeTooLarge       OutcomeKind = "too-large"
	OutcomeFailed         OutcomeKind = "failed"
)

// IsSuccess reports whether the kind leaves a validated file on disk.
func (k OutcomeKind) IsSuccess() bool {
	return k == OutcomeDownloaded || k == OutcomeAlreadyPresent
}

// IsPolicySkip reports whether the kind stems from a configured limit
// rather than a transient fault.
func (k OutcomeKind) IsPolicySkip() bool {
	return k == OutcomeTooLong || k == OutcomeTooLarge
}
