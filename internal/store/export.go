// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/paper-collector/pkg/types"
)

// ExportYAML writes every stored paper to path as a YAML sequence.
func (s *Store) ExportYAML(ctx context.Context, path string) (int, error) {
	papers, err := s.exportPapers(ctx)
	if err != nil {
		return 0, err
	}
	data, err := yaml.Marshal(papers)
	if err != nil {
		return 0, fmt.Errorf("marshaling YAML: %w", err)
	}
	return len(papers), writeExport(path, data)
}

// ExportJSON writes every stored paper to path as an indented JSON array.
func (s *Store) ExportJSON(ctx context.Context, path string) (int, error) {
	papers, err := s.exportPapers(ctx)
	if err != nil {
		return 0, err
	}
	data, err := json.MarshalIndent(papers, "", "  ")
	if err != nil {
		return 0, fmt.Errorf("marshaling JSON: %w", err)
	}
	return len(papers), writeExport(path, append(data, '\n'))
}

func (s *Store) exportPapers(ctx context.Context) ([]types.Paper, error) {
	papers, err := s.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("querying for export: %w", err)
	}
	if papers == nil {
		papers = []types.Paper{}
	}
	return papers, nil
}

func writeExport(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating export directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
