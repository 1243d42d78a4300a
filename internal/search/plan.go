// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package search

import (
	"fmt"
	"os"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/paper-collector/pkg/types"
)

// Selector chooses which sources a query runs against.
type Selector string

const (
	SelectArxiv  Selector = "arxiv"
	SelectPubMed Selector = "pubmed"
	SelectAll    Selector = "all"
)

// ParseSelector converts a string into a Selector. A single-source
// selector is the source name itself.
func ParseSelector(s string) (Selector, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	if Selector(v) == SelectAll {
		return SelectAll, nil
	}
	src, err := types.ParseSource(v)
	if err != nil {
		return "", fmt.Errorf("unknown source %q: use arxiv, pubmed, or all", s)
	}
	return Selector(src), nil
}

// Sources expands the selector into the sources it covers, in query order.
func (s Selector) Sources() []types.Source {
	switch s {
	case SelectArxiv:
		return []types.Source{types.SourceArxiv}
	case SelectPubMed:
		return []types.Source{types.SourcePubMed}
	case SelectAll:
		return []types.Source{types.SourceArxiv, types.SourcePubMed}
	default:
		return nil
	}
}

// Defaults applied to plan entries that omit them.
const (
	DefaultPlanResults  = 5
	DefaultPlanSelector = SelectArxiv
)

// PlanEntry is one query of a collection run.
type PlanEntry struct {
	Query      string   `yaml:"query" json:"query"`
	MaxResults int      `yaml:"max_results,omitempty" json:"max_results"`
	Source     Selector `yaml:"source,omitempty" json:"source"`
}

// Validate checks a plan entry after defaults are applied.
func (e PlanEntry) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.Query, validation.Required),
		validation.Field(&e.MaxResults, validation.Required, validation.Min(1), validation.Max(100)),
		validation.Field(&e.Source, validation.Required, validation.In(SelectArxiv, SelectPubMed, SelectAll)),
	)
}

// Plan is the on-disk list of queries for a collection run.
type Plan struct {
	Queries []PlanEntry `yaml:"queries"`
}

// applyDefaults fills omitted fields of every entry.
func (p *Plan) applyDefaults() {
	for i := range p.Queries {
		e := &p.Queries[i]
		e.Query = strings.TrimSpace(e.Query)
		if e.MaxResults == 0 {
			e.MaxResults = DefaultPlanResults
		}
		if e.Source == "" {
			e.Source = DefaultPlanSelector
		}
		e.Source = Selector(strings.ToLower(string(e.Source)))
	}
}

// Validate checks every entry and reports the first invalid one.
func (p Plan) Validate() error {
	if len(p.Queries) == 0 {
		return fmt.Errorf("plan has no queries")
	}
	for i, e := range p.Queries {
		if err := e.Validate(); err != nil {
			return fmt.Errorf("query %d (%q): %w", i+1, e.Query, err)
		}
	}
	return nil
}

// Keywords returns the query strings of the plan.
func (p Plan) Keywords() []string {
	out := make([]string, len(p.Queries))
	for i, e := range p.Queries {
		out[i] = e.Query
	}
	return out
}

// LoadPlan reads and validates a plan file.
func LoadPlan(path string) (Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Plan{}, fmt.Errorf("reading plan file: %w", err)
	}
	return ParsePlan(data)
}

// ParsePlan decodes and validates plan YAML.
func ParsePlan(data []byte) (Plan, error) {
	var p Plan
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Plan{}, fmt.Errorf("parsing plan file: %w", err)
	}
	p.applyDefaults()
	if err := p.Validate(); err != nil {
		return Plan{}, err
	}
	return p, nil
}

// WritePlan saves a plan as YAML.
func WritePlan(path string, p Plan) error {
	data, err := yaml.Marshal(&p)
	if err != nil {
		return fmt.Errorf("marshaling plan: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// DefaultPlan is used when no plan file is configured.
func DefaultPlan() Plan {
	return Plan{Queries: []PlanEntry{
		{Query: "machine learning", MaxResults: 10, Source: SelectArxiv},
		{Query: "large language models", MaxResults: 8, Source: SelectArxiv},
		{Query: "computer vision", MaxResults: 8, Source: SelectArxiv},
		{Query: "artificial intelligence", MaxResults: 8, Source: SelectAll},
		{Query: "cancer research", MaxResults: 12, Source: SelectAll},
		{Query: "drug discovery", MaxResults: 10, Source: SelectAll},
		{Query: "genomics", MaxResults: 10, Source: SelectAll},
		{Query: "neuroscience", MaxResults: 10, Source: SelectAll},
		{Query: "epidemiology", MaxResults: 8, Source: SelectPubMed},
		{Query: "marine biology", MaxResults: 5, Source: SelectAll},
		{Query: "climate change", MaxResults: 8, Source: SelectAll},
		{Query: "quantum computing", MaxResults: 6, Source: SelectArxiv},
		{Query: "materials science", MaxResults: 5, Source: SelectArxiv},
		{Query: "cybersecurity", MaxResults: 5, Source: SelectArxiv},
	}}
}
