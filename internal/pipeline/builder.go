package pipeline

import (
	"fmt"

	"github.com/groupwatch/group-indexer/internal/adapter"
	"github.com/groupwatch/group-indexer/internal/classifier"
	"github.com/groupwatch/group-indexer/internal/extractor"
	"github.com/groupwatch/group-indexer/internal/sanitizer"
	"github.com/groupwatch/group-indexer/internal/store"
)

// BuildOptions holds the settings of every pipeline stage
type BuildOptions struct {
	Config            Config
	SanitizerPatterns []string
	Extractor         extractor.Config
	// RulesPath is the classifier rules file; empty uses the built-in rules
	RulesPath string
}

// Build assembles the sanitizer, extractor and classifier and returns a pipeline writing through gateway
func Build(opts BuildOptions, gateway store.Gateway, fs adapter.FileSystem, yamlAdapter adapter.YAML, clock adapter.Clock) (Processor, error) {
	s, err := sanitizer.New(opts.SanitizerPatterns...)
	if err != nil {
		return nil, fmt.Errorf("failed to create sanitizer: %w", err)
	}

	e, err := extractor.New(opts.Extractor)
	if err != nil {
		return nil, fmt.Errorf("failed to create extractor: %w", err)
	}

	rules, err := classifier.NewRulesLoader(fs, yamlAdapter).Load(opts.RulesPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load classifier rules: %w", err)
	}

	return New(opts.Config, s, e, classifier.New(rules), gateway, clock), nil
}
