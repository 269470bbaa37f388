package classifier

import (
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"github.com/groupwatch/group-indexer/internal/adapter"
	"github.com/groupwatch/group-indexer/internal/domain"
)

//go:embed default_rules.yaml
var defaultRulesYAML []byte

// GroupTypeRules holds the keyword sets for group type categories
type GroupTypeRules struct {
	// Priority breaks ties between categories with equal match counts, highest first
	Priority []domain.GroupType            `yaml:"priority"`
	Keywords map[domain.GroupType][]string `yaml:"keywords"`
}

// WorldviewRules holds the keyword sets for worldview categories
type WorldviewRules struct {
	Priority []domain.Worldview            `yaml:"priority"`
	Keywords map[domain.Worldview][]string `yaml:"keywords"`
}

// FlagRules holds the trigger keywords for boolean flags
type FlagRules struct {
	SexualContent    []string `yaml:"sexual_content"`
	NoAuditNoSetting []string `yaml:"no_audit_no_setting"`
}

// Rules is the immutable keyword configuration used by the classifier
type Rules struct {
	GroupTypes GroupTypeRules `yaml:"group_types"`
	Worldviews WorldviewRules `yaml:"worldviews"`
	Flags      FlagRules      `yaml:"flags"`
	// KeywordTags maps a tag to the keywords that imply it
	KeywordTags map[string][]string `yaml:"keyword_tags"`
}

var groupTypeCategories = []domain.GroupType{
	domain.GroupTypeRolePlay,
	domain.GroupTypeExchange,
	domain.GroupTypeSpam,
}

var worldviewCategories = []domain.Worldview{
	domain.WorldviewModernOriginal,
	domain.WorldviewAncientOriginal,
	domain.WorldviewModernSupernatural,
	domain.WorldviewAncientSupernatural,
	domain.WorldviewWesternFantasy,
	domain.WorldviewSciFi,
	domain.WorldviewFandom,
}

// RulesLoader loads classifier rules from a YAML file
type RulesLoader struct {
	fs   adapter.FileSystem
	yaml adapter.YAML
}

// NewRulesLoader creates a new rules loader
func NewRulesLoader(fs adapter.FileSystem, yamlAdapter adapter.YAML) *RulesLoader {
	return &RulesLoader{
		fs:   fs,
		yaml: yamlAdapter,
	}
}

// Load reads, normalizes and validates the rules file at path.
// An empty path returns the built-in rules.
func (l *RulesLoader) Load(path string) (*Rules, error) {
	data := defaultRulesYAML
	if path != "" {
		var err error
		data, err = l.fs.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read rules file: %w", err)
		}
	}

	var rules Rules
	if err := l.yaml.Unmarshal(data, &rules); err != nil {
		return nil, fmt.Errorf("failed to parse rules YAML: %w", err)
	}

	rules.normalize()
	if err := rules.Validate(); err != nil {
		return nil, fmt.Errorf("invalid rules: %w", err)
	}

	return &rules, nil
}

// DefaultRules returns the built-in rules
func DefaultRules() (*Rules, error) {
	return NewRulesLoader(nil, adapter.NewYAML()).Load("")
}

// normalize lowercases and trims every keyword so matching can be case-insensitive
func (r *Rules) normalize() {
	for k, v := range r.GroupTypes.Keywords {
		r.GroupTypes.Keywords[k] = normalizeKeywords(v)
	}
	for k, v := range r.Worldviews.Keywords {
		r.Worldviews.Keywords[k] = normalizeKeywords(v)
	}
	r.Flags.SexualContent = normalizeKeywords(r.Flags.SexualContent)
	r.Flags.NoAuditNoSetting = normalizeKeywords(r.Flags.NoAuditNoSetting)
	for k, v := range r.KeywordTags {
		r.KeywordTags[k] = normalizeKeywords(v)
	}
}

func normalizeKeywords(keywords []string) []string {
	out := make([]string, 0, len(keywords))
	for _, k := range keywords {
		out = append(out, strings.ToLower(strings.TrimSpace(k)))
	}
	return out
}

// Validate checks that every category is ranked exactly once and has usable keywords
func (r *Rules) Validate() error {
	if err := validateCategories("group type", groupTypeCategories, r.GroupTypes.Priority, r.GroupTypes.Keywords); err != nil {
		return err
	}
	if err := validateCategories("worldview", worldviewCategories, r.Worldviews.Priority, r.Worldviews.Keywords); err != nil {
		return err
	}
	if err := validateKeywords("flag sexual_content", r.Flags.SexualContent); err != nil {
		return err
	}
	if err := validateKeywords("flag no_audit_no_setting", r.Flags.NoAuditNoSetting); err != nil {
		return err
	}
	for tag, keywords := range r.KeywordTags {
		if strings.TrimSpace(tag) == "" {
			return errors.New("keyword tag name is empty")
		}
		if len(keywords) == 0 {
			return fmt.Errorf("keyword tag %q has no keywords", tag)
		}
		if err := validateKeywords("keyword tag "+tag, keywords); err != nil {
			return err
		}
	}
	return nil
}

func validateCategories[T ~string](kind string, all []T, priority []T, keywords map[T][]string) error {
	if len(priority) != len(all) {
		return fmt.Errorf("%s priority must list all %d categories, got %d", kind, len(all), len(priority))
	}

	seen := make(map[T]bool, len(priority))
	for _, c := range priority {
		if seen[c] {
			return fmt.Errorf("%s priority lists %q twice", kind, c)
		}
		seen[c] = true
	}
	for _, c := range all {
		if !seen[c] {
			return fmt.Errorf("%s priority is missing %q", kind, c)
		}
		if len(keywords[c]) == 0 {
			return fmt.Errorf("%s %q has no keywords", kind, c)
		}
		if err := validateKeywords(fmt.Sprintf("%s %q", kind, c), keywords[c]); err != nil {
			return err
		}
	}
	for c := range keywords {
		if !seen[c] {
			return fmt.Errorf("unknown %s %q", kind, c)
		}
	}
	return nil
}

func validateKeywords(owner string, keywords []string) error {
	for _, k := range keywords {
		if k == "" {
			return fmt.Errorf("%s contains an empty keyword", owner)
		}
	}
	return nil
}
