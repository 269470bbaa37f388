package extractor

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/groupwatch/group-indexer/internal/domain"
)

const (
	DefaultMinDigits = 5
	DefaultMaxDigits = 11
)

// DefaultLabels are the prefixes that usually precede a group number in announcements
var DefaultLabels = []string{"群号", "群聊", "QQ群", "qq群", "群", "group id", "group", "id"}

// Config holds the identifier extraction configuration
type Config struct {
	MinDigits int
	MaxDigits int
	Labels    []string
}

// Extractor finds the group identifier of an announcement
//
//go:generate mockgen -source=extractor.go -destination=../mocks/extractor.go -package=mocks -mock_names=Extractor=MockExtractor
type Extractor interface {
	// Extract returns the event-supplied identifier when present, otherwise the
	// first identifier found in content. Returns domain.ErrNoIdentifierFound when none.
	Extract(content string, eventGroupID string) (string, error)
}

// rule is a single extraction pattern; group 1 of the pattern holds the digit run
type rule struct {
	name    string
	pattern *regexp.Regexp
}

type extractor struct {
	rules []rule
}

// New creates an extractor with ordered rules: labeled digit runs first, then bare digit runs
func New(cfg Config) (Extractor, error) {
	if cfg.MinDigits <= 0 {
		cfg.MinDigits = DefaultMinDigits
	}
	if cfg.MaxDigits <= 0 {
		cfg.MaxDigits = DefaultMaxDigits
	}
	if cfg.MinDigits > cfg.MaxDigits {
		return nil, fmt.Errorf("min digits %d exceeds max digits %d", cfg.MinDigits, cfg.MaxDigits)
	}
	if len(cfg.Labels) == 0 {
		cfg.Labels = DefaultLabels
	}

	// Digit runs must not touch other digits on either side
	digits := fmt.Sprintf(`(\d{%d,%d})(?:\D|$)`, cfg.MinDigits, cfg.MaxDigits)

	quoted := make([]string, 0, len(cfg.Labels))
	for _, l := range cfg.Labels {
		if l = strings.TrimSpace(l); l != "" {
			quoted = append(quoted, regexp.QuoteMeta(l))
		}
	}

	rules := make([]rule, 0, 2)
	if len(quoted) > 0 {
		labeled, err := regexp.Compile(`(?i)(?:` + strings.Join(quoted, "|") + `)[ \t]*[:：]?[ \t]*` + digits)
		if err != nil {
			return nil, fmt.Errorf("failed to compile labeled rule: %w", err)
		}
		rules = append(rules, rule{name: "labeled", pattern: labeled})
	}

	bare, err := regexp.Compile(`(?:^|\D)` + digits)
	if err != nil {
		return nil, fmt.Errorf("failed to compile bare rule: %w", err)
	}
	rules = append(rules, rule{name: "bare", pattern: bare})

	return &extractor{rules: rules}, nil
}

// Extract applies the rules in order; the first rule with a match wins
func (e *extractor) Extract(content string, eventGroupID string) (string, error) {
	if id := strings.TrimSpace(eventGroupID); id != "" {
		return id, nil
	}

	for _, r := range e.rules {
		m := r.pattern.FindStringSubmatch(content)
		if m != nil {
			return m[1], nil
		}
	}

	return "", domain.ErrNoIdentifierFound
}
