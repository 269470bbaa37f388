package classifier

import (
	"regexp"
	"sort"
	"strings"

	"github.com/groupwatch/group-indexer/internal/domain"
)

// manualTagRegex matches explicit "#tag" markers, ASCII or full-width hash
var manualTagRegex = regexp.MustCompile(`[#＃]([\p{Han}A-Za-z0-9_]+)`)

// Result is the classification output for one piece of content
type Result struct {
	Hints domain.ClassificationHints
	// Tags is sorted and deduplicated
	Tags []string
}

// Classifier derives category, worldview, flags and tags from content
//
//go:generate mockgen -source=classifier.go -destination=../mocks/classifier.go -package=mocks -mock_names=Classifier=MockClassifier
type Classifier interface {
	Classify(content string) Result
}

type classifier struct {
	rules *Rules
}

// New creates a classifier bound to the given rules. The rules must not be modified afterwards.
func New(rules *Rules) Classifier {
	return &classifier{rules: rules}
}

// Classify is a pure function of content and the bound rules
func (c *classifier) Classify(content string) Result {
	lower := strings.ToLower(content)

	return Result{
		Hints: domain.ClassificationHints{
			GroupType:        pickCategory(lower, c.rules.GroupTypes.Priority, c.rules.GroupTypes.Keywords, domain.GroupTypeUnclassified),
			Worldview:        pickCategory(lower, c.rules.Worldviews.Priority, c.rules.Worldviews.Keywords, domain.WorldviewUnspecified),
			HasSexualContent: containsAny(lower, c.rules.Flags.SexualContent),
			NoAuditNoSetting: containsAny(lower, c.rules.Flags.NoAuditNoSetting),
		},
		Tags: c.extractTags(content, lower),
	}
}

// pickCategory returns the category with the highest match count.
// Priority is walked highest first and only a strictly greater count replaces the
// current best, so ties resolve to the higher priority category.
func pickCategory[T ~string](lower string, priority []T, keywords map[T][]string, fallback T) T {
	best := fallback
	bestCount := 0
	for _, category := range priority {
		count := countMatches(lower, keywords[category])
		if count > bestCount {
			best = category
			bestCount = count
		}
	}
	return best
}

func countMatches(lower string, keywords []string) int {
	total := 0
	for _, k := range keywords {
		total += strings.Count(lower, k)
	}
	return total
}

func containsAny(lower string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(lower, k) {
			return true
		}
	}
	return false
}

func (c *classifier) extractTags(content string, lower string) []string {
	set := make(map[string]struct{})

	for _, m := range manualTagRegex.FindAllStringSubmatch(content, -1) {
		set[m[1]] = struct{}{}
	}
	for tag, keywords := range c.rules.KeywordTags {
		if containsAny(lower, keywords) {
			set[tag] = struct{}{}
		}
	}

	tags := make([]string, 0, len(set))
	for t := range set {
		tags = append(tags, t)
	}
	sort.Strings(tags)

	return tags
}
