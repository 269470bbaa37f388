package sanitizer

import (
	"fmt"
	"regexp"
	"strings"
)

// DefaultMarkerPatterns matches the inline reference markers emitted by chat clients
// Each pattern is applied per line
var DefaultMarkerPatterns = []string{
	`\[At:[^\]]*\]`,
	`\[CQ:at,[^\]]*\]`,
	`\[CQ:reply,[^\]]*\]`,
	`\[引用消息\(.*?\)\]`,
	`\[quoted:[^\]]*\]`,
	`\[reply:[^\]]*\]`,
}

// mentionRegex matches "@name" plus trailing blanks. A match glued to an e-mail
// local part is not a mention, see stripMentions.
var mentionRegex = regexp.MustCompile(`@[^\s@]+[ \t]*`)

// Sanitizer removes platform artifacts from raw announcement text
//
//go:generate mockgen -source=sanitizer.go -destination=../mocks/sanitizer.go -package=mocks -mock_names=Sanitizer=MockSanitizer
type Sanitizer interface {
	// Sanitize returns the cleaned text. It never fails; empty input yields empty output.
	Sanitize(raw string) string
}

type sanitizer struct {
	markers []*regexp.Regexp
}

// New creates a sanitizer using the default marker patterns plus any extra patterns
func New(extraPatterns ...string) (Sanitizer, error) {
	patterns := make([]string, 0, len(DefaultMarkerPatterns)+len(extraPatterns))
	patterns = append(patterns, DefaultMarkerPatterns...)
	patterns = append(patterns, extraPatterns...)

	markers := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid marker pattern %q: %w", p, err)
		}
		markers = append(markers, re)
	}

	return &sanitizer{markers: markers}, nil
}

// Sanitize removes mention and quoted-reply markers while keeping line structure.
// Lines that held nothing but markers are dropped.
func (s *sanitizer) Sanitize(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return ""
	}

	text := strings.ReplaceAll(raw, "\r\n", "\n")
	lines := strings.Split(text, "\n")
	kept := make([]string, 0, len(lines))

	for _, line := range lines {
		cleaned := s.stripMarkers(line)
		if cleaned != line {
			cleaned = strings.TrimSpace(cleaned)
			if cleaned == "" {
				continue
			}
		}
		kept = append(kept, cleaned)
	}

	return strings.TrimSpace(strings.Join(kept, "\n"))
}

func (s *sanitizer) stripMarkers(line string) string {
	for _, re := range s.markers {
		line = re.ReplaceAllString(line, "")
	}
	return stripMentions(line)
}

// stripMentions removes "@name" tokens unless the "@" follows a character that can end
// an e-mail local part. "联系@管理员" loses its mention, "admin@example.com" is kept.
func stripMentions(line string) string {
	matches := mentionRegex.FindAllStringIndex(line, -1)
	if len(matches) == 0 {
		return line
	}

	var b strings.Builder
	last := 0
	for _, m := range matches {
		start, end := m[0], m[1]
		if start > 0 && isLocalPartChar(line[start-1]) {
			continue
		}
		b.WriteString(line[last:start])
		last = end
	}
	b.WriteString(line[last:])

	return b.String()
}

// isLocalPartChar reports whether c is an ASCII character allowed in an e-mail local part.
// Bytes of multi-byte runes are never part of one.
func isLocalPartChar(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	case c == '.', c == '_', c == '%', c == '+', c == '-':
		return true
	}
	return false
}
