package types

import (
	"github.com/google/uuid"
)

// Excerpt returns at most n runes of s, followed by "..." when s was cut
func Excerpt(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}

// GenerateUUID returns a random UUID string
func GenerateUUID() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}
