package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExcerpt(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		n        int
		expected string
	}{
		{name: "shorter than limit", input: "hello", n: 10, expected: "hello"},
		{name: "exact limit", input: "hello", n: 5, expected: "hello"},
		{name: "cut ascii", input: "hello world", n: 5, expected: "hello..."},
		{name: "cut by runes not bytes", input: "欢迎加入古风群", n: 4, expected: "欢迎加入..."},
		{name: "empty", input: "", n: 3, expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Excerpt(tt.input, tt.n))
		})
	}
}

func TestGenerateUUID(t *testing.T) {
	t.Run("generates valid UUID", func(t *testing.T) {
		id, err := GenerateUUID()
		assert.NoError(t, err)
		assert.NotEmpty(t, id)
		// Check format: 8-4-4-4-12 hex characters
		assert.Regexp(t, `^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`, id)
	})

	t.Run("generates multiple unique UUIDs", func(t *testing.T) {
		ids := make(map[string]bool)
		count := 1000
		for range count {
			id, err := GenerateUUID()
			assert.NoError(t, err)
			assert.False(t, ids[id], "UUID should be unique")
			ids[id] = true
		}
		assert.Equal(t, count, len(ids))
	})
}
