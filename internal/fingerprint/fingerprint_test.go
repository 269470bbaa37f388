package fingerprint_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/groupwatch/group-indexer/internal/fingerprint"
)

func TestCompute(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		expected string
	}{
		{
			name:     "empty content",
			content:  "",
			expected: "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
		},
		{
			name:     "ascii",
			content:  "abc",
			expected: "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, fingerprint.Compute(tt.content))
		})
	}
}

func TestCompute_Deterministic(t *testing.T) {
	content := "古风语C群\n群号：12345678"
	assert.Equal(t, fingerprint.Compute(content), fingerprint.Compute(content))
	assert.Len(t, fingerprint.Compute(content), 64)
}

func TestCompute_LineBreaksSignificant(t *testing.T) {
	assert.NotEqual(t, fingerprint.Compute("a\nb"), fingerprint.Compute("a b"))
	assert.NotEqual(t, fingerprint.Compute("a\nb"), fingerprint.Compute("a\n\nb"))
}

func TestMatches(t *testing.T) {
	hash := fingerprint.Compute("hello")
	assert.True(t, fingerprint.Matches("hello", hash))
	assert.False(t, fingerprint.Matches("hello!", hash))
}
