package strings

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDedupeAndTrim(t *testing.T) {
	tests := []struct {
		name     string
		input    []string
		expected []string
	}{
		{name: "nil", input: nil, expected: nil},
		{name: "empty", input: []string{}, expected: []string{}},
		{
			name:     "citizen ids with padding",
			input:    []string{" 079123456789 ", "079123456780"},
			expected: []string{"079123456789", "079123456780"},
		},
		{
			name:     "repeats keep first position",
			input:    []string{"079123456780", "079123456789", "079123456780"},
			expected: []string{"079123456780", "079123456789"},
		},
		{
			name:     "blanks dropped",
			input:    []string{"", "  ", "079123456789"},
			expected: []string{"079123456789"},
		},
		{
			name:     "only blanks",
			input:    []string{" ", ""},
			expected: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, DedupeAndTrim(tt.input))
		})
	}
}
