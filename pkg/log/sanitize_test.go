package log

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeField(t *testing.T) {
	tests := []struct {
		name     string
		key      string
		value    string
		expected string
	}{
		{
			name:     "api_key_masked",
			key:      "api_key",
			value:    "sk-1234567890abcdef",
			expected: "sk-1***********cdef",
		},
		{
			name:     "token_masked",
			key:      "access_token",
			value:    "tok_abcdefgh1234",
			expected: "tok_********1234",
		},
		{
			name:     "short_secret_fully_masked",
			key:      "secret",
			value:    "ab",
			expected: "**",
		},
		{
			name:     "short_secret_edges_kept",
			key:      "password",
			value:    "abcdef",
			expected: "a****f",
		},
		{
			name:     "plain_field_untouched",
			key:      "dependency",
			value:    "taskmaster",
			expected: "taskmaster",
		},
		{
			name:     "empty_value",
			key:      "api_key",
			value:    "",
			expected: "",
		},
		{
			name:     "case_insensitive_key",
			key:      "Authorization",
			value:    "Bearer abcdefgh1234",
			expected: "Bear***********1234",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, SanitizeField(tt.key, tt.value))
		})
	}
}
