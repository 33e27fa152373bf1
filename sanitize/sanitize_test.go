package sanitize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "empty string",
			input:    "",
			expected: "",
		},
		{
			name:     "already safe",
			input:    "TestHome_loads-title",
			expected: "TestHome_loads-title",
		},
		{
			name:     "spaces and punctuation",
			input:    "Should load homepage (and verify title)!",
			expected: "Should_load_homepage__and_verify_title__",
		},
		{
			name:     "subtest separator",
			input:    "TestHome/loads_title",
			expected: "TestHome_loads_title",
		},
		{
			name:     "dots",
			input:    "com.example.tests.ExampleTest",
			expected: "com_example_tests_ExampleTest",
		},
		{
			name:     "accents are folded",
			input:    "café crème",
			expected: "cafe_creme",
		},
		{
			name:     "german umlauts",
			input:    "Größe",
			expected: "Groesse",
		},
		{
			name:     "non latin",
			input:    "テスト",
			expected: "___",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.expected, Name(tt.input))
		})
	}
}

func TestNameOr(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "method", NameOr("", "method"))
	assert.Equal(t, "Test_1", NameOr("Test 1", "method"))
}

func TestName_Idempotent(t *testing.T) {
	t.Parallel()

	for _, input := range []string{"a b/c", "Größe", "x.y(z)"} {
		once := Name(input)
		assert.Equal(t, once, Name(once), "input %q", input)
	}
}
