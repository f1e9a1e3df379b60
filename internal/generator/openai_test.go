package generator

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leapdash/pkg/core"
)

func TestNew_RequiresAPIKey(t *testing.T) {
	_, err := New("", "", nil)
	require.Error(t, err)

	g, err := New("sk-test", "", nil)
	require.NoError(t, err)
	assert.Equal(t, defaultModel, g.model)

	g, err = New("sk-test", "gpt-4o", nil)
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", g.model)
}

func TestStripFences(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain code", "def transform(data):\n    return []", "def transform(data):\n    return []"},
		{"fenced", "```\ndef transform(data):\n    return []\n```", "def transform(data):\n    return []"},
		{"fenced with language", "```python\ndef transform(data):\n    return []\n```", "def transform(data):\n    return []"},
		{"surrounding whitespace", "\n\n```starlark\ndef transform(data):\n    return []\n```\n", "def transform(data):\n    return []"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, stripFences(tt.in))
		})
	}
}

func TestBuildPrompt_Ingest(t *testing.T) {
	prompt, err := buildPrompt(core.GenerateRequest{
		Kind:            core.KindIngest,
		TemplateID:      "plausible-visitors",
		SamplePayload:   map[string]any{"results": []any{map[string]any{"date": "2026-01-01", "visitors": 42}}},
		ExtractionHint:  "use results[].date and results[].visitors",
		DataDescription: "daily unique visitors",
	})
	require.NoError(t, err)

	assert.Contains(t, prompt, "transform(payload)")
	assert.Contains(t, prompt, "daily unique visitors")
	assert.Contains(t, prompt, "use results[].date")
	assert.Contains(t, prompt, `"visitors": 42`)
}

func TestBuildPrompt_Chart(t *testing.T) {
	prompt, err := buildPrompt(core.GenerateRequest{Kind: core.KindChart, ValueLabel: "Visitors"})
	require.NoError(t, err)

	assert.Contains(t, prompt, "transform(points, preferences)")
	assert.Contains(t, prompt, "Visitors")
	assert.False(t, strings.Contains(prompt, "Sample input"), "no sample payload was given")
}

func TestBuildPrompt_UnknownKind(t *testing.T) {
	_, err := buildPrompt(core.GenerateRequest{Kind: "pivot"})
	require.Error(t, err)
}
