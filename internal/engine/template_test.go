package engine

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRender_Basic(t *testing.T) {
	data := map[string]any{
		"workflowId": "wf-1",
		"request":    map[string]any{"documentId": "doc-7", "count": 42},
	}

	tests := []struct {
		name     string
		template string
		expected string
	}{
		{name: "top-level field", template: "id={{ .workflowId }}", expected: "id=wf-1"},
		{name: "nested field", template: "{{ .request.documentId }}", expected: "doc-7"},
		{name: "number", template: "Count: {{ .request.count }}", expected: "Count: 42"},
		{name: "no template", template: "Plain text", expected: "Plain text"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := Render(tt.template, data)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestRender_B64AndXML(t *testing.T) {
	data := map[string]any{
		"payload": map[string]any{"a": 1},
		"text":    "a<b & c",
	}

	out, err := Render(`{{ b64 .payload }}`, data)
	require.NoError(t, err)
	decoded, err := base64.StdEncoding.DecodeString(out)
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1}`, string(decoded))

	out, err = Render(`<v>{{ xml .text }}</v>`, data)
	require.NoError(t, err)
	assert.Equal(t, "<v>a&lt;b &amp; c</v>", out)
}

func TestRender_ParseError(t *testing.T) {
	_, err := Render("{{ .broken", nil)
	assert.ErrorIs(t, err, ErrTemplateParse)
}

func TestRender_MissingKey(t *testing.T) {
	_, err := Render("{{ .absent }}", map[string]any{"present": 1})
	assert.ErrorIs(t, err, ErrTemplateRender)
}

func TestRender_JSONAndCache(t *testing.T) {
	tmpl := `{{ json .list }}`
	data := map[string]any{"list": []string{"a", "b"}}

	first, err := Render(tmpl, data)
	require.NoError(t, err)
	assert.Equal(t, `["a","b"]`, first)

	second, err := Render(tmpl, map[string]any{"list": []int{1}})
	require.NoError(t, err)
	assert.Equal(t, `[1]`, second)
}
