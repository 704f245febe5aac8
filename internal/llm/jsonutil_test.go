package llm

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"bare object", `{"a":1}`, `{"a":1}`},
		{"fenced", "Here you go:\n```json\n{\"a\":1}\n```\nThanks", `{"a":1}`},
		{"prose around", `Sure! {"a":1} Hope that helps.`, `{"a":1}`},
		{"no json", "I cannot do that.", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractJSON(tt.content))
		})
	}
}

func TestExtractJSONCleansArtifacts(t *testing.T) {
	content := "```json\n{\n  \"url\": \"http://example.com\", // the link\n  \"list\": [1, 2,],\n}\n```"
	out := ExtractJSON(content)

	var v map[string]any
	assert.NoError(t, json.Unmarshal([]byte(out), &v), out)
	assert.Equal(t, "http://example.com", v["url"])
}

func TestExtractJSONLeavesStringsAlone(t *testing.T) {
	content := "{\"workstreams\": [\n" +
		"  {\"title\": \"Auth, }\", \"summary\": \"see http://x/y, ]\", \"tags\": [\"a\",],}, // first\n" +
		"],}"
	out := ExtractJSON(content)

	var v struct {
		Workstreams []struct {
			Title   string   `json:"title"`
			Summary string   `json:"summary"`
			Tags    []string `json:"tags"`
		} `json:"workstreams"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &v), out)
	require.Len(t, v.Workstreams, 1)
	assert.Equal(t, "Auth, }", v.Workstreams[0].Title)
	assert.Equal(t, "see http://x/y, ]", v.Workstreams[0].Summary)
	assert.Equal(t, []string{"a"}, v.Workstreams[0].Tags)
}

func TestExtractJSONEscapedQuote(t *testing.T) {
	out := ExtractJSON(`{"title": "say \"hi,]\"",}`)
	assert.Equal(t, `{"title": "say \"hi,]\""}`, out)
}
