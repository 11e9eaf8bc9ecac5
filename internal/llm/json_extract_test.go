package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name     string
		response string
		want     string
		wantErr  bool
	}{
		{
			name:     "json code block",
			response: "Here is my assessment:\n```json\n{\"score\": 8}\n```\nDone.",
			want:     `{"score": 8}`,
		},
		{
			name:     "untagged code block",
			response: "```\n{\"score\": 3, \"issues\": [\"vague\"]}\n```",
			want:     `{"score": 3, "issues": ["vague"]}`,
		},
		{
			name:     "raw object with surrounding prose",
			response: `Sure! {"contradictory": true, "severity": "high"} Let me know.`,
			want:     `{"contradictory": true, "severity": "high"}`,
		},
		{
			name:     "raw array",
			response: `the pairs are [1, 2, 3] as requested`,
			want:     `[1, 2, 3]`,
		},
		{
			name:     "nested braces inside strings",
			response: `{"description": "metric {churn} conflicts", "confidence": 0.8}`,
			want:     `{"description": "metric {churn} conflicts", "confidence": 0.8}`,
		},
		{
			name:     "skips non-json code block, falls back to raw",
			response: "```python\nprint('hi')\n```\nverdict: {\"score\": 6}",
			want:     `{"score": 6}`,
		},
		{
			name:     "invalid block falls through to raw json",
			response: "```json\n{not json}\n```\n{\"score\": 7}",
			want:     `{"score": 7}`,
		},
		{
			name:     "no json at all",
			response: "I cannot answer that.",
			wantErr:  true,
		},
		{
			name:     "unbalanced object",
			response: `{"score": 8`,
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractJSON(tt.response)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
