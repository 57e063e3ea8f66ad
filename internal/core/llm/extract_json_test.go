package llm

import "testing"

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "pure_object",
			input: `{"queries":[]}`,
			want:  `{"queries":[]}`,
		},
		{
			name:  "pure_array",
			input: `[{"query":"a"}]`,
			want:  `[{"query":"a"}]`,
		},
		{
			name:  "object_with_preamble",
			input: `Here is the plan: {"complexity":3,"scope":2} hope it helps.`,
			want:  `{"complexity":3,"scope":2}`,
		},
		{
			name:  "array_with_preamble",
			input: `Sure! [{"query":"solid state batteries"}]`,
			want:  `[{"query":"solid state batteries"}]`,
		},
		{
			name:  "array_before_object",
			input: `Text [{"a":1}] and {"b":2}`,
			want:  `[{"a":1}]`,
		},
		{
			name:  "brackets_inside_strings",
			input: `{"statement":"range grew [12,18] percent","topic":"ev"}`,
			want:  `{"statement":"range grew [12,18] percent","topic":"ev"}`,
		},
		{
			name:  "markdown_fence",
			input: "```json\n{\"score\":0.8,\"reason\":\"official source\"}\n```",
			want:  `{"score":0.8,"reason":"official source"}`,
		},
		{
			name:  "no_json",
			input: "I cannot answer that.",
			want:  "I cannot answer that.",
		},
		{
			name:  "invalid_braces_only",
			input: `text { not json } more`,
			want:  `text { not json } more`,
		},
		{
			name:  "trailing_garbage_after_object",
			input: `{"queries":[{"query":"q1","goal":"g1"}]} [truncated`,
			want:  `{"queries":[{"query":"q1","goal":"g1"}]}`,
		},
		{
			name:  "empty",
			input: "",
			want:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := extractJSON(tt.input); got != tt.want {
				t.Errorf("extractJSON(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}
