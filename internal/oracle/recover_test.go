package oracle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type verdict struct {
	Related bool    `json:"related"`
	Score   float64 `json:"score"`
}

func TestRecoverJSONLadder(t *testing.T) {
	tests := []struct {
		name       string
		text       string
		wantParser string
		want       verdict
	}{
		{"direct", `{"related": true, "score": 0.8}`, "direct", verdict{true, 0.8}},
		{"direct with whitespace", "\n  {\"related\": false}\n", "direct", verdict{false, 0}},
		{"fenced", "Sure!\n```json\n{\"related\": true, \"score\": 0.5}\n```\nLet me know.", "fenced", verdict{true, 0.5}},
		{"bare fence", "```\n{\"score\": 0.25}\n```", "fenced", verdict{false, 0.25}},
		{"span in prose", `My answer is {"related": true, "score": 0.9} based on the subject.`, "span", verdict{true, 0.9}},
		{"braces inside strings", `Result: {"related": true, "note": "uses {curly} and ] brackets", "score": 0.7}`, "span", verdict{true, 0.7}},
		{"skips unbalanced prefix", `first } junk { not json, then {"related": true}`, "span", verdict{true, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var v verdict
			parser, err := RecoverJSON(tt.text, &v)
			require.NoError(t, err)
			assert.Equal(t, tt.wantParser, parser)
			assert.Equal(t, tt.want, v)
		})
	}
}

func TestRecoverJSONArrayInsideEnvelope(t *testing.T) {
	var out []map[string]int
	parser, err := RecoverJSON(`Here: {"boundaries": [{"start_page": 1}, {"start_page": 4}]}`, &out)
	require.NoError(t, err)
	assert.Equal(t, "span", parser)
	assert.Equal(t, []map[string]int{{"start_page": 1}, {"start_page": 4}}, out)
}

func TestRecoverJSONFailureLeavesTargetUntouched(t *testing.T) {
	v := verdict{Related: true, Score: 0.42}
	for _, text := range []string{"", "no json here", `{"related": "maybe"}`, "{unterminated", "[1, 2"} {
		_, err := RecoverJSON(text, &v)
		assert.ErrorIs(t, err, ErrNoJSON, text)
		assert.Equal(t, verdict{Related: true, Score: 0.42}, v)
	}
}

func TestRecoverJSONRejectsNonPointer(t *testing.T) {
	var v verdict
	_, err := RecoverJSON(`{"related": true}`, v)
	assert.ErrorIs(t, err, ErrNoJSON)
}

func TestMatchBracket(t *testing.T) {
	assert.Equal(t, 6, matchBracket(`{"a":1}`, 0))
	assert.Equal(t, -1, matchBracket(`{"a":[1}`, 0))
	assert.Equal(t, 9, matchBracket(`["\"]", 1]`, 0))
}
