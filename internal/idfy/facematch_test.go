package idfy

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecideFaceMatch(t *testing.T) {
	cases := []struct {
		name       string
		comparison map[string]any
		want       bool
	}{
		{"bool true", map[string]any{"match": true}, true},
		{"bool false wins over score", map[string]any{"match": false, "match_score": 0.99}, false},
		{"string yes", map[string]any{"match": "Yes"}, true},
		{"string match padded", map[string]any{"match": "  MATCH "}, true},
		{"string true", map[string]any{"match": "true"}, true},
		{"string no ignores score", map[string]any{"match": "no", "match_score": 0.9}, false},
		{"score at threshold", map[string]any{"match_score": 0.6}, true},
		{"score below threshold", map[string]any{"match_score": 0.59}, false},
		{"zero score falls back to confidence", map[string]any{"match_score": 0.0, "confidence": 0.8}, true},
		{"confidence only", map[string]any{"confidence": 0.7}, true},
		{"json number", map[string]any{"match_score": json.Number("0.75")}, true},
		{"integer score", map[string]any{"match_score": 1}, true},
		{"non numeric score", map[string]any{"match_score": "high"}, false},
		{"empty", map[string]any{}, false},
		{"nil", nil, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, DecideFaceMatch(tc.comparison))
		})
	}
}

func TestFaceMatchedReadsComparisonOutput(t *testing.T) {
	matched := NewResult(map[string]any{
		"status": "completed",
		"result": map[string]any{"comparison_output": map[string]any{"match": "yes"}},
	})
	assert.True(t, FaceMatched(matched))

	assert.False(t, FaceMatched(Result{}))
	assert.False(t, FaceMatched(NewResult(map[string]any{"result": nil})))
}
