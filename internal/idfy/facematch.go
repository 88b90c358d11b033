package idfy

import (
	"encoding/json"
	"strings"
)

// FaceMatchThreshold is the minimum score counted as a match when the vendor
// reports a numeric score instead of a verdict.
const FaceMatchThreshold = 0.6

// FaceMatched applies DecideFaceMatch to a face comparison task result.
func FaceMatched(r Result) bool {
	return DecideFaceMatch(r.ComparisonOutput())
}

// DecideFaceMatch interprets a comparison_output block:
//
//   - a boolean "match" is used as is;
//   - a string "match" matches when it is "true", "yes" or "match" (case and
//     surrounding space ignored);
//   - otherwise "match_score" (or "confidence" when the score is missing or
//     zero) at or above FaceMatchThreshold matches.
//
// Anything else is no match.
func DecideFaceMatch(comparison map[string]any) bool {
	switch match := comparison["match"].(type) {
	case bool:
		return match
	case string:
		switch strings.ToLower(strings.TrimSpace(match)) {
		case "true", "yes", "match":
			return true
		}
		return false
	}

	score, ok := number(comparison["match_score"])
	if !ok || score == 0 {
		score, ok = number(comparison["confidence"])
	}
	return ok && score >= FaceMatchThreshold
}

func number(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
