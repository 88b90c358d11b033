package idfy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const completedTask = `{"status":"completed","request_id":"req-1","result":{"extraction_output":{"name_on_card":"Asha Rao","id_number":"XXXX XXXX 1234","date_of_birth":"1990-01-01","gender":"F"}}}`

func TestNormalizeArrayAndObjectAreIdentical(t *testing.T) {
	fromObject, err := Normalize([]byte(completedTask))
	require.NoError(t, err)
	fromArray, err := Normalize([]byte("[" + completedTask + "]"))
	require.NoError(t, err)

	assert.Equal(t, fromObject.Doc(), fromArray.Doc())
	assert.JSONEq(t, string(fromObject.Raw()), string(fromArray.Raw()))
	assert.Equal(t, "completed", fromArray.Status())
	assert.False(t, fromArray.Failed())
}

func TestNormalizeTakesFirstArrayElement(t *testing.T) {
	result, err := Normalize([]byte(`[{"status":"failed","error":"BAD_IMAGE"},{"status":"completed"}]`))
	require.NoError(t, err)

	assert.Equal(t, "failed", result.Status())
	assert.True(t, result.Failed())
}

func TestNormalizeEmptyArrayPassesThrough(t *testing.T) {
	result, err := Normalize([]byte(" [] "))
	require.NoError(t, err)

	assert.Nil(t, result.Doc())
	assert.Equal(t, "[]", string(result.Raw()))
	assert.True(t, result.Failed())
	assert.Equal(t, "no task result returned", result.Message())
}

func TestNormalizeRejectsInvalidJSON(t *testing.T) {
	_, err := Normalize([]byte("<html>bad gateway</html>"))
	assert.Error(t, err)
}

func TestFailedDetection(t *testing.T) {
	cases := []struct {
		name string
		doc  map[string]any
		want bool
	}{
		{"completed", map[string]any{"status": "completed"}, false},
		{"failed status", map[string]any{"status": "failed"}, true},
		{"error string", map[string]any{"status": "completed", "error": "INVALID_IMAGE"}, true},
		{"empty error", map[string]any{"status": "completed", "error": ""}, false},
		{"null error", map[string]any{"status": "completed", "error": nil}, false},
		{"false error", map[string]any{"error": false}, false},
		{"in progress", map[string]any{"status": "in_progress"}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, NewResult(tc.doc).Failed())
		})
	}
}

func TestMessageDefaults(t *testing.T) {
	assert.Equal(t, "Unknown error", NewResult(map[string]any{"status": "failed"}).Message())
	assert.Equal(t, "Image is blurry", NewResult(map[string]any{"message": "Image is blurry"}).Message())
}

func TestExtractionOutputAndFieldDefaults(t *testing.T) {
	result, err := Normalize([]byte(completedTask))
	require.NoError(t, err)

	output := result.ExtractionOutput()
	assert.Equal(t, "Asha Rao", Field(output, "name_on_card"))
	assert.Equal(t, NotAvailable, Field(output, "address"))
	assert.Equal(t, NotAvailable, Field(nil, "name_on_card"))
	assert.Equal(t, NotAvailable, Field(map[string]any{"gender": "  "}, "gender"))

	assert.Nil(t, NewResult(map[string]any{"result": "oops"}).ExtractionOutput())
	assert.Nil(t, result.ComparisonOutput())
}

func TestResultMarshalJSON(t *testing.T) {
	var empty Result
	out, err := empty.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, "null", string(out))

	result := NewResult(map[string]any{"status": "completed"})
	out, err = result.MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"completed"}`, string(out))
}
