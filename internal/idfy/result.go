package idfy

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// NotAvailable is stored for any extracted field the vendor did not return.
const NotAvailable = "N/A"

// Result is a normalized task document as returned by the tasks endpoint.
// When the vendor returned something other than an object (an empty array,
// for instance) Doc is nil and Raw carries the body unchanged.
type Result struct {
	doc map[string]any
	raw json.RawMessage
}

// Normalize collapses the two shapes the tasks endpoint answers with: a bare
// task object, or an array whose first element is the task object.
func Normalize(body []byte) (Result, error) {
	trimmed := bytes.TrimSpace(body)
	var decoded any
	if err := json.Unmarshal(trimmed, &decoded); err != nil {
		return Result{}, fmt.Errorf("decode task response: %w", err)
	}

	switch value := decoded.(type) {
	case map[string]any:
		return NewResult(value), nil
	case []any:
		if len(value) == 0 {
			return Result{raw: json.RawMessage(trimmed)}, nil
		}
		if first, ok := value[0].(map[string]any); ok {
			return NewResult(first), nil
		}
		raw, err := json.Marshal(value[0])
		if err != nil {
			return Result{}, fmt.Errorf("encode task response: %w", err)
		}
		return Result{raw: raw}, nil
	default:
		return Result{raw: json.RawMessage(trimmed)}, nil
	}
}

// NewResult wraps an already decoded task document.
func NewResult(doc map[string]any) Result {
	raw, err := json.Marshal(doc)
	if err != nil {
		raw = json.RawMessage("null")
	}
	return Result{doc: doc, raw: raw}
}

// Doc returns the task document, or nil when the response was not an object.
func (r Result) Doc() map[string]any { return r.doc }

// Raw returns the normalized JSON.
func (r Result) Raw() json.RawMessage {
	if len(r.raw) == 0 {
		return json.RawMessage("null")
	}
	return r.raw
}

// MarshalJSON emits the normalized document.
func (r Result) MarshalJSON() ([]byte, error) {
	return r.Raw(), nil
}

// Status is the vendor task status ("completed", "failed", "in_progress", ...).
func (r Result) Status() string {
	status, _ := r.doc["status"].(string)
	return status
}

// Failed reports whether the vendor flagged an error, reported a failed
// status, or answered without any task document at all.
func (r Result) Failed() bool {
	if r.doc == nil {
		return true
	}
	return truthy(r.doc["error"]) || r.Status() == "failed"
}

// Error returns the vendor's error field as sent.
func (r Result) Error() any {
	return r.doc["error"]
}

// Message is the vendor's human readable message, "Unknown error" if absent.
func (r Result) Message() string {
	if message, ok := r.doc["message"].(string); ok && message != "" {
		return message
	}
	if r.doc == nil {
		return "no task result returned"
	}
	return "Unknown error"
}

// ExtractionOutput is result.extraction_output for document extraction tasks.
func (r Result) ExtractionOutput() map[string]any {
	return r.nested("extraction_output")
}

// ComparisonOutput is result.comparison_output for face comparison tasks.
func (r Result) ComparisonOutput() map[string]any {
	return r.nested("comparison_output")
}

func (r Result) nested(key string) map[string]any {
	result, ok := r.doc["result"].(map[string]any)
	if !ok {
		return nil
	}
	output, _ := result[key].(map[string]any)
	return output
}

// Field reads key from an output block, defaulting to NotAvailable.
func Field(output map[string]any, key string) any {
	value, ok := output[key]
	if !ok || value == nil {
		return NotAvailable
	}
	if s, isString := value.(string); isString && strings.TrimSpace(s) == "" {
		return NotAvailable
	}
	return value
}

func truthy(value any) bool {
	switch v := value.(type) {
	case nil:
		return false
	case bool:
		return v
	case string:
		return v != ""
	case float64:
		return v != 0
	case json.Number:
		return v.String() != "0" && v.String() != ""
	case map[string]any:
		return len(v) > 0
	case []any:
		return len(v) > 0
	default:
		return true
	}
}
