// internal/pipeline/serialize/serialize.go
// Package serialize renders execution outcomes as stable text for prompts and callers.
package serialize

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"nlquery-agent/internal/docstore"
	"nlquery-agent/internal/models"
)

const ErrorPrefix = "Error: "

// Outcome renders scalars as literals, rows as a JSON array of records and
// errors as "Error: <message>".
func Outcome(o models.ExecutionOutcome) string {
	switch o.Kind {
	case models.OutcomeScalar:
		return Scalar(o.Scalar)
	case models.OutcomeRows:
		return Rows(o.Rows)
	}
	return ErrorPrefix + o.Message
}

// Scalar renders a single value in its literal textual form.
func Scalar(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return "null"
	case string:
		return t
	case docstore.ID:
		return t.String()
	case uuid.UUID:
		return t.String()
	case []byte:
		return string(t)
	case bool:
		return strconv.FormatBool(t)
	case time.Time:
		return t.UTC().Format(time.RFC3339)
	case int:
		return strconv.Itoa(t)
	case int32:
		return strconv.FormatInt(int64(t), 10)
	case int64:
		return strconv.FormatInt(t, 10)
	case uint64:
		return strconv.FormatUint(t, 10)
	case float32:
		return formatFloat(float64(t))
	case float64:
		return formatFloat(t)
	}
	return encode(normalize(v))
}

func formatFloat(f float64) string {
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// Rows renders records as a JSON array. Record order is kept; keys are sorted.
func Rows(rows []models.Record) string {
	out := make([]interface{}, len(rows))
	for i, r := range rows {
		out[i] = normalize(r)
	}
	return encode(out)
}

// normalize rewrites values that have no portable JSON form: identifiers and
// byte slices become strings and timestamps become RFC3339.
func normalize(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			out[k] = normalize(val)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, val := range t {
			out[i] = normalize(val)
		}
		return out
	case docstore.ID:
		return t.String()
	case uuid.UUID:
		return t.String()
	case []byte:
		return string(t)
	case time.Time:
		return t.UTC().Format(time.RFC3339)
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return fmt.Sprint(t)
		}
	}
	return v
}

func encode(v interface{}) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return fmt.Sprint(v)
	}
	return strings.TrimRight(buf.String(), "\n")
}
