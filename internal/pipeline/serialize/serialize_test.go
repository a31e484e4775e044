package serialize

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nlquery-agent/internal/docstore"
	"nlquery-agent/internal/models"
)

func TestScalar(t *testing.T) {
	tests := []struct {
		name string
		in   interface{}
		want string
	}{
		{"nil", nil, "null"},
		{"int64", int64(10), "10"},
		{"integral float", 10.0, "10"},
		{"fraction", 1225.5, "1225.5"},
		{"string", "Alice", "Alice"},
		{"bool", true, "true"},
		{"id", docstore.ID("65a1f0c2e4b0a1b2c3d4e5f6"), "65a1f0c2e4b0a1b2c3d4e5f6"},
		{"uuid", uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8"), "6ba7b810-9dad-11d1-80b4-00c04fd430c8"},
		{"time", time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC), "2024-05-01T10:00:00Z"},
		{"bytes", []byte("abc"), "abc"},
		{"list of scalars", []interface{}{"a", docstore.ID("x1")}, `["a","x1"]`},
		{"map", map[string]interface{}{"b": 1, "a": "<tag>"}, `{"a":"<tag>","b":1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Outcome(models.ScalarOutcome(tt.in)))
		})
	}
}

func TestRows(t *testing.T) {
	rows := []models.Record{
		{"_id": docstore.ID("65a1f0c2e4b0a1b2c3d4e5f6"), "name": "Alice", "created": time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)},
		{"_id": docstore.ID("65a1f0c2e4b0a1b2c3d4e5f7"), "name": "Bob", "tags": []interface{}{"vip"}},
	}

	assert.Equal(t,
		`[{"_id":"65a1f0c2e4b0a1b2c3d4e5f6","created":"2024-01-02T03:04:05Z","name":"Alice"},{"_id":"65a1f0c2e4b0a1b2c3d4e5f7","name":"Bob","tags":["vip"]}]`,
		Outcome(models.RowsOutcome(rows)))

	assert.Equal(t, "[]", Outcome(models.RowsOutcome(nil)))
}

func TestRowsRoundTrip(t *testing.T) {
	rows := []models.Record{
		{"id": int64(1), "username": "alice", "total_amount": 120.5},
		{"id": int64(2), "username": "bob", "total_amount": nil},
		{"id": int64(3), "username": "carol", "total_amount": 0.0},
	}

	var parsed []map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(Rows(rows)), &parsed))
	require.Len(t, parsed, len(rows))
	for i, r := range rows {
		require.Len(t, parsed[i], len(r))
		for k, v := range r {
			assert.EqualValues(t, v, parsed[i][k], "row %d key %s", i, k)
		}
	}
}

func TestError(t *testing.T) {
	assert.Equal(t, "Error: no result produced", Outcome(models.ErrorOutcome("no result produced")))
}
