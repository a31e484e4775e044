package docstore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatch(t *testing.T) {
	doc := Document{
		"_id":    ID("65a1f0c2e4b0a1b2c3d4e5f6"),
		"name":   "Alice Smith",
		"age":    int64(28),
		"tags":   []interface{}{"vip", "early"},
		"total":  120.5,
		"status": "completed",
		"address": map[string]interface{}{
			"city": "Madrid",
		},
		"created_at": time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
	}

	tests := []struct {
		name   string
		filter Filter
		want   bool
	}{
		{"empty filter", Filter{}, true},
		{"equality", Filter{"name": "Alice Smith"}, true},
		{"equality miss", Filter{"name": "Bob"}, false},
		{"numeric widths", Filter{"age": 28}, true},
		{"id matches plain string", Filter{"_id": "65a1f0c2e4b0a1b2c3d4e5f6"}, true},
		{"dotted path", Filter{"address.city": "Madrid"}, true},
		{"array contains", Filter{"tags": "vip"}, true},
		{"gt", Filter{"total": Filter{"$gt": 100}}, true},
		{"range", Filter{"age": Filter{"$gte": 30, "$lte": 40}}, false},
		{"in", Filter{"status": Filter{"$in": []interface{}{"pending", "completed"}}}, true},
		{"nin", Filter{"status": Filter{"$nin": []interface{}{"completed"}}}, false},
		{"ne", Filter{"status": Filter{"$ne": "pending"}}, true},
		{"exists", Filter{"email": Filter{"$exists": false}}, true},
		{"regex", Filter{"name": Filter{"$regex": "^ali", "$options": "i"}}, true},
		{"regex miss", Filter{"name": Filter{"$regex": "^B"}}, false},
		{"not", Filter{"age": Filter{"$not": Filter{"$gt": 50}}}, true},
		{"size", Filter{"tags": Filter{"$size": 2}}, true},
		{"or", Filter{"$or": []interface{}{Filter{"name": "Bob"}, Filter{"age": 28}}}, true},
		{"and", Filter{"$and": []interface{}{Filter{"name": "Alice Smith"}, Filter{"age": 99}}}, false},
		{"nor", Filter{"$nor": []interface{}{Filter{"name": "Bob"}}}, true},
		{"time vs rfc3339", Filter{"created_at": Filter{"$gte": "2024-01-01T00:00:00Z"}}, true},
		{"missing field gt", Filter{"missing": Filter{"$gt": 1}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Match(doc, tt.filter)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMatchRejectsUnknownOperators(t *testing.T) {
	_, err := Match(Document{"a": 1}, Filter{"a": Filter{"$where": "1"}})
	assert.ErrorContains(t, err, "unsupported operator $where")

	_, err = Match(Document{"a": 1}, Filter{"$expr": Filter{}})
	assert.ErrorContains(t, err, "unsupported top-level operator")

	_, err = Match(Document{"a": 1}, Filter{"$or": "nope"})
	assert.Error(t, err)
}

func TestSortSpec(t *testing.T) {
	fields, err := SortSpec(map[string]interface{}{"total": -1, "name": "asc"})
	require.NoError(t, err)
	assert.Equal(t, []SortField{{Field: "name"}, {Field: "total", Descending: true}}, fields)

	_, err = SortSpec(map[string]interface{}{"total": "sideways"})
	assert.Error(t, err)
}

func TestParseID(t *testing.T) {
	id, err := ParseID(" 65a1f0c2e4b0a1b2c3d4e5f6 ")
	require.NoError(t, err)
	assert.True(t, id.IsObjectID())
	assert.Equal(t, "65a1f0c2e4b0a1b2c3d4e5f6", id.String())

	_, err = ParseID("  ")
	assert.ErrorIs(t, err, ErrInvalidID)

	assert.True(t, NewID().IsObjectID())
	assert.False(t, ID("user-1").IsObjectID())
}
