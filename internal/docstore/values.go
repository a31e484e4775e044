package docstore

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"
)

// toFloat widens every numeric kind to float64.
func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

func toText(v interface{}) (string, bool) {
	switch s := v.(type) {
	case string:
		return s, true
	case ID:
		return string(s), true
	}
	return "", false
}

// compareValues orders two scalars of the same family. ok is false when they are not comparable.
func compareValues(a, b interface{}) (int, bool) {
	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			switch {
			case fa < fb:
				return -1, true
			case fa > fb:
				return 1, true
			}
			return 0, true
		}
		return 0, false
	}
	if sa, ok := toText(a); ok {
		if sb, ok := toText(b); ok {
			return strings.Compare(sa, sb), true
		}
		if tb, ok := b.(time.Time); ok {
			if ta, err := time.Parse(time.RFC3339, sa); err == nil {
				return compareTimes(ta, tb), true
			}
		}
		return 0, false
	}
	if ta, ok := a.(time.Time); ok {
		switch tb := b.(type) {
		case time.Time:
			return compareTimes(ta, tb), true
		case string:
			if parsed, err := time.Parse(time.RFC3339, tb); err == nil {
				return compareTimes(ta, parsed), true
			}
		}
		return 0, false
	}
	if ba, ok := a.(bool); ok {
		if bb, ok := b.(bool); ok {
			switch {
			case ba == bb:
				return 0, true
			case !ba:
				return -1, true
			}
			return 1, true
		}
	}
	return 0, false
}

func compareTimes(a, b time.Time) int {
	switch {
	case a.Before(b):
		return -1
	case a.After(b):
		return 1
	}
	return 0
}

// valuesEqual treats numbers of any width, and ID vs string, as equal when their values match.
func valuesEqual(a, b interface{}) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if c, ok := compareValues(a, b); ok {
		return c == 0
	}
	switch av := a.(type) {
	case []interface{}:
		bv, ok := b.([]interface{})
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !valuesEqual(av[i], bv[i]) {
				return false
			}
		}
		return true
	case map[string]interface{}:
		bv, ok := b.(map[string]interface{})
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, v := range av {
			if !valuesEqual(v, bv[k]) {
				return false
			}
		}
		return true
	}
	return reflect.DeepEqual(a, b)
}

// sortRank orders values of different families the way the document database does:
// null < numbers < strings < objects < arrays < bool < dates.
func sortRank(v interface{}) int {
	if v == nil {
		return 0
	}
	if _, ok := toFloat(v); ok {
		return 1
	}
	switch v.(type) {
	case string, ID:
		return 2
	case map[string]interface{}:
		return 3
	case []interface{}:
		return 4
	case bool:
		return 5
	case time.Time:
		return 6
	}
	return 7
}

func orderValues(a, b interface{}) int {
	if c, ok := compareValues(a, b); ok {
		return c
	}
	ra, rb := sortRank(a), sortRank(b)
	switch {
	case ra < rb:
		return -1
	case ra > rb:
		return 1
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

// lookup resolves a dotted path; array segments accept numeric indexes.
func lookup(doc map[string]interface{}, path string) (interface{}, bool) {
	var cur interface{} = doc
	for _, part := range strings.Split(path, ".") {
		switch node := cur.(type) {
		case map[string]interface{}:
			v, ok := node[part]
			if !ok {
				return nil, false
			}
			cur = v
		case []interface{}:
			idx := -1
			if _, err := fmt.Sscanf(part, "%d", &idx); err != nil || idx < 0 || idx >= len(node) {
				return nil, false
			}
			cur = node[idx]
		default:
			return nil, false
		}
	}
	return cur, true
}

func setPath(doc map[string]interface{}, path string, value interface{}) {
	parts := strings.Split(path, ".")
	cur := doc
	for _, part := range parts[:len(parts)-1] {
		next, ok := cur[part].(map[string]interface{})
		if !ok {
			next = make(map[string]interface{})
			cur[part] = next
		}
		cur = next
	}
	cur[parts[len(parts)-1]] = value
}

// cloneValue deep-copies maps and slices so callers cannot mutate stored documents.
func cloneValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			out[k] = cloneValue(val)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, val := range t {
			out[i] = cloneValue(val)
		}
		return out
	}
	return v
}

func cloneDocument(doc Document) Document {
	return cloneValue(doc).(map[string]interface{})
}

// SortDocuments applies a multi-key sort in place.
func SortDocuments(docs []Document, fields []SortField) {
	if len(fields) == 0 {
		return
	}
	sort.SliceStable(docs, func(i, j int) bool {
		for _, f := range fields {
			a, _ := lookup(docs[i], f.Field)
			b, _ := lookup(docs[j], f.Field)
			c := orderValues(a, b)
			if c == 0 {
				continue
			}
			if f.Descending {
				return c > 0
			}
			return c < 0
		}
		return false
	})
}

// SortSpec turns a {field: 1|-1} map into sort fields. Keys are taken in
// lexical order because map order carries no meaning.
func SortSpec(spec map[string]interface{}) ([]SortField, error) {
	keys := make([]string, 0, len(spec))
	for k := range spec {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fields := make([]SortField, 0, len(keys))
	for _, k := range keys {
		dir, err := sortDirection(spec[k])
		if err != nil {
			return nil, fmt.Errorf("sort %s: %w", k, err)
		}
		fields = append(fields, SortField{Field: k, Descending: dir < 0})
	}
	return fields, nil
}

func sortDirection(v interface{}) (int, error) {
	if f, ok := toFloat(v); ok {
		if f < 0 {
			return -1, nil
		}
		return 1, nil
	}
	if s, ok := v.(string); ok {
		switch strings.ToLower(s) {
		case "asc", "ascending":
			return 1, nil
		case "desc", "descending":
			return -1, nil
		}
	}
	return 0, fmt.Errorf("direction must be 1, -1, \"asc\" or \"desc\"")
}
