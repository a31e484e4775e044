package sandbox

import (
	"fmt"
	"math"
	"time"

	lua "github.com/yuin/gopher-lua"

	"nlquery-agent/internal/docstore"
)

const (
	maxDepth        = 32
	objectIDTypeKey = "ObjectId"
	maxExactInteger = 1 << 53
	maxStringBytes  = 1 << 20
)

// toLua converts store values into Lua values. Identifiers become ObjectId
// userdata and timestamps become RFC3339 strings.
func toLua(L *lua.LState, v interface{}) lua.LValue {
	switch t := v.(type) {
	case nil:
		return lua.LNil
	case bool:
		return lua.LBool(t)
	case string:
		if len(t) > maxStringBytes {
			L.RaiseError("string value of %d bytes exceeds the %d byte limit", len(t), maxStringBytes)
		}
		return lua.LString(t)
	case docstore.ID:
		return newObjectID(L, t)
	case time.Time:
		return lua.LString(t.UTC().Format(time.RFC3339))
	case map[string]interface{}:
		tbl := L.CreateTable(0, len(t))
		for k, val := range t {
			tbl.RawSetString(k, toLua(L, val))
		}
		return tbl
	case []interface{}:
		tbl := L.CreateTable(len(t), 0)
		for _, val := range t {
			tbl.Append(toLua(L, val))
		}
		return tbl
	case []docstore.Document:
		tbl := L.CreateTable(len(t), 0)
		for _, d := range t {
			tbl.Append(toLua(L, d))
		}
		return tbl
	case []string:
		tbl := L.CreateTable(len(t), 0)
		for _, s := range t {
			tbl.Append(lua.LString(s))
		}
		return tbl
	}
	if f, ok := number(v); ok {
		return lua.LNumber(f)
	}
	return lua.LString(fmt.Sprint(v))
}

func number(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
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

// fromLua converts a Lua value into plain Go values. Array-like tables become
// slices, other tables become maps. Functions and threads are rejected.
func fromLua(v lua.LValue, depth int) (interface{}, error) {
	if depth > maxDepth {
		return nil, fmt.Errorf("value nested deeper than %d levels", maxDepth)
	}
	switch t := v.(type) {
	case *lua.LNilType:
		return nil, nil
	case lua.LBool:
		return bool(t), nil
	case lua.LString:
		if len(t) > maxStringBytes {
			return nil, fmt.Errorf("string value of %d bytes exceeds the %d byte limit", len(t), maxStringBytes)
		}
		return string(t), nil
	case lua.LNumber:
		f := float64(t)
		if f == math.Trunc(f) && math.Abs(f) < maxExactInteger {
			return int64(f), nil
		}
		return f, nil
	case *lua.LUserData:
		if id, ok := t.Value.(docstore.ID); ok {
			return id, nil
		}
		if _, ok := t.Value.(*cursor); ok {
			return nil, fmt.Errorf("cursors must be read with to_list() before they are nested")
		}
		return nil, fmt.Errorf("unsupported userdata value")
	case *lua.LTable:
		return tableValue(t, depth)
	}
	return nil, fmt.Errorf("values of type %s cannot leave the sandbox", v.Type().String())
}

func tableValue(t *lua.LTable, depth int) (interface{}, error) {
	count := 0
	t.ForEach(func(lua.LValue, lua.LValue) { count++ })
	if count == 0 {
		return []interface{}{}, nil
	}

	if n := t.MaxN(); n == count {
		out := make([]interface{}, 0, n)
		for i := 1; i <= n; i++ {
			val, err := fromLua(t.RawGetInt(i), depth+1)
			if err != nil {
				return nil, err
			}
			out = append(out, val)
		}
		return out, nil
	}

	out := make(map[string]interface{}, count)
	var convErr error
	t.ForEach(func(k, val lua.LValue) {
		if convErr != nil {
			return
		}
		var key string
		switch kt := k.(type) {
		case lua.LString:
			key = string(kt)
		case lua.LNumber:
			key = kt.String()
		default:
			convErr = fmt.Errorf("table keys must be strings or numbers, got %s", k.Type().String())
			return
		}
		converted, err := fromLua(val, depth+1)
		if err != nil {
			convErr = err
			return
		}
		out[key] = converted
	})
	if convErr != nil {
		return nil, convErr
	}
	return out, nil
}

// toFilter accepts nil or a table; an empty table is an empty filter.
func toFilter(v lua.LValue) (docstore.Filter, error) {
	if v == lua.LNil {
		return docstore.Filter{}, nil
	}
	if _, ok := v.(*lua.LTable); !ok {
		return nil, fmt.Errorf("filter must be a table, got %s", v.Type().String())
	}
	raw, err := fromLua(v, 0)
	if err != nil {
		return nil, err
	}
	switch f := raw.(type) {
	case map[string]interface{}:
		return f, nil
	case []interface{}:
		if len(f) == 0 {
			return docstore.Filter{}, nil
		}
	}
	return nil, fmt.Errorf("filter must be a table of field conditions")
}

// toSort accepts {field = -1}, {{"field", -1}, ...} or a field name with a direction.
func toSort(spec lua.LValue, dir lua.LValue) ([]docstore.SortField, error) {
	if name, ok := spec.(lua.LString); ok {
		desc := false
		if n, isNum := dir.(lua.LNumber); isNum {
			desc = n < 0
		} else if s, isStr := dir.(lua.LString); isStr {
			desc = s == "desc" || s == "descending"
		}
		return []docstore.SortField{{Field: string(name), Descending: desc}}, nil
	}

	raw, err := fromLua(spec, 0)
	if err != nil {
		return nil, err
	}
	switch s := raw.(type) {
	case map[string]interface{}:
		return docstore.SortSpec(s)
	case []interface{}:
		fields := make([]docstore.SortField, 0, len(s))
		for _, item := range s {
			pair, ok := item.([]interface{})
			if !ok || len(pair) != 2 {
				return nil, fmt.Errorf("sort pairs must be {field, direction}")
			}
			name, ok := pair[0].(string)
			if !ok {
				return nil, fmt.Errorf("sort field must be a string")
			}
			parsed, err := docstore.SortSpec(map[string]interface{}{name: pair[1]})
			if err != nil {
				return nil, err
			}
			fields = append(fields, parsed...)
		}
		return fields, nil
	}
	return nil, fmt.Errorf("unsupported sort specification")
}

func documentsToValues(docs []docstore.Document) []interface{} {
	out := make([]interface{}, len(docs))
	for i, d := range docs {
		out[i] = d
	}
	return out
}
