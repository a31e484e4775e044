package docstore

import (
	"fmt"
	"sort"
	"strings"
)

// RunPipeline evaluates the supported aggregation stages over in-memory documents.
func RunPipeline(docs []Document, pipeline []Document) ([]Document, error) {
	if err := CheckPipeline(pipeline); err != nil {
		return nil, err
	}

	cur := docs
	for i, stage := range pipeline {
		if len(stage) != 1 {
			return nil, fmt.Errorf("stage %d must have exactly one operator", i)
		}
		for op, spec := range stage {
			var err error
			cur, err = applyStage(cur, op, spec)
			if err != nil {
				return nil, fmt.Errorf("stage %d (%s): %w", i, op, err)
			}
		}
	}
	return cur, nil
}

func applyStage(docs []Document, op string, spec interface{}) ([]Document, error) {
	switch op {
	case "$match":
		filter, ok := spec.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("expects a filter document")
		}
		out := make([]Document, 0, len(docs))
		for _, d := range docs {
			ok, err := Match(d, filter)
			if err != nil {
				return nil, err
			}
			if ok {
				out = append(out, d)
			}
		}
		return out, nil

	case "$sort":
		m, ok := spec.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("expects a sort document")
		}
		fields, err := SortSpec(m)
		if err != nil {
			return nil, err
		}
		out := append([]Document(nil), docs...)
		SortDocuments(out, fields)
		return out, nil

	case "$limit", "$skip":
		n, ok := toFloat(spec)
		if !ok || n < 0 {
			return nil, fmt.Errorf("expects a non-negative number")
		}
		return window(docs, op == "$skip", int(n)), nil

	case "$count":
		name, ok := spec.(string)
		if !ok || name == "" {
			return nil, fmt.Errorf("expects a field name")
		}
		if len(docs) == 0 {
			return []Document{}, nil
		}
		return []Document{{name: int64(len(docs))}}, nil

	case "$project":
		m, ok := spec.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("expects a projection document")
		}
		out := make([]Document, 0, len(docs))
		for _, d := range docs {
			p, err := project(d, m)
			if err != nil {
				return nil, err
			}
			out = append(out, p)
		}
		return out, nil

	case "$unwind":
		path, ok := spec.(string)
		if !ok {
			if m, isMap := spec.(map[string]interface{}); isMap {
				path, ok = m["path"].(string)
			}
		}
		if !ok || !strings.HasPrefix(path, "$") {
			return nil, fmt.Errorf("expects a $field path")
		}
		return unwind(docs, strings.TrimPrefix(path, "$")), nil

	case "$group":
		m, ok := spec.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("expects a group document")
		}
		return group(docs, m)
	}
	return nil, fmt.Errorf("unsupported stage")
}

func window(docs []Document, skip bool, n int) []Document {
	if skip {
		if n >= len(docs) {
			return []Document{}
		}
		return docs[n:]
	}
	if n == 0 || n >= len(docs) {
		return docs
	}
	return docs[:n]
}

func unwind(docs []Document, path string) []Document {
	var out []Document
	for _, d := range docs {
		v, ok := lookup(d, path)
		arr, isArr := v.([]interface{})
		if !ok || !isArr {
			if ok && v != nil {
				out = append(out, d)
			}
			continue
		}
		for _, el := range arr {
			cp := cloneDocument(d)
			setPath(cp, path, el)
			out = append(out, cp)
		}
	}
	if out == nil {
		return []Document{}
	}
	return out
}

// evalExpr resolves "$field" references and passes literals through.
func evalExpr(doc Document, expr interface{}) (interface{}, error) {
	switch e := expr.(type) {
	case string:
		if strings.HasPrefix(e, "$") {
			v, _ := lookup(doc, strings.TrimPrefix(e, "$"))
			return v, nil
		}
		return e, nil
	case map[string]interface{}:
		if ops, ok := isOperatorMap(e); ok {
			return evalOperatorExpr(doc, ops)
		}
		out := make(map[string]interface{}, len(e))
		for k, sub := range e {
			v, err := evalExpr(doc, sub)
			if err != nil {
				return nil, err
			}
			out[k] = v
		}
		return out, nil
	}
	return expr, nil
}

func evalOperatorExpr(doc Document, ops map[string]interface{}) (interface{}, error) {
	if len(ops) != 1 {
		return nil, fmt.Errorf("expression objects take exactly one operator")
	}
	for op, arg := range ops {
		args, ok := arg.([]interface{})
		if !ok {
			args = []interface{}{arg}
		}
		vals := make([]float64, 0, len(args))
		for _, a := range args {
			v, err := evalExpr(doc, a)
			if err != nil {
				return nil, err
			}
			f, ok := toFloat(v)
			if !ok {
				return nil, nil
			}
			vals = append(vals, f)
		}
		if len(vals) == 0 {
			return nil, fmt.Errorf("%s needs at least one argument", op)
		}
		switch op {
		case "$add", "$multiply":
			acc := vals[0]
			for _, v := range vals[1:] {
				if op == "$add" {
					acc += v
				} else {
					acc *= v
				}
			}
			return acc, nil
		case "$subtract", "$divide":
			if len(vals) != 2 {
				return nil, fmt.Errorf("%s takes two arguments", op)
			}
			if op == "$subtract" {
				return vals[0] - vals[1], nil
			}
			if vals[1] == 0 {
				return nil, fmt.Errorf("division by zero")
			}
			return vals[0] / vals[1], nil
		}
		return nil, fmt.Errorf("unsupported expression operator %s", op)
	}
	return nil, nil
}

func project(doc Document, spec map[string]interface{}) (Document, error) {
	inclusion := false
	for k, v := range spec {
		if k == "_id" {
			continue
		}
		if f, ok := toFloat(v); ok && f == 0 {
			continue
		}
		if b, ok := v.(bool); ok && !b {
			continue
		}
		inclusion = true
	}

	if !inclusion {
		out := cloneDocument(doc)
		for k := range spec {
			delete(out, k)
		}
		return out, nil
	}

	out := make(Document, len(spec)+1)
	if id, ok := doc["_id"]; ok {
		out["_id"] = id
	}
	for k, v := range spec {
		switch {
		case isFalsy(v):
			delete(out, k)
		case isTruthy(v):
			if val, ok := lookup(doc, k); ok {
				setPath(out, k, cloneValue(val))
			}
		default:
			val, err := evalExpr(doc, v)
			if err != nil {
				return nil, err
			}
			out[k] = val
		}
	}
	return out, nil
}

func isFalsy(v interface{}) bool {
	if f, ok := toFloat(v); ok {
		return f == 0
	}
	b, ok := v.(bool)
	return ok && !b
}

func isTruthy(v interface{}) bool {
	if f, ok := toFloat(v); ok {
		return f != 0
	}
	b, ok := v.(bool)
	return ok && b
}

type accumulator struct {
	op    string
	sum   float64
	count int64
	best  interface{}
	list  []interface{}
	set   bool
}

func (a *accumulator) add(v interface{}) {
	switch a.op {
	case "$sum", "$avg":
		if f, ok := toFloat(v); ok {
			a.sum += f
			a.count++
		}
	case "$count":
		a.count++
	case "$min", "$max":
		if v == nil {
			return
		}
		if !a.set {
			a.best, a.set = v, true
			return
		}
		c := orderValues(v, a.best)
		if (a.op == "$min" && c < 0) || (a.op == "$max" && c > 0) {
			a.best = v
		}
	case "$first":
		if !a.set {
			a.best, a.set = v, true
		}
	case "$last":
		a.best, a.set = v, true
	case "$push":
		a.list = append(a.list, v)
	case "$addToSet":
		for _, existing := range a.list {
			if valuesEqual(existing, v) {
				return
			}
		}
		a.list = append(a.list, v)
	}
}

func (a *accumulator) result() interface{} {
	switch a.op {
	case "$sum":
		return integralIfPossible(a.sum)
	case "$count":
		return a.count
	case "$avg":
		if a.count == 0 {
			return nil
		}
		return a.sum / float64(a.count)
	case "$push", "$addToSet":
		if a.list == nil {
			return []interface{}{}
		}
		return a.list
	}
	return a.best
}

func integralIfPossible(f float64) interface{} {
	if f == float64(int64(f)) {
		return int64(f)
	}
	return f
}

type groupSpec struct {
	field string
	op    string
	expr  interface{}
}

func group(docs []Document, spec map[string]interface{}) ([]Document, error) {
	idExpr, ok := spec["_id"]
	if !ok {
		return nil, fmt.Errorf("_id is required")
	}

	var specs []groupSpec
	for field, raw := range spec {
		if field == "_id" {
			continue
		}
		accMap, ok := raw.(map[string]interface{})
		if !ok || len(accMap) != 1 {
			return nil, fmt.Errorf("field %s must be a single accumulator", field)
		}
		for op, expr := range accMap {
			switch op {
			case "$sum", "$avg", "$min", "$max", "$count", "$first", "$last", "$push", "$addToSet":
			default:
				return nil, fmt.Errorf("unsupported accumulator %s", op)
			}
			specs = append(specs, groupSpec{field: field, op: op, expr: expr})
		}
	}
	sort.Slice(specs, func(i, j int) bool { return specs[i].field < specs[j].field })

	type bucket struct {
		key  interface{}
		accs []*accumulator
	}
	var buckets []*bucket

	for _, d := range docs {
		key, err := evalExpr(d, idExpr)
		if err != nil {
			return nil, err
		}
		var b *bucket
		for _, existing := range buckets {
			if valuesEqual(existing.key, key) {
				b = existing
				break
			}
		}
		if b == nil {
			b = &bucket{key: key}
			for _, s := range specs {
				b.accs = append(b.accs, &accumulator{op: s.op})
			}
			buckets = append(buckets, b)
		}
		for i, s := range specs {
			v, err := evalExpr(d, s.expr)
			if err != nil {
				return nil, err
			}
			b.accs[i].add(v)
		}
	}

	out := make([]Document, 0, len(buckets))
	for _, b := range buckets {
		d := Document{"_id": b.key}
		for i, s := range specs {
			d[s.field] = b.accs[i].result()
		}
		out = append(out, d)
	}
	return out, nil
}
