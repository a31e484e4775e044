package docstore

import (
	"fmt"
	"regexp"
	"strings"
)

// Match evaluates a filter against a document.
func Match(doc Document, filter Filter) (bool, error) {
	for key, cond := range filter {
		var (
			ok  bool
			err error
		)
		switch key {
		case "$and":
			ok, err = matchAll(doc, cond)
		case "$or":
			ok, err = matchAny(doc, cond)
		case "$nor":
			ok, err = matchAny(doc, cond)
			ok = !ok
		default:
			if strings.HasPrefix(key, "$") {
				return false, fmt.Errorf("unsupported top-level operator %s", key)
			}
			ok, err = matchField(doc, key, cond)
		}
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func subFilters(cond interface{}) ([]Filter, error) {
	list, ok := cond.([]interface{})
	if !ok {
		return nil, fmt.Errorf("logical operator expects an array of filters")
	}
	out := make([]Filter, 0, len(list))
	for _, item := range list {
		f, ok := item.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("logical operator expects an array of filters")
		}
		out = append(out, f)
	}
	return out, nil
}

func matchAll(doc Document, cond interface{}) (bool, error) {
	filters, err := subFilters(cond)
	if err != nil {
		return false, err
	}
	for _, f := range filters {
		if ok, err := Match(doc, f); err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func matchAny(doc Document, cond interface{}) (bool, error) {
	filters, err := subFilters(cond)
	if err != nil {
		return false, err
	}
	for _, f := range filters {
		ok, err := Match(doc, f)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// isOperatorMap reports whether every key of m is an operator.
func isOperatorMap(v interface{}) (map[string]interface{}, bool) {
	m, ok := v.(map[string]interface{})
	if !ok || len(m) == 0 {
		return nil, false
	}
	for k := range m {
		if !strings.HasPrefix(k, "$") {
			return nil, false
		}
	}
	return m, true
}

func matchField(doc Document, path string, cond interface{}) (bool, error) {
	value, exists := lookup(doc, path)
	ops, isOps := isOperatorMap(cond)
	if !isOps {
		return equalsOrContains(value, cond), nil
	}

	for op, arg := range ops {
		ok, err := applyOperator(value, exists, op, arg, ops)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

// equalsOrContains matches a scalar against a value or against any element of an array value.
func equalsOrContains(value, want interface{}) bool {
	if valuesEqual(value, want) {
		return true
	}
	if arr, ok := value.([]interface{}); ok {
		for _, el := range arr {
			if valuesEqual(el, want) {
				return true
			}
		}
	}
	return false
}

func anyElement(value interface{}, pred func(interface{}) bool) bool {
	if arr, ok := value.([]interface{}); ok {
		for _, el := range arr {
			if pred(el) {
				return true
			}
		}
		return false
	}
	return pred(value)
}

func applyOperator(value interface{}, exists bool, op string, arg interface{}, ops map[string]interface{}) (bool, error) {
	switch op {
	case "$eq":
		return equalsOrContains(value, arg), nil
	case "$ne":
		return !equalsOrContains(value, arg), nil
	case "$gt", "$gte", "$lt", "$lte":
		if !exists {
			return false, nil
		}
		return anyElement(value, func(v interface{}) bool {
			c, ok := compareValues(v, arg)
			if !ok {
				return false
			}
			switch op {
			case "$gt":
				return c > 0
			case "$gte":
				return c >= 0
			case "$lt":
				return c < 0
			}
			return c <= 0
		}), nil
	case "$in", "$nin":
		list, ok := arg.([]interface{})
		if !ok {
			return false, fmt.Errorf("%s expects an array", op)
		}
		found := false
		for _, candidate := range list {
			if equalsOrContains(value, candidate) {
				found = true
				break
			}
		}
		if op == "$in" {
			return found, nil
		}
		return !found, nil
	case "$exists":
		want, _ := arg.(bool)
		if f, ok := toFloat(arg); ok {
			want = f != 0
		}
		return exists == want, nil
	case "$regex":
		options, _ := ops["$options"].(string)
		re, err := compileRegex(arg, options)
		if err != nil {
			return false, err
		}
		return anyElement(value, func(v interface{}) bool {
			s, ok := toText(v)
			return ok && re.MatchString(s)
		}), nil
	case "$options":
		if _, ok := ops["$regex"]; !ok {
			return false, fmt.Errorf("$options requires $regex")
		}
		return true, nil
	case "$size":
		n, ok := toFloat(arg)
		if !ok {
			return false, fmt.Errorf("$size expects a number")
		}
		arr, isArr := value.([]interface{})
		return isArr && len(arr) == int(n), nil
	case "$not":
		inner, ok := isOperatorMap(arg)
		if !ok {
			return false, fmt.Errorf("$not expects an operator expression")
		}
		for innerOp, innerArg := range inner {
			matched, err := applyOperator(value, exists, innerOp, innerArg, inner)
			if err != nil {
				return false, err
			}
			if !matched {
				return true, nil
			}
		}
		return false, nil
	}
	return false, fmt.Errorf("unsupported operator %s", op)
}

func compileRegex(pattern interface{}, options string) (*regexp.Regexp, error) {
	p, ok := pattern.(string)
	if !ok {
		return nil, fmt.Errorf("$regex expects a string")
	}
	flags := ""
	for _, o := range options {
		switch o {
		case 'i', 'm', 's':
			flags += string(o)
		}
	}
	if flags != "" {
		p = "(?" + flags + ")" + p
	}
	re, err := regexp.Compile(p)
	if err != nil {
		return nil, fmt.Errorf("invalid $regex: %w", err)
	}
	return re, nil
}
