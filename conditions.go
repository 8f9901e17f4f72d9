package authz

import "strings"

// evalConditions applies AND semantics: every condition must hold against
// the request context. An empty list always passes.
func evalConditions(conds []Condition, reqCtx map[string]any) bool {
	for i := range conds {
		if !evalCondition(&conds[i], reqCtx) {
			return false
		}
	}
	return true
}

func evalCondition(c *Condition, reqCtx map[string]any) bool {
	var val any
	if reqCtx != nil {
		val = reqCtx[c.Field]
	}
	switch c.Operator {
	case OpEquals:
		return compare(val, c.Value) == 0
	case OpNotEquals:
		return compare(val, c.Value) != 0
	case OpContains:
		return containsValue(val, c.Value)
	case OpIn:
		return inValues(val, c.Value)
	case OpGt:
		return numericCompare(val, c.Value) > 0
	case OpLt:
		return numericCompare(val, c.Value) < 0
	}
	// unknown operator never matches
	return false
}

// containsValue handles string substring checks and membership in slices.
func containsValue(haystack, needle any) bool {
	switch h := haystack.(type) {
	case string:
		if n, ok := needle.(string); ok {
			return strings.Contains(h, n)
		}
	case []string:
		for _, item := range h {
			if compare(item, needle) == 0 {
				return true
			}
		}
	case []any:
		for _, item := range h {
			if compare(item, needle) == 0 {
				return true
			}
		}
	}
	return false
}

// inValues checks whether val is one of the values listed by the condition.
func inValues(val, set any) bool {
	switch s := set.(type) {
	case []any:
		for _, item := range s {
			if compare(val, item) == 0 {
				return true
			}
		}
	case []string:
		for _, item := range s {
			if compare(val, item) == 0 {
				return true
			}
		}
	}
	return false
}

// compare returns 0 when a and b are equal, -1/1 for ordered mismatches.
// Mixed or unsupported types compare as -1 (never equal).
func compare(a, b any) int {
	switch av := a.(type) {
	case string:
		if bv, ok := b.(string); ok {
			switch {
			case av == bv:
				return 0
			case av < bv:
				return -1
			default:
				return 1
			}
		}
	case bool:
		if bv, ok := b.(bool); ok {
			if av == bv {
				return 0
			}
			return -1
		}
	case int:
		if bf, ok := toFloat(b); ok {
			return cmpFloat(float64(av), bf)
		}
	case int64:
		if bf, ok := toFloat(b); ok {
			return cmpFloat(float64(av), bf)
		}
	case float64:
		if bf, ok := toFloat(b); ok {
			return cmpFloat(av, bf)
		}
	}
	return -1
}

// numericCompare is like compare but only meaningful for numbers; any
// non-numeric operand yields 0 so gt/lt both fail.
func numericCompare(a, b any) int {
	af, okA := toFloat(a)
	bf, okB := toFloat(b)
	if !okA || !okB {
		return 0
	}
	return cmpFloat(af, bf)
}

func cmpFloat(a, b float64) int {
	switch {
	case a == b:
		return 0
	case a < b:
		return -1
	default:
		return 1
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}
