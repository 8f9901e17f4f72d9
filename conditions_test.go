package authz

import "testing"

func TestEvalConditionOperators(t *testing.T) {
	reqCtx := map[string]any{
		"department": "engineering",
		"tags":       []string{"internal", "draft"},
		"level":      5,
		"ratio":      0.75,
		"isPublic":   true,
	}

	cases := []struct {
		name string
		cond Condition
		want bool
	}{
		{"equals string", Condition{Field: "department", Operator: OpEquals, Value: "engineering"}, true},
		{"equals mismatch", Condition{Field: "department", Operator: OpEquals, Value: "sales"}, false},
		{"equals bool", Condition{Field: "isPublic", Operator: OpEquals, Value: true}, true},
		{"notEquals", Condition{Field: "department", Operator: OpNotEquals, Value: "sales"}, true},
		{"contains substring", Condition{Field: "department", Operator: OpContains, Value: "gineer"}, true},
		{"contains slice member", Condition{Field: "tags", Operator: OpContains, Value: "draft"}, true},
		{"contains absent member", Condition{Field: "tags", Operator: OpContains, Value: "final"}, false},
		{"in list", Condition{Field: "department", Operator: OpIn, Value: []any{"sales", "engineering"}}, true},
		{"in absent", Condition{Field: "department", Operator: OpIn, Value: []any{"sales"}}, false},
		{"gt int", Condition{Field: "level", Operator: OpGt, Value: 3}, true},
		{"gt equal is false", Condition{Field: "level", Operator: OpGt, Value: 5}, false},
		{"lt float", Condition{Field: "ratio", Operator: OpLt, Value: 1.0}, true},
		{"unknown operator", Condition{Field: "level", Operator: "matches", Value: 5}, false},
		{"missing field", Condition{Field: "absent", Operator: OpEquals, Value: "x"}, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := evalCondition(&c.cond, reqCtx); got != c.want {
				t.Fatalf("got %v, want %v", got, c.want)
			}
		})
	}
}

func TestEvalConditionsAndSemantics(t *testing.T) {
	reqCtx := map[string]any{"a": 1, "b": 2}
	conds := []Condition{
		{Field: "a", Operator: OpEquals, Value: 1},
		{Field: "b", Operator: OpEquals, Value: 2},
	}
	if !evalConditions(conds, reqCtx) {
		t.Fatalf("all conditions hold, want true")
	}
	conds[1].Value = 3
	if evalConditions(conds, reqCtx) {
		t.Fatalf("one failing condition should fail the set")
	}
	if !evalConditions(nil, nil) {
		t.Fatalf("empty condition set passes")
	}
}

func TestCompareMixedNumerics(t *testing.T) {
	if compare(5, 5.0) != 0 {
		t.Fatalf("int and float of equal value should compare equal")
	}
	if compare(int64(7), 3) <= 0 {
		t.Fatalf("7 > 3")
	}
	if compare("x", 1) != -1 {
		t.Fatalf("incomparable types report -1")
	}
}
