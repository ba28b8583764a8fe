package engine

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// The condition grammar is deliberately tiny: the literal token "user_input"
// wherever the live input should be substituted, exactly one comparison
// operator, and JSON literals on both sides. Branching conditions must never
// abort a conversation, so every failure mode evaluates to false.

const inputToken = "user_input"

// operators in longest-match-first order so that "===" wins over "==" and
// "!==" over "!=" at the same position.
var operators = []string{"===", "!==", ">=", "<=", "==", "!=", ">", "<"}

// comparison is the parsed form of a condition expression.
type comparison struct {
	left  interface{}
	op    string
	right interface{}
}

// Evaluate substitutes userInput into expr, parses the expression into
// operand/operator/operand and applies the comparison. Any parse failure or
// missing operator yields false (fail-closed). Deterministic; no side effects.
func Evaluate(expr string, userInput interface{}) bool {
	cmp, err := parseComparison(expr, userInput)
	if err != nil {
		return false
	}
	return cmp.apply()
}

// parseComparison substitutes the input token and splits the expression on the
// first operator occurrence, preferring the longest operator at that position.
func parseComparison(expr string, userInput interface{}) (*comparison, error) {
	inputJSON, err := json.Marshal(userInput)
	if err != nil {
		return nil, fmt.Errorf("condition: serialize input: %w", err)
	}
	substituted := strings.ReplaceAll(expr, inputToken, string(inputJSON))

	idx, op := findOperator(substituted)
	if idx < 0 {
		return nil, fmt.Errorf("condition: no comparison operator in %q", expr)
	}

	left, err := parseOperand(substituted[:idx])
	if err != nil {
		return nil, err
	}
	right, err := parseOperand(substituted[idx+len(op):])
	if err != nil {
		return nil, err
	}
	return &comparison{left: left, op: op, right: right}, nil
}

// findOperator returns the position and value of the first operator in s.
func findOperator(s string) (int, string) {
	for i := 0; i < len(s); i++ {
		for _, op := range operators {
			if strings.HasPrefix(s[i:], op) {
				return i, op
			}
		}
	}
	return -1, ""
}

// parseOperand decodes one side of the comparison as a JSON literal.
func parseOperand(s string) (interface{}, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("condition: empty operand")
	}
	var v interface{}
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, fmt.Errorf("condition: operand %q is not a JSON literal: %w", s, err)
	}
	return v, nil
}

func (c *comparison) apply() bool {
	switch c.op {
	case "==":
		return looseEqual(c.left, c.right)
	case "!=":
		return !looseEqual(c.left, c.right)
	case "===":
		return strictEqual(c.left, c.right)
	case "!==":
		return !strictEqual(c.left, c.right)
	case ">", "<", ">=", "<=":
		return relational(c.left, c.right, c.op)
	}
	return false
}

// strictEqual requires matching types: number/number, string/string,
// bool/bool or null/null. Composite values never compare equal.
func strictEqual(a, b interface{}) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	switch av := a.(type) {
	case float64:
		bv, ok := b.(float64)
		return ok && av == bv
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	}
	return false
}

// looseEqual follows the coercion rules the widget relied on: a numeric
// string equals the number it spells, and booleans coerce to 0/1.
func looseEqual(a, b interface{}) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if strictEqual(a, b) {
		return true
	}
	an, aok := toNumber(a)
	bn, bok := toNumber(b)
	if aok && bok {
		return an == bn
	}
	return false
}

// relational compares two strings lexicographically and everything else
// numerically. Operands that coerce to neither fail closed.
func relational(a, b interface{}, op string) bool {
	as, aIsStr := a.(string)
	bs, bIsStr := b.(string)
	if aIsStr && bIsStr {
		switch op {
		case ">":
			return as > bs
		case "<":
			return as < bs
		case ">=":
			return as >= bs
		case "<=":
			return as <= bs
		}
		return false
	}

	an, aok := toNumber(a)
	bn, bok := toNumber(b)
	if !aok || !bok {
		return false
	}
	switch op {
	case ">":
		return an > bn
	case "<":
		return an < bn
	case ">=":
		return an >= bn
	case "<=":
		return an <= bn
	}
	return false
}

// toNumber coerces scalars the way a loose comparison does: numbers pass
// through, numeric strings parse, booleans map to 0/1.
func toNumber(v interface{}) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, false
		}
		return n, true
	case bool:
		if t {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}
