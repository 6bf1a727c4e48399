package harness

import (
	"fmt"
	"strings"
)

// AssertionError is returned when an assertion fails. It carries the full
// trace so failures are debuggable from the message alone.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Trace    []TraceEvent
}

func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	fmt.Fprintf(&buf, "\nFull trace:\n")
	for i, event := range e.Trace {
		if event.Type == "invocation" {
			fmt.Fprintf(&buf, "  [%d] %s %v\n", i+1, event.Op, event.Args)
		}
	}
	return buf.String()
}

// EvaluateAssertions runs every assertion against the result and returns
// the failure messages.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var failures []string
	for i, assertion := range assertions {
		var err error
		switch assertion.Type {
		case AssertTraceContains:
			err = assertTraceContains(result.Trace, assertion)
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, assertion)
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, assertion)
		case AssertFinalState:
			err = assertFinalState(result.State, assertion)
		default:
			err = fmt.Errorf("unknown assertion type %q", assertion.Type)
		}
		if err != nil {
			failures = append(failures, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return failures
}

// assertTraceContains checks that the trace has an invocation of the op
// with matching args (subset semantics).
func assertTraceContains(trace []TraceEvent, assertion Assertion) error {
	for _, event := range trace {
		if event.Type == "invocation" && event.Op == assertion.Op {
			if matchFields(event.Args, assertion.Args) {
				return nil
			}
		}
	}
	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: fmt.Sprintf("op %s with args %v", assertion.Op, assertion.Args),
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceOrder checks that ops appear in the given order. Intervening
// ops are allowed.
func assertTraceOrder(trace []TraceEvent, assertion Assertion) error {
	positions := make(map[string]int)
	for i, event := range trace {
		if event.Type != "invocation" {
			continue
		}
		for _, op := range assertion.Ops {
			if event.Op == op && positions[op] == 0 {
				positions[op] = i + 1
			}
		}
	}

	for _, op := range assertion.Ops {
		if positions[op] == 0 {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("all ops present: %v", assertion.Ops),
				Actual:   fmt.Sprintf("missing op: %s", op),
				Trace:    trace,
			}
		}
	}

	for i := 1; i < len(assertion.Ops); i++ {
		prev, curr := assertion.Ops[i-1], assertion.Ops[i]
		if positions[prev] >= positions[curr] {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("ops in order: %v", assertion.Ops),
				Actual: fmt.Sprintf("%s (pos %d) should be before %s (pos %d)",
					prev, positions[prev], curr, positions[curr]),
				Trace: trace,
			}
		}
	}
	return nil
}

// assertTraceCount checks that the op appears exactly Count times.
func assertTraceCount(trace []TraceEvent, assertion Assertion) error {
	count := 0
	for _, event := range trace {
		if event.Type == "invocation" && event.Op == assertion.Op {
			count++
		}
	}
	if count != assertion.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d occurrences of %s", assertion.Count, assertion.Op),
			Actual:   fmt.Sprintf("%d occurrences", count),
			Trace:    trace,
		}
	}
	return nil
}

// assertFinalState checks that exactly one row of the table matches the
// Where filter and that the row carries the expected values (subset
// semantics).
func assertFinalState(state map[string][]map[string]any, assertion Assertion) error {
	table, ok := state[assertion.Table]
	if !ok {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("state table %q", assertion.Table),
			Actual:   fmt.Sprintf("unknown table (have %v)", tableNames(state)),
		}
	}

	var matched []map[string]any
	for _, row := range table {
		if matchFields(row, assertion.Where) {
			matched = append(matched, row)
		}
	}

	if len(matched) == 0 {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("row in %s where %v", assertion.Table, assertion.Where),
			Actual:   "row not found",
		}
	}
	if len(matched) > 1 {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("exactly one row in %s where %v", assertion.Table, assertion.Where),
			Actual:   fmt.Sprintf("%d rows matched (assertion is ambiguous)", len(matched)),
		}
	}

	row := matched[0]
	for key, expected := range assertion.Expect {
		actual, exists := row[key]
		if !exists {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("field %q to exist", key),
				Actual:   fmt.Sprintf("row has fields %v", fieldNames(row)),
			}
		}
		if !valuesEqual(actual, expected) {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("field %q = %v", key, expected),
				Actual:   fmt.Sprintf("field %q = %v", key, actual),
			}
		}
	}
	return nil
}

// matchFields reports whether every expected field matches the actual map
// (subset semantics). A nil or empty expectation always matches.
func matchFields(actual map[string]any, expected map[string]any) bool {
	for key, want := range expected {
		got, exists := actual[key]
		if !exists || !valuesEqual(got, want) {
			return false
		}
	}
	return true
}

// valuesEqual compares values across the numeric types YAML and Go produce
// for the same literal.
func valuesEqual(actual, expected any) bool {
	an, aok := asFloat(actual)
	en, eok := asFloat(expected)
	if aok || eok {
		return aok && eok && an == en
	}
	return fmt.Sprintf("%v", actual) == fmt.Sprintf("%v", expected)
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

func tableNames(state map[string][]map[string]any) []string {
	names := make([]string, 0, len(state))
	for name := range state {
		names = append(names, name)
	}
	return names
}

func fieldNames(row map[string]any) []string {
	names := make([]string, 0, len(row))
	for name := range row {
		names = append(names, name)
	}
	return names
}
