package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleTrace() []TraceEvent {
	return []TraceEvent{
		{Type: "invocation", Op: OpOpen, Args: map[string]any{"issue": 42}, Seq: 1},
		{Type: "completion", OutputCase: "Success", Seq: 2},
		{Type: "invocation", Op: OpBid, Args: map[string]any{"bidder": "alice", "amount": 55}, Seq: 3},
		{Type: "completion", OutputCase: "Success", Seq: 4},
		{Type: "invocation", Op: OpBid, Args: map[string]any{"bidder": "bob", "amount": 60}, Seq: 5},
		{Type: "completion", OutputCase: "Success", Seq: 6},
		{Type: "invocation", Op: OpClose, Seq: 7},
		{Type: "completion", OutputCase: "Success", Seq: 8},
	}
}

func TestAssertTraceContains(t *testing.T) {
	trace := sampleTrace()

	assert.NoError(t, assertTraceContains(trace, Assertion{Op: OpOpen}))
	assert.NoError(t, assertTraceContains(trace, Assertion{
		Op:   OpBid,
		Args: map[string]any{"bidder": "bob"}, // subset of the full args
	}))

	err := assertTraceContains(trace, Assertion{
		Op:   OpBid,
		Args: map[string]any{"bidder": "carol"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found in trace")
}

func TestAssertTraceOrder(t *testing.T) {
	trace := sampleTrace()

	assert.NoError(t, assertTraceOrder(trace, Assertion{Ops: []string{OpOpen, OpBid, OpClose}}))

	err := assertTraceOrder(trace, Assertion{Ops: []string{OpClose, OpOpen}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "should be before")

	err = assertTraceOrder(trace, Assertion{Ops: []string{OpOpen, OpEnforce}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing op")
}

func TestAssertTraceCount(t *testing.T) {
	trace := sampleTrace()

	assert.NoError(t, assertTraceCount(trace, Assertion{Op: OpBid, Count: 2}))

	err := assertTraceCount(trace, Assertion{Op: OpBid, Count: 3})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2 occurrences")
}

func TestAssertFinalState(t *testing.T) {
	state := map[string][]map[string]any{
		"bids": {
			{"comment_id": int64(1001), "bidder": "alice", "status": "approved"},
			{"comment_id": int64(1002), "bidder": "bob", "status": "rejected"},
		},
	}

	assert.NoError(t, assertFinalState(state, Assertion{
		Table:  "bids",
		Where:  map[string]any{"comment_id": 1002}, // YAML int matches int64 row value
		Expect: map[string]any{"status": "rejected"},
	}))

	err := assertFinalState(state, Assertion{
		Table:  "bids",
		Where:  map[string]any{"comment_id": 1001},
		Expect: map[string]any{"status": "rejected"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"status" = rejected`)

	err = assertFinalState(state, Assertion{
		Table:  "bids",
		Where:  map[string]any{"comment_id": 9999},
		Expect: map[string]any{"status": "approved"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "row not found")

	err = assertFinalState(state, Assertion{
		Table:  "bids",
		Expect: map[string]any{"status": "approved"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ambiguous")

	err = assertFinalState(state, Assertion{
		Table:  "charges",
		Expect: map[string]any{"status": "succeeded"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown table")
}

func TestValuesEqualAcrossNumericTypes(t *testing.T) {
	assert.True(t, valuesEqual(int64(60), 60))
	assert.True(t, valuesEqual(60, float64(60)))
	assert.True(t, valuesEqual("approved", "approved"))
	assert.True(t, valuesEqual(true, true))
	assert.False(t, valuesEqual(int64(60), 61))
	assert.False(t, valuesEqual("60", 60))
}

func TestEvaluateAssertions(t *testing.T) {
	result := NewResult()
	result.Trace = sampleTrace()
	result.State = map[string][]map[string]any{
		"bidders": {{"github_username": "alice", "payment_linked": true}},
	}

	failures := EvaluateAssertions(result, []Assertion{
		{Type: AssertTraceContains, Op: OpOpen},
		{Type: AssertTraceCount, Op: OpClose, Count: 1},
		{Type: AssertFinalState, Table: "bidders",
			Where:  map[string]any{"github_username": "alice"},
			Expect: map[string]any{"payment_linked": true}},
	})
	assert.Empty(t, failures)

	failures = EvaluateAssertions(result, []Assertion{
		{Type: AssertTraceCount, Op: OpClose, Count: 5},
		{Type: AssertTraceContains, Op: OpEnforce},
	})
	assert.Len(t, failures, 2)
}
