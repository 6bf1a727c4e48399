package harness

// TraceEvent records one invocation or completion in the scenario trace.
type TraceEvent struct {
	Type       string         `json:"type"` // "invocation" or "completion"
	Op         string         `json:"op,omitempty"`
	Args       map[string]any `json:"args,omitempty"`
	OutputCase string         `json:"output_case,omitempty"`
	Result     map[string]any `json:"result,omitempty"`
	Seq        int64          `json:"seq"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every expect clause and assertion matched.
	Pass bool `json:"pass"`

	// Trace contains all invocations and completions in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains expect and assertion failure messages.
	Errors []string `json:"errors,omitempty"`

	// State holds the final state tables keyed by table name. Each table
	// is a list of rows.
	State map[string][]map[string]any `json:"state,omitempty"`
}

// NewResult creates a passing result to accumulate into.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
		State:  make(map[string][]map[string]any),
	}
}

// AddError records a validation error and marks the result failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddInvocationTrace appends an invocation event.
func (r *Result) AddInvocationTrace(op string, args map[string]any, seq int64) {
	r.Trace = append(r.Trace, TraceEvent{
		Type: "invocation",
		Op:   op,
		Args: args,
		Seq:  seq,
	})
}

// AddCompletionTrace appends a completion event.
func (r *Result) AddCompletionTrace(outputCase string, result map[string]any, seq int64) {
	r.Trace = append(r.Trace, TraceEvent{
		Type:       "completion",
		OutputCase: outputCase,
		Result:     result,
		Seq:        seq,
	})
}
