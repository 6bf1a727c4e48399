package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/bidme/bidme/internal/config"
)

// Operation names accepted in flow steps.
const (
	OpOpen    = "period.open"
	OpBid     = "bid.submit"
	OpApprove = "approval.process"
	OpClose   = "period.close"
	OpLink    = "payment.link"
	OpEnforce = "enforcement.run"
	OpAdvance = "clock.advance"
	OpDecline = "gateway.decline"
	OpOutage  = "gateway.outage"
)

var knownOps = map[string]bool{
	OpOpen:    true,
	OpBid:     true,
	OpApprove: true,
	OpClose:   true,
	OpLink:    true,
	OpEnforce: true,
	OpAdvance: true,
	OpDecline: true,
	OpOutage:  true,
}

// Scenario defines a lifecycle conformance scenario.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Config overrides the default auction rules for this scenario.
	Config ScenarioConfig `yaml:"config,omitempty"`

	// Flow contains the operations to execute, in order.
	Flow []FlowStep `yaml:"flow"`

	// Assertions validate the final trace and state.
	Assertions []Assertion `yaml:"assertions"`
}

// ScenarioConfig is the subset of auction rules scenarios can override.
// Zero values leave the corresponding default untouched.
type ScenarioConfig struct {
	Mode              string   `yaml:"mode,omitempty"`
	MinimumBid        int64    `yaml:"minimum_bid,omitempty"`
	Increment         int64    `yaml:"increment,omitempty"`
	AllowUnlinkedBids *bool    `yaml:"allow_unlinked_bids,omitempty"`
	GraceHours        float64  `yaml:"grace_hours,omitempty"`
	RequireLinkToBid  bool     `yaml:"require_link_to_bid,omitempty"`
	Prohibited        []string `yaml:"prohibited,omitempty"`
}

func (c ScenarioConfig) apply(cfg config.Config) config.Config {
	if c.Mode != "" {
		cfg.Approval.Mode = c.Mode
	}
	if c.MinimumBid != 0 {
		cfg.Bidding.MinimumBid = c.MinimumBid
	}
	if c.Increment != 0 {
		cfg.Bidding.Increment = c.Increment
	}
	if c.AllowUnlinkedBids != nil {
		cfg.Payment.AllowUnlinkedBids = *c.AllowUnlinkedBids
	}
	if c.GraceHours != 0 {
		cfg.Payment.UnlinkedGraceHours = c.GraceHours
	}
	if c.RequireLinkToBid {
		cfg.Enforcement.RequirePaymentBeforeBid = true
	}
	if len(c.Prohibited) > 0 {
		cfg.Content.Prohibited = c.Prohibited
	}
	return cfg
}

// FlowStep is one operation in the scenario flow.
type FlowStep struct {
	// Op is the operation to execute.
	Op string `yaml:"op"`

	// Args contains the operation arguments.
	Args map[string]any `yaml:"args"`

	// Expect specifies the expected completion. If nil, the completion is
	// recorded but not validated.
	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// ExpectClause specifies the expected completion of a flow step.
type ExpectClause struct {
	// Case is the expected output case: "Success" or an error code such
	// as "AMOUNT_TOO_LOW".
	Case string `yaml:"case"`

	// Result contains expected completion fields. Subset match: only the
	// listed fields are validated.
	Result map[string]any `yaml:"result,omitempty"`
}

// Assertion validates the final trace or state.
type Assertion struct {
	// Type is one of trace_contains, trace_order, trace_count, final_state.
	Type string `yaml:"type"`

	// Op is the operation name (trace_contains, trace_count).
	Op string `yaml:"op,omitempty"`

	// Args are expected invocation arguments, subset matched
	// (trace_contains).
	Args map[string]any `yaml:"args,omitempty"`

	// Ops is the expected operation order (trace_order).
	Ops []string `yaml:"ops,omitempty"`

	// Count is the expected number of occurrences (trace_count).
	Count int `yaml:"count,omitempty"`

	// Table is the state table name (final_state): bids, bidders, charges.
	Table string `yaml:"table,omitempty"`

	// Where filters the table rows, subset matched (final_state).
	Where map[string]any `yaml:"where,omitempty"`

	// Expect contains expected field values for the single matching row
	// (final_state).
	Expect map[string]any `yaml:"expect,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertFinalState    = "final_state"
)

// LoadScenario reads and parses a scenario YAML file. Unknown fields are
// rejected so typos fail loudly instead of silently skipping validation.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario file: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("parse scenario YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, step := range s.Flow {
		if step.Op == "" {
			return fmt.Errorf("flow[%d]: op is required", i)
		}
		if !knownOps[step.Op] {
			return fmt.Errorf("flow[%d]: unknown op %q", i, step.Op)
		}
		if step.Args == nil {
			return fmt.Errorf("flow[%d]: args is required (use empty map if no args)", i)
		}
		if step.Expect != nil && step.Expect.Case == "" {
			return fmt.Errorf("flow[%d].expect: case is required", i)
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}
	return nil
}

func validateAssertion(index int, a *Assertion) error {
	switch a.Type {
	case AssertTraceContains:
		if a.Op == "" {
			return fmt.Errorf("assertions[%d]: op is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Ops) == 0 {
			return fmt.Errorf("assertions[%d]: ops list is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Op == "" {
			return fmt.Errorf("assertions[%d]: op is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertFinalState:
		if a.Table == "" {
			return fmt.Errorf("assertions[%d]: table is required for final_state", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
