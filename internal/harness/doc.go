// Package harness provides conformance testing for the auction lifecycle.
//
// The harness executes YAML scenarios against the real document store,
// charge ledger, and a scripted payment gateway, then validates the
// resulting trace and final state.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	config:
//	  mode: auto
//	  minimum_bid: 50
//	  increment: 5
//	flow:
//	  - op: period.open
//	    args: { issue: 42 }
//	  - op: bid.submit
//	    args: { bidder: alice, amount: 55, comment_id: 1001 }
//	    expect:
//	      case: Success
//	      result: { status: approved }
//	  - op: period.close
//	    args: {}
//	assertions:
//	  - type: trace_contains
//	    op: period.close
//	  - type: final_state
//	    table: bids
//	    where: { comment_id: 1001 }
//	    expect: { status: approved }
//
// # Operations
//
// The flow steps drive the same transitions the CLI does:
//
//   - period.open: open a bidding period against an issue
//   - bid.submit: validate and record a bid
//   - approval.process: apply an owner reaction to a pending bid
//   - period.close: select the winner and charge them
//   - payment.link: mark a bidder's payment method as linked
//   - enforcement.run: disqualify bidders past the grace deadline
//   - clock.advance: move the harness clock forward by hours
//   - gateway.decline: script the gateway to decline a bidder's charge
//   - gateway.outage: script the gateway to fail the next call
//
// # Assertion Types
//
//   - trace_contains: an operation appears in the trace with matching args
//   - trace_order: operations appear in the specified order
//   - trace_count: an operation appears exactly N times
//   - final_state: a state table row matches expected values
//
// Final state is exposed as three tables: "bids" (rows across the current
// and archived periods), "bidders" (the registry), and "charges" (the
// ledger).
//
// # Deterministic Testing
//
// Every scenario runs in a fresh temp directory with a clock pinned to a
// fixed epoch, so period IDs, grace deadlines, and traces are identical
// across runs and suitable for golden file comparison.
package harness
