package harness

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/bidme/bidme/internal/auction"
	"github.com/bidme/bidme/internal/config"
	"github.com/bidme/bidme/internal/payment"
	"github.com/bidme/bidme/internal/registry"
	"github.com/bidme/bidme/internal/store"
	"github.com/bidme/bidme/internal/testutil"
)

// scenarioEpoch pins the harness clock so period IDs, timestamps, and grace
// deadlines are identical across runs.
var scenarioEpoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// scriptedGateway is a deterministic payment.Gateway double. Scenarios
// script declines and outages through the gateway.decline and
// gateway.outage operations.
type scriptedGateway struct {
	declines map[string]bool // bidders whose charges decline
	failNext bool            // next call fails with an API error
	charges  int             // successful charge count, used for charge IDs
}

func newScriptedGateway() *scriptedGateway {
	return &scriptedGateway{declines: make(map[string]bool)}
}

func (g *scriptedGateway) Provider() string { return "scripted" }

func (g *scriptedGateway) CreateCustomer(_ context.Context, email string, _ map[string]string) (*payment.Customer, error) {
	return &payment.Customer{ID: "cus_" + email, Email: email}, nil
}

func (g *scriptedGateway) CreateSetupSession(_ context.Context, customerID string) (*payment.SetupSession, error) {
	return &payment.SetupSession{ID: "ses_" + customerID}, nil
}

func (g *scriptedGateway) Charge(_ context.Context, req payment.ChargeRequest) (*payment.ChargeResult, error) {
	if g.failNext {
		g.failNext = false
		return nil, &payment.Error{
			Code:     payment.ErrCodeAPIError,
			Message:  "scripted outage",
			Provider: g.Provider(),
		}
	}
	if g.declines[req.Metadata["bidder"]] {
		return nil, &payment.Error{
			Code:     payment.ErrCodeDeclined,
			Message:  "scripted decline",
			Provider: g.Provider(),
		}
	}
	g.charges++
	return &payment.ChargeResult{
		ID:       fmt.Sprintf("ch_%03d", g.charges),
		Amount:   req.Amount,
		Currency: req.Currency,
		Status:   "succeeded",
	}, nil
}

func (g *scriptedGateway) GetPaymentMethod(_ context.Context, id string) (*payment.PaymentMethod, error) {
	return &payment.PaymentMethod{ID: id}, nil
}

// Harness executes one scenario against a fresh data directory.
type Harness struct {
	cfg     config.Config
	dataDir string
	clock   *testutil.FixedClock
	gateway *scriptedGateway
	ledger  *store.Ledger

	// closed collects archived periods so final-state assertions can see
	// bids after the current document is reset.
	closed []*auction.PeriodData
	seq    int64
}

// Run executes a scenario and returns its result. Infrastructure failures
// (unreadable documents, ledger errors) are returned as an error; expect
// and assertion mismatches are collected on the result.
func Run(scenario *Scenario) (*Result, error) {
	dataDir, err := os.MkdirTemp("", "bidme-harness-")
	if err != nil {
		return nil, fmt.Errorf("create scenario data dir: %w", err)
	}
	defer os.RemoveAll(dataDir)

	ledger, err := store.OpenLedger(filepath.Join(dataDir, store.LedgerFile))
	if err != nil {
		return nil, fmt.Errorf("open scenario ledger: %w", err)
	}
	defer ledger.Close()

	h := &Harness{
		cfg:     scenario.Config.apply(config.Default()),
		dataDir: dataDir,
		clock:   testutil.NewFixedClock(scenarioEpoch),
		gateway: newScriptedGateway(),
		ledger:  ledger,
	}

	ctx := context.Background()
	result := NewResult()
	for i, step := range scenario.Flow {
		if err := h.executeStep(ctx, i, step, result); err != nil {
			return nil, err
		}
	}

	if err := h.collectState(ctx, result); err != nil {
		return nil, err
	}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

func (h *Harness) executeStep(ctx context.Context, index int, step FlowStep, result *Result) error {
	h.seq++
	result.AddInvocationTrace(step.Op, step.Args, h.seq)

	outputCase, stepResult, err := h.dispatch(ctx, step)
	if err != nil {
		return fmt.Errorf("flow[%d] %s: %w", index, step.Op, err)
	}

	h.seq++
	result.AddCompletionTrace(outputCase, stepResult, h.seq)

	if step.Expect != nil {
		if step.Expect.Case != outputCase {
			result.AddError(fmt.Sprintf("flow[%d] %s: expected case %q, got %q",
				index, step.Op, step.Expect.Case, outputCase))
		} else if !matchFields(stepResult, step.Expect.Result) {
			result.AddError(fmt.Sprintf("flow[%d] %s: expected result %v, got %v",
				index, step.Op, step.Expect.Result, stepResult))
		}
	}
	return nil
}

// dispatch runs one operation. The returned case is "Success" or the typed
// error code of a rejected transition; only infrastructure failures return
// an error.
func (h *Harness) dispatch(ctx context.Context, step FlowStep) (string, map[string]any, error) {
	switch step.Op {
	case OpOpen:
		return h.stepOpen(step.Args)
	case OpBid:
		return h.stepBid(step.Args)
	case OpApprove:
		return h.stepApprove(step.Args)
	case OpClose:
		return h.stepClose(ctx)
	case OpLink:
		return h.stepLink(step.Args)
	case OpEnforce:
		return h.stepEnforce()
	case OpAdvance:
		hours := argFloat(step.Args, "hours")
		h.clock.Advance(time.Duration(hours * float64(time.Hour)))
		return "Success", map[string]any{"hours": hours}, nil
	case OpDecline:
		h.gateway.declines[argString(step.Args, "bidder")] = true
		return "Success", nil, nil
	case OpOutage:
		h.gateway.failNext = true
		return "Success", nil, nil
	default:
		return "", nil, fmt.Errorf("unknown op %q", step.Op)
	}
}

func (h *Harness) stepOpen(args map[string]any) (string, map[string]any, error) {
	current, err := store.LoadPeriod(h.dataDir)
	if err != nil {
		return "", nil, err
	}

	period, err := auction.Open(current, int(argInt(args, "issue")), "", h.cfg, h.clock)
	if err != nil {
		return string(auction.CodeOf(err)), nil, nil
	}
	if err := store.SavePeriod(period, h.dataDir); err != nil {
		return "", nil, err
	}
	return "Success", map[string]any{"period_id": period.PeriodID}, nil
}

func (h *Harness) stepBid(args map[string]any) (string, map[string]any, error) {
	period, reg, err := h.loadState()
	if err != nil {
		return "", nil, err
	}

	bidder := argString(args, "bidder")
	sub := auction.BidSubmission{
		Bidder:         bidder,
		Amount:         argInt(args, "amount"),
		BannerURL:      argStringDefault(args, "banner_url", "https://cdn.example.com/"+bidder+".png"),
		DestinationURL: argStringDefault(args, "destination_url", "https://"+bidder+".example.com"),
		CommentID:      argInt(args, "comment_id"),
		Format:         argStringDefault(args, "format", "png"),
		Size:           93_440,
	}

	bid, err := auction.SubmitBid(period, sub, h.cfg, reg, h.clock)
	if err != nil {
		return string(auction.CodeOf(err)), nil, nil
	}
	if err := h.saveState(period, reg); err != nil {
		return "", nil, err
	}
	return "Success", map[string]any{
		"bidder": bid.Bidder,
		"amount": bid.Amount,
		"status": bid.Status,
	}, nil
}

func (h *Harness) stepApprove(args map[string]any) (string, map[string]any, error) {
	period, _, err := h.loadState()
	if err != nil {
		return "", nil, err
	}

	reaction := argString(args, "reaction")
	if argBool(args, "removed") {
		reaction = auction.ReactionRemoved
	}

	outcome, err := auction.ProcessApproval(period, argInt(args, "comment_id"), reaction, h.cfg)
	if err != nil {
		return string(auction.CodeOf(err)), nil, nil
	}
	if err := store.SavePeriod(period, h.dataDir); err != nil {
		return "", nil, err
	}
	return "Success", map[string]any{"outcome": string(outcome)}, nil
}

func (h *Harness) stepClose(ctx context.Context) (string, map[string]any, error) {
	period, reg, err := h.loadState()
	if err != nil {
		return "", nil, err
	}

	outcome, closeErr := auction.Close(ctx, period, h.cfg, h.gateway, reg, h.ledger, h.clock)
	if period != nil && period.Status != auction.StatusInactive {
		if err := h.saveState(period, reg); err != nil {
			return "", nil, err
		}
	}

	if closeErr != nil {
		var pe *payment.Error
		if errors.As(closeErr, &pe) {
			return string(pe.Code), nil, nil
		}
		return string(auction.CodeOf(closeErr)), nil, nil
	}

	if err := store.ArchivePeriod(period, h.dataDir); err != nil {
		return "", nil, err
	}
	h.closed = append(h.closed, period)
	if err := store.SavePeriod(auction.NewInactivePeriod(h.clock), h.dataDir); err != nil {
		return "", nil, err
	}

	stepResult := map[string]any{"charged": outcome.Charge != nil}
	if outcome.Winner != nil {
		stepResult["winner"] = outcome.Winner.Bidder
		stepResult["amount"] = outcome.Winner.Amount
	}
	if outcome.WarnedBidder != "" {
		stepResult["warned"] = outcome.WarnedBidder
	}
	return "Success", stepResult, nil
}

func (h *Harness) stepLink(args map[string]any) (string, map[string]any, error) {
	_, reg, err := h.loadState()
	if err != nil {
		return "", nil, err
	}

	bidder := argString(args, "bidder")
	reg.MarkPaymentLinked(bidder, "cus_"+bidder, "pm_"+bidder, h.clock.Now())
	if err := store.SaveBidders(reg, h.dataDir); err != nil {
		return "", nil, err
	}
	return "Success", map[string]any{"bidder": bidder}, nil
}

func (h *Harness) stepEnforce() (string, map[string]any, error) {
	period, reg, err := h.loadState()
	if err != nil {
		return "", nil, err
	}

	expired := auction.ExpiredGraceBidders(reg, h.cfg.Payment.UnlinkedGraceHours, h.clock.Now())
	disqualified := make([]any, 0, len(expired))
	rejected := 0
	for _, g := range expired {
		disqualified = append(disqualified, g.Bidder)
		if period != nil && period.Active() {
			for i := range period.Bids {
				bid := &period.Bids[i]
				if bid.Bidder == g.Bidder && bid.Status != auction.BidRejected {
					bid.Status = auction.BidRejected
					rejected++
				}
			}
		}
		reg.ClearWarning(g.Bidder)
	}

	if err := h.saveState(period, reg); err != nil {
		return "", nil, err
	}
	return "Success", map[string]any{
		"disqualified": disqualified,
		"rejected":     rejected,
	}, nil
}

func (h *Harness) loadState() (*auction.PeriodData, *registry.Registry, error) {
	period, err := store.LoadPeriod(h.dataDir)
	if err != nil {
		return nil, nil, err
	}
	reg, err := store.LoadBidders(h.dataDir)
	if err != nil {
		return nil, nil, err
	}
	return period, reg, nil
}

func (h *Harness) saveState(period *auction.PeriodData, reg *registry.Registry) error {
	if period != nil {
		if err := store.SavePeriod(period, h.dataDir); err != nil {
			return err
		}
	}
	return store.SaveBidders(reg, h.dataDir)
}

// collectState builds the final state tables: every bid across archived and
// current periods, the bidder registry, and the charge ledger.
func (h *Harness) collectState(ctx context.Context, result *Result) error {
	period, reg, err := h.loadState()
	if err != nil {
		return err
	}

	periods := append([]*auction.PeriodData{}, h.closed...)
	if period != nil && period.PeriodID != "" {
		periods = append(periods, period)
	}

	bids := []map[string]any{}
	seen := map[string]bool{}
	for _, p := range periods {
		if seen[p.PeriodID] {
			continue
		}
		seen[p.PeriodID] = true
		for _, bid := range p.Bids {
			bids = append(bids, map[string]any{
				"period_id":  p.PeriodID,
				"bidder":     bid.Bidder,
				"amount":     bid.Amount,
				"status":     bid.Status,
				"comment_id": bid.CommentID,
			})
		}
	}
	result.State["bids"] = bids

	bidders := []map[string]any{}
	for _, name := range reg.Usernames() {
		rec := reg.Lookup(name)
		bidders = append(bidders, map[string]any{
			"github_username": rec.GithubUsername,
			"payment_linked":  rec.PaymentLinked,
			"warned":          rec.WarnedAt != nil,
		})
	}
	result.State["bidders"] = bidders

	charges := []map[string]any{}
	periodIDs := make([]string, 0, len(seen))
	for id := range seen {
		periodIDs = append(periodIDs, id)
	}
	sort.Strings(periodIDs)
	for _, id := range periodIDs {
		rec, err := h.ledger.Lookup(ctx, id)
		if err != nil {
			return err
		}
		if rec == nil {
			continue
		}
		charges = append(charges, map[string]any{
			"period_id": rec.PeriodID,
			"bidder":    rec.Bidder,
			"amount":    rec.Amount,
			"status":    rec.Status,
			"charge_id": rec.ChargeID,
		})
	}
	result.State["charges"] = charges

	return nil
}

func argString(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}

func argStringDefault(args map[string]any, key, def string) string {
	if s, ok := args[key].(string); ok && s != "" {
		return s
	}
	return def
}

func argInt(args map[string]any, key string) int64 {
	switch v := args[key].(type) {
	case int:
		return int64(v)
	case int64:
		return v
	case float64:
		return int64(v)
	}
	return 0
}

func argFloat(args map[string]any, key string) float64 {
	switch v := args[key].(type) {
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case float64:
		return v
	}
	return 0
}

func argBool(args map[string]any, key string) bool {
	b, _ := args[key].(bool)
	return b
}
