package auction

import (
	"context"
	"fmt"
	"time"

	"github.com/bidme/bidme/internal/config"
	"github.com/bidme/bidme/internal/payment"
	"github.com/bidme/bidme/internal/registry"
)

// chargeCurrency is the settlement currency for winner charges.
const chargeCurrency = "usd"

// ChargeAttempt is the ledger's answer to a charge request for a period.
type ChargeAttempt struct {
	// RequestID is a stable identifier for this attempt, minted by the
	// ledger and reused when a close run resumes.
	RequestID string

	// AlreadyCharged is true when a previous run charged this period
	// successfully. The gateway must not be called again.
	AlreadyCharged bool

	// ChargeID is the provider charge ID of the earlier success, when
	// AlreadyCharged is true.
	ChargeID string
}

// ChargeLedger gates charging so each period is charged at most once.
// Implemented by the SQLite ledger in the store package.
type ChargeLedger interface {
	// Begin records the intent to charge a period. If the period was
	// already charged successfully, the returned attempt says so and the
	// caller must skip the gateway.
	Begin(ctx context.Context, periodID, bidder string, amount int64) (ChargeAttempt, error)

	// MarkSucceeded records a successful charge.
	MarkSucceeded(ctx context.Context, periodID, chargeID string) error

	// MarkFailed records a failed attempt so a later run can retry with a
	// different winner or a fresh attempt.
	MarkFailed(ctx context.Context, periodID, reason string) error
}

// Open starts a new bidding period. It fails with ErrCodeAlreadyOpen when an
// open or closing period exists; any other current state (nil, inactive,
// closed-but-not-yet-archived) is replaced.
func Open(current *PeriodData, issueNumber int, issueNodeID string, cfg config.Config, clock Clock) (*PeriodData, error) {
	if current != nil && current.Active() {
		return nil, &Error{
			Code:     ErrCodeAlreadyOpen,
			Message:  fmt.Sprintf("period is %s; close it before opening a new one", current.Status),
			PeriodID: current.PeriodID,
		}
	}

	now := clock.Now().UTC()
	return &PeriodData{
		PeriodID:    PeriodIDFor(now),
		Status:      StatusOpen,
		StartDate:   now,
		EndDate:     now.AddDate(0, 0, cfg.Bidding.DurationDays),
		IssueNumber: issueNumber,
		IssueNodeID: issueNodeID,
		Bids:        []BidRecord{},
		CreatedAt:   now,
	}, nil
}

// SubmitBid validates a proposed bid and appends it to the period. The
// period is not mutated on any failure. Under auto approval mode the bid is
// approved immediately; under emoji mode it waits pending for an owner
// reaction.
//
// The bidder is registered (idempotently) on first contact so enforcement
// has a record to warn against later.
func SubmitBid(period *PeriodData, sub BidSubmission, cfg config.Config, reg *registry.Registry, clock Clock) (*BidRecord, error) {
	if err := ValidateBid(sub, period, cfg); err != nil {
		return nil, err
	}

	if period.FindBid(sub.CommentID) != nil {
		return nil, &Error{
			Code:      ErrCodeDuplicateComment,
			Message:   "a bid is already recorded for this comment",
			PeriodID:  period.PeriodID,
			CommentID: sub.CommentID,
		}
	}

	if cfg.Enforcement.RequirePaymentBeforeBid && !reg.IsPaymentLinked(sub.Bidder) {
		return nil, &Error{
			Code:      ErrCodePaymentRequired,
			Message:   fmt.Sprintf("bidder %s must link a payment method before bidding", sub.Bidder),
			PeriodID:  period.PeriodID,
			CommentID: sub.CommentID,
		}
	}

	status := BidPending
	if cfg.Approval.Mode == config.ApprovalAuto {
		status = BidApproved
	}

	reg.Register(sub.Bidder)
	period.Bids = append(period.Bids, BidRecord{
		Bidder:         sub.Bidder,
		Amount:         sub.Amount,
		BannerURL:      sub.BannerURL,
		DestinationURL: sub.DestinationURL,
		Contact:        sub.Contact,
		Status:         status,
		CommentID:      sub.CommentID,
		Timestamp:      clock.Now().UTC(),
	})
	return &period.Bids[len(period.Bids)-1], nil
}

// CloseOutcome reports what the close transition did. On a payment failure
// the period is returned in the closing state with the outcome describing
// how far the run got; the caller must still persist the document.
type CloseOutcome struct {
	Period *PeriodData

	// Winner is the selected winning bid, nil when the period closed with
	// no winner.
	Winner *BidRecord

	// Charge is the successful charge, nil when no charge happened this
	// run (no winner, unlinked winner, or a previous run already charged).
	Charge *payment.ChargeResult

	// AlreadyCharged is true when the ledger showed a previous successful
	// charge and the gateway was skipped.
	AlreadyCharged bool

	// WarnedBidder names the unlinked winner that entered a grace cycle
	// this run, if any.
	WarnedBidder string

	// Disqualified lists comment IDs of approved bids disqualified for
	// missing payment linking.
	Disqualified []int64
}

// Close seals the active period: it transitions open → closing immediately
// (no new bids mid-close), selects the winner among approved bids as
// max(amount) with ties broken by earliest timestamp, enforces payment
// linking, and charges the winner through the gateway.
//
// A winner without a linked payment method is disqualified and the
// next-highest approved bid promoted when unlinked bids are disallowed;
// otherwise the bidder is warned once and charging is skipped.
//
// On success the period is closed. On a payment error the period stays
// closing so a retried close can resume; the ledger guarantees the resumed
// run cannot charge twice.
func Close(ctx context.Context, period *PeriodData, cfg config.Config, gw payment.Gateway, reg *registry.Registry, ledger ChargeLedger, clock Clock) (*CloseOutcome, error) {
	if period == nil || period.Status == StatusInactive {
		return nil, newError(ErrCodeNoActivePeriod, "no active bidding period to close")
	}
	if period.Status == StatusClosed {
		return nil, &Error{
			Code:     ErrCodeAlreadyProcessed,
			Message:  "period is already closed",
			PeriodID: period.PeriodID,
		}
	}

	// Freeze bidding before any network call.
	period.Status = StatusClosing

	outcome := &CloseOutcome{Period: period}
	now := clock.Now().UTC()

	for _, candidate := range period.ApprovedByRank() {
		if !reg.IsPaymentLinked(candidate.Bidder) {
			if !cfg.Payment.AllowUnlinkedBids {
				// Disqualify and consider the next-highest approved bid.
				candidate.Status = BidRejected
				outcome.Disqualified = append(outcome.Disqualified, candidate.CommentID)
				continue
			}
			// Unlinked bids are tolerated: warn once and close unpaid.
			if reg.SetWarnedAt(candidate.Bidder, now) {
				outcome.WarnedBidder = candidate.Bidder
			}
			outcome.Winner = candidate
			period.Status = StatusClosed
			return outcome, nil
		}

		outcome.Winner = candidate
		if err := chargeWinner(ctx, outcome, period, candidate, gw, reg, ledger); err != nil {
			if payment.IsDeclined(err) {
				// The declined bid is superseded so a re-close considers
				// the next-highest; the period stays closing.
				candidate.Status = BidRejected
				outcome.Winner = nil
			}
			return outcome, err
		}
		period.Status = StatusClosed
		return outcome, nil
	}

	// No approved bids survived selection: close with no winner.
	period.Status = StatusClosed
	return outcome, nil
}

// chargeWinner runs the at-most-once charge protocol for a linked winner.
func chargeWinner(ctx context.Context, outcome *CloseOutcome, period *PeriodData, winner *BidRecord, gw payment.Gateway, reg *registry.Registry, ledger ChargeLedger) error {
	attempt, err := ledger.Begin(ctx, period.PeriodID, winner.Bidder, winner.Amount)
	if err != nil {
		return fmt.Errorf("charge ledger: %w", err)
	}
	if attempt.AlreadyCharged {
		outcome.AlreadyCharged = true
		return nil
	}

	rec := reg.Lookup(winner.Bidder)
	result, err := gw.Charge(ctx, payment.ChargeRequest{
		CustomerID:      rec.StripeCustomerID,
		PaymentMethodID: rec.StripePaymentMethodID,
		Amount:          winner.Amount,
		Currency:        chargeCurrency,
		IdempotencyKey:  period.PeriodID,
		Metadata: map[string]string{
			"period_id":  period.PeriodID,
			"bidder":     winner.Bidder,
			"request_id": attempt.RequestID,
		},
	})
	if err != nil {
		if ledgerErr := ledger.MarkFailed(ctx, period.PeriodID, err.Error()); ledgerErr != nil {
			return fmt.Errorf("record charge failure: %w (charge error: %v)", ledgerErr, err)
		}
		return err
	}

	if err := ledger.MarkSucceeded(ctx, period.PeriodID, result.ID); err != nil {
		// The charge went through; surface the bookkeeping failure rather
		// than pretending the close completed.
		return fmt.Errorf("record charge success for %s: %w", result.ID, err)
	}
	outcome.Charge = result
	return nil
}

// NewInactivePeriod returns the idle placeholder written after a closed
// period is archived.
func NewInactivePeriod(clock Clock) *PeriodData {
	now := clock.Now().UTC()
	return &PeriodData{
		Status:    StatusInactive,
		Bids:      []BidRecord{},
		CreatedAt: now,
	}
}

// GraceStatus describes one warned bidder for enforcement reporting.
type GraceStatus struct {
	Bidder   string     `json:"bidder"`
	WarnedAt time.Time  `json:"warned_at"`
	Deadline time.Time  `json:"deadline"`
	Expired  bool       `json:"expired"`
	LinkedAt *time.Time `json:"linked_at,omitempty"`
}

// ExpiredGraceBidders returns the warned, still-unlinked bidders whose grace
// deadline has passed. Callers strike their bids or disqualify them.
func ExpiredGraceBidders(reg *registry.Registry, graceHours float64, now time.Time) []GraceStatus {
	var expired []GraceStatus
	for _, name := range reg.Usernames() {
		rec := reg.Lookup(name)
		if rec.PaymentLinked || rec.WarnedAt == nil {
			continue
		}
		deadline := reg.GraceDeadline(name, graceHours)
		if deadline == nil || !now.After(*deadline) {
			continue
		}
		expired = append(expired, GraceStatus{
			Bidder:   name,
			WarnedAt: *rec.WarnedAt,
			Deadline: *deadline,
			Expired:  true,
		})
	}
	return expired
}
