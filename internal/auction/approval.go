package auction

import (
	"fmt"

	"github.com/bidme/bidme/internal/config"
)

// ApprovalOutcome is the result of interpreting an owner reaction.
type ApprovalOutcome string

const (
	// OutcomeApproved means the bid transitioned pending → approved.
	OutcomeApproved ApprovalOutcome = "approved"

	// OutcomeRejected means the bid transitioned pending → rejected.
	OutcomeRejected ApprovalOutcome = "rejected"

	// OutcomeIgnored means the reaction is not in the configured mapping
	// and the bid was left untouched.
	OutcomeIgnored ApprovalOutcome = "ignored"
)

// ReactionRemoved is the reaction value the caller passes when the owner
// removed their reaction from a bid comment. Removal rejects a pending bid.
const ReactionRemoved = ""

// ProcessApproval interprets an owner reaction on a bid comment and
// transitions the bid's status.
//
// Only pending bids are mutated. Re-reacting to an already approved or
// rejected bid reports ErrCodeAlreadyProcessed rather than silently
// succeeding, so the caller can tell an idempotent replay from a first
// delivery.
//
// Approval re-runs the increment check against the current approved set: a
// bid approved out of submission order must still clear the highest approved
// amount plus increment at approval time.
func ProcessApproval(period *PeriodData, commentID int64, reaction string, cfg config.Config) (ApprovalOutcome, error) {
	if period == nil || !period.Active() {
		return OutcomeIgnored, newError(ErrCodeNoActivePeriod, "no active bidding period")
	}

	bid := period.FindBid(commentID)
	if bid == nil {
		return OutcomeIgnored, &Error{
			Code:      ErrCodeUnknownComment,
			Message:   "no bid recorded for this comment",
			PeriodID:  period.PeriodID,
			CommentID: commentID,
		}
	}

	if bid.Status != BidPending {
		return OutcomeIgnored, &Error{
			Code:      ErrCodeAlreadyProcessed,
			Message:   fmt.Sprintf("bid is already %s", bid.Status),
			PeriodID:  period.PeriodID,
			CommentID: commentID,
			Details:   map[string]string{"status": bid.Status},
		}
	}

	switch mapReaction(reaction, cfg.Approval) {
	case OutcomeApproved:
		if highest, ok := period.HighestApproved(); ok {
			floor := highest + cfg.Bidding.Increment
			if bid.Amount < floor {
				return OutcomeIgnored, &Error{
					Code:      ErrCodeInvalidApproval,
					Message:   fmt.Sprintf("approving %d would violate the increment rule: highest approved is %d, increment %d", bid.Amount, highest, cfg.Bidding.Increment),
					PeriodID:  period.PeriodID,
					CommentID: commentID,
					Details: map[string]string{
						"amount":           fmt.Sprintf("%d", bid.Amount),
						"highest_approved": fmt.Sprintf("%d", highest),
						"increment":        fmt.Sprintf("%d", cfg.Bidding.Increment),
					},
				}
			}
		}
		bid.Status = BidApproved
		return OutcomeApproved, nil

	case OutcomeRejected:
		bid.Status = BidRejected
		return OutcomeRejected, nil

	default:
		return OutcomeIgnored, nil
	}
}

// mapReaction resolves a reaction glyph to an outcome using the configured
// reaction lists. Removal always maps to reject.
func mapReaction(reaction string, cfg config.ApprovalConfig) ApprovalOutcome {
	if reaction == ReactionRemoved {
		return OutcomeRejected
	}
	for _, r := range cfg.AllowedReactions {
		if r == reaction {
			return OutcomeApproved
		}
	}
	for _, r := range cfg.RejectReactions {
		if r == reaction {
			return OutcomeRejected
		}
	}
	return OutcomeIgnored
}
