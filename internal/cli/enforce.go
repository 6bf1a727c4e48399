package cli

import (
	"os"

	"log/slog"

	"github.com/spf13/cobra"

	"github.com/bidme/bidme/internal/auction"
	"github.com/bidme/bidme/internal/github"
	"github.com/bidme/bidme/internal/store"
)

// EnforceOptions holds flags for the enforce command.
type EnforceOptions struct {
	*RootOptions
	Repo string
}

// EnforcementReport is the enforce command's output payload.
type EnforcementReport struct {
	Expired      []auction.GraceStatus `json:"expired"`
	RejectedBids []int64               `json:"rejected_bids,omitempty"`
	StruckBids   []int64               `json:"struck_bids,omitempty"`
}

// NewEnforceCommand creates the enforce command, run periodically to
// disqualify warned bidders whose payment-linking grace period expired.
func NewEnforceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EnforceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "enforce",
		Short: "Disqualify bidders whose linking grace period expired",
		Long: `Reject the active-period bids of warned bidders who are still
unlinked past the grace deadline.

When strikethrough is enabled and GitHub credentials are present the bid
comments are also struck through on the issue. GitHub failures are logged
and do not block the document update.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEnforce(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Repo, "repo", os.Getenv("GITHUB_REPOSITORY"), "owner/name of the auction repository")

	return cmd
}

func runEnforce(opts *EnforceOptions, cmd *cobra.Command) error {
	out := opts.formatter(cmd)
	cfg, period, reg, err := opts.loadState()
	if err != nil {
		return err
	}

	now := opts.clock().Now().UTC()
	report := EnforcementReport{
		Expired: auction.ExpiredGraceBidders(reg, cfg.Payment.UnlinkedGraceHours, now),
	}
	if len(report.Expired) == 0 {
		slog.Info("no expired grace periods")
		return out.Successf(report, "No bidders past the grace deadline")
	}

	expired := make(map[string]bool, len(report.Expired))
	for _, g := range report.Expired {
		expired[g.Bidder] = true
	}

	if period != nil && period.Active() {
		for i := range period.Bids {
			bid := &period.Bids[i]
			if !expired[bid.Bidder] || bid.Status == auction.BidRejected {
				continue
			}
			bid.Status = auction.BidRejected
			report.RejectedBids = append(report.RejectedBids, bid.CommentID)
		}
	}

	if cfg.Enforcement.StrikethroughUnlinked && len(report.RejectedBids) > 0 {
		gh := github.NewFromEnv(opts.Repo, slog.Default())
		if gh.Enabled() {
			for _, commentID := range report.RejectedBids {
				if err := gh.StrikethroughComment(cmd.Context(), commentID); err != nil {
					slog.Error("strikethrough failed", "comment_id", commentID, "error", err)
					continue
				}
				report.StruckBids = append(report.StruckBids, commentID)
			}
		} else {
			slog.Warn("strikethrough skipped: no GitHub token")
		}
	}

	// One warning cycle per expiry: clearing the mark keeps a later rerun
	// from rejecting the same bidder's future bids.
	for bidder := range expired {
		reg.ClearWarning(bidder)
	}

	if len(report.RejectedBids) > 0 {
		if err := store.SavePeriod(period, opts.DataDir); err != nil {
			return WrapExitError(ExitCommandError, "failed to save period document", err)
		}
	}
	if err := store.SaveBidders(reg, opts.DataDir); err != nil {
		return WrapExitError(ExitCommandError, "failed to save bidders document", err)
	}

	slog.Info("grace enforcement applied",
		"expired", len(report.Expired),
		"rejected_bids", len(report.RejectedBids),
		"struck_bids", len(report.StruckBids),
	)
	return out.Successf(report, "Disqualified %d bidder(s), rejected %d bid(s)", len(report.Expired), len(report.RejectedBids))
}
