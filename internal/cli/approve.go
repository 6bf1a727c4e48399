package cli

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/bidme/bidme/internal/auction"
	"github.com/bidme/bidme/internal/store"
)

// ApprovalOptions holds flags for the process-approval command.
type ApprovalOptions struct {
	*RootOptions
	CommentID int64
	Reaction  string
	Removed   bool
}

// NewApprovalCommand creates the process-approval command, invoked when the
// owner reacts to a bid comment (or removes a reaction).
func NewApprovalCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ApprovalOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "process-approval",
		Short: "Apply an owner reaction to a pending bid",
		Long: `Transition a pending bid based on an owner reaction.

Reactions in the configured allow list approve the bid; reactions in the
reject list, or a removed reaction, reject it. Any other reaction is
ignored. Re-delivering a reaction for an already decided bid is a logged
no-op.

Example:
  bidme process-approval --comment-id 1001 --reaction +1
  bidme process-approval --comment-id 1001 --removed`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApproval(opts, cmd)
		},
	}

	cmd.Flags().Int64Var(&opts.CommentID, "comment-id", 0, "ID of the bid comment (required)")
	cmd.Flags().StringVar(&opts.Reaction, "reaction", "", "reaction content, e.g. +1 or rocket")
	cmd.Flags().BoolVar(&opts.Removed, "removed", false, "the owner removed their reaction")
	_ = cmd.MarkFlagRequired("comment-id")

	return cmd
}

func runApproval(opts *ApprovalOptions, cmd *cobra.Command) error {
	out := opts.formatter(cmd)
	cfg, period, _, err := opts.loadState()
	if err != nil {
		return err
	}

	reaction := opts.Reaction
	if opts.Removed {
		reaction = auction.ReactionRemoved
	}

	outcome, err := auction.ProcessApproval(period, opts.CommentID, reaction, cfg)
	if err != nil {
		if auction.IsAlreadyProcessed(err) {
			// Reaction events can be redelivered; a decided bid stays decided.
			slog.Warn("approval skipped", "comment_id", opts.CommentID, "reason", err)
			return out.Error(string(auction.ErrCodeAlreadyProcessed), err.Error(), nil)
		}
		switch auction.CodeOf(err) {
		case auction.ErrCodeInvalidApproval, auction.ErrCodeUnknownComment, auction.ErrCodeNoActivePeriod:
			_ = out.Error(string(auction.CodeOf(err)), err.Error(), nil)
			return WrapExitError(ExitFailure, "approval rejected", err)
		}
		return WrapExitError(ExitCommandError, "failed to process approval", err)
	}

	if outcome == auction.OutcomeIgnored {
		slog.Info("reaction ignored", "comment_id", opts.CommentID, "reaction", opts.Reaction)
		return out.Successf(map[string]any{"outcome": outcome}, "Ignored reaction %q on comment %d", opts.Reaction, opts.CommentID)
	}

	if err := store.SavePeriod(period, opts.DataDir); err != nil {
		return WrapExitError(ExitCommandError, "failed to save period document", err)
	}

	bid := period.FindBid(opts.CommentID)
	slog.Info("approval processed",
		"period_id", period.PeriodID,
		"comment_id", opts.CommentID,
		"outcome", outcome,
	)
	return out.Successf(bid, "Bid from %s is now %s", bid.Bidder, bid.Status)
}
