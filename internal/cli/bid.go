package cli

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/bidme/bidme/internal/auction"
	"github.com/bidme/bidme/internal/store"
)

// BidOptions holds flags for the bid command.
type BidOptions struct {
	*RootOptions
	Bidder         string
	Amount         int64
	BannerURL      string
	DestinationURL string
	Contact        string
	CommentID      int64
	BannerFormat   string
	BannerSize     int64
}

// NewBidCommand creates the bid command, invoked by the orchestrator when a
// bid comment arrives on the bidding issue.
func NewBidCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &BidOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "bid",
		Short: "Record a bid from an issue comment",
		Long: `Validate a proposed bid and append it to the open period.

The banner format and size come from the orchestrator's out-of-band
inspection of the linked asset; the engine never fetches the image.

Example:
  bidme bid --bidder alice --amount 55 --comment-id 1001 \
    --banner-url https://cdn.example.com/banner.png \
    --destination-url https://example.com \
    --contact alice@example.com --banner-format png --banner-size 93440`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBid(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Bidder, "bidder", "", "GitHub username of the bidder (required)")
	cmd.Flags().Int64Var(&opts.Amount, "amount", 0, "bid amount in whole currency units (required)")
	cmd.Flags().StringVar(&opts.BannerURL, "banner-url", "", "URL of the banner asset (required)")
	cmd.Flags().StringVar(&opts.DestinationURL, "destination-url", "", "URL the banner links to (required)")
	cmd.Flags().StringVar(&opts.Contact, "contact", "", "contact address for the bidder")
	cmd.Flags().Int64Var(&opts.CommentID, "comment-id", 0, "ID of the bid comment (required)")
	cmd.Flags().StringVar(&opts.BannerFormat, "banner-format", "", "banner file format as inspected")
	cmd.Flags().Int64Var(&opts.BannerSize, "banner-size", 0, "banner file size in bytes as inspected")
	for _, flag := range []string{"bidder", "amount", "banner-url", "destination-url", "comment-id"} {
		_ = cmd.MarkFlagRequired(flag)
	}

	return cmd
}

func runBid(opts *BidOptions, cmd *cobra.Command) error {
	out := opts.formatter(cmd)
	cfg, period, reg, err := opts.loadState()
	if err != nil {
		return err
	}

	sub := auction.BidSubmission{
		Bidder:         opts.Bidder,
		Amount:         opts.Amount,
		BannerURL:      opts.BannerURL,
		DestinationURL: opts.DestinationURL,
		Contact:        opts.Contact,
		CommentID:      opts.CommentID,
		Format:         opts.BannerFormat,
		Size:           opts.BannerSize,
	}

	bid, err := auction.SubmitBid(period, sub, cfg, reg, opts.clock())
	if err != nil {
		if auction.IsValidation(err) {
			_ = out.Error(string(auction.CodeOf(err)), err.Error(), nil)
			return WrapExitError(ExitFailure, "bid rejected", err)
		}
		return WrapExitError(ExitCommandError, "failed to record bid", err)
	}

	if err := store.SavePeriod(period, opts.DataDir); err != nil {
		return WrapExitError(ExitCommandError, "failed to save period document", err)
	}
	if err := store.SaveBidders(reg, opts.DataDir); err != nil {
		return WrapExitError(ExitCommandError, "failed to save bidders document", err)
	}

	slog.Info("bid recorded",
		"period_id", period.PeriodID,
		"bidder", bid.Bidder,
		"amount", bid.Amount,
		"status", bid.Status,
		"comment_id", bid.CommentID,
	)
	return out.Successf(bid, "Recorded %s bid of %d from %s", bid.Status, bid.Amount, bid.Bidder)
}
