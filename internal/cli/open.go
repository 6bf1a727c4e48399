package cli

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/bidme/bidme/internal/auction"
	"github.com/bidme/bidme/internal/store"
)

// OpenOptions holds flags for the open command.
type OpenOptions struct {
	*RootOptions
	IssueNumber int
	IssueNodeID string
}

// NewOpenCommand creates the open command.
func NewOpenCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &OpenOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "open",
		Short: "Open a new bidding period",
		Long: `Open a new bidding period against the given bidding issue.

Fails if an open or closing period already exists; re-running open for the
same schedule tick is a logged no-op, not an error.

Example:
  bidme open --issue 42 --issue-node-id I_kwDOA...`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOpen(opts, cmd)
		},
	}

	cmd.Flags().IntVar(&opts.IssueNumber, "issue", 0, "bidding issue number (required)")
	cmd.Flags().StringVar(&opts.IssueNodeID, "issue-node-id", "", "bidding issue GraphQL node ID")
	_ = cmd.MarkFlagRequired("issue")

	return cmd
}

func runOpen(opts *OpenOptions, cmd *cobra.Command) error {
	out := opts.formatter(cmd)
	cfg, current, _, err := opts.loadState()
	if err != nil {
		return err
	}

	period, err := auction.Open(current, opts.IssueNumber, opts.IssueNodeID, cfg, opts.clock())
	if err != nil {
		if auction.IsAlreadyOpen(err) {
			// Idempotency guard: a duplicate schedule tick is not a failure.
			slog.Warn("open skipped", "reason", err)
			return out.Error(string(auction.ErrCodeAlreadyOpen), err.Error(), nil)
		}
		return WrapExitError(ExitCommandError, "failed to open period", err)
	}

	if err := store.SavePeriod(period, opts.DataDir); err != nil {
		return WrapExitError(ExitCommandError, "failed to save period document", err)
	}

	slog.Info("period opened", "period_id", period.PeriodID, "end_date", period.EndDate)
	return out.Successf(period, "Opened %s (bidding until %s)", period.PeriodID, period.EndDate.Format("2006-01-02"))
}
