package cli

import (
	"log/slog"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/bidme/bidme/internal/auction"
	"github.com/bidme/bidme/internal/payment"
	"github.com/bidme/bidme/internal/store"
)

// CloseOptions holds flags for the close command.
type CloseOptions struct {
	*RootOptions
}

// NewCloseCommand creates the close command, invoked by the schedule at the
// end of a bidding period.
func NewCloseCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CloseOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "close",
		Short: "Close the active period and charge the winner",
		Long: `Select the winner among approved bids and charge them.

The winner is the highest approved bid, ties broken by earliest
submission. On a payment failure the period stays in the closing state so
a retried close can resume; the charge ledger guarantees a period is never
charged twice. On success the period is archived and a fresh inactive
period written in its place.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClose(opts, cmd)
		},
	}

	return cmd
}

func runClose(opts *CloseOptions, cmd *cobra.Command) error {
	out := opts.formatter(cmd)
	cfg, period, reg, err := opts.loadState()
	if err != nil {
		return err
	}

	ledger, err := store.OpenLedger(filepath.Join(opts.DataDir, store.LedgerFile))
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open charge ledger", err)
	}
	defer ledger.Close()

	gw := payment.FromConfig(cfg.Payment, slog.Default())
	outcome, closeErr := auction.Close(cmd.Context(), period, cfg, gw, reg, ledger, opts.clock())

	// The period may have moved to closing (and bids may have been
	// disqualified) even when the run failed. Persist before reporting.
	if period != nil && period.Status != auction.StatusInactive {
		if err := store.SavePeriod(period, opts.DataDir); err != nil {
			return WrapExitError(ExitCommandError, "failed to save period document", err)
		}
	}
	if err := store.SaveBidders(reg, opts.DataDir); err != nil {
		return WrapExitError(ExitCommandError, "failed to save bidders document", err)
	}

	if closeErr != nil {
		switch {
		case auction.IsAlreadyProcessed(closeErr):
			// Duplicate schedule tick, or a prior run crashed after
			// writing the closed period but before archiving it. Finish
			// the archive step so a later open cannot replace the closed
			// period unrecorded.
			if err := store.ArchivePeriod(period, opts.DataDir); err != nil {
				return WrapExitError(ExitCommandError, "failed to archive period", err)
			}
			if err := store.SavePeriod(auction.NewInactivePeriod(opts.clock()), opts.DataDir); err != nil {
				return WrapExitError(ExitCommandError, "failed to save period document", err)
			}
			slog.Warn("close skipped", "reason", closeErr, "period_id", period.PeriodID)
			return out.Error(string(auction.ErrCodeAlreadyProcessed), closeErr.Error(), nil)
		case auction.CodeOf(closeErr) == auction.ErrCodeNoActivePeriod:
			_ = out.Error(string(auction.ErrCodeNoActivePeriod), closeErr.Error(), nil)
			return WrapExitError(ExitFailure, "close rejected", closeErr)
		case payment.IsDeclined(closeErr):
			slog.Error("winner charge declined", "period_id", period.PeriodID)
			_ = out.Error(string(payment.ErrCodeDeclined), closeErr.Error(), nil)
			return WrapExitError(ExitFailure, "payment declined", closeErr)
		case payment.IsRateLimited(closeErr):
			// Provider throttling, not an outage. The period stays
			// closing; the next schedule tick retries.
			slog.Warn("provider rate limited", "period_id", period.PeriodID)
			_ = out.Error(string(payment.ErrCodeRateLimited), closeErr.Error(), nil)
			return WrapExitError(ExitCommandError, "provider rate limited", closeErr)
		default:
			// Provider outage or misconfiguration. The period stays
			// closing and the next close retries.
			return WrapExitError(ExitCommandError, "failed to close period", closeErr)
		}
	}

	if err := store.ArchivePeriod(period, opts.DataDir); err != nil {
		return WrapExitError(ExitCommandError, "failed to archive period", err)
	}
	next := auction.NewInactivePeriod(opts.clock())
	if err := store.SavePeriod(next, opts.DataDir); err != nil {
		return WrapExitError(ExitCommandError, "failed to save period document", err)
	}

	logCloseOutcome(outcome)
	if outcome.Winner == nil {
		return out.Successf(outcome, "Closed %s with no winner", period.PeriodID)
	}
	if outcome.Charge == nil && !outcome.AlreadyCharged {
		return out.Successf(outcome, "Closed %s: winner %s (%d) pending payment linking", period.PeriodID, outcome.Winner.Bidder, outcome.Winner.Amount)
	}
	return out.Successf(outcome, "Closed %s: charged %s %d", period.PeriodID, outcome.Winner.Bidder, outcome.Winner.Amount)
}

func logCloseOutcome(outcome *auction.CloseOutcome) {
	attrs := []any{
		"period_id", outcome.Period.PeriodID,
		"already_charged", outcome.AlreadyCharged,
	}
	if outcome.Winner != nil {
		attrs = append(attrs, "winner", outcome.Winner.Bidder, "amount", outcome.Winner.Amount)
	}
	if outcome.WarnedBidder != "" {
		attrs = append(attrs, "warned", outcome.WarnedBidder)
	}
	if len(outcome.Disqualified) > 0 {
		attrs = append(attrs, "disqualified", outcome.Disqualified)
	}
	slog.Info("period closed", attrs...)
}
