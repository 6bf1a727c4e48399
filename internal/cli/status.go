package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bidme/bidme/internal/auction"
	"github.com/bidme/bidme/internal/store"
)

// StatusOptions holds flags for the status command.
type StatusOptions struct {
	*RootOptions
}

// StatusReport summarizes the auction state for operators.
type StatusReport struct {
	PeriodID        string              `json:"period_id,omitempty"`
	PeriodStatus    string              `json:"period_status"`
	EndDate         string              `json:"end_date,omitempty"`
	Bids            map[string]int      `json:"bids,omitempty"`
	HighestApproved int64               `json:"highest_approved,omitempty"`
	Bidders         int                 `json:"bidders"`
	Linked          int                 `json:"linked"`
	Warned          int                 `json:"warned"`
	Charge          *store.ChargeRecord `json:"charge,omitempty"`
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StatusOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Summarize the current auction state",
		Long: `Print the active period, its bids, the bidder registry, and the
charge ledger entry for the period, if any.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(opts, cmd)
		},
	}

	return cmd
}

func runStatus(opts *StatusOptions, cmd *cobra.Command) error {
	out := opts.formatter(cmd)
	_, period, reg, err := opts.loadState()
	if err != nil {
		return err
	}

	report := StatusReport{PeriodStatus: "none"}
	if period != nil {
		report.PeriodID = period.PeriodID
		report.PeriodStatus = period.Status
		if !period.EndDate.IsZero() {
			report.EndDate = period.EndDate.Format("2006-01-02")
		}
		if len(period.Bids) > 0 {
			report.Bids = map[string]int{}
			for _, bid := range period.Bids {
				report.Bids[bid.Status]++
			}
		}
		if highest, ok := period.HighestApproved(); ok {
			report.HighestApproved = highest
		}
	}

	for _, name := range reg.Usernames() {
		report.Bidders++
		rec := reg.Lookup(name)
		if rec.PaymentLinked {
			report.Linked++
		}
		if rec.WarnedAt != nil {
			report.Warned++
		}
	}

	// The ledger file only exists once a close has run.
	ledgerPath := filepath.Join(opts.DataDir, store.LedgerFile)
	if report.PeriodID != "" {
		if _, statErr := os.Stat(ledgerPath); statErr == nil {
			ledger, err := store.OpenLedger(ledgerPath)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to open charge ledger", err)
			}
			defer ledger.Close()
			charge, err := ledger.Lookup(cmd.Context(), report.PeriodID)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to query charge ledger", err)
			}
			report.Charge = charge
		}
	}

	return out.Successf(report, "%s", statusSummary(report))
}

func statusSummary(report StatusReport) string {
	var b strings.Builder
	if report.PeriodID == "" {
		b.WriteString("No period opened yet")
	} else {
		fmt.Fprintf(&b, "Period %s is %s", report.PeriodID, report.PeriodStatus)
		if report.EndDate != "" && report.PeriodStatus == auction.StatusOpen {
			fmt.Fprintf(&b, " (bidding until %s)", report.EndDate)
		}
	}
	var total int
	for _, n := range report.Bids {
		total += n
	}
	fmt.Fprintf(&b, "; %d bid(s)", total)
	if report.HighestApproved > 0 {
		fmt.Fprintf(&b, ", highest approved %d", report.HighestApproved)
	}
	fmt.Fprintf(&b, "; %d bidder(s), %d linked, %d warned", report.Bidders, report.Linked, report.Warned)
	if report.Charge != nil {
		fmt.Fprintf(&b, "; charge %s", report.Charge.Status)
	}
	return b.String()
}
