package cli

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/bidme/bidme/internal/payment"
	"github.com/bidme/bidme/internal/store"
)

// LinkOptions holds flags for the link-payment command.
type LinkOptions struct {
	*RootOptions
	Bidder          string
	Email           string
	CustomerID      string
	PaymentMethodID string
}

// NewLinkCommand creates the link-payment command. It has two modes: with
// only --bidder and --email it starts a provider-hosted linking session;
// with --customer-id and --payment-method-id it records a completed link.
func NewLinkCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LinkOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "link-payment",
		Short: "Link a bidder's payment method",
		Long: `Start or record payment-method linking for a bidder.

Without provider IDs a new setup session is created and its URL printed
for the bidder to complete. With --customer-id and --payment-method-id
(from the provider's completion callback) the bidder is marked linked and
any pending grace warning is cleared.

Example:
  bidme link-payment --bidder alice --email alice@example.com
  bidme link-payment --bidder alice --customer-id cus_123 --payment-method-id pm_456`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLink(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Bidder, "bidder", "", "GitHub username of the bidder (required)")
	cmd.Flags().StringVar(&opts.Email, "email", "", "bidder email for provider customer creation")
	cmd.Flags().StringVar(&opts.CustomerID, "customer-id", "", "provider customer ID of a completed link")
	cmd.Flags().StringVar(&opts.PaymentMethodID, "payment-method-id", "", "provider payment method ID of a completed link")
	_ = cmd.MarkFlagRequired("bidder")
	cmd.MarkFlagsRequiredTogether("customer-id", "payment-method-id")

	return cmd
}

func runLink(opts *LinkOptions, cmd *cobra.Command) error {
	out := opts.formatter(cmd)
	cfg, _, reg, err := opts.loadState()
	if err != nil {
		return err
	}

	if opts.CustomerID != "" {
		rec := reg.MarkPaymentLinked(opts.Bidder, opts.CustomerID, opts.PaymentMethodID, opts.clock().Now().UTC())
		if err := store.SaveBidders(reg, opts.DataDir); err != nil {
			return WrapExitError(ExitCommandError, "failed to save bidders document", err)
		}
		slog.Info("payment linked", "bidder", opts.Bidder, "customer_id", opts.CustomerID)
		return out.Successf(rec, "Linked payment method for %s", opts.Bidder)
	}

	gw := payment.FromConfig(cfg.Payment, slog.Default())
	customer, err := gw.CreateCustomer(cmd.Context(), opts.Email, map[string]string{
		"github_username": opts.Bidder,
	})
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to create provider customer", err)
	}
	session, err := gw.CreateSetupSession(cmd.Context(), customer.ID)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to create setup session", err)
	}

	// The bidder is registered now so a grace warning can attach later, but
	// stays unlinked until the provider confirms.
	reg.Register(opts.Bidder)
	if err := store.SaveBidders(reg, opts.DataDir); err != nil {
		return WrapExitError(ExitCommandError, "failed to save bidders document", err)
	}

	slog.Info("setup session created", "bidder", opts.Bidder, "provider", gw.Provider(), "session_id", session.ID)
	if session.URL != "" {
		return out.Successf(session, "Setup session for %s: %s", opts.Bidder, session.URL)
	}
	return out.Successf(session, "Setup session %s created for %s", session.ID, opts.Bidder)
}
