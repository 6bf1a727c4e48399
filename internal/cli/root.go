// Package cli wires one external event (a bid comment, an owner reaction, a
// schedule tick) to one engine transition. Commands are thin: they load the
// documents, call into the auction package, and write the documents back.
package cli

import (
	"fmt"
	"os"

	"log/slog"

	"github.com/spf13/cobra"

	"github.com/bidme/bidme/internal/auction"
	"github.com/bidme/bidme/internal/config"
	"github.com/bidme/bidme/internal/registry"
	"github.com/bidme/bidme/internal/store"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	DataDir    string
	ConfigPath string

	// Clock allows overriding time for tests. Nil means the system clock.
	Clock auction.Clock
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the bidme CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "bidme",
		Short: "Sponsorship banner auction engine",
		Long: `bidme runs a recurring sponsorship-banner auction whose state lives in
JSON documents and GitHub issue threads. Each invocation applies exactly
one transition: open a period, record a bid, process an approval
reaction, or close the period and charge the winner.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			configureLogging(opts.Verbose)
			return nil
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.DataDir, "data", "data", "directory holding the auction documents")
	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "bidme.toml", "path to the auction config file")

	// Add subcommands
	cmd.AddCommand(NewOpenCommand(opts))
	cmd.AddCommand(NewBidCommand(opts))
	cmd.AddCommand(NewApprovalCommand(opts))
	cmd.AddCommand(NewCloseCommand(opts))
	cmd.AddCommand(NewLinkCommand(opts))
	cmd.AddCommand(NewEnforceCommand(opts))
	cmd.AddCommand(NewStatusCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

func configureLogging(verbose bool) {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})
	slog.SetDefault(slog.New(handler))
}

func (o *RootOptions) clock() auction.Clock {
	if o.Clock != nil {
		return o.Clock
	}
	return auction.SystemClock{}
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{Format: o.Format, Writer: cmd.OutOrStdout()}
}

// loadState reads the config and both documents. Every command starts here.
func (o *RootOptions) loadState() (config.Config, *auction.PeriodData, *registry.Registry, error) {
	cfg, err := config.Load(o.ConfigPath)
	if err != nil {
		return cfg, nil, nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	period, err := store.LoadPeriod(o.DataDir)
	if err != nil {
		return cfg, nil, nil, WrapExitError(ExitCommandError, "failed to load period document", err)
	}
	reg, err := store.LoadBidders(o.DataDir)
	if err != nil {
		return cfg, nil, nil, WrapExitError(ExitCommandError, "failed to load bidders document", err)
	}
	return cfg, period, reg, nil
}
