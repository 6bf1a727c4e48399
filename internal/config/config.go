// Package config loads the immutable auction rule snapshot from a TOML file.
//
// A Config is loaded once per invocation and never mutated afterwards. Every
// field has a usable default so a missing or partial file still yields a
// complete snapshot.
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// Approval modes.
const (
	ApprovalAuto  = "auto"  // every valid bid is approved on submission
	ApprovalEmoji = "emoji" // owner reaction required
)

// Payment providers.
const (
	ProviderPolarOwn     = "polar-own"
	ProviderBidmeManaged = "bidme-managed"
)

// Config is the full auction rule snapshot.
type Config struct {
	Bidding     BiddingConfig     `toml:"bidding"`
	Banner      BannerConfig      `toml:"banner"`
	Approval    ApprovalConfig    `toml:"approval"`
	Payment     PaymentConfig     `toml:"payment"`
	Enforcement EnforcementConfig `toml:"enforcement"`
	Content     ContentConfig     `toml:"content_guidelines"`
}

// BiddingConfig controls the auction schedule and pricing floor.
type BiddingConfig struct {
	// Schedule is the cron expression the external orchestrator runs the
	// close transition on. The engine itself never parses it.
	Schedule     string `toml:"schedule"`
	DurationDays int    `toml:"duration_days"`
	MinimumBid   int64  `toml:"minimum_bid"`
	Increment    int64  `toml:"increment"`
}

// BannerConfig constrains the sponsored banner asset.
type BannerConfig struct {
	Width   int      `toml:"width"`
	Height  int      `toml:"height"`
	Formats []string `toml:"formats"`
	MaxSize int64    `toml:"max_size"`
}

// ApprovalConfig selects how bids move from pending to approved.
// AllowedReactions approve a pending bid; RejectReactions (and reaction
// removal) reject it. The mapping is configuration, not code.
type ApprovalConfig struct {
	Mode             string   `toml:"mode"`
	AllowedReactions []string `toml:"allowed_reactions"`
	RejectReactions  []string `toml:"reject_reactions"`
}

// PaymentConfig selects the payment provider and the unlinked-bidder policy.
type PaymentConfig struct {
	Provider           string  `toml:"provider"`
	AllowUnlinkedBids  bool    `toml:"allow_unlinked_bids"`
	UnlinkedGraceHours float64 `toml:"unlinked_grace_hours"`
}

// EnforcementConfig controls payment-linking enforcement behavior.
type EnforcementConfig struct {
	RequirePaymentBeforeBid bool `toml:"require_payment_before_bid"`
	StrikethroughUnlinked   bool `toml:"strikethrough_unlinked"`
}

// ContentConfig holds the banner content guidelines.
type ContentConfig struct {
	Prohibited []string `toml:"prohibited"`
	Required   []string `toml:"required"`
}

// Default returns a Config with every field set to its default value.
func Default() Config {
	return Config{
		Bidding: BiddingConfig{
			Schedule:     "0 0 1 * *",
			DurationDays: 7,
			MinimumBid:   50,
			Increment:    5,
		},
		Banner: BannerConfig{
			Width:   800,
			Height:  100,
			Formats: []string{"png", "jpg", "svg"},
			MaxSize: 512 * 1024,
		},
		Approval: ApprovalConfig{
			Mode:             ApprovalEmoji,
			AllowedReactions: []string{"+1", "rocket"},
			RejectReactions:  []string{"-1"},
		},
		Payment: PaymentConfig{
			Provider:           ProviderPolarOwn,
			AllowUnlinkedBids:  true,
			UnlinkedGraceHours: 24,
		},
		Enforcement: EnforcementConfig{
			RequirePaymentBeforeBid: false,
			StrikethroughUnlinked:   true,
		},
	}
}

// Load reads a TOML config file and merges it over the defaults.
// A missing file is not an error: the defaults are returned as-is.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks cross-field consistency. It does not fill defaults; Load
// has already done that.
func (c Config) Validate() error {
	if c.Approval.Mode != ApprovalAuto && c.Approval.Mode != ApprovalEmoji {
		return fmt.Errorf("approval.mode must be %q or %q, got %q", ApprovalAuto, ApprovalEmoji, c.Approval.Mode)
	}
	if c.Payment.Provider != ProviderPolarOwn && c.Payment.Provider != ProviderBidmeManaged {
		return fmt.Errorf("payment.provider must be %q or %q, got %q", ProviderPolarOwn, ProviderBidmeManaged, c.Payment.Provider)
	}
	if c.Bidding.DurationDays <= 0 {
		return fmt.Errorf("bidding.duration_days must be positive, got %d", c.Bidding.DurationDays)
	}
	if c.Bidding.MinimumBid <= 0 {
		return fmt.Errorf("bidding.minimum_bid must be positive, got %d", c.Bidding.MinimumBid)
	}
	if c.Bidding.Increment < 0 {
		return fmt.Errorf("bidding.increment must not be negative, got %d", c.Bidding.Increment)
	}
	if c.Payment.UnlinkedGraceHours < 0 {
		return fmt.Errorf("payment.unlinked_grace_hours must not be negative, got %v", c.Payment.UnlinkedGraceHours)
	}
	return nil
}
