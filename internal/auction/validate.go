package auction

import (
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/bidme/bidme/internal/config"
)

// ValidateBid checks a proposed bid against the config and the current
// period state. It is pure: no I/O, no mutation. Checks run in a fixed
// order and short-circuit on the first failure, each failure carrying a
// distinct code so the bidder sees a specific reason.
func ValidateBid(sub BidSubmission, period *PeriodData, cfg config.Config) error {
	if period == nil || period.Status != StatusOpen {
		status := StatusInactive
		periodID := ""
		if period != nil {
			status = period.Status
			periodID = period.PeriodID
		}
		return &Error{
			Code:     ErrCodePeriodNotOpen,
			Message:  fmt.Sprintf("bidding period is %s, not accepting bids", status),
			PeriodID: periodID,
		}
	}

	if sub.Amount < cfg.Bidding.MinimumBid {
		return &Error{
			Code:      ErrCodeAmountTooLow,
			Message:   fmt.Sprintf("bid of %d is below the minimum bid of %d", sub.Amount, cfg.Bidding.MinimumBid),
			PeriodID:  period.PeriodID,
			CommentID: sub.CommentID,
			Details: map[string]string{
				"amount":      fmt.Sprintf("%d", sub.Amount),
				"minimum_bid": fmt.Sprintf("%d", cfg.Bidding.MinimumBid),
			},
		}
	}

	if highest, ok := period.HighestApproved(); ok {
		floor := highest + cfg.Bidding.Increment
		if sub.Amount < floor {
			return &Error{
				Code:      ErrCodeIncrementNotMet,
				Message:   fmt.Sprintf("bid of %d must be at least %d (highest approved %d plus increment %d)", sub.Amount, floor, highest, cfg.Bidding.Increment),
				PeriodID:  period.PeriodID,
				CommentID: sub.CommentID,
				Details: map[string]string{
					"amount":           fmt.Sprintf("%d", sub.Amount),
					"highest_approved": fmt.Sprintf("%d", highest),
					"increment":        fmt.Sprintf("%d", cfg.Bidding.Increment),
				},
			}
		}
	}

	for _, field := range []struct{ name, value string }{
		{"banner_url", sub.BannerURL},
		{"destination_url", sub.DestinationURL},
	} {
		if !validHTTPURL(field.value) {
			return &Error{
				Code:      ErrCodeInvalidURL,
				Message:   fmt.Sprintf("%s is not a valid http(s) URL", field.name),
				PeriodID:  period.PeriodID,
				CommentID: sub.CommentID,
				Details:   map[string]string{"field": field.name, "value": field.value},
			}
		}
	}

	if !formatAllowed(sub.Format, cfg.Banner.Formats) {
		return &Error{
			Code:      ErrCodeUnsupportedFormat,
			Message:   fmt.Sprintf("banner format %q is not one of %v", sub.Format, cfg.Banner.Formats),
			PeriodID:  period.PeriodID,
			CommentID: sub.CommentID,
		}
	}
	if sub.Size > cfg.Banner.MaxSize {
		return &Error{
			Code:      ErrCodeBannerTooLarge,
			Message:   fmt.Sprintf("banner of %d bytes exceeds the limit of %d bytes", sub.Size, cfg.Banner.MaxSize),
			PeriodID:  period.PeriodID,
			CommentID: sub.CommentID,
		}
	}

	text := canonicalText(sub.BannerURL + " " + sub.DestinationURL)
	for _, term := range cfg.Content.Prohibited {
		if term == "" {
			continue
		}
		if strings.Contains(text, canonicalText(term)) {
			return &Error{
				Code:      ErrCodeProhibitedContent,
				Message:   fmt.Sprintf("bid content contains the prohibited term %q", term),
				PeriodID:  period.PeriodID,
				CommentID: sub.CommentID,
				Details:   map[string]string{"term": term},
			}
		}
	}
	if len(cfg.Content.Required) > 0 {
		found := false
		for _, term := range cfg.Content.Required {
			if strings.Contains(text, canonicalText(term)) {
				found = true
				break
			}
		}
		if !found {
			return &Error{
				Code:      ErrCodeMissingRequiredContent,
				Message:   fmt.Sprintf("bid content must contain at least one of %v", cfg.Content.Required),
				PeriodID:  period.PeriodID,
				CommentID: sub.CommentID,
			}
		}
	}

	return nil
}

func validHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func formatAllowed(format string, allowed []string) bool {
	for _, f := range allowed {
		if strings.EqualFold(f, format) {
			return true
		}
	}
	return false
}

// canonicalText NFC-normalizes and lower-cases text before term matching so
// visually identical strings compare equal.
func canonicalText(s string) string {
	return strings.ToLower(norm.NFC.String(s))
}
