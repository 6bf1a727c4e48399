package auction

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bidme/bidme/internal/config"
)

func testConfig() config.Config {
	cfg := config.Default()
	cfg.Bidding.MinimumBid = 50
	cfg.Bidding.Increment = 5
	cfg.Approval.Mode = config.ApprovalAuto
	return cfg
}

func openPeriod() *PeriodData {
	start := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	return &PeriodData{
		PeriodID:    PeriodIDFor(start),
		Status:      StatusOpen,
		StartDate:   start,
		EndDate:     start.AddDate(0, 0, 7),
		IssueNumber: 42,
		IssueNodeID: "I_abc",
		Bids:        []BidRecord{},
		CreatedAt:   start,
	}
}

func validSubmission() BidSubmission {
	return BidSubmission{
		Bidder:         "alice",
		Amount:         55,
		BannerURL:      "https://cdn.example.com/banner.png",
		DestinationURL: "https://example.com",
		Contact:        "alice@example.com",
		CommentID:      1001,
		Format:         "png",
		Size:           100_000,
	}
}

func TestValidateBid_Valid(t *testing.T) {
	assert.NoError(t, ValidateBid(validSubmission(), openPeriod(), testConfig()))
}

func TestValidateBid_PeriodNotOpen(t *testing.T) {
	for _, status := range []string{StatusClosing, StatusClosed, StatusInactive} {
		t.Run(status, func(t *testing.T) {
			period := openPeriod()
			period.Status = status
			err := ValidateBid(validSubmission(), period, testConfig())
			assert.Equal(t, ErrCodePeriodNotOpen, CodeOf(err))
		})
	}

	err := ValidateBid(validSubmission(), nil, testConfig())
	assert.Equal(t, ErrCodePeriodNotOpen, CodeOf(err))
}

func TestValidateBid_AmountBelowMinimum(t *testing.T) {
	sub := validSubmission()
	sub.Amount = 49
	err := ValidateBid(sub, openPeriod(), testConfig())
	assert.Equal(t, ErrCodeAmountTooLow, CodeOf(err))
	assert.True(t, IsValidation(err))
}

func TestValidateBid_IncrementOverHighestApproved(t *testing.T) {
	period := openPeriod()
	period.Bids = append(period.Bids, BidRecord{
		Bidder: "bob", Amount: 50, Status: BidApproved, CommentID: 1,
		Timestamp: period.StartDate,
	})

	// 52 < 50+5: rejected.
	sub := validSubmission()
	sub.Amount = 52
	err := ValidateBid(sub, period, testConfig())
	assert.Equal(t, ErrCodeIncrementNotMet, CodeOf(err))

	// 55 = 50+5: accepted.
	sub.Amount = 55
	assert.NoError(t, ValidateBid(sub, period, testConfig()))
}

func TestValidateBid_PendingBidsDoNotRaiseFloor(t *testing.T) {
	period := openPeriod()
	period.Bids = append(period.Bids, BidRecord{
		Bidder: "bob", Amount: 90, Status: BidPending, CommentID: 1,
	})

	sub := validSubmission()
	sub.Amount = 50
	assert.NoError(t, ValidateBid(sub, period, testConfig()))
}

func TestValidateBid_MalformedURLs(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*BidSubmission)
	}{
		{"empty banner url", func(s *BidSubmission) { s.BannerURL = "" }},
		{"relative banner url", func(s *BidSubmission) { s.BannerURL = "/banner.png" }},
		{"ftp destination", func(s *BidSubmission) { s.DestinationURL = "ftp://example.com" }},
		{"no host", func(s *BidSubmission) { s.DestinationURL = "https://" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sub := validSubmission()
			tt.mutate(&sub)
			err := ValidateBid(sub, openPeriod(), testConfig())
			assert.Equal(t, ErrCodeInvalidURL, CodeOf(err))
		})
	}
}

func TestValidateBid_BannerFormatAndSize(t *testing.T) {
	sub := validSubmission()
	sub.Format = "gif"
	err := ValidateBid(sub, openPeriod(), testConfig())
	assert.Equal(t, ErrCodeUnsupportedFormat, CodeOf(err))

	sub = validSubmission()
	sub.Format = "PNG" // case-insensitive match
	assert.NoError(t, ValidateBid(sub, openPeriod(), testConfig()))

	sub = validSubmission()
	sub.Size = testConfig().Banner.MaxSize + 1
	err = ValidateBid(sub, openPeriod(), testConfig())
	assert.Equal(t, ErrCodeBannerTooLarge, CodeOf(err))
}

func TestValidateBid_ProhibitedContent(t *testing.T) {
	cfg := testConfig()
	cfg.Content.Prohibited = []string{"casino"}

	sub := validSubmission()
	sub.DestinationURL = "https://best-CASINO.example.com"
	err := ValidateBid(sub, openPeriod(), cfg)
	require.Equal(t, ErrCodeProhibitedContent, CodeOf(err))

	var ae *Error
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, "casino", ae.Details["term"])
}

func TestValidateBid_RequiredContent(t *testing.T) {
	cfg := testConfig()
	cfg.Content.Required = []string{"example.com", "example.org"}

	assert.NoError(t, ValidateBid(validSubmission(), openPeriod(), cfg))

	sub := validSubmission()
	sub.BannerURL = "https://cdn.other.net/banner.png"
	sub.DestinationURL = "https://other.net"
	err := ValidateBid(sub, openPeriod(), cfg)
	assert.Equal(t, ErrCodeMissingRequiredContent, CodeOf(err))
}

func TestValidateBid_ShortCircuitsInOrder(t *testing.T) {
	// A bid failing multiple checks reports the earliest one.
	cfg := testConfig()
	cfg.Content.Prohibited = []string{"casino"}

	sub := validSubmission()
	sub.Amount = 1
	sub.BannerURL = "not-a-url"
	sub.DestinationURL = "https://casino.example.com"

	err := ValidateBid(sub, openPeriod(), cfg)
	assert.Equal(t, ErrCodeAmountTooLow, CodeOf(err))
}
