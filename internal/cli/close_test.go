package cli

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bidme/bidme/internal/auction"
	"github.com/bidme/bidme/internal/payment"
	"github.com/bidme/bidme/internal/store"
)

func TestCloseWithNoApprovedBids(t *testing.T) {
	opts, _ := testEnv(t, autoConfigTOML)
	mustOpenPeriod(t, opts)

	out, err := execute(t, NewCloseCommand(opts))
	require.NoError(t, err)
	assert.Contains(t, out, "period-2026-03-01")

	archived, err := store.LoadArchivedPeriod("period-2026-03-01", opts.DataDir)
	require.NoError(t, err)
	assert.Equal(t, auction.StatusClosed, archived.Status)

	current, err := store.LoadPeriod(opts.DataDir)
	require.NoError(t, err)
	assert.Equal(t, auction.StatusInactive, current.Status)
}

func TestCloseUnlinkedWinnerAllowedWarnsAndClosesUnpaid(t *testing.T) {
	opts, clock := testEnv(t, autoConfigTOML)
	mustOpenPeriod(t, opts)
	mustSubmitBid(t, opts, "alice", "55", "1001")

	now := clock.Now()
	_, err := execute(t, NewCloseCommand(opts))
	require.NoError(t, err)

	reg, err := store.LoadBidders(opts.DataDir)
	require.NoError(t, err)
	rec := reg.Lookup("alice")
	require.NotNil(t, rec)
	require.NotNil(t, rec.WarnedAt, "unlinked winner must enter a grace cycle")
	assert.True(t, rec.WarnedAt.Equal(now), "warned_at should be the close time")

	// No charge was attempted: the ledger file holds no row for the period.
	ledger, err := store.OpenLedger(filepath.Join(opts.DataDir, store.LedgerFile))
	require.NoError(t, err)
	defer ledger.Close()
	charge, err := ledger.Lookup(context.Background(), "period-2026-03-01")
	require.NoError(t, err)
	assert.Nil(t, charge)

	archived, err := store.LoadArchivedPeriod("period-2026-03-01", opts.DataDir)
	require.NoError(t, err)
	assert.Equal(t, auction.StatusClosed, archived.Status)
}

func TestCloseArchivesClosedPeriodLeftByCrash(t *testing.T) {
	opts, _ := testEnv(t, autoConfigTOML)
	mustOpenPeriod(t, opts)
	mustSubmitBid(t, opts, "alice", "55", "1001")

	// A run that died after writing the closed period but before
	// archiving it leaves the closed period as the current document.
	period, err := store.LoadPeriod(opts.DataDir)
	require.NoError(t, err)
	period.Status = auction.StatusClosed
	require.NoError(t, store.SavePeriod(period, opts.DataDir))

	out, err := execute(t, NewCloseCommand(opts))
	require.NoError(t, err, "recovery tick is an idempotent no-op")
	assert.Contains(t, out, string(auction.ErrCodeAlreadyProcessed))

	// The recovery tick finishes the archive step so the next open
	// cannot replace the closed period unrecorded.
	archived, err := store.LoadArchivedPeriod("period-2026-03-01", opts.DataDir)
	require.NoError(t, err)
	assert.Equal(t, auction.StatusClosed, archived.Status)
	require.Len(t, archived.Bids, 1)
	assert.Equal(t, "alice", archived.Bids[0].Bidder)

	current, err := store.LoadPeriod(opts.DataDir)
	require.NoError(t, err)
	assert.Equal(t, auction.StatusInactive, current.Status)
}

func TestCloseWithoutActivePeriod(t *testing.T) {
	opts, _ := testEnv(t, autoConfigTOML)

	out, err := execute(t, NewCloseCommand(opts))
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, string(auction.ErrCodeNoActivePeriod))
}

func TestCloseUnconfiguredGatewayLeavesPeriodClosing(t *testing.T) {
	t.Setenv("POLAR_ACCESS_TOKEN", "")
	t.Setenv("STRIPE_SECRET_KEY", "")

	opts, clock := testEnv(t, autoConfigTOML)
	mustOpenPeriod(t, opts)
	mustSubmitBid(t, opts, "alice", "55", "1001")

	// Link alice so close reaches the gateway, which has no credentials.
	reg, err := store.LoadBidders(opts.DataDir)
	require.NoError(t, err)
	reg.MarkPaymentLinked("alice", "cus_1", "pm_1", clock.Now())
	require.NoError(t, store.SaveBidders(reg, opts.DataDir))

	_, err = execute(t, NewCloseCommand(opts))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	// The period stays closing so a retried close can resume.
	current, loadErr := store.LoadPeriod(opts.DataDir)
	require.NoError(t, loadErr)
	assert.Equal(t, auction.StatusClosing, current.Status)
	assert.Equal(t, auction.BidApproved, current.Bids[0].Status)

	// Nothing was archived.
	_, statErr := os.Stat(filepath.Join(opts.DataDir, store.ArchiveDir))
	assert.True(t, os.IsNotExist(statErr))
}

func TestCloseRateLimitedProviderReportsThrottling(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"detail": "throttled"}`))
	}))
	defer srv.Close()
	t.Setenv("POLAR_ACCESS_TOKEN", "tok_test")
	t.Setenv("POLAR_API_URL", srv.URL)

	opts, clock := testEnv(t, autoConfigTOML)
	mustOpenPeriod(t, opts)
	mustSubmitBid(t, opts, "alice", "55", "1001")

	reg, err := store.LoadBidders(opts.DataDir)
	require.NoError(t, err)
	reg.MarkPaymentLinked("alice", "cus_1", "pm_1", clock.Now())
	require.NoError(t, store.SaveBidders(reg, opts.DataDir))

	out, err := execute(t, NewCloseCommand(opts))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	// Throttling is reported as its own code, not a generic outage.
	assert.Contains(t, out, string(payment.ErrCodeRateLimited))

	// The attempt is on the ledger and the period stays closing, so a
	// later tick resumes.
	ledger, err := store.OpenLedger(filepath.Join(opts.DataDir, store.LedgerFile))
	require.NoError(t, err)
	defer ledger.Close()
	charge, err := ledger.Lookup(context.Background(), "period-2026-03-01")
	require.NoError(t, err)
	require.NotNil(t, charge)
	assert.Equal(t, "failed", charge.Status)

	current, err := store.LoadPeriod(opts.DataDir)
	require.NoError(t, err)
	assert.Equal(t, auction.StatusClosing, current.Status)
	assert.Equal(t, auction.BidApproved, current.Bids[0].Status)
}
