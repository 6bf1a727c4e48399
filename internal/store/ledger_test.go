package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestLedger(t *testing.T) *Ledger {
	t.Helper()
	l, err := OpenLedger(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l
}

func TestLedger_FirstBeginArmsAttempt(t *testing.T) {
	l := openTestLedger(t)
	ctx := context.Background()

	attempt, err := l.Begin(ctx, "period-2026-02-01", "alice", 55)
	require.NoError(t, err)
	assert.False(t, attempt.AlreadyCharged)
	assert.NotEmpty(t, attempt.RequestID)
}

func TestLedger_SucceededPeriodIsNeverRecharged(t *testing.T) {
	l := openTestLedger(t)
	ctx := context.Background()

	first, err := l.Begin(ctx, "period-2026-02-01", "alice", 55)
	require.NoError(t, err)
	require.NoError(t, l.MarkSucceeded(ctx, "period-2026-02-01", "ch_789"))

	second, err := l.Begin(ctx, "period-2026-02-01", "alice", 55)
	require.NoError(t, err)
	assert.True(t, second.AlreadyCharged)
	assert.Equal(t, "ch_789", second.ChargeID)
	assert.NotEqual(t, first.RequestID, "")
}

func TestLedger_ResumedPendingReusesRequestID(t *testing.T) {
	l := openTestLedger(t)
	ctx := context.Background()

	first, err := l.Begin(ctx, "period-2026-02-01", "alice", 55)
	require.NoError(t, err)

	// A crashed run resumes: same period, same bidder, no completion.
	second, err := l.Begin(ctx, "period-2026-02-01", "alice", 55)
	require.NoError(t, err)
	assert.False(t, second.AlreadyCharged)
	assert.Equal(t, first.RequestID, second.RequestID)
}

func TestLedger_FailedAttemptIsRearmed(t *testing.T) {
	l := openTestLedger(t)
	ctx := context.Background()

	first, err := l.Begin(ctx, "period-2026-02-01", "alice", 55)
	require.NoError(t, err)
	require.NoError(t, l.MarkFailed(ctx, "period-2026-02-01", "card declined"))

	second, err := l.Begin(ctx, "period-2026-02-01", "bob", 50)
	require.NoError(t, err)
	assert.False(t, second.AlreadyCharged)
	assert.NotEqual(t, first.RequestID, second.RequestID)

	rec, err := l.Lookup(ctx, "period-2026-02-01")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "bob", rec.Bidder)
	assert.Equal(t, int64(50), rec.Amount)
	assert.Equal(t, "pending", rec.Status)
}

func TestLedger_SupersededWinnerRearms(t *testing.T) {
	l := openTestLedger(t)
	ctx := context.Background()

	_, err := l.Begin(ctx, "period-2026-02-01", "alice", 55)
	require.NoError(t, err)

	// Same period, different bidder, still pending: the previous winner
	// was disqualified mid-close.
	attempt, err := l.Begin(ctx, "period-2026-02-01", "bob", 50)
	require.NoError(t, err)
	assert.False(t, attempt.AlreadyCharged)

	rec, err := l.Lookup(ctx, "period-2026-02-01")
	require.NoError(t, err)
	assert.Equal(t, "bob", rec.Bidder)
}

func TestLedger_MarkSucceededGuardsCompletedRow(t *testing.T) {
	l := openTestLedger(t)
	ctx := context.Background()

	_, err := l.Begin(ctx, "period-2026-02-01", "alice", 55)
	require.NoError(t, err)
	require.NoError(t, l.MarkSucceeded(ctx, "period-2026-02-01", "ch_1"))

	// A duplicate success report does not overwrite the recorded charge.
	require.NoError(t, l.MarkSucceeded(ctx, "period-2026-02-01", "ch_2"))
	rec, err := l.Lookup(ctx, "period-2026-02-01")
	require.NoError(t, err)
	assert.Equal(t, "ch_1", rec.ChargeID)
}

func TestLedger_MarkSucceededWithoutAttempt(t *testing.T) {
	l := openTestLedger(t)

	err := l.MarkSucceeded(context.Background(), "period-2026-02-01", "ch_1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no charge attempt recorded")
}

func TestLedger_LookupUnknownPeriod(t *testing.T) {
	l := openTestLedger(t)
	rec, err := l.Lookup(context.Background(), "period-1999-01-01")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestLedger_DistinctPeriodsAreIndependent(t *testing.T) {
	l := openTestLedger(t)
	ctx := context.Background()

	_, err := l.Begin(ctx, "period-2026-01-01", "alice", 55)
	require.NoError(t, err)
	require.NoError(t, l.MarkSucceeded(ctx, "period-2026-01-01", "ch_jan"))

	attempt, err := l.Begin(ctx, "period-2026-02-01", "alice", 60)
	require.NoError(t, err)
	assert.False(t, attempt.AlreadyCharged)
}
