package cli

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bidme/bidme/internal/registry"
	"github.com/bidme/bidme/internal/store"
)

func TestLinkRecordsCompletedLink(t *testing.T) {
	opts, _ := testEnv(t, autoConfigTOML)

	_, err := execute(t, NewLinkCommand(opts),
		"--bidder", "alice", "--customer-id", "cus_1", "--payment-method-id", "pm_1")
	require.NoError(t, err)

	reg, err := store.LoadBidders(opts.DataDir)
	require.NoError(t, err)
	rec := reg.Lookup("alice")
	require.NotNil(t, rec)
	assert.True(t, rec.PaymentLinked)
	assert.Equal(t, "cus_1", rec.StripeCustomerID)
	assert.Equal(t, "pm_1", rec.StripePaymentMethodID)
	require.NotNil(t, rec.LinkedAt)
}

func TestLinkClearsGraceWarning(t *testing.T) {
	opts, clock := testEnv(t, autoConfigTOML)

	reg := registry.New()
	reg.Register("alice")
	reg.SetWarnedAt("alice", clock.Now().Add(-2*time.Hour))
	require.NoError(t, store.SaveBidders(reg, opts.DataDir))

	_, err := execute(t, NewLinkCommand(opts),
		"--bidder", "alice", "--customer-id", "cus_1", "--payment-method-id", "pm_1")
	require.NoError(t, err)

	reg, err = store.LoadBidders(opts.DataDir)
	require.NoError(t, err)
	rec := reg.Lookup("alice")
	assert.True(t, rec.PaymentLinked)
	assert.Nil(t, rec.WarnedAt, "linking must end the grace cycle")
}

func TestLinkSetupSessionWithoutCredentialsFails(t *testing.T) {
	t.Setenv("POLAR_ACCESS_TOKEN", "")
	t.Setenv("STRIPE_SECRET_KEY", "")
	opts, _ := testEnv(t, autoConfigTOML)

	_, err := execute(t, NewLinkCommand(opts),
		"--bidder", "alice", "--email", "alice@example.com")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
