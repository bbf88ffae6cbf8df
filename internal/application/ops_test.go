package application

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/symphainy/trafficcop/internal/domain"
)

func TestParseOpRoundTrip(t *testing.T) {
	t.Parallel()

	for _, op := range Ops() {
		parsed, err := ParseOp(" " + op.String() + " ")
		require.NoError(t, err)
		assert.Equal(t, op, parsed)
	}

	_, err := ParseOp("unknown")
	require.ErrorIs(t, err, domain.ErrInvalidArgument)
	assert.Equal(t, "op(99)", Op(99).String())
}

func TestSettingsDefaults(t *testing.T) {
	t.Parallel()

	settings := DefaultSettings()
	assert.Equal(t, DefaultSessionTTL, settings.SessionTTL)
	assert.Equal(t, DefaultSessionTTL, settings.TempTTL)
	assert.Equal(t, domain.StrategyOverride, settings.PushStrategy)
	assert.Equal(t, TenantPolicyEnforce, settings.TenantPolicy)
	assert.Equal(t, DefaultDimensions, settings.Dimensions)
	require.NoError(t, settings.Validate())

	policy, err := ParseTenantPolicy("Advisory")
	require.NoError(t, err)
	assert.Equal(t, TenantPolicyAdvisory, policy)
	_, err = ParseTenantPolicy("lenient")
	require.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestTempTTLFollowsSessionTTL(t *testing.T) {
	t.Parallel()

	settings := Settings{SessionTTL: 2 * time.Hour}.withDefaults()
	assert.Equal(t, 2*time.Hour, settings.TempTTL)

	settings = Settings{SessionTTL: 2 * time.Hour, TempTTL: 15 * time.Minute}.withDefaults()
	assert.Equal(t, 15*time.Minute, settings.TempTTL)
}
