package otel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSetupIsNoopWithoutEndpoint(t *testing.T) {
	t.Setenv(endpointEnv, "")

	shutdown, err := Setup(context.Background(), "trafficcop-test")
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}

func TestSetupIsNoopWhenDisabled(t *testing.T) {
	t.Setenv(endpointEnv, "http://127.0.0.1:4318")
	t.Setenv(enabledEnv, "false")

	shutdown, err := Setup(context.Background(), "trafficcop-test")
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}
