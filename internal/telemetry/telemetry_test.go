package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInitInstallsProvidersOnce(t *testing.T) {
	first, err := Init(context.Background(), Config{ServiceName: "auditor-test", Version: "test"})
	require.NoError(t, err)
	require.NotNil(t, first.Tracer)
	require.NotNil(t, first.Meter)

	second, err := Init(context.Background(), Config{ServiceName: "ignored"})
	require.NoError(t, err)
	require.Same(t, first, second)

	_, span := Tracer().Start(context.Background(), "unit")
	require.True(t, span.SpanContext().IsValid())
	span.End()

	require.NoError(t, first.Shutdown(context.Background()))
}

func TestNilProvidersShutdown(t *testing.T) {
	t.Parallel()

	var p *Providers
	require.NoError(t, p.Shutdown(context.Background()))
}
