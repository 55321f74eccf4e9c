package otel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseHeaders(t *testing.T) {
	headers := ParseHeaders(" api-key = abc ,broken,=x,tenant=pool")
	require.Equal(t, map[string]string{"api-key": "abc", "tenant": "pool"}, headers)
	require.Empty(t, ParseHeaders(""))
}

func TestInitWithoutExporters(t *testing.T) {
	_, err := Init(context.Background(), Config{})
	require.Error(t, err)

	shutdown, err := Init(context.Background(), Config{ServiceName: "poold"})
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
	require.NotNil(t, Tracer("api"))
}

func TestInitRejectsBadSampleRatio(t *testing.T) {
	_, err := Init(context.Background(), Config{ServiceName: "poold", SampleRatio: 1.5})
	require.Error(t, err)
}

func TestSamplerDescribesRatio(t *testing.T) {
	require.Contains(t, sampler(0).Description(), "AlwaysOnSampler")
	require.Contains(t, sampler(0.25).Description(), "TraceIDRatioBased{0.25}")
}
