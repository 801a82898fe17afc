package observability

import (
	"context"
	"testing"

	"chatgate/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestInitOTel_DisabledByDefault(t *testing.T) {
	shutdown, err := InitOTel(context.Background(), models.TelemetryConfig{}, zap.NewNop())
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestInitOTel_UnknownExporter(t *testing.T) {
	_, err := InitOTel(context.Background(), models.TelemetryConfig{Exporter: "zipkin"}, zap.NewNop())
	assert.ErrorContains(t, err, "unknown telemetry exporter")
}

func TestSampleRatio(t *testing.T) {
	assert.Equal(t, 0.0, sampleRatio(0))
	assert.Equal(t, 1.0, sampleRatio(-1))
	assert.Equal(t, 1.0, sampleRatio(1))
	assert.Equal(t, 1.0, sampleRatio(3))
	assert.Equal(t, 0.25, sampleRatio(0.25))
}
