package observability

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/KhangNguyen-1412/freshfood-ecommerce-sub000/internal/platform/requestctx"
)

func TestServiceLoggerLevels(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := ServiceLogger(zap.New(core), "settlement")
	ctx := context.Background()

	log(ctx, "order.created", map[string]any{"orderId": "ord-1"})
	log(ctx, "callback.signature.mismatch", map[string]any{"security": true, "orderId": "ord-2"})
	log(ctx, "order.event.publish.failed", map[string]any{"error": "boom"})

	entries := logs.All()
	require.Len(t, entries, 3)
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	assert.Equal(t, "settlement", entries[0].LoggerName)
	assert.Equal(t, "ord-1", entries[0].ContextMap()["orderId"])
	assert.Equal(t, "order.created", entries[0].ContextMap()["event"])
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	assert.Equal(t, zapcore.WarnLevel, entries[2].Level)
}

func TestServiceLoggerPrefersRequestLogger(t *testing.T) {
	fallbackCore, fallbackLogs := observer.New(zapcore.DebugLevel)
	requestCore, requestLogs := observer.New(zapcore.DebugLevel)
	log := ServiceLogger(zap.New(fallbackCore), "")

	ctx := requestctx.WithLogger(context.Background(), zap.New(requestCore).With(zap.String("request_id", "req-1")))
	log(ctx, "loyalty.recorded", nil)

	assert.Equal(t, 0, fallbackLogs.Len())
	require.Equal(t, 1, requestLogs.Len())
	assert.Equal(t, "req-1", requestLogs.All()[0].ContextMap()["request_id"])
}

func TestNewLoggerFallsBackToInfo(t *testing.T) {
	logger, err := NewLogger("not-a-level")
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zapcore.InfoLevel))
	assert.False(t, logger.Core().Enabled(zapcore.DebugLevel))

	logger, err = NewLogger("DEBUG")
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zapcore.DebugLevel))
}
