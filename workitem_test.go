package scheduler

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestWorkItemInvokeRunsFn(t *testing.T) {
	ran := false
	item := newWorkItem(context.Background(), LaneClientFast, func(context.Context) {
		ran = true
	})
	item.invoke(context.Background(), nil)
	assert.True(t, ran)
}

func TestWorkItemInvokeRecoversPanicAndCountsIt(t *testing.T) {
	metrics := NewMetrics(prometheus.NewRegistry())
	item := newWorkItem(context.Background(), LaneClientFast, func(context.Context) {
		panic("boom")
	})

	require.NotPanics(t, func() {
		item.invoke(context.Background(), metrics)
	})
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.workerPanicsTotal))
}

func TestWorkItemCapturesLoggerAtEnqueueTime(t *testing.T) {
	observed := zap.NewNop()
	ctx := WithLogger(context.Background(), observed)

	var sawLogger *zap.Logger
	item := newWorkItem(ctx, LaneClientFast, func(innerCtx context.Context) {
		sawLogger = LoggerFromContext(innerCtx)
	})

	item.invoke(context.Background(), nil)
	assert.Same(t, observed, sawLogger)
}

func TestSentinelItemIsDistinguishable(t *testing.T) {
	other := newWorkItem(context.Background(), LaneClientFast, func(context.Context) {})
	assert.True(t, sentinelItem.isSentinel())
	assert.False(t, other.isSentinel())
}
