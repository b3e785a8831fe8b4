package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	_ Callback   = (*CostTracker)(nil)
	_ StepLogger = (*LoggerStepLogger)(nil)
	_ StepLogger = (*RecordingStepLogger)(nil)
)

func TestCostTracker_Accumulates(t *testing.T) {
	tracker := NewCostTracker(1.0, 10.0, nil)
	ctx := context.Background()

	require.NoError(t, tracker.OnComplete(ctx, ExecutionMetrics{TaskID: "t1", TotalCostUSD: 0.25}))
	require.NoError(t, tracker.OnComplete(ctx, ExecutionMetrics{TaskID: "t2", TotalCostUSD: 0.50}))

	assert.InDelta(t, 0.75, tracker.TotalCostUSD(), 1e-9)
	execs := tracker.Executions()
	require.Len(t, execs, 2)
	assert.Equal(t, "t1", execs[0].TaskID)
	assert.Equal(t, "t2", execs[1].TaskID)
}

func TestRecordingStepLogger(t *testing.T) {
	recorder := &RecordingStepLogger{}
	ctx := context.Background()

	require.NoError(t, recorder.LogStep(ctx, StepEvent{Type: StepToolCall, Turn: 0}))
	require.NoError(t, recorder.LogStep(ctx, StepEvent{Type: StepTurnComplete, Turn: 0}))

	steps := recorder.Steps()
	require.Len(t, steps, 2)
	assert.Equal(t, StepToolCall, steps[0].Type)
	assert.Equal(t, StepTurnComplete, steps[1].Type)
}
