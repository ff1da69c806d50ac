package state

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHistory_RecordAndQuery(t *testing.T) {
	h, err := OpenHistory(t.TempDir())
	require.NoError(t, err)
	defer h.Close()

	start := time.Date(2026, 8, 26, 10, 0, 0, 0, time.UTC)
	require.NoError(t, h.RecordRunStart("run-1", "add auth", start))
	require.NoError(t, h.RecordTaskOutcome("run-1", "t1", "add README", "feature", "merged", 90*time.Second, ""))
	require.NoError(t, h.RecordTaskOutcome("run-1", "t2", "add tests", "test", "failed", 30*time.Second, "review limit exceeded"))
	require.NoError(t, h.RecordRunFinish("run-1", start.Add(2*time.Minute), 1, 1, 0))

	outcomes, err := h.TaskOutcomes("run-1")
	require.NoError(t, err)
	require.Len(t, outcomes, 2)

	assert.Equal(t, "t1", outcomes[0].TaskID)
	assert.Equal(t, "merged", outcomes[0].Status)
	assert.Equal(t, 90*time.Second, outcomes[0].Duration)
	assert.Empty(t, outcomes[0].Error)

	assert.Equal(t, "t2", outcomes[1].TaskID)
	assert.Equal(t, "review limit exceeded", outcomes[1].Error)
}

func TestHistory_TaskOutcomeUpsert(t *testing.T) {
	h, err := OpenHistory(t.TempDir())
	require.NoError(t, err)
	defer h.Close()

	require.NoError(t, h.RecordRunStart("run-1", "demo", time.Now()))
	require.NoError(t, h.RecordTaskOutcome("run-1", "t1", "task", "feature", "failed", time.Second, "boom"))
	require.NoError(t, h.RecordTaskOutcome("run-1", "t1", "task", "feature", "merged", 2*time.Second, ""))

	outcomes, err := h.TaskOutcomes("run-1")
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.Equal(t, "merged", outcomes[0].Status)
	assert.Equal(t, 2*time.Second, outcomes[0].Duration)
}

func TestHistory_NilSafe(t *testing.T) {
	var h *History
	assert.NoError(t, h.RecordRunStart("r", "req", time.Now()))
	assert.NoError(t, h.RecordRunFinish("r", time.Now(), 0, 0, 0))
	assert.NoError(t, h.RecordTaskOutcome("r", "t", "x", "feature", "merged", 0, ""))
	outcomes, err := h.TaskOutcomes("r")
	assert.NoError(t, err)
	assert.Nil(t, outcomes)
	assert.NoError(t, h.Close())
}
