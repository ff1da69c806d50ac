package cli

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/titabash/kugutsu/internal/state"
	"github.com/titabash/kugutsu/internal/task"
)

func writeSnapshot(t *testing.T, baseRepo string) {
	t.Helper()

	ws, err := state.NewWorkspace(baseRepo, "add docs")
	require.NoError(t, err)

	tasks := []task.Task{
		{ID: "t1", Title: "Add README", Type: task.TypeDocs, Status: task.StatusMerged, Priority: task.PriorityMedium, BranchName: "feature/t1"},
		{ID: "t2", Title: "Add tests", Type: task.TypeTest, Status: task.StatusRunning, Priority: task.PriorityMedium},
		{ID: "t3", Title: "Refactor", Type: task.TypeRefactor, Status: task.StatusFailed, Priority: task.PriorityLow},
	}
	require.NoError(t, ws.WriteSnapshot("01TESTRUN", "add docs", tasks))
}

func TestShowStatus_RendersSnapshot(t *testing.T) {
	repo := t.TempDir()
	writeSnapshot(t, repo)

	var buf bytes.Buffer
	require.NoError(t, ShowStatus(&buf, StatusOptions{BaseRepo: repo}))

	out := buf.String()
	assert.Contains(t, out, "kugutsu run 01TESTRUN")
	assert.Contains(t, out, "Request: add docs")
	assert.Contains(t, out, "✓ merged     Add README  (feature/t1)")
	assert.Contains(t, out, "● running    Add tests")
	assert.Contains(t, out, "✗ failed     Refactor")
	assert.Contains(t, out, "1/3 merged")
	assert.Contains(t, out, "Tasks: 3 | Merged: 1 | Failed: 1 | In flight: 1")
}

func TestShowStatus_JSON(t *testing.T) {
	repo := t.TempDir()
	writeSnapshot(t, repo)

	var buf bytes.Buffer
	require.NoError(t, ShowStatus(&buf, StatusOptions{BaseRepo: repo, JSON: true}))

	var snap state.Snapshot
	require.NoError(t, json.Unmarshal(buf.Bytes(), &snap))
	assert.Equal(t, "01TESTRUN", snap.RunID)
	assert.Len(t, snap.Tasks, 3)
}

func TestShowStatus_NoSnapshot(t *testing.T) {
	var buf bytes.Buffer
	err := ShowStatus(&buf, StatusOptions{BaseRepo: t.TempDir()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no pipeline status")
}

func TestProgressBar(t *testing.T) {
	assert.Equal(t, "[██████████░░░░░░░░░░]", progressBar(1, 2, 20))
	assert.Equal(t, "[░░░░░░░░░░]", progressBar(0, 0, 10))
	assert.Equal(t, "[██████████]", progressBar(5, 3, 10))
}
