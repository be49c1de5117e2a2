package ledger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dokzlo13/lightseq/internal/db"
)

func openLedger(t *testing.T) *Ledger {
	t.Helper()
	database, err := db.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	return New(database.DB)
}

func TestLedger_RunHistory(t *testing.T) {
	l := openLedger(t)

	require.NoError(t, l.Append(EventPatternStarted, "run-1", "Police", map[string]any{"steps": 3}))
	require.NoError(t, l.Append(EventStepFailed, "run-1", "Police", map[string]any{"step": 1, "failed": 2}))
	require.NoError(t, l.Append(EventPatternStarted, "run-2", "Calm", nil))
	require.NoError(t, l.Append(EventPatternStopped, "run-1", "Police", nil))

	entries, err := l.GetByRun("run-1")
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, EventPatternStarted, entries[0].EventType)
	assert.Equal(t, EventStepFailed, entries[1].EventType)
	assert.Equal(t, float64(2), entries[1].Payload["failed"])
	assert.Equal(t, EventPatternStopped, entries[2].EventType)
	assert.Equal(t, "Police", entries[2].Pattern)
	assert.Nil(t, entries[2].Payload)

	started, err := l.GetByType(EventPatternStarted, 10)
	require.NoError(t, err)
	require.Len(t, started, 2)
	assert.Equal(t, "run-2", started[0].RunID)
}

func TestLedger_DeleteOlderThan(t *testing.T) {
	l := openLedger(t)
	require.NoError(t, l.Append(EventPatternStarted, "run-1", "Police", nil))

	n, err := l.DeleteOlderThan(time.Hour)
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = l.DeleteOlderThan(-time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
