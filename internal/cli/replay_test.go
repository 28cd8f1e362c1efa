package cli

import (
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/graphline/internal/audit"
)

func seedJournal(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "audit.db")
	journal, err := audit.Open(path)
	require.NoError(t, err)
	defer journal.Close()

	require.NoError(t, journal.SessionOpened("sess-1", time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)))
	require.NoError(t, journal.CommandHandled("sess-1", 1, "ADD NODE a", "NODE ADDED"))
	require.NoError(t, journal.CommandHandled("sess-1", 2, "SHORTEST PATH a a", "0"))
	require.NoError(t, journal.SessionClosed("sess-1", "client-9", 1500*time.Millisecond))

	require.NoError(t, journal.SessionOpened("sess-2", time.Date(2024, 5, 1, 9, 5, 0, 0, time.UTC)))
	require.NoError(t, journal.SessionClosed("sess-2", "", 0))
	return path
}

func TestReplay_ListsSessions(t *testing.T) {
	path := seedJournal(t)

	out, err := execute(t, "replay", "--db", path)
	require.NoError(t, err)
	assert.Contains(t, out, "sess-1")
	assert.Contains(t, out, "client-9")
	assert.Contains(t, out, "sess-2")
	assert.Contains(t, out, "2 sessions, 2 commands recorded")
}

func TestReplay_JSONListing(t *testing.T) {
	path := seedJournal(t)

	out, err := execute(t, "--format", "json", "replay", "--db", path)
	require.NoError(t, err)

	var resp struct {
		Status string           `json:"status"`
		Data   ReplayListResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 2, resp.Data.TotalSessions)
	assert.Equal(t, 2, resp.Data.TotalCommands)
	require.Len(t, resp.Data.Sessions, 2)
	assert.Equal(t, int64(1500), resp.Data.Sessions[0].DurationMS)
}

func TestReplay_PrintsTranscript(t *testing.T) {
	path := seedJournal(t)

	out, err := execute(t, "replay", "--db", path, "--session", "sess-1")
	require.NoError(t, err)
	assert.Contains(t, out, "C: ADD NODE a")
	assert.Contains(t, out, "S: NODE ADDED")
	assert.Contains(t, out, "C: SHORTEST PATH a a")
	assert.Contains(t, out, "S: 0")
}

func TestReplay_UnknownSessionFails(t *testing.T) {
	path := seedJournal(t)

	_, err := execute(t, "replay", "--db", path, "--session", "ghost")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, ExitCode(err))
}

func TestReplay_RequiresDatabaseFlag(t *testing.T) {
	_, err := execute(t, "replay")
	assert.Error(t, err)
}
