package harness

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScenarios_MatchGoldenTranscripts(t *testing.T) {
	paths, err := filepath.Glob(filepath.Join("testdata", "scenarios", "*.yaml"))
	require.NoError(t, err)
	require.NotEmpty(t, paths, "no scenario files found")

	for _, path := range paths {
		sc, err := LoadScenario(path)
		require.NoError(t, err, path)

		t.Run(sc.Name, func(t *testing.T) {
			RunWithGolden(t, sc)
		})
	}
}

func TestRun_RecordsExpectationMismatch(t *testing.T) {
	sc := &Scenario{
		Name:      "mismatch",
		SessionID: "aaaaaaaa-0000-7000-8000-00000000000f",
		Steps: []Step{
			{Send: "HI, I AM 11111111-2222-3333-4444-555555555555", Expect: "HI nobody"},
			{Send: "BYE MATE!"},
		},
	}

	result, err := Run(sc)
	require.NoError(t, err)
	assert.False(t, result.Passed())
	require.Len(t, result.Failures, 1)
	assert.Contains(t, result.Failures[0], "step 1")
}

func TestRun_TerminatesWithoutFarewell(t *testing.T) {
	sc := &Scenario{
		Name:      "no_farewell",
		SessionID: "aaaaaaaa-0000-7000-8000-00000000000e",
		Steps: []Step{
			{Send: "HI, I AM 11111111-2222-3333-4444-555555555555"},
			{Send: "ADD NODE lonely", Expect: "NODE ADDED"},
		},
	}

	result, err := Run(sc)
	require.NoError(t, err)
	assert.True(t, result.Passed())
	assert.Len(t, result.Transcript, 5)
}
