package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFailf_WrapsUnderlyingError(t *testing.T) {
	underlying := errors.New("boom")
	err := failf(ExitCommandError, "open journal: %w", underlying)

	assert.EqualError(t, err, "open journal: boom")
	assert.ErrorIs(t, err, underlying)
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, ExitSuccess, ExitCode(nil))
	assert.Equal(t, ExitCommandError, ExitCode(failf(ExitCommandError, "x")))
	assert.Equal(t, ExitFailure, ExitCode(errors.New("plain")))
	assert.Equal(t, ExitCommandError,
		ExitCode(fmt.Errorf("wrapped: %w", failf(ExitCommandError, "x"))))
}

func TestPrinter_TextSuccess(t *testing.T) {
	var buf bytes.Buffer
	p := printer{out: &buf}

	require.NoError(t, p.ok("all good"))
	assert.Equal(t, "all good\n", buf.String())
}

func TestPrinter_JSONSuccess(t *testing.T) {
	var buf bytes.Buffer
	p := printer{json: true, out: &buf}

	require.NoError(t, p.ok(map[string]any{"count": 3}))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Nil(t, resp.Error)
}

func TestPrinter_JSONFailure(t *testing.T) {
	var buf bytes.Buffer
	p := printer{json: true, out: &buf}

	err := p.fail(ExitFailure, "it broke", "details here")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, ExitCode(err))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "it broke", resp.Error.Message)
}

func TestPrinter_TextFailureVerboseDetails(t *testing.T) {
	var buf bytes.Buffer
	p := printer{verbose: true, out: &buf}

	err := p.fail(ExitCommandError, "it broke", "stack")
	assert.Equal(t, ExitCommandError, ExitCode(err))
	assert.Contains(t, buf.String(), "Error: it broke")
	assert.Contains(t, buf.String(), "stack")
}
