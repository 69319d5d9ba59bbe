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

func TestOutputFormatter_JSONSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	f := &OutputFormatter{Format: "json", Writer: buf}

	require.NoError(t, f.Success(map[string]int{"scopes": 2}))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, map[string]any{"scopes": float64(2)}, resp.Data)
	assert.Nil(t, resp.Error)
}

func TestOutputFormatter_JSONError(t *testing.T) {
	buf := &bytes.Buffer{}
	f := &OutputFormatter{Format: "json", Writer: buf}

	require.NoError(t, f.Error(ErrCodeGeneration, "1 scope failed", []string{"start_hero"}))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeGeneration, resp.Error.Code)
	assert.Equal(t, "1 scope failed", resp.Error.Message)
	assert.NotNil(t, resp.Error.Details)
}

func TestOutputFormatter_TextError(t *testing.T) {
	tests := []struct {
		name        string
		verbose     bool
		wantDetails bool
	}{
		{"quiet", false, false},
		{"verbose", true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			f := &OutputFormatter{Format: "text", Writer: buf, Verbose: tt.verbose}

			require.NoError(t, f.Error(ErrCodeNotFound, "state file not found", "x.state"))
			assert.Contains(t, buf.String(), "Error [E002]: state file not found")
			if tt.wantDetails {
				assert.Contains(t, buf.String(), "Details: x.state")
			} else {
				assert.NotContains(t, buf.String(), "Details:")
			}
		})
	}
}

func TestOutputFormatter_Fail(t *testing.T) {
	buf := &bytes.Buffer{}
	f := &OutputFormatter{Format: "text", Writer: buf}

	err := f.Fail(ExitCommandError, ErrCodeInvalidArgs, "choose one source", nil)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, buf.String(), "choose one source")
}

func TestOutputFormatter_VerboseLogGoesToErrWriter(t *testing.T) {
	out, diag := &bytes.Buffer{}, &bytes.Buffer{}
	f := &OutputFormatter{Format: "json", Writer: out, ErrWriter: diag, Verbose: true}

	f.VerboseLog("loaded %d deltas", 12)
	assert.Empty(t, out.String())
	assert.Equal(t, "loaded 12 deltas\n", diag.String())

	f.Verbose = false
	f.VerboseLog("dropped")
	assert.NotContains(t, diag.String(), "dropped")
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitSuccess, GetExitCode(nil))
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("plain")))
	assert.Equal(t, ExitCommandError, GetExitCode(fmt.Errorf("wrapped: %w", NewExitError(ExitCommandError, "bad"))))

	inner := errors.New("disk full")
	err := WrapExitError(ExitFailure, "save failed", inner)
	assert.ErrorIs(t, err, inner)
	assert.Equal(t, "save failed: disk full", err.Error())
}
