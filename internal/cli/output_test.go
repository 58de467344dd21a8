package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitSuccess, GetExitCode(nil))
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("plain")))
	assert.Equal(t, ExitCommandError, GetExitCode(NewExitError(ExitCommandError, "bad path")))

	wrapped := fmt.Errorf("outer: %w", WrapExitError(ExitFailure, "run failed", errors.New("inner")))
	assert.Equal(t, ExitFailure, GetExitCode(wrapped))
}

func TestExitErrorMessage(t *testing.T) {
	assert.Equal(t, "bad path", NewExitError(ExitCommandError, "bad path").Error())

	inner := errors.New("no such file")
	err := WrapExitError(ExitCommandError, "failed to open database", inner)
	assert.Equal(t, "failed to open database: no such file", err.Error())
	assert.ErrorIs(t, err, inner)
}

type textResult struct{ N int }

func (r textResult) Text(w io.Writer) { fmt.Fprintf(w, "n=%d\n", r.N) }

func TestOutputFormatter(t *testing.T) {
	t.Run("text success uses Texter", func(t *testing.T) {
		var buf bytes.Buffer
		f := &OutputFormatter{Format: "text", Writer: &buf}
		require.NoError(t, f.Success(textResult{N: 3}))
		assert.Equal(t, "n=3\n", buf.String())
	})

	t.Run("json success", func(t *testing.T) {
		var buf bytes.Buffer
		f := &OutputFormatter{Format: "json", Writer: &buf}
		require.NoError(t, f.Success(textResult{N: 3}))

		var resp CLIResponse
		require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
		assert.Equal(t, "ok", resp.Status)
		assert.Nil(t, resp.Error)
	})

	t.Run("json error", func(t *testing.T) {
		var buf bytes.Buffer
		f := &OutputFormatter{Format: "json", Writer: &buf}
		require.NoError(t, f.Error(ErrCodeParse, "unexpected )", nil))

		var resp CLIResponse
		require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
		assert.Equal(t, "error", resp.Status)
		require.NotNil(t, resp.Error)
		assert.Equal(t, "E008", resp.Error.Code)
		assert.Equal(t, "unexpected )", resp.Error.Message)
	})

	t.Run("text failure prints result and code", func(t *testing.T) {
		var buf bytes.Buffer
		f := &OutputFormatter{Format: "text", Writer: &buf}
		require.NoError(t, f.Failure(ErrCodeMismatch, "differs", textResult{N: 1}))
		assert.Equal(t, "n=1\nError [E010]: differs\n", buf.String())
	})

	t.Run("verbose log goes to err writer", func(t *testing.T) {
		var out, errOut bytes.Buffer
		f := &OutputFormatter{Format: "json", Writer: &out, ErrWriter: &errOut, Verbose: true}
		f.VerboseLog("loaded %d rule(s)", 4)
		assert.Empty(t, out.String())
		assert.Equal(t, "loaded 4 rule(s)\n", errOut.String())
	})
}
