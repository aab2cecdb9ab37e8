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

func TestFormatter_JSONSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	f := &Formatter{Format: "json", Writer: buf}

	require.NoError(t, f.Success(map[string]string{"result": "success"}, "ignored"))

	var resp Response
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.NotNil(t, resp.Data)
	assert.Nil(t, resp.Error)
}

func TestFormatter_TextSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	f := &Formatter{Format: "text", Writer: buf}

	require.NoError(t, f.Success(map[string]string{"result": "success"}, "done\n"))
	assert.Equal(t, "done\n", buf.String())
}

func TestFormatter_JSONFail(t *testing.T) {
	buf := &bytes.Buffer{}
	f := &Formatter{Format: "json", Writer: buf}

	err := f.Fail(ExitCommandError, ErrCodeStore, "store not found", map[string]string{"path": "x.db"})
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	var resp Response
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeStore, resp.Error.Code)
	assert.Equal(t, "store not found", resp.Error.Message)
	assert.NotNil(t, resp.Error.Details)
}

func TestFormatter_TextFail(t *testing.T) {
	buf := &bytes.Buffer{}
	f := &Formatter{Format: "text", Writer: buf, Verbose: true}

	err := f.Fail(ExitFailure, ErrCodeSchema, "bad kind", "line 3")
	require.Error(t, err)
	assert.Equal(t, "Error [E_SCHEMA]: bad kind\nDetails: line 3\n", buf.String())
}

func TestFormatter_Verbosef(t *testing.T) {
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}

	quiet := &Formatter{Format: "json", Writer: out, ErrWriter: errOut}
	quiet.Verbosef("hidden %d", 1)
	assert.Empty(t, errOut.String())

	loud := &Formatter{Format: "json", Writer: out, ErrWriter: errOut, Verbose: true}
	loud.Verbosef("shown %d", 2)
	assert.Equal(t, "shown 2\n", errOut.String())
	assert.Empty(t, out.String())
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitCommandError, GetExitCode(NewExitError(ExitCommandError, "x")))
	wrapped := fmt.Errorf("outer: %w", WrapExitError(ExitFailure, "inner", errors.New("cause")))
	assert.Equal(t, ExitFailure, GetExitCode(wrapped))
	assert.Contains(t, wrapped.Error(), "inner: cause")
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("plain")))
}
