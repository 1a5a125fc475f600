package render

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/muesli/termenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jc-systemslogiq/agent-mail-cli/internal/errors"
)

func newTestPrinter(jsonMode bool) (*Printer, *bytes.Buffer, *bytes.Buffer) {
	var out, errOut bytes.Buffer
	return New(&out, &errOut, Options{JSON: jsonMode, Profile: termenv.Ascii}), &out, &errOut
}

func TestPrinter_JSON(t *testing.T) {
	p, out, _ := newTestPrinter(true)
	require.NoError(t, p.JSON(map[string]int{"count": 2}))
	assert.Equal(t, "{\n  \"count\": 2\n}\n", out.String())
	assert.True(t, p.JSONMode())
}

func TestPrinter_Raw(t *testing.T) {
	t.Run("string in text mode is bare", func(t *testing.T) {
		p, out, _ := newTestPrinter(false)
		require.NoError(t, p.Raw(json.RawMessage(`"ok"`)))
		assert.Equal(t, "ok\n", out.String())
	})

	t.Run("string in json mode stays quoted", func(t *testing.T) {
		p, out, _ := newTestPrinter(true)
		require.NoError(t, p.Raw(json.RawMessage(`"ok"`)))
		assert.Equal(t, "\"ok\"\n", out.String())
	})

	t.Run("object is indented", func(t *testing.T) {
		p, out, _ := newTestPrinter(false)
		require.NoError(t, p.Raw(json.RawMessage(`{"id":1}`)))
		assert.Equal(t, "{\n  \"id\": 1\n}\n", out.String())
	})

	t.Run("invalid json is echoed", func(t *testing.T) {
		p, out, _ := newTestPrinter(false)
		require.NoError(t, p.Raw(json.RawMessage(" not json \n")))
		assert.Equal(t, "not json\n", out.String())
	})
}

func TestPrinter_StatusLines(t *testing.T) {
	p, out, errOut := newTestPrinter(false)
	p.Success("Deleted agent '%s'", "BlueLake")
	p.Warning("careful")
	p.Failure("Failed to delete '%s'", "RedFox")
	p.Line("100% literal")

	assert.Equal(t, "✓ Deleted agent 'BlueLake'\n⚠ careful\n100% literal\n", out.String())
	assert.Equal(t, "✗ Failed to delete 'RedFox'\n", errOut.String())
}

func TestPrinter_Table(t *testing.T) {
	p, out, _ := newTestPrinter(false)
	p.Table([]string{"Name", "Task"}, [][]string{{"BlueLake", "refactor"}, {"GreenHill", ""}})

	lines := strings.Split(strings.TrimRight(out.String(), "\n"), "\n")
	require.Len(t, lines, 6)
	assert.Contains(t, lines[1], "Name")
	assert.Contains(t, lines[1], "Task")
	assert.Contains(t, lines[3], "BlueLake")
	assert.Contains(t, lines[3], "refactor")
	assert.Contains(t, lines[4], "GreenHill")
}

func TestPrinter_Error(t *testing.T) {
	t.Run("json mode writes envelope to out", func(t *testing.T) {
		p, out, errOut := newTestPrinter(true)
		p.Error(errors.NewNotFound("agent", "RedFox"))

		var got map[string]ErrorBody
		require.NoError(t, json.Unmarshal(out.Bytes(), &got))
		assert.Equal(t, errors.ErrNotFound, got["error"].Code)
		assert.Equal(t, 404, got["error"].Status)
		assert.Equal(t, "RedFox", got["error"].Details["key"])
		assert.Empty(t, errOut.String())
	})

	t.Run("internal errors hide details", func(t *testing.T) {
		p, out, _ := newTestPrinter(true)
		p.Error(fmt.Errorf("boom"))

		var got map[string]ErrorBody
		require.NoError(t, json.Unmarshal(out.Bytes(), &got))
		assert.Equal(t, errors.ErrInternal, got["error"].Code)
		assert.Nil(t, got["error"].Details)
	})

	t.Run("text mode writes to err", func(t *testing.T) {
		p, out, errOut := newTestPrinter(false)
		p.Error(errors.NewInvalidRequest("agent name required"))
		assert.Empty(t, out.String())
		assert.Equal(t, "error: [INVALID_REQUEST] agent name required\n", errOut.String())
	})
}
