package cmd

import (
	"bytes"
	"chschema/internal/report"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const eventsSchema = `
database: analytics
definitions:
  - kind: table
    name: events
    engine: MergeTree()
    order_by: [id]
    columns:
      - {name: id, type: UInt64}
      - {name: ts, type: DateTime}
  - kind: view
    name: recent
    query: SELECT id FROM analytics.events
    depends_on: [events]
`

func run(t *testing.T, args ...string) (map[string]any, int) {
	t.Helper()
	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)
	code := Execute()

	var payload map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &payload), "stdout: %s\nstderr: %s", out.String(), errOut.String())
	return payload, code
}

func TestCommandsEndToEnd(t *testing.T) {
	dir := t.TempDir()
	schemaDir := filepath.Join(dir, "schema")
	migrations := filepath.Join(dir, "migrations")
	require.NoError(t, os.MkdirAll(schemaDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(schemaDir, "events.yaml"), []byte(eventsSchema), 0o644))
	t.Setenv("CHSCHEMA_JOURNAL_PATH", filepath.Join(dir, "journal.json"))

	common := []string{"-o", "json", "-s", schemaDir, "-m", migrations}

	payload, code := run(t, append([]string{"generate", "--name", "init"}, common...)...)
	require.Equal(t, report.ExitOK, code, "%v", payload)
	assert.Equal(t, true, payload["ok"])
	assert.Equal(t, "generate", payload["command"])
	name, _ := payload["migration"].(string)
	require.NotEmpty(t, name)
	assert.FileExists(t, filepath.Join(migrations, name))
	assert.Len(t, payload["operations"], 3)

	payload, code = run(t, append([]string{"migrate"}, common...)...)
	require.Equal(t, report.ExitOK, code, "%v", payload)
	pending, _ := payload["pending"].([]any)
	require.Len(t, pending, 1)
	assert.Equal(t, name, pending[0].(map[string]any)["name"])

	payload, code = run(t, append([]string{"status"}, common...)...)
	require.Equal(t, report.ExitOK, code, "%v", payload)
	assert.Equal(t, float64(1), payload["pending"])
	assert.Equal(t, float64(0), payload["applied"])

	graphFile := filepath.Join(dir, "docs", "schema.md")
	payload, code = run(t, append([]string{"graph", "-f", "mermaid", "--file", graphFile}, common...)...)
	require.Equal(t, report.ExitOK, code, "%v", payload)
	assert.Equal(t, float64(2), payload["objects"])
	assert.Equal(t, float64(1), payload["edges"])
	assert.FileExists(t, graphFile)

	// executing needs a ClickHouse DSN
	payload, code = run(t, append([]string{"migrate", "--execute"}, common...)...)
	assert.Equal(t, report.ExitError, code)
	assert.Equal(t, false, payload["ok"])
}
