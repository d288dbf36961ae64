package main

import (
	"bytes"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var idPattern = regexp.MustCompile(`[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}`)

// persistentConfig writes a config using on-disk backends so state survives
// between command invocations.
func persistentConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
logging:
  level: ERROR
store:
  type: badger
  badger:
    db_path: ` + filepath.Join(dir, "tree") + `
audit:
  type: sqlite
  sqlite:
    path: ` + filepath.Join(dir, "audit.db") + `
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func firstID(t *testing.T, output string) string {
	t.Helper()
	id := idPattern.FindString(output)
	require.NotEmpty(t, id, "no node id in output:\n%s", output)
	return id
}

func TestInitCmd_WritesConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	out, err := run(t, "init", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, path)
	assert.FileExists(t, path)

	_, err = run(t, "init", "--config", path)
	assert.Error(t, err, "init must not overwrite without --force")
}

func TestCheckCmd(t *testing.T) {
	cfg := persistentConfig(t)

	out, err := run(t, "--config", cfg, "check")
	require.NoError(t, err)
	assert.Contains(t, out, "badger (ok)")
	assert.Contains(t, out, "sqlite")
}

func TestCommands_DeleteAndRestore(t *testing.T) {
	cfg := persistentConfig(t)
	as := func(args ...string) (string, error) {
		return run(t, append([]string{"--config", cfg, "--user", "alice"}, args...)...)
	}

	out, err := as("workspace", "create")
	require.NoError(t, err)
	ws := firstID(t, out)

	out, err = as("add", ws, "A")
	require.NoError(t, err)
	a := firstID(t, out)

	out, err = as("add", a, "Report", "--kind", "document")
	require.NoError(t, err)
	report := firstID(t, out)

	out, err = as("plan", a, ws)
	require.NoError(t, err)
	assert.Contains(t, out, "/alice/A")
	assert.Less(t, strings.Index(out, report), strings.Index(out, a), "children are planned before their parent")

	out, err = as("delete", a, ws)
	require.NoError(t, err)
	assert.Contains(t, out, "2 deleted, 0 unshared, 0 failed")

	out, err = as("trash")
	require.NoError(t, err)
	assert.Contains(t, out, a)
	assert.Contains(t, out, report)

	out, err = as("restore", a)
	require.NoError(t, err)
	assert.Contains(t, out, "Restored 2 nodes")

	out, err = as("ls", ws)
	require.NoError(t, err)
	assert.Contains(t, out, a)

	out, err = as("history", report)
	require.NoError(t, err)
	assert.Contains(t, out, "delete")
	assert.Contains(t, out, "restore")
}

func TestCommands_PermissionDenied(t *testing.T) {
	cfg := persistentConfig(t)

	out, err := run(t, "--config", cfg, "--user", "alice", "workspace", "create")
	require.NoError(t, err)
	ws := firstID(t, out)

	_, err = run(t, "--config", cfg, "--user", "mallory", "add", ws, "Intruder")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "lacks write permission")
}
