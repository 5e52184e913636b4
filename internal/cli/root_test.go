package cli

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "latticekv", cmd.Use)
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	names := []string{"serve", "get", "put", "delete", "scan", "apply", "dequeue"}

	for _, name := range names {
		t.Run(name, func(t *testing.T) {
			subCmd, _, err := cmd.Find([]string{name})
			require.NoError(t, err, "command %s should exist", name)
			assert.Equal(t, name, subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	dbFlag := cmd.PersistentFlags().Lookup("db")
	require.NotNil(t, dbFlag)

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
}

func execCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestPutGetDeleteRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kv.sqlite3")

	out, err := execCLI(t, "--db", path, "put", "greeting", "--value", "hello")
	require.NoError(t, err)
	assert.Contains(t, out, "committed versionstamp")

	out, err = execCLI(t, "--db", path, "get", "greeting")
	require.NoError(t, err)
	assert.Contains(t, out, "hello")

	out, err = execCLI(t, "--db", path, "delete", "greeting")
	require.NoError(t, err)
	assert.Contains(t, out, "deleted")

	_, err = execCLI(t, "--db", path, "get", "greeting")
	assert.Error(t, err)
}

func TestScanReportsEntryCount(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kv.sqlite3")

	_, err := execCLI(t, "--db", path, "put", "items", "a", "--value", "1")
	require.NoError(t, err)
	_, err = execCLI(t, "--db", path, "put", "items", "b", "--value", "2")
	require.NoError(t, err)

	out, err := execCLI(t, "--db", path, "scan", "items")
	require.NoError(t, err)
	assert.Contains(t, out, "# 2 entries")
}
