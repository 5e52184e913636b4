package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/latticekv/lattice/internal/kvstore"
)

func TestLoadBatchFileParsesAllSections(t *testing.T) {
	path := filepath.Join(t.TempDir(), "batch.yaml")
	doc := `
checks:
  - key: ["users", "42"]
mutations:
  - key: ["users", "42"]
    kind: set
    value: hello
  - key: ["counters", "visits"]
    kind: sum
    operand: 5
enqueues:
  - payload: world
    backoff_schedule_ms: [10, 100]
    keys_if_undelivered:
      - ["dead-letters", "1"]
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	aw, err := loadBatchFile(path)
	require.NoError(t, err)

	require.Len(t, aw.Checks, 1)
	assert.Nil(t, aw.Checks[0].Expected)

	require.Len(t, aw.Mutations, 2)
	assert.Equal(t, kvstore.MutationSet, aw.Mutations[0].Kind)
	assert.Equal(t, kvstore.MutationSum, aw.Mutations[1].Kind)
	assert.EqualValues(t, 5, aw.Mutations[1].Operand)

	require.Len(t, aw.Enqueues, 1)
	assert.Equal(t, []byte("world"), aw.Enqueues[0].Payload)
	assert.Equal(t, []int64{10, 100}, aw.Enqueues[0].BackoffScheduleMs)
	require.Len(t, aw.Enqueues[0].KeysIfUndelivered, 1)
}

func TestLoadBatchFileRejectsUnknownMutationKind(t *testing.T) {
	path := filepath.Join(t.TempDir(), "batch.yaml")
	doc := `
mutations:
  - key: ["k"]
    kind: bogus
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	_, err := loadBatchFile(path)
	assert.Error(t, err)
}
