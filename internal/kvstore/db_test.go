package kvstore

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/latticekv/lattice/internal/keycodec"
	"github.com/latticekv/lattice/internal/kvvalue"
	"github.com/latticekv/lattice/internal/testutil"
)

func openTestDB(t *testing.T) (*Database, *testutil.FakeClock) {
	t.Helper()
	clock := testutil.NewFakeClock(time.Unix(1700000000, 0))
	db, err := Open(context.Background(), ":memory:", Options{
		Clock: clock,
		IDs:   testutil.NewFixedIDGenerator(t.Name()),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db, clock
}

func keyA(t *testing.T) keycodec.Key {
	t.Helper()
	return keycodec.Key{keycodec.String("a")}
}

func mustEncodeKey(t *testing.T, k keycodec.Key) []byte {
	t.Helper()
	enc, err := keycodec.Encode(k)
	require.NoError(t, err)
	return enc
}

func TestSetThenGet(t *testing.T) {
	db, _ := openTestDB(t)
	ctx := context.Background()

	result, err := db.AtomicWrite(ctx, AtomicWrite{
		Mutations: []Mutation{{Key: keyA(t), Kind: MutationSet, Value: kvvalue.V8Bytes{0x01}}},
	})
	require.NoError(t, err)
	require.NotNil(t, result)

	sel := Selector{Start: mustEncodeKey(t, keyA(t))}
	out, err := db.SnapshotRead(ctx, []ReadRange{{Selector: sel, Limit: 1}})
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Len(t, out[0], 1)
	assert.Equal(t, kvvalue.V8Bytes{0x01}, out[0][0].Value)
	assert.Equal(t, result.Versionstamp, out[0][0].Versionstamp)
}

func TestCheckThenSet(t *testing.T) {
	db, _ := openTestDB(t)
	ctx := context.Background()

	first, err := db.AtomicWrite(ctx, AtomicWrite{
		Mutations: []Mutation{{Key: keyA(t), Kind: MutationSet, Value: kvvalue.V8Bytes{0x01}}},
	})
	require.NoError(t, err)

	failed, err := db.AtomicWrite(ctx, AtomicWrite{
		Checks: []Check{{Key: keyA(t), Expected: nil}},
	})
	require.NoError(t, err)
	assert.Nil(t, failed)

	vs := first.Versionstamp
	second, err := db.AtomicWrite(ctx, AtomicWrite{
		Checks:    []Check{{Key: keyA(t), Expected: &vs}},
		Mutations: []Mutation{{Key: keyA(t), Kind: MutationSet, Value: kvvalue.V8Bytes{0x02}}},
	})
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.Greater(t, second.Versionstamp.VersionOf(), first.Versionstamp.VersionOf())

	sel := Selector{Start: mustEncodeKey(t, keyA(t))}
	out, err := db.SnapshotRead(ctx, []ReadRange{{Selector: sel, Limit: 1}})
	require.NoError(t, err)
	assert.Equal(t, kvvalue.V8Bytes{0x02}, out[0][0].Value)
}

func TestSumWithExpiration(t *testing.T) {
	db, clock := openTestDB(t)
	ctx := context.Background()
	keyN := keycodec.Key{keycodec.String("n")}

	_, err := db.AtomicWrite(ctx, AtomicWrite{
		Mutations: []Mutation{{Key: keyN, Kind: MutationSum, Operand: 5}},
	})
	require.NoError(t, err)

	expireIn := int64(1)
	_, err = db.AtomicWrite(ctx, AtomicWrite{
		Mutations: []Mutation{{Key: keyN, Kind: MutationSum, Operand: 5, ExpireInMs: &expireIn}},
	})
	require.NoError(t, err)

	sel := Selector{Start: mustEncodeKey(t, keyN)}
	out, err := db.SnapshotRead(ctx, []ReadRange{{Selector: sel, Limit: 1}})
	require.NoError(t, err)
	require.Len(t, out[0], 1)
	u, err := kvvalue.AsU64(out[0][0].Value)
	require.NoError(t, err)
	assert.EqualValues(t, 10, u)

	clock.Advance(5 * time.Second)
	require.NoError(t, db.sweepExpired(ctx))

	out, err = db.SnapshotRead(ctx, []ReadRange{{Selector: sel, Limit: 1}})
	require.NoError(t, err)
	assert.Empty(t, out[0])
}

func TestQueueHappyPath(t *testing.T) {
	db, _ := openTestDB(t)
	ctx := context.Background()

	_, err := db.AtomicWrite(ctx, AtomicWrite{
		Enqueues: []Enqueue{{Payload: []byte{0xAA}}},
	})
	require.NoError(t, err)

	dctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	msg, err := db.DequeueNextMessage(dctx)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xAA}, msg.Payload)

	require.NoError(t, msg.Finish(ctx, true))

	assertQueueEmpty(t, db)
}

func TestQueueRequeueThenDeadLetter(t *testing.T) {
	db, clock := openTestDB(t)
	ctx := context.Background()
	dlKey := keycodec.Key{keycodec.String("dl")}

	_, err := db.AtomicWrite(ctx, AtomicWrite{
		Enqueues: []Enqueue{{
			Payload:           []byte{0xBB},
			BackoffScheduleMs: []int64{10},
			KeysIfUndelivered: []keycodec.Key{dlKey},
		}},
	})
	require.NoError(t, err)

	dctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	msg, err := db.DequeueNextMessage(dctx)
	require.NoError(t, err)
	require.NoError(t, msg.Finish(ctx, false))

	clock.Advance(20 * time.Millisecond)

	dctx2, cancel2 := context.WithTimeout(ctx, 5*time.Second)
	defer cancel2()
	msg2, err := db.DequeueNextMessage(dctx2)
	require.NoError(t, err)
	require.NoError(t, msg2.Finish(ctx, false))

	sel := Selector{Start: mustEncodeKey(t, dlKey)}
	out, err := db.SnapshotRead(ctx, []ReadRange{{Selector: sel, Limit: 1}})
	require.NoError(t, err)
	require.Len(t, out[0], 1)
	assert.Equal(t, kvvalue.V8Bytes{0xBB}, out[0][0].Value)

	assertQueueEmpty(t, db)
}

func TestCrashRecoveryRedeliversMessage(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "kv.sqlite3")
	clock := testutil.NewFakeClock(time.Unix(1700000000, 0))

	db, err := Open(context.Background(), path, Options{Clock: clock, IDs: testutil.NewFixedIDGenerator("crash")})
	require.NoError(t, err)

	_, err = db.AtomicWrite(context.Background(), AtomicWrite{
		Enqueues: []Enqueue{{Payload: []byte{0xCC}}},
	})
	require.NoError(t, err)

	dctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	_, err = db.DequeueNextMessage(dctx)
	cancel()
	require.NoError(t, err) // dequeued but never finished

	require.NoError(t, db.Close())

	db2, err := Open(context.Background(), path, Options{Clock: clock, IDs: testutil.NewFixedIDGenerator("crash2")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db2.Close() })

	// The crash-recovery requeue runs on db2's dispatcher goroutine and
	// schedules the row at the fake clock's reading plus the default
	// backoff schedule's head delay. Keep advancing the fake clock so that
	// row becomes ready whenever the requeue happens.
	stopTicking := make(chan struct{})
	defer close(stopTicking)
	go func() {
		for {
			select {
			case <-stopTicking:
				return
			case <-time.After(10 * time.Millisecond):
				clock.Advance(time.Second)
			}
		}
	}()

	dctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	msg, err := db2.DequeueNextMessage(dctx2)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xCC}, msg.Payload)
	require.NoError(t, msg.Finish(context.Background(), true))
}

func assertQueueEmpty(t *testing.T, db *Database) {
	t.Helper()
	_, err := runTx(context.Background(), db.guard, func(tx *sql.Tx) (struct{}, error) {
		var n int
		if err := tx.QueryRowContext(context.Background(), "SELECT count(*) FROM queue").Scan(&n); err != nil {
			return struct{}{}, err
		}
		assert.Zero(t, n)
		if err := tx.QueryRowContext(context.Background(), "SELECT count(*) FROM queue_running").Scan(&n); err != nil {
			return struct{}{}, err
		}
		assert.Zero(t, n)
		return struct{}{}, nil
	})
	require.NoError(t, err)
}
