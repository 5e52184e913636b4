// Package kvstore implements the embedded transactional key-value store:
// order-preserving keys (internal/keycodec), tagged values
// (internal/kvvalue), a single-writer SQLite-backed schema guarded by an
// async+sync connection lock, a retrying transaction runner, range reads
// with cursors, all-or-nothing atomic writes, and a durable delivery queue
// with a background dispatcher and expiration watcher.
//
// A Database owns its schema and background tasks from Open to Close: the
// dispatcher and expiration watcher run under a context that Close
// cancels, and Close waits for both to return before dropping the
// connection. Reopening after a crash recovers any in-flight queue state.
package kvstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/latticekv/lattice/internal/wakebus"
)

// Database is one open handle to the store: a guarded SQLite connection
// plus the dispatcher and expiration watcher background tasks it owns.
type Database struct {
	guard *connGuard
	clock Clock
	ids   IDGenerator

	wakeBus  *wakebus.Bus
	wakePath string

	dispatchSem chan struct{}
	msgCh       chan pendingMessage

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Options customizes Open. The zero value uses real wall-clock time,
// random UUIDv4 queue IDs, and a private Wake Bus. Tests substitute a
// deterministic Clock/IDGenerator (see internal/testutil) and, for
// multi-handle wake coordination tests, a shared *wakebus.Bus.
type Options struct {
	Clock   Clock
	IDs     IDGenerator
	WakeBus *wakebus.Bus
}

var memoryHandleCounter int64

// Open opens (creating and migrating if necessary) the database at path.
// An empty path resolves to defaultStoragePath(); ":memory:" opens a
// private in-memory database. On-disk databases are keyed in the Wake Bus
// by their canonicalized absolute path; in-memory databases each get an
// isolated wake key even when sharing a Bus, matching the per-handle local
// channel described for that case.
func Open(ctx context.Context, path string, opts Options) (*Database, error) {
	dsn, wakePath, err := resolveDSN(path)
	if err != nil {
		return nil, err
	}

	sqlDB, err := openSQLite(ctx, dsn)
	if err != nil {
		return nil, err
	}

	clock := opts.Clock
	if clock == nil {
		clock = systemClock{}
	}
	ids := opts.IDs
	if ids == nil {
		ids = uuidGenerator{}
	}
	bus := opts.WakeBus
	if bus == nil {
		bus = wakebus.NewBus()
	}

	db := &Database{
		guard:       newConnGuard(sqlDB),
		clock:       clock,
		ids:         ids,
		wakeBus:     bus,
		wakePath:    wakePath,
		dispatchSem: make(chan struct{}, dispatchSemaphoreCapacity),
		msgCh:       make(chan pendingMessage, dispatchChannelCapacity),
	}

	bgCtx, cancel := context.WithCancel(context.Background())
	db.cancel = cancel
	db.wg.Add(2)
	go db.runDispatcher(bgCtx)
	go db.runExpirationWatcher(bgCtx)

	return db, nil
}

// resolveDSN maps a caller-supplied path to a go-sqlite3 DSN and the key
// this handle uses in the Wake Bus.
func resolveDSN(path string) (dsn, wakePath string, err error) {
	if path == ":memory:" {
		return ":memory:", nextMemoryWakeKey(), nil
	}
	if path == "" {
		p, err := defaultStoragePath()
		if err != nil {
			return "", "", err
		}
		path = p
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return "", "", fmt.Errorf("resolve database path: %w", err)
	}
	if dir := filepath.Dir(abs); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return "", "", fmt.Errorf("create database directory: %w", err)
		}
	}
	return abs, abs, nil
}

func nextMemoryWakeKey() string {
	n := atomic.AddInt64(&memoryHandleCounter, 1)
	return fmt.Sprintf("memory:%d", n)
}

// defaultStoragePath mirrors the documented default layout:
// <default_storage_dir>/kv.sqlite3, rooted at the user's config directory.
func defaultStoragePath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve default storage dir: %w", err)
	}
	return filepath.Join(dir, "latticekv", "kv.sqlite3"), nil
}

func (db *Database) notifyWake() {
	db.wakeBus.Notify(db.wakePath)
}

// Close signals the dispatcher and expiration watcher to stop, waits for
// both to exit, and only then drops the synchronous connection — so a
// caller that deletes the underlying file immediately after Close returns
// never races a background task still holding it open.
func (db *Database) Close() error {
	db.cancel()
	db.wg.Wait()
	return db.guard.close()
}
