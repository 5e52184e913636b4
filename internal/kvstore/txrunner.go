package kvstore

import (
	"context"
	"database/sql"
	"errors"
	"math/rand"
	"time"

	"github.com/mattn/go-sqlite3"
)

// busyRetryMinDelay and busyRetryMaxDelay bound the randomized sleep between
// attempts when SQLite reports the database is busy.
const (
	busyRetryMinDelay = 5 * time.Millisecond
	busyRetryMaxDelay = 20 * time.Millisecond
)

// runTx executes fn inside one serialized transaction on the guarded
// connection, retrying indefinitely on SQLITE_BUSY with a uniform random
// backoff, and propagating every other error (including ErrClosedDatabase)
// unchanged. ctx is observed while queued on the async gate and between
// attempts, and it is passed to BeginTx and to fn's statements, so
// cancelling it mid-transaction rolls that transaction back.
func runTx[R any](ctx context.Context, g *connGuard, fn func(*sql.Tx) (R, error)) (R, error) {
	var zero R
	for {
		var result R
		err := g.withConn(ctx, func(db *sql.DB) error {
			tx, err := db.BeginTx(ctx, nil)
			if err != nil {
				return err
			}
			r, err := fn(tx)
			if err != nil {
				_ = tx.Rollback()
				return err
			}
			if err := tx.Commit(); err != nil {
				return err
			}
			result = r
			return nil
		})
		if err == nil {
			return result, nil
		}
		if isBusyError(err) {
			select {
			case <-time.After(randomBusyDelay()):
				continue
			case <-ctx.Done():
				return zero, ctx.Err()
			}
		}
		return zero, err
	}
}

func randomBusyDelay() time.Duration {
	span := busyRetryMaxDelay - busyRetryMinDelay
	return busyRetryMinDelay + time.Duration(rand.Int63n(int64(span)))
}

func isBusyError(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrBusy
	}
	return false
}
