package kvstore

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"math/rand"
	"time"
)

// expirationBaseInterval and expirationJitter set the watcher's sleep
// between sweeps: 60s plus a uniform jitter of up to 30s.
const (
	expirationBaseInterval = 60 * time.Second
	expirationJitter       = 30 * time.Second
)

// runExpirationWatcher periodically deletes kv rows past their expiration
// timestamp. Errors are logged and the loop continues; it ends only when
// the database is closed (its context cancelled or its connection dropped).
func (db *Database) runExpirationWatcher(ctx context.Context) {
	defer db.wg.Done()

	weak := db.guard.weak()

	for {
		if weak.closed() {
			return
		}
		if err := db.sweepExpired(ctx); err != nil {
			if errors.Is(err, ErrClosedDatabase) || ctx.Err() != nil {
				return
			}
			slog.Error("expiration sweep failed", "error", err)
		}

		select {
		case <-time.After(expirationBaseInterval + time.Duration(rand.Int63n(int64(expirationJitter)))):
		case <-ctx.Done():
			return
		}
	}
}

func (db *Database) sweepExpired(ctx context.Context) error {
	nowMs := NowMillis(db.clock)
	_, err := runTx(ctx, db.guard, func(tx *sql.Tx) (struct{}, error) {
		_, err := tx.ExecContext(ctx,
			"DELETE FROM kv WHERE expiration_ms >= 0 AND expiration_ms <= ?", nowMs)
		return struct{}{}, err
	})
	return err
}
