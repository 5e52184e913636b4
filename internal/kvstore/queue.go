package kvstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/latticekv/lattice/internal/kvvalue"
)

// DequeuedMessage is the handle returned by Database.DequeueNextMessage: it
// carries the message payload and owns one permit of the dispatch
// semaphore, released when Finish is called (at most once).
type DequeuedMessage struct {
	Payload []byte

	db       *Database
	id       string
	finished bool
	mu       sync.Mutex
}

// Finish reports the outcome of processing a dequeued message. Success
// removes it permanently; failure applies the requeue rule (backoff, or
// dead-letter if the schedule is exhausted). Calling Finish more than once
// is a no-op beyond the first call. Closed-database errors are swallowed:
// the message is left in queue_running for recovery on next open.
func (m *DequeuedMessage) Finish(ctx context.Context, success bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.finished {
		return nil
	}
	m.finished = true
	defer m.db.releaseDispatchPermit()

	if success {
		_, err := runTx(ctx, m.db.guard, func(tx *sql.Tx) (struct{}, error) {
			_, err := tx.ExecContext(ctx, "DELETE FROM queue_running WHERE id = ?", m.id)
			return struct{}{}, err
		})
		if err != nil {
			if errors.Is(err, ErrClosedDatabase) {
				return nil
			}
			return err
		}
		return nil
	}

	created, err := requeueRunningMessage(ctx, m.db, m.id)
	if err != nil {
		if errors.Is(err, ErrClosedDatabase) {
			return nil
		}
		return err
	}
	if created {
		m.db.notifyWake()
	}
	return nil
}

// runningMessageRow is the parsed shape of a queue_running row.
type runningMessageRow struct {
	data              []byte
	backoffSchedule   []int64
	keysIfUndelivered [][]byte
}

func scanRunningRow(row *sql.Row) (runningMessageRow, bool, error) {
	var r runningMessageRow
	var backoffJSON, keysJSON string
	if err := row.Scan(&r.data, &backoffJSON, &keysJSON); err != nil {
		if err == sql.ErrNoRows {
			return runningMessageRow{}, false, nil
		}
		return runningMessageRow{}, false, err
	}
	if err := json.Unmarshal([]byte(backoffJSON), &r.backoffSchedule); err != nil {
		return runningMessageRow{}, false, fmt.Errorf("decode backoff_schedule: %w", err)
	}
	if err := json.Unmarshal([]byte(keysJSON), &r.keysIfUndelivered); err != nil {
		return runningMessageRow{}, false, fmt.Errorf("decode keys_if_undelivered: %w", err)
	}
	return r, true, nil
}

// requeueRunningMessage applies the requeue rule to the queue_running row
// identified by id, in one transaction: pop the backoff schedule's head
// into a fresh ready row if non-empty, otherwise dead-letter the payload
// into every keys_if_undelivered key, and always remove the running row.
// Returns whether a new ready row was created (the dispatcher should be
// woken).
func requeueRunningMessage(ctx context.Context, db *Database, id string) (bool, error) {
	return runTx(ctx, db.guard, func(tx *sql.Tx) (bool, error) {
		row := tx.QueryRowContext(ctx,
			"SELECT data, backoff_schedule, keys_if_undelivered FROM queue_running WHERE id = ?", id)
		r, found, err := scanRunningRow(row)
		if err != nil {
			return false, err
		}
		if !found {
			return false, nil
		}

		nowMs := NowMillis(db.clock)
		created := false

		switch {
		case len(r.backoffSchedule) > 0:
			delay := r.backoffSchedule[0]
			tail := r.backoffSchedule[1:]
			tailJSON, err := json.Marshal(tail)
			if err != nil {
				return false, err
			}
			keysJSON, err := json.Marshal(r.keysIfUndelivered)
			if err != nil {
				return false, err
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO queue (ts, id, data, backoff_schedule, keys_if_undelivered)
				VALUES (?, ?, ?, ?, ?)
			`, nowMs+delay, id, r.data, string(tailJSON), string(keysJSON)); err != nil {
				return false, fmt.Errorf("requeue: %w", err)
			}
			created = true

		case len(r.keysIfUndelivered) > 0:
			version, err := incrementDataVersion(ctx, tx)
			if err != nil {
				return false, err
			}
			value := kvvalue.Marshal(kvvalue.V8Bytes(r.data))
			for _, key := range r.keysIfUndelivered {
				_, err := tx.ExecContext(ctx, `
					INSERT INTO kv (k, v, v_encoding, version, expiration_ms)
					VALUES (?, ?, ?, ?, -1)
					ON CONFLICT(k) DO UPDATE SET v = excluded.v, v_encoding = excluded.v_encoding,
						version = excluded.version, expiration_ms = excluded.expiration_ms
				`, key, value, int64(kvvalue.EncodingV8), version)
				if err != nil {
					return false, fmt.Errorf("dead-letter write: %w", err)
				}
			}
		}

		if _, err := tx.ExecContext(ctx, "DELETE FROM queue_running WHERE id = ?", id); err != nil {
			return false, fmt.Errorf("remove running row: %w", err)
		}
		return created, nil
	})
}

// requeueAllRunningMessages is the crash-recovery step run once at open:
// every row left in queue_running (from a prior process that dequeued but
// never finished) is put back through the requeue rule.
func requeueAllRunningMessages(ctx context.Context, db *Database) error {
	var ids []string
	_, err := runTx(ctx, db.guard, func(tx *sql.Tx) (struct{}, error) {
		rows, err := tx.QueryContext(ctx, "SELECT id FROM queue_running")
		if err != nil {
			return struct{}{}, err
		}
		defer rows.Close()
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				return struct{}{}, err
			}
			ids = append(ids, id)
		}
		return struct{}{}, rows.Err()
	})
	if err != nil {
		return err
	}

	anyCreated := false
	for _, id := range ids {
		created, err := requeueRunningMessage(ctx, db, id)
		if err != nil {
			return err
		}
		anyCreated = anyCreated || created
	}
	if anyCreated {
		db.notifyWake()
	}
	return nil
}
