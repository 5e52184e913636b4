package kvstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// dispatchBatchSize bounds how many ready rows one dispatch pass moves
// from queue into queue_running.
const dispatchBatchSize = 100

// dispatchChannelCapacity bounds the in-process handoff from dispatcher to
// consumers, independent of the dispatch semaphore that bounds in-flight
// (dequeued-but-unfinished) messages.
const dispatchChannelCapacity = 64

// dispatchSemaphoreCapacity bounds concurrently in-flight dequeued
// messages across all consumers of one database.
const dispatchSemaphoreCapacity = 100

// noReadyRowWait is the sleep duration used when the queue is empty and
// there is no known next deadline to wait for; it is bounded only by a
// Wake Bus notification or shutdown in practice.
const noReadyRowWait = time.Hour

type pendingMessage struct {
	id   string
	data []byte
}

// runDispatcher is the per-database background loop described in the
// queue engine design: crash-recovery requeue once at startup, then
// repeatedly move ready rows into queue_running and hand them to
// consumers over a bounded channel.
func (db *Database) runDispatcher(ctx context.Context) {
	defer db.wg.Done()

	if err := requeueAllRunningMessages(ctx, db); err != nil && !errors.Is(err, ErrClosedDatabase) {
		slog.Error("queue crash recovery failed", "error", err)
	}

	wakeCh, cancelWake := db.wakeBus.Subscribe(db.wakePath)
	defer cancelWake()

	// weak holds no lock on the connection between transactions; this loop
	// consults it to notice that the connection has been dropped and exit
	// quietly instead of logging errors. Close cancels ctx and waits for
	// this loop to return.
	weak := db.guard.weak()

	for {
		if weak.closed() {
			return
		}
		batch, err := db.dispatchBatch(ctx)
		if err != nil {
			if errors.Is(err, ErrClosedDatabase) || ctx.Err() != nil {
				return
			}
			slog.Error("dispatch batch failed", "error", err)
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}

		for _, m := range batch {
			select {
			case db.msgCh <- m:
			case <-ctx.Done():
				return
			}
		}

		if len(batch) > 0 {
			continue
		}

		wait, err := db.nextWakeDelay(ctx)
		if err != nil {
			if errors.Is(err, ErrClosedDatabase) || ctx.Err() != nil {
				return
			}
			slog.Error("compute next wake delay failed", "error", err)
			wait = time.Second
		}

		select {
		case <-time.After(wait):
		case <-wakeCh:
		case <-ctx.Done():
			return
		}
	}
}

// dispatchBatch moves up to dispatchBatchSize ready rows into
// queue_running in one transaction and returns their id/payload pairs.
func (db *Database) dispatchBatch(ctx context.Context) ([]pendingMessage, error) {
	nowMs := NowMillis(db.clock)

	return runTx(ctx, db.guard, func(tx *sql.Tx) ([]pendingMessage, error) {
		rows, err := tx.QueryContext(ctx, `
			SELECT ts, id, data, backoff_schedule, keys_if_undelivered
			FROM queue WHERE ts <= ? ORDER BY ts, id LIMIT ?
		`, nowMs, dispatchBatchSize)
		if err != nil {
			return nil, err
		}

		type moved struct {
			ts                          int64
			id                          string
			data                        []byte
			backoffSchedule, keysJSON   string
		}
		var candidates []moved
		for rows.Next() {
			var m moved
			if err := rows.Scan(&m.ts, &m.id, &m.data, &m.backoffSchedule, &m.keysJSON); err != nil {
				rows.Close()
				return nil, err
			}
			candidates = append(candidates, m)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, err
		}
		rows.Close()

		out := make([]pendingMessage, 0, len(candidates))
		for _, m := range candidates {
			if _, err := tx.ExecContext(ctx, "DELETE FROM queue WHERE ts = ? AND id = ?", m.ts, m.id); err != nil {
				return nil, fmt.Errorf("remove ready row: %w", err)
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO queue_running (deadline, id, data, backoff_schedule, keys_if_undelivered)
				VALUES (?, ?, ?, ?, ?)
			`, m.ts, m.id, m.data, m.backoffSchedule, m.keysJSON); err != nil {
				return nil, fmt.Errorf("move to running: %w", err)
			}
			out = append(out, pendingMessage{id: m.id, data: m.data})
		}
		return out, nil
	})
}

// nextWakeDelay reports how long to sleep before re-checking the queue,
// based on the earliest ts of a not-yet-ready row.
func (db *Database) nextWakeDelay(ctx context.Context) (time.Duration, error) {
	return runTx(ctx, db.guard, func(tx *sql.Tx) (time.Duration, error) {
		var ts sql.NullInt64
		row := tx.QueryRowContext(ctx, "SELECT MIN(ts) FROM queue")
		if err := row.Scan(&ts); err != nil {
			return 0, err
		}
		if !ts.Valid {
			return noReadyRowWait, nil
		}
		nowMs := NowMillis(db.clock)
		delay := time.Duration(ts.Int64-nowMs) * time.Millisecond
		if delay < 0 {
			delay = 0
		}
		return delay, nil
	})
}

// DequeueNextMessage acquires a dispatch semaphore permit and returns the
// next message handed off by the dispatcher, blocking until one is
// available or ctx is done. The returned handle owns the permit until
// Finish is called.
func (db *Database) DequeueNextMessage(ctx context.Context) (*DequeuedMessage, error) {
	select {
	case db.dispatchSem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case m, ok := <-db.msgCh:
		if !ok {
			db.releaseDispatchPermit()
			return nil, ErrClosedDatabase
		}
		return &DequeuedMessage{Payload: m.data, db: db, id: m.id}, nil
	case <-ctx.Done():
		db.releaseDispatchPermit()
		return nil, ctx.Err()
	}
}

func (db *Database) releaseDispatchPermit() {
	<-db.dispatchSem
}
