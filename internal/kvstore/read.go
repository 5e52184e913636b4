package kvstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/latticekv/lattice/internal/keycodec"
	"github.com/latticekv/lattice/internal/kvvalue"
)

// MaxReadRanges bounds how many ranges one SnapshotRead call may request.
const MaxReadRanges = 10

// MaxReadEntries bounds the combined per-range limit across one
// SnapshotRead call.
const MaxReadEntries = 1000

// ReadRange is one range within a SnapshotRead call: a selector plus the
// scan direction, per-range result limit, and an optional resume cursor.
type ReadRange struct {
	Selector Selector
	Limit    int
	Reverse  bool
	Cursor   string
}

// Entry is one row returned by SnapshotRead.
type Entry struct {
	Key          keycodec.Key
	Value        kvvalue.Value
	Versionstamp Versionstamp
}

// SnapshotRead evaluates every range in one transaction and returns one
// entry slice per range, in the same order as ranges. Expired rows are
// never returned, independent of whether the expiration watcher has swept
// them yet.
func (db *Database) SnapshotRead(ctx context.Context, ranges []ReadRange) ([][]Entry, error) {
	if len(ranges) > MaxReadRanges {
		return nil, fmt.Errorf("%w: %d ranges exceeds max %d", ErrTooManyRanges, len(ranges), MaxReadRanges)
	}
	total := 0
	for _, r := range ranges {
		if r.Limit <= 0 {
			return nil, fmt.Errorf("%w: limit must be positive", ErrInvalidRange)
		}
		total += r.Limit
	}
	if total > MaxReadEntries {
		return nil, fmt.Errorf("%w: %d exceeds max %d", ErrTooManyEntries, total, MaxReadEntries)
	}

	return runTx(ctx, db.guard, func(tx *sql.Tx) ([][]Entry, error) {
		nowMs := NowMillis(db.clock)
		results := make([][]Entry, len(ranges))

		for i, r := range ranges {
			start, end, err := r.Selector.Resume(r.Cursor, r.Reverse)
			if err != nil {
				return nil, err
			}
			if len(start) > keycodec.MaxReadKeyBytes || len(end) > keycodec.MaxReadKeyBytes {
				return nil, fmt.Errorf("%w: range bound exceeds max %d bytes", ErrKeyTooLarge, keycodec.MaxReadKeyBytes)
			}

			order := "ASC"
			if r.Reverse {
				order = "DESC"
			}
			query := fmt.Sprintf(`
				SELECT k, v, v_encoding, version FROM kv
				WHERE k >= ? AND k < ? AND (expiration_ms < 0 OR expiration_ms > ?)
				ORDER BY k %s LIMIT ?
			`, order)

			entries, err := scanEntries(ctx, tx, query, start, end, nowMs, r.Limit)
			if err != nil {
				return nil, err
			}
			results[i] = entries
		}
		return results, nil
	})
}

func scanEntries(ctx context.Context, tx *sql.Tx, query string, start, end []byte, nowMs int64, limit int) ([]Entry, error) {
	rows, err := tx.QueryContext(ctx, query, start, end, nowMs, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var k, v []byte
		var encTag, version int64
		if err := rows.Scan(&k, &v, &encTag, &version); err != nil {
			return nil, err
		}
		key, err := keycodec.Decode(k)
		if err != nil {
			return nil, fmt.Errorf("decode stored key: %w", err)
		}
		value, err := kvvalue.Unmarshal(kvvalue.Encoding(encTag), v)
		if err != nil {
			return nil, fmt.Errorf("decode stored value: %w", err)
		}
		entries = append(entries, Entry{
			Key:          key,
			Value:        value,
			Versionstamp: EncodeVersionstamp(version),
		})
	}
	return entries, rows.Err()
}
