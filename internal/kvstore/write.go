package kvstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/latticekv/lattice/internal/keycodec"
	"github.com/latticekv/lattice/internal/kvvalue"
)

// Size and shape limits enforced on an AtomicWrite before any transaction
// is opened.
const (
	MaxChecks            = 10
	MaxMutations         = 1000 // mutations + enqueues combined
	MaxValueSize         = 65536
	MaxEnqueuePayload    = 65536
	MaxTotalPayloadBytes = 819200
	MaxTotalKeyBytes     = 81920
)

// defaultBackoffSchedule is used for an Enqueue that does not specify one.
var defaultBackoffSchedule = []int64{100, 1000, 5000, 30000, 60000}

// MutationKind identifies the effect a Mutation has on its target key.
type MutationKind int

const (
	MutationSet MutationKind = iota
	MutationDelete
	MutationSum
	MutationMin
	MutationMax
)

// Mutation targets a single key within an AtomicWrite.
type Mutation struct {
	Key     keycodec.Key
	Kind    MutationKind
	Value   kvvalue.Value // Set only
	Operand uint64        // Sum/Min/Max only

	// ExpireInMs is relative to commit time; nil means no expiration.
	ExpireInMs *int64
}

// Check is an optimistic-concurrency precondition: the key's current
// versionstamp must equal Expected (nil Expected means the key must be
// absent).
type Check struct {
	Key      keycodec.Key
	Expected *Versionstamp
}

// Enqueue appends a durable queue message as part of a committing write.
type Enqueue struct {
	Payload           []byte
	DelayMs           int64
	BackoffScheduleMs []int64 // nil/empty uses defaultBackoffSchedule
	KeysIfUndelivered []keycodec.Key
}

// AtomicWrite is the input to Database.AtomicWrite: an all-or-nothing set
// of checks, mutations, and enqueues.
type AtomicWrite struct {
	Checks    []Check
	Mutations []Mutation
	Enqueues  []Enqueue
}

// CommitResult is returned for a committing AtomicWrite whose checks held.
type CommitResult struct {
	Versionstamp Versionstamp
}

// validate enforces every size/shape limit ahead of opening a transaction.
func (aw AtomicWrite) validate() error {
	if len(aw.Checks) > MaxChecks {
		return fmt.Errorf("%w: %d checks exceeds max %d", ErrTooManyChecks, len(aw.Checks), MaxChecks)
	}
	if len(aw.Mutations)+len(aw.Enqueues) > MaxMutations {
		return fmt.Errorf("%w: %d exceeds max %d", ErrTooManyMutations, len(aw.Mutations)+len(aw.Enqueues), MaxMutations)
	}

	var totalPayload, totalKeyBytes int

	encodeKey := func(k keycodec.Key) ([]byte, error) {
		enc, err := keycodec.Encode(k)
		if err != nil {
			return nil, err
		}
		if len(enc) == 0 {
			return nil, ErrEmptyKey
		}
		if len(enc) > keycodec.MaxWriteKeyBytes {
			return nil, fmt.Errorf("%w: %d bytes exceeds max %d", ErrKeyTooLarge, len(enc), keycodec.MaxWriteKeyBytes)
		}
		return enc, nil
	}

	for _, c := range aw.Checks {
		enc, err := encodeKey(c.Key)
		if err != nil {
			return err
		}
		totalKeyBytes += len(enc)
	}

	for _, m := range aw.Mutations {
		enc, err := encodeKey(m.Key)
		if err != nil {
			return err
		}
		totalKeyBytes += len(enc)
		totalPayload += len(enc)

		if m.Kind == MutationSet {
			if m.Value == nil {
				return fmt.Errorf("%w: set mutation requires a value", ErrInvalidMutation)
			}
			v := kvvalue.Marshal(m.Value)
			if len(v) > MaxValueSize {
				return fmt.Errorf("%w: %d bytes exceeds max %d", ErrValueTooLarge, len(v), MaxValueSize)
			}
			totalPayload += len(v)
		}
	}

	for _, e := range aw.Enqueues {
		if len(e.Payload) > MaxEnqueuePayload {
			return fmt.Errorf("%w: %d bytes exceeds max %d", ErrValueTooLarge, len(e.Payload), MaxEnqueuePayload)
		}
		totalPayload += len(e.Payload)
		for _, k := range e.KeysIfUndelivered {
			enc, err := encodeKey(k)
			if err != nil {
				return err
			}
			totalPayload += len(enc)
		}
	}

	if totalKeyBytes > MaxTotalKeyBytes {
		return fmt.Errorf("%w: %d bytes exceeds max %d", ErrKeysTooLarge, totalKeyBytes, MaxTotalKeyBytes)
	}
	if totalPayload > MaxTotalPayloadBytes {
		return fmt.Errorf("%w: %d bytes exceeds max %d", ErrPayloadTooLarge, totalPayload, MaxTotalPayloadBytes)
	}
	return nil
}

// AtomicWrite runs aw as a single serialized transaction: checks first
// (any mismatch aborts with a nil result, no error), then one data-version
// increment, then mutations in order, then enqueues. A successful commit
// that enqueued at least one message wakes this database's Wake Bus entry.
func (db *Database) AtomicWrite(ctx context.Context, aw AtomicWrite) (*CommitResult, error) {
	if err := aw.validate(); err != nil {
		return nil, err
	}

	type outcome struct {
		result   *CommitResult
		enqueued bool
	}

	out, err := runTx(ctx, db.guard, func(tx *sql.Tx) (outcome, error) {
		nowMs := NowMillis(db.clock)

		for _, c := range aw.Checks {
			enc, err := keycodec.Encode(c.Key)
			if err != nil {
				return outcome{}, err
			}
			var storedVersion sql.NullInt64
			row := tx.QueryRowContext(ctx, "SELECT version FROM kv WHERE k = ?", enc)
			if err := row.Scan(&storedVersion); err != nil && err != sql.ErrNoRows {
				return outcome{}, err
			}
			if ok, err := checkSatisfied(c, storedVersion); err != nil {
				return outcome{}, err
			} else if !ok {
				return outcome{}, nil
			}
		}

		version, err := incrementDataVersion(ctx, tx)
		if err != nil {
			return outcome{}, err
		}

		for _, m := range aw.Mutations {
			if err := applyMutation(ctx, tx, m, version, nowMs); err != nil {
				return outcome{}, err
			}
		}

		enqueued := false
		for _, e := range aw.Enqueues {
			if err := insertEnqueue(ctx, tx, db.ids, e, nowMs); err != nil {
				return outcome{}, err
			}
			enqueued = true
		}

		return outcome{
			result:   &CommitResult{Versionstamp: EncodeVersionstamp(version)},
			enqueued: enqueued,
		}, nil
	})
	if err != nil {
		return nil, err
	}
	if out.result == nil {
		return nil, nil
	}
	if out.enqueued {
		db.notifyWake()
	}
	return out.result, nil
}

// checkSatisfied reports whether a Check's expectation matches the row's
// currently stored version (or absence).
func checkSatisfied(c Check, storedVersion sql.NullInt64) (bool, error) {
	if c.Expected == nil {
		return !storedVersion.Valid, nil
	}
	if !storedVersion.Valid {
		return false, nil
	}
	return storedVersion.Int64 == c.Expected.VersionOf(), nil
}

// incrementDataVersion bumps the singleton counter and returns its new
// value, the version every mutation and enqueue in this write commits at.
func incrementDataVersion(ctx context.Context, tx *sql.Tx) (int64, error) {
	res, err := tx.ExecContext(ctx, "UPDATE data_version SET version = version + 1 WHERE k = 0")
	if err != nil {
		return 0, fmt.Errorf("increment data_version: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return 0, err
	} else if n != 1 {
		panic(fmt.Sprintf("data_version singleton affected %d rows, expected 1", n))
	}

	var version int64
	row := tx.QueryRowContext(ctx, "SELECT version FROM data_version WHERE k = 0")
	if err := row.Scan(&version); err != nil {
		return 0, fmt.Errorf("read data_version: %w", err)
	}
	return version, nil
}

func applyMutation(ctx context.Context, tx *sql.Tx, m Mutation, version, nowMs int64) error {
	enc, err := keycodec.Encode(m.Key)
	if err != nil {
		return err
	}

	switch m.Kind {
	case MutationDelete:
		if _, err := tx.ExecContext(ctx, "DELETE FROM kv WHERE k = ?", enc); err != nil {
			return fmt.Errorf("delete: %w", err)
		}
		return nil

	case MutationSet:
		expireMs := expirationFor(m.ExpireInMs, nowMs)
		data := kvvalue.Marshal(m.Value)
		_, err := tx.ExecContext(ctx, `
			INSERT INTO kv (k, v, v_encoding, version, expiration_ms)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(k) DO UPDATE SET v = excluded.v, v_encoding = excluded.v_encoding,
				version = excluded.version, expiration_ms = excluded.expiration_ms
		`, enc, data, int64(m.Value.Encoding()), version, expireMs)
		if err != nil {
			return fmt.Errorf("set: %w", err)
		}
		return nil

	case MutationSum, MutationMin, MutationMax:
		return applyNumericMutation(ctx, tx, enc, m, version, nowMs)

	default:
		return fmt.Errorf("%w: unknown mutation kind %d", ErrInvalidMutation, m.Kind)
	}
}

func applyNumericMutation(ctx context.Context, tx *sql.Tx, enc []byte, m Mutation, version, nowMs int64) error {
	var data []byte
	var encTag int64
	row := tx.QueryRowContext(ctx, "SELECT v, v_encoding FROM kv WHERE k = ?", enc)
	err := row.Scan(&data, &encTag)

	var current uint64
	switch {
	case err == sql.ErrNoRows:
		current = 0
	case err != nil:
		return fmt.Errorf("read numeric target: %w", err)
	default:
		existing, err := kvvalue.Unmarshal(kvvalue.Encoding(encTag), data)
		if err != nil {
			return err
		}
		current, err = kvvalue.AsU64(existing)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidMutation, err)
		}
	}

	var result uint64
	switch m.Kind {
	case MutationSum:
		result = current + m.Operand // wraps modulo 2^64
	case MutationMin:
		result = current
		if m.Operand < current {
			result = m.Operand
		}
		if err == sql.ErrNoRows {
			result = m.Operand
		}
	case MutationMax:
		result = current
		if m.Operand > current {
			result = m.Operand
		}
		if err == sql.ErrNoRows {
			result = m.Operand
		}
	}

	expireMs := expirationFor(m.ExpireInMs, nowMs)
	newValue := kvvalue.Marshal(kvvalue.U64(result))
	_, execErr := tx.ExecContext(ctx, `
		INSERT INTO kv (k, v, v_encoding, version, expiration_ms)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(k) DO UPDATE SET v = excluded.v, v_encoding = excluded.v_encoding,
			version = excluded.version, expiration_ms = excluded.expiration_ms
	`, enc, newValue, int64(kvvalue.EncodingU64), version, expireMs)
	if execErr != nil {
		return fmt.Errorf("apply numeric mutation: %w", execErr)
	}
	return nil
}

func expirationFor(expireInMs *int64, nowMs int64) int64 {
	if expireInMs == nil {
		return -1
	}
	return nowMs + *expireInMs
}

func insertEnqueue(ctx context.Context, tx *sql.Tx, ids IDGenerator, e Enqueue, nowMs int64) error {
	schedule := e.BackoffScheduleMs
	if len(schedule) == 0 {
		schedule = defaultBackoffSchedule
	}
	backoffJSON, err := json.Marshal(schedule)
	if err != nil {
		return err
	}

	keys := make([][]byte, 0, len(e.KeysIfUndelivered))
	for _, k := range e.KeysIfUndelivered {
		enc, err := keycodec.Encode(k)
		if err != nil {
			return err
		}
		keys = append(keys, enc)
	}
	// encoding/json marshals [][]byte as an array of base64 strings, which
	// is also what scanRunningRow (queue.go) expects.
	keysJSON, err := json.Marshal(keys)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO queue (ts, id, data, backoff_schedule, keys_if_undelivered)
		VALUES (?, ?, ?, ?, ?)
	`, nowMs+e.DelayMs, ids.Generate(), e.Payload, string(backoffJSON), string(keysJSON))
	if err != nil {
		return fmt.Errorf("enqueue: %w", err)
	}
	return nil
}
