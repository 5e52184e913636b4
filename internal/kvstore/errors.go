package kvstore

import "errors"

// ErrClosedDatabase is returned (or silently absorbed, per operation) when
// a caller attempts to use a Database after Close has been called.
var ErrClosedDatabase = errors.New("using closed database")

// ErrInvalidRange is returned when a range selector's fields are an
// invalid combination (e.g. prefix with both start and end, or none of
// the three).
var ErrInvalidRange = errors.New("invalid range selector")

// ErrCursorOutOfBounds is returned when a cursor resumes outside the
// declared [start, end) bounds of its range.
var ErrCursorOutOfBounds = errors.New("cursor out of bounds")

// ErrEmptyKey is returned when a mutation or check targets an empty key.
var ErrEmptyKey = errors.New("key cannot be empty")

// ErrKeyTooLarge is returned when an encoded key exceeds the relevant
// size bound for its context (write vs. read).
var ErrKeyTooLarge = errors.New("key too large")

// ErrValueTooLarge is returned when a mutation value or enqueue payload
// exceeds the maximum allowed size.
var ErrValueTooLarge = errors.New("value too large")

// ErrTooManyChecks is returned when an atomic write includes more than
// MaxChecks checks.
var ErrTooManyChecks = errors.New("too many checks")

// ErrTooManyMutations is returned when an atomic write's combined
// mutation and enqueue count exceeds MaxMutations.
var ErrTooManyMutations = errors.New("too many mutations")

// ErrPayloadTooLarge is returned when the combined size of an atomic
// write's keys, values, and enqueue payloads exceeds MaxTotalPayloadBytes.
var ErrPayloadTooLarge = errors.New("atomic write payload too large")

// ErrKeysTooLarge is returned when the combined size of an atomic write's
// check and mutation keys exceeds MaxTotalKeyBytes.
var ErrKeysTooLarge = errors.New("atomic write key bytes too large")

// ErrTooManyRanges is returned when a snapshot read requests more than
// MaxReadRanges ranges.
var ErrTooManyRanges = errors.New("too many read ranges")

// ErrTooManyEntries is returned when a snapshot read's combined per-range
// limits exceed MaxReadEntries.
var ErrTooManyEntries = errors.New("too many entries requested")

// ErrInvalidMutation is returned for malformed or type-mismatched
// mutations, such as a numeric mutation applied to a non-U64 stored
// value.
var ErrInvalidMutation = errors.New("invalid mutation")

// ErrInvalidHandle identifies an invalid queue message handle. Finish does
// not return it: a repeated Finish call is a no-op that returns nil.
var ErrInvalidHandle = errors.New("invalid queue message handle")
