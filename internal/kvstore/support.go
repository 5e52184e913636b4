package kvstore

import (
	"time"

	"github.com/google/uuid"
)

// Clock abstracts wall-clock time so tests can substitute a deterministic
// implementation (see internal/testutil.FakeClock) for expiration and
// backoff scheduling.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// NowMillis returns c.Now() as Unix milliseconds, the unit every stored
// timestamp (ts, deadline, expiration_ms) uses.
func NowMillis(c Clock) int64 {
	return c.Now().UnixMilli()
}

// IDGenerator abstracts queue message ID generation so tests can substitute
// a deterministic sequence (see internal/testutil.FixedIDGenerator).
type IDGenerator interface {
	Generate() string
}

type uuidGenerator struct{}

func (uuidGenerator) Generate() string { return uuid.NewString() }
