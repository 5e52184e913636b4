package testutil

import "fmt"

// FixedIDGenerator generates predictable, incrementing message IDs for
// golden-file and ordering tests in place of real UUIDv4s.
//
// Thread-safety: not safe for concurrent use; tests drive it from a single
// goroutine.
type FixedIDGenerator struct {
	prefix string
	n      int
}

// NewFixedIDGenerator creates a generator that yields "<prefix>-0001",
// "<prefix>-0002", and so on.
func NewFixedIDGenerator(prefix string) *FixedIDGenerator {
	if prefix == "" {
		prefix = "test-id"
	}
	return &FixedIDGenerator{prefix: prefix}
}

// Generate returns the next deterministic ID.
func (g *FixedIDGenerator) Generate() string {
	g.n++
	return fmt.Sprintf("%s-%04d", g.prefix, g.n)
}
