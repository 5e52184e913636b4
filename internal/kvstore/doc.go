// Package kvstore implements the embedded, transactional key-value store:
// ordered binary keys, atomic multi-key writes with optimistic concurrency,
// monotonically increasing versionstamps, per-key expiration, and an
// at-least-once delivery queue with backoff and dead-letter semantics.
//
// # Storage
//
// A single SQLite file (WAL journal mode) backs every open Database. All
// transactional work is serialized through a connection guard (connGuard)
// that pairs an async-style FIFO gate with a synchronous mutex over the
// *sql.DB, mirroring a single-writer discipline over one connection.
//
// # Background tasks
//
// Every open Database runs two background goroutines: a queue dispatcher
// (queue.go, dispatch.go) that moves ready messages into the running table
// and hands them to consumers under a bounded semaphore, and an expiration
// watcher (expire.go) that periodically deletes rows past their
// expiration timestamp. Both exit cleanly when the database is closed.
package kvstore
