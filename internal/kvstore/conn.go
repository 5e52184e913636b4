package kvstore

import (
	"context"
	"database/sql"
	"sync"
)

// asyncMutex is a cancellable FIFO gate implemented over a buffered
// channel, standing in for the async half of the connection guard: callers
// queue up to run transactional work one at a time, and a queued acquire
// can be abandoned via ctx without blocking anyone else.
type asyncMutex struct {
	ch chan struct{}
}

func newAsyncMutex() *asyncMutex {
	m := &asyncMutex{ch: make(chan struct{}, 1)}
	m.ch <- struct{}{}
	return m
}

func (m *asyncMutex) Lock(ctx context.Context) error {
	select {
	case <-m.ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *asyncMutex) Unlock() {
	m.ch <- struct{}{}
}

// connGuard is the async+sync lock pair described by the concurrency
// model: every transactional operation first queues on the async gate,
// then takes the synchronous lock over the single underlying *sql.DB.
// Close takes the synchronous lock directly (skipping the async queue) so
// that it can wait for in-flight work to finish before dropping the
// connection, without itself queuing behind new arrivals.
type connGuard struct {
	asyncMu *asyncMutex
	syncMu  sync.Mutex
	db      *sql.DB // guarded by syncMu; nil once closed
}

func newConnGuard(db *sql.DB) *connGuard {
	return &connGuard{asyncMu: newAsyncMutex(), db: db}
}

// withConn serializes fn against all other connGuard users and supplies
// the live *sql.DB, or ErrClosedDatabase if the guard has been closed.
func (g *connGuard) withConn(ctx context.Context, fn func(*sql.DB) error) error {
	if err := g.asyncMu.Lock(ctx); err != nil {
		return err
	}
	defer g.asyncMu.Unlock()

	g.syncMu.Lock()
	defer g.syncMu.Unlock()

	if g.db == nil {
		return ErrClosedDatabase
	}
	return fn(g.db)
}

// closed reports whether the guard has already been closed, without
// participating in the async queue (used by background tasks that hold
// only a weak reference to decide whether to exit quietly).
func (g *connGuard) closed() bool {
	g.syncMu.Lock()
	defer g.syncMu.Unlock()
	return g.db == nil
}

// close waits for any in-flight synchronous critical section to finish,
// then drops the underlying connection. Safe to call more than once.
func (g *connGuard) close() error {
	g.syncMu.Lock()
	defer g.syncMu.Unlock()
	if g.db == nil {
		return nil
	}
	db := g.db
	g.db = nil
	return db.Close()
}

// weakConnGuard is a non-owning reference to a connGuard: background tasks
// hold one, which takes no lock between transactions, so they can detect
// "closed" and exit quietly instead of erroring loudly.
type weakConnGuard struct {
	g *connGuard
}

func (g *connGuard) weak() weakConnGuard { return weakConnGuard{g: g} }

func (w weakConnGuard) closed() bool {
	if w.g == nil {
		return true
	}
	return w.g.closed()
}
