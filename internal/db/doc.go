// Package db provides per-worker SQLite connection contexts.
//
// A ConnContext owns one read-only and one read-write connection to a single
// database file together with a cache of prepared statements. Contexts are
// not safe for concurrent use: concurrency is achieved by giving every worker
// its own context and looking it up through a registry, never by sharing a
// context between workers.
//
// The worker that owns a context is identified by a WorkerID carried in the
// context.Context passed to every operation, see WithWorker.
package db
