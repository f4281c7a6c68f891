// Package stores provides the persistence layer for the rigup run journal.
// It includes SQLite-based storage with WAL mode, embedded schema migrations,
// and CRUD operations for runs, step records, and events. The journal is an
// audit trail: the engine never infers idempotency from it.
package stores
