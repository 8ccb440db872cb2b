// Package store defines the bar store contract and its backends.
//
// One collection (or table) holds one series, named by SeriesKey.String().
// Rows are keyed by a unique timestamp. Backends:
//   - Memory: process-local, used by default and in tests
//   - Mongo: one MongoDB collection per series, unique index on datetime
//   - Postgres: one table per series inside a schema, timestamp primary key
//
// Every backend rejects an insert that would store a timestamp twice with
// model.ErrDuplicate.
package store
