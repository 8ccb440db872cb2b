// Package database provides PostgreSQL connection pool management for the
// relational bar store.
package database
