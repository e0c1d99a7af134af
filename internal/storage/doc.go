// Package storage persists anime records and bot users.
//
// Drivers:
//   - "sqlite" (default): modernc.org/sqlite, pure Go, single writer
//   - "postgres": pgx through database/sql
//   - "memory" / "file": in-process maps, optionally snapshotted to a JSON file
//
// The SQL drivers share one implementation (sqlStore) and differ only in
// placeholder style, schema and unique-violation detection.
package storage
