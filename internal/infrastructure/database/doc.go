// Package database provides SQLite connection management and schema
// migrations for the automation core.
//
// The database holds agent definitions, detected automation patterns, and
// the append-only agent run log. SQLite is configured with WAL mode and a
// single writer connection, which matches the engine's write pattern: many
// small inserts and counter updates from concurrent dispatch paths.
//
// Migrations are embedded into the binary by the migrations package and
// applied at startup, each in its own transaction.
package database
