// Package storage persists run history and imported patterns.
//
// Drivers:
//   - "file": JSON Lines run log plus a pattern snapshot and journal
//   - "sqlite": SQLite database file (build tag "sqlite")
//
// Every Store also serves as a pattern.Store so imported patterns are
// resolvable by name next to the pattern directory.
package storage
