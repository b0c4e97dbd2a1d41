// Package storage persists the user tokens swept by the token expiry job.
//
// Two backends are available: a dependency-free file store (snapshot plus
// append-only journal) and SQLite through modernc.org/sqlite.
package storage
