// Package state provides the persistence backends for task state: a volatile
// in-memory store for tests and demos, an atomic file store writing one JSON
// document per task, and a SQLite-backed store for deployments that want a
// single durable database file.
//
// All backends satisfy core.StateStore and share its atomicity contract:
// Persist replaces the stored document for a task completely or not at all,
// so a crash mid-write never leaves a mixed old/new state on disk.
package state
