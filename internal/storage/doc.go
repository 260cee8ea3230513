package storage

// Package storage is the authoritative persistence layer for alarms and
// for the scheduling config/stats blobs (a small key-value surface).
//
// It currently supports:
//   - Alarm CRUD (the engine never holds alarms longer than one call)
//   - KV get/set for serialized settings blobs
//
// Backends: a dependency-free file backend (snapshot + journal) and an
// optional SQLite backend behind the "sqlite" build tag.
