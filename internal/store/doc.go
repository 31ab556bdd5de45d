// Package store provides SQLite-backed local storage for pacer sessions,
// events, presets and user settings.
//
// The local store is authoritative: every mutation succeeds here first and
// is pushed to the remote store later by the syncer.
//
// # Critical Patterns
//
// Dirty tracking:
//   - Every insert or update sets dirty = 1 and bumps revision
//   - MarkClean only clears dirty when the revision is unchanged, so a
//     mutation that lands between a pending snapshot and its push stays dirty
//
// Deterministic ordering:
//   - Events are always read ORDER BY ts_ns ASC, id COLLATE BINARY ASC
//   - Pending snapshots order sessions by start time and events by timestamp
//
// One active session:
//   - A partial UNIQUE index on sessions(user_id) WHERE active = 1
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Deleting a session cascades to its events
//
// Timestamps are stored as Unix nanoseconds in UTC.
package store
