// Package domain holds the record types shared by every other pacer package.
//
// This package contains type definitions and small pure helpers only. All
// other internal packages import domain; domain imports nothing internal.
//
// Key design constraints:
//   - Events are ordered by (Timestamp, ID), never by insertion order
//   - Records carry a Revision that is bumped on every local mutation
//   - Dirty marks local changes not yet pushed to the remote store
//   - All JSON tags use snake_case
package domain
