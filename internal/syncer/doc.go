// Package syncer pushes dirty local records to the remote store.
//
// The Coordinator is single-flight: at most one sync pass executes at a
// time. Requests that arrive while a pass is running set a resync flag and
// return immediately; when the pass finishes it runs exactly one more pass
// that re-reads the dirty set, however many requests were folded in.
//
// A pass pushes sessions, then events, then presets, so the remote store
// never sees an event before its session. Per-record failures leave the
// record dirty and the pass continues. Failing to establish the remote
// user aborts the pass and schedules exactly one delayed retry.
//
// Thread-safety model:
//   - NotifyDirty, PerformSync, Status: safe from any goroutine
//   - Start: call once per Coordinator
//   - Close: waits for in-flight passes and stops the retry timer
package syncer
