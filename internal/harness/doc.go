// Package harness replays YAML scenarios against a real core.Service and
// checks the outcome.
//
// # Scenario Format
//
//	name: scenario_name
//	description: "What this scenario validates"
//	settings:
//	  due_every_n: 2
//	  warning_threshold: 3
//	flow:
//	  - invoke: start_session
//	  - advance: 1m
//	  - invoke: append_event
//	    args: { session_id: $session, kind: positive }
//	    expect:
//	      case: ok
//	      result: { running_balance: 1 }
//	  - remote: offline
//	assertions:
//	  - type: trace_count
//	    command: append_event
//	    count: 1
//	  - type: final_state
//	    session: $session
//	    expect: { running_balance: 1 }
//
// invoke steps name a command type (see package command); args are the
// command's fields. $session and $event expand to the most recently
// started session and the most recently touched event. advance moves the
// clock; remote switches the fake remote store offline or online.
//
// # Assertion Types
//
//   - trace_contains: a command appears in the trace with matching args
//   - trace_order: commands appear in the given order
//   - trace_count: a command appears exactly N times
//   - final_state: a session's recomputed state matches
//   - sync_status: the sync indicator matches
//   - remote_records: the fake remote holds the given record counts
//   - notifications: the delivered reminder signals, in order
//
// # Deterministic Testing
//
// Every run uses a fresh in-memory store, a clock starting at
// testutil.Epoch, sequential ids (id-0001, id-0002, ...) and an in-memory
// remote. Background sync passes are drained after every step so traces
// are identical across runs and can be compared against golden files.
package harness
