/*
Package appmgr is the indexed registry of live execution contexts (§4.C).

Every EXC the daemon knows about is reachable through five indices; by_uid
and by_pid share one lock, and every bucket of the other three has its own:

	┌────────────────────── APPLICATION MANAGER ───────────────────────┐
	│                                                                    │
	│   by_uid            primary handle, one entry per EXC             │
	│   by_pid            multimap: one OS process, several EXCs        │
	│   by_priority[0..N] one bucket per priority level                 │
	│   by_state[..]      one bucket per lifecycle state                │
	│   by_sync_state[..] one bucket per sync sub-state                 │
	│                                                                    │
	└────────────────────────────────────────────────────────────────────┘

A transition between two state buckets locks both bucket mutexes in
ascending state-id order, moves the entry, then releases both — so a
reader holding only one bucket's lock never observes a half-moved EXC.
*/
package appmgr
