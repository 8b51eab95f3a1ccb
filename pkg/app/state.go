package app

import "github.com/bbque/rtrm/pkg/res"

// State is a lifecycle state of an Execution Context (§3, §4.B).
type State int

const (
	Disabled State = iota
	Ready
	Sync
	Running
	Finished

	stateCount
)

func (s State) String() string {
	switch s {
	case Disabled:
		return "DISABLED"
	case Ready:
		return "READY"
	case Sync:
		return "SYNC"
	case Running:
		return "RUNNING"
	case Finished:
		return "FINISHED"
	default:
		return "UNKNOWN"
	}
}

// SyncState is the per-EXC sub-state while State == Sync.
type SyncState int

const (
	Starting SyncState = iota
	Reconf
	Migrec
	Migrate
	Blocked

	syncStateCount
)

func (s SyncState) String() string {
	switch s {
	case Starting:
		return "STARTING"
	case Reconf:
		return "RECONF"
	case Migrec:
		return "MIGREC"
	case Migrate:
		return "MIGRATE"
	case Blocked:
		return "BLOCKED"
	default:
		return "UNKNOWN"
	}
}

// Schedule pairs a lifecycle state with the AWM it applies to (the
// "scheduling tuple" of §3). An EXC holds one as its current tuple and,
// while a cycle is in flight, one more as its next tuple.
type Schedule struct {
	State     State
	SyncState SyncState // meaningful only when State == Sync
	AWM       *AWM

	// Usages is the concrete resource binding a policy booked for AWM — the
	// same map passed to SetNextSchedule. The synchronization manager reads
	// a RUNNING EXC's current Usages back to pre-book its holdings into the
	// sync view (via Accounter.SyncBookResources) when that EXC is not being
	// reconfigured, without having to re-resolve or re-walk anything a
	// policy already decided.
	Usages res.UsageMap
}
