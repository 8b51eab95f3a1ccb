// Package uid defines the application/EXC identifier shared by every core
// component, so the resource accounter can key its per-view "apps" maps
// without importing the application package (which itself depends on res
// for binding resolution).
package uid

import "fmt"

// UID uniquely identifies an Execution Context as (pid, exc_id). The pair is
// packed into a single comparable value so it can be used as a map key.
type UID uint64

// Pack builds a UID from an OS process id and an EXC id local to that
// process. exc_id is capped at 8 bits, matching the RPC header's exc_id
// field (§6).
func Pack(pid int32, excID uint8) UID {
	return UID(uint64(uint32(pid))<<8 | uint64(excID))
}

// Split recovers the (pid, exc_id) pair from a UID.
func (u UID) Split() (pid int32, excID uint8) {
	return int32(uint32(u >> 8)), uint8(u)
}

func (u UID) String() string {
	pid, exc := u.Split()
	return fmt.Sprintf("%d:%d", pid, exc)
}
