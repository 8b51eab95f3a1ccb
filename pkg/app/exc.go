package app

import (
	"fmt"
	"sync"

	"github.com/bbque/rtrm/pkg/res"
	"github.com/bbque/rtrm/pkg/uid"
)

// ErrWorkingModeRejected is returned by SetNextSchedule when the accounter
// refuses to book the candidate AWM's usage map into the scheduler's view.
var ErrWorkingModeRejected = fmt.Errorf("app: working mode rejected")

// DefaultLowestPriority is the lowest-urgency priority level (highest
// numeric value) the daemon accepts when no recipe or CLI override sets one
// (BBQUE_APP_PRIO_LEVELS - 1 in the original source's default build).
const DefaultLowestPriority = 4

// EXC is an Execution Context: one independently schedulable unit of an
// application process, identified by (pid, exc_id) — equivalently by UID.
type EXC struct {
	UID      uid.UID
	PID      int32
	ExcID    uint8
	Name     string
	Recipe   string
	WeakLoad bool

	mu        sync.Mutex
	cond      *sync.Cond
	priority  int
	lowestPri int

	awms        []*AWM // enabled-AWM list, sorted by Value ascending
	allAWMs     []*AWM // every AWM the recipe declared, unfiltered
	constraints *ConstraintMap

	current Schedule
	next    Schedule
}

// NewEXC constructs a freshly-registered EXC in the DISABLED state.
func NewEXC(pid int32, excID uint8, name, recipe string, priority, lowestPri int, weakLoad bool, awms []*AWM) *EXC {
	e := &EXC{
		UID:         uid.Pack(pid, excID),
		PID:         pid,
		ExcID:       excID,
		Name:        name,
		Recipe:      recipe,
		WeakLoad:    weakLoad,
		priority:    clamp(priority, lowestPri),
		lowestPri:   lowestPri,
		allAWMs:     awms,
		constraints: NewConstraintMap(),
		current:     Schedule{State: Disabled},
		next:        Schedule{State: Disabled},
	}
	e.cond = sync.NewCond(&e.mu)
	e.recomputeEnabledAWMs()
	return e
}

func clamp(p, lowest int) int {
	if p < 0 {
		return 0
	}
	if p > lowest {
		return lowest
	}
	return p
}

// StrID renders the pid:name:exc_id identifier used in log messages (§7).
func (e *EXC) StrID() string {
	return fmt.Sprintf("%d:%s:%d", e.PID, e.Name, e.ExcID)
}

// Priority returns the EXC's current priority (0 = highest).
func (e *EXC) Priority() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.priority
}

// SetPriority clamps p into [0, lowest] before installing it (§8 boundary
// property).
func (e *EXC) SetPriority(p int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.priority = clamp(p, e.lowestPri)
}

// State returns the EXC's current lifecycle state and AWM.
func (e *EXC) State() Schedule {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current
}

// NextState returns the tentative next-cycle schedule, if any.
func (e *EXC) NextState() Schedule {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.next
}

// SetState is the application manager's sole write path onto current; only
// it is allowed to mutate state (§3). Moving to any state other than SYNC
// also clears the pending next schedule, which by then has either been
// committed or abandoned.
func (e *EXC) SetState(s Schedule) {
	e.mu.Lock()
	e.current = s
	if s.State != Sync {
		e.next = Schedule{}
	}
	e.mu.Unlock()
}

func (e *EXC) setNext(s Schedule) {
	e.mu.Lock()
	e.next = s
	e.mu.Unlock()
}

// EnabledAWMs returns the constraint-filtered AWM list, sorted by value
// ascending. The slice is a snapshot; callers must not mutate it.
func (e *EXC) EnabledAWMs() []*AWM {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*AWM, len(e.awms))
	copy(out, e.awms)
	return out
}

// SetConstraint installs a bound and recomputes the enabled-AWM list.
func (e *EXC) SetConstraint(path string, bound BoundType, value uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.constraints.Set(path, bound, value)
	e.recomputeEnabledAWMsLocked()
}

// RemoveConstraint drops a bound and recomputes the enabled-AWM list.
func (e *EXC) RemoveConstraint(path string, bound BoundType) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.constraints.Remove(path, bound)
	e.recomputeEnabledAWMsLocked()
}

func (e *EXC) recomputeEnabledAWMs() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.recomputeEnabledAWMsLocked()
}

func (e *EXC) recomputeEnabledAWMsLocked() {
	e.awms = e.constraints.enabledAWMs(e.allAWMs)
}

// SetNextSchedule tentatively assigns awm as the EXC's next scheduling
// tuple and books its usage map into the scheduler's view. On booking
// failure the EXC is left unchanged and ErrWorkingModeRejected is
// returned (§4.B).
func (e *EXC) SetNextSchedule(accounter *res.Accounter, awm *AWM, usages res.UsageMap, vtok res.ViewToken, syncState SyncState) error {
	code := accounter.BookResources(e.UID, usages, vtok, true)
	if !code.Ok() {
		return fmt.Errorf("%w: %s", ErrWorkingModeRejected, code)
	}
	e.setNext(Schedule{State: Sync, SyncState: syncState, AWM: awm, Usages: usages})
	return nil
}

// WaitSyncReply blocks the caller on the EXC's reply condvar until
// NotifyReply wakes it (§3, §5).
func (e *EXC) WaitSyncReply() {
	e.mu.Lock()
	e.cond.Wait()
	e.mu.Unlock()
}

// NotifyReply wakes any goroutine blocked in WaitSyncReply.
func (e *EXC) NotifyReply() {
	e.mu.Lock()
	e.cond.Broadcast()
	e.mu.Unlock()
}
