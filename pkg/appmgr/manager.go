package appmgr

import (
	"fmt"
	"sort"
	"sync"

	"github.com/bbque/rtrm/pkg/app"
	"github.com/bbque/rtrm/pkg/log"
	"github.com/bbque/rtrm/pkg/res"
	"github.com/bbque/rtrm/pkg/uid"
	"github.com/rs/zerolog"
)

// RecipeLoader resolves a recipe name to the AWM list it declares, and to
// the static constraints it declares. A single loader instance is shared by
// every CreateEXC call so recipes already parsed for one EXC are reused for
// the next with the same name.
type RecipeLoader interface {
	Load(name string) (awms []*app.AWM, weak bool, err error)
	Constraints(name string) ([]app.ConstraintSpec, error)
}

// bucket is one index slot: a set of EXCs guarded by its own mutex.
type bucket struct {
	mu      sync.Mutex
	entries map[uid.UID]*app.EXC
}

func newBucket() *bucket {
	return &bucket{entries: make(map[uid.UID]*app.EXC)}
}

// Manager is the Application Manager (§4.C): the indexed registry of every
// live execution context.
type Manager struct {
	accounter *res.Accounter
	loader    RecipeLoader
	logger    zerolog.Logger

	lowestPriority int

	mu     sync.RWMutex // guards byUID / byPID only
	byUID  map[uid.UID]*app.EXC
	byPID  map[int32]map[uid.UID]*app.EXC

	byPriority []*bucket // index 0..lowestPriority
	byState    []*bucket // index app.Disabled..app.Finished
	bySync     []*bucket // index app.Starting..app.Blocked
}

// NewManager constructs an empty Application Manager. lowestPriority is the
// highest (least urgent) priority level the daemon will accept (§3,
// BBQUE_APP_PRIO_LEVELS minus one).
func NewManager(accounter *res.Accounter, loader RecipeLoader, lowestPriority int) *Manager {
	m := &Manager{
		accounter:      accounter,
		loader:         loader,
		logger:         log.WithComponent("appmgr"),
		lowestPriority: lowestPriority,
		byUID:          make(map[uid.UID]*app.EXC),
		byPID:          make(map[int32]map[uid.UID]*app.EXC),
		byPriority:     make([]*bucket, lowestPriority+1),
		byState:        make([]*bucket, int(app.Finished)+1),
		bySync:         make([]*bucket, int(app.Blocked)+1),
	}
	for i := range m.byPriority {
		m.byPriority[i] = newBucket()
	}
	for i := range m.byState {
		m.byState[i] = newBucket()
	}
	for i := range m.bySync {
		m.bySync[i] = newBucket()
	}
	return m
}

// moveLocked relocates u from buckets[oldIdx] to buckets[newIdx], acquiring
// both bucket mutexes in ascending index order (§4.C lock-ordering rule).
func moveLocked(buckets []*bucket, oldIdx, newIdx int, u uid.UID, e *app.EXC) {
	if oldIdx == newIdx {
		buckets[oldIdx].mu.Lock()
		buckets[oldIdx].entries[u] = e
		buckets[oldIdx].mu.Unlock()
		return
	}
	lo, hi := oldIdx, newIdx
	if lo > hi {
		lo, hi = hi, lo
	}
	buckets[lo].mu.Lock()
	defer buckets[lo].mu.Unlock()
	buckets[hi].mu.Lock()
	defer buckets[hi].mu.Unlock()
	delete(buckets[oldIdx].entries, u)
	buckets[newIdx].entries[u] = e
}

func removeLocked(buckets []*bucket, idx int, u uid.UID) {
	buckets[idx].mu.Lock()
	delete(buckets[idx].entries, u)
	buckets[idx].mu.Unlock()
}

// CreateEXC registers a new EXC in the DISABLED state. If weakLoad is false
// and the recipe only partially resolved, the EXC is rejected (§4.C). Any
// static constraints the recipe declares are applied immediately, so the
// enabled-AWM list reflects them from registration onward (§4.B, §6).
func (m *Manager) CreateEXC(pid int32, excID uint8, name, recipe string, priority int, weakLoad bool) (*app.EXC, error) {
	awms, weak, err := m.loader.Load(recipe)
	if err != nil {
		return nil, fmt.Errorf("appmgr: loading recipe %q: %w", recipe, err)
	}
	if weak && !weakLoad {
		return nil, fmt.Errorf("appmgr: recipe %q loaded with a weak (partial) profile and weak-load was not requested", recipe)
	}

	e := app.NewEXC(pid, excID, name, recipe, priority, m.lowestPriority, weak, awms)

	constraints, err := m.loader.Constraints(recipe)
	if err != nil {
		return nil, fmt.Errorf("appmgr: loading constraints for recipe %q: %w", recipe, err)
	}
	for _, cs := range constraints {
		e.SetConstraint(cs.Path, cs.Bound, cs.Value)
	}

	m.mu.Lock()
	if _, exists := m.byUID[e.UID]; exists {
		m.mu.Unlock()
		return nil, fmt.Errorf("appmgr: %s already registered", e.UID)
	}
	m.byUID[e.UID] = e
	if m.byPID[pid] == nil {
		m.byPID[pid] = make(map[uid.UID]*app.EXC)
	}
	m.byPID[pid][e.UID] = e
	m.mu.Unlock()

	pri := e.Priority()
	m.byPriority[pri].mu.Lock()
	m.byPriority[pri].entries[e.UID] = e
	m.byPriority[pri].mu.Unlock()

	m.byState[app.Disabled].mu.Lock()
	m.byState[app.Disabled].entries[e.UID] = e
	m.byState[app.Disabled].mu.Unlock()

	m.logger.Info().Str("exc", e.StrID()).Str("recipe", recipe).Bool("weak_load", weak).Msg("exc created")
	return e, nil
}

// All returns a snapshot of every registered EXC, regardless of state.
func (m *Manager) All() []*app.EXC {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*app.EXC, 0, len(m.byUID))
	for _, e := range m.byUID {
		out = append(out, e)
	}
	return out
}

// Lookup returns the EXC registered under u, if any.
func (m *Manager) Lookup(u uid.UID) (*app.EXC, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.byUID[u]
	return e, ok
}

// ByPID returns every EXC hosted by the given OS process.
func (m *Manager) ByPID(pid int32) []*app.EXC {
	m.mu.RLock()
	defer m.mu.RUnlock()
	group := m.byPID[pid]
	out := make([]*app.EXC, 0, len(group))
	for _, e := range group {
		out = append(out, e)
	}
	return out
}

// InState returns a snapshot of every EXC currently in state s, sorted by
// priority then UID for deterministic iteration.
func (m *Manager) InState(s app.State) []*app.EXC {
	b := m.byState[s]
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*app.EXC, 0, len(b.entries))
	for _, e := range b.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority() != out[j].Priority() {
			return out[i].Priority() < out[j].Priority()
		}
		return out[i].UID < out[j].UID
	})
	return out
}

// InSyncState returns a snapshot of every EXC currently in sync sub-state ss.
func (m *Manager) InSyncState(ss app.SyncState) []*app.EXC {
	b := m.bySync[ss]
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*app.EXC, 0, len(b.entries))
	for _, e := range b.entries {
		out = append(out, e)
	}
	return out
}

// transition moves e's state-bucket membership from old to next and updates
// its in-memory schedule tuple to match.
func (m *Manager) transition(e *app.EXC, next app.Schedule) {
	old := e.State()
	moveLocked(m.byState, int(old.State), int(next.State), e.UID, e)
	e.SetState(next)

	switch {
	case old.State != app.Sync && next.State == app.Sync:
		m.bySync[next.SyncState].mu.Lock()
		m.bySync[next.SyncState].entries[e.UID] = e
		m.bySync[next.SyncState].mu.Unlock()
	case old.State == app.Sync && next.State != app.Sync:
		removeLocked(m.bySync, int(old.SyncState), e.UID)
	case old.State == app.Sync && next.State == app.Sync && old.SyncState != next.SyncState:
		moveLocked(m.bySync, int(old.SyncState), int(next.SyncState), e.UID, e)
	}
}

// Enable moves e from DISABLED to READY.
func (m *Manager) Enable(u uid.UID) error {
	e, ok := m.Lookup(u)
	if !ok {
		return fmt.Errorf("appmgr: unknown exc %s", u)
	}
	if e.State().State != app.Disabled {
		return fmt.Errorf("appmgr: %s is not DISABLED", e.StrID())
	}
	m.transition(e, app.Schedule{State: app.Ready})
	m.logger.Info().Str("exc", e.StrID()).Msg("exc enabled")
	return nil
}

// Disable releases e's system-view resources and moves it to DISABLED from
// any other state.
func (m *Manager) Disable(u uid.UID) error {
	e, ok := m.Lookup(u)
	if !ok {
		return fmt.Errorf("appmgr: unknown exc %s", u)
	}
	m.accounter.ReleaseResources(e.UID, res.SystemView)
	m.transition(e, app.Schedule{State: app.Disabled})
	m.logger.Info().Str("exc", e.StrID()).Msg("exc disabled")
	return nil
}

// DestroyEXC marks e FINISHED and removes it from every index.
func (m *Manager) DestroyEXC(u uid.UID) error {
	e, ok := m.Lookup(u)
	if !ok {
		return fmt.Errorf("appmgr: unknown exc %s", u)
	}
	m.accounter.ReleaseResources(e.UID, res.SystemView)

	old := e.State()
	removeLocked(m.byState, int(old.State), e.UID)
	if old.State == app.Sync {
		removeLocked(m.bySync, int(old.SyncState), e.UID)
	}
	removeLocked(m.byPriority, e.Priority(), e.UID)

	m.mu.Lock()
	delete(m.byUID, e.UID)
	if group := m.byPID[e.PID]; group != nil {
		delete(group, e.UID)
		if len(group) == 0 {
			delete(m.byPID, e.PID)
		}
	}
	m.mu.Unlock()

	e.SetState(app.Schedule{State: app.Finished})
	m.logger.Info().Str("exc", e.StrID()).Msg("exc destroyed")
	return nil
}

// BeginSync moves u from READY or RUNNING into SYNC, picking up the
// tentative schedule a policy installed via (*app.EXC).SetNextSchedule. The
// entry sub-state is classified from the transition being made: an EXC
// leaving READY is STARTING for the first time, one already RUNNING with a
// bound AWM is being RECONF'd into a new one. This implementation does not
// model cross-node migration, so MIGREC/MIGRATE are never produced here —
// they remain valid sub-states a migration-aware policy or proxy could
// still drive an EXC through directly via SyncRequest.
func (m *Manager) BeginSync(u uid.UID) error {
	e, ok := m.Lookup(u)
	if !ok {
		return fmt.Errorf("appmgr: unknown exc %s", u)
	}
	cur := e.State()
	if cur.State != app.Ready && cur.State != app.Running {
		return fmt.Errorf("appmgr: %s is not READY or RUNNING", e.StrID())
	}
	next := e.NextState()
	if next.State != app.Sync {
		return fmt.Errorf("appmgr: %s has no pending schedule", e.StrID())
	}

	ss := app.Starting
	if cur.State == app.Running && cur.AWM != nil {
		ss = app.Reconf
	}

	m.transition(e, app.Schedule{State: app.Sync, SyncState: ss, AWM: next.AWM, Usages: next.Usages})
	m.logger.Info().Str("exc", e.StrID()).Str("awm", awmName(next.AWM)).Str("sync_state", ss.String()).Msg("sync begin")
	return nil
}

// SyncRequest validates that u is in SYNC and ss is a recognised sub-state;
// it is otherwise a no-op placeholder for downstream notification (§4.C) —
// the actual phase work is driven by the synchronization manager.
func (m *Manager) SyncRequest(u uid.UID, ss app.SyncState) error {
	e, ok := m.Lookup(u)
	if !ok {
		return fmt.Errorf("appmgr: unknown exc %s", u)
	}
	if ss < app.Starting || ss > app.Blocked {
		return fmt.Errorf("appmgr: invalid sync sub-state %d", ss)
	}
	cur := e.State()
	if cur.State != app.Sync {
		return fmt.Errorf("appmgr: %s is not in SYNC", e.StrID())
	}
	if cur.SyncState == ss {
		return nil
	}
	m.transition(e, app.Schedule{State: app.Sync, SyncState: ss, AWM: cur.AWM, Usages: cur.Usages})
	return nil
}

// SyncCommit finalises u's transition out of SYNC: to RUNNING normally, or
// to DISABLED when the sub-state being left was BLOCKED.
func (m *Manager) SyncCommit(u uid.UID) error {
	e, ok := m.Lookup(u)
	if !ok {
		return fmt.Errorf("appmgr: unknown exc %s", u)
	}
	cur := e.State()
	if cur.State != app.Sync {
		return fmt.Errorf("appmgr: %s is not in SYNC", e.StrID())
	}
	if cur.SyncState == app.Blocked {
		m.accounter.ReleaseResources(e.UID, res.SystemView)
		m.transition(e, app.Schedule{State: app.Disabled})
		m.logger.Info().Str("exc", e.StrID()).Msg("sync commit: blocked, exc disabled")
		return nil
	}
	m.transition(e, app.Schedule{State: app.Running, AWM: cur.AWM, Usages: cur.Usages})
	m.logger.Info().Str("exc", e.StrID()).Str("awm", awmName(cur.AWM)).Msg("sync commit: exc running")
	return nil
}

func awmName(a *app.AWM) string {
	if a == nil {
		return ""
	}
	return a.Name
}
