package res

import (
	"sync"

	"github.com/bbque/rtrm/pkg/uid"
)

// ViewToken identifies one of the accounter's concurrent booking ledgers.
// The system view — the one every running application's allocation is
// drawn from — is always SystemView.
type ViewToken uint64

// SystemView is the token of the currently committed, live resource state.
const SystemView ViewToken = 0

// state is one view's booking ledger for a single resource leaf.
type state struct {
	used uint64
	apps map[uid.UID]uint64
}

func newState() *state {
	return &state{apps: make(map[uid.UID]uint64)}
}

// Resource is a leaf node in the resource tree: a name, a static total, and
// one booking ledger per live view.
type Resource struct {
	mu    sync.RWMutex // guards views; recursive in spirit via explicit re-entrant helpers
	path  string
	total uint64
	views map[ViewToken]*state
}

func newResource(path string, total uint64) *Resource {
	r := &Resource{
		path:  path,
		total: total,
		views: make(map[ViewToken]*state),
	}
	r.views[SystemView] = newState()
	return r
}

// Path returns the resource's fully-qualified registration path.
func (r *Resource) Path() string { return r.path }

// Total returns the static registered amount.
func (r *Resource) Total() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.total
}

func (r *Resource) viewState(v ViewToken, create bool) *state {
	st, ok := r.views[v]
	if !ok && create {
		st = newState()
		r.views[v] = st
	}
	return st
}

// used returns the amount of this leaf consumed in view v (0 if the view
// does not (yet) touch this leaf).
func (r *Resource) used(v ViewToken) uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if st := r.viewState(v, false); st != nil {
		return st.used
	}
	return 0
}

// appUsed returns the amount application a holds of this leaf in view v.
func (r *Resource) appUsed(v ViewToken, a uid.UID) uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if st := r.viewState(v, false); st != nil {
		return st.apps[a]
	}
	return 0
}

// available returns total-used for view v.
func (r *Resource) available(v ViewToken) uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	used := uint64(0)
	if st := r.viewState(v, false); st != nil {
		used = st.used
	}
	if used >= r.total {
		return 0
	}
	return r.total - used
}

// acquire books amount for app a in view v, creating the view's ledger
// on demand. Caller guarantees amount <= available(v).
func (r *Resource) acquire(v ViewToken, a uid.UID, amount uint64) {
	if amount == 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	st := r.viewState(v, true)
	st.used += amount
	st.apps[a] += amount
}

// release reverses a prior acquire of exactly the app's recorded amount,
// removing the app's entry from the view entirely.
func (r *Resource) release(v ViewToken, a uid.UID) (freed uint64, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st := r.viewState(v, false)
	if st == nil {
		return 0, false
	}
	amount, held := st.apps[a]
	if !held {
		return 0, false
	}
	st.used -= amount
	delete(st.apps, a)
	return amount, true
}

// dropView discards every booking a view holds on this leaf.
func (r *Resource) dropView(v ViewToken) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.views, v)
}

// ensureView makes sure the leaf has a (possibly empty) ledger for v. The
// accounter does not call it: GetView hands out a view without touching
// any leaf.
func (r *Resource) ensureView(v ViewToken) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.viewState(v, true)
}
