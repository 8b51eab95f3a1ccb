package res

import (
	"hash/fnv"
	"sync"

	"github.com/bbque/rtrm/pkg/uid"
	"github.com/rs/zerolog"
)

// viewInfo tracks the bookkeeping the accounter needs to release a view
// cheaply: which leaves it touched, and which usage map each application
// booked into it (so ReleaseResources doesn't need the caller to resupply
// the map, and APP_USAGES / reshuffle checks have something to read).
type viewInfo struct {
	requester string
	touched   map[*Resource]bool
	apps      map[uid.UID]UsageMap
}

func newViewInfo(requester string) *viewInfo {
	return &viewInfo{
		requester: requester,
		touched:   make(map[*Resource]bool),
		apps:      make(map[uid.UID]UsageMap),
	}
}

// Accounter is the sole owner of booking state for every platform resource.
// All queries and bookings operate against an explicit ViewToken, so a
// scheduling policy can try allocations in a private view without
// disturbing the system view that running applications currently hold.
type Accounter struct {
	tree *Tree

	mu         sync.Mutex // guards views + systemTok; outermost per §5's lock ordering
	views      map[ViewToken]*viewInfo
	systemTok  ViewToken
	requesters map[string]ViewToken // requester id -> its last-issued token, for GetView idempotence

	logger zerolog.Logger
}

// NewAccounter returns an empty accounter with just the system view open.
func NewAccounter(logger zerolog.Logger) *Accounter {
	a := &Accounter{
		tree:       newTree(),
		views:      make(map[ViewToken]*viewInfo),
		requesters: make(map[string]ViewToken),
		logger:     logger,
	}
	a.views[SystemView] = newViewInfo("system")
	a.systemTok = SystemView
	return a
}

// resolve maps the SystemView alias (0) onto whichever token is currently
// promoted; every other token is returned unchanged.
func (a *Accounter) resolve(v ViewToken) ViewToken {
	if v == SystemView {
		return a.systemTok
	}
	return v
}

// RegisterResource registers a single leaf at path with amount normalized
// by unit. Platform load calls this once per leaf; after load the path set
// is closed (§4.A).
func (a *Accounter) RegisterResource(path, unit string, amount uint64) ResultCode {
	if path == "" {
		return ErrMissPath
	}
	a.tree.insert(path, ConvertValue(amount, unit))
	return Success
}

// resolveUsagePaths expands a single path or a Usage's path into the set of
// concrete leaves it denotes (exact, template, or hybrid).
func (a *Accounter) resolveUsagePaths(path string) []*Resource {
	return a.tree.findAll(path)
}

// Resolve is the exported form of resolveUsagePaths: it expands an abstract
// resource path (possibly a wildcard template or hybrid path) into the
// concrete leaves a scheduling policy may bind a Usage to (§4.D).
func (a *Accounter) Resolve(path string) []*Resource {
	return a.resolveUsagePaths(path)
}

// Total sums the static total over every leaf matching path.
func (a *Accounter) Total(path string) uint64 {
	var total uint64
	for _, r := range a.resolveUsagePaths(path) {
		total += r.Total()
	}
	return total
}

// Available sums (total-used) in vtok over every leaf matching path. If app
// is non-nil the amount *app already holds in vtok is added back, so the
// application "sees itself" per §4.A.
func (a *Accounter) Available(path string, vtok ViewToken, app *uid.UID) uint64 {
	v := a.resolve(vtok)
	var total uint64
	for _, r := range a.resolveUsagePaths(path) {
		total += r.available(v)
		if app != nil {
			total += r.appUsed(v, *app)
		}
	}
	return total
}

// Used sums used over every leaf matching path in vtok.
func (a *Accounter) Used(path string, vtok ViewToken) uint64 {
	v := a.resolve(vtok)
	var total uint64
	for _, r := range a.resolveUsagePaths(path) {
		total += r.used(v)
	}
	return total
}

// GetView allocates a fresh, empty view. The token is derived from
// requester so repeated calls from the same requester within a cycle are
// idempotent (they return the same, already-open view).
func (a *Accounter) GetView(requester string) ViewToken {
	a.mu.Lock()
	defer a.mu.Unlock()

	if tok, ok := a.requesters[requester]; ok {
		if _, stillOpen := a.views[tok]; stillOpen {
			return tok
		}
	}

	tok := hashRequester(requester, a.views)
	a.views[tok] = newViewInfo(requester)
	a.requesters[requester] = tok
	return tok
}

func hashRequester(requester string, existing map[ViewToken]*viewInfo) ViewToken {
	h := fnv.New64a()
	_, _ = h.Write([]byte(requester))
	tok := ViewToken(h.Sum64())
	for tok == SystemView {
		// Never collide with the system-view alias; perturb deterministically.
		h.Write([]byte{0})
		tok = ViewToken(h.Sum64())
	}
	for attempt := byte(1); existing[tok] != nil; attempt++ {
		h.Write([]byte{attempt})
		tok = ViewToken(h.Sum64())
		if tok == SystemView {
			tok++
		}
	}
	return tok
}

// PutView releases a view, dropping every booking it holds. The system
// view's token (SystemView, or its resolved alias) cannot be released this
// way.
func (a *Accounter) PutView(vtok ViewToken) ResultCode {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.putViewLocked(vtok)
}

func (a *Accounter) putViewLocked(vtok ViewToken) ResultCode {
	resolved := a.resolve(vtok)
	if resolved == a.systemTok {
		return ErrMissView
	}
	info, ok := a.views[resolved]
	if !ok {
		return ErrMissView
	}
	for r := range info.touched {
		r.dropView(resolved)
	}
	delete(a.views, resolved)
	delete(a.requesters, info.requester)
	return Success
}

// SetView atomically promotes vtok to be the new system view, releasing the
// old one. This is the accounter's sole commit point.
func (a *Accounter) SetView(vtok ViewToken) (ViewToken, ResultCode) {
	a.mu.Lock()
	defer a.mu.Unlock()

	resolved := a.resolve(vtok)
	info, ok := a.views[resolved]
	if !ok {
		return a.systemTok, ErrMissView
	}

	old := a.systemTok
	a.systemTok = resolved
	info.requester = "system"

	if oldInfo, exists := a.views[old]; exists && old != resolved {
		for r := range oldInfo.touched {
			r.dropView(old)
		}
		delete(a.views, old)
	}
	return resolved, Success
}

// BookResources books usages for app in vtok. In scheduling mode (the usual
// case — a policy trying an allocation) each Usage's Binds are walked in
// order, greedily taking min(remaining, available) from each leaf. With
// doCheck set, availability across the whole set is verified before any
// leaf is mutated, so the call is all-or-nothing.
func (a *Accounter) BookResources(app uid.UID, usages UsageMap, vtok ViewToken, doCheck bool) ResultCode {
	if len(usages) == 0 {
		return ErrMissUsages
	}

	a.mu.Lock()
	resolved := a.resolve(vtok)
	info, ok := a.views[resolved]
	if !ok {
		a.mu.Unlock()
		return ErrMissView
	}
	if _, exists := info.apps[app]; exists {
		a.mu.Unlock()
		return ErrAppUsages
	}
	a.mu.Unlock()

	if doCheck {
		for _, u := range usages {
			if a.sumAvailable(u.Binds, resolved, app) < u.Amount {
				return ErrUsageExceeded
			}
		}
	}

	booked := make(UsageMap, len(usages))
	for path, u := range usages {
		remaining := u.Amount
		for _, r := range u.Binds {
			if remaining == 0 {
				break
			}
			take := r.available(resolved)
			if take > remaining {
				take = remaining
			}
			if take == 0 {
				continue
			}
			r.acquire(resolved, app, take)
			remaining -= take
		}
		if remaining > 0 {
			// Partial booking without a pre-check: roll back what we took
			// and report exhaustion, keeping the all-or-nothing contract.
			booked[path] = u
			a.releaseFromUsages(resolved, app, booked)
			return ErrUsageExceeded
		}
		booked[path] = u
	}

	a.mu.Lock()
	for _, u := range booked {
		for _, r := range u.Binds {
			info.touched[r] = true
		}
	}
	info.apps[app] = booked
	a.mu.Unlock()
	return Success
}

func (a *Accounter) sumAvailable(binds []*Resource, vtok ViewToken, app uid.UID) uint64 {
	var total uint64
	for _, r := range binds {
		total += r.available(vtok) + r.appUsed(vtok, app)
	}
	return total
}

// ReleaseResources reverses a prior booking, decrementing each bind by
// exactly what app held and removing app from the view's bookkeeping.
func (a *Accounter) ReleaseResources(app uid.UID, vtok ViewToken) ResultCode {
	a.mu.Lock()
	resolved := a.resolve(vtok)
	info, ok := a.views[resolved]
	if !ok {
		a.mu.Unlock()
		return ErrMissView
	}
	booked, held := info.apps[app]
	if !held {
		a.mu.Unlock()
		return ErrMissApp
	}
	delete(info.apps, app)
	a.mu.Unlock()

	a.releaseFromUsages(resolved, app, booked)
	return Success
}

func (a *Accounter) releaseFromUsages(vtok ViewToken, app uid.UID, usages UsageMap) {
	for _, u := range usages {
		for _, r := range u.Binds {
			r.release(vtok, app)
		}
	}
}

// SyncBookResources performs the sync-session booking variant of §4.A: it
// does not check availability and does not walk binds greedily. Instead,
// for every leaf named in usages it reads the exact amount app holds on
// that leaf in scheduledView (the view the scheduler policy validated) and
// re-acquires exactly that amount in syncView, guaranteeing the committed
// state is bit-identical to what the policy saw.
func (a *Accounter) SyncBookResources(app uid.UID, usages UsageMap, scheduledView, syncView ViewToken) ResultCode {
	a.mu.Lock()
	sv := a.resolve(syncView)
	info, ok := a.views[sv]
	if !ok {
		a.mu.Unlock()
		return ErrMissView
	}
	a.mu.Unlock()

	schedTok := a.resolve(scheduledView)
	booked := make(UsageMap, len(usages))
	for path, u := range usages {
		var replayed uint64
		for _, r := range u.Binds {
			amt := r.appUsed(schedTok, app)
			if amt == 0 {
				continue
			}
			r.acquire(sv, app, amt)
			replayed += amt
		}
		if replayed != u.Amount {
			a.releaseFromUsages(sv, app, UsageMap{path: u})
			return ErrUsageExceeded
		}
		booked[path] = u
	}

	a.mu.Lock()
	for _, u := range booked {
		for _, r := range u.Binds {
			info.touched[r] = true
		}
	}
	info.apps[app] = booked
	a.mu.Unlock()
	return Success
}

// Reshuffled reports whether app's per-leaf holdings differ between
// currentView and nextView across the union of the two usage maps' binds —
// i.e. whether committing next over current would actually move resources
// around, as opposed to a pure QoS-level change with the same footprint.
func (a *Accounter) Reshuffled(app uid.UID, currentView, nextView ViewToken, current, next UsageMap) bool {
	cv, nv := a.resolve(currentView), a.resolve(nextView)
	seen := make(map[*Resource]bool)
	check := func(u UsageMap) bool {
		for _, usage := range u {
			for _, r := range usage.Binds {
				if seen[r] {
					continue
				}
				seen[r] = true
				if r.appUsed(cv, app) != r.appUsed(nv, app) {
					return true
				}
			}
		}
		return false
	}
	return check(current) || check(next)
}
