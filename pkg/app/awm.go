package app

import "sync"

// AWMID identifies a working mode within its owning application's list.
type AWMID int

// AWM is an Application Working Mode: an immutable-after-load execution
// profile with a QoS value and a resource-usage template. The only mutable
// part is its reconfiguration-overhead table, updated after every
// successful switch into this AWM.
type AWM struct {
	ID    AWMID
	Name  string
	Value int // QoS value, 0..255 per the recipe contract (§6)

	// Usages is the resource-usage template, resolved against the
	// registered resource set at load time. Binds are populated by a
	// policy at scheduling time, not at load.
	Usages UsageTemplate

	// WeakLoad records that this AWM's template did not fully resolve
	// against the registered resources at load time but was admitted
	// anyway because the loader was told to tolerate partial profiles.
	WeakLoad bool

	mu        sync.Mutex
	overheads map[AWMID]*sample
}

// UsageTemplate mirrors res.UsageMap but keyed by AWMID-independent path;
// it is the per-AWM declaration before any binding has happened.
type UsageTemplate map[string]TemplateUsage

// TemplateUsage is one entry of an AWM's resource-usage template: an
// abstract path (possibly a wildcard template or hybrid path) and the
// amount requested.
type TemplateUsage struct {
	Path   string
	Amount uint64
}

// NewAWM constructs an AWM with an empty usage template.
func NewAWM(id AWMID, name string, value int) *AWM {
	return &AWM{
		ID:        id,
		Name:      name,
		Value:     value,
		Usages:    make(UsageTemplate),
		overheads: make(map[AWMID]*sample),
	}
}

// Demand returns the template amount this AWM requests on path, or 0 if it
// does not mention path at all. Used by constraint filtering (§4.B).
func (a *AWM) Demand(path string) (uint64, bool) {
	u, ok := a.Usages[path]
	return u.Amount, ok
}

// RecordOverhead appends a reconfiguration-time sample observed when an EXC
// switched from this AWM to dest.
func (a *AWM) RecordOverhead(dest AWMID, seconds float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	s, ok := a.overheads[dest]
	if !ok {
		s = &sample{}
		a.overheads[dest] = s
	}
	s.observe(seconds)
}

// OverheadTo returns the advisory overhead statistic for switching from
// this AWM to dest, and whether any sample has ever been recorded.
func (a *AWM) OverheadTo(dest AWMID) (Overhead, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	s, ok := a.overheads[dest]
	if !ok {
		return Overhead{}, false
	}
	return s.snapshot(), true
}
