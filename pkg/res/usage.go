package res

// Usage is a request record: how much of a (possibly abstract) resource
// path is wanted, and — once a policy has bound it — the ordered list of
// concrete leaves that will satisfy it.
type Usage struct {
	Path   string
	Amount uint64
	Binds  []*Resource
}

// UsageMap is what a policy produces per scheduled AWM: one Usage per
// resource path the working mode demands.
type UsageMap map[string]*Usage

// Clone returns a deep-enough copy of m suitable for stashing inside an AWM
// or EXC record; Binds slices are shared (leaves are accounter-owned and
// never mutated by value).
func (m UsageMap) Clone() UsageMap {
	out := make(UsageMap, len(m))
	for k, u := range m {
		cp := &Usage{Path: u.Path, Amount: u.Amount}
		cp.Binds = append(cp.Binds, u.Binds...)
		out[k] = cp
	}
	return out
}

// TotalAmount sums the requested amounts across every usage in the map.
func (m UsageMap) TotalAmount() uint64 {
	var total uint64
	for _, u := range m {
		total += u.Amount
	}
	return total
}
