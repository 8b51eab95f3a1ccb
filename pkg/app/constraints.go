package app

import "sort"

// BoundType distinguishes a constraint's lower and upper bound.
type BoundType int

const (
	LowerBound BoundType = iota
	UpperBound
)

// ConstraintSpec is one static, recipe-declared bound, ready to be applied
// to a freshly-created EXC via SetConstraint.
type ConstraintSpec struct {
	Path  string
	Bound BoundType
	Value uint64
}

// constraint is a single (resource path, bound) pair. A path may carry both
// a lower and an upper bound, tracked as two fields on the same record so
// removing one leaves the other intact.
type constraint struct {
	lower    uint64
	upper    uint64
	hasLower bool
	hasUpper bool
}

const unboundedUpper = ^uint64(0)

// ConstraintMap is the set of per-resource bounds hiding AWMs whose demand
// falls outside them.
type ConstraintMap struct {
	byPath map[string]*constraint
}

// NewConstraintMap returns an empty constraint set.
func NewConstraintMap() *ConstraintMap {
	return &ConstraintMap{byPath: make(map[string]*constraint)}
}

// Set installs or replaces a bound on path. Setting the same bound to the
// same value twice is idempotent (§8 round-trip property).
func (c *ConstraintMap) Set(path string, bound BoundType, value uint64) {
	cst, ok := c.byPath[path]
	if !ok {
		cst = &constraint{}
		c.byPath[path] = cst
	}
	switch bound {
	case LowerBound:
		cst.lower, cst.hasLower = value, true
	case UpperBound:
		cst.upper, cst.hasUpper = value, true
	}
}

// Remove drops bound on path, resetting it to its unbounded limit (0 for
// lower, +inf for upper). When both bounds are at their limits the
// constraint record is erased entirely.
func (c *ConstraintMap) Remove(path string, bound BoundType) {
	cst, ok := c.byPath[path]
	if !ok {
		return
	}
	switch bound {
	case LowerBound:
		cst.lower, cst.hasLower = 0, false
	case UpperBound:
		cst.upper, cst.hasUpper = unboundedUpper, false
	}
	if !cst.hasLower && !cst.hasUpper {
		delete(c.byPath, path)
	}
}

// satisfies reports whether demand on path is compatible with every bound
// set on that path.
func (c *ConstraintMap) satisfies(path string, demand uint64) bool {
	cst, ok := c.byPath[path]
	if !ok {
		return true
	}
	if cst.hasLower && demand < cst.lower {
		return false
	}
	if cst.hasUpper && demand > cst.upper {
		return false
	}
	return true
}

// Paths returns every resource path currently constrained, for iteration
// when recomputing the enabled-AWM list.
func (c *ConstraintMap) Paths() []string {
	out := make([]string, 0, len(c.byPath))
	for p := range c.byPath {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// enabledAWMs filters candidates to those whose demand on every constrained
// path lies within the bound, sorted by AWM value ascending. An AWM that
// does not mention a constrained path at all is treated as demanding 0 on
// it (absence satisfies a lower bound of 0 and any upper bound).
func (c *ConstraintMap) enabledAWMs(candidates []*AWM) []*AWM {
	paths := c.Paths()
	out := make([]*AWM, 0, len(candidates))
	for _, awm := range candidates {
		ok := true
		for _, p := range paths {
			demand, _ := awm.Demand(p)
			if !c.satisfies(p, demand) {
				ok = false
				break
			}
		}
		if ok {
			out = append(out, awm)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Value < out[j].Value })
	return out
}
