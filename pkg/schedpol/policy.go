package schedpol

import (
	"fmt"

	"github.com/bbque/rtrm/pkg/app"
	"github.com/bbque/rtrm/pkg/appmgr"
	"github.com/bbque/rtrm/pkg/res"
)

// Outcome is a policy's per-cycle verdict.
type Outcome int

const (
	// SchedDone means the cycle ran to completion and at least one
	// application was given a new tentative schedule.
	SchedDone Outcome = iota
	// SchedNoWorkingMode means no eligible application had an admissible
	// AWM this cycle — an expected "no work" outcome (§7), not an error.
	SchedNoWorkingMode
	// SchedDelayed means the policy deferred to a later cycle (e.g. it
	// detected contention it chose not to resolve yet).
	SchedDelayed
)

func (o Outcome) String() string {
	switch o {
	case SchedDone:
		return "done"
	case SchedNoWorkingMode:
		return "no_working_mode"
	case SchedDelayed:
		return "delayed"
	default:
		return "unknown"
	}
}

// System is the read-mostly facade a policy runs against: the accounter
// view it should book into, and the application manager it reads eligible
// EXCs and their AWM/constraint state from.
type System struct {
	Accounter *res.Accounter
	Apps      *appmgr.Manager
	View      res.ViewToken
}

// Eligible returns every EXC a policy may (re)schedule this cycle: those
// already READY to start, and those RUNNING which might be reconsidered.
func (s *System) Eligible() []*app.EXC {
	out := s.Apps.InState(app.Ready)
	out = append(out, s.Apps.InState(app.Running)...)
	return out
}

// Policy is the pluggable scheduling-decision contract of §4.D.
type Policy interface {
	Name() string
	Schedule(sys *System) (Outcome, error)
}

// ByName resolves a configured policy name (SchedulerManager.policy in the
// daemon's config file) to a Policy instance. It is the daemon's only
// lookup point — there is no separate plugin registry, since §6 does not
// call for one beyond the two reference policies.
func ByName(name string) (Policy, error) {
	switch name {
	case "random", "":
		return &Random{}, nil
	case "metric-ordered":
		return &MetricOrdered{}, nil
	default:
		return nil, fmt.Errorf("schedpol: unknown policy %q", name)
	}
}

// bindTemplate resolves every abstract usage in an AWM's template against
// the live resource tree, returning a usage map ready for
// (*app.EXC).SetNextSchedule. A path that no longer resolves to any leaf
// (platform shrank under the recipe) is skipped; if that leaves the AWM
// with zero usages it is not schedulable this cycle.
func bindTemplate(sys *System, tmpl app.UsageTemplate, pick func(leaves []*res.Resource) []*res.Resource) (res.UsageMap, bool) {
	usages := make(res.UsageMap, len(tmpl))
	for path, tu := range tmpl {
		leaves := sys.Accounter.Resolve(path)
		if len(leaves) == 0 {
			continue
		}
		if pick != nil {
			leaves = pick(leaves)
		}
		usages[path] = &res.Usage{Path: path, Amount: tu.Amount, Binds: leaves}
	}
	return usages, len(usages) > 0
}
