package schedpol

import (
	"sort"

	"github.com/bbque/rtrm/pkg/app"
)

// MetricOrdered is the reference "rank by (value - overhead) / contention"
// policy (§4.D). It enumerates every (app, AWM) pair among the eligible
// applications, scores each, and assigns working modes in descending score
// order, skipping any pair whose binding no longer fits once earlier,
// higher-ranked pairs have claimed resources.
type MetricOrdered struct{}

func (p *MetricOrdered) Name() string { return "metric-ordered" }

type candidate struct {
	exc   *app.EXC
	awm   *app.AWM
	score float64
}

func (p *MetricOrdered) Schedule(sys *System) (Outcome, error) {
	eligible := sys.Eligible()
	if len(eligible) == 0 {
		return SchedNoWorkingMode, nil
	}

	contention := contentionByPath(eligible)

	var candidates []candidate
	for _, e := range eligible {
		for _, awm := range e.EnabledAWMs() {
			candidates = append(candidates, candidate{
				exc:   e,
				awm:   awm,
				score: score(e, awm, contention),
			})
		}
	}
	if len(candidates) == 0 {
		return SchedNoWorkingMode, nil
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})

	decided := make(map[*app.EXC]bool)
	anyDone := false
	for _, c := range candidates {
		if decided[c.exc] {
			continue
		}
		usages, ok := bindTemplate(sys, c.awm.Usages, nil)
		if !ok {
			continue
		}
		if err := c.exc.SetNextSchedule(sys.Accounter, c.awm, usages, sys.View, app.Starting); err != nil {
			continue
		}
		decided[c.exc] = true
		anyDone = true
	}

	if !anyDone {
		return SchedNoWorkingMode, nil
	}
	return SchedDone, nil
}

// score computes (value - reconf_overhead - migration_overhead) /
// contention_level for switching exc into awm. reconf_overhead is the most
// recent observed reconfiguration sample for the exc's current AWM to this
// one, or 0 if none has been recorded yet. This implementation has no
// notion of cross-node migration distinct from reconfiguration, so
// migration_overhead is always 0 — a single EXC's AWMs all bind within the
// same resource tree.
func score(e *app.EXC, awm *app.AWM, contention map[string]int) float64 {
	reconf := 0.0
	if cur := e.State().AWM; cur != nil {
		if oh, ok := cur.OverheadTo(awm.ID); ok {
			reconf = oh.Last
		}
	}

	level := 1
	for path := range awm.Usages {
		if c := contention[path]; c > level {
			level = c
		}
	}

	return (float64(awm.Value) - reconf) / float64(level)
}

// contentionByPath counts, for every resource path demanded by at least one
// eligible EXC's enabled AWMs, how many distinct EXCs demand it — the
// number of applications actually competing for that path this cycle.
func contentionByPath(eligible []*app.EXC) map[string]int {
	counts := make(map[string]int)
	for _, e := range eligible {
		seen := make(map[string]bool)
		for _, awm := range e.EnabledAWMs() {
			for path := range awm.Usages {
				seen[path] = true
			}
		}
		for path := range seen {
			counts[path]++
		}
	}
	return counts
}
