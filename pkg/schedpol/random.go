package schedpol

import (
	"math/rand"

	"github.com/bbque/rtrm/pkg/app"
	"github.com/bbque/rtrm/pkg/res"
)

// Random is the reference "pick any AWM, bind to a random cluster" policy
// (§4.D). It exists mostly to exercise the scheduling substrate end to end
// without encoding any notion of quality.
type Random struct {
	Rand *rand.Rand // nil uses the package-level source
}

func (p *Random) Name() string { return "random" }

func (p *Random) intn(n int) int {
	if n <= 0 {
		return 0
	}
	if p.Rand != nil {
		return p.Rand.Intn(n)
	}
	return rand.Intn(n)
}

func (p *Random) Schedule(sys *System) (Outcome, error) {
	eligible := sys.Eligible()
	if len(eligible) == 0 {
		return SchedNoWorkingMode, nil
	}

	scheduled := false
	for _, e := range eligible {
		awms := e.EnabledAWMs()
		if len(awms) == 0 {
			continue
		}
		awm := awms[p.intn(len(awms))]

		usages, ok := bindTemplate(sys, awm.Usages, p.randomRotate)
		if !ok {
			continue
		}
		if err := e.SetNextSchedule(sys.Accounter, awm, usages, sys.View, app.Starting); err != nil {
			continue
		}
		scheduled = true
	}

	if !scheduled {
		return SchedNoWorkingMode, nil
	}
	return SchedDone, nil
}

// randomRotate picks a random rotation of leaves so that, for a template or
// hybrid path matching several candidate clusters, which one ends up first
// (and therefore preferred by the accounter's greedy bind walk) varies
// between cycles instead of always favoring the lowest path.
func (p *Random) randomRotate(leaves []*res.Resource) []*res.Resource {
	if len(leaves) < 2 {
		return leaves
	}
	start := p.intn(len(leaves))
	out := make([]*res.Resource, len(leaves))
	for i := range leaves {
		out[i] = leaves[(start+i)%len(leaves)]
	}
	return out
}
