package platform

import (
	"fmt"

	"github.com/bbque/rtrm/pkg/res"
)

// peCapacity is the per-PE processing-element quantity registered for every
// synthetic PE leaf (an arbitrary but fixed unit, since the reference
// platform data generator has no notion of "how much" a PE is worth beyond
// being schedulable).
const peCapacity = 100

// Options configures the synthetic platform: a single tile hosting
// Clusters clusters, each with PEs processing elements and one memory bank
// of ClusterMemMB megabytes.
type Options struct {
	Clusters     int
	PEs          int
	ClusterMemMB uint64
}

// Generate registers every synthetic leaf into accounter, returning the
// full list of registered paths for logging.
func Generate(accounter *res.Accounter, opts Options) ([]string, error) {
	if opts.Clusters < 1 || opts.Clusters > 256 {
		return nil, fmt.Errorf("platform: clusters must be in [1,256], got %d", opts.Clusters)
	}
	if opts.PEs < 1 || opts.PEs > 256 {
		return nil, fmt.Errorf("platform: pes must be in [1,256], got %d", opts.PEs)
	}

	var paths []string
	for c := 0; c < opts.Clusters; c++ {
		for p := 0; p < opts.PEs; p++ {
			path := fmt.Sprintf("arch.tile0.cluster%d.pe%d", c, p)
			if code := accounter.RegisterResource(path, res.UnitNone, peCapacity); !code.Ok() {
				return nil, fmt.Errorf("platform: registering %s: %s", path, code)
			}
			paths = append(paths, path)
		}
		memPath := fmt.Sprintf("arch.tile0.cluster%d.mem0", c)
		if code := accounter.RegisterResource(memPath, res.UnitM, opts.ClusterMemMB); !code.Ok() {
			return nil, fmt.Errorf("platform: registering %s: %s", memPath, code)
		}
		paths = append(paths, memPath)
	}
	return paths, nil
}
