package res

import "strings"

// Units recognized at resource registration; K/M/G apply the binary
// (2^10/2^20/2^30) multiplier per §3.
const (
	UnitNone = "1"
	UnitK    = "k"
	UnitM    = "m"
	UnitG    = "g"
)

// ConvertValue normalizes an amount by its declared unit.
func ConvertValue(amount uint64, unit string) uint64 {
	switch strings.ToLower(unit) {
	case UnitK, "kb":
		return amount << 10
	case UnitM, "mb":
		return amount << 20
	case UnitG, "gb":
		return amount << 30
	default:
		return amount
	}
}

// matchKind classifies how a lookup path compares against a registered
// resource path.
type matchKind int

const (
	matchNone matchKind = iota
	matchExact
	matchTemplate // every numeric segment is wild
	matchHybrid   // some numeric segments fixed, others wild
)

// splitPath breaks a dotted resource path into its segments, e.g.
// "arch.tile0.cluster1.pe0" -> ["arch","tile0","cluster1","pe0"].
func splitPath(path string) []string {
	if path == "" {
		return nil
	}
	return strings.Split(path, ".")
}

// templateOf strips numeric suffixes from every segment, turning
// "arch.tile0.cluster1.pe0" into "arch.tile.cluster.pe".
func templateOf(path string) string {
	segs := splitPath(path)
	out := make([]string, len(segs))
	for i, s := range segs {
		out[i] = stripDigits(s)
	}
	return strings.Join(out, ".")
}

func stripDigits(seg string) string {
	i := len(seg)
	for i > 0 && seg[i-1] >= '0' && seg[i-1] <= '9' {
		i--
	}
	return seg[:i]
}

// matches reports how candidate path registered relates to the lookup path
// query. query may mix literal IDs and bare (ID-less) segments; registered
// must be a concrete, fully-qualified path (every segment carries its ID).
func matches(query, registered string) matchKind {
	qSegs := splitPath(query)
	rSegs := splitPath(registered)
	if len(qSegs) != len(rSegs) {
		return matchNone
	}
	if query == registered {
		return matchExact
	}

	hasFixedID := false
	hasWildID := false
	for i := range qSegs {
		q, r := qSegs[i], rSegs[i]
		base := stripDigits(r)
		if stripDigits(q) != base {
			return matchNone
		}
		if base == r {
			// registered segment carries no numeric ID (e.g. "arch"); the
			// query segment must equal it exactly, already checked above.
			continue
		}
		if q == r {
			hasFixedID = true
		} else if q == base {
			hasWildID = true
		} else {
			return matchNone
		}
	}
	switch {
	case !hasWildID:
		return matchExact
	case !hasFixedID:
		return matchTemplate
	default:
		return matchHybrid
	}
}
