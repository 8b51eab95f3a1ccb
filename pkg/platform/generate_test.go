package platform

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bbque/rtrm/pkg/res"
)

func TestGenerateRegistersExpectedLeaves(t *testing.T) {
	a := res.NewAccounter(zerolog.Nop())
	paths, err := Generate(a, Options{Clusters: 2, PEs: 3, ClusterMemMB: 4096})
	require.NoError(t, err)
	assert.Len(t, paths, 2*(3+1))

	assert.Equal(t, uint64(peCapacity), a.Total("arch.tile0.cluster0.pe0"))
	assert.Equal(t, uint64(4096)<<20, a.Total("arch.tile0.cluster1.mem0"))
	assert.Equal(t, uint64(peCapacity*3), a.Total("arch.tile0.cluster0.pe"))
}

func TestGenerateRejectsOutOfRangeClusters(t *testing.T) {
	a := res.NewAccounter(zerolog.Nop())
	_, err := Generate(a, Options{Clusters: 0, PEs: 4, ClusterMemMB: 1024})
	assert.Error(t, err)
}

func TestGenerateRejectsOutOfRangePEs(t *testing.T) {
	a := res.NewAccounter(zerolog.Nop())
	_, err := Generate(a, Options{Clusters: 1, PEs: 300, ClusterMemMB: 1024})
	assert.Error(t, err)
}
