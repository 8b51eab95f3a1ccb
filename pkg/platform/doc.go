// Package platform generates a synthetic test-platform resource tree,
// registering arch.tile0.clusterM.{pe0..peK,mem0} leaves directly into an
// accounter from the --tpd.clusters/--tpd.cmem/--tpd.pes flags (§6). It
// exists because recipe parsing and real platform discovery are both
// external collaborators (§1) — this is the stand-in that lets the rest of
// the daemon run without either.
package platform
