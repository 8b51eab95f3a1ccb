package sync

import (
	"context"
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bbque/rtrm/pkg/app"
	"github.com/bbque/rtrm/pkg/appmgr"
	"github.com/bbque/rtrm/pkg/res"
)

type fakeLoader struct{ awms map[string][]*app.AWM }

func (f *fakeLoader) Load(name string) ([]*app.AWM, bool, error) {
	return f.awms[name], false, nil
}

func (f *fakeLoader) Constraints(name string) ([]app.ConstraintSpec, error) {
	return nil, nil
}

type fakeProxy struct {
	failPhase string
	failPID   int32
	calls     map[string]int
}

func newFakeProxy() *fakeProxy { return &fakeProxy{calls: make(map[string]int)} }

func (p *fakeProxy) do(phase string, e *app.EXC) error {
	p.calls[phase]++
	if phase == p.failPhase && (p.failPID == 0 || p.failPID == e.PID) {
		return fmt.Errorf("injected failure")
	}
	return nil
}

func (p *fakeProxy) PreChange(ctx context.Context, e *app.EXC) error  { return p.do("prechange", e) }
func (p *fakeProxy) SyncChange(ctx context.Context, e *app.EXC) error { return p.do("syncchange", e) }
func (p *fakeProxy) DoChange(ctx context.Context, e *app.EXC) error   { return p.do("dochange", e) }
func (p *fakeProxy) PostChange(ctx context.Context, e *app.EXC) error { return p.do("postchange", e) }

func setup(t *testing.T) (*appmgr.Manager, *res.Accounter) {
	t.Helper()
	accounter := res.NewAccounter(zerolog.Nop())
	require.True(t, accounter.RegisterResource("arch.tile0.cluster0.pe0", "1", 100).Ok())
	loader := &fakeLoader{awms: map[string][]*app.AWM{}}
	mgr := appmgr.NewManager(accounter, loader, app.DefaultLowestPriority)
	return mgr, accounter
}

func scheduleEXC(t *testing.T, mgr *appmgr.Manager, accounter *res.Accounter, pid int32, vtok res.ViewToken) *app.EXC {
	t.Helper()
	e, err := mgr.CreateEXC(pid, 0, "x", "recipe.x", 2, false)
	require.NoError(t, err)
	require.NoError(t, mgr.Enable(e.UID))

	awm := app.NewAWM(1, "low", 10)
	leaf := accounter.Resolve("arch.tile0.cluster0.pe0")
	usages := res.UsageMap{"arch.tile0.cluster0.pe0": {Path: "arch.tile0.cluster0.pe0", Amount: 10, Binds: leaf}}
	require.NoError(t, e.SetNextSchedule(accounter, awm, usages, vtok, app.Starting))
	return e
}

func TestStartSyncCommitsOnFullSuccess(t *testing.T) {
	mgr, accounter := setup(t)
	vtok := accounter.GetView("scheduler")
	e := scheduleEXC(t, mgr, accounter, 100, vtok)

	proxy := newFakeProxy()
	m := NewManager(mgr, accounter, proxy, 0)
	require.NoError(t, m.StartSync(vtok))

	assert.Equal(t, app.Running, e.State().State)
	assert.Equal(t, 1, proxy.calls["prechange"])
	assert.Equal(t, 1, proxy.calls["postchange"])
	assert.Equal(t, uint64(10), accounter.Used("arch.tile0.cluster0.pe0", res.SystemView))
}

func TestStartSyncDisablesEXCThatFailsAPhase(t *testing.T) {
	mgr, accounter := setup(t)
	vtok := accounter.GetView("scheduler")
	e := scheduleEXC(t, mgr, accounter, 100, vtok)

	proxy := newFakeProxy()
	proxy.failPhase = "syncchange"
	m := NewManager(mgr, accounter, proxy, 0)
	require.NoError(t, m.StartSync(vtok))

	assert.Equal(t, app.Disabled, e.State().State)
	assert.Equal(t, uint64(0), accounter.Used("arch.tile0.cluster0.pe0", res.SystemView))
}

func TestStartSyncWithNoPendingEXCsReleasesView(t *testing.T) {
	mgr, accounter := setup(t)
	vtok := accounter.GetView("scheduler")

	proxy := newFakeProxy()
	m := NewManager(mgr, accounter, proxy, 0)
	require.NoError(t, m.StartSync(vtok))

	assert.Equal(t, res.ErrMissView, accounter.PutView(vtok))
}

func TestStartSyncReconfiguresRunningEXCWithoutLeakingPriorBooking(t *testing.T) {
	mgr, accounter := setup(t)
	vtok1 := accounter.GetView("scheduler-1")
	e := scheduleEXC(t, mgr, accounter, 100, vtok1)

	proxy := newFakeProxy()
	m := NewManager(mgr, accounter, proxy, 0)
	require.NoError(t, m.StartSync(vtok1))
	require.Equal(t, app.Running, e.State().State)
	require.Equal(t, uint64(10), accounter.Used("arch.tile0.cluster0.pe0", res.SystemView))

	// Re-schedule the now-RUNNING EXC onto a costlier AWM in a fresh view.
	vtok2 := accounter.GetView("scheduler-2")
	awm2 := app.NewAWM(2, "high", 50)
	leaf := accounter.Resolve("arch.tile0.cluster0.pe0")
	usages2 := res.UsageMap{"arch.tile0.cluster0.pe0": {Path: "arch.tile0.cluster0.pe0", Amount: 30, Binds: leaf}}
	require.NoError(t, e.SetNextSchedule(accounter, awm2, usages2, vtok2, app.Reconf))

	require.NoError(t, m.StartSync(vtok2))

	assert.Equal(t, app.Running, e.State().State)
	// The prior 10-unit booking must be released, not left accumulating
	// underneath the new one.
	assert.Equal(t, uint64(30), accounter.Used("arch.tile0.cluster0.pe0", res.SystemView))
}

func TestStartSyncPreBooksOtherRunningEXCsAcrossTheSwap(t *testing.T) {
	mgr, accounter := setup(t)
	require.True(t, accounter.RegisterResource("arch.tile0.cluster0.pe1", "1", 100).Ok())

	vtok1 := accounter.GetView("scheduler-1")
	running := scheduleEXC(t, mgr, accounter, 100, vtok1)

	proxy := newFakeProxy()
	m := NewManager(mgr, accounter, proxy, 0)
	require.NoError(t, m.StartSync(vtok1))
	require.Equal(t, app.Running, running.State().State)

	// A second, unrelated EXC is scheduled this cycle; running is not
	// reconfigured and must keep its booking after the swap.
	vtok2 := accounter.GetView("scheduler-2")
	fresh, err := mgr.CreateEXC(101, 0, "y", "recipe.y", 2, false)
	require.NoError(t, err)
	require.NoError(t, mgr.Enable(fresh.UID))
	awm := app.NewAWM(1, "low", 10)
	leaf := accounter.Resolve("arch.tile0.cluster0.pe1")
	usages := res.UsageMap{"arch.tile0.cluster0.pe1": {Path: "arch.tile0.cluster0.pe1", Amount: 10, Binds: leaf}}
	require.NoError(t, fresh.SetNextSchedule(accounter, awm, usages, vtok2, app.Starting))

	require.NoError(t, m.StartSync(vtok2))

	assert.Equal(t, app.Running, fresh.State().State)
	assert.Equal(t, app.Running, running.State().State)
	assert.Equal(t, uint64(10), accounter.Used("arch.tile0.cluster0.pe0", res.SystemView))
	assert.Equal(t, uint64(10), accounter.Used("arch.tile0.cluster0.pe1", res.SystemView))
}

func TestStartSyncHandlesMixedOutcomes(t *testing.T) {
	mgr, accounter := setup(t)
	require.True(t, accounter.RegisterResource("arch.tile0.cluster0.pe1", "1", 100).Ok())
	vtok := accounter.GetView("scheduler")

	e1 := scheduleEXC(t, mgr, accounter, 100, vtok)
	e2, err := mgr.CreateEXC(101, 0, "y", "recipe.y", 2, false)
	require.NoError(t, err)
	require.NoError(t, mgr.Enable(e2.UID))
	awm2 := app.NewAWM(1, "low", 10)
	leaf2 := accounter.Resolve("arch.tile0.cluster0.pe1")
	usages2 := res.UsageMap{"arch.tile0.cluster0.pe1": {Path: "arch.tile0.cluster0.pe1", Amount: 10, Binds: leaf2}}
	require.NoError(t, e2.SetNextSchedule(accounter, awm2, usages2, vtok, app.Starting))

	proxy := newFakeProxy()
	proxy.failPhase = "dochange"
	proxy.failPID = 101
	m := NewManager(mgr, accounter, proxy, 0)
	require.NoError(t, m.StartSync(vtok))

	assert.Equal(t, app.Running, e1.State().State)
	assert.Equal(t, app.Disabled, e2.State().State)
}
