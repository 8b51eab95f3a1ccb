package appmgr

import (
	"fmt"
	"testing"

	"github.com/bbque/rtrm/pkg/app"
	"github.com/bbque/rtrm/pkg/res"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLoader struct {
	awms        map[string][]*app.AWM
	weak        map[string]bool
	err         map[string]error
	constraints map[string][]app.ConstraintSpec
}

func newFakeLoader() *fakeLoader {
	return &fakeLoader{
		awms:        make(map[string][]*app.AWM),
		weak:        make(map[string]bool),
		err:         make(map[string]error),
		constraints: make(map[string][]app.ConstraintSpec),
	}
}

func (f *fakeLoader) Load(name string) ([]*app.AWM, bool, error) {
	if err, ok := f.err[name]; ok {
		return nil, false, err
	}
	return f.awms[name], f.weak[name], nil
}

func (f *fakeLoader) Constraints(name string) ([]app.ConstraintSpec, error) {
	return f.constraints[name], nil
}

func newTestManager(t *testing.T) (*Manager, *res.Accounter, *fakeLoader) {
	t.Helper()
	accounter := res.NewAccounter(zerolog.Nop())
	require.True(t, accounter.RegisterResource("arch.tile0.cluster0.pe0", "1", 100).Ok())
	loader := newFakeLoader()
	loader.awms["recipe.bodytrack"] = []*app.AWM{app.NewAWM(1, "low", 1)}
	return NewManager(accounter, loader, app.DefaultLowestPriority), accounter, loader
}

func TestCreateEXCRegistersInDisabledState(t *testing.T) {
	m, _, _ := newTestManager(t)
	e, err := m.CreateEXC(100, 0, "bodytrack", "recipe.bodytrack", 2, false)
	require.NoError(t, err)
	assert.Equal(t, app.Disabled, e.State().State)

	found, ok := m.Lookup(e.UID)
	assert.True(t, ok)
	assert.Same(t, e, found)

	inDisabled := m.InState(app.Disabled)
	require.Len(t, inDisabled, 1)
	assert.Equal(t, e.UID, inDisabled[0].UID)
}

func TestCreateEXCRejectsWeakLoadWhenNotRequested(t *testing.T) {
	m, _, loader := newTestManager(t)
	loader.weak["recipe.bodytrack"] = true

	_, err := m.CreateEXC(100, 0, "bodytrack", "recipe.bodytrack", 2, false)
	assert.Error(t, err)
}

func TestCreateEXCAdmitsWeakLoadWhenRequested(t *testing.T) {
	m, _, loader := newTestManager(t)
	loader.weak["recipe.bodytrack"] = true

	e, err := m.CreateEXC(100, 0, "bodytrack", "recipe.bodytrack", 2, true)
	require.NoError(t, err)
	assert.NotNil(t, e)
}

func TestCreateEXCPropagatesLoaderError(t *testing.T) {
	m, _, loader := newTestManager(t)
	loader.err["recipe.missing"] = fmt.Errorf("no such recipe")

	_, err := m.CreateEXC(100, 0, "x", "recipe.missing", 2, false)
	assert.Error(t, err)
}

func TestCreateEXCAppliesStaticConstraintsFromRecipe(t *testing.T) {
	m, _, loader := newTestManager(t)
	cheap := app.NewAWM(1, "cheap", 10)
	cheap.Usages["arch.tile0.cluster0.pe0"] = app.TemplateUsage{Path: "arch.tile0.cluster0.pe0", Amount: 10}
	pricey := app.NewAWM(2, "pricey", 20)
	pricey.Usages["arch.tile0.cluster0.pe0"] = app.TemplateUsage{Path: "arch.tile0.cluster0.pe0", Amount: 90}
	loader.awms["recipe.bound"] = []*app.AWM{cheap, pricey}
	loader.constraints["recipe.bound"] = []app.ConstraintSpec{
		{Path: "arch.tile0.cluster0.pe0", Bound: app.UpperBound, Value: 50},
	}

	e, err := m.CreateEXC(100, 0, "bodytrack", "recipe.bound", 2, false)
	require.NoError(t, err)

	enabled := e.EnabledAWMs()
	require.Len(t, enabled, 1)
	assert.Equal(t, "cheap", enabled[0].Name)
}

func TestEnableMovesDisabledToReady(t *testing.T) {
	m, _, _ := newTestManager(t)
	e, err := m.CreateEXC(100, 0, "bodytrack", "recipe.bodytrack", 2, false)
	require.NoError(t, err)

	require.NoError(t, m.Enable(e.UID))
	assert.Equal(t, app.Ready, e.State().State)
	assert.Empty(t, m.InState(app.Disabled))
	assert.Len(t, m.InState(app.Ready), 1)
}

func TestEnableRejectsNonDisabledEXC(t *testing.T) {
	m, _, _ := newTestManager(t)
	e, err := m.CreateEXC(100, 0, "bodytrack", "recipe.bodytrack", 2, false)
	require.NoError(t, err)
	require.NoError(t, m.Enable(e.UID))

	assert.Error(t, m.Enable(e.UID))
}

func TestDisableReleasesResourcesAndReturnsToDisabled(t *testing.T) {
	m, accounter, _ := newTestManager(t)
	e, err := m.CreateEXC(100, 0, "bodytrack", "recipe.bodytrack", 2, false)
	require.NoError(t, err)
	require.NoError(t, m.Enable(e.UID))

	leaf := accounter.Resolve("arch.tile0.cluster0.pe0")
	usages := res.UsageMap{
		"arch.tile0.cluster0.pe0": {Path: "arch.tile0.cluster0.pe0", Amount: 30, Binds: leaf},
	}
	require.True(t, accounter.BookResources(e.UID, usages, res.SystemView, true).Ok())

	require.NoError(t, m.Disable(e.UID))
	assert.Equal(t, app.Disabled, e.State().State)
	assert.Equal(t, uint64(0), accounter.Used("arch.tile0.cluster0.pe0", res.SystemView))
}

func TestDestroyEXCRemovesFromAllIndices(t *testing.T) {
	m, _, _ := newTestManager(t)
	e, err := m.CreateEXC(100, 0, "bodytrack", "recipe.bodytrack", 2, false)
	require.NoError(t, err)

	require.NoError(t, m.DestroyEXC(e.UID))

	_, ok := m.Lookup(e.UID)
	assert.False(t, ok)
	assert.Empty(t, m.ByPID(100))
	assert.Empty(t, m.InState(app.Finished)) // finished EXCs are removed, not archived
}

func TestSyncRequestValidatesStateAndSubState(t *testing.T) {
	m, accounter, _ := newTestManager(t)
	e, err := m.CreateEXC(100, 0, "bodytrack", "recipe.bodytrack", 2, false)
	require.NoError(t, err)
	require.NoError(t, m.Enable(e.UID))

	// Not yet in SYNC.
	assert.Error(t, m.SyncRequest(e.UID, app.Starting))

	awm := app.NewAWM(1, "low", 1)
	leaf := accounter.Resolve("arch.tile0.cluster0.pe0")
	usages := res.UsageMap{"arch.tile0.cluster0.pe0": {Path: "arch.tile0.cluster0.pe0", Amount: 10, Binds: leaf}}
	vtok := accounter.GetView("scheduler")
	require.NoError(t, e.SetNextSchedule(accounter, awm, usages, vtok, app.Starting))

	m.transition(e, app.Schedule{State: app.Sync, SyncState: app.Starting, AWM: awm})
	assert.NoError(t, m.SyncRequest(e.UID, app.Reconf))
	assert.Equal(t, app.Reconf, e.State().SyncState)

	assert.Error(t, m.SyncRequest(e.UID, app.SyncState(99)))
}

func TestSyncCommitMovesToRunning(t *testing.T) {
	m, _, _ := newTestManager(t)
	e, err := m.CreateEXC(100, 0, "bodytrack", "recipe.bodytrack", 2, false)
	require.NoError(t, err)
	require.NoError(t, m.Enable(e.UID))

	awm := app.NewAWM(1, "low", 1)
	m.transition(e, app.Schedule{State: app.Sync, SyncState: app.Reconf, AWM: awm})

	require.NoError(t, m.SyncCommit(e.UID))
	assert.Equal(t, app.Running, e.State().State)
}

func TestBeginSyncClassifiesStartingForFirstSchedule(t *testing.T) {
	m, accounter, _ := newTestManager(t)
	e, err := m.CreateEXC(100, 0, "bodytrack", "recipe.bodytrack", 2, false)
	require.NoError(t, err)
	require.NoError(t, m.Enable(e.UID))

	awm := app.NewAWM(1, "low", 1)
	leaf := accounter.Resolve("arch.tile0.cluster0.pe0")
	usages := res.UsageMap{"arch.tile0.cluster0.pe0": {Path: "arch.tile0.cluster0.pe0", Amount: 10, Binds: leaf}}
	vtok := accounter.GetView("scheduler")
	require.NoError(t, e.SetNextSchedule(accounter, awm, usages, vtok, app.Starting))

	require.NoError(t, m.BeginSync(e.UID))
	assert.Equal(t, app.Sync, e.State().State)
	assert.Equal(t, app.Starting, e.State().SyncState)
}

func TestBeginSyncClassifiesReconfForRunningEXC(t *testing.T) {
	m, accounter, _ := newTestManager(t)
	e, err := m.CreateEXC(100, 0, "bodytrack", "recipe.bodytrack", 2, false)
	require.NoError(t, err)
	require.NoError(t, m.Enable(e.UID))

	first := app.NewAWM(1, "low", 1)
	m.transition(e, app.Schedule{State: app.Running, AWM: first})

	second := app.NewAWM(2, "high", 2)
	leaf := accounter.Resolve("arch.tile0.cluster0.pe0")
	usages := res.UsageMap{"arch.tile0.cluster0.pe0": {Path: "arch.tile0.cluster0.pe0", Amount: 10, Binds: leaf}}
	vtok := accounter.GetView("scheduler")
	require.NoError(t, e.SetNextSchedule(accounter, second, usages, vtok, app.Starting))

	require.NoError(t, m.BeginSync(e.UID))
	assert.Equal(t, app.Reconf, e.State().SyncState)
}

func TestBeginSyncRejectsEXCWithoutPendingSchedule(t *testing.T) {
	m, _, _ := newTestManager(t)
	e, err := m.CreateEXC(100, 0, "bodytrack", "recipe.bodytrack", 2, false)
	require.NoError(t, err)
	require.NoError(t, m.Enable(e.UID))

	assert.Error(t, m.BeginSync(e.UID))
}

func TestSyncCommitFromBlockedDisablesInstead(t *testing.T) {
	m, _, _ := newTestManager(t)
	e, err := m.CreateEXC(100, 0, "bodytrack", "recipe.bodytrack", 2, false)
	require.NoError(t, err)
	require.NoError(t, m.Enable(e.UID))

	m.transition(e, app.Schedule{State: app.Sync, SyncState: app.Blocked})

	require.NoError(t, m.SyncCommit(e.UID))
	assert.Equal(t, app.Disabled, e.State().State)
}
