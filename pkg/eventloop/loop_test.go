package eventloop

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bbque/rtrm/pkg/app"
	"github.com/bbque/rtrm/pkg/appmgr"
	"github.com/bbque/rtrm/pkg/res"
	"github.com/bbque/rtrm/pkg/sched"
	"github.com/bbque/rtrm/pkg/schedpol"
)

type fakeLoader struct{ awms map[string][]*app.AWM }

func (f *fakeLoader) Load(name string) ([]*app.AWM, bool, error) {
	return f.awms[name], false, nil
}

func (f *fakeLoader) Constraints(name string) ([]app.ConstraintSpec, error) {
	return nil, nil
}

type countingPolicy struct{ calls int }

func (p *countingPolicy) Name() string { return "counting" }
func (p *countingPolicy) Schedule(sys *schedpol.System) (schedpol.Outcome, error) {
	p.calls++
	return schedpol.SchedNoWorkingMode, nil
}

func newTestLoop(t *testing.T) (*Loop, *appmgr.Manager, *countingPolicy) {
	t.Helper()
	accounter := res.NewAccounter(zerolog.Nop())
	require.True(t, accounter.RegisterResource("arch.tile0.cluster0.pe0", "1", 100).Ok())
	apps := appmgr.NewManager(accounter, &fakeLoader{awms: map[string][]*app.AWM{}}, app.DefaultLowestPriority)
	policy := &countingPolicy{}
	schedMgr := sched.NewManager(accounter, apps, policy, nil, time.Hour)
	return NewLoop(schedMgr, apps), apps, policy
}

func TestNotifyEventEXCStartRunsSchedulingCycle(t *testing.T) {
	loop, _, policy := newTestLoop(t)

	// One cycle per event: queued together, BBQ_EXIT would dispatch first
	// and EXC_START would never run.
	loop.NotifyEvent(EXCStart)
	assert.False(t, loop.controlCycle())
	assert.Equal(t, 1, policy.calls)

	loop.NotifyEvent(BBQExit)
	assert.True(t, loop.controlCycle(), "loop did not stop on BBQ_EXIT")
}

func TestBBQExitDestroysAllEXCs(t *testing.T) {
	loop, apps, _ := newTestLoop(t)
	e, err := apps.CreateEXC(100, 0, "x", "recipe.x", 2, false)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		loop.Run()
		close(done)
	}()

	loop.NotifyEvent(BBQExit)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("loop did not exit on BBQ_EXIT")
	}

	_, ok := apps.Lookup(e.UID)
	assert.False(t, ok)
}

func TestBBQAbortCallsExitFunc(t *testing.T) {
	loop, _, _ := newTestLoop(t)
	code := -1
	loop.exitFunc = func(c int) { code = c }

	done := make(chan struct{})
	go func() {
		loop.Run()
		close(done)
	}()

	loop.NotifyEvent(BBQAbort)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("loop did not exit on BBQ_ABORT")
	}
	assert.Equal(t, 1, code)
}

func TestEventsDispatchHighestPriorityFirst(t *testing.T) {
	// EXC_START (0) and BBQ_EXIT (2) queued together in the same cycle:
	// BBQ_EXIT must win since higher ids dispatch first, and the loop
	// returns before ever looking at EXC_START's bit again.
	loop, _, policy := newTestLoop(t)
	loop.mu.Lock()
	loop.pending[EXCStart] = true
	loop.pending[BBQExit] = true
	loop.mu.Unlock()

	stopped := loop.controlCycle()
	assert.True(t, stopped)
	assert.Equal(t, 0, policy.calls)
}
