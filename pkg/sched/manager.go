package sched

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/bbque/rtrm/pkg/appmgr"
	"github.com/bbque/rtrm/pkg/log"
	"github.com/bbque/rtrm/pkg/metrics"
	"github.com/bbque/rtrm/pkg/res"
	"github.com/bbque/rtrm/pkg/schedpol"
)

// DefaultPeriod is the scheduling cycle period used when none is configured.
const DefaultPeriod = 2 * time.Second

// Handoff is implemented by the synchronization manager: once a scheduling
// cycle produces a new schedule (SchedDone), the scheduler manager hands the
// view it booked into off to Handoff rather than ever applying a schedule
// itself.
type Handoff interface {
	StartSync(view res.ViewToken) error
}

// Manager runs scheduling cycles on a timer or on demand, delegating the
// actual decision to a schedpol.Policy and the resulting view to a Handoff.
type Manager struct {
	accounter *res.Accounter
	apps      *appmgr.Manager
	policy    schedpol.Policy
	handoff   Handoff
	period    time.Duration
	logger    zerolog.Logger

	mu             sync.Mutex
	cycleSeq       uint64
	lastCycleStart time.Time
	stopCh         chan struct{}
}

// NewManager constructs a scheduler manager. handoff may be nil, in which
// case a successful cycle's view is simply released (useful for dry-run
// policy testing without a synchronization manager wired up).
func NewManager(accounter *res.Accounter, apps *appmgr.Manager, policy schedpol.Policy, handoff Handoff, period time.Duration) *Manager {
	if period <= 0 {
		period = DefaultPeriod
	}
	return &Manager{
		accounter: accounter,
		apps:      apps,
		policy:    policy,
		handoff:   handoff,
		period:    period,
		logger:    log.WithComponent("sched"),
		stopCh:    make(chan struct{}),
	}
}

// Start begins the periodic scheduling loop.
func (m *Manager) Start() {
	go m.run()
}

// Stop terminates the periodic loop. RunCycle may still be called directly
// afterwards (e.g. from the event loop reacting to EXC_START).
func (m *Manager) Stop() {
	close(m.stopCh)
}

func (m *Manager) run() {
	ticker := time.NewTicker(m.period)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := m.RunCycle(); err != nil {
				m.logger.Error().Err(err).Msg("scheduling cycle failed")
			}
		case <-m.stopCh:
			return
		}
	}
}

// RunCycle executes exactly one scheduling cycle: it opens a fresh view,
// asks the policy to schedule into it, records the outcome, and either
// hands the view off for synchronization or releases it.
func (m *Manager) RunCycle() (schedpol.Outcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	if !m.lastCycleStart.IsZero() {
		metrics.SchedInterCyclePeriod.Observe(now.Sub(m.lastCycleStart).Seconds())
	}
	m.lastCycleStart = now

	timer := metrics.NewTimer()
	metrics.SchedCyclesTotal.Inc()

	m.cycleSeq++
	view := m.accounter.GetView(fmt.Sprintf("sched-%d", m.cycleSeq))

	sys := &schedpol.System{Accounter: m.accounter, Apps: m.apps, View: view}
	outcome, err := m.policy.Schedule(sys)
	timer.ObserveDuration(metrics.SchedCycleDuration)

	if err != nil {
		metrics.SchedOutcomesTotal.WithLabelValues("error").Inc()
		m.accounter.PutView(view)
		return outcome, fmt.Errorf("sched: policy %q: %w", m.policy.Name(), err)
	}

	metrics.SchedOutcomesTotal.WithLabelValues(outcome.String()).Inc()

	if outcome != schedpol.SchedDone {
		m.accounter.PutView(view)
		return outcome, nil
	}

	if m.handoff == nil {
		m.accounter.PutView(view)
		return outcome, nil
	}

	if err := m.handoff.StartSync(view); err != nil {
		m.accounter.PutView(view)
		return outcome, fmt.Errorf("sched: starting synchronization: %w", err)
	}
	return outcome, nil
}

