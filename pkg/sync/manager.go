package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/bbque/rtrm/pkg/app"
	"github.com/bbque/rtrm/pkg/appmgr"
	"github.com/bbque/rtrm/pkg/log"
	"github.com/bbque/rtrm/pkg/metrics"
	"github.com/bbque/rtrm/pkg/res"
	"github.com/bbque/rtrm/pkg/uid"
)

// DefaultPhaseTimeout bounds how long the manager waits for a single EXC to
// answer a single phase before giving up on it.
const DefaultPhaseTimeout = 500 * time.Millisecond

// ExecutorProxy is the per-EXC RPC surface the synchronization manager
// drives through all four phases. The application proxy implements it;
// this package only depends on the interface.
type ExecutorProxy interface {
	PreChange(ctx context.Context, e *app.EXC) error
	SyncChange(ctx context.Context, e *app.EXC) error
	DoChange(ctx context.Context, e *app.EXC) error
	PostChange(ctx context.Context, e *app.EXC) error
}

// Manager runs synchronization sessions. It implements sched.Handoff.
type Manager struct {
	apps      *appmgr.Manager
	accounter *res.Accounter
	proxy     ExecutorProxy
	timeout   time.Duration
	logger    zerolog.Logger
}

// NewManager constructs a synchronization manager. If timeout is <= 0,
// DefaultPhaseTimeout is used.
func NewManager(apps *appmgr.Manager, accounter *res.Accounter, proxy ExecutorProxy, timeout time.Duration) *Manager {
	if timeout <= 0 {
		timeout = DefaultPhaseTimeout
	}
	return &Manager{
		apps:      apps,
		accounter: accounter,
		proxy:     proxy,
		timeout:   timeout,
		logger:    log.WithComponent("sync"),
	}
}

// StartSync runs one full synchronization session over every EXC a
// scheduling cycle left with a pending next schedule. It first pre-books
// view with the current holdings of every RUNNING EXC that is not being
// reconfigured this cycle — they must keep owning their resources across
// the swap (§4.E) — then drives the four-phase protocol against the
// pending EXCs, and on success commits the whole batch atomically by
// promoting view to be the system view via SetView, the accounter's sole
// commit point.
func (m *Manager) StartSync(view res.ViewToken) error {
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.SyncPhaseDuration, "session")

	pending := m.pendingEXCs()
	if len(pending) == 0 {
		m.accounter.PutView(view)
		metrics.SyncSessionsTotal.WithLabelValues("empty").Inc()
		return nil
	}

	pendingSet := make(map[uid.UID]bool, len(pending))
	for _, e := range pending {
		pendingSet[e.UID] = true
	}

	for _, e := range m.apps.InState(app.Running) {
		if pendingSet[e.UID] {
			continue
		}
		cur := e.State()
		if len(cur.Usages) == 0 {
			continue
		}
		if code := m.accounter.SyncBookResources(e.UID, cur.Usages, res.SystemView, view); !code.Ok() {
			m.logger.Error().Str("exc", e.StrID()).Str("result", code.String()).Msg("pre-booking running exc into sync view failed, aborting sync")
			m.accounter.PutView(view)
			metrics.SyncSessionsTotal.WithLabelValues("aborted").Inc()
			return fmt.Errorf("sync: pre-booking %s into sync view: %s", e.StrID(), code)
		}
	}

	for _, e := range pending {
		if err := m.apps.BeginSync(e.UID); err != nil {
			m.logger.Warn().Str("exc", e.StrID()).Err(err).Msg("could not begin sync")
			m.accounter.ReleaseResources(e.UID, view)
		}
	}

	inSync := m.apps.InState(app.Sync)
	inSync = m.runPhase("prechange", view, inSync, m.proxy.PreChange)
	inSync = m.runPhase("syncchange", view, inSync, m.proxy.SyncChange)
	inSync = m.runPhase("dochange", view, inSync, m.proxy.DoChange)
	inSync = m.runPhase("postchange", view, inSync, m.proxy.PostChange)

	if _, code := m.accounter.SetView(view); !code.Ok() {
		m.logger.Error().Str("result", code.String()).Msg("view promotion failed, aborting sync")
		metrics.SyncSessionsTotal.WithLabelValues("aborted").Inc()
		return fmt.Errorf("sync: promoting view: %s", code)
	}

	committed := 0
	for _, e := range inSync {
		if err := m.apps.SyncCommit(e.UID); err != nil {
			m.logger.Error().Str("exc", e.StrID()).Err(err).Msg("sync commit failed")
			continue
		}
		committed++
	}

	if committed == len(pending) {
		metrics.SyncSessionsTotal.WithLabelValues("committed").Inc()
	} else {
		metrics.SyncSessionsTotal.WithLabelValues("partial").Inc()
	}
	return nil
}

// pendingEXCs returns every READY or RUNNING EXC with a tentative next
// schedule installed by the last scheduling cycle.
func (m *Manager) pendingEXCs() []*app.EXC {
	var out []*app.EXC
	for _, e := range m.apps.InState(app.Ready) {
		if e.NextState().State == app.Sync {
			out = append(out, e)
		}
	}
	for _, e := range m.apps.InState(app.Running) {
		if e.NextState().State == app.Sync {
			out = append(out, e)
		}
	}
	return out
}

// runPhase invokes fn for every EXC in in, with a fresh per-EXC timeout
// context. An EXC that errors or times out has its tentative booking
// released from the still-unpromoted sync view, is disabled immediately,
// and is dropped from the returned slice; everyone else proceeds to the
// next phase.
func (m *Manager) runPhase(name string, view res.ViewToken, in []*app.EXC, fn func(ctx context.Context, e *app.EXC) error) []*app.EXC {
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.SyncPhaseDuration, name)

	var ok []*app.EXC
	for _, e := range in {
		ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
		err := fn(ctx, e)
		cancel()
		if err != nil {
			metrics.SyncEXCTimeoutsTotal.Inc()
			m.logger.Warn().Str("exc", e.StrID()).Str("phase", name).Err(err).Msg("sync phase failed, disabling exc")
			m.accounter.ReleaseResources(e.UID, view)
			_ = m.apps.Disable(e.UID)
			continue
		}
		ok = append(ok, e)
	}
	return ok
}
