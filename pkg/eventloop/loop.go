package eventloop

import (
	"os"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/bbque/rtrm/pkg/appmgr"
	"github.com/bbque/rtrm/pkg/log"
	"github.com/bbque/rtrm/pkg/sched"
)

// Event is a control-loop event id. Higher ids are dispatched first within
// a single control cycle.
type Event uint8

const (
	EXCStart Event = iota
	EXCStop
	BBQExit
	BBQAbort

	eventCount
)

func (e Event) String() string {
	switch e {
	case EXCStart:
		return "EXC_START"
	case EXCStop:
		return "EXC_STOP"
	case BBQExit:
		return "BBQ_EXIT"
	case BBQAbort:
		return "BBQ_ABORT"
	default:
		return "UNKNOWN"
	}
}

// Loop is the daemon's single control loop.
type Loop struct {
	scheduler *sched.Manager
	apps      *appmgr.Manager
	logger    zerolog.Logger
	exitFunc  func(code int)

	mu      sync.Mutex
	cond    *sync.Cond
	pending [eventCount]bool
}

// NewLoop constructs a control loop bound to scheduler (driven on
// EXC_START) and apps (torn down on BBQ_EXIT).
func NewLoop(scheduler *sched.Manager, apps *appmgr.Manager) *Loop {
	l := &Loop{
		scheduler: scheduler,
		apps:      apps,
		logger:    log.WithComponent("eventloop"),
		exitFunc:  os.Exit,
	}
	l.cond = sync.NewCond(&l.mu)
	return l
}

// NotifyEvent sets evt's bit and wakes the loop if it is waiting.
func (l *Loop) NotifyEvent(evt Event) {
	if evt >= eventCount {
		l.logger.Error().Uint8("event", uint8(evt)).Msg("ignoring out-of-range event")
		return
	}
	id := uuid.NewString()
	l.mu.Lock()
	l.pending[evt] = true
	l.mu.Unlock()
	l.logger.Debug().Str("event", evt.String()).Str("event_id", id).Msg("event queued")
	l.cond.Signal()
}

// Run blocks the calling goroutine, dispatching control cycles until a
// BBQ_EXIT or BBQ_ABORT event is handled.
func (l *Loop) Run() {
	for {
		if l.controlCycle() {
			return
		}
	}
}

// controlCycle waits for at least one pending event, then dispatches every
// event currently pending from the highest id down to the lowest. It
// returns true once the loop should stop.
func (l *Loop) controlCycle() bool {
	l.mu.Lock()
	for !l.anyPendingLocked() {
		l.cond.Wait()
	}
	snapshot := l.pending
	l.pending = [eventCount]bool{}
	l.mu.Unlock()

	for i := int(eventCount) - 1; i >= 0; i-- {
		evt := Event(i)
		if !snapshot[i] {
			continue
		}
		l.logger.Debug().Str("event", evt.String()).Msg("dispatching event")

		switch evt {
		case EXCStart:
			l.handleEXCStart()
		case EXCStop:
			// No standalone handler: an EXC stop is driven through
			// appmgr.Disable/DestroyEXC by whoever observed it (the
			// application proxy on a disconnect, the CLI on a user
			// request); the event exists for status-report logging.
		case BBQExit:
			l.handleBBQExit()
			return true
		case BBQAbort:
			l.logger.Error().Msg("abortive quit")
			l.exitFunc(1)
			return true
		}
	}
	return false
}

func (l *Loop) anyPendingLocked() bool {
	for _, p := range l.pending {
		if p {
			return true
		}
	}
	return false
}

func (l *Loop) handleEXCStart() {
	outcome, err := l.scheduler.RunCycle()
	if err != nil {
		l.logger.Error().Err(err).Msg("scheduling cycle failed")
		return
	}
	l.logger.Debug().Str("outcome", outcome.String()).Msg("scheduling cycle done")
}

func (l *Loop) handleBBQExit() {
	l.logger.Info().Msg("terminating")
	for _, e := range l.apps.All() {
		if err := l.apps.DestroyEXC(e.UID); err != nil {
			l.logger.Error().Str("exc", e.StrID()).Err(err).Msg("failed to destroy exc on exit")
		}
	}
}
