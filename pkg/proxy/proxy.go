package proxy

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/bbque/rtrm/pkg/appmgr"
	"github.com/bbque/rtrm/pkg/log"
)

// pendingReply is how a dispatcher goroutine hands a reply frame back to
// whichever goroutine is blocked waiting on its token.
type pendingReply struct {
	header  Header
	payload []byte
}

// Proxy is the Application Proxy (§4.G): it owns every paired connection,
// dispatches inbound frames, and drives the outbound sync protocol.
type Proxy struct {
	apps       *appmgr.Manager
	logger     zerolog.Logger
	notifyExec func()

	connMu sync.RWMutex
	conns  map[int32]Transport

	tokenSeq uint32

	replyMu sync.Mutex
	replies map[uint32]chan pendingReply
}

// NewProxy constructs a Proxy. notifyStart, if non-nil, is called whenever
// an EXC-originated request may warrant a scheduling cycle (start and
// schedule requests) — in production this is wired to
// eventloop.Loop.NotifyEvent(eventloop.EXCStart).
func NewProxy(apps *appmgr.Manager, notifyStart func()) *Proxy {
	return &Proxy{
		apps:       apps,
		logger:     log.WithComponent("proxy"),
		notifyExec: notifyStart,
		conns:      make(map[int32]Transport),
		replies:    make(map[uint32]chan pendingReply),
	}
}

// Serve runs the dispatcher loop for one newly-connected transport until it
// errors out or is closed. It is expected to run on its own goroutine, one
// per accepted connection, and blocks until the connection ends.
func (p *Proxy) Serve(t Transport) {
	defer t.Close()

	var pid int32 = -1
	defer func() {
		if pid >= 0 {
			p.dropConnection(pid)
		}
	}()

	for {
		h, payload, err := t.ReadFrame()
		if err != nil {
			if pid >= 0 {
				p.logger.Info().Int32("pid", pid).Err(err).Msg("connection closed")
			}
			return
		}

		switch h.Type {
		case MsgAppPair:
			pid = h.AppPID
			p.connMu.Lock()
			p.conns[pid] = t
			p.connMu.Unlock()
			p.logger.Info().Int32("pid", pid).Msg("app paired")

		case MsgAppExit:
			p.handleAppExit(h)
			return

		case MsgBBQResp, MsgAppResp:
			// Replies are delivered inline on the dispatcher goroutine so
			// they can never queue up behind a request; requests fan out
			// onto their own goroutines instead. That ordering, not an
			// explicit priority queue, is what gives replies priority over
			// requests (§4.G).
			p.deliverReply(h, payload)

		default:
			go p.dispatchRequest(t, h, payload)
		}
	}
}

func (p *Proxy) dropConnection(pid int32) {
	p.connMu.Lock()
	delete(p.conns, pid)
	p.connMu.Unlock()
}

func (p *Proxy) handleAppExit(h Header) {
	p.logger.Info().Int32("pid", h.AppPID).Msg("app exit")
	for _, e := range p.apps.ByPID(h.AppPID) {
		if err := p.apps.DestroyEXC(e.UID); err != nil {
			p.logger.Error().Err(err).Str("exc", e.StrID()).Msg("destroying exc on app exit")
		}
	}
	p.dropConnection(h.AppPID)
}

func (p *Proxy) dispatchRequest(t Transport, h Header, payload []byte) {
	switch h.Type {
	case MsgRegisterEXC:
		p.handleRegisterEXC(t, h, payload)
	case MsgUnregisterEXC:
		p.handleUnregisterEXC(t, h)
	case MsgSetConstraint:
		p.handleSetConstraint(t, h, payload)
	case MsgClearConstraint:
		p.handleClearConstraint(t, h, payload)
	case MsgStartReq:
		p.handleStartReq(t, h)
	case MsgStopReq:
		p.handleStopReq(t, h)
	case MsgScheduleReq:
		p.handleScheduleReq(t, h)
	case MsgGGapNotice:
		p.logger.Debug().Int32("pid", h.AppPID).Uint8("exc", h.ExcID).Msg("ggap notice")
	default:
		p.logger.Warn().Str("type", h.Type.String()).Msg("unexpected inbound message")
	}
}

// allocToken reserves a transaction token and a reply channel for it.
func (p *Proxy) allocToken() (uint32, chan pendingReply) {
	token := atomic.AddUint32(&p.tokenSeq, 1)
	ch := make(chan pendingReply, 1)
	p.replyMu.Lock()
	p.replies[token] = ch
	p.replyMu.Unlock()
	return token, ch
}

func (p *Proxy) releaseToken(token uint32) {
	p.replyMu.Lock()
	delete(p.replies, token)
	p.replyMu.Unlock()
}

func (p *Proxy) deliverReply(h Header, payload []byte) {
	p.replyMu.Lock()
	ch, ok := p.replies[h.Token]
	p.replyMu.Unlock()
	if !ok {
		p.logger.Warn().Uint32("token", h.Token).Msg("reply with no pending request")
		return
	}
	select {
	case ch <- pendingReply{header: h, payload: payload}:
	default:
	}
}

func (p *Proxy) transportFor(pid int32) (Transport, error) {
	p.connMu.RLock()
	t, ok := p.conns[pid]
	p.connMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("proxy: no connection for pid %d", pid)
	}
	return t, nil
}
