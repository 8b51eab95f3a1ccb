package proxy

import "github.com/bbque/rtrm/pkg/uid"

func (p *Proxy) reply(t Transport, req Header, respType MessageType, payload []byte) {
	resp := Header{Token: req.Token, Type: respType, AppPID: req.AppPID, ExcID: req.ExcID}
	if err := t.WriteFrame(resp, payload); err != nil {
		p.logger.Error().Err(err).Str("type", resp.Type.String()).Msg("writing response")
	}
}

func (p *Proxy) handleRegisterEXC(t Transport, h Header, payload []byte) {
	priority, weakLoad, recipe, name, err := decodeRegisterEXC(payload)
	if err != nil {
		p.logger.Warn().Err(err).Msg("register_exc")
		p.reply(t, h, MsgBBQResp, respPayload(RTLIBEXCError))
		return
	}

	_, err = p.apps.CreateEXC(h.AppPID, h.ExcID, name, recipe, priority, weakLoad)
	if err != nil {
		p.logger.Warn().Err(err).Int32("pid", h.AppPID).Uint8("exc", h.ExcID).Msg("register_exc rejected")
		p.reply(t, h, MsgBBQResp, respPayload(RTLIBEXCError))
		return
	}
	p.reply(t, h, MsgBBQResp, respPayload(RTLIBOK))
}

func (p *Proxy) handleUnregisterEXC(t Transport, h Header) {
	u := uid.Pack(h.AppPID, h.ExcID)
	if err := p.apps.DestroyEXC(u); err != nil {
		p.logger.Warn().Err(err).Msg("unregister_exc")
		p.reply(t, h, MsgBBQResp, respPayload(RTLIBEXCError))
		return
	}
	p.reply(t, h, MsgBBQResp, respPayload(RTLIBOK))
}

func (p *Proxy) lookupEXC(h Header) (u uid.UID, ok bool) {
	u = uid.Pack(h.AppPID, h.ExcID)
	_, ok = p.apps.Lookup(u)
	return u, ok
}

func (p *Proxy) handleSetConstraint(t Transport, h Header, payload []byte) {
	bound, path, value, err := decodeSetConstraint(payload)
	if err != nil {
		p.logger.Warn().Err(err).Msg("set_constraint")
		p.reply(t, h, MsgBBQResp, respPayload(RTLIBEXCError))
		return
	}
	e, ok := p.apps.Lookup(uid.Pack(h.AppPID, h.ExcID))
	if !ok {
		p.reply(t, h, MsgBBQResp, respPayload(RTLIBEXCError))
		return
	}
	e.SetConstraint(path, bound, value)
	p.reply(t, h, MsgBBQResp, respPayload(RTLIBOK))
}

func (p *Proxy) handleClearConstraint(t Transport, h Header, payload []byte) {
	bound, path, err := decodeClearConstraint(payload)
	if err != nil {
		p.logger.Warn().Err(err).Msg("clear_constraint")
		p.reply(t, h, MsgBBQResp, respPayload(RTLIBEXCError))
		return
	}
	e, ok := p.apps.Lookup(uid.Pack(h.AppPID, h.ExcID))
	if !ok {
		p.reply(t, h, MsgBBQResp, respPayload(RTLIBEXCError))
		return
	}
	e.RemoveConstraint(path, bound)
	p.reply(t, h, MsgBBQResp, respPayload(RTLIBOK))
}

func (p *Proxy) handleStartReq(t Transport, h Header) {
	u, ok := p.lookupEXC(h)
	if !ok {
		p.reply(t, h, MsgBBQResp, respPayload(RTLIBEXCError))
		return
	}
	if err := p.apps.Enable(u); err != nil {
		p.logger.Warn().Err(err).Msg("start_req")
		p.reply(t, h, MsgBBQResp, respPayload(RTLIBEXCError))
		return
	}
	p.reply(t, h, MsgBBQResp, respPayload(RTLIBOK))
	p.notifyScheduling()
}

func (p *Proxy) handleStopReq(t Transport, h Header) {
	u, ok := p.lookupEXC(h)
	if !ok {
		p.reply(t, h, MsgBBQResp, respPayload(RTLIBEXCError))
		return
	}
	if err := p.apps.Disable(u); err != nil {
		p.logger.Warn().Err(err).Msg("stop_req")
		p.reply(t, h, MsgBBQResp, respPayload(RTLIBEXCError))
		return
	}
	p.reply(t, h, MsgBBQResp, respPayload(RTLIBOK))
}

func (p *Proxy) handleScheduleReq(t Transport, h Header) {
	if _, ok := p.lookupEXC(h); !ok {
		p.reply(t, h, MsgBBQResp, respPayload(RTLIBEXCError))
		return
	}
	p.reply(t, h, MsgBBQResp, respPayload(RTLIBOK))
	p.notifyScheduling()
}

func (p *Proxy) notifyScheduling() {
	if p.notifyExec != nil {
		p.notifyExec()
	}
}
