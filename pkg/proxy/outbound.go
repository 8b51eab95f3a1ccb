package proxy

import (
	"context"
	"fmt"

	"github.com/bbque/rtrm/pkg/app"
)

// PreChange sends the EXC its PRE_CHANGE notice and blocks for the reply, or
// until ctx is done. The reported sync latency is logged but otherwise
// advisory — the phase timeout (owned by the caller's ctx) is what decides
// whether the EXC keeps up.
func (p *Proxy) PreChange(ctx context.Context, e *app.EXC) error {
	payload, err := p.roundTrip(ctx, e, MsgPreChange, nil)
	if err != nil {
		return err
	}
	code, latencyMs, err := decodePreChangeResp(payload)
	if err != nil {
		return err
	}
	if code != RTLIBOK {
		return fmt.Errorf("proxy: %s rejected prechange: %s", e.StrID(), code)
	}
	p.logger.Debug().Str("exc", e.StrID()).Uint32("sync_latency_ms", latencyMs).Msg("prechange ack")
	return nil
}

// SyncChange asks the EXC to reach a safe synchronization point and waits
// for its acknowledgement; the message carries no payload.
func (p *Proxy) SyncChange(ctx context.Context, e *app.EXC) error {
	return p.roundTripOK(ctx, e, MsgSyncChange)
}

// DoChange is fire-and-forget: the reference protocol treats it as one-way
// (the EXC is free to start running under the new allocation without
// acknowledging), so this never blocks on a reply.
func (p *Proxy) DoChange(ctx context.Context, e *app.EXC) error {
	t, err := p.transportFor(e.PID)
	if err != nil {
		return err
	}
	h := Header{Type: MsgDoChange, AppPID: e.PID, ExcID: e.ExcID}
	return t.WriteFrame(h, nil)
}

// PostChange confirms the reconfiguration completed and waits for the EXC's
// acknowledgement before the synchronization manager commits the schedule.
func (p *Proxy) PostChange(ctx context.Context, e *app.EXC) error {
	return p.roundTripOK(ctx, e, MsgPostChange)
}

func (p *Proxy) roundTripOK(ctx context.Context, e *app.EXC, msgType MessageType) error {
	payload, err := p.roundTrip(ctx, e, msgType, nil)
	if err != nil {
		return err
	}
	code, err := decodeRespPayload(payload)
	if err != nil {
		return err
	}
	if code != RTLIBOK {
		return fmt.Errorf("proxy: %s rejected %s: %s", e.StrID(), msgType, code)
	}
	return nil
}

func (p *Proxy) roundTrip(ctx context.Context, e *app.EXC, msgType MessageType, payload []byte) ([]byte, error) {
	t, err := p.transportFor(e.PID)
	if err != nil {
		return nil, err
	}

	token, ch := p.allocToken()
	defer p.releaseToken(token)

	h := Header{Token: token, Type: msgType, AppPID: e.PID, ExcID: e.ExcID}
	if err := t.WriteFrame(h, payload); err != nil {
		return nil, fmt.Errorf("proxy: writing %s to %s: %w", msgType, e.StrID(), err)
	}

	select {
	case reply := <-ch:
		return reply.payload, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("proxy: %s timed out waiting for %s reply: %w", e.StrID(), msgType, ctx.Err())
	}
}
