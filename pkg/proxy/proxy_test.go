package proxy

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bbque/rtrm/pkg/app"
	"github.com/bbque/rtrm/pkg/appmgr"
	"github.com/bbque/rtrm/pkg/res"
)

type fakeLoader struct{ awms []*app.AWM }

func (f *fakeLoader) Load(name string) ([]*app.AWM, bool, error) {
	return f.awms, false, nil
}

func (f *fakeLoader) Constraints(name string) ([]app.ConstraintSpec, error) {
	return nil, nil
}

func newTestProxy(t *testing.T) (*Proxy, *appmgr.Manager, int) {
	t.Helper()
	accounter := res.NewAccounter(zerolog.Nop())
	require.True(t, accounter.RegisterResource("arch.tile0.cluster0.pe0", "1", 100).Ok())
	awm := &app.AWM{ID: 0, Value: 10, Usages: app.UsageTemplate{
		"arch.tile0.cluster0.pe": {Path: "arch.tile0.cluster0.pe", Amount: 10},
	}}
	apps := appmgr.NewManager(accounter, &fakeLoader{awms: []*app.AWM{awm}}, app.DefaultLowestPriority)
	notifyCalls := 0
	p := NewProxy(apps, func() { notifyCalls++ })
	return p, apps, notifyCalls
}

// clientConn wraps one half of a net.Pipe as the "EXC side" in tests, with
// helpers for the handful of frames the test suite needs to send/receive.
type clientConn struct {
	t Transport
}

func newClientConn(conn net.Conn) *clientConn {
	return &clientConn{t: NewStreamTransport(conn)}
}

func (c *clientConn) send(h Header, payload []byte) error {
	return c.t.WriteFrame(h, payload)
}

func (c *clientConn) recv() (Header, []byte, error) {
	return c.t.ReadFrame()
}

func TestPairThenRegisterEXCRoundTrip(t *testing.T) {
	p, apps, _ := newTestProxy(t)
	server, client := net.Pipe()
	defer client.Close()

	go p.Serve(NewStreamTransport(server))
	c := newClientConn(client)

	require.NoError(t, c.send(Header{Type: MsgAppPair, AppPID: 42}, nil))

	payload := EncodeRegisterEXC(2, false, "recipe.x", "task")
	require.NoError(t, c.send(Header{Token: 1, Type: MsgRegisterEXC, AppPID: 42, ExcID: 0}, payload))

	h, resp, err := c.recv()
	require.NoError(t, err)
	assert.Equal(t, MsgBBQResp, h.Type)
	code, err := decodeRespPayload(resp)
	require.NoError(t, err)
	assert.Equal(t, RTLIBOK, code)

	require.Len(t, apps.ByPID(42), 1)
}

func TestAppExitReclaimsEXCs(t *testing.T) {
	p, apps, _ := newTestProxy(t)
	_, err := apps.CreateEXC(7, 0, "x", "recipe.x", 2, false)
	require.NoError(t, err)

	server, client := net.Pipe()
	done := make(chan struct{})
	go func() {
		p.Serve(NewStreamTransport(server))
		close(done)
	}()
	c := newClientConn(client)

	require.NoError(t, c.send(Header{Type: MsgAppPair, AppPID: 7}, nil))
	require.NoError(t, c.send(Header{Type: MsgAppExit, AppPID: 7}, nil))
	client.Close()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Serve did not return after APP_EXIT")
	}
	assert.Empty(t, apps.ByPID(7))
}

func TestStartReqTriggersNotifyAndEnablesEXC(t *testing.T) {
	p, apps, _ := newTestProxy(t)
	e, err := apps.CreateEXC(9, 0, "x", "recipe.x", 2, false)
	require.NoError(t, err)

	notified := make(chan struct{}, 1)
	p.notifyExec = func() { notified <- struct{}{} }

	server, client := net.Pipe()
	defer client.Close()
	go p.Serve(NewStreamTransport(server))
	c := newClientConn(client)

	require.NoError(t, c.send(Header{Type: MsgAppPair, AppPID: 9}, nil))
	require.NoError(t, c.send(Header{Token: 5, Type: MsgStartReq, AppPID: 9, ExcID: 0}, nil))

	h, resp, err := c.recv()
	require.NoError(t, err)
	assert.Equal(t, MsgBBQResp, h.Type)
	code, _ := decodeRespPayload(resp)
	assert.Equal(t, RTLIBOK, code)

	select {
	case <-notified:
	case <-time.After(time.Second):
		t.Fatal("start_req did not trigger notify")
	}
	assert.Equal(t, app.Ready, e.State().State)
}

// exChangeEcho runs on the "client" side of a pipe, answering every
// PreChange/SyncChange/PostChange with an OK and draining DoChange (which
// expects no reply at all).
func exChangeEcho(t *testing.T, conn net.Conn, pid int32) {
	t.Helper()
	c := newClientConn(conn)
	require.NoError(t, c.send(Header{Type: MsgAppPair, AppPID: pid}, nil))
	for {
		h, _, err := c.recv()
		if err != nil {
			return
		}
		switch h.Type {
		case MsgPreChange:
			_ = c.send(Header{Token: h.Token, Type: MsgBBQResp, AppPID: pid, ExcID: h.ExcID}, preChangeRespPayload(RTLIBOK, 5))
		case MsgSyncChange, MsgPostChange:
			_ = c.send(Header{Token: h.Token, Type: MsgBBQResp, AppPID: pid, ExcID: h.ExcID}, respPayload(RTLIBOK))
		case MsgDoChange:
			// one-way, no reply
		}
	}
}

func TestOutboundSyncProtocolRoundTrip(t *testing.T) {
	p, apps, _ := newTestProxy(t)
	e, err := apps.CreateEXC(11, 0, "x", "recipe.x", 2, false)
	require.NoError(t, err)

	server, client := net.Pipe()
	defer client.Close()
	go p.Serve(NewStreamTransport(server))
	go exChangeEcho(t, client, 11)

	// give the pairing frame a moment to land before we address pid 11.
	time.Sleep(10 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	require.NoError(t, p.PreChange(ctx, e))
	require.NoError(t, p.SyncChange(ctx, e))
	require.NoError(t, p.DoChange(ctx, e))
	require.NoError(t, p.PostChange(ctx, e))
}

func TestOutboundFailsWithoutConnection(t *testing.T) {
	p, apps, _ := newTestProxy(t)
	e, err := apps.CreateEXC(13, 0, "x", "recipe.x", 2, false)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err = p.PreChange(ctx, e)
	assert.Error(t, err)
}
