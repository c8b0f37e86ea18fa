package hsmsss

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/justinfuerth/hsms/hsms"
	"github.com/justinfuerth/hsms/secs2"
)

const (
	testIP       = "127.0.0.1"
	testPort     = 35000
	eventTimeout = 5 * time.Second
)

var portInUse atomic.Int32

func getPort() int {
	return testPort + int(portInUse.Add(1))
}

type testComm struct {
	t       testing.TB
	require *require.Assertions
	name    string
	conn    *Connection
}

func newTestComm(t testing.TB, port int, isActive bool, extraOpts ...ConnOption) *testComm {
	require := require.New(t)

	name := "passive"
	opts := []ConnOption{WithPassive()}
	if isActive {
		name = "active"
		opts = []ConnOption{WithActive()}
	}
	opts = append(opts,
		WithT5Timeout(50*time.Millisecond),
		WithConnectRemoteTimeout(200*time.Millisecond),
		WithCloseConnTimeout(2*time.Second),
		WithAutoLinktest(false),
	)
	opts = append(opts, extraOpts...)

	cfg, err := NewConnectionConfig(testIP, port, opts...)
	require.NoError(err)

	conn, err := NewConnection(cfg)
	require.NoError(err)
	require.NotEmpty(conn.ID())
	require.NotNil(conn.GetLogger())

	t.Cleanup(func() { _ = conn.Close() })

	return &testComm{t: t, require: require, name: name, conn: conn}
}

func (c *testComm) start() {
	c.t.Logf("=== %s start ===", c.name)
	c.require.NoError(c.conn.Start(context.Background()))
}

func (c *testComm) stop() {
	c.t.Logf("=== %s stop ===", c.name)
	c.require.NoError(c.conn.Stop())
}

// nextEvent returns the next event, or false when none arrives within d.
func (c *testComm) nextEvent(d time.Duration) (Event, bool) {
	select {
	case ev := <-c.conn.Events():
		return ev, true
	case <-time.After(d):
		return Event{}, false
	}
}

// waitEvent skips events until one of kind arrives.
func (c *testComm) waitEvent(kind EventKind) Event {
	deadline := time.Now().Add(eventTimeout)
	for {
		ev, ok := c.nextEvent(time.Until(deadline))
		c.require.Truef(ok, "%s: no %s event within %v", c.name, kind, eventTimeout)
		if ev.Kind == kind {
			return ev
		}
		c.t.Logf("%s: skip event %s", c.name, ev)
	}
}

// expectEvent requires the next event to be of kind.
func (c *testComm) expectEvent(kind EventKind) Event {
	ev, ok := c.nextEvent(eventTimeout)
	c.require.Truef(ok, "%s: no %s event within %v", c.name, kind, eventTimeout)
	c.require.Equalf(kind, ev.Kind, "%s: unexpected event %s", c.name, ev)

	return ev
}

// expectNoEvent requires that no event of kind arrives within d.
func (c *testComm) expectNoEvent(kind EventKind, d time.Duration) {
	deadline := time.Now().Add(d)
	for {
		ev, ok := c.nextEvent(time.Until(deadline))
		if !ok {
			return
		}
		c.require.NotEqualf(kind, ev.Kind, "%s: unexpected event %s", c.name, ev)
	}
}

// echo answers every received primary message that expects a reply with its own items,
// until the test ends.
func (c *testComm) echo() {
	ctx, cancel := context.WithCancel(context.Background())
	c.t.Cleanup(cancel)

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-c.conn.Events():
				if !ok {
					return
				}
				if ev.Kind != EventRecv || !ev.Message.IsPrimary() || !ev.Message.ReplyExpected() {
					continue
				}
				reply, err := hsms.NewReply(ev.Message, ev.Message.Items()...)
				if err != nil {
					continue
				}
				_, _ = c.conn.Send(reply)
			}
		}
	}()
}

func newS1F1(t testing.TB, items ...*secs2.Item) *hsms.DataMessage {
	msg, err := hsms.NewDataMessageBuilder().SetStream(1).SetFunc(1).SetItems(items...).Build()
	require.NoError(t, err)

	return msg
}

func establish(t testing.TB, active *testComm, passive *testComm) {
	passive.start()
	active.start()

	ev := active.expectEvent(EventEstablished)
	require.NotNil(t, ev.Remote)
	passive.expectEvent(EventEstablished)

	require.Equal(t, hsms.SelectedState, active.conn.State())
	require.Equal(t, hsms.SelectedState, passive.conn.State())
}

func TestConnection_Establish(t *testing.T) {
	port := getPort()

	active := newTestComm(t, port, true)
	passive := newTestComm(t, port, false)

	establish(t, active, passive)
}

func TestConnection_ActiveStartsFirst(t *testing.T) {
	require := require.New(t)

	port := getPort()

	active := newTestComm(t, port, true)
	passive := newTestComm(t, port, false)

	active.start()
	require.Eventually(func() bool {
		return active.conn.Metrics().ConnRetryGauge.Load() >= 2
	}, eventTimeout, 10*time.Millisecond)

	passive.start()
	active.expectEvent(EventEstablished)
	passive.expectEvent(EventEstablished)
	require.Equal(uint32(0), active.conn.Metrics().ConnRetryGauge.Load())
}

func TestConnection_PassiveListenError(t *testing.T) {
	require := require.New(t)

	port := getPort()

	first := newTestComm(t, port, false)
	first.start()
	require.Equal(hsms.ListeningState, first.conn.State())

	second := newTestComm(t, port, false)
	require.Error(second.conn.Start(context.Background()))
	require.Equal(hsms.NotConnectedState, second.conn.State())
}

func TestConnection_SendReply(t *testing.T) {
	require := require.New(t)

	port := getPort()

	active := newTestComm(t, port, true)
	passive := newTestComm(t, port, false)
	establish(t, active, passive)
	passive.echo()

	completed := make(chan error, 1)
	msg, err := hsms.NewDataMessageBuilder().
		SetStream(1).SetFunc(3).
		SetItems(secs2.List("", secs2.U4("svid", 1001), secs2.A("", "chamber", 10))).
		SetComplete(func(reply *hsms.DataMessage, err error) {
			if err == nil && reply.Func() != 4 {
				err = hsms.ErrInvalidReqMsg
			}
			completed <- err
		}).
		Build()
	require.NoError(err)

	tx, err := active.conn.Send(msg)
	require.NoError(err)
	require.NotNil(tx)
	require.Equal(msg, tx.Message())

	ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
	defer cancel()
	reply, err := tx.Wait(ctx)
	require.NoError(err)
	require.Equal("S1F4", reply.SF())
	require.Equal(msg.Context(), reply.Context())
	require.False(reply.ReplyExpected())
	require.True(msg.Item(0).Equals(reply.Item(0)))
	require.Equal(reply, tx.Reply())
	require.NoError(tx.Err())

	select {
	case err := <-completed:
		require.NoError(err)
	case <-time.After(eventTimeout):
		require.Fail("complete callback not called")
	}

	ev := active.expectEvent(EventRecv)
	require.Equal(reply, ev.Message)
	require.Equal(0, active.conn.Pending())
	require.Equal(uint64(1), active.conn.Metrics().DataMsgSendCount.Load())
	require.Equal(uint64(1), active.conn.Metrics().DataMsgRecvCount.Load())
	require.Equal(int64(0), active.conn.Metrics().DataMsgInflightCount.Load())
}

func TestConnection_T3Timeout(t *testing.T) {
	require := require.New(t)

	port := getPort()

	active := newTestComm(t, port, true, WithT3Timeout(200*time.Millisecond))
	passive := newTestComm(t, port, false)
	establish(t, active, passive)

	completed := make(chan error, 1)
	msg, err := hsms.NewDataMessageBuilder().SetStream(1).SetFunc(1).
		SetComplete(func(_ *hsms.DataMessage, err error) { completed <- err }).
		Build()
	require.NoError(err)

	tx, err := active.conn.Send(msg)
	require.NoError(err)
	require.Equal(1, active.conn.Pending())

	// the passive side receives the message but never replies
	recv := passive.expectEvent(EventRecv)
	require.Equal(msg.Context(), recv.Message.Context())

	ev := active.expectEvent(EventTimeout)
	require.Equal(hsms.T3, ev.Timer)
	require.ErrorIs(ev.Err, hsms.ErrT3Timeout)
	require.Equal(msg, ev.Message)

	_, err = tx.Wait(context.Background())
	require.ErrorIs(err, hsms.ErrT3Timeout)
	require.ErrorIs(<-completed, hsms.ErrT3Timeout)
	require.Nil(tx.Reply())
	require.Equal(0, active.conn.Pending())

	// exactly one timeout, no recv, and the connection stays up
	ev, ok := active.nextEvent(500 * time.Millisecond)
	require.Falsef(ok, "unexpected event %s", ev)
	require.Equal(hsms.SelectedState, active.conn.State())
	require.Equal(uint64(1), active.conn.Metrics().TimeoutCount.Load())
}

func TestConnection_T3OrderedDeadlines(t *testing.T) {
	require := require.New(t)

	port := getPort()

	active := newTestComm(t, port, true, WithT3Timeout(300*time.Millisecond))
	passive := newTestComm(t, port, false)
	establish(t, active, passive)

	first, err := active.conn.Send(newS1F1(t))
	require.NoError(err)
	time.Sleep(100 * time.Millisecond)
	second, err := active.conn.Send(newS1F1(t))
	require.NoError(err)

	ev := active.expectEvent(EventTimeout)
	require.Equal(first.Message(), ev.Message)
	ev = active.expectEvent(EventTimeout)
	require.Equal(second.Message(), ev.Message)

	<-first.Done()
	<-second.Done()
	require.ErrorIs(first.Err(), hsms.ErrT3Timeout)
	require.ErrorIs(second.Err(), hsms.ErrT3Timeout)
}

func TestConnection_T7Timeout(t *testing.T) {
	require := require.New(t)

	port := getPort()

	active := newTestComm(t, port, true, WithT7Timeout(200*time.Millisecond), WithT5Timeout(time.Second))
	passive := newTestComm(t, port, false, WithT7Timeout(time.Second))
	active.conn.Debug().SuppressSelectReq.Store(true)

	passive.start()
	active.start()

	ev := active.expectEvent(EventTimeout)
	require.Equal(hsms.T7, ev.Timer)
	ev = active.expectEvent(EventDropped)
	require.ErrorIs(ev.Err, hsms.ErrT7Timeout)

	// the next attempt selects once the hook is released
	active.conn.Debug().SuppressSelectReq.Store(false)
	active.waitEvent(EventEstablished)
	passive.waitEvent(EventEstablished)
}

func TestConnection_T6Timeout(t *testing.T) {
	require := require.New(t)

	port := getPort()

	active := newTestComm(t, port, true,
		WithAutoLinktest(true),
		WithLinktestInterval(50*time.Millisecond),
		WithT6Timeout(200*time.Millisecond),
		WithT5Timeout(time.Second),
	)
	passive := newTestComm(t, port, false)
	passive.conn.Debug().SuppressLinkTestRsp.Store(true)

	establish(t, active, passive)

	ev := active.expectEvent(EventTimeout)
	require.Equal(hsms.T6, ev.Timer)
	ev = active.expectEvent(EventDropped)
	require.ErrorIs(ev.Err, hsms.ErrT6Timeout)
	require.Equal(uint64(1), active.conn.Metrics().LinktestErrCount.Load())

	passive.waitEvent(EventDropped)
}

func TestConnection_T8Timeout(t *testing.T) {
	require := require.New(t)

	port := getPort()

	// nothing is sent on an idle link without linktest
	active := newTestComm(t, port, true, WithT8Timeout(300*time.Millisecond), WithT5Timeout(time.Second))
	passive := newTestComm(t, port, false)
	establish(t, active, passive)

	ev := active.expectEvent(EventTimeout)
	require.Equal(hsms.T8, ev.Timer)
	ev = active.expectEvent(EventDropped)
	require.ErrorIs(ev.Err, hsms.ErrT8Timeout)
}

func TestConnection_LinktestAlive(t *testing.T) {
	require := require.New(t)

	port := getPort()

	active := newTestComm(t, port, true,
		WithAutoLinktest(true),
		WithLinktestInterval(50*time.Millisecond),
		WithT8Timeout(200*time.Millisecond),
	)
	passive := newTestComm(t, port, false)
	establish(t, active, passive)

	// the linktest traffic keeps T8 of both sides from expiring
	for range 5 {
		active.expectEvent(EventAlive)
	}
	passive.expectNoEvent(EventDropped, 300*time.Millisecond)

	require.Equal(hsms.SelectedState, active.conn.State())
	require.GreaterOrEqual(active.conn.Metrics().LinktestSendCount.Load(), uint64(5))
	require.GreaterOrEqual(active.conn.Metrics().LinktestRecvCount.Load(), uint64(5))
	require.Equal(uint64(0), active.conn.Metrics().LinktestErrCount.Load())
}

func TestConnection_Reconnect(t *testing.T) {
	require := require.New(t)

	port := getPort()

	active := newTestComm(t, port, true)
	passive := newTestComm(t, port, false)
	passive.start()

	const rounds = 5
	for i := range rounds {
		t.Logf("Test #%d: reconnect", i)

		active.start()
		active.expectEvent(EventEstablished)
		passive.expectEvent(EventEstablished)

		active.stop()
		ev := active.expectEvent(EventDropped)
		require.ErrorIs(ev.Err, hsms.ErrConnClosed)
		passive.expectEvent(EventDropped)
		require.Equal(hsms.NotConnectedState, active.conn.State())
	}

	require.Eventually(func() bool {
		return passive.conn.State() == hsms.ListeningState
	}, eventTimeout, 10*time.Millisecond)
}

func TestConnection_OrderedDelivery(t *testing.T) {
	require := require.New(t)

	port := getPort()

	active := newTestComm(t, port, true)
	passive := newTestComm(t, port, false, WithEventQueueSize(16))
	establish(t, active, passive)

	const count = 100
	for i := range count {
		msg, err := hsms.NewDataMessageBuilder().
			SetStream(6).SetFunc(11).SetReplyExpected(false).
			SetItems(secs2.U4("seq", i)).
			Build()
		require.NoError(err)

		tx, err := active.conn.Send(msg)
		require.NoError(err)
		require.Nil(tx)
	}

	for i := range count {
		ev := passive.expectEvent(EventRecv)
		require.Equal("S6F11", ev.Message.SF())
		require.Equal(uint64(i), ev.Message.Item(0).Value())
	}
	require.Equal(0, active.conn.Pending())
}

func TestConnection_SendNotSelected(t *testing.T) {
	require := require.New(t)

	port := getPort()
	active := newTestComm(t, port, true)

	_, err := active.conn.Send(newS1F1(t))
	require.ErrorIs(err, hsms.ErrNotSelectedState)

	_, err = active.conn.Send(nil)
	require.ErrorIs(err, ErrNilMessage)

	// started, but nobody listens
	active.start()
	_, err = active.conn.Send(newS1F1(t))
	require.ErrorIs(err, hsms.ErrNotSelectedState)
}

func TestConnection_DuplicateContext(t *testing.T) {
	require := require.New(t)

	port := getPort()

	active := newTestComm(t, port, true)
	passive := newTestComm(t, port, false)
	establish(t, active, passive)

	msg, err := hsms.NewDataMessageBuilder().SetStream(1).SetFunc(1).SetContext(42).Build()
	require.NoError(err)

	_, err = active.conn.Send(msg)
	require.NoError(err)
	_, err = active.conn.Send(msg)
	require.ErrorIs(err, ErrDuplicateContext)
	require.Equal(1, active.conn.Pending())
}

func TestConnection_StopFailsPending(t *testing.T) {
	require := require.New(t)

	port := getPort()

	active := newTestComm(t, port, true)
	passive := newTestComm(t, port, false)
	establish(t, active, passive)

	completed := make(chan error, 1)
	msg, err := hsms.NewDataMessageBuilder().SetStream(1).SetFunc(1).
		SetComplete(func(_ *hsms.DataMessage, err error) { completed <- err }).
		Build()
	require.NoError(err)

	tx, err := active.conn.Send(msg)
	require.NoError(err)
	passive.expectEvent(EventRecv)

	active.stop()

	// resolved before Stop returned
	select {
	case <-tx.Done():
	default:
		require.Fail("transaction still pending after Stop")
	}
	require.ErrorIs(tx.Err(), hsms.ErrConnClosed)
	select {
	case err := <-completed:
		require.ErrorIs(err, hsms.ErrConnClosed)
	default:
		require.Fail("complete callback has not run when Stop returned")
	}
	require.Equal(0, active.conn.Pending())

	active.expectEvent(EventDropped)
	require.Equal(hsms.NotConnectedState, active.conn.State())

	// separate.req drops the passive side, which listens again
	ev := passive.expectEvent(EventDropped)
	require.ErrorIs(ev.Err, hsms.ErrConnClosed)
	require.Eventually(func() bool {
		return passive.conn.State() == hsms.ListeningState
	}, eventTimeout, 10*time.Millisecond)

	// stopping twice is harmless
	active.stop()
}

func TestConnection_StartStopIdempotent(t *testing.T) {
	require := require.New(t)

	port := getPort()
	passive := newTestComm(t, port, false)

	passive.stop()
	passive.start()
	passive.start()
	require.Equal(hsms.ListeningState, passive.conn.State())

	for range 3 {
		passive.stop()
	}
	require.Equal(hsms.NotConnectedState, passive.conn.State())

	passive.start()
	require.Equal(hsms.ListeningState, passive.conn.State())
}

func TestConnection_ContextCancel(t *testing.T) {
	require := require.New(t)

	port := getPort()

	active := newTestComm(t, port, true)
	passive := newTestComm(t, port, false)
	passive.start()

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(active.conn.Start(ctx))
	active.expectEvent(EventEstablished)
	passive.expectEvent(EventEstablished)

	cancel()

	active.expectEvent(EventDropped)
	require.Eventually(func() bool {
		return active.conn.State() == hsms.NotConnectedState
	}, eventTimeout, 10*time.Millisecond)
	passive.expectEvent(EventDropped)
}

func TestConnection_CallbacksWithUnreadEvents(t *testing.T) {
	require := require.New(t)

	port := getPort()

	active := newTestComm(t, port, true)
	passive := newTestComm(t, port, false)
	establish(t, active, passive)
	passive.echo()

	// the active side never reads its events, so the recv events of the replies pile up
	const count = 100
	var completed atomic.Int32
	for range count {
		msg, err := hsms.NewDataMessageBuilder().SetStream(1).SetFunc(1).
			SetComplete(func(reply *hsms.DataMessage, err error) {
				if err == nil && reply != nil {
					completed.Add(1)
				}
			}).
			Build()
		require.NoError(err)

		_, err = active.conn.Send(msg)
		require.NoError(err)
	}

	require.Eventually(func() bool {
		return completed.Load() == count
	}, eventTimeout, 10*time.Millisecond)
	require.Equal(0, active.conn.Pending())
}

func TestConnection_SendTooLarge(t *testing.T) {
	require := require.New(t)

	port := getPort()

	active := newTestComm(t, port, true)
	passive := newTestComm(t, port, false)
	establish(t, active, passive)

	// each item fits, but the block does not
	item, err := secs2.NewItemBuilder().SetFormat(secs2.FormatU8).SetValue(make([]uint64, 1_100_000)).Build()
	require.NoError(err)

	msg := newS1F1(t, item, item)
	require.Greater(msg.Size(), hsms.MaxMessageSize)

	tx, err := active.conn.Send(msg)
	require.ErrorIs(err, hsms.ErrMessageTooLarge)
	require.Nil(tx)
	require.Equal(0, active.conn.Pending())
	require.Equal(hsms.SelectedState, active.conn.State())

	passive.expectNoEvent(EventRecv, 100*time.Millisecond)

	// the link is still usable
	passive.echo()
	tx, err = active.conn.Send(newS1F1(t))
	require.NoError(err)

	ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
	defer cancel()
	_, err = tx.Wait(ctx)
	require.NoError(err)
}

func TestConnection_Close(t *testing.T) {
	require := require.New(t)

	port := getPort()

	active := newTestComm(t, port, true)
	passive := newTestComm(t, port, false)
	establish(t, active, passive)

	// leave unread events behind
	passive.echo()
	for range 10 {
		_, err := active.conn.Send(newS1F1(t))
		require.NoError(err)
	}

	require.NoError(active.conn.Close())
	require.Equal(hsms.NotConnectedState, active.conn.State())

	// the channel is closed, so a range over it ends
	done := make(chan struct{})
	go func() {
		for range active.conn.Events() {
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(eventTimeout):
		require.Fail("event channel not closed by Close")
	}

	require.ErrorIs(active.conn.Start(context.Background()), hsms.ErrConnClosed)
	require.NoError(active.conn.Close())
}

func TestEventKind_String(t *testing.T) {
	require := require.New(t)

	require.Equal("established", EventEstablished.String())
	require.Equal("dropped", EventDropped.String())
	require.Equal("timeout", EventTimeout.String())
	require.Equal("alive", EventAlive.String())
	require.Equal("recv", EventRecv.String())
	require.Equal("EventKind(0)", EventKind(0).String())

	require.Equal("timeout T3", Event{Kind: EventTimeout, Timer: hsms.T3}.String())
	require.Equal("dropped: connection closed", Event{Kind: EventDropped, Err: hsms.ErrConnClosed}.String())
}
