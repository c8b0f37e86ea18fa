package hsmsss

import (
	"errors"
	"fmt"
	"time"

	"github.com/justinfuerth/hsms/hsms"
	"github.com/justinfuerth/hsms/internal/pool"
)

// loopTimer is a one-shot timer for the dispatch select. Its channel is nil while disarmed,
// so a disarmed timer never fires.
type loopTimer struct {
	t *time.Timer
}

func (lt *loopTimer) C() <-chan time.Time {
	if lt.t == nil {
		return nil
	}

	return lt.t.C
}

func (lt *loopTimer) arm(d time.Duration) {
	lt.stop()
	lt.t = pool.GetTimer(max(d, 0))
}

func (lt *loopTimer) stop() {
	if lt.t != nil {
		pool.PutTimer(lt.t)
		lt.t = nil
	}
}

// dispatch handles one input of the connection. It is the task function of the dispatch goroutine.
func (c *Connection) dispatch() bool {
	var sockFailed <-chan struct{}
	if c.sock != nil {
		sockFailed = c.sock.failed
	}

	select {
	case <-c.runCtx.Done():
		c.teardown(false)
		return false

	case cmd := <-c.cmdCh:
		if cmd.msg == nil {
			c.teardown(true)
			cmd.result <- sendResult{}

			return false
		}

		tx, err := c.handleSend(cmd.msg)
		cmd.result <- sendResult{tx: tx, err: err}

	case res := <-c.connCh:
		c.handleConnResult(res)

	case in := <-c.inboundCh:
		// messages of a socket that was already dropped are ignored
		if in.sock == c.sock {
			c.handleMessage(in.msg)
		}

	case <-sockFailed:
		err := c.sock.err
		if errors.Is(err, hsms.ErrT8Timeout) {
			c.timeout(hsms.T8, nil)
		}
		c.drop(err)

	case <-c.linktestTick:
		c.sendLinktest()

	case <-c.t3.C():
		c.t3.stop()
		c.expireTransactions()

	case <-c.t5.C():
		c.t5.stop()
		c.connect()

	case <-c.t6.C():
		c.t6.stop()
		c.metrics.incLinktestErrCount()
		c.timeout(hsms.T6, nil)
		c.drop(hsms.ErrT6Timeout)

	case <-c.t7.C():
		c.t7.stop()
		c.timeout(hsms.T7, nil)
		c.drop(hsms.ErrT7Timeout)
	}

	return true
}

// handleSend registers the transaction of msg and queues msg for writing.
func (c *Connection) handleSend(msg *hsms.DataMessage) (*Transaction, error) {
	if c.sock == nil || !c.stateMgr.IsSelected() {
		return nil, hsms.ErrNotSelectedState
	}

	if size := msg.Size(); size > hsms.MaxMessageSize {
		return nil, fmt.Errorf("%w: %d bytes", hsms.ErrMessageTooLarge, size)
	}

	var tx *Transaction
	if msg.ReplyExpected() {
		tx = newTransaction(msg, time.Now().Add(c.cfg.T3Timeout()))
		if _, loaded := c.pending.LoadOrStore(msg.Context(), tx); loaded {
			return nil, fmt.Errorf("%w: %d", ErrDuplicateContext, msg.Context())
		}
		c.metrics.incDataMsgInflightCount()
		c.rearmT3()
	}

	if !c.push(msg) {
		if tx != nil {
			c.pending.Delete(msg.Context())
			c.metrics.decDataMsgInflightCount()
			c.rearmT3()
		}

		return nil, hsms.ErrConnClosed
	}

	return tx, nil
}

// push queues msg on the writer of the current socket.
func (c *Connection) push(msg hsms.Message) bool {
	sock := c.sock
	if sock == nil {
		return false
	}

	select {
	case sock.sendCh <- msg:
		return true
	case <-sock.failed:
		return false
	case <-c.sockMgr.Context().Done():
		return false
	}
}

// flush queues msg and waits until it was written, bounded by the close connection timeout.
func (c *Connection) flush(msg hsms.Message) {
	sock := c.sock
	fm := &flushedMsg{Message: msg, done: make(chan struct{})}
	if !c.push(fm) {
		return
	}

	t := pool.GetTimer(c.cfg.CloseConnTimeout())
	defer pool.PutTimer(t)

	select {
	case <-fm.done:
	case <-sock.failed:
	case <-c.sockMgr.Context().Done():
	case <-t.C:
		c.logger.Warn("timeout while flushing message", hsms.MsgInfo(msg)...)
	}
}

func (c *Connection) handleConnResult(res connResult) {
	if res.err != nil {
		c.metrics.incConnRetryGauge()
		c.logger.Debug("failed to connect to the remote", "error", res.err, "retry", c.metrics.ConnRetryGauge.Load())
		c.stateMgr.ToNotConnected()
		c.t5.arm(c.cfg.T5Timeout())

		return
	}

	if c.sock != nil || c.stopping {
		_ = res.conn.Close()
		return
	}

	if err := c.stateMgr.ToNotSelected(); err != nil {
		c.logger.Warn("unexpected connection", "error", err, "remote_address", res.conn.RemoteAddr())
		_ = res.conn.Close()

		return
	}

	c.metrics.resetConnRetryGauge()
	c.logger.Debug("connected",
		"local_addr", res.conn.LocalAddr().String(),
		"remote_addr", res.conn.RemoteAddr().String(),
	)

	if err := c.setupSocket(res.conn); err != nil {
		c.logger.Error("failed to set up socket", "error", err)
		c.drop(err)

		return
	}

	c.t7.arm(c.cfg.T7Timeout())

	if c.cfg.IsActive() {
		if c.debug.SuppressSelectReq.Load() {
			c.logger.Debug("select.req suppressed by debug hook")
			return
		}

		c.selectCtx = hsms.GenerateContext()
		c.push(hsms.NewSelectReq(c.cfg.DeviceID(), c.selectCtx))
	}
}

// handleMessage runs the HSMS procedures for a received message.
func (c *Connection) handleMessage(msg hsms.Message) {
	c.logger.Debug("message received", hsms.MsgInfo(msg)...)

	if dataMsg, ok := msg.(*hsms.DataMessage); ok {
		c.handleDataMessage(dataMsg)
		return
	}

	ctrlMsg, ok := msg.(*hsms.ControlMessage)
	if !ok {
		return
	}

	switch ctrlMsg.Kind() {
	case hsms.KindSelectReq:
		if c.stateMgr.IsSelected() {
			c.push(hsms.NewSelectRsp(ctrlMsg, hsms.SelectStatusActive))
			return
		}
		c.push(hsms.NewSelectRsp(ctrlMsg, hsms.SelectStatusSuccess))
		c.onSelected()

	case hsms.KindSelectRsp:
		if c.selectCtx == 0 || ctrlMsg.Context() != c.selectCtx {
			c.push(hsms.NewRejectReq(ctrlMsg, hsms.RejectTransactionNotOpen))
			return
		}
		c.selectCtx = 0
		c.t7.stop()

		// simultaneous select: the remote select.req already selected the connection
		if c.stateMgr.IsSelected() {
			return
		}

		if status := ctrlMsg.Status(); status != hsms.SelectStatusSuccess {
			c.logger.Warn("select rejected by remote", "status", status)
			c.drop(fmt.Errorf("%w: status %d", hsms.ErrSelectFailed, status))

			return
		}
		c.onSelected()

	case hsms.KindDeselectReq:
		if !c.stateMgr.IsSelected() {
			c.push(hsms.NewDeselectRsp(ctrlMsg, hsms.DeselectStatusNotEstablished))
			return
		}
		c.flush(hsms.NewDeselectRsp(ctrlMsg, hsms.DeselectStatusSuccess))
		c.drop(fmt.Errorf("%w: deselected by remote", hsms.ErrConnClosed))

	case hsms.KindLinkTestReq:
		if c.debug.SuppressLinkTestRsp.Load() {
			c.logger.Debug("linktest.rsp suppressed by debug hook")
			return
		}
		c.push(hsms.NewLinkTestRsp(ctrlMsg))

	case hsms.KindLinkTestRsp:
		if c.linktestCtx == 0 || ctrlMsg.Context() != c.linktestCtx {
			c.push(hsms.NewRejectReq(ctrlMsg, hsms.RejectTransactionNotOpen))
			return
		}
		c.linktestCtx = 0
		c.t6.stop()
		c.metrics.incLinktestRecvCount()
		c.pump.emit(Event{Kind: EventAlive})

	case hsms.KindRejectReq:
		c.handleReject(ctrlMsg)

	case hsms.KindSeparateReq:
		c.drop(fmt.Errorf("%w: separated by remote", hsms.ErrConnClosed))

	case hsms.KindDeselectRsp:
		// deselect.req is never sent
		c.push(hsms.NewRejectReq(ctrlMsg, hsms.RejectTransactionNotOpen))

	default:
		reason := hsms.RejectSTypeNotSupported
		if ctrlMsg.PType() != 0 {
			reason = hsms.RejectPTypeNotSupported
		}
		c.logger.Warn("unsupported message", "ptype", ctrlMsg.PType(), "stype", ctrlMsg.SType())
		c.push(hsms.NewRejectReq(ctrlMsg, reason))
	}
}

func (c *Connection) handleDataMessage(msg *hsms.DataMessage) {
	c.metrics.incDataMsgRecvCount()

	if !c.stateMgr.IsSelected() {
		c.logger.Warn("data message received while not selected", hsms.MsgInfo(msg)...)
		c.push(hsms.NewRejectReq(msg, hsms.RejectNotSelected))

		return
	}

	if tx, ok := c.pending.LoadAndDelete(msg.Context()); ok {
		c.metrics.decDataMsgInflightCount()
		c.callbacks.call(tx.resolve(msg, nil))
		c.rearmT3()
	}

	c.pump.emit(Event{Kind: EventRecv, Message: msg})
}

func (c *Connection) handleReject(msg *hsms.ControlMessage) {
	reason := msg.Reason()

	if tx, ok := c.pending.LoadAndDelete(msg.Context()); ok {
		c.metrics.decDataMsgInflightCount()
		c.metrics.incDataMsgErrCount()
		c.logger.Warn("message rejected by remote", hsms.MsgInfo(tx.Message(), "reason", reason.String())...)
		c.callbacks.call(tx.resolve(nil, &hsms.RejectError{Reason: reason}))
		c.rearmT3()

		return
	}

	if c.selectCtx != 0 && msg.Context() == c.selectCtx {
		c.selectCtx = 0
		c.t7.stop()
		c.drop(fmt.Errorf("%w: %w", hsms.ErrSelectFailed, &hsms.RejectError{Reason: reason}))

		return
	}

	if c.linktestCtx != 0 && msg.Context() == c.linktestCtx {
		c.linktestCtx = 0
		c.t6.stop()
		c.metrics.incLinktestErrCount()
	}

	c.logger.Warn("reject.req received", "context", msg.Context(), "reason", reason.String())
}

// onSelected enters the selected state after a successful select procedure.
func (c *Connection) onSelected() {
	if err := c.stateMgr.ToSelected(); err != nil {
		c.logger.Error("failed to enter selected state", "error", err)
		return
	}
	c.t7.stop()

	if c.cfg.AutoLinktest() {
		if err := c.sockMgr.StartInterval("linktest", c.linktestTask, c.cfg.LinktestInterval()); err != nil {
			c.logger.Error("failed to start linktest", "error", err)
		}
	}

	remote := c.sock.conn.RemoteAddr()
	c.logger.Info("connection established", "remote_address", remote)
	c.pump.emit(Event{Kind: EventEstablished, Remote: remote})
}

// linktestTask runs on the linktest ticker and asks the dispatch goroutine for a linktest.
func (c *Connection) linktestTask() bool {
	select {
	case c.linktestTick <- struct{}{}:
	default:
	}

	return true
}

func (c *Connection) sendLinktest() {
	// one linktest at a time, the next tick is skipped while T6 runs
	if !c.stateMgr.IsSelected() || c.linktestCtx != 0 {
		return
	}

	c.linktestCtx = hsms.GenerateContext()
	if c.push(hsms.NewLinkTestReq(c.linktestCtx)) {
		c.t6.arm(c.cfg.T6Timeout())
	}
}

// timeout reports an expired timer. msg is the unanswered message of a T3 expiry.
func (c *Connection) timeout(code hsms.TimerCode, msg *hsms.DataMessage) {
	c.metrics.incTimeoutCount()

	kv := []any{"timer", code.String()}
	if msg != nil {
		kv = hsms.MsgInfo(msg, kv...)
	}
	c.logger.Warn("timeout", kv...)

	c.pump.emit(Event{Kind: EventTimeout, Timer: code, Message: msg, Err: code.Err()})
}

// expireTransactions fails every transaction whose T3 deadline has passed.
func (c *Connection) expireTransactions() {
	now := time.Now()

	c.pending.Range(func(id uint32, tx *Transaction) bool {
		if tx.deadline.After(now) {
			return true
		}

		c.pending.Delete(id)
		c.metrics.decDataMsgInflightCount()
		c.metrics.incDataMsgErrCount()
		c.timeout(hsms.T3, tx.Message())
		c.callbacks.call(tx.resolve(nil, hsms.ErrT3Timeout))

		return true
	})

	c.rearmT3()
}

// rearmT3 arms T3 for the earliest pending deadline.
func (c *Connection) rearmT3() {
	var earliest time.Time
	c.pending.Range(func(_ uint32, tx *Transaction) bool {
		if earliest.IsZero() || tx.deadline.Before(earliest) {
			earliest = tx.deadline
		}

		return true
	})

	if earliest.IsZero() {
		c.t3.stop()
		return
	}

	c.t3.arm(time.Until(earliest))
}

// failPending fails every pending transaction with hsms.ErrConnClosed wrapping cause.
func (c *Connection) failPending(cause error) {
	err := hsms.ErrConnClosed
	if cause != nil && !errors.Is(cause, hsms.ErrConnClosed) {
		err = fmt.Errorf("%w: %w", hsms.ErrConnClosed, cause)
	}

	c.pending.Range(func(id uint32, tx *Transaction) bool {
		c.pending.Delete(id)
		c.metrics.decDataMsgInflightCount()
		c.metrics.incDataMsgErrCount()
		c.callbacks.call(tx.resolve(nil, err))

		return true
	})
	c.t3.stop()
}

// drop tears down the current socket, fails pending transactions and starts the
// next connect or accept cycle unless the connection is stopping.
func (c *Connection) drop(cause error) {
	sock := c.sock
	c.sock = nil

	c.t6.stop()
	c.t7.stop()
	c.selectCtx = 0
	c.linktestCtx = 0

	if sock != nil {
		sock.fail(cause)
		c.sockMgr.Stop()
		c.sockMgr.Wait()
	}

	select {
	case <-c.linktestTick:
	default:
	}

	c.failPending(cause)
	c.stateMgr.ToNotConnected()

	if sock != nil {
		c.logger.Info("connection dropped", "reason", cause)
		c.pump.emit(Event{Kind: EventDropped, Err: cause})
	}

	if c.stopping {
		return
	}

	if c.cfg.IsActive() {
		c.t5.arm(c.cfg.T5Timeout())
	} else {
		c.relisten()
	}
}

// teardown ends the current run. graceful sends separate.req when selected.
func (c *Connection) teardown(graceful bool) {
	c.stopping = true
	c.tornDown = true

	if graceful && c.sock != nil && c.stateMgr.IsSelected() {
		c.flush(hsms.NewSeparateReq(c.cfg.DeviceID(), hsms.GenerateContext()))
	}

	c.drop(hsms.ErrConnClosed)
	c.t5.stop()
	c.t3.stop()
}
