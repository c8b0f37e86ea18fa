package hsmsss

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/justinfuerth/hsms/hsms"
	"github.com/justinfuerth/hsms/internal/pool"
	"github.com/justinfuerth/hsms/logger"
)

// Connection represents an HSMS-SS (Single Session) connection.
// It manages the communication with a remote HSMS device, handling message exchange, connection state
// transitions and the HSMS timers.
//
// Every protocol decision of a Connection is taken by a single dispatch goroutine: socket reads,
// timer expiries, Send and Stop requests all reach it over channels. The socket reader, the socket
// writer and the connect/accept loop run in their own goroutines and never touch protocol state.
//
// Events are delivered in order on the channel returned by Events. The channel outlives
// Start/Stop cycles and is closed by Close. Complete callbacks run on a goroutine of their
// own, so an unread event channel never delays them.
type Connection struct {
	id     string
	cfg    *ConnectionConfig
	logger logger.Logger

	mu        sync.Mutex // guards the fields below up to stateMgr
	running   bool
	closed    bool
	runMgr    *hsms.TaskManager // dispatch and connect/accept goroutines, from Start to Stop
	runCtx    context.Context
	sockMgr   *hsms.TaskManager // reader, writer and linktest goroutines of the current socket
	listener  net.Listener      // passive mode only
	stopAfter func() bool

	stateMgr  *hsms.ConnStateMgr
	pump      *eventPump
	callbacks *callbackRunner
	pending   *xsync.MapOf[uint32, *Transaction]
	metrics   ConnectionMetrics
	debug     DebugHooks

	cmdCh        chan command
	connCh       chan connResult
	inboundCh    chan inbound
	linktestTick chan struct{}
	dialReq      chan struct{}
	acceptReady  chan struct{}

	// owned by the dispatch goroutine
	sock        *socket
	selectCtx   uint32
	linktestCtx uint32
	stopping    bool
	tornDown    bool
	t3          loopTimer
	t5          loopTimer
	t6          loopTimer
	t7          loopTimer
}

// command is a request to the dispatch goroutine: a data message to send, or a stop request
// when msg is nil.
type command struct {
	msg    *hsms.DataMessage
	result chan sendResult
}

type sendResult struct {
	tx  *Transaction
	err error
}

type connResult struct {
	conn net.Conn
	err  error
}

type inbound struct {
	sock *socket
	msg  hsms.Message
}

// socket is one TCP connection. fail records the first error and closes the connection,
// which unblocks the reader and writer goroutines.
type socket struct {
	conn     net.Conn
	sendCh   chan hsms.Message
	failed   chan struct{}
	failOnce sync.Once
	err      error
}

func newSocket(conn net.Conn, queueSize int) *socket {
	return &socket{
		conn:   conn,
		sendCh: make(chan hsms.Message, queueSize),
		failed: make(chan struct{}),
	}
}

func (s *socket) fail(err error) {
	s.failOnce.Do(func() {
		s.err = err
		close(s.failed)
		_ = s.conn.Close()
	})
}

// flushedMsg is a message whose done channel the writer closes once it was written.
type flushedMsg struct {
	hsms.Message
	done chan struct{}
}

// NewConnection creates a new HSMS-SS Connection with the given configuration.
// The connection does nothing until Start is called.
func NewConnection(cfg *ConnectionConfig) (*Connection, error) {
	if cfg == nil {
		return nil, ErrConnConfigNil
	}

	mode := "passive"
	if cfg.IsActive() {
		mode = "active"
	}

	id := uuid.NewString()
	l := cfg.Logger().With("conn_id", id, "mode", mode, "address", cfg.Address())

	conn := &Connection{
		id:           id,
		cfg:          cfg,
		logger:       l,
		stateMgr:     hsms.NewConnStateMgr(l),
		pump:         newEventPump(cfg.EventQueueSize()),
		callbacks:    newCallbackRunner(l),
		pending:      xsync.NewMapOf[uint32, *Transaction](),
		cmdCh:        make(chan command),
		connCh:       make(chan connResult),
		inboundCh:    make(chan inbound),
		linktestTick: make(chan struct{}, 1),
		dialReq:      make(chan struct{}, 1),
		acceptReady:  make(chan struct{}, 1),
	}

	return conn, nil
}

// ID returns the unique id of the connection instance.
func (c *Connection) ID() string { return c.id }

// Config returns the connection configuration.
func (c *Connection) Config() *ConnectionConfig { return c.cfg }

// GetLogger returns the connection logger, which carries the conn_id, mode and address fields.
func (c *Connection) GetLogger() logger.Logger { return c.logger }

// Metrics returns the connection metrics.
func (c *Connection) Metrics() *ConnectionMetrics { return &c.metrics }

// Debug returns the fault-injection toggles of the connection.
func (c *Connection) Debug() *DebugHooks { return &c.debug }

// State returns the current connection state.
func (c *Connection) State() hsms.ConnState { return c.stateMgr.State() }

// WaitState blocks until the connection enters state or ctx is done.
func (c *Connection) WaitState(ctx context.Context, state hsms.ConnState) error {
	return c.stateMgr.WaitState(ctx, state)
}

// AddStateChangeHandler registers handlers invoked after every state change.
// Handlers run on the goroutine that changed the state and must not block.
func (c *Connection) AddStateChangeHandler(handlers ...hsms.ConnStateChangeHandler) {
	c.stateMgr.AddHandler(handlers...)
}

// Events returns the ordered event channel of the connection. It is closed by Close.
func (c *Connection) Events() <-chan Event { return c.pump.events() }

// Pending returns the number of transactions waiting for a reply.
func (c *Connection) Pending() int { return c.pending.Size() }

// UpdateConfigOptions applies options that can be changed at runtime, such as the timers.
// It fails on the first option that can't be changed at runtime or is invalid.
func (c *Connection) UpdateConfigOptions(opts ...ConnOption) error {
	c.cfg.mu.Lock()
	defer c.cfg.mu.Unlock()

	for _, opt := range opts {
		connOpt, ok := opt.(*connOptFunc)
		if !ok {
			return errors.New("invalid ConnOption type")
		}

		if !connOpt.runtime {
			return fmt.Errorf("option %s can't be changed at runtime", connOpt.name)
		}

		if err := opt.apply(c.cfg); err != nil {
			return err
		}
	}

	return nil
}

// Start starts the connection.
//
// In active mode it connects to the remote right away and retries every T5 after a failure.
// In passive mode it listens on the configured address and returns the listen error, if any.
//
// Start returns immediately; watch Events or use WaitState to learn when the connection is selected.
// Calling Start on a running connection does nothing. Canceling ctx stops the connection
// like Stop, without sending separate.req.
func (c *Connection) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return hsms.ErrConnClosed
	}

	if c.running {
		return nil
	}

	c.drainSignals()

	c.runMgr = hsms.NewTaskManager(ctx, c.logger)
	c.runCtx = c.runMgr.Context()
	c.sockMgr = hsms.NewTaskManager(c.runCtx, c.logger)
	c.stopping = false
	c.tornDown = false

	if err := c.startTasks(ctx); err != nil {
		if c.listener != nil {
			_ = c.listener.Close()
			c.listener = nil
		}
		c.runMgr.Stop()
		c.runMgr.Wait()
		c.stateMgr.ToNotConnected()

		return err
	}

	c.stopAfter = context.AfterFunc(ctx, func() { _ = c.Stop() })
	c.running = true

	c.logger.Info("connection started")

	return nil
}

func (c *Connection) startTasks(ctx context.Context) error {
	if c.cfg.IsActive() {
		if err := c.runMgr.Start("connector", c.connectorTask); err != nil {
			return err
		}
		c.connect()
	} else {
		ln, err := c.listen(ctx)
		if err != nil {
			return err
		}
		c.listener = ln

		if err := c.runMgr.Start("acceptor", c.acceptorTask(ln)); err != nil {
			return err
		}
		c.relisten()
	}

	return c.runMgr.Start("dispatch", c.dispatch)
}

// Stop stops the connection gracefully.
//
// When selected it sends separate.req first. Every pending transaction fails with
// hsms.ErrConnClosed and every complete callback has run before Stop returns. A dropped event
// is emitted if a socket was open.
// The teardown is bounded by the close connection timeout; an error is returned when it
// was exceeded. Calling Stop on a stopped connection does nothing.
func (c *Connection) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running {
		return nil
	}
	c.running = false

	if c.stopAfter != nil {
		c.stopAfter()
		c.stopAfter = nil
	}

	timeout := c.cfg.CloseConnTimeout()
	runCtx := c.runCtx

	stopped := pool.Within(timeout, func() {
		cmd := command{result: make(chan sendResult, 1)}
		select {
		case c.cmdCh <- cmd:
			<-cmd.result
		case <-runCtx.Done():
		}
	})

	if c.listener != nil {
		_ = c.listener.Close()
		c.listener = nil
	}

	c.runMgr.Stop()
	if !pool.Within(timeout, c.runMgr.Wait) {
		c.logger.Error("close timeout", "method", "Stop", "timeout", timeout)
		return fmt.Errorf("stop timed out after %v", timeout)
	}

	// the dispatch goroutine has exited; finish its teardown when it was canceled before
	if !c.tornDown {
		c.teardown(false)
	}

	if !stopped {
		c.logger.Warn("dispatch did not handle stop in time", "timeout", timeout)
	}

	if !pool.Within(timeout, func() { <-c.callbacks.flushed() }) {
		c.logger.Error("complete callbacks did not finish", "method", "Stop", "timeout", timeout)
		return fmt.Errorf("complete callbacks did not finish within %v", timeout)
	}

	c.logger.Info("connection stopped")

	return nil
}

// Close stops the connection like Stop and closes the event channel.
// Queued events that were not read are discarded. A closed connection cannot be started again.
func (c *Connection) Close() error {
	err := c.Stop()

	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	c.pump.close()

	return err
}

// Send sends a data message.
//
// When the message expects a reply, Send returns a Transaction that resolves with the reply
// or fails after T3. Otherwise the returned Transaction is nil. The message's complete
// callback, if any, runs once the transaction is resolved.
//
// Send fails with hsms.ErrNotSelectedState when the connection is not selected; messages
// are never queued for a later selection. Messages passed to Send from one goroutine are
// written in call order.
func (c *Connection) Send(msg *hsms.DataMessage) (*Transaction, error) {
	if msg == nil {
		return nil, ErrNilMessage
	}

	if !c.stateMgr.IsSelected() {
		return nil, hsms.ErrNotSelectedState
	}

	c.mu.Lock()
	runCtx := c.runCtx
	running := c.running
	c.mu.Unlock()

	if !running {
		return nil, hsms.ErrNotSelectedState
	}

	cmd := command{msg: msg, result: make(chan sendResult, 1)}
	select {
	case c.cmdCh <- cmd:
	case <-runCtx.Done():
		return nil, hsms.ErrConnClosed
	}

	res := <-cmd.result
	if res.err != nil {
		c.metrics.incDataMsgErrCount()
		c.logger.Debug("failed to send message", hsms.MsgInfo(msg, "error", res.err)...)
	}

	return res.tx, res.err
}

// drainSignals discards what a previous run left in the internal channels.
func (c *Connection) drainSignals() {
	for {
		select {
		case res := <-c.connCh:
			if res.conn != nil {
				_ = res.conn.Close()
			}
		case <-c.inboundCh:
		case <-c.linktestTick:
		case <-c.dialReq:
		case <-c.acceptReady:
		default:
			return
		}
	}
}

// setupSocket starts the reader and writer goroutines of a new TCP connection.
func (c *Connection) setupSocket(conn net.Conn) error {
	sock := newSocket(conn, c.cfg.SenderQueueSize())
	c.sock = sock

	reader := newMessageReader(conn, c.cfg.T8Timeout())
	if err := c.sockMgr.StartReceiver("receiver", sock.failed, c.receiverTask(sock, reader)); err != nil {
		return err
	}

	return c.sockMgr.StartSender("sender", sock.failed, sock.sendCh, c.senderTask(sock))
}

// receiverTask reads messages from sock and hands them to the dispatch goroutine.
func (c *Connection) receiverTask(sock *socket, reader *messageReader) hsms.TaskRecvFunc {
	return func(ctx context.Context, lenBuf []byte) bool {
		msg, rawBody, err := reader.ReadMessage(lenBuf)
		if err != nil {
			switch {
			case errors.Is(err, hsms.ErrT8Timeout):
				c.logger.Debug("network inactivity", "method", "receiverTask", "error", err)
			case errors.Is(err, hsms.ErrDecode):
				c.metrics.incDataMsgErrCount()
				c.logger.Error("failed to decode HSMS message", "method", "receiverTask", "error", err, "size", len(rawBody))
			case isNetError(err):
				c.logger.Debug("socket closed", "method", "receiverTask", "error", err)
			default:
				c.logger.Error("failed to read HSMS message", "method", "receiverTask", "error", err)
			}
			sock.fail(err)

			return false
		}

		select {
		case c.inboundCh <- inbound{sock: sock, msg: msg}:
			return true
		case <-sock.failed:
			return false
		case <-ctx.Done():
			return false
		}
	}
}

// senderTask writes queued messages to sock in order.
func (c *Connection) senderTask(sock *socket) hsms.TaskMsgFunc {
	return func(msg hsms.Message) bool {
		var done chan struct{}
		if fm, ok := msg.(*flushedMsg); ok {
			msg, done = fm.Message, fm.done
		}

		_ = sock.conn.SetWriteDeadline(time.Now().Add(c.cfg.T8Timeout()))
		_, err := sock.conn.Write(hsms.Encode(msg))

		if done != nil {
			close(done)
		}

		if err != nil {
			if msg.Kind() == hsms.KindData {
				c.metrics.incDataMsgErrCount()
			}
			if !isNetError(err) {
				c.logger.Error("failed to send message", hsms.MsgInfo(msg, "method", "senderTask", "error", err)...)
			}
			sock.fail(fmt.Errorf("write %s: %w", msg.Kind(), err))

			return false
		}

		switch msg.Kind() {
		case hsms.KindData:
			c.metrics.incDataMsgSendCount()
		case hsms.KindLinkTestReq:
			c.metrics.incLinktestSendCount()
		}

		c.logger.Debug("message sent", hsms.MsgInfo(msg, "method", "senderTask")...)

		return true
	}
}
