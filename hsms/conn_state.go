package hsms

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/looplab/fsm"

	"github.com/justinfuerth/hsms/logger"
)

// ConnState represents the various stages of an HSMS connection.
type ConnState uint32

// HSMS connection states representing the various stages of an HSMS connection.
const (
	// NotConnectedState indicates that there is no TCP connection and no attempt in progress.
	NotConnectedState ConnState = iota
	// ConnectingState indicates that an active connection is dialing the remote.
	ConnectingState
	// ListeningState indicates that a passive connection is waiting for the remote to connect.
	ListeningState
	// NotSelectedState indicates that the TCP connection is established, but not yet ready for data exchange.
	NotSelectedState
	// SelectedState indicates that the HSMS connection is established and ready for data exchange.
	SelectedState
)

var connStateNames = map[ConnState]string{
	NotConnectedState: "not-connected",
	ConnectingState:   "connecting",
	ListeningState:    "listening",
	NotSelectedState:  "not-selected",
	SelectedState:     "selected",
}

var connStateByName = func() map[string]ConnState {
	m := make(map[string]ConnState, len(connStateNames))
	for state, name := range connStateNames {
		m[name] = state
	}

	return m
}()

// String returns string representation of the current state.
func (cs ConnState) String() string {
	if name, ok := connStateNames[cs]; ok {
		return name
	}

	return "unknown"
}

// IsNotConnected returns if the current state is not connected.
func (cs ConnState) IsNotConnected() bool { return cs == NotConnectedState }

// IsNotSelected returns if the current state is not selected.
func (cs ConnState) IsNotSelected() bool { return cs == NotSelectedState }

// IsSelected returns if the current state is selected.
func (cs ConnState) IsSelected() bool { return cs == SelectedState }

// IsConnected reports whether a TCP connection is established.
func (cs ConnState) IsConnected() bool { return cs == NotSelectedState || cs == SelectedState }

const (
	eventConnect   = "connect"
	eventListen    = "listen"
	eventConnected = "connected"
	eventSelect    = "select"
	eventDrop      = "drop"
)

// ConnStateChangeHandler is invoked after the connection state changes.
//
// Note: the handler is invoked synchronously by the goroutine that requested the transition
// and must not request another transition.
type ConnStateChangeHandler func(prevState ConnState, newState ConnState)

// ConnStateMgr manages the connection state of an HSMS connection.
//
// The transitions are declared on a github.com/looplab/fsm state machine:
//
//	not-connected --connect--> connecting --connected--> not-selected --select--> selected
//	not-connected --listen---> listening  --connected--> not-selected
//	any other state --drop--> not-connected
//
// The current state is mirrored in an atomic so State never blocks.
type ConnStateMgr struct {
	mu       sync.Mutex
	cond     *sync.Cond
	state    atomic.Uint32
	machine  *fsm.FSM
	logger   logger.Logger
	handlers []ConnStateChangeHandler
}

// NewConnStateMgr creates a new ConnStateMgr in NotConnectedState.
func NewConnStateMgr(l logger.Logger, handlers ...ConnStateChangeHandler) *ConnStateMgr {
	if l == nil {
		l = logger.GetLogger()
	}

	cs := &ConnStateMgr{
		logger:   l,
		handlers: make([]ConnStateChangeHandler, 0, len(handlers)),
	}
	cs.cond = sync.NewCond(&cs.mu)
	cs.state.Store(uint32(NotConnectedState))

	cs.machine = fsm.NewFSM(
		NotConnectedState.String(),
		fsm.Events{
			{Name: eventConnect, Src: []string{NotConnectedState.String()}, Dst: ConnectingState.String()},
			{Name: eventListen, Src: []string{NotConnectedState.String()}, Dst: ListeningState.String()},
			{
				Name: eventConnected,
				Src:  []string{ConnectingState.String(), ListeningState.String()},
				Dst:  NotSelectedState.String(),
			},
			{Name: eventSelect, Src: []string{NotSelectedState.String()}, Dst: SelectedState.String()},
			{
				Name: eventDrop,
				Src: []string{
					ConnectingState.String(), ListeningState.String(),
					NotSelectedState.String(), SelectedState.String(),
				},
				Dst: NotConnectedState.String(),
			},
		},
		fsm.Callbacks{
			"enter_state": cs.enterState,
		},
	)

	cs.AddHandler(handlers...)

	return cs
}

// State returns the current connection state.
func (cs *ConnStateMgr) State() ConnState {
	return ConnState(cs.state.Load())
}

// AddHandler adds one or more ConnStateChangeHandler functions to be invoked on state changes.
func (cs *ConnStateMgr) AddHandler(handlers ...ConnStateChangeHandler) {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	for _, handler := range handlers {
		if handler != nil {
			cs.handlers = append(cs.handlers, handler)
		}
	}
}

// WaitState waits for the connection state to reach the specified state or until the context is done.
// It returns nil if the desired state is reached, or an error if the context is canceled or times out.
func (cs *ConnStateMgr) WaitState(ctx context.Context, state ConnState) error {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	if cs.State() == state {
		return nil
	}

	stopFunc := context.AfterFunc(ctx, func() {
		cs.mu.Lock()
		defer cs.mu.Unlock()
		cs.cond.Broadcast()
	})
	defer stopFunc()

	for cs.State() != state {
		if err := ctx.Err(); err != nil {
			return err
		}
		cs.cond.Wait()
	}

	return nil
}

// ToConnecting transitions NotConnectedState to ConnectingState.
func (cs *ConnStateMgr) ToConnecting() error { return cs.fire(eventConnect) }

// ToListening transitions NotConnectedState to ListeningState.
func (cs *ConnStateMgr) ToListening() error { return cs.fire(eventListen) }

// ToNotSelected transitions ConnectingState or ListeningState to NotSelectedState.
func (cs *ConnStateMgr) ToNotSelected() error { return cs.fire(eventConnected) }

// ToSelected transitions NotSelectedState to SelectedState.
func (cs *ConnStateMgr) ToSelected() error { return cs.fire(eventSelect) }

// ToNotConnected transitions any state to NotConnectedState.
// It reports whether a transition happened, false when the state already was NotConnectedState.
func (cs *ConnStateMgr) ToNotConnected() bool {
	return cs.fire(eventDrop) == nil
}

// IsNotConnected returns if the current state is not connected.
func (cs *ConnStateMgr) IsNotConnected() bool { return cs.State().IsNotConnected() }

// IsNotSelected returns if the current state is not selected.
func (cs *ConnStateMgr) IsNotSelected() bool { return cs.State().IsNotSelected() }

// IsSelected returns if the current state is selected.
func (cs *ConnStateMgr) IsSelected() bool { return cs.State().IsSelected() }

func (cs *ConnStateMgr) fire(event string) error {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	prevState := cs.State()
	err := cs.machine.Event(context.Background(), event)
	if err == nil {
		return nil
	}

	var invalidEvent fsm.InvalidEventError
	if errors.As(err, &invalidEvent) {
		return fmt.Errorf("%w: %s in state %s", ErrInvalidTransition, event, prevState)
	}

	return fmt.Errorf("%w: %s in state %s: %w", ErrInvalidTransition, event, prevState, err)
}

// enterState runs inside machine.Event while cs.mu is held.
func (cs *ConnStateMgr) enterState(_ context.Context, e *fsm.Event) {
	prevState := connStateByName[e.Src]
	newState := connStateByName[e.Dst]

	cs.state.Store(uint32(newState))
	cs.cond.Broadcast()

	cs.logger.Debug("connection state changed", "prev_state", prevState, "new_state", newState, "event", e.Event)

	for _, handler := range cs.handlers {
		handler(prevState, newState)
	}
}
