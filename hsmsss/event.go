package hsmsss

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/justinfuerth/hsms/hsms"
	"github.com/justinfuerth/hsms/internal/queue"
	"github.com/justinfuerth/hsms/logger"
)

// EventKind identifies a connection event.
type EventKind uint8

const (
	// EventEstablished is emitted when the connection enters the selected state.
	EventEstablished EventKind = iota + 1
	// EventDropped is emitted when a connected socket is torn down.
	EventDropped
	// EventTimeout is emitted when T3, T6, T7 or T8 expires.
	EventTimeout
	// EventAlive is emitted when a linktest.rsp answers our linktest.req.
	EventAlive
	// EventRecv is emitted for every received data message.
	EventRecv
)

func (k EventKind) String() string {
	switch k {
	case EventEstablished:
		return "established"
	case EventDropped:
		return "dropped"
	case EventTimeout:
		return "timeout"
	case EventAlive:
		return "alive"
	case EventRecv:
		return "recv"
	default:
		return fmt.Sprintf("EventKind(%d)", uint8(k))
	}
}

// Event is a connection event delivered in order on Connection.Events.
type Event struct {
	Kind EventKind
	// Time is when the event was emitted.
	Time time.Time
	// Timer is the expired timer of an EventTimeout.
	Timer hsms.TimerCode
	// Message is the received data message of an EventRecv, or the unanswered primary
	// message of a T3 EventTimeout.
	Message *hsms.DataMessage
	// Remote is the peer address of an EventEstablished.
	Remote net.Addr
	// Err is the cause of an EventDropped or EventTimeout.
	Err error
}

func (e Event) String() string {
	switch e.Kind {
	case EventTimeout:
		return fmt.Sprintf("timeout %s", e.Timer)
	case EventRecv:
		if e.Message != nil {
			return fmt.Sprintf("recv %s", e.Message.SF())
		}
	case EventDropped:
		if e.Err != nil {
			return fmt.Sprintf("dropped: %v", e.Err)
		}
	}

	return e.Kind.String()
}

// eventPump moves events from the dispatch loop to the event channel in emit order.
// Its queue is unbounded, so emit never blocks; a goroutine runs only while the queue is
// not empty. After close the pump drops queued events and closes the channel.
type eventPump struct {
	mu      sync.Mutex
	queue   queue.Queue[Event]
	running bool
	closed  bool
	out     chan Event
	done    chan struct{}
}

func newEventPump(size int) *eventPump {
	return &eventPump{
		queue: queue.NewSliceQueue[Event](size),
		out:   make(chan Event, size),
		done:  make(chan struct{}),
	}
}

func (p *eventPump) events() <-chan Event { return p.out }

func (p *eventPump) emit(ev Event) {
	ev.Time = time.Now()

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}

	p.queue.Enqueue(ev)
	if !p.running {
		p.running = true
		go p.run()
	}
}

func (p *eventPump) run() {
	for {
		p.mu.Lock()
		if p.closed {
			p.queue.Reset()
			p.running = false
			close(p.out)
			p.mu.Unlock()

			return
		}

		ev, ok := p.queue.Dequeue()
		if !ok {
			p.running = false
			p.mu.Unlock()

			return
		}
		p.mu.Unlock()

		select {
		case p.out <- ev:
		case <-p.done:
		}
	}
}

// close releases a pump goroutine blocked on an unread channel and closes the channel.
func (p *eventPump) close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}
	p.closed = true
	close(p.done)

	// a running pump closes out itself once it sees closed
	if !p.running {
		close(p.out)
	}
}

// callbackRunner runs complete callbacks one at a time in the order they were queued.
// It has its own goroutine, so callbacks never wait for the events to be read.
type callbackRunner struct {
	mu      sync.Mutex
	queue   queue.Queue[func()]
	running bool
	logger  logger.Logger
}

func newCallbackRunner(l logger.Logger) *callbackRunner {
	return &callbackRunner{queue: queue.NewSliceQueue[func()](16), logger: l}
}

func (r *callbackRunner) call(fn func()) {
	if fn == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.queue.Enqueue(fn)
	if !r.running {
		r.running = true
		go r.run()
	}
}

// flushed returns a channel that is closed once every callback queued before has run.
func (r *callbackRunner) flushed() <-chan struct{} {
	done := make(chan struct{})
	r.call(func() { close(done) })

	return done
}

func (r *callbackRunner) run() {
	for {
		r.mu.Lock()
		fn, ok := r.queue.Dequeue()
		if !ok {
			r.running = false
			r.mu.Unlock()

			return
		}
		r.mu.Unlock()

		r.callWithRecover(fn)
	}
}

func (r *callbackRunner) callWithRecover(fn func()) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("panic in complete callback", "panic", rec)
		}
	}()

	fn()
}
