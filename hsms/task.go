package hsms

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/justinfuerth/hsms/logger"
)

// ErrTaskManagerStopped is returned when a task is started after Stop and before Wait renews the run.
var ErrTaskManagerStopped = errors.New("task manager stopped")

// TaskFunc is one step of a task loop. Returning false ends the task.
type TaskFunc func() bool

// TaskRecvFunc reads one block from a socket.
// lenBuf is a LengthFieldSize buffer reused between calls. Returning false ends the task.
type TaskRecvFunc func(ctx context.Context, lenBuf []byte) bool

// TaskMsgFunc writes one queued message to a socket. Returning false ends the task.
type TaskMsgFunc func(msg Message) bool

// TaskManager runs the goroutines of one connection run.
//
// Every task ends when Stop is called. Wait blocks until all tasks have returned and then
// renews the run, so the same manager serves the next socket of a reconnecting connection.
//
// Socket tasks also take the socket's failed channel: a receiver or sender ends as soon as
// its socket is torn down, without stopping the other tasks of the manager.
type TaskManager struct {
	pctx      context.Context
	logger    logger.Logger
	wg        sync.WaitGroup
	intervals sync.Map // interval task names of the current run

	mu     sync.RWMutex // guards ctx and cancel
	ctx    context.Context
	cancel context.CancelFunc

	spawnMu sync.RWMutex // Wait excludes new tasks while it drains the WaitGroup
}

// NewTaskManager creates a TaskManager whose runs derive from ctx.
func NewTaskManager(ctx context.Context, l logger.Logger) *TaskManager {
	mgr := &TaskManager{pctx: ctx, logger: l}
	mgr.ctx, mgr.cancel = context.WithCancel(ctx)

	return mgr
}

// Context returns the context of the current run. It is canceled by Stop and replaced by Wait.
func (mgr *TaskManager) Context() context.Context {
	mgr.mu.RLock()
	defer mgr.mu.RUnlock()

	return mgr.ctx
}

// Start runs fn in a loop until it returns false or the run is stopped.
func (mgr *TaskManager) Start(name string, fn TaskFunc) error {
	return mgr.spawn(name, func(ctx context.Context) {
		for ctx.Err() == nil && fn() {
		}
	})
}

// StartReceiver runs fn in a loop until it returns false, failed is closed or the run is stopped.
func (mgr *TaskManager) StartReceiver(name string, failed <-chan struct{}, fn TaskRecvFunc) error {
	return mgr.spawn(name, func(ctx context.Context) {
		lenBuf := make([]byte, LengthFieldSize)
		for {
			select {
			case <-ctx.Done():
				return
			case <-failed:
				return
			default:
			}

			if !fn(ctx, lenBuf) {
				return
			}
		}
	})
}

// StartSender passes the messages of input to fn in order until fn returns false,
// failed is closed or the run is stopped.
func (mgr *TaskManager) StartSender(name string, failed <-chan struct{}, input <-chan Message, fn TaskMsgFunc) error {
	if input == nil {
		return fmt.Errorf("sender %s: input channel is nil", name)
	}

	return mgr.spawn(name, func(ctx context.Context) {
		for {
			select {
			case <-ctx.Done():
				return
			case <-failed:
				return
			case msg, ok := <-input:
				if !ok || !fn(msg) {
					return
				}
			}
		}
	})
}

// StartInterval calls fn every interval until it returns false or the run is stopped.
// Only one interval task of a name runs per run.
func (mgr *TaskManager) StartInterval(name string, fn TaskFunc, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("interval task %s: invalid interval %v", name, interval)
	}

	if _, loaded := mgr.intervals.LoadOrStore(name, struct{}{}); loaded {
		return fmt.Errorf("interval task %s already running", name)
	}

	err := mgr.spawn(name, func(ctx context.Context) {
		defer mgr.intervals.Delete(name)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if !fn() {
					return
				}
			}
		}
	})
	if err != nil {
		mgr.intervals.Delete(name)
	}

	return err
}

// Stop ends every task of the current run.
func (mgr *TaskManager) Stop() {
	mgr.mu.RLock()
	defer mgr.mu.RUnlock()

	mgr.cancel()
}

// Wait blocks until every task has returned, then starts a new run.
func (mgr *TaskManager) Wait() {
	mgr.spawnMu.Lock()
	defer mgr.spawnMu.Unlock()

	mgr.wg.Wait()

	mgr.mu.Lock()
	mgr.cancel()
	mgr.ctx, mgr.cancel = context.WithCancel(mgr.pctx)
	mgr.mu.Unlock()
}

func (mgr *TaskManager) spawn(name string, body func(ctx context.Context)) error {
	mgr.spawnMu.RLock()
	defer mgr.spawnMu.RUnlock()

	ctx := mgr.Context()
	if ctx.Err() != nil {
		return fmt.Errorf("start %s: %w", name, ErrTaskManagerStopped)
	}

	mgr.logger.Debug("start task", "name", name)
	mgr.wg.Add(1)

	go func() {
		defer mgr.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				mgr.logger.Error("panic in task", "name", name, "panic", r)
			}
			mgr.logger.Debug("task terminated", "name", name)
		}()

		body(ctx)
	}()

	return nil
}
