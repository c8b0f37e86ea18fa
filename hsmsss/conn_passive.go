package hsmsss

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/justinfuerth/hsms/internal/pool"
)

// acceptRetryDelay is the pause after a failed Accept.
const acceptRetryDelay = 100 * time.Millisecond

func (c *Connection) listen(ctx context.Context) (net.Listener, error) {
	address := c.cfg.Address()

	c.logger.Debug("try to listen", "address", address)
	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", address)
	if err != nil {
		c.logger.Error("failed to listen", "address", address, "error", err)
		return nil, err
	}

	c.logger.Debug("listen success", "address", listener.Addr())

	return listener, nil
}

// relisten enters the listening state and lets the acceptor take the next connection.
// Until then further connections wait in the listen backlog.
func (c *Connection) relisten() {
	if err := c.stateMgr.ToListening(); err != nil {
		c.logger.Warn("skip listen", "error", err)
		return
	}

	select {
	case c.acceptReady <- struct{}{}:
	default:
	}
}

// acceptorTask returns the task that accepts one connection per acceptReady signal.
func (c *Connection) acceptorTask(ln net.Listener) func() bool {
	return func() bool {
		ctx := c.runCtx

		select {
		case <-ctx.Done():
			return false
		case <-c.acceptReady:
		}

		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return false
			}
			c.logger.Error("failed to accept connection", "method", "acceptorTask", "error", err)

			t := pool.GetTimer(acceptRetryDelay)
			defer pool.PutTimer(t)
			select {
			case <-ctx.Done():
				return false
			case <-t.C:
			}

			c.acceptReady <- struct{}{}

			return true
		}

		c.logger.Debug("connection accepted", "method", "acceptorTask", "remote_address", conn.RemoteAddr())

		select {
		case c.connCh <- connResult{conn: conn}:
			return true
		case <-ctx.Done():
			_ = conn.Close()
			return false
		}
	}
}
