package hsmsss

import (
	"context"
	"net"
	"time"
)

// connect starts a connect attempt. It runs on the dispatch goroutine, or in Start before
// the dispatch goroutine exists.
func (c *Connection) connect() {
	if err := c.stateMgr.ToConnecting(); err != nil {
		c.logger.Warn("skip connect", "error", err)
		return
	}

	select {
	case c.dialReq <- struct{}{}:
	default:
	}
}

// connectorTask dials the remote whenever a connect attempt is requested and hands
// the result to the dispatch goroutine.
func (c *Connection) connectorTask() bool {
	ctx := c.runCtx

	select {
	case <-ctx.Done():
		return false
	case <-c.dialReq:
	}

	conn, err := c.tryConnect(ctx)

	select {
	case c.connCh <- connResult{conn: conn, err: err}:
		return true
	case <-ctx.Done():
		if conn != nil {
			_ = conn.Close()
		}

		return false
	}
}

func (c *Connection) tryConnect(ctx context.Context) (net.Conn, error) {
	dialer := &net.Dialer{KeepAlive: 30 * time.Second}

	dialCtx, cancel := context.WithTimeout(ctx, c.cfg.ConnectRemoteTimeout())
	defer cancel()

	conn, err := dialer.DialContext(dialCtx, "tcp", c.cfg.Address())
	if err != nil {
		return nil, err
	}

	c.logger.Debug("connected to the remote",
		"local_addr", conn.LocalAddr().String(),
		"remote_addr", conn.RemoteAddr().String(),
		"method", "tryConnect",
	)

	return conn, nil
}
