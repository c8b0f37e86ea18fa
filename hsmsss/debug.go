package hsmsss

import "sync/atomic"

// DebugHooks holds fault-injection toggles for tests. They are off by default and can be
// flipped at any time.
type DebugHooks struct {
	// SuppressSelectReq stops an active connection from sending select.req after connecting,
	// so the local T7 expires.
	SuppressSelectReq atomic.Bool
	// SuppressLinkTestRsp stops the connection from answering linktest.req, so the remote T6 expires.
	SuppressLinkTestRsp atomic.Bool
}
