package hsmsss

import (
	"sync/atomic"
)

// ConnectionMetrics contains atomic metrics for a connection.
// Metrics can be used as the value of a prometheus CounterFunc or GaugeFunc.
type ConnectionMetrics struct {
	// LinktestSendCount indicates the number of linktest requests sent.
	LinktestSendCount atomic.Uint64
	// LinktestRecvCount indicates the number of linktest responses received.
	LinktestRecvCount atomic.Uint64
	// LinktestErrCount indicates the number of linktest requests that hit T6.
	LinktestErrCount atomic.Uint64

	// DataMsgSendCount indicates the number of data messages sent.
	DataMsgSendCount atomic.Uint64
	// DataMsgRecvCount indicates the number of data messages received.
	DataMsgRecvCount atomic.Uint64
	// DataMsgErrCount indicates the number of data messages that failed: write errors,
	// T3 expiries, rejects and transactions failed by a drop.
	DataMsgErrCount atomic.Uint64
	// DataMsgInflightCount indicates the number of transactions waiting for a reply.
	DataMsgInflightCount atomic.Int64

	// TimeoutCount indicates the number of T3, T6, T7 and T8 expiries.
	TimeoutCount atomic.Uint64

	// ConnRetryGauge indicates the number of failed connect attempts since the last success.
	ConnRetryGauge atomic.Uint32
}

func (m *ConnectionMetrics) incLinktestSendCount() {
	m.LinktestSendCount.Add(1)
}

func (m *ConnectionMetrics) incLinktestRecvCount() {
	m.LinktestRecvCount.Add(1)
}

func (m *ConnectionMetrics) incLinktestErrCount() {
	m.LinktestErrCount.Add(1)
}

func (m *ConnectionMetrics) incDataMsgSendCount() {
	m.DataMsgSendCount.Add(1)
}

func (m *ConnectionMetrics) incDataMsgRecvCount() {
	m.DataMsgRecvCount.Add(1)
}

func (m *ConnectionMetrics) incDataMsgErrCount() {
	m.DataMsgErrCount.Add(1)
}

func (m *ConnectionMetrics) incDataMsgInflightCount() {
	m.DataMsgInflightCount.Add(1)
}

func (m *ConnectionMetrics) decDataMsgInflightCount() {
	m.DataMsgInflightCount.Add(-1)
}

func (m *ConnectionMetrics) incTimeoutCount() {
	m.TimeoutCount.Add(1)
}

func (m *ConnectionMetrics) incConnRetryGauge() {
	m.ConnRetryGauge.Add(1)
}

func (m *ConnectionMetrics) resetConnRetryGauge() {
	m.ConnRetryGauge.Store(0)
}
