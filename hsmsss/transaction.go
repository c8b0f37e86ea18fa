package hsmsss

import (
	"context"
	"sync"
	"time"

	"github.com/justinfuerth/hsms/hsms"
)

// Transaction is the pending reply of a sent primary message.
//
// It is resolved exactly once: with the reply, or with an error when T3 expires
// (hsms.ErrT3Timeout), the remote rejects the message (*hsms.RejectError) or the
// connection drops (hsms.ErrConnClosed).
type Transaction struct {
	msg      *hsms.DataMessage
	deadline time.Time

	once  sync.Once
	done  chan struct{}
	reply *hsms.DataMessage
	err   error
}

func newTransaction(msg *hsms.DataMessage, deadline time.Time) *Transaction {
	return &Transaction{
		msg:      msg,
		deadline: deadline,
		done:     make(chan struct{}),
	}
}

// Message returns the primary message.
func (tx *Transaction) Message() *hsms.DataMessage { return tx.msg }

// Context returns the context (system bytes) the reply is matched on.
func (tx *Transaction) Context() uint32 { return tx.msg.Context() }

// Done returns a channel that is closed once the transaction is resolved.
func (tx *Transaction) Done() <-chan struct{} { return tx.done }

// Wait blocks until the transaction is resolved or ctx is done.
func (tx *Transaction) Wait(ctx context.Context) (*hsms.DataMessage, error) {
	select {
	case <-tx.done:
		return tx.reply, tx.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Reply returns the reply, or nil while pending or on failure.
func (tx *Transaction) Reply() *hsms.DataMessage {
	select {
	case <-tx.done:
		return tx.reply
	default:
		return nil
	}
}

// Err returns the failure, or nil while pending or on success.
func (tx *Transaction) Err() error {
	select {
	case <-tx.done:
		return tx.err
	default:
		return nil
	}
}

// resolve settles the transaction and returns the message's complete callback bound to the
// outcome, or nil when there is none or the transaction was already settled.
func (tx *Transaction) resolve(reply *hsms.DataMessage, err error) func() {
	var cb func()
	tx.once.Do(func() {
		tx.reply, tx.err = reply, err
		close(tx.done)

		if complete := tx.msg.Complete(); complete != nil {
			cb = func() { complete(reply, err) }
		}
	})

	return cb
}
