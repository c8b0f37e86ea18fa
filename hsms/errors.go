package hsms

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidStreamCode indicates that an invalid stream code was provided.
	// Valid stream codes are in the range of 0 to 127.
	ErrInvalidStreamCode = errors.New("invalid stream code, should be in range of [0, 127]")

	// ErrInvalidItem indicates that a data message was built with a nil item or an item carrying an error.
	ErrInvalidItem = errors.New("invalid data item")

	// ErrInvalidReqMsg indicates that the message is not a valid request/primary message.
	ErrInvalidReqMsg = errors.New("message is not a valid request/primary message")

	// ErrInvalidHeaderLength indicates a header that is not 10 bytes long.
	ErrInvalidHeaderLength = errors.New("invalid header length, should be 10 bytes")

	// ErrInvalidTimer indicates a timer duration outside of its allowed range.
	ErrInvalidTimer = errors.New("invalid timer duration")

	// ErrMessageTooLarge indicates that a message would encode to a block longer than MaxMessageSize.
	ErrMessageTooLarge = errors.New("message exceeds maximum block size")
)

// ErrDecode wraps every failure to decode bytes received from the wire.
var ErrDecode = errors.New("hsms decode error")

var (
	// ErrConnClosed indicates that the connection is closed.
	ErrConnClosed = errors.New("connection closed")

	// ErrSelectFailed indicates that the remote answered select.req with a non-zero status.
	ErrSelectFailed = errors.New("select failed")

	// ErrInvalidTransition is returned when an attempt is made to transition the connection
	// state to an invalid state.
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrNotSelectedState indicates that the current connection state is not the selected state.
	ErrNotSelectedState = errors.New("current state is not the selected state")
)

var (
	// ErrT3Timeout indicates that a T3 timeout has occurred.
	// This occurs when a reply message is not received within the T3 timeout period after sending a primary message.
	ErrT3Timeout = errors.New("T3 timeout")

	// ErrT5Timeout indicates that a T5 timeout has occurred.
	// This occurs when the connect separation time (T5) has elapsed.
	ErrT5Timeout = errors.New("T5 timeout")

	// ErrT6Timeout indicates that a T6 timeout has occurred.
	// This occurs when a reply to a control message is not received within the T6 timeout period.
	ErrT6Timeout = errors.New("T6 timeout")

	// ErrT7Timeout indicates that a T7 timeout has occurred.
	// This occurs when the connection fails to transition to the Selected state within the T7 timeout period.
	ErrT7Timeout = errors.New("T7 timeout")

	// ErrT8Timeout indicates that a T8 timeout has occurred.
	// This occurs when no byte is received from the network within the T8 timeout period.
	ErrT8Timeout = errors.New("T8 timeout")
)

// RejectError is the error of a transaction that the remote answered with reject.req.
type RejectError struct {
	Reason RejectReason
}

func (e *RejectError) Error() string {
	return fmt.Sprintf("message rejected by remote: %s", e.Reason)
}
