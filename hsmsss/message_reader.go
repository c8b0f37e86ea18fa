package hsmsss

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"github.com/justinfuerth/hsms/hsms"
)

// inactivityReader pushes the read deadline of conn T8 into the future before every read,
// so any inbound byte resets T8.
type inactivityReader struct {
	conn      net.Conn
	t8Timeout time.Duration
}

func (r *inactivityReader) Read(p []byte) (int, error) {
	if err := r.conn.SetReadDeadline(time.Now().Add(r.t8Timeout)); err != nil {
		return 0, err
	}

	return r.conn.Read(p)
}

// messageReader reads and decodes individual HSMS messages from a net.Conn.
//
// It implements the HSMS message framing:
//  1. Read the 4-byte big-endian message length
//  2. Validate length (at least a header, at most hsms.MaxMessageSize)
//  3. Read the message payload
//  4. Decode via hsms.DecodeMessage
//
// Every read is bounded by T8. A T8 expiry is reported as hsms.ErrT8Timeout.
//
// messageReader is NOT goroutine-safe. The caller must ensure that only one
// ReadMessage call is active at a time, consistent with the single-receiver
// design of an HSMS connection.
type messageReader struct {
	r inactivityReader
}

func newMessageReader(conn net.Conn, t8Timeout time.Duration) *messageReader {
	return &messageReader{r: inactivityReader{conn: conn, t8Timeout: t8Timeout}}
}

// ReadMessage reads one complete HSMS message.
//
// lenBuf must be a 4-byte scratch buffer reused across calls. It holds the
// length field after the call.
//
// When decoding fails, rawBody is still returned to allow logging of the malformed payload.
func (mr *messageReader) ReadMessage(lenBuf []byte) (msg hsms.Message, rawBody []byte, err error) {
	if _, err = io.ReadFull(&mr.r, lenBuf); err != nil {
		return nil, nil, mr.wrapReadErr("read message length", err)
	}

	msgLen := binary.BigEndian.Uint32(lenBuf)

	if msgLen < hsms.HeaderSize {
		return nil, nil, fmt.Errorf("%w: message length %d is shorter than the header", hsms.ErrDecode, msgLen)
	}

	if msgLen > hsms.MaxMessageSize {
		return nil, nil, fmt.Errorf("%w: message length %d exceeds maximum %d", hsms.ErrDecode, msgLen, hsms.MaxMessageSize)
	}

	rawBody = make([]byte, msgLen)

	if _, err = io.ReadFull(&mr.r, rawBody); err != nil {
		return nil, nil, mr.wrapReadErr("read message payload", err)
	}

	msg, err = hsms.DecodeMessage(msgLen, rawBody)
	if err != nil {
		return nil, rawBody, fmt.Errorf("decode message: %w", err)
	}

	return msg, rawBody, nil
}

func (mr *messageReader) wrapReadErr(op string, err error) error {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return fmt.Errorf("%s: %w: no data for %v", op, hsms.ErrT8Timeout, mr.r.t8Timeout)
	}

	return fmt.Errorf("%s: %w", op, err)
}

// isNetError reports whether err comes from the socket rather than from malformed data.
func isNetError(err error) bool {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, net.ErrClosed) {
		return true
	}

	var netErr net.Error

	return errors.As(err, &netErr)
}
