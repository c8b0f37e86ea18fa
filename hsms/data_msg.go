package hsms

import (
	"encoding/binary"
	"fmt"
	"strings"
	"time"

	"github.com/justinfuerth/hsms/internal/util"
	"github.com/justinfuerth/hsms/secs2"
)

// CompleteFunc is invoked once when the transaction of a primary message ends:
// with the reply, or with a nil reply and the error that ended it
// (ErrT3Timeout, ErrConnClosed or a *RejectError).
type CompleteFunc func(reply *DataMessage, err error)

// DataMessage is an HSMS data message carrying a sequence of SECS-II items.
//
// Description, Time and Complete are local and never transmitted.
type DataMessage struct {
	device        uint16
	stream        uint8
	function      uint8
	context       uint32
	replyExpected bool
	items         []*secs2.Item
	description   string
	time          time.Time
	complete      CompleteFunc
}

var _ Message = (*DataMessage)(nil)

// Kind returns KindData.
func (msg *DataMessage) Kind() Kind { return KindData }

// Device returns the device id (session id).
func (msg *DataMessage) Device() uint16 { return msg.device }

// Stream returns the stream code without the W-bit.
func (msg *DataMessage) Stream() uint8 { return msg.stream }

// Func returns the function code.
func (msg *DataMessage) Func() uint8 { return msg.function }

// Context returns the system bytes that pair a primary message with its reply.
func (msg *DataMessage) Context() uint32 { return msg.context }

// ReplyExpected reports whether the W-bit is set.
func (msg *DataMessage) ReplyExpected() bool { return msg.replyExpected }

// Items returns the top-level items of the message.
func (msg *DataMessage) Items() []*secs2.Item {
	return util.CloneSlice(msg.items, 0)
}

// Item returns the i-th top-level item, or nil if i is out of range.
func (msg *DataMessage) Item(i int) *secs2.Item {
	if i < 0 || i >= len(msg.items) {
		return nil
	}

	return msg.items[i]
}

// Description returns the local description of the message.
func (msg *DataMessage) Description() string { return msg.description }

// Time returns when the message was built or decoded.
func (msg *DataMessage) Time() time.Time { return msg.time }

// Complete returns the completion callback, nil for replies and messages without reply.
func (msg *DataMessage) Complete() CompleteFunc { return msg.complete }

// IsPrimary reports whether the function code is odd.
func (msg *DataMessage) IsPrimary() bool { return msg.function%2 == 1 }

// SF returns the "SxFy" notation of the message.
func (msg *DataMessage) SF() string {
	return fmt.Sprintf("S%dF%d", msg.stream, msg.function)
}

// Header returns a fresh copy of the 10-byte message header.
func (msg *DataMessage) Header() []byte {
	header := make([]byte, HeaderSize)
	binary.BigEndian.PutUint16(header[0:2], msg.device)
	header[2] = msg.stream
	if msg.replyExpected {
		header[2] |= 0x80
	}
	header[3] = msg.function
	header[4] = 0
	header[5] = byte(KindData)
	binary.BigEndian.PutUint32(header[6:10], msg.context)

	return header
}

// ToBytes returns the complete block: length field, header and items.
func (msg *DataMessage) ToBytes() []byte {
	return Encode(msg)
}

// Size returns the block length written to the length field: the header plus the encoded items.
func (msg *DataMessage) Size() int {
	size := HeaderSize
	for _, item := range msg.items {
		size += item.EncodedLen()
	}

	return size
}

// String renders the header line followed by the item tree, e.g.
//
//	S1F1 W device=1 context=1 "are you there"
//	  I1<3> temp [87,12,54]
func (msg *DataMessage) String() string {
	var sb strings.Builder
	sb.WriteString(msg.SF())
	if msg.replyExpected {
		sb.WriteString(" W")
	}
	fmt.Fprintf(&sb, " device=%d context=%d", msg.device, msg.context)
	if msg.description != "" {
		fmt.Fprintf(&sb, " %q", msg.description)
	}

	for _, item := range msg.items {
		sb.WriteByte('\n')
		sb.WriteString(item.ToString("  "))
	}

	return sb.String()
}

// DataMessageBuilder builds immutable data messages.
//
// Reply expected defaults to true. If the stream or function was set but the context was not,
// Build assigns a random non-zero context, otherwise the context defaults to 0.
type DataMessageBuilder struct {
	msg        DataMessage
	contextSet bool
	sfSet      bool
	err        error
}

// NewDataMessageBuilder creates a builder with reply expected set.
func NewDataMessageBuilder() *DataMessageBuilder {
	return &DataMessageBuilder{msg: DataMessage{replyExpected: true}}
}

// SetDevice sets the device id (session id).
func (b *DataMessageBuilder) SetDevice(device uint16) *DataMessageBuilder {
	b.msg.device = device
	return b
}

// SetStream sets the stream code, which must be in [0, 127].
func (b *DataMessageBuilder) SetStream(stream uint8) *DataMessageBuilder {
	if stream > 127 {
		b.setErr(fmt.Errorf("%w: %d", ErrInvalidStreamCode, stream))
		return b
	}
	b.msg.stream = stream
	b.sfSet = true

	return b
}

// SetFunc sets the function code. Odd codes are primary messages, even codes replies.
func (b *DataMessageBuilder) SetFunc(function uint8) *DataMessageBuilder {
	b.msg.function = function
	b.sfSet = true

	return b
}

// SetContext sets the system bytes. Without it Build generates one, see DataMessageBuilder.
func (b *DataMessageBuilder) SetContext(context uint32) *DataMessageBuilder {
	b.msg.context = context
	b.contextSet = true

	return b
}

// SetReplyExpected sets the W-bit.
func (b *DataMessageBuilder) SetReplyExpected(replyExpected bool) *DataMessageBuilder {
	b.msg.replyExpected = replyExpected
	return b
}

// SetItems replaces the items of the message. Nil items and items carrying an error fail Build.
func (b *DataMessageBuilder) SetItems(items ...*secs2.Item) *DataMessageBuilder {
	b.msg.items = util.CloneSlice(items, 0)
	return b
}

// SetDescription sets a local description that is never transmitted.
func (b *DataMessageBuilder) SetDescription(description string) *DataMessageBuilder {
	b.msg.description = description
	return b
}

// SetComplete sets the completion callback. It is dropped by Build when no reply is
// expected or the function code is even.
func (b *DataMessageBuilder) SetComplete(complete CompleteFunc) *DataMessageBuilder {
	b.msg.complete = complete
	return b
}

// Err returns the first error recorded by a setter.
func (b *DataMessageBuilder) Err() error { return b.err }

func (b *DataMessageBuilder) setErr(err error) {
	if b.err == nil {
		b.err = err
	}
}

// Build validates the fields and returns a new message. The builder can be reused.
func (b *DataMessageBuilder) Build() (*DataMessage, error) {
	if b.err != nil {
		return nil, b.err
	}

	for i, item := range b.msg.items {
		if item == nil {
			return nil, fmt.Errorf("%w: item %d is nil", ErrInvalidItem, i)
		}
		if err := item.Error(); err != nil {
			return nil, fmt.Errorf("%w: item %d: %w", ErrInvalidItem, i, err)
		}
	}

	msg := b.msg
	msg.items = util.CloneSlice(b.msg.items, 0)
	msg.time = time.Now()

	if !b.contextSet && b.sfSet {
		msg.context = GenerateContext()
	}

	if !msg.replyExpected || msg.function%2 == 0 {
		msg.complete = nil
	}

	return &msg, nil
}

// NewReply creates the secondary message of primary: same device, stream and context,
// function code plus one and no reply expected.
func NewReply(primary *DataMessage, items ...*secs2.Item) (*DataMessage, error) {
	if primary == nil || !primary.IsPrimary() || primary.function == 255 {
		return nil, ErrInvalidReqMsg
	}

	return NewDataMessageBuilder().
		SetDevice(primary.device).
		SetStream(primary.stream).
		SetFunc(primary.function + 1).
		SetContext(primary.context).
		SetReplyExpected(false).
		SetItems(items...).
		Build()
}

// newDecodedDataMessage creates a message from a decoded header and items.
func newDecodedDataMessage(header []byte, items []*secs2.Item) *DataMessage {
	return &DataMessage{
		device:        binary.BigEndian.Uint16(header[0:2]),
		stream:        header[2] & 0x7F,
		function:      header[3],
		context:       binary.BigEndian.Uint32(header[6:10]),
		replyExpected: header[2]&0x80 != 0,
		items:         items,
		time:          time.Now(),
	}
}
