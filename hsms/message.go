package hsms

const (
	// HeaderSize is the size of the HSMS message header in bytes.
	HeaderSize = 10
	// LengthFieldSize is the size of the message length field in bytes.
	LengthFieldSize = 4
	// MinBlockSize is the minimum size of an HSMS block (length field + header).
	MinBlockSize = LengthFieldSize + HeaderSize
	// MaxListDepth is the maximum allowed nesting depth for SECS-II list items.
	MaxListDepth = 64
	// LinkTestDevice is the device id carried by linktest messages.
	LinkTestDevice = 0xFFFF
)

// Kind identifies an HSMS message. The value of a known kind equals its SType header byte.
type Kind uint8

const (
	KindData        Kind = 0 // data message containing SECS-II items
	KindSelectReq   Kind = 1
	KindSelectRsp   Kind = 2
	KindDeselectReq Kind = 3
	KindDeselectRsp Kind = 4
	KindLinkTestReq Kind = 5
	KindLinkTestRsp Kind = 6
	KindRejectReq   Kind = 7
	KindSeparateReq Kind = 9
	// KindUnknown is a block with an unsupported PType or SType.
	KindUnknown Kind = 0xFF
)

var kindNames = map[Kind]string{
	KindData:        "data.msg",
	KindSelectReq:   "select.req",
	KindSelectRsp:   "select.rsp",
	KindDeselectReq: "deselect.req",
	KindDeselectRsp: "deselect.rsp",
	KindLinkTestReq: "linktest.req",
	KindLinkTestRsp: "linktest.rsp",
	KindRejectReq:   "reject.req",
	KindSeparateReq: "separate.req",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}

	return "undefined"
}

// IsValid reports whether k is one of the defined message kinds.
func (k Kind) IsValid() bool {
	_, ok := kindNames[k]
	return ok
}

// IsControl reports whether k is a control message kind.
func (k Kind) IsControl() bool { return k != KindData && k.IsValid() }

// kindOf returns the kind identified by the ptype and stype header bytes.
func kindOf(ptype byte, stype byte) Kind {
	if ptype != 0 {
		return KindUnknown
	}

	k := Kind(stype)
	if !k.IsValid() {
		return KindUnknown
	}

	return k
}

// Message is an HSMS message: either a *ControlMessage or a *DataMessage.
//
// Messages are immutable. Header and ToBytes return fresh copies.
type Message interface {
	// Kind returns the message kind.
	Kind() Kind
	// Device returns the device id (session id) of header bytes 0-1.
	Device() uint16
	// Stream returns the stream code without the W-bit for data messages,
	// or header byte 2 for control messages.
	Stream() uint8
	// Func returns header byte 3: the function code for data messages,
	// or the status/reason code for control messages.
	Func() uint8
	// Context returns the 4-byte system bytes used to correlate replies.
	Context() uint32
	// ReplyExpected reports whether the sender waits for a reply.
	ReplyExpected() bool
	// Header returns the 10-byte message header.
	Header() []byte
	// ToBytes returns the complete block: length field, header and body.
	ToBytes() []byte
	String() string
}

// MsgInfo returns structured message information for logging, appended to keyValues.
func MsgInfo(msg Message, keyValues ...any) []any {
	info := []any{
		"id", msg.Context(),
		"kind", msg.Kind().String(),
		"device", msg.Device(),
		"s", msg.Stream(),
		"f", msg.Func(),
	}

	result := make([]any, 0, len(keyValues)+len(info))
	result = append(result, keyValues...)
	result = append(result, info...)

	return result
}
