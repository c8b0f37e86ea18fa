package hsms

import (
	"encoding/binary"
	"fmt"
)

// Select.rsp status codes, carried in header byte 3.
const (
	SelectStatusSuccess  uint8 = 0 // communication established
	SelectStatusActive   uint8 = 1 // communication already active
	SelectStatusNotReady uint8 = 2 // connection not ready
	SelectStatusExhaust  uint8 = 3 // connection already used by another entity
)

// Deselect.rsp status codes, carried in header byte 3.
const (
	DeselectStatusSuccess        uint8 = 0
	DeselectStatusNotEstablished uint8 = 1
	DeselectStatusBusy           uint8 = 2
)

// RejectReason is the reason code of a reject.req, carried in header byte 3.
type RejectReason uint8

const (
	RejectSTypeNotSupported  RejectReason = 1
	RejectPTypeNotSupported  RejectReason = 2
	RejectTransactionNotOpen RejectReason = 3
	RejectNotSelected        RejectReason = 4
)

func (r RejectReason) String() string {
	switch r {
	case RejectSTypeNotSupported:
		return "stype not supported"
	case RejectPTypeNotSupported:
		return "ptype not supported"
	case RejectTransactionNotOpen:
		return "transaction not open"
	case RejectNotSelected:
		return "entity not selected"
	default:
		return fmt.Sprintf("reject reason %d", uint8(r))
	}
}

// ControlMessage is an HSMS control message: a 10-byte header without a body.
type ControlMessage struct {
	header [HeaderSize]byte
}

var _ Message = (*ControlMessage)(nil)

func newControlMessage(device uint16, kind Kind, context uint32, b2 byte, b3 byte) *ControlMessage {
	msg := &ControlMessage{}
	binary.BigEndian.PutUint16(msg.header[0:2], device)
	msg.header[2] = b2
	msg.header[3] = b3
	msg.header[4] = 0
	msg.header[5] = byte(kind)
	binary.BigEndian.PutUint32(msg.header[6:10], context)

	return msg
}

// NewControlMessage creates a control message from a 10-byte header.
// A header with an unsupported PType or SType yields a message of KindUnknown.
func NewControlMessage(header []byte) (*ControlMessage, error) {
	if len(header) != HeaderSize {
		return nil, ErrInvalidHeaderLength
	}

	msg := &ControlMessage{}
	copy(msg.header[:], header)

	return msg, nil
}

// NewSelectReq creates a select.req.
func NewSelectReq(device uint16, context uint32) *ControlMessage {
	return newControlMessage(device, KindSelectReq, context, 0, 0)
}

// NewSelectRsp creates the select.rsp answering req with the given status.
func NewSelectRsp(req Message, status uint8) *ControlMessage {
	return newControlMessage(req.Device(), KindSelectRsp, req.Context(), 0, status)
}

// NewDeselectReq creates a deselect.req.
func NewDeselectReq(device uint16, context uint32) *ControlMessage {
	return newControlMessage(device, KindDeselectReq, context, 0, 0)
}

// NewDeselectRsp creates the deselect.rsp answering req with the given status.
func NewDeselectRsp(req Message, status uint8) *ControlMessage {
	return newControlMessage(req.Device(), KindDeselectRsp, req.Context(), 0, status)
}

// NewLinkTestReq creates a linktest.req. Linktest messages always carry device 0xFFFF.
func NewLinkTestReq(context uint32) *ControlMessage {
	return newControlMessage(LinkTestDevice, KindLinkTestReq, context, 0, 0)
}

// NewLinkTestRsp creates the linktest.rsp answering req.
func NewLinkTestRsp(req Message) *ControlMessage {
	return newControlMessage(LinkTestDevice, KindLinkTestRsp, req.Context(), 0, 0)
}

// NewRejectReq creates a reject.req for msg.
//
// Header byte 2 carries the SType of msg, or its PType when reason is RejectPTypeNotSupported.
func NewRejectReq(msg Message, reason RejectReason) *ControlMessage {
	header := msg.Header()
	b2 := header[5]
	if reason == RejectPTypeNotSupported {
		b2 = header[4]
	}

	return newControlMessage(msg.Device(), KindRejectReq, msg.Context(), b2, byte(reason))
}

// NewSeparateReq creates a separate.req.
func NewSeparateReq(device uint16, context uint32) *ControlMessage {
	return newControlMessage(device, KindSeparateReq, context, 0, 0)
}

func (msg *ControlMessage) Kind() Kind {
	return kindOf(msg.header[4], msg.header[5])
}

func (msg *ControlMessage) Device() uint16 {
	return binary.BigEndian.Uint16(msg.header[0:2])
}

func (msg *ControlMessage) Stream() uint8 { return msg.header[2] }

func (msg *ControlMessage) Func() uint8 { return msg.header[3] }

func (msg *ControlMessage) Context() uint32 {
	return binary.BigEndian.Uint32(msg.header[6:10])
}

// ReplyExpected reports whether the message is a request of a control transaction.
func (msg *ControlMessage) ReplyExpected() bool {
	switch msg.Kind() {
	case KindSelectReq, KindDeselectReq, KindLinkTestReq:
		return true
	default:
		return false
	}
}

// PType returns header byte 4.
func (msg *ControlMessage) PType() uint8 { return msg.header[4] }

// SType returns header byte 5.
func (msg *ControlMessage) SType() uint8 { return msg.header[5] }

// Status returns the status code of a select.rsp or deselect.rsp.
func (msg *ControlMessage) Status() uint8 { return msg.header[3] }

// Reason returns the reason code of a reject.req.
func (msg *ControlMessage) Reason() RejectReason { return RejectReason(msg.header[3]) }

func (msg *ControlMessage) Header() []byte {
	header := make([]byte, HeaderSize)
	copy(header, msg.header[:])

	return header
}

func (msg *ControlMessage) ToBytes() []byte {
	return Encode(msg)
}

// String returns the procedure name, e.g. "select req" or "linktest rsp".
func (msg *ControlMessage) String() string {
	switch msg.Kind() {
	case KindSelectReq:
		return "select req"
	case KindSelectRsp:
		return "select rsp"
	case KindDeselectReq:
		return "deselect req"
	case KindDeselectRsp:
		return "deselect rsp"
	case KindLinkTestReq:
		return "linktest req"
	case KindLinkTestRsp:
		return "linktest rsp"
	case KindRejectReq:
		return "reject req"
	case KindSeparateReq:
		return "separate req"
	default:
		return fmt.Sprintf("unknown control ptype=%d stype=%d", msg.header[4], msg.header[5])
	}
}
