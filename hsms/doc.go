// Package hsms provides the High-Speed SECS Message Services (HSMS, SEMI E37) message model,
// the block codec and the connection state machine shared by HSMS connection implementations.
//
// Message Kinds:
// Every message implements the Message interface and reports its Kind:
//   - KindData: data message containing SECS-II items (*DataMessage).
//   - KindSelectReq, KindSelectRsp: session establishment.
//   - KindDeselectReq, KindDeselectRsp: session termination.
//   - KindLinkTestReq, KindLinkTestRsp: link testing.
//   - KindRejectReq: rejection of a received message.
//   - KindSeparateReq: graceful disconnect.
//
// Control messages (*ControlMessage) are created by NewSelectReq, NewSelectRsp, NewDeselectReq,
// NewDeselectRsp, NewLinkTestReq, NewLinkTestRsp, NewRejectReq and NewSeparateReq.
// Data messages are built with DataMessageBuilder, replies with NewReply.
//
// Block Format:
//
//	length:u32 | device:u16 | stream:u8 (bit 7 = W-bit) | func:u8 | ptype:u8 | stype:u8 | context:u32 | items
//
// Encode writes a block, Decode and DecodeMessage read one. Malformed input fails with an error
// wrapping ErrDecode.
//
// Connection State:
// ConnStateMgr tracks NotConnected, Connecting, Listening, NotSelected and Selected states
// and notifies ConnStateChangeHandler functions on every transition.
package hsms
