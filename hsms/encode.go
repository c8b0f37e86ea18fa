package hsms

import "encoding/binary"

// Encode returns the HSMS block of msg: the 4-byte big-endian length, the 10-byte header
// and, for data messages, the encoding of every item in order.
func Encode(msg Message) []byte {
	buf := make([]byte, LengthFieldSize, MinBlockSize)
	buf = append(buf, msg.Header()...)

	if dataMsg, ok := msg.(*DataMessage); ok {
		for _, item := range dataMsg.items {
			buf = item.AppendBytes(buf)
		}
	}

	binary.BigEndian.PutUint32(buf, uint32(len(buf)-LengthFieldSize)) //nolint:gosec

	return buf
}
