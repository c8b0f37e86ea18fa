package hsms

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"

	"github.com/justinfuerth/hsms/secs2"
)

// MaxMessageSize is the largest accepted block length (header and body) in bytes.
const MaxMessageSize = secs2.MaxByteSize

var decoderPool = sync.Pool{New: func() any { return new(hsmsDecoder) }}

// Decode decodes one complete HSMS block starting with the 4-byte length field.
//
// The length field must equal the number of bytes following it.
func Decode(buf []byte) (Message, error) {
	if len(buf) < LengthFieldSize {
		return nil, fmt.Errorf("%w: block of %d bytes has no length field", ErrDecode, len(buf))
	}

	msgLen := binary.BigEndian.Uint32(buf)
	if int64(msgLen) != int64(len(buf)-LengthFieldSize) {
		return nil, fmt.Errorf("%w: length field %d, but %d bytes follow", ErrDecode, msgLen, len(buf)-LengthFieldSize)
	}

	return DecodeMessage(msgLen, buf[LengthFieldSize:])
}

// DecodeBody decodes a block without the length field: the header followed by the items.
func DecodeBody(body []byte) (Message, error) {
	if int64(len(body)) > MaxMessageSize {
		return nil, fmt.Errorf("%w: message length %d exceeds maximum %d", ErrDecode, len(body), MaxMessageSize)
	}

	return DecodeMessage(uint32(len(body)), body) //nolint:gosec
}

// DecodeMessage decodes a block whose length field was already consumed.
//
// msgLen is the value of the length field, and body holds the header and the items.
func DecodeMessage(msgLen uint32, body []byte) (Message, error) {
	decoder, _ := decoderPool.Get().(*hsmsDecoder)
	decoder.reset(body)

	msg, err := decoder.decodeMessage(msgLen)
	decoder.reset(nil)
	decoderPool.Put(decoder)

	return msg, err
}

// DecodeItem decodes exactly one SECS-II item from data.
func DecodeItem(data []byte) (*secs2.Item, error) {
	decoder, _ := decoderPool.Get().(*hsmsDecoder)
	decoder.reset(data)

	item, err := decoder.decodeItem()
	if err == nil && decoder.remaining() > 0 {
		err = fmt.Errorf("%w: %d trailing bytes after item", ErrDecode, decoder.remaining())
	}
	decoder.reset(nil)
	decoderPool.Put(decoder)

	if err != nil {
		return nil, err
	}

	return item, nil
}

// hsmsDecoder keeps the read position in the input and the scratch buffers
// reused between numeric items.
type hsmsDecoder struct {
	input    []byte
	boolBuf  []bool
	intBuf   []int64
	uintBuf  []uint64
	floatBuf []float64
	pos      int
	depth    int
}

func (d *hsmsDecoder) reset(input []byte) {
	d.input = input
	d.pos = 0
	d.depth = 0
}

func (d *hsmsDecoder) remaining() int {
	return len(d.input) - d.pos
}

// read returns the next length bytes and advances the position.
func (d *hsmsDecoder) read(length int) ([]byte, error) {
	if length > d.remaining() {
		return nil, fmt.Errorf("%w: unexpected end of message: need %d bytes, have %d", ErrDecode, length, d.remaining())
	}
	result := d.input[d.pos : d.pos+length]
	d.pos += length

	return result, nil
}

func (d *hsmsDecoder) decodeMessage(msgLen uint32) (Message, error) {
	if msgLen > MaxMessageSize {
		return nil, fmt.Errorf("%w: message length %d exceeds maximum %d", ErrDecode, msgLen, MaxMessageSize)
	}
	if int64(len(d.input)) != int64(msgLen) {
		return nil, fmt.Errorf("%w: message length mismatch, expected: %d, actual: %d", ErrDecode, msgLen, len(d.input))
	}

	header, err := d.read(HeaderSize)
	if err != nil {
		return nil, err
	}

	kind := kindOf(header[4], header[5])
	switch {
	case kind == KindData:
		items := make([]*secs2.Item, 0, 1)
		for d.remaining() > 0 {
			item, err := d.decodeItem()
			if err != nil {
				return nil, err
			}
			items = append(items, item)
		}

		return newDecodedDataMessage(header, items), nil

	case kind.IsControl():
		if d.remaining() > 0 {
			return nil, fmt.Errorf("%w: %s carries %d body bytes", ErrDecode, kind, d.remaining())
		}

		return NewControlMessage(header)

	default:
		// unsupported ptype or stype, the body is not interpreted
		return NewControlMessage(header)
	}
}

// decodeItem decodes one item at the current position, recursing into lists.
func (d *hsmsDecoder) decodeItem() (*secs2.Item, error) {
	formatByte, err := d.read(1)
	if err != nil {
		return nil, err
	}

	format, lenBytesCount, err := secs2.FormatFromByte(formatByte[0])
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}

	lenBytes, err := d.read(lenBytesCount)
	if err != nil {
		return nil, err
	}

	length := 0
	for _, b := range lenBytes {
		length = length<<8 | int(b)
	}

	switch {
	case format.IsList():
		return d.decodeList(length)

	case format.IsASCII():
		data, err := d.read(length)
		if err != nil {
			return nil, err
		}

		return checkItem(secs2.NewASCIIItem(string(data)))

	case format.IsBinary():
		data, err := d.read(length)
		if err != nil {
			return nil, err
		}

		return checkItem(secs2.NewBinaryItem(data))

	case format.IsBoolean():
		data, err := d.read(length)
		if err != nil {
			return nil, err
		}

		d.boolBuf = d.boolBuf[:0]
		for _, v := range data {
			d.boolBuf = append(d.boolBuf, v != 0)
		}

		return secs2.NewBooleanItem(d.boolBuf...), nil

	case format.IsSigned():
		return d.decodeIntItem(format, length)

	case format.IsUnsigned():
		return d.decodeUintItem(format, length)

	default:
		return d.decodeFloatItem(format, length)
	}
}

func (d *hsmsDecoder) decodeList(count int) (*secs2.Item, error) {
	d.depth++
	if d.depth > MaxListDepth {
		return nil, fmt.Errorf("%w: list nesting depth exceeds maximum allowed: %d", ErrDecode, MaxListDepth)
	}

	// every child needs at least 2 bytes: the format byte and one length byte
	if count*2 > d.remaining() {
		return nil, fmt.Errorf("%w: list claims %d items but only %d bytes remaining", ErrDecode, count, d.remaining())
	}

	children := make([]*secs2.Item, count)
	for i := range count {
		child, err := d.decodeItem()
		if err != nil {
			return nil, err
		}
		children[i] = child
	}
	d.depth--

	return checkItem(secs2.NewListItem(children...))
}

// values returns the value bytes of a numeric item after checking that length is
// a multiple of the format width.
func (d *hsmsDecoder) values(format secs2.Format, length int) ([]byte, int, error) {
	width := format.Width()
	if length%width != 0 {
		return nil, 0, fmt.Errorf("%w: invalid length %d for %s item", ErrDecode, length, format)
	}

	data, err := d.read(length)
	if err != nil {
		return nil, 0, err
	}

	return data, width, nil
}

func (d *hsmsDecoder) decodeIntItem(format secs2.Format, length int) (*secs2.Item, error) {
	data, width, err := d.values(format, length)
	if err != nil {
		return nil, err
	}

	d.intBuf = d.intBuf[:0]
	for start := 0; start < len(data); start += width {
		switch width {
		case 1:
			d.intBuf = append(d.intBuf, int64(int8(data[start]))) //nolint:gosec
		case 2:
			d.intBuf = append(d.intBuf, int64(int16(binary.BigEndian.Uint16(data[start:])))) //nolint:gosec
		case 4:
			d.intBuf = append(d.intBuf, int64(int32(binary.BigEndian.Uint32(data[start:])))) //nolint:gosec
		default:
			d.intBuf = append(d.intBuf, int64(binary.BigEndian.Uint64(data[start:]))) //nolint:gosec
		}
	}

	return checkItem(secs2.NewIntItem(format, d.intBuf...))
}

func (d *hsmsDecoder) decodeUintItem(format secs2.Format, length int) (*secs2.Item, error) {
	data, width, err := d.values(format, length)
	if err != nil {
		return nil, err
	}

	d.uintBuf = d.uintBuf[:0]
	for start := 0; start < len(data); start += width {
		switch width {
		case 1:
			d.uintBuf = append(d.uintBuf, uint64(data[start]))
		case 2:
			d.uintBuf = append(d.uintBuf, uint64(binary.BigEndian.Uint16(data[start:])))
		case 4:
			d.uintBuf = append(d.uintBuf, uint64(binary.BigEndian.Uint32(data[start:])))
		default:
			d.uintBuf = append(d.uintBuf, binary.BigEndian.Uint64(data[start:]))
		}
	}

	return checkItem(secs2.NewUintItem(format, d.uintBuf...))
}

func (d *hsmsDecoder) decodeFloatItem(format secs2.Format, length int) (*secs2.Item, error) {
	data, width, err := d.values(format, length)
	if err != nil {
		return nil, err
	}

	d.floatBuf = d.floatBuf[:0]
	for start := 0; start < len(data); start += width {
		if width == 4 {
			d.floatBuf = append(d.floatBuf, float64(math.Float32frombits(binary.BigEndian.Uint32(data[start:]))))
		} else {
			d.floatBuf = append(d.floatBuf, math.Float64frombits(binary.BigEndian.Uint64(data[start:])))
		}
	}

	return checkItem(secs2.NewFloatItem(format, d.floatBuf...))
}

func checkItem(item *secs2.Item) (*secs2.Item, error) {
	if err := item.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}

	return item, nil
}
