package secs2

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/justinfuerth/hsms/internal/util"
)

// MaxByteSize defines the maximum allowed size (in bytes) for an Item's data.
const MaxByteSize = 1<<24 - 1

// Item represents an immutable data item in a SECS-II message.
//
// An item holds a scalar, a homogeneous array of scalars, a string (A), a byte
// buffer (Bin) or an ordered list of child items (List). Items are created through an
// ItemBuilder or one of the shortcut constructors and are never mutated afterwards;
// all accessors return copies.
//
// There's a limit on the total size of data an Item can contain, as defined by the SEMI standard:
//
//	n * b <= 16,777,215 (3 bytes)
//	- n: number of data values within the Item
//	- b: byte size to represent each individual data value (varies by Item format)
type Item struct {
	name   string
	format Format
	size   int
	payload
	err error
}

// errorItem returns an item that only carries err.
func errorItem(f Format, err error) *Item {
	return &Item{format: f, err: newItemError(err)}
}

// Name returns the display label of the item. The name is not transmitted.
func (item *Item) Name() string { return item.name }

// Format returns the item format.
func (item *Item) Format() Format { return item.format }

// Size returns the declared size for A and Bin items and 0 for other formats.
func (item *Item) Size() int {
	if !item.format.IsSizeable() {
		return 0
	}

	return item.size
}

// Error returns the error recorded while creating the item, if any.
func (item *Item) Error() error {
	return item.err
}

// Len returns the number of values held by the item: the element count for numeric
// and boolean items, the byte length for A and Bin, and the child count for List.
func (item *Item) Len() int {
	switch item.format.kind() {
	case kindList:
		return len(item.children)
	case kindBinary:
		return len(item.bytes)
	case kindASCII:
		return len(item.str)
	case kindBoolean:
		return len(item.bools)
	case kindInt:
		return len(item.ints)
	case kindUint:
		return len(item.uints)
	case kindFloat:
		return len(item.floats)
	default:
		return 0
	}
}

// IsArray reports whether a numeric or boolean item holds anything other than exactly one value.
func (item *Item) IsArray() bool {
	if item.format.IsList() || item.format.IsSizeable() {
		return false
	}

	return item.Len() != 1
}

// Value returns a copy of the item value.
//
// The dynamic type depends on the format:
//   - List: []*Item
//   - A: string
//   - Bin: []byte
//   - Bool: bool, or []bool for arrays
//   - I1..I8: int64, or []int64 for arrays
//   - U1..U8: uint64, or []uint64 for arrays
//   - F4, F8: float64, or []float64 for arrays
func (item *Item) Value() any {
	return item.payload.value(item.format)
}

func (p *payload) value(f Format) any {
	switch f.kind() {
	case kindList:
		return util.CloneSlice(p.children, 0)
	case kindASCII:
		return p.str
	case kindBinary:
		return util.CloneSlice(p.bytes, 0)
	case kindBoolean:
		return scalarOrSlice(p.bools)
	case kindInt:
		return scalarOrSlice(p.ints)
	case kindUint:
		return scalarOrSlice(p.uints)
	case kindFloat:
		return scalarOrSlice(p.floats)
	default:
		return nil
	}
}

func scalarOrSlice[T any](values []T) any {
	if len(values) == 1 {
		return values[0]
	}

	return util.CloneSlice(values, 0)
}

// ToList returns the child items of a List item.
func (item *Item) ToList() ([]*Item, error) {
	if !item.format.IsList() {
		return nil, item.mismatch(FormatList)
	}

	return util.CloneSlice(item.children, 0), nil
}

// ToBinary returns the bytes of a Bin item.
func (item *Item) ToBinary() ([]byte, error) {
	if !item.format.IsBinary() {
		return nil, item.mismatch(FormatBin)
	}

	return util.CloneSlice(item.bytes, 0), nil
}

// ToBoolean returns the values of a Bool item.
func (item *Item) ToBoolean() ([]bool, error) {
	if !item.format.IsBoolean() {
		return nil, item.mismatch(FormatBool)
	}

	return util.CloneSlice(item.bools, 0), nil
}

// ToASCII returns the string of an A item.
func (item *Item) ToASCII() (string, error) {
	if !item.format.IsASCII() {
		return "", item.mismatch(FormatA)
	}

	return item.str, nil
}

// ToInt returns the values of an I1, I2, I4 or I8 item.
func (item *Item) ToInt() ([]int64, error) {
	if !item.format.IsSigned() {
		return nil, item.mismatch(FormatI8)
	}

	return util.CloneSlice(item.ints, 0), nil
}

// ToUint returns the values of a U1, U2, U4 or U8 item.
func (item *Item) ToUint() ([]uint64, error) {
	if !item.format.IsUnsigned() {
		return nil, item.mismatch(FormatU8)
	}

	return util.CloneSlice(item.uints, 0), nil
}

// ToFloat returns the values of an F4 or F8 item.
func (item *Item) ToFloat() ([]float64, error) {
	if !item.format.IsFloat() {
		return nil, item.mismatch(FormatF8)
	}

	return util.CloneSlice(item.floats, 0), nil
}

func (item *Item) mismatch(want Format) error {
	return newItemError(fmt.Errorf("%w: item is %s, want %s", ErrFormatMismatch, item.format, want))
}

// Get retrieves a nested item at the specified indices. Without indices it returns the item itself.
func (item *Item) Get(indices ...int) (*Item, error) {
	cur := item
	for depth, idx := range indices {
		if !cur.format.IsList() {
			return nil, newItemError(fmt.Errorf("%w: indices %v, depth %d", ErrNotList, indices, depth))
		}
		if idx < 0 || idx >= len(cur.children) {
			return nil, newItemError(fmt.Errorf("index out of range: %d, list length %d", idx, len(cur.children)))
		}
		cur = cur.children[idx]
	}

	return cur, nil
}

// Equals reports structural equality: same format and size, and for List the same
// number of children with pairwise equal children, otherwise element-wise equal values.
// Names are not compared.
func (item *Item) Equals(other *Item) bool {
	if item == nil || other == nil {
		return item == other
	}

	if item.format != other.format || item.Size() != other.Size() {
		return false
	}

	switch item.format.kind() {
	case kindList:
		if len(item.children) != len(other.children) {
			return false
		}
		for i, child := range item.children {
			if !child.Equals(other.children[i]) {
				return false
			}
		}
		return true
	case kindASCII:
		return item.str == other.str
	case kindBinary:
		return equalValues(item.bytes, other.bytes)
	case kindBoolean:
		return equalValues(item.bools, other.bools)
	case kindInt:
		return equalValues(item.ints, other.ints)
	case kindUint:
		return equalValues(item.uints, other.uints)
	case kindFloat:
		return equalValues(item.floats, other.floats)
	default:
		return false
	}
}

func equalValues[T comparable](a, b []T) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}

	return true
}

// String implements fmt.Stringer, it is ToString("").
func (item *Item) String() string {
	return item.ToString("")
}

// ToString renders the item as "<FORMAT><size> <name> [<value>]" prefixed by indent.
// Scalars omit the size, arrays show their element count, and a List renders its
// header followed by one line per child indented by two more spaces.
func (item *Item) ToString(indent string) string {
	var sb strings.Builder
	item.writeString(&sb, indent)

	return sb.String()
}

func (item *Item) writeString(sb *strings.Builder, indent string) {
	sb.WriteString(indent)
	sb.WriteString(item.format.String())

	switch item.format.kind() {
	case kindList:
		sb.WriteString(" ")
		sb.WriteString(item.name)
		for _, child := range item.children {
			sb.WriteString("\n")
			child.writeString(sb, indent+"  ")
		}
		return

	case kindASCII:
		sb.WriteString("<" + strconv.Itoa(item.size) + "> " + item.name)
		if item.str != "" {
			sb.WriteString(" [" + item.str + "]")
		}
		return

	case kindBinary:
		sb.WriteString("<" + strconv.Itoa(item.size) + "> " + item.name + " [")
		for i, b := range item.bytes {
			if i > 0 {
				sb.WriteString(",")
			}
			sb.WriteString(strconv.Itoa(int(b)))
		}
		sb.WriteString("]")
		return
	}

	values := item.valueStrings()
	if len(values) != 1 {
		sb.WriteString("<" + strconv.Itoa(len(values)) + ">")
	}
	sb.WriteString(" " + item.name + " [" + strings.Join(values, ",") + "]")
}

func (item *Item) valueStrings() []string {
	switch item.format.kind() {
	case kindBoolean:
		result := make([]string, len(item.bools))
		for i, v := range item.bools {
			result[i] = strconv.FormatBool(v)
		}
		return result
	case kindInt:
		result := make([]string, len(item.ints))
		for i, v := range item.ints {
			result[i] = strconv.FormatInt(v, 10)
		}
		return result
	case kindUint:
		result := make([]string, len(item.uints))
		for i, v := range item.uints {
			result[i] = strconv.FormatUint(v, 10)
		}
		return result
	case kindFloat:
		result := make([]string, len(item.floats))
		for i, v := range item.floats {
			result[i] = formatNumber(v)
		}
		return result
	default:
		return nil
	}
}

// dataByteLength returns the number written to the item's length bytes:
// the child count for List and the value byte length otherwise.
func (item *Item) dataByteLength() int {
	if item.format.IsList() {
		return len(item.children)
	}

	return item.Len() * item.format.Width()
}

// ToBytes serializes the item into its SECS-II byte representation:
// the format byte, 1-3 big-endian length bytes and the value bytes.
func (item *Item) ToBytes() []byte {
	return item.AppendBytes(make([]byte, 0, item.EncodedLen()))
}

// AppendBytes appends the SECS-II encoding of the item to buf and returns the extended buffer.
func (item *Item) AppendBytes(buf []byte) []byte {
	length := item.dataByteLength()
	lenByteCount := lengthByteCount(length)

	buf = append(buf, byte(item.format)|byte(lenByteCount))
	for i := lenByteCount - 1; i >= 0; i-- {
		buf = append(buf, byte(length>>(8*i)))
	}

	switch item.format.kind() {
	case kindList:
		for _, child := range item.children {
			buf = child.AppendBytes(buf)
		}

	case kindASCII:
		buf = append(buf, item.str...)

	case kindBinary:
		buf = append(buf, item.bytes...)

	case kindBoolean:
		for _, v := range item.bools {
			if v {
				buf = append(buf, 1)
			} else {
				buf = append(buf, 0)
			}
		}

	case kindInt:
		for _, v := range item.ints {
			buf = appendUint(buf, uint64(v), item.format.Width()) //nolint:gosec
		}

	case kindUint:
		for _, v := range item.uints {
			buf = appendUint(buf, v, item.format.Width())
		}

	case kindFloat:
		for _, v := range item.floats {
			if item.format == FormatF4 {
				buf = binary.BigEndian.AppendUint32(buf, math.Float32bits(float32(v)))
			} else {
				buf = binary.BigEndian.AppendUint64(buf, math.Float64bits(v))
			}
		}
	}

	return buf
}

// EncodedLen returns the number of bytes ToBytes produces.
func (item *Item) EncodedLen() int {
	length := item.dataByteLength()
	total := 1 + lengthByteCount(length)
	if item.format.IsList() {
		for _, child := range item.children {
			total += child.EncodedLen()
		}
		return total
	}

	return total + length
}

func appendUint(buf []byte, v uint64, width int) []byte {
	switch width {
	case 1:
		return append(buf, byte(v))
	case 2:
		return binary.BigEndian.AppendUint16(buf, uint16(v)) //nolint:gosec
	case 4:
		return binary.BigEndian.AppendUint32(buf, uint32(v)) //nolint:gosec
	default:
		return binary.BigEndian.AppendUint64(buf, v)
	}
}

// lengthByteCount returns the minimal number of length bytes (1-3) for length.
func lengthByteCount(length int) int {
	switch {
	case length > 0xFFFF:
		return 3
	case length > 0xFF:
		return 2
	default:
		return 1
	}
}
