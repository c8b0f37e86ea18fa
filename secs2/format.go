package secs2

import (
	"fmt"
	"math"
)

// Format is a SECS-II item format. The value is the item's format byte with the
// two length-byte-count bits cleared, e.g. FormatI1 is 0x64 (octal code 31).
type Format uint8

const (
	FormatList Format = 0o00 << 2
	FormatBin  Format = 0o10 << 2
	FormatBool Format = 0o11 << 2
	FormatA    Format = 0o20 << 2
	FormatI8   Format = 0o30 << 2
	FormatI1   Format = 0o31 << 2
	FormatI2   Format = 0o32 << 2
	FormatI4   Format = 0o34 << 2
	FormatF8   Format = 0o40 << 2
	FormatF4   Format = 0o44 << 2
	FormatU8   Format = 0o50 << 2
	FormatU1   Format = 0o51 << 2
	FormatU2   Format = 0o52 << 2
	FormatU4   Format = 0o54 << 2
)

// MaxSize is the largest size an A or Bin item may declare.
const MaxSize = math.MaxUint16

type formatKind int

const (
	kindList formatKind = iota
	kindBinary
	kindBoolean
	kindASCII
	kindInt
	kindUint
	kindFloat
)

type formatInfo struct {
	name  string
	kind  formatKind
	width int // bytes per value, 0 for list
}

var formatTable = map[Format]formatInfo{
	FormatList: {name: "List", kind: kindList, width: 0},
	FormatBin:  {name: "Bin", kind: kindBinary, width: 1},
	FormatBool: {name: "Bool", kind: kindBoolean, width: 1},
	FormatA:    {name: "A", kind: kindASCII, width: 1},
	FormatI8:   {name: "I8", kind: kindInt, width: 8},
	FormatI1:   {name: "I1", kind: kindInt, width: 1},
	FormatI2:   {name: "I2", kind: kindInt, width: 2},
	FormatI4:   {name: "I4", kind: kindInt, width: 4},
	FormatF8:   {name: "F8", kind: kindFloat, width: 8},
	FormatF4:   {name: "F4", kind: kindFloat, width: 4},
	FormatU8:   {name: "U8", kind: kindUint, width: 8},
	FormatU1:   {name: "U1", kind: kindUint, width: 1},
	FormatU2:   {name: "U2", kind: kindUint, width: 2},
	FormatU4:   {name: "U4", kind: kindUint, width: 4},
}

var formatByName = func() map[string]Format {
	m := make(map[string]Format, len(formatTable))
	for f, info := range formatTable {
		m[info.name] = f
	}
	return m
}()

// ParseFormat returns the format with the given name, e.g. "I1", "A" or "List".
func ParseFormat(name string) (Format, error) {
	f, ok := formatByName[name]
	if !ok {
		return 0, newItemError(fmt.Errorf("%w: unknown format name %q", ErrInvalidFormat, name))
	}

	return f, nil
}

// FormatFromByte splits an encoded format byte into its format and the number of
// length bytes that follow it.
func FormatFromByte(b byte) (Format, int, error) {
	f := Format(b &^ 0x03)
	lenBytes := int(b & 0x03)
	if !f.IsValid() {
		return 0, 0, fmt.Errorf("%w: unknown format code 0o%02o", ErrInvalidFormat, b>>2)
	}
	if lenBytes == 0 {
		return 0, 0, fmt.Errorf("%w: length bytes count is zero", ErrInvalidFormat)
	}

	return f, lenBytes, nil
}

// String returns the format name.
func (f Format) String() string {
	if info, ok := formatTable[f]; ok {
		return info.name
	}

	return fmt.Sprintf("Format(0x%02X)", uint8(f))
}

// Code returns the 6-bit SECS-II format code.
func (f Format) Code() uint8 { return uint8(f) >> 2 }

// IsValid reports whether f is one of the defined formats.
func (f Format) IsValid() bool {
	_, ok := formatTable[f]
	return ok
}

// Width returns the byte width of a single value, or 0 for List.
func (f Format) Width() int { return formatTable[f].width }

// IsSizeable reports whether items of this format carry a declared size (A and Bin).
func (f Format) IsSizeable() bool { return f == FormatA || f == FormatBin }

func (f Format) IsList() bool    { return f == FormatList }
func (f Format) IsBinary() bool  { return f == FormatBin }
func (f Format) IsBoolean() bool { return f == FormatBool }
func (f Format) IsASCII() bool   { return f == FormatA }
func (f Format) IsFloat() bool   { return f.kind() == kindFloat }
func (f Format) IsSigned() bool  { return f.kind() == kindInt }
func (f Format) IsUnsigned() bool {
	return f.kind() == kindUint
}

// IsInteger reports whether f is one of I1..I8 or U1..U8.
func (f Format) IsInteger() bool {
	k := f.kind()
	return k == kindInt || k == kindUint
}

// IsNumeric reports whether values of f are fixed-width numbers.
func (f Format) IsNumeric() bool { return f.IsInteger() || f.IsFloat() }

func (f Format) kind() formatKind {
	info, ok := formatTable[f]
	if !ok {
		return -1
	}
	return info.kind
}

// intRange returns the inclusive range of a signed integer format.
func (f Format) intRange() (int64, int64) {
	switch f {
	case FormatI1:
		return math.MinInt8, math.MaxInt8
	case FormatI2:
		return math.MinInt16, math.MaxInt16
	case FormatI4:
		return math.MinInt32, math.MaxInt32
	default:
		return math.MinInt64, math.MaxInt64
	}
}

// uintMax returns the upper bound of an unsigned integer format.
func (f Format) uintMax() uint64 {
	switch f {
	case FormatU1:
		return math.MaxUint8
	case FormatU2:
		return math.MaxUint16
	case FormatU4:
		return math.MaxUint32
	default:
		return math.MaxUint64
	}
}
