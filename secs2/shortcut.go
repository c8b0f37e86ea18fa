package secs2

import (
	"fmt"
	"reflect"

	"github.com/justinfuerth/hsms/internal/util"
)

// The shortcut constructors below build unnamed-by-default items in one call.
// On invalid input the returned item carries the error, see Item.Error.

func I1(name string, values ...any) *Item { return numeric(FormatI1, name, values) }
func I2(name string, values ...any) *Item { return numeric(FormatI2, name, values) }
func I4(name string, values ...any) *Item { return numeric(FormatI4, name, values) }
func I8(name string, values ...any) *Item { return numeric(FormatI8, name, values) }
func U1(name string, values ...any) *Item { return numeric(FormatU1, name, values) }
func U2(name string, values ...any) *Item { return numeric(FormatU2, name, values) }
func U4(name string, values ...any) *Item { return numeric(FormatU4, name, values) }
func U8(name string, values ...any) *Item { return numeric(FormatU8, name, values) }
func F4(name string, values ...any) *Item { return numeric(FormatF4, name, values) }
func F8(name string, values ...any) *Item { return numeric(FormatF8, name, values) }

// Bool creates a Bool item; each value is converted by truthiness.
func Bool(name string, values ...any) *Item { return numeric(FormatBool, name, values) }

// A creates an ASCII item of exactly size characters.
func A(name string, value any, size int) *Item {
	return build(FormatA, NewItemBuilder().SetFormat(FormatA).SetSize(size).SetValue(value).SetName(name))
}

// Bin creates a binary item of exactly size bytes.
func Bin(name string, value any, size int) *Item {
	return build(FormatBin, NewItemBuilder().SetFormat(FormatBin).SetSize(size).SetValue(value).SetName(name))
}

// List creates a List item from the given children, nil children are dropped.
func List(name string, items ...*Item) *Item {
	return build(FormatList, NewItemBuilder().SetName(name).SetFormat(FormatList).SetValue(items))
}

func numeric(f Format, name string, values []any) *Item {
	flat := flatten(values, nil)

	var value any = flat
	if len(flat) == 0 {
		value = 0
	}

	return build(f, NewItemBuilder().SetFormat(f).SetValue(value).SetName(name))
}

func build(f Format, b *ItemBuilder) *Item {
	item, err := b.Build()
	if err != nil {
		return errorItem(f, err)
	}

	return item
}

// flatten appends the leaves of arbitrarily nested slices in values to dst.
func flatten(values []any, dst []any) []any {
	for _, v := range values {
		if v == nil {
			dst = append(dst, v)
			continue
		}

		rv := reflect.ValueOf(v)
		if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
			dst = append(dst, v)
			continue
		}

		nested := make([]any, rv.Len())
		for i := range nested {
			nested[i] = rv.Index(i).Interface()
		}
		dst = flatten(nested, dst)
	}

	return dst
}

// NewIntItem creates a signed integer item from decoded values.
func NewIntItem(f Format, values ...int64) *Item {
	if !f.IsSigned() {
		return errorItem(f, fmt.Errorf("%w: %s is not a signed integer format", ErrInvalidFormat, f))
	}

	lower, upper := f.intRange()
	for _, v := range values {
		if v < lower || v > upper {
			return errorItem(f, fmt.Errorf("%w: %s value %d out of range", ErrInvalidFormat, f, v))
		}
	}

	return &Item{format: f, payload: payload{ints: util.CloneSlice(values, 0)}}
}

// NewUintItem creates an unsigned integer item from decoded values.
func NewUintItem(f Format, values ...uint64) *Item {
	if !f.IsUnsigned() {
		return errorItem(f, fmt.Errorf("%w: %s is not an unsigned integer format", ErrInvalidFormat, f))
	}

	upper := f.uintMax()
	for _, v := range values {
		if v > upper {
			return errorItem(f, fmt.Errorf("%w: %s value %d out of range", ErrInvalidFormat, f, v))
		}
	}

	return &Item{format: f, payload: payload{uints: util.CloneSlice(values, 0)}}
}

// NewFloatItem creates a floating point item from decoded values.
// F4 values are rounded to float32 precision.
func NewFloatItem(f Format, values ...float64) *Item {
	if !f.IsFloat() {
		return errorItem(f, fmt.Errorf("%w: %s is not a float format", ErrInvalidFormat, f))
	}

	floats := util.CloneSlice(values, 0)
	if f == FormatF4 {
		for i, v := range floats {
			floats[i] = float64(float32(v))
		}
	}

	return &Item{format: f, payload: payload{floats: floats}}
}

// NewBooleanItem creates a Bool item from decoded values.
func NewBooleanItem(values ...bool) *Item {
	return &Item{format: FormatBool, payload: payload{bools: util.CloneSlice(values, 0)}}
}

// NewASCIIItem creates an A item whose size is the length of s.
func NewASCIIItem(s string) *Item {
	if len(s) > MaxSize {
		return errorItem(FormatA, fmt.Errorf("%w: %d", ErrInvalidSize, len(s)))
	}

	return &Item{format: FormatA, size: len(s), payload: payload{str: s}}
}

// NewBinaryItem creates a Bin item whose size is the length of b.
func NewBinaryItem(b []byte) *Item {
	if len(b) > MaxSize {
		return errorItem(FormatBin, fmt.Errorf("%w: %d", ErrInvalidSize, len(b)))
	}

	return &Item{format: FormatBin, size: len(b), payload: payload{bytes: util.CloneSlice(b, 0)}}
}

// NewListItem creates a List item. Children carrying an error make the list carry it too.
func NewListItem(children ...*Item) *Item {
	p, err := coerceList(children)
	if err != nil {
		return errorItem(FormatList, err)
	}

	return &Item{format: FormatList, payload: p}
}
