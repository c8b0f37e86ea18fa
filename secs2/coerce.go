package secs2

import (
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"

	"github.com/justinfuerth/hsms/internal/util"
)

// payload holds coerced item values. Exactly one of the slices (or str) is
// meaningful, selected by the item format.
type payload struct {
	ints     []int64
	uints    []uint64
	floats   []float64
	bools    []bool
	bytes    []byte
	str      string
	children []*Item
}

// coerceValue converts a user supplied value to the representation of format f.
//
// A slice of length 1 is treated as a single value, and so is any slice for A and Bin,
// where only the first element is used. Longer slices produce one coerced value per
// element. For A and Bin a []byte is a single buffer value.
func coerceValue(v any, f Format, size int) (payload, error) {
	if f.IsList() {
		return coerceList(v)
	}

	if _, ok := v.([]byte); ok && f.IsSizeable() {
		return coerceScalars([]any{v}, f, size)
	}

	elems, isSlice := sliceElems(v)
	if !isSlice {
		return coerceScalars([]any{v}, f, size)
	}

	switch {
	case len(elems) == 0:
		return defaultPayload(f, size), nil
	case len(elems) == 1 || f.IsSizeable():
		return coerceScalars(elems[:1], f, size)
	default:
		return coerceScalars(elems, f, size)
	}
}

// defaultPayload returns the value an item of format f holds when no value is set.
func defaultPayload(f Format, size int) payload {
	switch f.kind() {
	case kindInt:
		return payload{ints: []int64{0}}
	case kindUint:
		return payload{uints: []uint64{0}}
	case kindFloat:
		return payload{floats: []float64{0}}
	case kindBoolean:
		return payload{bools: []bool{false}}
	case kindASCII:
		return payload{str: util.FitString("", size)}
	case kindBinary:
		return payload{bytes: make([]byte, size)}
	default:
		return payload{}
	}
}

func coerceList(v any) (payload, error) {
	var p payload
	add := func(x any) error {
		child, ok := x.(*Item)
		if !ok || child == nil {
			return nil
		}
		if err := child.Error(); err != nil {
			return err
		}
		p.children = append(p.children, child)
		return nil
	}

	switch val := v.(type) {
	case []*Item:
		for _, child := range val {
			if err := add(child); err != nil {
				return payload{}, err
			}
		}
		return p, nil
	case *Item:
		return p, add(val)
	}

	elems, _ := sliceElems(v)
	for _, elem := range elems {
		if err := add(elem); err != nil {
			return payload{}, err
		}
	}

	return p, nil
}

func coerceScalars(elems []any, f Format, size int) (payload, error) {
	var p payload
	for i, elem := range elems {
		if elem == nil && len(elems) > 1 {
			return payload{}, invalidValue(f, elem, fmt.Sprintf("element %d is nil", i))
		}

		switch f.kind() {
		case kindInt:
			val, err := toSigned(elem, f)
			if err != nil {
				return payload{}, err
			}
			p.ints = append(p.ints, val)

		case kindUint:
			val, err := toUnsigned(elem, f)
			if err != nil {
				return payload{}, err
			}
			p.uints = append(p.uints, val)

		case kindFloat:
			val, err := toFloat(elem, f)
			if err != nil {
				return payload{}, err
			}
			p.floats = append(p.floats, val)

		case kindBoolean:
			p.bools = append(p.bools, truthy(elem))

		case kindBinary:
			val, err := toBinary(elem, size)
			if err != nil {
				return payload{}, err
			}
			p.bytes = val

		case kindASCII:
			val, err := toASCII(elem, size)
			if err != nil {
				return payload{}, err
			}
			p.str = val

		default:
			return payload{}, invalidValue(f, elem, "unsupported format")
		}
	}

	return p, nil
}

// sliceElems returns the elements of v when v is a slice or array.
func sliceElems(v any) ([]any, bool) {
	if v == nil {
		return nil, false
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}

	elems := make([]any, rv.Len())
	for i := range elems {
		elems[i] = rv.Index(i).Interface()
	}

	return elems, true
}

// integer is an intermediate integer value that may exceed the int64 range.
type integer struct {
	i      int64
	u      uint64
	isUint bool // value is above math.MaxInt64 and held in u
}

func toInteger(v any, f Format) (integer, error) {
	if v == nil {
		return integer{}, invalidValue(f, v, "nil value")
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() { //nolint:exhaustive
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return integer{i: rv.Int()}, nil

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		u := rv.Uint()
		if u > math.MaxInt64 {
			return integer{u: u, isUint: true}, nil
		}
		return integer{i: int64(u)}, nil //nolint:gosec

	case reflect.Float32, reflect.Float64:
		return floatToInteger(rv.Float(), v, f)

	case reflect.Bool:
		if rv.Bool() {
			return integer{i: 1}, nil
		}
		return integer{}, nil

	case reflect.String:
		s := strings.TrimSpace(rv.String())
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return integer{i: i}, nil
		}
		if u, err := strconv.ParseUint(s, 10, 64); err == nil {
			return integer{u: u, isUint: true}, nil
		}
		if fv, err := strconv.ParseFloat(s, 64); err == nil {
			return floatToInteger(fv, v, f)
		}
		return integer{}, invalidValue(f, v, "not a number")
	}

	return integer{}, invalidValue(f, v, "unsupported type")
}

func floatToInteger(fv float64, v any, f Format) (integer, error) {
	if math.IsNaN(fv) || math.IsInf(fv, 0) {
		return integer{}, invalidValue(f, v, "not a finite number")
	}

	fv = math.Trunc(fv)
	switch {
	case fv >= -(1<<63) && fv < 1<<63:
		return integer{i: int64(fv)}, nil
	case fv >= 1<<63 && fv < 1<<64:
		return integer{u: uint64(fv), isUint: true}, nil
	default:
		return integer{}, invalidValue(f, v, "out of range")
	}
}

func toSigned(v any, f Format) (int64, error) {
	n, err := toInteger(v, f)
	if err != nil {
		return 0, err
	}

	lower, upper := f.intRange()
	if n.isUint || n.i < lower || n.i > upper {
		return 0, invalidValue(f, v, fmt.Sprintf("out of range [%d, %d]", lower, upper))
	}

	return n.i, nil
}

func toUnsigned(v any, f Format) (uint64, error) {
	n, err := toInteger(v, f)
	if err != nil {
		return 0, err
	}

	upper := f.uintMax()
	var u uint64
	switch {
	case n.isUint:
		u = n.u
	case n.i < 0:
		return 0, invalidValue(f, v, fmt.Sprintf("out of range [0, %d]", upper))
	default:
		u = uint64(n.i)
	}

	if u > upper {
		return 0, invalidValue(f, v, fmt.Sprintf("out of range [0, %d]", upper))
	}

	return u, nil
}

func toFloat(v any, f Format) (float64, error) {
	if v == nil {
		return 0, invalidValue(f, v, "nil value")
	}

	var fv float64
	rv := reflect.ValueOf(v)
	switch rv.Kind() { //nolint:exhaustive
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		fv = float64(rv.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		fv = float64(rv.Uint())
	case reflect.Float32, reflect.Float64:
		fv = rv.Float()
	case reflect.String:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(rv.String()), 64)
		if err != nil {
			return 0, invalidValue(f, v, "not a number")
		}
		fv = parsed
	default:
		return 0, invalidValue(f, v, "unsupported type")
	}

	if math.IsNaN(fv) || math.IsInf(fv, 0) {
		return 0, invalidValue(f, v, "not a finite number")
	}

	if f == FormatF4 {
		if math.Abs(fv) > math.MaxFloat32 {
			return 0, invalidValue(f, v, "out of float32 range")
		}
		fv = float64(float32(fv))
	}

	return fv, nil
}

// truthy follows the usual dynamic-language truthiness: zero numbers, empty strings,
// false and nil are false, everything else is true.
func truthy(v any) bool {
	if v == nil {
		return false
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() { //nolint:exhaustive
	case reflect.Bool:
		return rv.Bool()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int() != 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return rv.Uint() != 0
	case reflect.Float32, reflect.Float64:
		fv := rv.Float()
		return fv != 0 && !math.IsNaN(fv)
	case reflect.String:
		return rv.Len() > 0
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return !rv.IsNil()
	default:
		return true
	}
}

// toBinary encodes v as bytes and fits the result to size.
// Integers are written little-endian over size bytes.
func toBinary(v any, size int) ([]byte, error) {
	if v == nil {
		return make([]byte, size), nil
	}

	switch val := v.(type) {
	case []byte:
		return util.FitBytes(val, size), nil
	case string:
		return util.FitBytes([]byte(val), size), nil
	case bool:
		return nil, invalidValue(FormatBin, v, "unsupported type")
	}

	n, err := toInteger(v, FormatBin)
	if err != nil {
		return nil, err
	}

	bits := uint64(n.i) //nolint:gosec
	if n.isUint {
		bits = n.u
	}

	result := make([]byte, size)
	for i := range result {
		switch {
		case i < 8:
			result[i] = byte(bits >> (8 * i))
		case !n.isUint && n.i < 0:
			result[i] = 0xFF
		}
	}

	return result, nil
}

// toASCII stringifies v and fits the result to size, padding with spaces.
func toASCII(v any, size int) (string, error) {
	if v == nil {
		return util.FitString("", size), nil
	}

	if b, ok := v.([]byte); ok {
		return util.FitString(string(b), size), nil
	}

	var s string
	rv := reflect.ValueOf(v)
	switch rv.Kind() { //nolint:exhaustive
	case reflect.String:
		s = rv.String()
	case reflect.Bool:
		if rv.Bool() {
			return "", invalidValue(FormatA, v, "unsupported type")
		}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		s = strconv.FormatInt(rv.Int(), 10)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		s = strconv.FormatUint(rv.Uint(), 10)
	case reflect.Float32, reflect.Float64:
		fv := rv.Float()
		if math.IsNaN(fv) || math.IsInf(fv, 0) {
			return "", invalidValue(FormatA, v, "not a finite number")
		}
		s = formatNumber(fv)
	default:
		return "", invalidValue(FormatA, v, "unsupported type")
	}

	return util.FitString(s, size), nil
}

// formatNumber renders a float the way a number literal is usually printed:
// integral values without exponent or fraction, others in shortest form.
func formatNumber(fv float64) string {
	if fv == math.Trunc(fv) && math.Abs(fv) < 1e21 {
		return strconv.FormatFloat(fv, 'f', -1, 64)
	}

	return strconv.FormatFloat(fv, 'g', -1, 64)
}

func invalidValue(f Format, v any, reason string) error {
	return newItemError(fmt.Errorf("%w: %s value %v (%T): %s", ErrInvalidFormat, f, v, v, reason))
}
