package secs2

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestItem_ToBytes(t *testing.T) {
	tests := []struct {
		description string
		item        *Item
		expected    []byte
	}{
		{
			description: "I1 array",
			item:        I1("temp", 87, 12, 54),
			expected:    []byte{0x65, 0x03, 0x57, 0x0C, 0x36},
		},
		{
			description: "I1 scalar",
			item:        I1("", 66),
			expected:    []byte{0x65, 0x01, 0x42},
		},
		{
			description: "I1 nested slice is flattened",
			item:        I1("", []int{12, 99}),
			expected:    []byte{0x65, 0x02, 0x0C, 0x63},
		},
		{
			description: "I2 negative",
			item:        I2("", -21),
			expected:    []byte{0x69, 0x02, 0xFF, 0xEB},
		},
		{
			description: "I4 array",
			item:        I4("", -2147483640, -8865, 2147483640),
			expected: []byte{
				0x71, 0x0C, 0x80, 0x00, 0x00, 0x08, 0xFF, 0xFF, 0xDD, 0x5F, 0x7F, 0xFF, 0xFF, 0xF8,
			},
		},
		{
			description: "I4 scalar",
			item:        I4("", -2147483630),
			expected:    []byte{0x71, 0x04, 0x80, 0x00, 0x00, 0x12},
		},
		{
			description: "U4 array",
			item:        U4("temp", 4294967280, 123428865, 2147483640),
			expected: []byte{
				0xB1, 0x0C, 0xFF, 0xFF, 0xFF, 0xF0, 0x07, 0x5B, 0x60, 0x01, 0x7F, 0xFF, 0xFF, 0xF8,
			},
		},
		{
			description: "U4 scalar",
			item:        U4("temp", 3294967280),
			expected:    []byte{0xB1, 0x04, 0xC4, 0x65, 0x35, 0xF0},
		},
		{
			description: "U8 array",
			item:        U8("temp", 429121234967280, 123428432865, 2987147483640),
			expected: []byte{
				0xA1, 0x18,
				0x00, 0x01, 0x86, 0x48, 0x92, 0xC6, 0x9A, 0xF0,
				0x00, 0x00, 0x00, 0x1C, 0xBC, 0xE8, 0x6B, 0xE1,
				0x00, 0x00, 0x02, 0xB7, 0x7F, 0xDD, 0x59, 0xF8,
			},
		},
		{
			description: "Bin from bytes",
			item:        Bin("", []byte{0x00, 0x01}, 2),
			expected:    []byte{0x21, 0x02, 0x00, 0x01},
		},
		{
			description: "Bin from string is truncated",
			item:        Bin("", "hello world !", 10),
			expected:    []byte{0x21, 0x0A, 0x68, 0x65, 0x6C, 0x6C, 0x6F, 0x20, 0x77, 0x6F, 0x72, 0x6C},
		},
		{
			description: "Bin from empty string is zero padded",
			item:        Bin("", "", 5),
			expected:    []byte{0x21, 0x05, 0x00, 0x00, 0x00, 0x00, 0x00},
		},
		{
			description: "A padded with spaces",
			item:        A("", "ab", 4),
			expected:    []byte{0x41, 0x04, 'a', 'b', ' ', ' '},
		},
		{
			description: "Bool",
			item:        Bool("", true, false),
			expected:    []byte{0x25, 0x02, 0x01, 0x00},
		},
		{
			description: "F4",
			item:        F4("", 1.5),
			expected:    []byte{0x91, 0x04, 0x3F, 0xC0, 0x00, 0x00},
		},
		{
			description: "F8",
			item:        F8("", -2),
			expected:    []byte{0x81, 0x08, 0xC0, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00},
		},
		{
			description: "empty List",
			item:        List(""),
			expected:    []byte{0x01, 0x00},
		},
		{
			description: "nested List",
			item:        List("", U1("", 1), List("", A("", "x", 1))),
			expected:    []byte{0x01, 0x02, 0xA5, 0x01, 0x01, 0x01, 0x01, 0x41, 0x01, 'x'},
		},
		{
			description: "A with two length bytes",
			item:        A("", "", 256),
			expected:    append([]byte{0x42, 0x01, 0x00}, []byte(spaces(256))...),
		},
	}

	for i, test := range tests {
		t.Logf("Test #%d: %s", i, test.description)
		require := require.New(t)

		require.NoError(test.item.Error())
		encoded := test.item.ToBytes()
		require.Equal(test.expected, encoded)
		require.Equal(len(encoded), test.item.EncodedLen())
	}
}

func TestItem_ToBytes_Mixed(t *testing.T) {
	require := require.New(t)

	items := []*Item{
		U1("", 16),
		I1("", -17),
		U1("", 161, 211),
		I1("", -123, "-45", []int{-113, 11}),
		U1("", 200, "210"),
		U2("", 28700, "21110"),
		U2("", 6500),
		I2("", -2700, "8541"),
		I2("", -5124),
		I4("", -2147483600, "1147483647"),
		I4("", -6712645),
		U4("", 4294967295, "5321231"),
		U4("", 4294967267),
		U8("", 4212394967295, "5354321231"),
		U8("", 429496567267),
	}

	var encoded []byte
	for _, item := range items {
		require.NoError(item.Error())
		encoded = item.AppendBytes(encoded)
	}

	expected := []byte{
		0xA5, 0x01, 0x10, 0x65, 0x01, 0xEF, 0xA5, 0x02, 0xA1,
		0xD3, 0x65, 0x04, 0x85, 0xD3, 0x8F, 0x0B, 0xA5, 0x02, 0xC8, 0xD2,
		0xA9, 0x04, 0x70, 0x1C, 0x52, 0x76, 0xA9, 0x02, 0x19, 0x64, 0x69,
		0x04, 0xF5, 0x74, 0x21, 0x5D, 0x69, 0x02, 0xEB, 0xFC,
		0x71, 0x08, 0x80, 0x00, 0x00, 0x30, 0x44, 0x65, 0x35,
		0xFF, 0x71, 0x04, 0xFF, 0x99, 0x92, 0xBB,
		0xB1, 0x08, 0xFF, 0xFF, 0xFF, 0xFF, 0x00, 0x51, 0x32,
		0x0F, 0xB1, 0x04, 0xFF, 0xFF, 0xFF, 0xE3,
		0xA1, 0x10, 0x00, 0x00, 0x03, 0xD4, 0xC6, 0x4E, 0x40, 0xFF, 0x00, 0x00,
		0x00, 0x01, 0x3F, 0x24, 0x75, 0x4F, 0xA1, 0x08,
		0x00, 0x00, 0x00, 0x63, 0xFF, 0xFD, 0x85, 0xE3,
	}
	require.Equal(expected, encoded)
}

func TestItem_ThreeLengthBytes(t *testing.T) {
	require := require.New(t)

	item := U1("", make([]int, 0x10000))
	require.NoError(item.Error())
	require.Equal(0x10000, item.Len())

	encoded := item.ToBytes()
	require.Equal([]byte{0xA7, 0x01, 0x00, 0x00}, encoded[:4])
	require.Len(encoded, 4+0x10000)
}

func TestItem_String(t *testing.T) {
	tests := []struct {
		description string
		item        *Item
		expected    string
	}{
		{"Bin without name", Bin("", []byte{0x01, 0x02}, 2), "Bin<2>  [1,2]"},
		{"Bin with name", Bin("id", []byte{0xFF}, 1), "Bin<1> id [255]"},
		{"A", A("name", "abc", 5), "A<5> name [abc  ]"},
		{"empty A", A("name", "", 0), "A<0> name"},
		{"I1 scalar", I1("x", 5), "I1 x [5]"},
		{"I1 array", I1("x", 1, 2, 3), "I1<3> x [1,2,3]"},
		{"U8 scalar", U8("", uint64(math.MaxUint64)), "U8  [18446744073709551615]"},
		{"F8 array", F8("f", 1.5, -2), "F8<2> f [1.5,-2]"},
		{"Bool", Bool("b", true), "Bool b [true]"},
		{"empty List", List("l"), "List l"},
		{
			"nested List",
			List("l", I1("a", 1), List("inner", A("b", "hi", 2))),
			"List l\n  I1 a [1]\n  List inner\n    A<2> b [hi]",
		},
	}

	for i, test := range tests {
		t.Logf("Test #%d: %s", i, test.description)
		require.Equal(t, test.expected, test.item.String())
	}

	require.Equal(t, "  I1 x [5]", I1("x", 5).ToString("  "))
}

func TestItem_Value(t *testing.T) {
	require := require.New(t)

	require.Equal(int64(5), I1("", 5).Value())
	require.Equal([]int64{1, 2}, I4("", 1, 2).Value())
	require.Equal(uint64(7), U2("", 7).Value())
	require.Equal([]uint64{7, 8}, U2("", 7, 8).Value())
	require.Equal(1.5, F8("", 1.5).Value())
	require.Equal(true, Bool("", 1).Value())
	require.Equal("ab  ", A("", "ab", 4).Value())
	require.Equal([]byte{1, 0}, Bin("", []byte{1}, 2).Value())

	// I1 without values holds 0
	require.Equal(int64(0), I1("").Value())

	// returned slices are copies
	item := U4("", 1, 2, 3)
	values, ok := item.Value().([]uint64)
	require.True(ok)
	values[0] = 100
	require.Equal([]uint64{1, 2, 3}, item.Value())

	child := I1("", 1)
	list := List("", child)
	children, ok := list.Value().([]*Item)
	require.True(ok)
	require.Len(children, 1)
	require.Same(child, children[0])
}

func TestItem_F4Rounding(t *testing.T) {
	require := require.New(t)

	item := F4("", 0.1)
	require.NoError(item.Error())
	require.Equal(float64(float32(0.1)), item.Value())

	require.True(F4("", 0.1).Equals(NewFloatItem(FormatF4, 0.1)))
}

func TestItem_TypedAccessors(t *testing.T) {
	require := require.New(t)

	ints, err := I2("", 1, -1).ToInt()
	require.NoError(err)
	require.Equal([]int64{1, -1}, ints)

	uints, err := U1("", 3).ToUint()
	require.NoError(err)
	require.Equal([]uint64{3}, uints)

	floats, err := F4("", 2.5).ToFloat()
	require.NoError(err)
	require.Equal([]float64{2.5}, floats)

	bools, err := Bool("", 0, 1).ToBoolean()
	require.NoError(err)
	require.Equal([]bool{false, true}, bools)

	str, err := A("", "abc", 3).ToASCII()
	require.NoError(err)
	require.Equal("abc", str)

	bin, err := Bin("", []byte{9}, 1).ToBinary()
	require.NoError(err)
	require.Equal([]byte{9}, bin)

	list, err := List("", I1("", 1)).ToList()
	require.NoError(err)
	require.Len(list, 1)

	_, err = I1("", 1).ToUint()
	require.ErrorIs(err, ErrFormatMismatch)
	_, err = U1("", 1).ToInt()
	require.ErrorIs(err, ErrFormatMismatch)
	_, err = A("", "", 0).ToBinary()
	require.ErrorIs(err, ErrFormatMismatch)
	_, err = Bin("", nil, 0).ToASCII()
	require.ErrorIs(err, ErrFormatMismatch)
	_, err = I1("", 1).ToList()
	require.ErrorIs(err, ErrFormatMismatch)
	_, err = I1("", 1).ToFloat()
	require.ErrorIs(err, ErrFormatMismatch)
	_, err = I1("", 1).ToBoolean()
	require.ErrorIs(err, ErrFormatMismatch)
}

func TestItem_Get(t *testing.T) {
	require := require.New(t)

	root := List("root",
		U4("svid", 1001),
		List("nested", A("name", "chamber", 7), F8("temp", 23.5)),
	)
	require.NoError(root.Error())

	item, err := root.Get()
	require.NoError(err)
	require.Same(root, item)

	item, err = root.Get(1, 0)
	require.NoError(err)
	require.Equal("name", item.Name())
	require.Equal("chamber", item.Value())

	_, err = root.Get(0, 0)
	require.ErrorIs(err, ErrNotList)

	_, err = root.Get(2)
	require.Error(err)

	_, err = root.Get(-1)
	require.Error(err)
}

func TestItem_Equals(t *testing.T) {
	require := require.New(t)

	require.True(I1("a", 1, 2).Equals(I1("b", 1, 2)))
	require.False(I1("", 1).Equals(I2("", 1)))
	require.False(I1("", 1, 2).Equals(I1("", 1)))
	require.False(I1("", 1).Equals(nil))
	require.True(A("", "ab", 3).Equals(A("x", "ab ", 3)))
	require.False(A("", "ab", 3).Equals(A("", "ab", 2)))
	require.True(Bin("", []byte{1}, 2).Equals(Bin("", []byte{1, 0}, 2)))
	require.True(
		List("", I1("", 1), List("", U2("", 2))).Equals(
			List("other", I1("", 1), List("", U2("", 2)))))
	require.False(
		List("", I1("", 1), List("", U2("", 2))).Equals(
			List("", I1("", 1), List("", U2("", 3)))))
	require.False(List("", I1("", 1)).Equals(List("")))

	var nilItem *Item
	require.True(nilItem.Equals(nil))
}

func TestItem_IsArray(t *testing.T) {
	require := require.New(t)

	require.False(I1("", 1).IsArray())
	require.True(I1("", 1, 2).IsArray())
	require.True(NewIntItem(FormatI1).IsArray())
	require.False(A("", "abc", 3).IsArray())
	require.False(List("", I1("", 1), I1("", 2)).IsArray())
}

func TestItem_Size(t *testing.T) {
	require := require.New(t)

	require.Equal(0, I1("", 1).Size())
	require.Equal(0, List("", I1("", 1)).Size())
	require.Equal(5, A("", "ab", 5).Size())
	require.Equal(3, Bin("", nil, 3).Size())
	require.Equal(3, A("", "abc", 3).Len())
}

func TestItem_Errors(t *testing.T) {
	tests := []struct {
		description string
		item        *Item
	}{
		{"I1 overflow", I1("", 128)},
		{"I1 underflow", I1("", -129)},
		{"U1 negative", U1("", -1)},
		{"U2 overflow", U2("", 65536)},
		{"I8 above int64", I8("", uint64(math.MaxUint64))},
		{"not a number", I4("", "abc")},
		{"nil element in array", I4("", 1, nil)},
		{"NaN", F8("", math.NaN())},
		{"infinite", F4("", math.Inf(-1))},
		{"F4 overflow", F4("", 1e39)},
		{"A from true", A("", true, 1)},
		{"A size too large", A("", "", MaxSize+1)},
		{"Bin negative size", Bin("", nil, -1)},
		{"List with invalid child", List("", I1("", 1), U1("", -1))},
	}

	for i, test := range tests {
		t.Logf("Test #%d: %s", i, test.description)
		require := require.New(t)

		err := test.item.Error()
		require.Error(err)

		var itemErr *ItemError
		require.True(errors.As(err, &itemErr))
	}

	require.ErrorIs(t, I1("", 128).Error(), ErrInvalidFormat)
	require.ErrorIs(t, A("", "", MaxSize+1).Error(), ErrInvalidSize)
}

func TestNewItemError(t *testing.T) {
	require := require.New(t)

	inner := NewItemError(ErrNotList)
	outer := NewItemError(inner)
	require.Same(inner, outer)
	require.ErrorIs(outer, ErrNotList)
	require.Equal(ErrNotList.Error(), outer.Error())
}

func TestDecoderConstructors(t *testing.T) {
	require := require.New(t)

	item := NewIntItem(FormatI2, -1, 2)
	require.NoError(item.Error())
	require.True(item.Equals(I2("", -1, 2)))

	require.ErrorIs(NewIntItem(FormatI1, 200).Error(), ErrInvalidFormat)
	require.ErrorIs(NewIntItem(FormatU1, 1).Error(), ErrInvalidFormat)

	item = NewUintItem(FormatU4, 1, 2)
	require.NoError(item.Error())
	require.True(item.Equals(U4("", 1, 2)))
	require.ErrorIs(NewUintItem(FormatU1, 256).Error(), ErrInvalidFormat)
	require.ErrorIs(NewUintItem(FormatF4, 1).Error(), ErrInvalidFormat)

	require.ErrorIs(NewFloatItem(FormatI1, 1).Error(), ErrInvalidFormat)

	require.True(NewBooleanItem(true, false).Equals(Bool("", true, false)))

	item = NewASCIIItem("hello")
	require.Equal(5, item.Size())
	require.True(item.Equals(A("", "hello", 5)))

	raw := []byte{1, 2, 3}
	item = NewBinaryItem(raw)
	raw[0] = 9
	require.Equal([]byte{1, 2, 3}, item.Value())

	list := NewListItem(I1("", 1), nil, U1("", 2))
	require.NoError(list.Error())
	require.Equal(2, list.Len())

	require.Error(NewListItem(I1("", 500)).Error())
}

func FuzzItem_ToBytes_A(f *testing.F) {
	f.Add("hello", 10)
	f.Add("", 0)
	f.Add("truncate me", 3)

	f.Fuzz(func(t *testing.T, s string, size int) {
		item := A("", s, size)
		if size < 0 || size > MaxSize {
			require.Error(t, item.Error())
			return
		}

		require.NoError(t, item.Error())
		require.Equal(t, size, item.Size())
		require.Len(t, item.ToBytes(), item.EncodedLen())
	})
}

func spaces(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = ' '
	}

	return string(b)
}
