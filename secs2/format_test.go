package secs2

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFormat_Table(t *testing.T) {
	tests := []struct {
		format Format
		name   string
		code   uint8
		width  int
	}{
		{FormatList, "List", 0o00, 0},
		{FormatBin, "Bin", 0o10, 1},
		{FormatBool, "Bool", 0o11, 1},
		{FormatA, "A", 0o20, 1},
		{FormatI8, "I8", 0o30, 8},
		{FormatI1, "I1", 0o31, 1},
		{FormatI2, "I2", 0o32, 2},
		{FormatI4, "I4", 0o34, 4},
		{FormatF8, "F8", 0o40, 8},
		{FormatF4, "F4", 0o44, 4},
		{FormatU8, "U8", 0o50, 8},
		{FormatU1, "U1", 0o51, 1},
		{FormatU2, "U2", 0o52, 2},
		{FormatU4, "U4", 0o54, 4},
	}

	for _, test := range tests {
		require := require.New(t)

		require.True(test.format.IsValid())
		require.Equal(test.name, test.format.String())
		require.Equal(test.code, test.format.Code())
		require.Equal(test.width, test.format.Width())

		parsed, err := ParseFormat(test.name)
		require.NoError(err)
		require.Equal(test.format, parsed)
	}
}

func TestFormat_Predicates(t *testing.T) {
	require := require.New(t)

	require.True(FormatA.IsSizeable())
	require.True(FormatBin.IsSizeable())
	require.False(FormatU1.IsSizeable())

	require.True(FormatI8.IsSigned())
	require.False(FormatU8.IsSigned())
	require.True(FormatU2.IsUnsigned())
	require.True(FormatU2.IsInteger())
	require.False(FormatF4.IsInteger())
	require.True(FormatF4.IsNumeric())
	require.False(FormatBool.IsNumeric())
	require.True(FormatList.IsList())

	require.False(Format(0x04).IsValid())
	require.Equal("Format(0x04)", Format(0x04).String())
}

func TestFormatFromByte(t *testing.T) {
	require := require.New(t)

	f, lenBytes, err := FormatFromByte(0x65)
	require.NoError(err)
	require.Equal(FormatI1, f)
	require.Equal(1, lenBytes)

	f, lenBytes, err = FormatFromByte(0xA7)
	require.NoError(err)
	require.Equal(FormatU1, f)
	require.Equal(3, lenBytes)

	_, _, err = FormatFromByte(0x64)
	require.ErrorIs(err, ErrInvalidFormat)

	_, _, err = FormatFromByte(0x05)
	require.ErrorIs(err, ErrInvalidFormat)

	_, err = ParseFormat("i1")
	require.ErrorIs(err, ErrInvalidFormat)
}
