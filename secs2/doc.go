// Package secs2 provides the SECS-II data item model used inside HSMS data messages.
//
// Key Features:
//   - Format table: the fourteen SECS-II formats (List, Bin, Bool, A, I1..I8, U1..U8, F4, F8)
//     with their format codes, value widths and ranges.
//   - Immutable items: an Item is a scalar, an array of scalars, a string, a byte buffer or a
//     list of child items. Items are built once and never change.
//   - Builder with coercion: ItemBuilder validates and converts loosely typed input to the
//     item format. The order of builder calls does not change the result.
//   - Encoding: Item.ToBytes produces the format byte, 1-3 length bytes and the big-endian
//     value bytes.
//
// Value coercion per format:
//   - I1..I8, U1..U8: Go integers, floats (truncated), numeric strings and bools (1/0),
//     range-checked against the format.
//   - F4, F8: Go numbers and numeric strings. The value must be finite.
//   - Bool: any value, by truthiness.
//   - Bin: []byte (copied), string (UTF-8 bytes), integers (little-endian over size bytes)
//     and nil (empty), then zero-padded or truncated to size.
//   - A: string, []byte, numbers (stringified), nil or false (empty), then space-padded or
//     truncated to size.
//   - List: *Item and []*Item. Values that are not items are dropped.
//
// A slice of length 1 is treated as a single value. A and Bin use only the first element of a slice.
//
// Usage Example:
//
//	item := secs2.List("status",
//	    secs2.U4("svid", 1001),
//	    secs2.A("name", "chamber", 10),
//	    secs2.F4("temp", 23.5, 24.1),
//	)
//	if err := item.Error(); err != nil {
//	    return err
//	}
//	raw := item.ToBytes()
package secs2
