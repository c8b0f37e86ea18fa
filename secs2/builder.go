package secs2

import (
	"fmt"
)

// ItemBuilder collects the name, format, size and value of an item and produces an
// immutable Item with Build.
//
// Each setter validates its argument and returns the builder for chaining. An invalid
// format or size is kept as the builder error and later setters become no-ops. The value
// is re-coerced from the raw input whenever the format or size changes, so the order of
// setter calls does not affect the built item, and a coercion error only sticks when it
// still holds for the final format and size.
type ItemBuilder struct {
	name     string
	format   Format
	size     int
	raw      any
	hasRaw   bool
	value    payload
	valueErr error
	err      error
}

// NewItemBuilder returns a builder with an empty name and the I2 format.
func NewItemBuilder() *ItemBuilder {
	return &ItemBuilder{format: FormatI2}
}

// Name returns the current item name.
func (b *ItemBuilder) Name() string { return b.name }

// Format returns the current item format.
func (b *ItemBuilder) Format() Format { return b.format }

// Size returns the current size, 0 for formats without size.
func (b *ItemBuilder) Size() int {
	if !b.format.IsSizeable() {
		return 0
	}

	return b.size
}

// Value returns the coerced value in the same shape as Item.Value, or nil when no value is set.
func (b *ItemBuilder) Value() any {
	if !b.hasRaw {
		return nil
	}

	return b.value.value(b.format)
}

// Err returns the first argument error recorded by a setter, or the error of
// coercing the current value to the current format.
func (b *ItemBuilder) Err() error {
	if b.err != nil {
		return b.err
	}

	return b.valueErr
}

// SetName sets the display label of the item.
func (b *ItemBuilder) SetName(name string) *ItemBuilder {
	if b.err != nil {
		return b
	}

	b.name = name

	return b
}

// SetFormat sets the item format. Setting a format without size resets the size to 0.
func (b *ItemBuilder) SetFormat(f Format) *ItemBuilder {
	if b.err != nil {
		return b
	}

	if !f.IsValid() {
		b.err = newItemError(fmt.Errorf("%w: %s", ErrInvalidFormat, f))
		return b
	}

	b.format = f
	if !f.IsSizeable() {
		b.size = 0
	}

	return b.recoerce()
}

// SetFormatName sets the item format by name, e.g. "U4".
func (b *ItemBuilder) SetFormatName(name string) *ItemBuilder {
	if b.err != nil {
		return b
	}

	f, err := ParseFormat(name)
	if err != nil {
		b.err = err
		return b
	}

	return b.SetFormat(f)
}

// SetSize sets the size of an A or Bin item. It must be in [0, 65535].
func (b *ItemBuilder) SetSize(size int) *ItemBuilder {
	if b.err != nil {
		return b
	}

	if size < 0 || size > MaxSize {
		b.err = newItemError(fmt.Errorf("%w: %d", ErrInvalidSize, size))
		return b
	}

	b.size = size

	if b.format.IsSizeable() {
		return b.recoerce()
	}

	return b
}

// SetValue sets the item value, coercing it to the current format.
//
// See the package documentation for the accepted input types per format.
func (b *ItemBuilder) SetValue(v any) *ItemBuilder {
	if b.err != nil {
		return b
	}

	b.raw = v
	b.hasRaw = true

	return b.recoerce()
}

func (b *ItemBuilder) recoerce() *ItemBuilder {
	if !b.hasRaw {
		return b
	}

	b.value, b.valueErr = coerceValue(b.raw, b.format, b.Size())

	return b
}

// Build creates the item. It returns the error reported by Err, or ErrSizeLimit
// when the item data exceeds MaxByteSize.
func (b *ItemBuilder) Build() (*Item, error) {
	if err := b.Err(); err != nil {
		return nil, err
	}

	value := b.value
	if !b.hasRaw {
		value = defaultPayload(b.format, b.Size())
	}

	item := &Item{
		name:    b.name,
		format:  b.format,
		size:    b.Size(),
		payload: value,
	}

	if item.dataByteLength() > MaxByteSize {
		return nil, newItemError(fmt.Errorf("%w: %d bytes", ErrSizeLimit, item.dataByteLength()))
	}

	return item, nil
}

// NewItem builds an item from exactly one builder.
// It returns ErrMissingBuilder without a builder and ErrTooManyParams with more than one.
func NewItem(builders ...*ItemBuilder) (*Item, error) {
	switch {
	case len(builders) == 0 || builders[0] == nil:
		return nil, newItemError(ErrMissingBuilder)
	case len(builders) > 1:
		return nil, newItemError(ErrTooManyParams)
	}

	return builders[0].Build()
}
