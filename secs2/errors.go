package secs2

import "errors"

var (
	// ErrMissingBuilder indicates that an item was constructed without a builder.
	ErrMissingBuilder = errors.New("missing builder")

	// ErrTooManyParams indicates that more than one builder was passed to NewItem.
	ErrTooManyParams = errors.New("too many parameters")

	// ErrInvalidFormat indicates an unknown format, or a value that cannot be
	// coerced to the item's format (non-numeric input, out of range, nil element).
	ErrInvalidFormat = errors.New("invalid format")

	// ErrInvalidSize indicates a size outside of [0, 65535].
	ErrInvalidSize = errors.New("invalid size, should be in range of [0, 65535]")

	// ErrSizeLimit indicates that the encoded data of an item exceeds MaxByteSize.
	ErrSizeLimit = errors.New("item size limit exceeded")

	// ErrNotList indicates that indices were passed to Get on a non-list item.
	ErrNotList = errors.New("item is not a list")

	// ErrFormatMismatch indicates that a typed accessor does not match the item's format.
	ErrFormatMismatch = errors.New("item format mismatch")
)

// An ItemError records a failed item creation or access.
type ItemError struct {
	err error
}

// NewItemError wraps err in an ItemError, flattening a nested ItemError.
func NewItemError(err error) *ItemError {
	return newItemError(err)
}

func newItemError(err error) *ItemError {
	var itemErr *ItemError
	if errors.As(err, &itemErr) {
		return itemErr
	}

	return &ItemError{err: err}
}

func (e *ItemError) Error() string {
	return e.err.Error()
}

func (e *ItemError) Unwrap() error {
	return e.err
}
