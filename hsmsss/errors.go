package hsmsss

import "errors"

var (
	// ErrConnConfigNil indicates that a connection option was applied to a nil ConnectionConfig.
	ErrConnConfigNil = errors.New("connection config is nil")

	// ErrInvalidConfig wraps every failure to parse a YAML connection config.
	ErrInvalidConfig = errors.New("invalid connection config")

	// ErrDuplicateContext indicates that a reply-expected message reuses the context of a
	// transaction that is still waiting for its reply.
	ErrDuplicateContext = errors.New("context already in use by a pending transaction")

	// ErrNilMessage is returned by Send for a nil message.
	ErrNilMessage = errors.New("message is nil")
)
