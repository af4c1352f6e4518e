package quassel

import "errors"

var (
	ErrTruncated       = errors.New("quassel: truncated data")
	ErrUnknownType     = errors.New("quassel: unsupported variant type")
	ErrUnknownUserType = errors.New("quassel: unsupported user type")
	ErrUnencodable     = errors.New("quassel: value has no variant encoding")
	ErrBadMessage      = errors.New("quassel: malformed message")
	ErrUnknownMsgType  = errors.New("quassel: unknown handshake message type")
	ErrUnknownRequest  = errors.New("quassel: unknown signal proxy request")
	ErrFrameTooLarge   = errors.New("quassel: frame too large")
)
