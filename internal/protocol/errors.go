package protocol

import (
	"errors"

	"github.com/danmuck/mycelia/internal/protocol/wire"
)

var (
	ErrMissingReturnAddress = errors.New("protocol: missing return address")
	ErrIncompleteArguments  = errors.New("protocol: incomplete arguments")
	ErrMissingSecurityToken = errors.New("protocol: missing security token")
	ErrEmptyUpdate          = errors.New("protocol: no valid global values set")
	ErrInvalidCommand       = errors.New("protocol: command not permissible")

	ErrFieldTooLong           = wire.ErrFieldTooLong
	ErrInvalidUTF8            = wire.ErrInvalidUTF8
	ErrUnsupportedPayloadType = errors.New("protocol: unsupported payload type")

	ErrTruncated            = wire.ErrTruncated
	ErrTrailingBytes        = errors.New("protocol: trailing bytes after frame")
	ErrUnsupportedVersion   = errors.New("protocol: unsupported version")
	ErrInvalidCorrelationID = errors.New("protocol: invalid correlation id")
	ErrFrameTooLarge        = errors.New("protocol: frame too large")

	ErrTransport = errors.New("protocol: transport failure")
)

// Kind groups errors by what the caller should do about them.
type Kind int

const (
	KindUnknown Kind = iota
	// KindValidation: fix the command.
	KindValidation
	// KindEncoding: a field cannot be represented on the wire.
	KindEncoding
	// KindDecoding: the received bytes are not a well-formed frame.
	KindDecoding
	// KindTransport: the network operation failed; retrying may help.
	KindTransport
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindEncoding:
		return "encoding"
	case KindDecoding:
		return "decoding"
	case KindTransport:
		return "transport"
	default:
		return "unknown"
	}
}

var kinds = []struct {
	err  error
	kind Kind
}{
	{ErrMissingReturnAddress, KindValidation},
	{ErrIncompleteArguments, KindValidation},
	{ErrMissingSecurityToken, KindValidation},
	{ErrEmptyUpdate, KindValidation},
	{ErrInvalidCommand, KindValidation},
	{ErrFieldTooLong, KindEncoding},
	{ErrInvalidUTF8, KindEncoding},
	{ErrUnsupportedPayloadType, KindEncoding},
	{ErrTruncated, KindDecoding},
	{ErrTrailingBytes, KindDecoding},
	{ErrUnsupportedVersion, KindDecoding},
	{ErrInvalidCorrelationID, KindDecoding},
	{ErrFrameTooLarge, KindDecoding},
	{ErrTransport, KindTransport},
}

// KindOf classifies err by the first known sentinel it wraps.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindUnknown
}

// IsRetryable reports whether err came from the network rather than the command itself.
func IsRetryable(err error) bool {
	return KindOf(err) == KindTransport
}
