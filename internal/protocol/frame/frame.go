package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/danmuck/mycelia/internal/protocol"
)

// PrefixLen is the size of the big-endian u32 length prefix.
const PrefixLen = 4

var (
	ErrShortFrame     = fmt.Errorf("frame: connection closed mid-frame: %w", protocol.ErrTruncated)
	ErrFrameTooLarge  = protocol.ErrFrameTooLarge
	ErrEmptyFrame     = errors.New("frame: zero-length frame")
	ErrPrefixMismatch = errors.New("frame: length prefix does not match frame size")
)

// Limits constrains frame read memory use.
type Limits struct {
	MaxFrameBytes uint32
}

func DefaultLimits() Limits {
	return Limits{
		MaxFrameBytes: 8 * 1024 * 1024,
	}
}

// ReadFrame reads exactly one length-prefixed frame and returns it including the prefix.
// A clean close before the first prefix byte returns io.EOF.
func ReadFrame(r io.Reader, limits Limits) ([]byte, error) {
	var prefix [PrefixLen]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, ErrShortFrame
		}
		return nil, err
	}

	n := binary.BigEndian.Uint32(prefix[:])
	if n == 0 {
		return nil, ErrEmptyFrame
	}
	if limits.MaxFrameBytes > 0 && n > limits.MaxFrameBytes {
		return nil, fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, n, limits.MaxFrameBytes)
	}

	out := make([]byte, PrefixLen+int(n))
	copy(out, prefix[:])
	if _, err := io.ReadFull(r, out[PrefixLen:]); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, ErrShortFrame
		}
		return nil, err
	}
	return out, nil
}

// WriteFrame writes an already-encoded frame in one call.
func WriteFrame(w io.Writer, frame []byte) error {
	if len(frame) < PrefixLen {
		return ErrPrefixMismatch
	}
	if int(binary.BigEndian.Uint32(frame[:PrefixLen])) != len(frame)-PrefixLen {
		return ErrPrefixMismatch
	}
	n, err := w.Write(frame)
	if err != nil {
		return err
	}
	if n != len(frame) {
		return io.ErrShortWrite
	}
	return nil
}

// Body strips the length prefix from a frame returned by ReadFrame.
func Body(frame []byte) []byte {
	if len(frame) < PrefixLen {
		return nil
	}
	return frame[PrefixLen:]
}
