package protocol

import (
	"fmt"
	"io"

	"github.com/danmuck/mycelia/internal/protocol/wire"
)

// LengthPrefixSize is the size of the outer u32 frame length.
const LengthPrefixSize = 4

// fixed header: version, obj_type, cmd_type
const headerSize = 3

// Encode validates cmd and returns one complete frame:
//
//	u32    total_frame_length (bytes after this field)
//	u8     protocol_version
//	u8     obj_type
//	u8     cmd_type
//	str8   correlation_id
//	str16  return_address
//	str8   arg1..arg4
//	bytes16 payload
//
// Either a whole frame is returned or an error and no bytes.
func Encode(cmd Command) ([]byte, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	body, err := encodeBody(cmd)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, LengthPrefixSize+len(body))
	out = wire.AppendU32(out, uint64(len(body)))
	return append(out, body...), nil
}

// EncodeTo encodes cmd in memory and writes the frame with a single Write.
func EncodeTo(w io.Writer, cmd Command) error {
	frame, err := Encode(cmd)
	if err != nil {
		return err
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

func encodeBody(cmd Command) ([]byte, error) {
	version := cmd.Version
	if version == 0 {
		version = Version
	}

	buf := make([]byte, 0, headerSize+64+len(cmd.ReturnAddress)+len(cmd.Payload))

	// -----fixed header-----
	buf = wire.AppendU8(buf, uint64(version))
	buf = wire.AppendU8(buf, uint64(cmd.Object))
	buf = wire.AppendU8(buf, uint64(cmd.Cmd))

	// -----tracking sub-header-----
	var err error
	if buf, err = wire.AppendStr8(buf, cmd.CorrelationID.String()); err != nil {
		return nil, fieldErr("correlation_id", err)
	}
	if buf, err = wire.AppendStr16(buf, cmd.ReturnAddress); err != nil {
		return nil, fieldErr("return_address", err)
	}

	// -----arguments-----
	for i, arg := range cmd.Args {
		if buf, err = wire.AppendStr8(buf, arg); err != nil {
			return nil, fieldErr(fmt.Sprintf("arg%d", i+1), err)
		}
	}

	// -----payload-----
	if buf, err = wire.AppendBytes16(buf, cmd.Payload); err != nil {
		return nil, fieldErr("payload", err)
	}
	return buf, nil
}

func fieldErr(field string, err error) error {
	return fmt.Errorf("protocol: encode %s: %w", field, err)
}
