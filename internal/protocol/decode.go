package protocol

import (
	"fmt"

	"github.com/danmuck/mycelia/internal/protocol/schema"
	"github.com/danmuck/mycelia/internal/protocol/wire"
	"github.com/google/uuid"
)

// Decode parses one complete frame, including its u32 length prefix.
func Decode(frame []byte) (Command, error) {
	d := wire.NewDecoder(frame)
	total, err := d.U32()
	if err != nil {
		return Command{}, ErrTruncated
	}
	switch {
	case uint64(total) > uint64(d.Remaining()):
		return Command{}, ErrTruncated
	case uint64(total) < uint64(d.Remaining()):
		return Command{}, ErrTrailingBytes
	}
	return DecodeBody(frame[LengthPrefixSize:])
}

// DecodeBody parses a frame body already stripped of its length prefix.
// Command-table legality is not enforced here; callers decide what to do with
// a well-formed but unknown command.
func DecodeBody(body []byte) (Command, error) {
	d := wire.NewDecoder(body)
	var cmd Command

	version, err := d.U8()
	if err != nil {
		return Command{}, err
	}
	if version != Version {
		return Command{}, fmt.Errorf("%w: %d", ErrUnsupportedVersion, version)
	}
	cmd.Version = version

	obj, err := d.U8()
	if err != nil {
		return Command{}, err
	}
	cmd.Object = schema.ObjType(obj)

	sub, err := d.U8()
	if err != nil {
		return Command{}, err
	}
	cmd.Cmd = schema.CmdType(sub)

	rawID, err := d.Str8()
	if err != nil {
		return Command{}, err
	}
	id, err := uuid.Parse(rawID)
	if err != nil {
		return Command{}, fmt.Errorf("%w: %q", ErrInvalidCorrelationID, rawID)
	}
	cmd.CorrelationID = id

	if cmd.ReturnAddress, err = d.Str16(); err != nil {
		return Command{}, err
	}
	for i := range cmd.Args {
		if cmd.Args[i], err = d.Str8(); err != nil {
			return Command{}, err
		}
	}
	if cmd.Payload, err = d.Bytes16(); err != nil {
		return Command{}, err
	}
	if d.Remaining() != 0 {
		return Command{}, ErrTrailingBytes
	}
	return cmd, nil
}
