package protocol

import (
	"fmt"

	"github.com/danmuck/mycelia/internal/protocol/schema"
	"github.com/google/uuid"
)

// Version is the protocol version written into every frame.
const Version uint8 = 1

// ArgCount is the fixed size of the argument vector.
const ArgCount = 4

// Command is one protocol command. It is value data: build it, encode it once, drop it.
//
// Args meaning depends on Object:
//   - MESSAGE:                route
//   - TRANSFORMER/SUBSCRIBER: route, channel, address
//   - GLOBALS/ACTION:         unused
type Command struct {
	Version       uint8
	Object        schema.ObjType
	Cmd           schema.CmdType
	CorrelationID uuid.UUID
	ReturnAddress string
	Args          [ArgCount]string
	Payload       []byte
}

// NewCommand returns a command with a fresh correlation id.
func NewCommand(obj schema.ObjType, cmd schema.CmdType, returnAddress string) Command {
	return Command{
		Version:       Version,
		Object:        obj,
		Cmd:           cmd,
		CorrelationID: uuid.New(),
		ReturnAddress: returnAddress,
	}
}

// Route returns arg1.
func (c Command) Route() string {
	return c.Args[0]
}

// CmdValid reports whether Cmd is legal for Object.
func (c Command) CmdValid() bool {
	return schema.Allows(c.Object, c.Cmd)
}

// Validate runs every pre-encoding check in wire order.
func (c Command) Validate() error {
	if err := schema.Validate(c.Object, c.Cmd); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidCommand, err)
	}
	if c.ReturnAddress == "" {
		return ErrMissingReturnAddress
	}
	if schema.RequiresRoute(c.Object) && c.Args[0] == "" {
		return fmt.Errorf("%w: %s requires a route", ErrIncompleteArguments, c.Object)
	}
	return nil
}

func (c Command) String() string {
	return fmt.Sprintf(
		"%s/%s id=%s return=%q args=%q payload=%dB",
		c.Object,
		c.Cmd,
		c.CorrelationID,
		c.ReturnAddress,
		c.Args,
		len(c.Payload),
	)
}
