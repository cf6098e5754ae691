// Package command builds validated protocol commands for callers.
//
// Every constructor returns either a command that will encode cleanly (field
// lengths aside) or a validation error, before any bytes are produced.
package command

import (
	"fmt"

	"github.com/danmuck/mycelia/internal/protocol"
	"github.com/danmuck/mycelia/internal/protocol/schema"
)

// Message sends payload through route.
func Message(returnAddress, route string, payload any) (protocol.Command, error) {
	if err := requireReturnAddress(returnAddress); err != nil {
		return protocol.Command{}, err
	}
	if route == "" {
		return protocol.Command{}, fmt.Errorf("%w: message requires a route", protocol.ErrIncompleteArguments)
	}
	body, err := protocol.PayloadBytes(payload)
	if err != nil {
		return protocol.Command{}, err
	}
	cmd := protocol.NewCommand(schema.ObjMessage, schema.CmdSend, returnAddress)
	cmd.Args[0] = route
	cmd.Payload = body
	return cmd, nil
}

// Transformer adds or removes a transformer on route/channel that forwards to address.
func Transformer(op schema.CmdType, returnAddress, route, channel, address string) (protocol.Command, error) {
	return attachment(schema.ObjTransformer, op, returnAddress, route, channel, address)
}

// Subscriber adds or removes a subscriber on route/channel that receives at address.
func Subscriber(op schema.CmdType, returnAddress, route, channel, address string) (protocol.Command, error) {
	return attachment(schema.ObjSubscriber, op, returnAddress, route, channel, address)
}

func attachment(obj schema.ObjType, op schema.CmdType, returnAddress, route, channel, address string) (protocol.Command, error) {
	if err := requireCommand(obj, op); err != nil {
		return protocol.Command{}, err
	}
	if err := requireReturnAddress(returnAddress); err != nil {
		return protocol.Command{}, err
	}
	if route == "" {
		return protocol.Command{}, fmt.Errorf("%w: %s requires a route", protocol.ErrIncompleteArguments, obj)
	}
	cmd := protocol.NewCommand(obj, op, returnAddress)
	cmd.Args[0] = route
	cmd.Args[1] = channel
	cmd.Args[2] = address
	return cmd, nil
}

// Globals updates broker-wide settings. Only set fields are sent.
func Globals(returnAddress string, values GlobalValues) (protocol.Command, error) {
	if err := requireReturnAddress(returnAddress); err != nil {
		return protocol.Command{}, err
	}
	payload, err := values.Payload()
	if err != nil {
		return protocol.Command{}, err
	}
	cmd := protocol.NewCommand(schema.ObjGlobals, schema.CmdUpdate, returnAddress)
	cmd.Payload = payload
	return cmd, nil
}

// Action issues a broker action such as SIGTERM.
func Action(op schema.CmdType, returnAddress string) (protocol.Command, error) {
	if err := requireCommand(schema.ObjAction, op); err != nil {
		return protocol.Command{}, err
	}
	if err := requireReturnAddress(returnAddress); err != nil {
		return protocol.Command{}, err
	}
	return protocol.NewCommand(schema.ObjAction, op, returnAddress), nil
}

func requireReturnAddress(addr string) error {
	if addr == "" {
		return protocol.ErrMissingReturnAddress
	}
	return nil
}

func requireCommand(obj schema.ObjType, op schema.CmdType) error {
	if err := schema.Validate(obj, op); err != nil {
		return fmt.Errorf("%w: %v", protocol.ErrInvalidCommand, err)
	}
	return nil
}
