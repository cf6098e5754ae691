package main

import (
	"context"
	"fmt"
	"time"

	"github.com/danmuck/mycelia/internal/command"
	"github.com/danmuck/mycelia/internal/protocol"
	"github.com/danmuck/mycelia/internal/protocol/schema"
	"github.com/danmuck/mycelia/internal/transport"
	"github.com/spf13/cobra"
)

type sendOptions struct {
	to         string
	returnAddr string
	reply      bool
	timeout    time.Duration
}

func newSendCmd(root *rootOptions) *cobra.Command {
	opts := &sendOptions{}
	cmd := &cobra.Command{
		Use:   "send",
		Short: "Build and deliver one command",
		Long: `Build one command, validate it, and deliver it over TCP.

Destination and return address default to the configured listener address.`,
	}
	pf := cmd.PersistentFlags()
	pf.StringVar(&opts.to, "to", "", "destination host:port")
	pf.StringVar(&opts.returnAddr, "return", "", "return address carried in the command")
	pf.BoolVar(&opts.reply, "reply", false, "wait for one response frame")
	pf.DurationVar(&opts.timeout, "timeout", 30*time.Second, "overall send deadline")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "message ROUTE PAYLOAD",
			Short: "Send a message through a route",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				c, err := command.Message(opts.returnAddress(root), args[0], args[1])
				if err != nil {
					return err
				}
				return deliver(cmd, root, opts, c)
			},
		},
		newAttachmentCmd(root, opts, "transformer", command.Transformer),
		newAttachmentCmd(root, opts, "subscriber", command.Subscriber),
		newGlobalsCmd(root, opts),
		&cobra.Command{
			Use:   "action sigterm",
			Short: "Issue a broker action",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				op, err := schema.ParseCmdType(args[0])
				if err != nil {
					return err
				}
				c, err := command.Action(op, opts.returnAddress(root))
				if err != nil {
					return err
				}
				return deliver(cmd, root, opts, c)
			},
		},
	)
	return cmd
}

type attachmentBuilder func(op schema.CmdType, returnAddress, route, channel, address string) (protocol.Command, error)

func newAttachmentCmd(root *rootOptions, opts *sendOptions, name string, build attachmentBuilder) *cobra.Command {
	return &cobra.Command{
		Use:   name + " add|remove ROUTE CHANNEL ADDRESS",
		Short: fmt.Sprintf("Add or remove a %s on a route channel", name),
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			op, err := schema.ParseCmdType(args[0])
			if err != nil {
				return err
			}
			c, err := build(op, opts.returnAddress(root), args[1], args[2], args[3])
			if err != nil {
				return err
			}
			return deliver(cmd, root, opts, c)
		},
	}
}

func newGlobalsCmd(root *rootOptions, opts *sendOptions) *cobra.Command {
	var (
		values      command.GlobalValues
		port        int
		verbosity   int
		printTree   bool
		consolidate bool
	)
	cmd := &cobra.Command{
		Use:   "globals --token TOKEN [settings]",
		Short: "Update broker-wide settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := cmd.Flags()
			if f.Changed("port") {
				values.Port = command.Int(port)
			}
			if f.Changed("verbosity") {
				values.Verbosity = command.Int(verbosity)
			}
			if f.Changed("print-tree") {
				values.PrintTree = command.Bool(printTree)
			}
			if f.Changed("consolidate") {
				values.Consolidate = command.Bool(consolidate)
			}
			c, err := command.Globals(opts.returnAddress(root), values)
			if err != nil {
				return err
			}
			return deliver(cmd, root, opts, c)
		},
	}
	f := cmd.Flags()
	f.StringVar(&values.SecurityToken, "token", "", "security token authorizing the update")
	f.StringVar(&values.Address, "address", "", "broker bind address")
	f.IntVar(&port, "port", 0, "broker port (1-65535)")
	f.IntVar(&verbosity, "verbosity", 0, "broker verbosity (0-3)")
	f.BoolVar(&printTree, "print-tree", false, "print the routing tree")
	f.StringVar(&values.TransformTimeout, "transform-timeout", "", "transformer timeout, e.g. 30s")
	f.BoolVar(&consolidate, "consolidate", false, "consolidate deliveries")
	return cmd
}

func (o *sendOptions) returnAddress(root *rootOptions) string {
	if o.returnAddr != "" {
		return o.returnAddr
	}
	return root.cfg.Listener.Addr()
}

func (o *sendOptions) destination(root *rootOptions) string {
	if o.to != "" {
		return o.to
	}
	return root.cfg.Listener.Addr()
}

func deliver(cmd *cobra.Command, root *rootOptions, opts *sendOptions, c protocol.Command) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
	defer cancel()
	addr := opts.destination(root)
	sender := transport.NewSender(root.cfg.Transport)
	out := cmd.OutOrStdout()

	if !opts.reply {
		if err := sender.Send(ctx, c, addr); err != nil {
			return err
		}
		fmt.Fprintf(out, "sent %s to %s\n", c, addr)
		return nil
	}

	reply, err := sender.Request(ctx, c, addr)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "sent %s to %s\n", c, addr)
	if decoded, err := protocol.Decode(reply); err == nil {
		fmt.Fprintf(out, "reply %s\n", decoded)
	} else {
		fmt.Fprintf(out, "reply %d bytes: %x\n", len(reply), reply)
	}
	return nil
}
