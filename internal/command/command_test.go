package command

import (
	"errors"
	"testing"

	"github.com/danmuck/mycelia/internal/protocol"
	"github.com/danmuck/mycelia/internal/protocol/schema"
	"github.com/danmuck/mycelia/internal/testutil/testlog"
)

func TestMessageEncodesAndDecodes(t *testing.T) {
	testlog.Start(t)
	cmd, err := Message("A", "orders", "hello")
	if err != nil {
		t.Fatalf("message: %v", err)
	}
	frame, err := protocol.Encode(cmd)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := protocol.Decode(frame)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Object != schema.ObjMessage || got.Cmd != schema.CmdSend || got.Route() != "orders" || string(got.Payload) != "hello" {
		t.Fatalf("unexpected decoded message: %s", got)
	}
	if got.Args[1] != "" || got.Args[2] != "" || got.Args[3] != "" {
		t.Fatalf("unused args must be empty: %q", got.Args)
	}
}

func TestMessageBytePayload(t *testing.T) {
	testlog.Start(t)
	cmd, err := Message("A", "orders", []byte{0x01, 0x02})
	if err != nil {
		t.Fatalf("message: %v", err)
	}
	if len(cmd.Payload) != 2 {
		t.Fatalf("unexpected payload: %x", cmd.Payload)
	}
	if _, err := Message("A", "orders", 3.14); !errors.Is(err, protocol.ErrUnsupportedPayloadType) {
		t.Fatalf("expected ErrUnsupportedPayloadType, got %v", err)
	}
}

func TestConstructionErrors(t *testing.T) {
	testlog.Start(t)
	cases := []struct {
		name string
		fn   func() error
		want error
	}{
		{"message no return", func() error { _, err := Message("", "orders", "x"); return err }, protocol.ErrMissingReturnAddress},
		{"message no route", func() error { _, err := Message("A", "", "x"); return err }, protocol.ErrIncompleteArguments},
		{"transformer no route", func() error {
			_, err := Transformer(schema.CmdAdd, "A", "", "ch", "10.0.0.1:9")
			return err
		}, protocol.ErrIncompleteArguments},
		{"subscriber no route", func() error {
			_, err := Subscriber(schema.CmdRemove, "A", "", "ch", "10.0.0.1:9")
			return err
		}, protocol.ErrIncompleteArguments},
		{"subscriber bad cmd", func() error {
			_, err := Subscriber(schema.CmdSend, "A", "orders", "ch", "10.0.0.1:9")
			return err
		}, protocol.ErrInvalidCommand},
		{"transformer no return", func() error {
			_, err := Transformer(schema.CmdAdd, "", "orders", "ch", "10.0.0.1:9")
			return err
		}, protocol.ErrMissingReturnAddress},
		{"action unknown", func() error { _, err := Action(schema.CmdUnknown, "A"); return err }, protocol.ErrInvalidCommand},
		{"action no return", func() error { _, err := Action(schema.CmdSigterm, ""); return err }, protocol.ErrMissingReturnAddress},
		{"globals no token", func() error {
			_, err := Globals("A", GlobalValues{Address: "10.0.0.1"})
			return err
		}, protocol.ErrMissingSecurityToken},
		{"globals no token no fields", func() error { _, err := Globals("A", GlobalValues{}); return err }, protocol.ErrMissingSecurityToken},
		{"globals token only", func() error {
			_, err := Globals("A", GlobalValues{SecurityToken: "tok"})
			return err
		}, protocol.ErrEmptyUpdate},
		{"globals out of range only", func() error {
			_, err := Globals("A", GlobalValues{SecurityToken: "tok", Port: Int(70000), Verbosity: Int(-1)})
			return err
		}, protocol.ErrEmptyUpdate},
	}
	for _, tc := range cases {
		err := tc.fn()
		if !errors.Is(err, tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
		if protocol.KindOf(err) != protocol.KindValidation {
			t.Fatalf("%s: expected validation kind, got %s", tc.name, protocol.KindOf(err))
		}
	}
}

func TestTransformerAndSubscriberArgs(t *testing.T) {
	testlog.Start(t)
	tr, err := Transformer(schema.CmdRemove, "A", "orders", "enrich", "10.0.0.5:7000")
	if err != nil {
		t.Fatalf("transformer: %v", err)
	}
	if tr.Object != schema.ObjTransformer || tr.Cmd != schema.CmdRemove {
		t.Fatalf("unexpected transformer header: %s", tr)
	}
	if tr.Args != [protocol.ArgCount]string{"orders", "enrich", "10.0.0.5:7000", ""} {
		t.Fatalf("unexpected transformer args: %q", tr.Args)
	}
	sub, err := Subscriber(schema.CmdAdd, "A", "orders", "audit", "10.0.0.6:7000")
	if err != nil {
		t.Fatalf("subscriber: %v", err)
	}
	if _, err := protocol.Encode(sub); err != nil {
		t.Fatalf("encode subscriber: %v", err)
	}
}

func TestActionSigterm(t *testing.T) {
	testlog.Start(t)
	cmd, err := Action(schema.CmdSigterm, "A")
	if err != nil {
		t.Fatalf("action: %v", err)
	}
	if _, err := protocol.Encode(cmd); err != nil {
		t.Fatalf("encode action: %v", err)
	}
}

func TestGlobalsSparsePayload(t *testing.T) {
	testlog.Start(t)
	cmd, err := Globals("A", GlobalValues{
		Port:          Int(5500),
		Verbosity:     Int(0),
		Consolidate:   Bool(false),
		SecurityToken: "tok",
	})
	if err != nil {
		t.Fatalf("globals: %v", err)
	}
	want := `{"port":5500,"verbosity":0,"consolidate":false,"security-token":"tok"}`
	if string(cmd.Payload) != want {
		t.Fatalf("payload got=%s want=%s", cmd.Payload, want)
	}
	if cmd.Object != schema.ObjGlobals || cmd.Cmd != schema.CmdUpdate {
		t.Fatalf("unexpected header: %s", cmd)
	}
}

func TestGlobalsFullPayloadOrderAndDecode(t *testing.T) {
	testlog.Start(t)
	in := GlobalValues{
		Address:          "0.0.0.0",
		Port:             Int(5000),
		Verbosity:        Int(3),
		PrintTree:        Bool(true),
		TransformTimeout: "45s",
		Consolidate:      Bool(true),
		SecurityToken:    "tok",
	}
	payload, err := in.Payload()
	if err != nil {
		t.Fatalf("payload: %v", err)
	}
	want := `{"address":"0.0.0.0","port":5000,"verbosity":3,"print_tree":true,"transform_timeout":"45s","consolidate":true,"security-token":"tok"}`
	if string(payload) != want {
		t.Fatalf("payload got=%s want=%s", payload, want)
	}
	out, err := DecodeGlobals(payload)
	if err != nil {
		t.Fatalf("decode globals: %v", err)
	}
	if out.Address != in.Address || *out.Port != 5000 || *out.Verbosity != 3 || !*out.PrintTree ||
		out.TransformTimeout != "45s" || !*out.Consolidate || out.SecurityToken != "tok" {
		t.Fatalf("unexpected decoded globals: %+v", out)
	}
	if _, err := DecodeGlobals([]byte(`{"port":1}`)); !errors.Is(err, protocol.ErrMissingSecurityToken) {
		t.Fatalf("expected ErrMissingSecurityToken, got %v", err)
	}
}

func TestBlankReturnAddressIsNotEmpty(t *testing.T) {
	testlog.Start(t)
	cmd, err := Message(" ", "orders", "x")
	if err != nil {
		t.Fatalf("only an empty return address is missing: %v", err)
	}
	if _, err := protocol.Encode(cmd); err != nil {
		t.Fatalf("encode: %v", err)
	}
}
