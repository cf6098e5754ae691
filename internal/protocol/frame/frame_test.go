package frame

import (
	"bytes"
	"errors"
	"io"
	"testing"
	"testing/iotest"

	"github.com/danmuck/mycelia/internal/protocol"
	"github.com/danmuck/mycelia/internal/protocol/schema"
	"github.com/danmuck/mycelia/internal/testutil/testlog"
)

func encodedMessage(t *testing.T, route, payload string) []byte {
	t.Helper()
	cmd := protocol.NewCommand(schema.ObjMessage, schema.CmdSend, "127.0.0.1:5500")
	cmd.Args[0] = route
	cmd.Payload = []byte(payload)
	b, err := protocol.Encode(cmd)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return b
}

func TestReadWriteFrameRoundTrip(t *testing.T) {
	testlog.Start(t)
	in := encodedMessage(t, "orders", "hello")
	var buf bytes.Buffer
	if err := WriteFrame(&buf, in); err != nil {
		t.Fatalf("write frame: %v", err)
	}
	out, err := ReadFrame(&buf, DefaultLimits())
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	if !bytes.Equal(out, in) {
		t.Fatalf("frame mismatch")
	}
	if _, err := protocol.DecodeBody(Body(out)); err != nil {
		t.Fatalf("decode body: %v", err)
	}
}

func TestReadFrameSurvivesOneByteReads(t *testing.T) {
	testlog.Start(t)
	in := encodedMessage(t, "orders", "split across many reads")
	out, err := ReadFrame(iotest.OneByteReader(bytes.NewReader(in)), DefaultLimits())
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	if !bytes.Equal(out, in) {
		t.Fatalf("frame mismatch after one-byte reads")
	}
}

func TestReadFrameDoesNotSpliceFrames(t *testing.T) {
	testlog.Start(t)
	first := encodedMessage(t, "a", "one")
	second := encodedMessage(t, "b", "two")
	stream := bytes.NewReader(append(bytes.Clone(first), second...))

	got1, err := ReadFrame(stream, DefaultLimits())
	if err != nil {
		t.Fatalf("read first: %v", err)
	}
	got2, err := ReadFrame(stream, DefaultLimits())
	if err != nil {
		t.Fatalf("read second: %v", err)
	}
	if !bytes.Equal(got1, first) || !bytes.Equal(got2, second) {
		t.Fatalf("frames spliced")
	}
	if _, err := ReadFrame(stream, DefaultLimits()); !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF at clean end, got %v", err)
	}
}

func TestReadFrameMalformedIsDeterministic(t *testing.T) {
	testlog.Start(t)
	if _, err := ReadFrame(bytes.NewReader([]byte{0, 0}), DefaultLimits()); !errors.Is(err, ErrShortFrame) {
		t.Fatalf("expected ErrShortFrame for short prefix, got %v", err)
	}
	if _, err := ReadFrame(bytes.NewReader([]byte{0, 0, 0, 5, 1, 2}), DefaultLimits()); !errors.Is(err, ErrShortFrame) {
		t.Fatalf("expected ErrShortFrame for short body, got %v", err)
	}
	if _, err := ReadFrame(bytes.NewReader([]byte{0, 0, 0, 0}), DefaultLimits()); !errors.Is(err, ErrEmptyFrame) {
		t.Fatalf("expected ErrEmptyFrame, got %v", err)
	}
}

func TestReadFrameLimit(t *testing.T) {
	testlog.Start(t)
	in := encodedMessage(t, "orders", "hello")
	_, err := ReadFrame(bytes.NewReader(in), Limits{MaxFrameBytes: 8})
	if !errors.Is(err, ErrFrameTooLarge) {
		t.Fatalf("expected ErrFrameTooLarge, got %v", err)
	}
}

func TestWriteFrameRejectsBadPrefix(t *testing.T) {
	testlog.Start(t)
	in := encodedMessage(t, "orders", "hello")
	var buf bytes.Buffer
	if err := WriteFrame(&buf, in[:len(in)-1]); !errors.Is(err, ErrPrefixMismatch) {
		t.Fatalf("expected ErrPrefixMismatch, got %v", err)
	}
	if buf.Len() != 0 {
		t.Fatalf("partial frame written")
	}
}
