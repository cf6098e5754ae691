package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"unicode/utf8"
)

// Max byte lengths for each length-prefix width.
const (
	MaxLen8  = math.MaxUint8
	MaxLen16 = math.MaxUint16
	MaxLen32 = math.MaxUint32
)

var (
	ErrFieldTooLong = errors.New("wire: field too long for length prefix")
	ErrInvalidUTF8  = errors.New("wire: string is not valid utf-8")
	ErrTruncated    = errors.New("wire: truncated data")
)

// FieldTooLongError reports a value whose byte length does not fit its prefix width.
type FieldTooLongError struct {
	Len int
	Max int
}

func (e *FieldTooLongError) Error() string {
	return fmt.Sprintf("wire: field length %d exceeds max %d", e.Len, e.Max)
}

func (e *FieldTooLongError) Is(target error) bool {
	return target == ErrFieldTooLong
}

// AppendU8 appends n truncated to 8 bits.
// Wider values wrap silently; callers relying on range checks must do them first.
func AppendU8(dst []byte, n uint64) []byte {
	return append(dst, byte(n&0xFF))
}

// AppendU16 appends n truncated to 16 bits, big-endian.
func AppendU16(dst []byte, n uint64) []byte {
	return binary.BigEndian.AppendUint16(dst, uint16(n&0xFFFF))
}

// AppendU32 appends n truncated to 32 bits, big-endian.
func AppendU32(dst []byte, n uint64) []byte {
	return binary.BigEndian.AppendUint32(dst, uint32(n&0xFFFFFFFF))
}

// AppendStr8 appends [u8 len][utf-8 bytes].
func AppendStr8(dst []byte, s string) ([]byte, error) {
	if err := checkString(s, MaxLen8); err != nil {
		return dst, err
	}
	dst = AppendU8(dst, uint64(len(s)))
	return append(dst, s...), nil
}

// AppendStr16 appends [u16 len][utf-8 bytes].
func AppendStr16(dst []byte, s string) ([]byte, error) {
	if err := checkString(s, MaxLen16); err != nil {
		return dst, err
	}
	dst = AppendU16(dst, uint64(len(s)))
	return append(dst, s...), nil
}

// AppendStr32 appends [u32 len][utf-8 bytes].
func AppendStr32(dst []byte, s string) ([]byte, error) {
	if err := checkString(s, MaxLen32); err != nil {
		return dst, err
	}
	dst = AppendU32(dst, uint64(len(s)))
	return append(dst, s...), nil
}

// AppendBytes16 appends [u16 len][raw bytes].
func AppendBytes16(dst []byte, b []byte) ([]byte, error) {
	if uint64(len(b)) > MaxLen16 {
		return dst, &FieldTooLongError{Len: len(b), Max: MaxLen16}
	}
	dst = AppendU16(dst, uint64(len(b)))
	return append(dst, b...), nil
}

func checkString(s string, max uint64) error {
	if uint64(len(s)) > max {
		return &FieldTooLongError{Len: len(s), Max: int(max)}
	}
	if !utf8.ValidString(s) {
		return ErrInvalidUTF8
	}
	return nil
}

// Decoder reads primitives from a byte slice in order.
type Decoder struct {
	buf []byte
	off int
}

func NewDecoder(b []byte) *Decoder {
	return &Decoder{buf: b}
}

// Remaining returns the number of unread bytes.
func (d *Decoder) Remaining() int {
	return len(d.buf) - d.off
}

// Offset returns the number of bytes consumed so far.
func (d *Decoder) Offset() int {
	return d.off
}

func (d *Decoder) take(n uint64) ([]byte, error) {
	if n > uint64(d.Remaining()) {
		return nil, ErrTruncated
	}
	out := d.buf[d.off : d.off+int(n)]
	d.off += int(n)
	return out, nil
}

func (d *Decoder) U8() (uint8, error) {
	b, err := d.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (d *Decoder) U16() (uint16, error) {
	b, err := d.take(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b), nil
}

func (d *Decoder) U32() (uint32, error) {
	b, err := d.take(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

func (d *Decoder) Str8() (string, error) {
	n, err := d.U8()
	if err != nil {
		return "", err
	}
	return d.str(uint64(n))
}

func (d *Decoder) Str16() (string, error) {
	n, err := d.U16()
	if err != nil {
		return "", err
	}
	return d.str(uint64(n))
}

func (d *Decoder) Str32() (string, error) {
	n, err := d.U32()
	if err != nil {
		return "", err
	}
	return d.str(uint64(n))
}

func (d *Decoder) str(n uint64) (string, error) {
	b, err := d.take(n)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(b) {
		return "", ErrInvalidUTF8
	}
	return string(b), nil
}

// Bytes16 returns a copy of a [u16 len][raw] value.
func (d *Decoder) Bytes16() ([]byte, error) {
	n, err := d.U16()
	if err != nil {
		return nil, err
	}
	b, err := d.take(uint64(n))
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out, nil
}
