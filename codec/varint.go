// Package codec implements the lib0-compatible variable-length wire
// primitives and the binary encodings built on top of them: state
// vectors and updates (update.go, statevector.go). Values are dispatched
// by a leading type-tag byte, then the type-specific payload follows.
package codec

import (
	"bytes"
	"fmt"
	"io"
)

// Writer accumulates a lib0-encoded byte stream.
type Writer struct {
	buf bytes.Buffer
}

// NewWriter returns an empty Writer.
func NewWriter() *Writer {
	return &Writer{}
}

// Bytes returns the accumulated stream.
func (w *Writer) Bytes() []byte {
	return w.buf.Bytes()
}

// Len returns the number of bytes written so far.
func (w *Writer) Len() int {
	return w.buf.Len()
}

// WriteVarUint writes v using 7 bits per byte, MSB as a continuation flag,
// least-significant group first.
func (w *Writer) WriteVarUint(v uint64) {
	for v > 0x7f {
		w.buf.WriteByte(byte(v&0x7f) | 0x80)
		v >>= 7
	}
	w.buf.WriteByte(byte(v & 0x7f))
}

// WriteVarInt writes a signed integer using zig-zag-free sign+magnitude,
// with the sign in bit 0x40 of the first byte, matching lib0's writeVarInt layout:
// the first 6 payload bits carry the magnitude, the 7th (sign) bit of the
// first byte's payload indicates negativity, continuation works exactly
// as WriteVarUint.
func (w *Writer) WriteVarInt(v int64) {
	neg := v < 0
	u := uint64(v)
	if neg {
		u = uint64(-v)
	}
	first := byte(u & 0x3f)
	if neg {
		first |= 0x40
	}
	u >>= 6
	if u == 0 {
		w.buf.WriteByte(first)
		return
	}
	w.buf.WriteByte(first | 0x80)
	w.WriteVarUint(u)
}

// WriteVarString writes a VarUint byte length followed by the UTF-8 bytes.
func (w *Writer) WriteVarString(s string) {
	w.WriteVarUint(uint64(len(s)))
	w.buf.WriteString(s)
}

// WriteBytes writes a VarUint byte length followed by raw bytes.
func (w *Writer) WriteBytes(b []byte) {
	w.WriteVarUint(uint64(len(b)))
	w.buf.Write(b)
}

// WriteByte writes a single raw byte (no length prefix).
func (w *Writer) WriteByte(b byte) {
	w.buf.WriteByte(b)
}

// WriteBool writes a single 0/1 byte.
func (w *Writer) WriteBool(v bool) {
	if v {
		w.buf.WriteByte(1)
	} else {
		w.buf.WriteByte(0)
	}
}

// Reader consumes a lib0-encoded byte stream.
type Reader struct {
	data []byte
	pos  int
}

// NewReader wraps data for sequential decoding.
func NewReader(data []byte) *Reader {
	return &Reader{data: data}
}

// Remaining reports how many bytes are left to read.
func (r *Reader) Remaining() int {
	return len(r.data) - r.pos
}

func (r *Reader) readByte() (byte, error) {
	if r.pos >= len(r.data) {
		return 0, io.ErrUnexpectedEOF
	}
	b := r.data[r.pos]
	r.pos++
	return b, nil
}

// ReadVarUint reads a VarUint.
func (r *Reader) ReadVarUint() (uint64, error) {
	var result uint64
	var shift uint
	for {
		b, err := r.readByte()
		if err != nil {
			return 0, fmt.Errorf("codec: truncated varuint: %w", err)
		}
		result |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			return result, nil
		}
		shift += 7
		if shift > 63 {
			return 0, fmt.Errorf("codec: varuint overflow")
		}
	}
}

// ReadVarInt reads a signed integer written by WriteVarInt.
func (r *Reader) ReadVarInt() (int64, error) {
	first, err := r.readByte()
	if err != nil {
		return 0, fmt.Errorf("codec: truncated varint: %w", err)
	}
	neg := first&0x40 != 0
	u := uint64(first & 0x3f)
	if first&0x80 != 0 {
		rest, err := r.ReadVarUint()
		if err != nil {
			return 0, err
		}
		u |= rest << 6
	}
	if neg {
		return -int64(u), nil
	}
	return int64(u), nil
}

// ReadVarString reads a VarUint length-prefixed UTF-8 string.
func (r *Reader) ReadVarString() (string, error) {
	n, err := r.ReadVarUint()
	if err != nil {
		return "", err
	}
	if uint64(r.Remaining()) < n {
		return "", fmt.Errorf("codec: truncated string: need %d, have %d", n, r.Remaining())
	}
	s := string(r.data[r.pos : r.pos+int(n)])
	r.pos += int(n)
	return s, nil
}

// ReadBytes reads a VarUint length-prefixed raw byte slice.
func (r *Reader) ReadBytes() ([]byte, error) {
	n, err := r.ReadVarUint()
	if err != nil {
		return nil, err
	}
	if uint64(r.Remaining()) < n {
		return nil, fmt.Errorf("codec: truncated bytes: need %d, have %d", n, r.Remaining())
	}
	b := make([]byte, n)
	copy(b, r.data[r.pos:r.pos+int(n)])
	r.pos += int(n)
	return b, nil
}

// ReadByte reads a single raw byte.
func (r *Reader) ReadByte() (byte, error) {
	return r.readByte()
}

// ReadBool reads a single 0/1 byte.
func (r *Reader) ReadBool() (bool, error) {
	b, err := r.readByte()
	if err != nil {
		return false, err
	}
	return b != 0, nil
}
