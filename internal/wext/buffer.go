package wext

import (
	"bytes"

	"github.com/pkg/errors"
)

// MaxBufferSize is the capacity of a Buffer, terminator included.
const MaxBufferSize = 4096

// ErrCommandTooLarge is returned when an append would overflow a Buffer.
var ErrCommandTooLarge = errors.New("command is too large")

// A Buffer is a fixed-capacity, NUL-terminated byte buffer used to marshal
// private command arguments. Appends that do not fit are rejected before
// the buffer is modified.
type Buffer struct {
	b [MaxBufferSize]byte
	n int
}

// Reset empties the buffer.
func (b *Buffer) Reset() {
	clear(b.b[:b.n])
	b.n = 0
}

// Len returns the number of bytes written.
func (b *Buffer) Len() int { return b.n }

// Available returns how many more bytes fit before the terminator.
func (b *Buffer) Available() int { return MaxBufferSize - 1 - b.n }

// Write appends p in full or not at all.
func (b *Buffer) Write(p []byte) (int, error) {
	if len(p) > b.Available() {
		return 0, errors.Wrapf(ErrCommandTooLarge, "%d bytes do not fit in %d", len(p), b.Available())
	}
	b.n += copy(b.b[b.n:], p)
	return len(p), nil
}

// WriteString appends s in full or not at all.
func (b *Buffer) WriteString(s string) (int, error) {
	return b.Write([]byte(s))
}

// Bytes returns the written bytes. The slice aliases the buffer and is only
// valid until the next Reset or Write.
func (b *Buffer) Bytes() []byte { return b.b[:b.n] }

// String returns the written bytes up to the first NUL.
func (b *Buffer) String() string { return string(b.cstring()) }

// cstring returns the contents up to the first NUL, like strlen.
func (b *Buffer) cstring() []byte {
	if i := bytes.IndexByte(b.b[:b.n], 0); i >= 0 {
		return b.b[:i]
	}
	return b.b[:b.n]
}

// payload returns the whole backing array for handing to the kernel.
func (b *Buffer) payload() []byte { return b.b[:] }
