// Completion: 100% - Code buffer complete
package asm

import (
	"bytes"
	"fmt"
	"os"
)

// Buffer is the append-only code buffer. Bytes are only ever appended,
// truncated back to a previous length when an emission fails, or
// overwritten in place by a label patch. Once committed it is read-only.
type Buffer struct {
	buf       bytes.Buffer
	committed bool
	name      string // for debugging
}

// NewBuffer creates an empty buffer with a name for debugging
func NewBuffer(name string) *Buffer {
	return &Buffer{name: name}
}

// Write appends bytes to the buffer. Panics if the buffer is committed.
func (b *Buffer) Write(p []byte) (int, error) {
	b.mustNotBeCommitted()
	return b.buf.Write(p)
}

// Bytes returns the buffer contents
func (b *Buffer) Bytes() []byte {
	return b.buf.Bytes()
}

// Len returns the buffer length
func (b *Buffer) Len() int {
	return b.buf.Len()
}

// Truncate discards everything after the first n bytes
func (b *Buffer) Truncate(n int) {
	b.mustNotBeCommitted()
	b.buf.Truncate(n)
}

// Patch hands the bytes from offset at onwards to fn for an in-place update
func (b *Buffer) Patch(at int, fn func(code []byte) error) error {
	b.mustNotBeCommitted()
	if at < 0 || at > b.buf.Len() {
		return fmt.Errorf("buffer(%s): patch offset %d outside %d bytes", b.name, at, b.buf.Len())
	}
	return fn(b.buf.Bytes())
}

// Commit marks the buffer as complete. After this, no more writes are allowed.
func (b *Buffer) Commit() {
	if VerboseMode {
		fmt.Fprintf(os.Stderr, "buffer(%s): committed with %d bytes\n", b.name, b.buf.Len())
	}
	b.committed = true
}

// IsCommitted returns true if the buffer has been committed
func (b *Buffer) IsCommitted() bool {
	return b.committed
}

func (b *Buffer) mustNotBeCommitted() {
	if b.committed {
		panic(fmt.Sprintf("buffer(%s): cannot modify a committed buffer", b.name))
	}
}
