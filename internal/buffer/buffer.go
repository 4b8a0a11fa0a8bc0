// growable byte buffer with separate read/write cursors
package buffer

import (
	"golang.org/x/sys/unix"
)

// scratch region used for vectored reads so a single syscall can absorb
// more than the buffer's current tail without growing it first
const scratchSize = 64 * 1024

// Buffer is a growable byte sequence with a read cursor and a write cursor.
// readPos <= writePos <= len(buf) always holds between resets.
type Buffer struct {
	buf      []byte
	readPos  int
	writePos int
}

// New returns a Buffer with the given initial capacity.
func New(size int) *Buffer {
	if size <= 0 {
		size = 1024
	}
	return &Buffer{buf: make([]byte, size)}
}

// Readable returns the number of bytes available for reading.
func (b *Buffer) Readable() int { return b.writePos - b.readPos }

// Writable returns the number of bytes available for writing without growing.
func (b *Buffer) Writable() int { return len(b.buf) - b.writePos }

// ReadPos exposes the raw read cursor, mainly for tests.
func (b *Buffer) ReadPos() int { return b.readPos }

// Bytes returns the readable window [readPos, writePos).
func (b *Buffer) Bytes() []byte { return b.buf[b.readPos:b.writePos] }

// WriteBytes returns the writable window, valid until the next grow/compact.
func (b *Buffer) WriteBytes() []byte { return b.buf[b.writePos:] }

// InitPtr resets both cursors to the origin, reusing the storage.
func (b *Buffer) InitPtr() {
	b.readPos = 0
	b.writePos = 0
}

// EnsureWritable guarantees at least n writable bytes, compacting in place
// when the freed prefix plus the tail is enough, else growing the backing
// array.
func (b *Buffer) EnsureWritable(n int) {
	if b.Writable() >= n {
		return
	}
	if b.Writable()+b.readPos >= n {
		b.compact()
		return
	}
	grown := make([]byte, b.writePos+n+1)
	copy(grown, b.buf[:b.writePos])
	b.buf = grown
}

// compact slides [readPos, writePos) down to offset 0.
func (b *Buffer) compact() {
	readable := b.Readable()
	copy(b.buf, b.buf[b.readPos:b.writePos])
	b.readPos = 0
	b.writePos = readable
}

// HasWritten advances the write cursor after the caller filled WriteBytes().
func (b *Buffer) HasWritten(n int) {
	b.writePos += n
}

// Append copies p into the buffer, growing as needed.
func (b *Buffer) Append(p []byte) {
	if len(p) == 0 {
		return
	}
	b.EnsureWritable(len(p))
	n := copy(b.buf[b.writePos:], p)
	b.writePos += n
}

// UpdateReadPos advances the read cursor by n bytes already consumed.
func (b *Buffer) UpdateReadPos(n int) {
	if n >= b.Readable() {
		b.readPos = 0
		b.writePos = 0
		return
	}
	b.readPos += n
}

// RetrieveAllAsString extracts everything readable and resets both cursors.
func (b *Buffer) RetrieveAllAsString() string {
	s := string(b.buf[b.readPos:b.writePos])
	b.readPos = 0
	b.writePos = 0
	return s
}

// ReadFd performs a vectored read into the buffer's tail plus a stack
// scratch region; overflow beyond the tail's current capacity is appended
// so large requests don't force a preallocated huge per-connection buffer.
func (b *Buffer) ReadFd(fd int) (int, error) {
	var scratch [scratchSize]byte

	tail := b.buf[b.writePos:]
	iov := [][]byte{tail, scratch[:]}

	n, err := unix.Readv(fd, iov)
	if n <= 0 {
		return n, err
	}

	if n <= len(tail) {
		b.writePos += n
		return n, err
	}

	b.writePos = len(b.buf)
	overflow := n - len(tail)
	b.Append(scratch[:overflow])
	return n, err
}

// WriteFd writes the readable window to fd in a single write, advancing the
// read cursor by however many bytes actually went out.
func (b *Buffer) WriteFd(fd int) (int, error) {
	n, err := unix.Write(fd, b.Bytes())
	if n > 0 {
		b.UpdateReadPos(n)
	}
	return n, err
}
