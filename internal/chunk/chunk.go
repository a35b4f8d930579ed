// Package chunk implements the append-only, length-prefixed chunked
// byte arena used to hold closed blocks, arbitrary values, and context
// switch records for a single thread (spec §4.2 / C2).
//
// A record is always framed as a little-endian uint16 length followed
// by that many payload bytes. Records never straddle a chunk boundary:
// when a chunk doesn't have room for the next record, a new chunk is
// started. Each chunk additionally carries a zero-length terminator
// record after its last real record (when there's room for one),
// marking where Serialize should stop reading that chunk.
package chunk

import (
	"encoding/binary"
	"io"
)

const lenPrefixSize = 2

// Allocator is an ordered run (a slice) of fixed-size chunks. The zero value
// is not usable; use New.
type Allocator struct {
	size    int // fixed chunk payload size
	chunks  []chunk
	tail    int // index of the chunk currently being written, or -1
	count   uint32
	written uint64 // total bytes of payload (excluding length prefixes) ever allocated
}

type chunk struct {
	buf    []byte
	offset uint16
}

// New creates an Allocator whose chunks each hold size bytes of
// records. size should be large enough to hold at least one maximal
// record; the two sizes spec.md suggests are ~8KiB for block/value
// arenas and ~256B for sync/CS arenas.
func New(size int) *Allocator {
	a := &Allocator{size: size, tail: -1}
	a.pushChunk()
	return a
}

func (a *Allocator) pushChunk() {
	a.chunks = append(a.chunks, chunk{buf: make([]byte, a.size)})
	a.tail = len(a.chunks) - 1
}

// Count returns the number of records allocated since the last Clear.
func (a *Allocator) Count() uint32 { return a.count }

// Bytes returns the total payload bytes (excluding length prefixes)
// allocated since the last Clear.
func (a *Allocator) Bytes() uint64 { return a.written }

// Allocate reserves n bytes for a new record and returns a slice into
// the arena for the caller to fill in. The returned slice is only valid
// until the next call to Allocate or Clear.
func (a *Allocator) Allocate(n uint16) []byte {
	need := int(n) + lenPrefixSize
	cur := &a.chunks[a.tail]
	if a.size-int(cur.offset) < need {
		a.pushChunk()
		cur = &a.chunks[a.tail]
	}

	binary.LittleEndian.PutUint16(cur.buf[cur.offset:], n)
	start := int(cur.offset) + lenPrefixSize
	rec := cur.buf[start : start+int(n)]
	cur.offset += uint16(need)
	a.count++
	a.written += uint64(n)

	// Write the terminator marking "no more records" right after this
	// one, if there's room for its 2-byte length prefix.
	if a.size-int(cur.offset) >= lenPrefixSize {
		binary.LittleEndian.PutUint16(cur.buf[cur.offset:], 0)
	}

	return rec
}

// Serialize writes every record allocated since the last Clear to w, in
// insertion order, as (length, payload) pairs — i.e. exactly the bytes
// Allocate produced, with no outer framing. It stops reading each chunk
// at the first zero-length terminator (or at the chunk's logical
// offset, whichever comes first).
func (a *Allocator) Serialize(w io.Writer) error {
	for i := range a.chunks {
		c := &a.chunks[i]
		pos := uint16(0)
		for pos+lenPrefixSize <= c.offset {
			n := binary.LittleEndian.Uint16(c.buf[pos:])
			if n == 0 {
				break
			}
			if _, err := w.Write(c.buf[pos : pos+lenPrefixSize+n]); err != nil {
				return err
			}
			pos += lenPrefixSize + n
		}
	}
	return nil
}

// Clear releases all chunks but one, empty, chunk, and resets Count and
// Bytes to zero. Called after a dump has serialized the arena.
func (a *Allocator) Clear() {
	a.chunks = a.chunks[:0]
	a.tail = -1
	a.count = 0
	a.written = 0
	a.pushChunk()
}
