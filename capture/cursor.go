package capture

import "encoding/binary"

// cursor is a little-endian byte-slice decoder, ported in spirit from
// perffile's bufDecoder: each accessor consumes its bytes off the front
// of buf and advances it, so callers chain reads without tracking an
// offset themselves.
type cursor struct {
	buf []byte
}

func (c *cursor) u8() uint8 {
	x := c.buf[0]
	c.buf = c.buf[1:]
	return x
}

func (c *cursor) u16() uint16 {
	x := binary.LittleEndian.Uint16(c.buf)
	c.buf = c.buf[2:]
	return x
}

func (c *cursor) u32() uint32 {
	x := binary.LittleEndian.Uint32(c.buf)
	c.buf = c.buf[4:]
	return x
}

func (c *cursor) i32() int32 {
	x := int32(binary.LittleEndian.Uint32(c.buf))
	c.buf = c.buf[4:]
	return x
}

func (c *cursor) u64() uint64 {
	x := binary.LittleEndian.Uint64(c.buf)
	c.buf = c.buf[8:]
	return x
}

func (c *cursor) bytes(n int) []byte {
	x := c.buf[:n]
	c.buf = c.buf[n:]
	return x
}

// cstring reads a NUL-terminated string from a slice of exactly n
// bytes (n includes the terminating NUL).
func (c *cursor) cstring(n int) string {
	raw := c.bytes(n)
	for i, b := range raw {
		if b == 0 {
			return string(raw[:i])
		}
	}
	return string(raw)
}

func (c *cursor) len() int { return len(c.buf) }
