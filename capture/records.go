package capture

import "encoding/binary"

// BlockSize returns the payload size (excluding the leading u16 size
// prefix) of a Block record whose Name is name.
func BlockSize(name string) uint16 {
	return 8 + 8 + 4 + uint16(len(name)) + 1
}

// EncodeBlock writes b's payload into dst, which must be exactly
// BlockSize(b.Name) bytes (as returned by an arena allocation).
func EncodeBlock(dst []byte, b Block) {
	order := binary.LittleEndian
	order.PutUint64(dst[0:], b.Begin)
	order.PutUint64(dst[8:], b.End)
	order.PutUint32(dst[16:], b.DescriptorID)
	n := copy(dst[20:], b.Name)
	dst[20+n] = 0
}

// DecodeBlock parses a Block record payload (as produced by
// EncodeBlock, without the outer length prefix).
func DecodeBlock(buf []byte) Block {
	c := cursor{buf}
	begin := c.u64()
	end := c.u64()
	id := c.u32()
	name := c.cstring(c.len())
	return Block{Begin: begin, End: end, DescriptorID: id, Name: name}
}

// ContextSwitchSize returns the payload size of a ContextSwitch record.
// It shares Block's wire shape exactly (Open Question #1).
func ContextSwitchSize(name string) uint16 {
	return BlockSize(name)
}

// EncodeContextSwitch writes cs's payload into dst, reusing the Block
// layout with TargetTID stored where a Block stores its descriptor id.
func EncodeContextSwitch(dst []byte, cs ContextSwitch) {
	EncodeBlock(dst, Block{
		Begin:        cs.Begin,
		End:          cs.End,
		DescriptorID: cs.TargetTID,
		Name:         cs.TargetProcessName,
	})
}

// DecodeContextSwitch parses a ContextSwitch record payload.
func DecodeContextSwitch(buf []byte) ContextSwitch {
	b := DecodeBlock(buf)
	return ContextSwitch{Begin: b.Begin, End: b.End, TargetTID: b.DescriptorID, TargetProcessName: b.Name}
}

// ValueSize returns the payload size of a Value record.
func ValueSize(v Value) uint16 {
	return valueFixedSize + uint16(len(v.Data))
}

// EncodeValue writes v's payload into dst, which must be exactly
// ValueSize(v) bytes.
func EncodeValue(dst []byte, v Value) {
	order := binary.LittleEndian
	order.PutUint64(dst[0:], v.Timestamp)
	order.PutUint64(dst[8:], v.ValueID)
	order.PutUint32(dst[16:], v.DescriptorID)
	order.PutUint16(dst[20:], uint16(len(v.Data)))
	dst[22] = byte(v.DataType)
	if v.IsArray {
		dst[23] = 1
	} else {
		dst[23] = 0
	}
	copy(dst[valueFixedSize:], v.Data)
}

// DecodeValue parses a Value record payload.
func DecodeValue(buf []byte) Value {
	c := cursor{buf}
	ts := c.u64()
	vid := c.u64()
	id := c.u32()
	size := c.u16()
	dt := DataType(c.u8())
	isArray := c.u8() != 0
	data := append([]byte(nil), c.bytes(int(size))...)
	return Value{Timestamp: ts, ValueID: vid, DescriptorID: id, DataType: dt, IsArray: isArray, Data: data}
}

// DescriptorEntrySize returns the payload size (excluding the leading
// u16 size prefix) of d's descriptor-table entry.
func DescriptorEntrySize(d Descriptor) uint16 {
	nameLen := len(d.Name) + 1
	fileLen := len(d.File) + 1
	return uint16(descriptorFixedSize + nameLen + fileLen)
}

// EncodeDescriptorEntry writes d's payload into dst, which must be
// exactly DescriptorEntrySize(d) bytes.
func EncodeDescriptorEntry(dst []byte, d Descriptor) {
	order := binary.LittleEndian
	order.PutUint32(dst[0:], d.ID)
	order.PutUint32(dst[4:], uint32(int32(d.Line)))
	order.PutUint32(dst[8:], d.Color)
	dst[12] = byte(d.Type)
	dst[13] = byte(d.Status)
	nameLen := uint16(len(d.Name) + 1)
	order.PutUint16(dst[14:], nameLen)
	off := 16
	n := copy(dst[off:], d.Name)
	dst[off+n] = 0
	off += int(nameLen)
	n = copy(dst[off:], d.File)
	dst[off+n] = 0
}

// DecodeDescriptorEntry parses a descriptor-table entry payload.
func DecodeDescriptorEntry(buf []byte) Descriptor {
	c := cursor{buf}
	id := c.u32()
	line := c.i32()
	color := c.u32()
	typ := DescriptorType(c.u8())
	status := DescriptorStatus(c.u8())
	nameLen := int(c.u16())
	name := c.cstring(nameLen)
	file := c.cstring(c.len())
	return Descriptor{ID: id, Line: line, Color: color, Type: typ, Status: status, Name: name, File: file}
}
