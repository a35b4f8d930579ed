package capture

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
)

// ThreadSection is one fully-decoded per-thread section of a capture
// stream (spec §4.7's repeated "per-thread section").
type ThreadSection struct {
	TID             uint32
	Name            string
	ContextSwitches []ContextSwitch
	Blocks          []Block
	Values          []Value
}

// Reader parses a capture stream, modeled directly on perffile.New /
// perffile.Records: the fixed header and descriptor table are read
// eagerly (they're always a known, bounded prefix), then Next decodes
// one per-thread section at a time off the remaining stream.
type Reader struct {
	r           *bufio.Reader
	Header      Header
	Descriptors []Descriptor
	byID        map[uint32]Descriptor
}

// NewReader reads and validates the header and descriptor table from r,
// leaving the reader positioned at the first per-thread section.
func NewReader(r io.Reader) (*Reader, error) {
	br := bufio.NewReaderSize(r, 64<<10)

	hdrBuf := make([]byte, headerSize)
	if _, err := io.ReadFull(br, hdrBuf); err != nil {
		return nil, fmt.Errorf("capture: reading header: %w", err)
	}
	hdr := decodeHeader(hdrBuf)
	if hdr.Signature != Signature {
		return nil, fmt.Errorf("capture: bad signature %#x", hdr.Signature)
	}

	rd := &Reader{r: br, Header: hdr, byID: make(map[uint32]Descriptor, hdr.DescriptorCount)}

	for i := uint32(0); i < hdr.DescriptorCount; i++ {
		var sizeBuf [2]byte
		if _, err := io.ReadFull(br, sizeBuf[:]); err != nil {
			return nil, fmt.Errorf("capture: reading descriptor %d size: %w", i, err)
		}
		size := binary.LittleEndian.Uint16(sizeBuf[:])
		payload := make([]byte, size)
		if _, err := io.ReadFull(br, payload); err != nil {
			return nil, fmt.Errorf("capture: reading descriptor %d: %w", i, err)
		}
		d := DecodeDescriptorEntry(payload)
		rd.Descriptors = append(rd.Descriptors, d)
		rd.byID[d.ID] = d
	}

	return rd, nil
}

// Next decodes the next per-thread section. It returns io.EOF (with a
// nil *ThreadSection) when the stream is exhausted, matching the
// teacher's Records.Next()/Err() shape collapsed into a single error
// return since capture sections, unlike perf.data records, have no
// "keep the last value around" iteration contract.
func (r *Reader) Next() (*ThreadSection, error) {
	var tidBuf [4]byte
	if _, err := io.ReadFull(r.r, tidBuf[:]); err != nil {
		if err == io.ErrUnexpectedEOF || err == io.EOF {
			return nil, io.EOF
		}
		return nil, err
	}
	sec := &ThreadSection{TID: binary.LittleEndian.Uint32(tidBuf[:])}

	var nameLenBuf [2]byte
	if _, err := io.ReadFull(r.r, nameLenBuf[:]); err != nil {
		return nil, fmt.Errorf("capture: reading thread name length: %w", err)
	}
	nameLen := binary.LittleEndian.Uint16(nameLenBuf[:])
	nameBuf := make([]byte, nameLen)
	if _, err := io.ReadFull(r.r, nameBuf); err != nil {
		return nil, fmt.Errorf("capture: reading thread name: %w", err)
	}
	sec.Name = cstringOf(nameBuf)

	csCount, err := r.readU32()
	if err != nil {
		return nil, fmt.Errorf("capture: reading cs_count: %w", err)
	}
	for i := uint32(0); i < csCount; i++ {
		payload, err := r.readRecord()
		if err != nil {
			return nil, fmt.Errorf("capture: reading cs record %d: %w", i, err)
		}
		sec.ContextSwitches = append(sec.ContextSwitches, DecodeContextSwitch(payload))
	}

	blockCount, err := r.readU32()
	if err != nil {
		return nil, fmt.Errorf("capture: reading block_count: %w", err)
	}
	for i := uint32(0); i < blockCount; i++ {
		payload, err := r.readRecord()
		if err != nil {
			return nil, fmt.Errorf("capture: reading block record %d: %w", i, err)
		}
		// Both Block and Value records carry their descriptor id at
		// byte offset 16 (after two leading u64 fields); dispatch on
		// the referenced descriptor's Type to know which layout this
		// record actually is.
		id := binary.LittleEndian.Uint32(payload[16:20])
		if d, ok := r.byID[id]; ok && d.Type == DescValue {
			sec.Values = append(sec.Values, DecodeValue(payload))
		} else {
			sec.Blocks = append(sec.Blocks, DecodeBlock(payload))
		}
	}

	return sec, nil
}

func (r *Reader) readU32() (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r.r, buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf[:]), nil
}

func (r *Reader) readRecord() ([]byte, error) {
	var sizeBuf [2]byte
	if _, err := io.ReadFull(r.r, sizeBuf[:]); err != nil {
		return nil, err
	}
	size := binary.LittleEndian.Uint16(sizeBuf[:])
	payload := make([]byte, size)
	if _, err := io.ReadFull(r.r, payload); err != nil {
		return nil, err
	}
	return payload, nil
}

func cstringOf(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}
