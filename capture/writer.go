package capture

import (
	"encoding/binary"
	"io"
)

// WriteHeader writes the fixed-size stream prolog.
func WriteHeader(w io.Writer, h Header) error {
	h.Signature = Signature
	h.Version = versionWord()
	buf := make([]byte, headerSize)
	h.encode(buf)
	_, err := w.Write(buf)
	return err
}

// WriteDescriptorTable writes the descriptor table section: one
// length-prefixed entry per descriptor, in the order given (which must
// be dense id order for the stream to round-trip against
// DescriptorCount/DescriptorArenaBytes).
func WriteDescriptorTable(w io.Writer, descs []Descriptor) error {
	for _, d := range descs {
		size := DescriptorEntrySize(d)
		buf := make([]byte, 2+int(size))
		binary.LittleEndian.PutUint16(buf, size)
		EncodeDescriptorEntry(buf[2:], d)
		if _, err := w.Write(buf); err != nil {
			return err
		}
	}
	return nil
}

// WriteThreadSectionHeader writes a per-thread section's tid and name
// fields (spec §4.7). name may be empty, in which case a single NUL
// byte is emitted (name_len=1) per the preserved Open Question #2.
func WriteThreadSectionHeader(w io.Writer, tid uint32, name string) error {
	nameLen := uint16(len(name) + 1)
	buf := make([]byte, 4+2+int(nameLen))
	binary.LittleEndian.PutUint32(buf, tid)
	binary.LittleEndian.PutUint16(buf[4:], nameLen)
	n := copy(buf[6:], name)
	buf[6+n] = 0
	_, err := w.Write(buf)
	return err
}

// WriteU32 writes a little-endian uint32, used for the cs_count and
// block_count fields that bracket each per-thread record run.
func WriteU32(w io.Writer, v uint32) error {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}
