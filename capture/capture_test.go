package capture

import (
	"bytes"
	"io"
	"testing"
)

func TestWriteReadRoundTrip(t *testing.T) {
	descs := []Descriptor{
		{ID: 0, Line: 10, Color: 0xff0000, Type: DescBlock, Status: StatusOn, Name: "blockA", File: "a.go"},
		{ID: 1, Line: 20, Color: 0x00ff00, Type: DescValue, Status: StatusOn, Name: "valB", File: "b.go"},
	}
	header := Header{
		ProcessID:        1234,
		CaptureBeginTick: 100,
		CaptureEndTick:   500,
		TotalBlockCount:  2,
		DescriptorCount:  uint32(len(descs)),
	}

	var buf bytes.Buffer
	if err := WriteHeader(&buf, header); err != nil {
		t.Fatalf("WriteHeader: %v", err)
	}
	if err := WriteDescriptorTable(&buf, descs); err != nil {
		t.Fatalf("WriteDescriptorTable: %v", err)
	}

	if err := WriteThreadSectionHeader(&buf, 42, "worker"); err != nil {
		t.Fatalf("WriteThreadSectionHeader: %v", err)
	}
	// 1 context switch.
	if err := WriteU32(&buf, 1); err != nil {
		t.Fatalf("WriteU32 cs_count: %v", err)
	}
	cs := ContextSwitch{Begin: 100, End: 200, TargetTID: 7, TargetProcessName: "other"}
	writeRecord(t, &buf, ContextSwitchSize(cs.TargetProcessName), func(dst []byte) { EncodeContextSwitch(dst, cs) })

	// 1 block.
	if err := WriteU32(&buf, 1); err != nil {
		t.Fatalf("WriteU32 block_count: %v", err)
	}
	blk := Block{Begin: 100, End: 300, DescriptorID: 0, Name: "blockA"}
	writeRecord(t, &buf, BlockSize(blk.Name), func(dst []byte) { EncodeBlock(dst, blk) })

	r, err := NewReader(&buf)
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	if r.Header.ProcessID != 1234 {
		t.Fatalf("ProcessID = %d, want 1234", r.Header.ProcessID)
	}
	if len(r.Descriptors) != 2 || r.Descriptors[1].Name != "valB" {
		t.Fatalf("unexpected descriptors: %+v", r.Descriptors)
	}

	sec, err := r.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if sec.TID != 42 || sec.Name != "worker" {
		t.Fatalf("unexpected section header: %+v", sec)
	}
	if len(sec.ContextSwitches) != 1 || sec.ContextSwitches[0].TargetProcessName != "other" {
		t.Fatalf("unexpected cs records: %+v", sec.ContextSwitches)
	}
	if len(sec.Blocks) != 1 || sec.Blocks[0].Name != "blockA" {
		t.Fatalf("unexpected block records: %+v", sec.Blocks)
	}

	if _, err := r.Next(); err != io.EOF {
		t.Fatalf("Next at end of stream = %v, want io.EOF", err)
	}
}

func TestEmptyThreadNameEncodesSingleNUL(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteThreadSectionHeader(&buf, 1, ""); err != nil {
		t.Fatalf("WriteThreadSectionHeader: %v", err)
	}
	b := buf.Bytes()
	// tid(4) + name_len(2) + 1 NUL byte.
	if len(b) != 7 {
		t.Fatalf("encoded length = %d, want 7 (name_len=1, single NUL)", len(b))
	}
	if b[4] != 1 || b[5] != 0 {
		t.Fatalf("name_len field = %d, want 1", b[4])
	}
	if b[6] != 0 {
		t.Fatalf("expected a single NUL byte for an empty name")
	}
}

func TestBlockAndValueShareArenaDispatchByDescriptorType(t *testing.T) {
	descs := []Descriptor{
		{ID: 0, Type: DescBlock, Status: StatusOn, Name: "b", File: "f.go"},
		{ID: 1, Type: DescValue, Status: StatusOn, Name: "v", File: "f.go"},
	}
	header := Header{DescriptorCount: uint32(len(descs))}

	var buf bytes.Buffer
	WriteHeader(&buf, header)
	WriteDescriptorTable(&buf, descs)
	WriteThreadSectionHeader(&buf, 1, "t")
	WriteU32(&buf, 0) // no CS records

	WriteU32(&buf, 2) // 2 "block" records: one real block, one value
	blk := Block{Begin: 1, End: 2, DescriptorID: 0, Name: "b"}
	writeRecord(t, &buf, BlockSize(blk.Name), func(dst []byte) { EncodeBlock(dst, blk) })
	val := Value{Timestamp: 5, ValueID: 9, DescriptorID: 1, DataType: TypeI32, Data: []byte{1, 2, 3, 4}}
	writeRecord(t, &buf, ValueSize(val), func(dst []byte) { EncodeValue(dst, val) })

	r, err := NewReader(&buf)
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	sec, err := r.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if len(sec.Blocks) != 1 || len(sec.Values) != 1 {
		t.Fatalf("expected 1 block and 1 value, got blocks=%d values=%d", len(sec.Blocks), len(sec.Values))
	}
	if sec.Values[0].ValueID != 9 {
		t.Fatalf("unexpected value record: %+v", sec.Values[0])
	}
}

func writeRecord(t *testing.T, buf *bytes.Buffer, size uint16, encode func([]byte)) {
	t.Helper()
	rec := make([]byte, size)
	encode(rec)
	var lenBuf [2]byte
	lenBuf[0] = byte(size)
	lenBuf[1] = byte(size >> 8)
	buf.Write(lenBuf[:])
	buf.Write(rec)
}
