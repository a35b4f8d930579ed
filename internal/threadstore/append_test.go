package threadstore

import (
	"bytes"
	"testing"

	"github.com/tracecap/tracecap/capture"
)

func TestAppendBlockRoundTrip(t *testing.T) {
	s := New(1)
	s.AppendBlock(capture.Block{Begin: 10, End: 20, DescriptorID: 3, Name: "work"})

	var buf bytes.Buffer
	if err := s.ClosedBlocks().Serialize(&buf); err != nil {
		t.Fatalf("Serialize: %v", err)
	}

	// length prefix (2 bytes) + BlockSize("work") payload.
	payload := buf.Bytes()[2:]
	got := capture.DecodeBlock(payload)
	if got.Begin != 10 || got.End != 20 || got.DescriptorID != 3 || got.Name != "work" {
		t.Fatalf("round trip mismatch: %+v", got)
	}
}

func TestAppendContextSwitchRoundTrip(t *testing.T) {
	s := New(1)
	s.AppendContextSwitch(capture.ContextSwitch{Begin: 100, End: 150, TargetTID: 11, TargetProcessName: "other"})

	var buf bytes.Buffer
	if err := s.ClosedCS().Serialize(&buf); err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	got := capture.DecodeContextSwitch(buf.Bytes()[2:])
	if got.Begin != 100 || got.End != 150 || got.TargetTID != 11 || got.TargetProcessName != "other" {
		t.Fatalf("round trip mismatch: %+v", got)
	}
	if s.ClosedCS().Count() != 1 {
		t.Fatalf("Count() = %d, want 1", s.ClosedCS().Count())
	}
}
