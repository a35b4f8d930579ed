package threadstore

import "testing"

func TestBeginEndBalancesDepthAndStack(t *testing.T) {
	s := New(1)
	s.BeginRecorded(&stubDesc, "a", true, 100, true)
	if s.Depth() != 1 {
		t.Fatalf("Depth() = %d, want 1", s.Depth())
	}
	res := s.End(150)
	if !res.Recorded {
		t.Fatalf("expected recorded result")
	}
	if res.Block.BeginTick != 100 || res.Block.EndTick != 150 {
		t.Fatalf("unexpected block ticks: %+v", res.Block)
	}
	if s.Depth() != 0 {
		t.Fatalf("Depth() after End = %d, want 0", s.Depth())
	}
	if !res.FrameClosed {
		t.Fatalf("expected frame closed when stack drains to empty")
	}
	if res.FrameDuration != 50 {
		t.Fatalf("FrameDuration = %d, want 50", res.FrameDuration)
	}
}

func TestEndOnEmptyStackIsDiscardedSilently(t *testing.T) {
	s := New(1)
	res := s.End(100)
	if res.Recorded {
		t.Fatalf("End on empty stack must not report Recorded")
	}
	if s.Depth() != 0 {
		t.Fatalf("Depth() = %d, want 0", s.Depth())
	}
}

func TestSuppressedBeginKeepsStackBalancedButUnrecorded(t *testing.T) {
	s := New(1)
	s.BeginSuppressed(100, true)
	if s.Depth() != 1 {
		t.Fatalf("Depth() = %d, want 1", s.Depth())
	}
	res := s.End(200)
	if res.Recorded {
		t.Fatalf("suppressed begin must not be recorded on End")
	}
}

// TestNestedAllowsChildrenPropagation traces scenario S2 at the Storage
// level: an outer block that forecloses children (allowsChildren=false)
// must report that foreclosure via TopAllowsChildren to whatever begins
// next, regardless of whether the outer block itself was recorded.
func TestNestedAllowsChildrenPropagation(t *testing.T) {
	s := New(1)
	if !s.TopAllowsChildren() {
		t.Fatalf("empty stack must allow children")
	}

	// Outer: recorded, but forecloses children (e.g. OffRecursive).
	s.BeginRecorded(&stubDesc, "outer", true, 100, false)
	if s.TopAllowsChildren() {
		t.Fatalf("TopAllowsChildren should be false under a foreclosing parent")
	}

	// Inner: gating decided this is suppressed because the parent forecloses.
	s.BeginSuppressed(110, false)
	if s.TopAllowsChildren() {
		t.Fatalf("a suppressed child under a foreclosing parent still forecloses its own children")
	}
	s.End(120) // close inner

	if s.TopAllowsChildren() {
		t.Fatalf("after popping inner, TopAllowsChildren should reflect outer (still false)")
	}
	s.End(200) // close outer

	if !s.TopAllowsChildren() {
		t.Fatalf("after popping outer, stack is empty and should allow children again")
	}
}

func TestBeginCSEndCSSingleSlot(t *testing.T) {
	s := New(1)
	if _, ok := s.EndCS(); ok {
		t.Fatalf("EndCS on a thread with no open CS should report false")
	}

	s.BeginCS(100, 11, "other")
	// A second BeginCS before the first closes silently replaces it
	// (capacity-1 slot).
	s.BeginCS(105, 12, "other2")

	cs, ok := s.EndCS()
	if !ok {
		t.Fatalf("expected an open CS to close")
	}
	if cs.BeginTick != 105 || cs.TargetTID != 12 || cs.TargetName != "other2" {
		t.Fatalf("unexpected closed CS: %+v", cs)
	}
	if _, ok := s.EndCS(); ok {
		t.Fatalf("EndCS should return false once the slot is drained")
	}
}

func TestPopSilentAndDrainSilently(t *testing.T) {
	s := New(1)
	s.BeginRecorded(&stubDesc, "a", true, 100, true)
	s.BeginRecorded(&stubDesc, "b", true, 110, true)
	s.PopSilent()
	if s.Depth() != 1 {
		t.Fatalf("Depth() after PopSilent = %d, want 1", s.Depth())
	}

	s.BeginRecorded(&stubDesc, "c", true, 120, true)
	s.BeginSuppressed(130, true)
	s.DrainSilently()
	if s.Depth() != 0 {
		t.Fatalf("Depth() after DrainSilently = %d, want 0", s.Depth())
	}
	if s.ProfiledFrameOpened() {
		t.Fatalf("ProfiledFrameOpened should be false after DrainSilently")
	}
}
