package manager

import (
	"bytes"
	"sync/atomic"
	"testing"

	"github.com/tracecap/tracecap/internal/clock"
	"github.com/tracecap/tracecap/internal/descriptor"
)

func newTestManager() *Manager {
	m := New(nil)
	m.SetEnabled(true)
	return m
}

func TestBeginEndBlockAppendsOnlyWhenGateAllows(t *testing.T) {
	m := newTestManager()
	const tid = 1
	d := m.RegisterDescriptor("site:a", descriptor.On, "A", "f.go", 1, descriptor.Block, 0, false)

	m.BeginBlock(tid, d, "A")
	m.EndBlock(tid)

	storage := m.ForThread(tid)
	if storage.ClosedBlocks().Count() != 1 {
		t.Fatalf("ClosedBlocks().Count() = %d, want 1", storage.ClosedBlocks().Count())
	}
}

func TestBeginEndBlockSuppressedWhenDisabled(t *testing.T) {
	m := New(nil) // never enabled
	const tid = 1
	d := m.RegisterDescriptor("site:b", descriptor.On, "B", "f.go", 1, descriptor.Block, 0, false)

	m.BeginBlock(tid, d, "B")
	m.EndBlock(tid)

	storage := m.ForThread(tid)
	if storage.ClosedBlocks().Count() != 0 {
		t.Fatalf("nothing should be recorded while globally Disabled")
	}
}

// TestScenarioS2 reproduces spec.md scenario S2 end-to-end through the
// Manager: descriptors P(OffRecursive), C(On), F(ForceOn); sequence
// begin(P) -> begin(C) -> end -> begin(F) -> end -> end. Expect exactly
// 2 closed blocks (P and F); C must be suppressed.
func TestScenarioS2(t *testing.T) {
	m := newTestManager()
	const tid = 1
	p := m.RegisterDescriptor("site:p", descriptor.OffRecursive, "P", "f.go", 1, descriptor.Block, 0, false)
	c := m.RegisterDescriptor("site:c", descriptor.On, "C", "f.go", 2, descriptor.Block, 0, false)
	f := m.RegisterDescriptor("site:f", descriptor.ForceOn, "F", "f.go", 3, descriptor.Block, 0, false)

	m.BeginBlock(tid, p, "P")
	m.BeginBlock(tid, c, "C")
	m.EndBlock(tid) // closes C
	m.BeginBlock(tid, f, "F")
	m.EndBlock(tid) // closes F
	m.EndBlock(tid) // closes P

	storage := m.ForThread(tid)
	if got := storage.ClosedBlocks().Count(); got != 2 {
		t.Fatalf("ClosedBlocks().Count() = %d, want 2 (P and F only)", got)
	}
}

// TestScenarioS4 reproduces spec.md scenario S4: begin_cs(from=10, t=100,
// to=11, name="other") then end_cs(tid=11, pid=own, t=150) must produce
// the closed ContextSwitch record on thread 10's section, not 11's.
func TestScenarioS4(t *testing.T) {
	m := newTestManager()

	m.BeginCS(10, clock.Tick(100), 11, "other")
	m.EndCS(11, 0, clock.Tick(150))

	from := m.ForThread(10)
	to := m.ForThread(11)

	if from.ClosedCS().Count() != 1 {
		t.Fatalf("thread 10 should have 1 closed CS record, got %d", from.ClosedCS().Count())
	}
	if to.ClosedCS().Count() != 0 {
		t.Fatalf("thread 11 should have 0 closed CS records, got %d", to.ClosedCS().Count())
	}

	var buf bytes.Buffer
	if err := from.ClosedCS().Serialize(&buf); err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	got := decodeOneCS(t, buf.Bytes())
	if got.Begin != 100 || got.End != 150 || got.TargetTID != 11 || got.TargetProcessName != "other" {
		t.Fatalf("unexpected CS record: %+v", got)
	}
}

// TestScenarioS6 reproduces spec.md scenario S6: an async dump cancelled
// mid-busy-wait must leave arenas untouched (no Clear called) yet must
// still return global status to Disabled, not stuck in Dumping.
func TestScenarioS6(t *testing.T) {
	m := newTestManager()
	const tid = 1
	d := m.RegisterDescriptor("site:s6", descriptor.On, "S6", "f.go", 1, descriptor.Block, 0, false)

	// Open a block and never close it, so ProfiledFrameOpened stays true
	// and the dump's busy-wait loop actually spins.
	m.BeginBlock(tid, d, "S6")

	var stop atomic.Bool
	stop.Store(true)

	var out bytes.Buffer
	written, err := m.DumpToStream(&out, &stop)
	if err != nil {
		t.Fatalf("DumpToStream: %v", err)
	}
	if written != 0 {
		t.Fatalf("a cancelled dump should write 0 records, got %d", written)
	}
	if m.Status() != Disabled {
		t.Fatalf("status after a cancelled dump = %v, want Disabled", m.Status())
	}

	storage := m.ForThread(tid)
	if storage.Depth() != 1 {
		t.Fatalf("the still-open block must remain on the stack, untouched by the cancelled dump")
	}
}

func TestDumpToFileReturnsRecordCountAndDisables(t *testing.T) {
	m := newTestManager()
	const tid = 1
	d := m.RegisterDescriptor("site:dump", descriptor.On, "D", "f.go", 1, descriptor.Block, 0, false)
	m.BeginBlock(tid, d, "D")
	m.EndBlock(tid)

	dir := t.TempDir()
	path := dir + "/out.bin"
	n := m.DumpToFile(path)
	if n != 1 {
		t.Fatalf("DumpToFile returned %d, want 1", n)
	}
	if m.Status() != Disabled {
		t.Fatalf("status after dump = %v, want Disabled", m.Status())
	}
}
