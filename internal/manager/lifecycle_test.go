package manager

import (
	"bytes"
	"testing"

	"github.com/tracecap/tracecap/capture"
	"github.com/tracecap/tracecap/internal/descriptor"
)

// TestThreadFinishedEmittedForGuardedExit reproduces spec.md:280: a thread
// registered with RegisterThreadScoped that records at least one block and
// then exits (the returned closure runs) must produce exactly one synthetic
// "ThreadFinished" block, stamped at the exit tick rather than dump time.
func TestThreadFinishedEmittedForGuardedExit(t *testing.T) {
	m := newTestManager()
	const tid = 42
	name, done := m.RegisterThreadScoped(tid, "worker")
	if name != "worker" {
		t.Fatalf("RegisterThreadScoped name = %q, want %q", name, "worker")
	}

	d := m.RegisterDescriptor("site:lifecycle-finished", descriptor.On, "Work", "f.go", 1, descriptor.Block, 0, false)
	m.BeginBlock(tid, d, "Work")
	m.EndBlock(tid)

	done()

	var out bytes.Buffer
	n, err := m.DumpToStream(&out, nil)
	if err != nil {
		t.Fatalf("DumpToStream: %v", err)
	}
	if n != 2 { // the real block plus the synthetic ThreadFinished
		t.Fatalf("DumpToStream wrote %d records, want 2", n)
	}

	r, err := capture.NewReader(&out)
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	sec, err := r.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if sec.TID != tid {
		t.Fatalf("section TID = %d, want %d", sec.TID, tid)
	}
	if len(sec.Blocks) != 2 {
		t.Fatalf("len(Blocks) = %d, want 2", len(sec.Blocks))
	}

	var found *capture.Block
	for i := range sec.Blocks {
		if sec.Blocks[i].Name == "ThreadFinished" {
			found = &sec.Blocks[i]
		}
	}
	if found == nil {
		t.Fatalf("no ThreadFinished record found among %+v", sec.Blocks)
	}
	if found.DescriptorID != m.threadLifecycleDesc.ID {
		t.Fatalf("ThreadFinished DescriptorID = %d, want the reserved lifecycle id %d", found.DescriptorID, m.threadLifecycleDesc.ID)
	}
	if found.Begin != found.End {
		t.Fatalf("ThreadFinished must be a zero-duration event, got begin=%d end=%d", found.Begin, found.End)
	}

	if _, err := r.Next(); err == nil {
		t.Fatalf("expected EOF after a single thread section")
	}
}

// TestThreadExpiredEmittedForUnguardedDeadThread reproduces spec.md:84: a
// thread the dump's own liveness probe finds dead (never RegisterThreadScoped,
// so Guarded is false) gets a "ThreadExpired" event stamped at dump time
// instead of "ThreadFinished".
func TestThreadExpiredEmittedForUnguardedDeadThread(t *testing.T) {
	m := newTestManager()
	const tid = 99999991 // unlikely to collide with a live OS thread/process id
	d := m.RegisterDescriptor("site:lifecycle-expired", descriptor.On, "Work", "f.go", 1, descriptor.Block, 0, false)
	m.BeginBlock(tid, d, "Work")
	m.EndBlock(tid)

	var out bytes.Buffer
	n, err := m.DumpToStream(&out, nil)
	if err != nil {
		t.Fatalf("DumpToStream: %v", err)
	}
	if n != 2 {
		t.Fatalf("DumpToStream wrote %d records, want 2", n)
	}

	r, err := capture.NewReader(&out)
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	sec, err := r.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}

	var found *capture.Block
	for i := range sec.Blocks {
		if sec.Blocks[i].Name == "ThreadExpired" {
			found = &sec.Blocks[i]
		}
	}
	if found == nil {
		t.Fatalf("no ThreadExpired record found among %+v", sec.Blocks)
	}
	if found.DescriptorID != m.threadLifecycleDesc.ID {
		t.Fatalf("ThreadExpired DescriptorID = %d, want the reserved lifecycle id %d", found.DescriptorID, m.threadLifecycleDesc.ID)
	}
}
