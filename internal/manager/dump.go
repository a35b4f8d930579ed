package manager

import (
	"bufio"
	"io"
	"os"
	"sort"
	"sync/atomic"
	"time"

	"github.com/tracecap/tracecap/capture"
	"github.com/tracecap/tracecap/internal/clock"
	"github.com/tracecap/tracecap/internal/threadstore"
)

const (
	dumpFence         = 20 * time.Millisecond
	dumpBusyWaitSleep = 10 * time.Millisecond
)

// DumpToFile runs the dump protocol (spec §4.5 "Dump protocol") and
// writes the capture stream to path, returning the number of blocks
// written. On I/O error it returns 0, per spec §7's error table.
func (m *Manager) DumpToFile(path string) int {
	f, err := os.Create(path)
	if err != nil {
		m.Log.Warn().Err(err).Str("path", path).Msg("dump_to_file failed to open output")
		return 0
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	n, err := m.DumpToStream(w, nil)
	if err != nil {
		m.Log.Warn().Err(err).Msg("dump_to_file failed mid-write")
		return 0
	}
	if err := w.Flush(); err != nil {
		m.Log.Warn().Err(err).Msg("dump_to_file failed to flush")
		return 0
	}
	return n
}

// DumpToStream runs the same protocol against an arbitrary sink, for the
// synchronous file path and for the network listener's asynchronous dump
// task alike (spec §4.5 dump_to_stream). stopDumping, if non-nil, is
// polled in step 4's busy-wait and before each thread section in step 8
// so an async caller can cancel a stream dump in flight; step 7's totals
// pass does not poll it and always runs to completion. Passing nil means
// "never cancel" (the synchronous file-dump path).
func (m *Manager) DumpToStream(w io.Writer, stopDumping *atomic.Bool) (int, error) {
	m.dumpMu.Lock()
	defer m.dumpMu.Unlock()

	cancelled := func() bool { return stopDumping != nil && stopDumping.Load() }

	// Step 2: CAS Enabled -> Dumping, record end_tick, stop CS tracer.
	// A dump of an already-Disabled profiler is still allowed (dumps
	// whatever was recorded before the last disable); only a dump
	// already in progress is rejected by the CAS below failing on a
	// concurrent dumper, which dumpMu already serializes against.
	wasEnabled := m.status.CompareAndSwap(uint32(Enabled), uint32(Dumping))
	if wasEnabled {
		m.endTick.Store(uint64(clock.Now()))
		m.stopCSSource()
	}

	// Step 3: bounded fence so any in-flight begin/end on other threads
	// exits its critical section.
	time.Sleep(dumpFence)

	m.threadsMu.Lock()
	storages := make([]*threadstore.Storage, 0, len(m.threads))
	for _, s := range m.threads {
		storages = append(storages, s)
	}
	m.threadsMu.Unlock()
	sort.Slice(storages, func(i, j int) bool { return storages[i].TID < storages[j].TID })

	// Step 4: busy-wait per thread for any open profiled frame to drain.
	aborted := false
busyWait:
	for _, s := range storages {
		for s.ProfiledFrameOpened() {
			if cancelled() {
				aborted = true
				break busyWait
			}
			time.Sleep(dumpBusyWaitSleep)
		}
	}

	// Step 5: status -> Disabled, acquire the registry lock. Per-thread
	// arenas take no lock of their own; the dump relies on the step 4
	// drain and the Disabled status to keep them quiet. This runs even
	// on an aborted dump: a cancelled dump still leaves the profiler
	// Disabled rather than stuck in Dumping.
	m.status.Store(uint32(Disabled))
	m.Registry.Lock()
	defer m.Registry.Unlock()

	if aborted {
		return 0, nil
	}

	// Step 6: CS-log hook. The log file is not read here; CS records in
	// the dump are only those already ingested live (see drainCSLog).
	m.drainCSLog()

	now := clock.Now()
	liveTIDs := make(map[uint32]bool, len(storages))
	for _, s := range storages {
		if threadstore.IsAlive(s.TID) {
			liveTIDs[s.TID] = true
		}
	}

	descs := m.Registry.AllLocked()
	captureDescs := make([]capture.Descriptor, len(descs))
	for i, d := range descs {
		captureDescs[i] = capture.Descriptor{
			ID:     d.ID,
			Line:   d.Line,
			Color:  d.Color,
			Type:   capture.DescriptorType(d.Type),
			Status: capture.DescriptorStatus(d.Status),
			Name:   d.Name,
			File:   d.File,
		}
	}

	// Step 7: totals.
	var totalBlocks uint32
	var totalArenaBytes uint64
	var descriptorArenaBytes uint64
	for _, d := range captureDescs {
		descriptorArenaBytes += 2 + uint64(capture.DescriptorEntrySize(d))
	}
	type threadDump struct {
		s         *threadstore.Storage
		expired   bool
		synthetic *capture.Block
	}
	dumps := make([]threadDump, 0, len(storages))
	for _, s := range storages {
		td := threadDump{s: s}
		if !liveTIDs[s.TID] {
			s.MarkExpired(threadstore.Dead)
		}
		if s.Expired() == threadstore.Dead {
			td.expired = true
			switch {
			case s.Guarded && s.ClosedBlocks().Count() > 0:
				// A ThreadGuard-tracked thread that recorded at least one
				// block: emit "ThreadFinished" at the tick it actually exited
				// (spec.md:280), not at dump time.
				td.synthetic = &capture.Block{Begin: uint64(s.ExitTick()), End: uint64(s.ExitTick()), DescriptorID: m.threadLifecycleDesc.ID, Name: "ThreadFinished"}
			case !s.Guarded && (s.ClosedBlocks().Count() > 0 || s.ClosedCS().Count() > 0):
				// An unguarded thread the liveness probe found dead: emit
				// "ThreadExpired" at the dump's end time (spec.md:84).
				td.synthetic = &capture.Block{Begin: uint64(now), End: uint64(now), DescriptorID: m.threadLifecycleDesc.ID, Name: "ThreadExpired"}
			}
			// Step 9 deletes this thread from m.threads regardless; DeadMarked
			// records that a synthetic event was considered for it before
			// that happens, matching the three-state expired lifecycle
			// (spec.md:42).
			s.MarkExpired(threadstore.DeadMarked)
		}
		totalBlocks += s.ClosedBlocks().Count() + s.ClosedCS().Count()
		if td.synthetic != nil {
			totalBlocks++
		}
		totalArenaBytes += s.ClosedBlocks().Bytes() + s.ClosedCS().Bytes()
		dumps = append(dumps, td)
	}

	header := capture.Header{
		ProcessID:            uint64(m.ProcessID),
		CPUFrequency:         0,
		CaptureBeginTick:     m.beginTick.Load(),
		CaptureEndTick:       uint64(now),
		TotalBlockCount:      totalBlocks,
		TotalArenaBytes:      totalArenaBytes,
		DescriptorCount:      uint32(len(captureDescs)),
		DescriptorArenaBytes: descriptorArenaBytes,
	}

	// Step 8: emit the capture stream.
	if err := capture.WriteHeader(w, header); err != nil {
		return 0, err
	}
	if err := capture.WriteDescriptorTable(w, captureDescs); err != nil {
		return 0, err
	}

	written := 0
	for _, td := range dumps {
		if cancelled() {
			return written, nil
		}
		s := td.s
		if err := capture.WriteThreadSectionHeader(w, s.TID, s.Name()); err != nil {
			return written, err
		}
		csCount := s.ClosedCS().Count()
		if err := capture.WriteU32(w, csCount); err != nil {
			return written, err
		}
		if err := s.ClosedCS().Serialize(w); err != nil {
			return written, err
		}
		written += int(csCount)

		blockCount := s.ClosedBlocks().Count()
		if td.synthetic != nil {
			blockCount++
		}
		if err := capture.WriteU32(w, blockCount); err != nil {
			return written, err
		}
		if err := s.ClosedBlocks().Serialize(w); err != nil {
			return written, err
		}
		written += int(s.ClosedBlocks().Count())
		if td.synthetic != nil {
			n := capture.BlockSize(td.synthetic.Name)
			buf := make([]byte, 2+int(n))
			capture.EncodeBlock(buf[2:], *td.synthetic)
			if _, err := w.Write(buf); err != nil {
				return written, err
			}
			written++
		}
	}

	// Step 9: clear closed arenas, drop expired threads.
	m.threadsMu.Lock()
	for _, td := range dumps {
		td.s.ClosedBlocks().Clear()
		td.s.ClosedCS().Clear()
		if td.expired {
			delete(m.threads, td.s.TID)
		}
	}
	m.threadsMu.Unlock()

	return written, nil
}

// drainCSLog is the dump-time CS-log step (spec §4.5 step 6). It does
// nothing on any platform: it does not open or read the CS-tracer log
// file, so a dump contains only the context switches that reached
// OnContextSwitch while the source was running.
func (m *Manager) drainCSLog() {
	if m.csSource == nil {
		return
	}
	// On Linux, live CS events already flow through OnContextSwitch as
	// they're tailed from the log file by internal/csource.LinuxSource;
	// there is nothing left to separately replay at dump time once that
	// goroutine is stopped by stopCSSource. This hook exists for
	// platforms (or test doubles) whose Source buffers complete
	// tuples instead of streaming them live.
}
