// Package threadstore implements ThreadStorage (spec §4.4 / C4): the
// per-thread open-block stack, closed-block/value arena, closed
// context-switch arena, and frame-time bookkeeping.
//
// Go has no thread-locals, so unlike the teacher's (and easy_profiler's)
// implicit "current thread" lookup, tracecap's Storage is a handle a
// caller obtains once per OS thread (via manager.ForThread) and caches
// — "one lookup per thread-lifetime, not per call" (Design Note, spec
// §9).
package threadstore

import (
	"sync"
	"sync/atomic"

	"github.com/tracecap/tracecap/internal/chunk"
	"github.com/tracecap/tracecap/internal/clock"
	"github.com/tracecap/tracecap/internal/descriptor"
)

// Expiration states for Storage.Expired (spec §3 ThreadStorage.expired).
const (
	Live uint32 = iota
	Dead
	DeadMarked
)

const (
	blockChunkSize = 8 << 10
	syncChunkSize  = 256
)

// OpenBlock is one entry on a thread's open-block stack (spec §3
// Block).
type OpenBlock struct {
	BeginTick    clock.Tick
	EndTick      clock.Tick
	DescriptorID uint32
	RuntimeName  string
	Status       descriptor.Status
	Scoped       bool
}

type stackEntry struct {
	recorded       bool // false => this begin was suppressed by gating; pop silently
	allowsChildren bool // whether a nested begin under this one is gated open
	block          OpenBlock
}

// Storage is one thread's profiling state.
type Storage struct {
	TID uint32

	mu   sync.Mutex // guards Name, open stack, frame bookkeeping
	name string

	stack []stackEntry
	depth int32 // total open-begin depth, recorded or not

	closedBlocks *chunk.Allocator // Block + Value records
	closedCS     *chunk.Allocator // ContextSwitch records
	openCS       *OpenContextSwitch

	frameStartTick clock.Tick
	frameOpened    bool

	profiledFrameOpened atomic.Bool
	expired             atomic.Uint32
	exitTick            atomic.Uint64

	Guarded bool
	Halt    bool

	frameCur atomic.Uint64
	frameMax atomic.Uint64
	frameSum atomic.Uint64
	frameN   atomic.Uint64
}

// OpenContextSwitch is the (capacity-1) open context switch slot (spec
// §3 / §4.4: "open-CS stack (capacity 1)"): the span during which this
// thread was off-CPU, and which other thread preempted it.
type OpenContextSwitch struct {
	BeginTick  clock.Tick
	TargetTID  uint32
	TargetName string
}

// New creates a Storage for OS thread tid.
func New(tid uint32) *Storage {
	return &Storage{
		TID:          tid,
		closedBlocks: chunk.New(blockChunkSize),
		closedCS:     chunk.New(syncChunkSize),
	}
}

func (s *Storage) SetName(name string) {
	s.mu.Lock()
	s.name = name
	s.mu.Unlock()
}

func (s *Storage) Name() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.name
}

// Expired returns the thread's liveness state (spec §3 expired).
func (s *Storage) Expired() uint32 { return s.expired.Load() }

// MarkExpired transitions Live -> Dead (the dump's liveness probe sets
// this) or Dead -> DeadMarked (the dump sets this on every dead thread
// once it has decided whether that thread gets a synthetic
// ThreadFinished/ThreadExpired event, before the event is written and
// the thread is dropped).
func (s *Storage) MarkExpired(state uint32) { s.expired.Store(state) }

// MarkExpiredAt is MarkExpired plus the tick at which the transition
// happened, used by RegisterThreadScoped's closure to record the exact
// exit tick a guarded thread's "ThreadFinished" event should carry (spec
// §4.4's ThreadGuard destructor: "emit a ThreadFinished event at the
// exit tick").
func (s *Storage) MarkExpiredAt(state uint32, tick clock.Tick) {
	s.exitTick.Store(uint64(tick))
	s.expired.Store(state)
}

// ExitTick returns the tick passed to the most recent MarkExpiredAt
// call, or zero if the thread was never marked expired that way (e.g.
// it was reaped by the dump's liveness probe instead of a ThreadGuard).
func (s *Storage) ExitTick() clock.Tick { return clock.Tick(s.exitTick.Load()) }

// ProfiledFrameOpened reports whether this thread currently has at
// least one open block on its stack. The dump protocol (spec §4.5 step
// 4) busy-waits on this going false before reading this thread's
// arenas.
func (s *Storage) ProfiledFrameOpened() bool { return s.profiledFrameOpened.Load() }

// Depth returns the current open-begin depth (recorded and suppressed).
func (s *Storage) Depth() int32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.depth
}

// TopAllowsChildren reports whether a block beginning right now, nested
// under whatever is currently on top of the open-block stack, is allowed
// to be recorded absent a ForceOn escape (spec §4.5 scenario S2: an
// OffRecursive or *WithoutChildren parent forecloses its descendants).
// An empty stack (no open parent) always allows children.
func (s *Storage) TopAllowsChildren() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.stack) == 0 {
		return true
	}
	return s.stack[len(s.stack)-1].allowsChildren
}

// BeginRecorded pushes a real, recorded open block. now is the begin
// tick; allowsChildren is whether a nested begin under this one should
// itself be gated open (the manager computes this from the descriptor's
// status and a possible ForceOn escape).
func (s *Storage) BeginRecorded(desc *descriptor.Descriptor, runtimeName string, scoped bool, now clock.Tick, allowsChildren bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.openFrameLocked(now)
	s.stack = append(s.stack, stackEntry{
		recorded:       true,
		allowsChildren: allowsChildren,
		block: OpenBlock{
			BeginTick:    now,
			DescriptorID: desc.ID,
			RuntimeName:  runtimeName,
			Status:       desc.Status,
			Scoped:       scoped,
		},
	})
	s.depth++
	s.profiledFrameOpened.Store(true)
}

// BeginSuppressed records an open-begin that gating decided not to
// record, keeping the stack balanced for the matching End without
// touching the closed-block arena. allowsChildren still propagates (a
// suppressed OnWithoutChildren block, say, still forecloses its own
// descendants).
func (s *Storage) BeginSuppressed(now clock.Tick, allowsChildren bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.openFrameLocked(now)
	s.stack = append(s.stack, stackEntry{recorded: false, allowsChildren: allowsChildren})
	s.depth++
	s.profiledFrameOpened.Store(true)
}

func (s *Storage) openFrameLocked(now clock.Tick) {
	if len(s.stack) == 0 && !s.frameOpened {
		s.frameStartTick = now
		s.frameOpened = true
	}
}

// EndResult describes what an End call did, so the manager can decide
// whether to update frame-time aggregates (only on a frame-draining
// end) and whether the closed block is Main-thread data.
type EndResult struct {
	Recorded      bool
	Block         OpenBlock
	FrameDuration clock.Tick // valid only if FrameClosed
	FrameClosed   bool
}

// End pops the top of the open-block stack. If the popped entry was
// suppressed by gating, it's discarded silently. If the stack was
// already empty, the call is discarded per spec §4.5 ("extra end with
// empty stack: silently discarded").
func (s *Storage) End(now clock.Tick) EndResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.stack) == 0 {
		return EndResult{}
	}

	top := s.stack[len(s.stack)-1]
	s.stack = s.stack[:len(s.stack)-1]
	if s.depth > 0 {
		s.depth--
	}

	res := EndResult{Recorded: top.recorded}
	if top.recorded {
		top.block.EndTick = now
		res.Block = top.block
	}

	if len(s.stack) == 0 {
		s.profiledFrameOpened.Store(false)
		if s.frameOpened {
			dur := now - s.frameStartTick
			s.updateFrameLocked(dur)
			res.FrameClosed = true
			res.FrameDuration = dur
			s.frameOpened = false
		}
	}

	return res
}

func (s *Storage) updateFrameLocked(dur clock.Tick) {
	s.frameCur.Store(uint64(dur))
	for {
		old := s.frameMax.Load()
		if uint64(dur) <= old {
			break
		}
		if s.frameMax.CompareAndSwap(old, uint64(dur)) {
			break
		}
	}
	n := s.frameN.Add(1)
	sum := s.frameSum.Add(uint64(dur))
	if n >= 10_000 {
		// Reset the rolling window, per spec §4.5: "a rolling average
		// (reset after 10_000 frames or on external request)".
		s.frameSum.Store(0)
		s.frameN.Store(0)
		_ = sum
	}
}

// ResetFrameWindow implements the external reset request from spec
// §4.5's frame-time aggregates.
func (s *Storage) ResetFrameWindow() {
	s.frameSum.Store(0)
	s.frameN.Store(0)
}

// FrameCur, FrameMax, FrameAvg return this thread's local frame-time
// aggregates, in ticks.
func (s *Storage) FrameCur() clock.Tick { return clock.Tick(s.frameCur.Load()) }
func (s *Storage) FrameMax() clock.Tick { return clock.Tick(s.frameMax.Load()) }
func (s *Storage) FrameAvg() clock.Tick {
	n := s.frameN.Load()
	if n == 0 {
		return 0
	}
	return clock.Tick(s.frameSum.Load() / n)
}

// PopSilent drops the top open entry without emitting it, regardless of
// whether it was recorded — used when disabling mid-scope or at thread
// teardown (spec §4.4 "pop_silent").
func (s *Storage) PopSilent() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.stack) == 0 {
		return
	}
	s.stack = s.stack[:len(s.stack)-1]
	if s.depth > 0 {
		s.depth--
	}
	if len(s.stack) == 0 {
		s.profiledFrameOpened.Store(false)
		s.frameOpened = false
	}
}

// DrainSilently discards every remaining open entry, used at dump
// teardown for threads observed with an unbalanced stack (spec §3
// invariant: "teardown-observed blocks may be discarded").
func (s *Storage) DrainSilently() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stack = s.stack[:0]
	s.depth = 0
	s.profiledFrameOpened.Store(false)
	s.frameOpened = false
}

// BeginCS opens a context switch away from this thread (spec §4.6/§4.5
// step 6): this thread stops running, preempted by targetTID. Only one
// CS may be open per thread at a time; a second BeginCS silently
// replaces the first (mirrors the single-slot "open-CS stack (capacity
// 1)").
func (s *Storage) BeginCS(now clock.Tick, targetTID uint32, targetName string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.openCS = &OpenContextSwitch{BeginTick: now, TargetTID: targetTID, TargetName: targetName}
}

// EndCS closes this thread's open context switch, returning it for the
// manager to serialize onto this same thread's closed-CS arena — a CS
// record belongs to the thread that went off-CPU (spec §3
// ContextSwitchRecord / §4.5 step 6). The manager (internal/manager's
// pending-target map) is responsible for routing a given EndCS call to
// the right thread's Storage; Storage itself only ever closes its own
// single open slot.
func (s *Storage) EndCS() (OpenContextSwitch, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.openCS == nil {
		return OpenContextSwitch{}, false
	}
	cs := *s.openCS
	s.openCS = nil
	return cs, true
}

// ClosedBlocks and ClosedCS expose the underlying arenas for the dump
// path (serialize, then Clear).
func (s *Storage) ClosedBlocks() *chunk.Allocator { return s.closedBlocks }
func (s *Storage) ClosedCS() *chunk.Allocator     { return s.closedCS }
