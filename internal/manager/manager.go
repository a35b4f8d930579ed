// Package manager implements ProfileManager (spec §4.5 / C5): the
// global state machine, thread registry, gating policy, and dump
// orchestration tying every other component together.
package manager

import (
	"os"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/tracecap/tracecap/internal/clock"
	"github.com/tracecap/tracecap/internal/csource"
	"github.com/tracecap/tracecap/internal/descriptor"
	"github.com/tracecap/tracecap/internal/threadstore"
)

// Status is the global profiler status (spec §3 ProfileManager.status).
type Status uint32

const (
	Disabled Status = iota
	Enabled
	Dumping
)

// Manager is the process-wide profiler state machine. The zero value is
// not usable; use New. Per the Design Note on "globally mutable state",
// tracecap exposes both a package-level singleton (see profiler.go) and
// a constructable *Manager so tests can assert the invariants in spec
// §8 against an isolated instance.
type Manager struct {
	ProcessID int

	Registry *descriptor.Registry

	status              atomic.Uint32
	eventTracingEnabled atomic.Bool
	lowPriorityET       atomic.Bool
	mainTID             atomic.Uint32
	beginTick           atomic.Uint64
	endTick             atomic.Uint64

	// Main-thread-only frame aggregates (spec §4.5: "Non-main threads
	// update only their thread-local aggregates" — Open Question,
	// preserved). These mirror threadstore.Storage's per-thread
	// aggregates but only ever get updated by the thread registered as
	// Main.
	frameCur atomic.Uint64
	frameMax atomic.Uint64
	frameSum atomic.Uint64
	frameN   atomic.Uint64

	threadsMu sync.Mutex
	threads   map[uint32]*threadstore.Storage
	names     map[string]int // registered thread-name counts, for collision suffixing

	csMu      sync.Mutex
	pendingCS map[uint32]uint32 // target tid -> from tid with a matching open CS awaiting this close

	dumpMu      sync.Mutex
	stopDumping atomic.Bool

	csSource  csource.Source
	csLogPath string

	// threadLifecycleDesc is a reserved, always-Block-typed descriptor
	// used for the synthetic "ThreadFinished"/"ThreadExpired" records a
	// dump appends for dead threads (spec §4.4/§7). Registered first so
	// it is guaranteed descriptor id 0, rather than reusing whatever the
	// host application happens to register first: capture.Reader.Next
	// decides Block-vs-Value by looking up a record's descriptor id, and
	// a synthetic record stamped with an arbitrary id could collide with
	// a Value-typed descriptor.
	threadLifecycleDesc *descriptor.Descriptor

	Log zerolog.Logger
}

// New creates a Manager. csSource may be nil, in which case context
// switch ingestion is a no-op (useful in tests that don't exercise
// §4.6).
func New(csSource csource.Source) *Manager {
	m := &Manager{
		ProcessID: os.Getpid(),
		Registry:  descriptor.New(),
		threads:   make(map[uint32]*threadstore.Storage),
		names:     make(map[string]int),
		pendingCS: make(map[uint32]uint32),
		csSource:  csSource,
		Log:       zerolog.Nop(),
	}
	m.threadLifecycleDesc = m.Registry.Register("manager:ThreadLifecycle", descriptor.On, "ThreadLifecycle", "", 0, descriptor.Block, 0, false)
	return m
}

// Status returns the current global status with acquire semantics
// (spec §5: "Global status ... atomic<u8> acquire/release").
func (m *Manager) Status() Status {
	return Status(m.status.Load())
}

// IsEnabled reports whether the profiler is currently Enabled (not
// Disabled or mid-Dumping).
func (m *Manager) IsEnabled() bool {
	return m.Status() == Enabled
}

// SetEnabled transitions Disabled<->Enabled idempotently (spec §4.5).
// Enabling sets BeginTick and starts the context-switch tracer (if
// event tracing is turned on); disabling sets EndTick and stops it.
// Transitioning out of Dumping is not this method's job — only the dump
// path does that (see dump.go).
func (m *Manager) SetEnabled(enabled bool) {
	if enabled {
		if !m.status.CompareAndSwap(uint32(Disabled), uint32(Enabled)) {
			return
		}
		m.beginTick.Store(uint64(clock.Now()))
		m.Log.Debug().Msg("profiler enabled")
		if m.eventTracingEnabled.Load() {
			m.startCSSource()
		}
		return
	}

	if !m.status.CompareAndSwap(uint32(Enabled), uint32(Disabled)) {
		return
	}
	m.endTick.Store(uint64(clock.Now()))
	m.Log.Debug().Msg("profiler disabled")
	m.stopCSSource()
}

func (m *Manager) startCSSource() {
	if m.csSource == nil {
		return
	}
	status, err := m.csSource.Start(m)
	if status != csource.EnableOK {
		m.Log.Warn().Stringer("status", status).Err(err).Msg("context switch tracing failed to start")
	}
}

func (m *Manager) stopCSSource() {
	if m.csSource == nil {
		return
	}
	m.csSource.Stop()
}

// SetEventTracingEnabled stores the event-tracing flag (spec §6.1
// set_event_tracing_enabled). If the profiler is currently Enabled the
// context-switch source is started or stopped right away; otherwise the
// flag takes effect the next time the profiler transitions to Enabled.
func (m *Manager) SetEventTracingEnabled(enabled bool) {
	m.eventTracingEnabled.Store(enabled)
	if m.Status() == Enabled {
		if enabled {
			m.startCSSource()
		} else {
			m.stopCSSource()
		}
	}
}

func (m *Manager) EventTracingEnabled() bool { return m.eventTracingEnabled.Load() }

// SetLowPriorityEventTracing forwards to the context-switch source
// (spec §6.1 set_low_priority_event_tracing).
func (m *Manager) SetLowPriorityEventTracing(low bool) {
	m.lowPriorityET.Store(low)
	if m.csSource != nil {
		m.csSource.SetLowPriority(low)
	}
}

func (m *Manager) LowPriorityEventTracing() bool { return m.lowPriorityET.Load() }

// SetContextSwitchLogFilename sets the Linux CS-tracer log path (spec
// §6.1, Linux only).
func (m *Manager) SetContextSwitchLogFilename(path string) {
	m.csLogPath = path
	if m.csSource != nil {
		m.csSource.SetLogFilename(path)
	}
}

// RegisterDescriptor interns a static block descriptor (spec §4.3/§6.1
// register_description). Callers should call this once per call site
// and cache the returned *descriptor.Descriptor there (Design Note:
// "register on first use, cache handle in a mutable slot belonging to
// the call site").
func (m *Manager) RegisterDescriptor(siteKey string, defaultStatus descriptor.Status, name, file string, line int32, typ descriptor.Type, color uint32, copyName bool) *descriptor.Descriptor {
	return m.Registry.Register(siteKey, defaultStatus, name, file, line, typ, color, copyName)
}

// ForThread returns the Storage for OS thread tid, creating it on first
// use. Callers obtain this once per OS thread and cache it (Design
// Note on thread-local caching).
func (m *Manager) ForThread(tid uint32) *threadstore.Storage {
	m.threadsMu.Lock()
	defer m.threadsMu.Unlock()
	if s, ok := m.threads[tid]; ok {
		return s
	}
	s := threadstore.New(tid)
	m.threads[tid] = s
	return s
}

// RegisterThread names the calling OS thread's Storage, de-duplicating
// collisions with a numeric suffix (SPEC_FULL §7, grounded on
// original_source's profile_manager.cpp thread-name collision
// handling) and returns the name actually stored.
func (m *Manager) RegisterThread(tid uint32, name string) string {
	storage := m.ForThread(tid)

	m.threadsMu.Lock()
	actual := name
	if n, ok := m.names[name]; ok {
		actual = name + "." + strconv.Itoa(n)
		m.names[name] = n + 1
	} else {
		m.names[name] = 1
	}
	m.threadsMu.Unlock()

	storage.SetName(actual)
	return actual
}

// RegisterThreadScoped is RegisterThread plus a ThreadGuard substitute
// (SPEC_FULL §7 / Design Note on deterministic-destructor replacement):
// the returned closure marks the thread Dead at the tick it runs and,
// on the next dump, causes a synthetic "ThreadFinished" event to be
// appended at that exit tick (spec.md:280), distinguishing it from the
// "ThreadExpired" event a dump's own liveness probe appends for an
// unguarded thread it finds dead, which is stamped at dump time instead.
func (m *Manager) RegisterThreadScoped(tid uint32, name string) (string, func()) {
	actual := m.RegisterThread(tid, name)
	storage := m.ForThread(tid)
	storage.Guarded = true
	return actual, func() {
		storage.MarkExpiredAt(threadstore.Dead, clock.Now())
	}
}

// SetMainThread marks tid as the "Main" thread for the purposes of the
// main_thread_* frame-time accessors (spec §4.5).
func (m *Manager) SetMainThread(tid uint32) {
	m.mainTID.Store(tid)
}

func (m *Manager) IsMainThread(tid uint32) bool {
	return m.mainTID.Load() == tid
}

// MainThreadFrameCur, MainThreadFrameMax, MainThreadFrameAvg expose the
// global frame aggregates updated only by the Main thread (spec §6.1
// main_thread_* variants).
func (m *Manager) MainThreadFrameCur() clock.Tick { return clock.Tick(m.frameCur.Load()) }
func (m *Manager) MainThreadFrameMax() clock.Tick { return clock.Tick(m.frameMax.Load()) }
func (m *Manager) MainThreadFrameAvg() clock.Tick {
	n := m.frameN.Load()
	if n == 0 {
		return 0
	}
	return clock.Tick(m.frameSum.Load() / n)
}

// ResetMainThreadFrameWindow implements the external reset request for
// the main-thread frame aggregates.
func (m *Manager) ResetMainThreadFrameWindow() {
	m.frameSum.Store(0)
	m.frameN.Store(0)
}

func (m *Manager) updateMainFrame(dur clock.Tick) {
	m.frameCur.Store(uint64(dur))
	for {
		old := m.frameMax.Load()
		if uint64(dur) <= old {
			break
		}
		if m.frameMax.CompareAndSwap(old, uint64(dur)) {
			break
		}
	}
	n := m.frameN.Add(1)
	m.frameSum.Add(uint64(dur))
	if n >= 10_000 {
		m.frameSum.Store(0)
		m.frameN.Store(0)
	}
}

// OnContextSwitch implements csource.Listener, funneling each
// OS-reported context switch tailed by the source through BeginCS/EndCS
// back-to-back, so live ingestion uses the same code path as direct
// BeginCS/EndCS callers.
func (m *Manager) OnContextSwitch(e csource.Event) {
	m.BeginCS(e.FromTID, e.Time, e.ToTID, e.ToProcessName)
	m.EndCS(e.ToTID, e.ToPID, e.Time)
}
