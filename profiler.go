// Package profiler is tracecap's public facade (spec §6.1): a small,
// stable API surface over ProfileManager (internal/manager), the
// descriptor registry, per-thread storage, and the network listener.
//
// Most callers use the package-level functions, which operate on a
// process-wide singleton created at package initialization (register_description and
// friends have no natural "which instance" argument at a call site, any
// more than the original API did). Tests and anything embedding more
// than one profiled subsystem in a process can instead construct an
// isolated *Profiler with New.
package profiler

import (
	"io"
	"sync"
	"sync/atomic"

	"github.com/tracecap/tracecap/capture"
	"github.com/tracecap/tracecap/internal/clock"
	"github.com/tracecap/tracecap/internal/csource"
	"github.com/tracecap/tracecap/internal/descriptor"
	"github.com/tracecap/tracecap/internal/manager"
	"github.com/tracecap/tracecap/internal/netlisten"
)

// Version identifiers (spec §6.1 version_major/minor/patch/version/version_name).
const (
	VersionMajor = 1
	VersionMinor = 0
	VersionPatch = 0
)

// Version is "major.minor.patch".
func Version() string { return versionString }

// VersionName is the human-readable release name.
const VersionName = "tracecap"

var versionString = func() string {
	return itoa(VersionMajor) + "." + itoa(VersionMinor) + "." + itoa(VersionPatch)
}()

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}

// DescriptorHandle is the opaque, cacheable handle register_description
// returns (spec §6.1): instrumentation sites register once and reuse the
// handle on every subsequent call.
type DescriptorHandle = *descriptor.Descriptor

// Status aliases descriptor.Status so callers configuring a descriptor's
// default status don't need to import internal/descriptor themselves.
type Status = descriptor.Status

const (
	Off                    = descriptor.Off
	On                     = descriptor.On
	ForceOn                = descriptor.ForceOn
	OffRecursive           = descriptor.OffRecursive
	OnWithoutChildren      = descriptor.OnWithoutChildren
	ForceOnWithoutChildren = descriptor.ForceOnWithoutChildren
)

// BlockType aliases descriptor.Type.
type BlockType = descriptor.Type

const (
	Event = descriptor.Event
	Block = descriptor.Block
	Value = descriptor.Value
)

// DataType aliases the wire-format value types used by StoreValue.
type DataType = capture.DataType

const (
	TypeBool   = capture.TypeBool
	TypeChar   = capture.TypeChar
	TypeI8     = capture.TypeI8
	TypeU8     = capture.TypeU8
	TypeI16    = capture.TypeI16
	TypeU16    = capture.TypeU16
	TypeI32    = capture.TypeI32
	TypeU32    = capture.TypeU32
	TypeI64    = capture.TypeI64
	TypeU64    = capture.TypeU64
	TypeF32    = capture.TypeF32
	TypeF64    = capture.TypeF64
	TypeString = capture.TypeString
)

// TimeUnit selects the unit a frame-time accessor reports in (spec §6.1
// "unit ∈ {Ticks, Microseconds}").
type TimeUnit int

const (
	Ticks TimeUnit = iota
	Microseconds
)

const defaultPort = 28077

// Profiler wires together the manager, descriptor registry, per-thread
// storage, and (optionally started) network listener behind the §6.1
// API. The zero value is not usable; use New.
type Profiler struct {
	m *manager.Manager

	listenMu sync.Mutex
	listener *netlisten.Listener

	cfgMu sync.RWMutex
	cfg   configStatusSource
}

// configStatusSource is satisfied by *config.Config; kept as a narrow
// interface here so profiler doesn't need to import the config package
// just to let UseConfig accept it (config already imports
// internal/descriptor, so importing config here is not itself a cycle —
// this is purely about keeping the facade's import surface minimal).
type configStatusSource interface {
	StatusFor(siteKey string) (descriptor.Status, bool)
}

// New constructs an isolated Profiler with its own ProfileManager,
// descriptor registry, and context-switch source binding (the platform
// default from internal/csource).
func New() *Profiler {
	return &Profiler{m: manager.New(csource.New())}
}

// UseConfig wires a loaded config.Config's per-site initial statuses
// into subsequent RegisterDescription calls (SPEC_FULL.md §3: "initial
// descriptor statuses"). It does not affect call sites that already
// registered.
func (p *Profiler) UseConfig(c configStatusSource) {
	p.cfgMu.Lock()
	p.cfg = c
	p.cfgMu.Unlock()
}

// RegisterDescription interns a descriptor for a call site (spec §6.1
// register_description). Call once per call site and cache the returned
// handle there. If UseConfig was called with a config naming siteKey,
// its status overrides defaultStatus for this, and only this,
// registration.
func (p *Profiler) RegisterDescription(siteKey string, defaultStatus Status, name, file string, line int32, typ BlockType, color uint32, copyName bool) DescriptorHandle {
	p.cfgMu.RLock()
	cfg := p.cfg
	p.cfgMu.RUnlock()
	if cfg != nil {
		if s, ok := cfg.StatusFor(siteKey); ok {
			defaultStatus = s
		}
	}
	return p.m.RegisterDescriptor(siteKey, defaultStatus, name, file, line, typ, color, copyName)
}

// BeginBlock opens a scoped block (spec §6.1 begin_block).
func (p *Profiler) BeginBlock(tid uint32, h DescriptorHandle, runtimeName string) {
	p.m.BeginBlock(tid, h, runtimeName)
}

// EndBlock closes the most recently opened block on tid (spec §6.1 end_block).
func (p *Profiler) EndBlock(tid uint32) { p.m.EndBlock(tid) }

// BeginNonscopedBlock opens a block whose matching EndBlock may be
// called from code that outlives the caller's lexical scope (spec §6.1
// begin_nonscoped_block).
func (p *Profiler) BeginNonscopedBlock(tid uint32, h DescriptorHandle, runtimeName string) {
	p.m.BeginNonscopedBlock(tid, h, runtimeName)
}

// StoreEvent records a zero-duration instant (spec §6.1 store_event).
func (p *Profiler) StoreEvent(tid uint32, h DescriptorHandle, runtimeName string) bool {
	return p.m.StoreEvent(tid, h, runtimeName)
}

// StoreBlock records a pre-timed, already-closed block (spec §6.1 store_block).
func (p *Profiler) StoreBlock(tid uint32, h DescriptorHandle, runtimeName string, begin, end clock.Tick) bool {
	return p.m.StoreBlock(tid, h, runtimeName, begin, end)
}

// StoreValue records an arbitrary sampled value (spec §6.1 store_value).
func (p *Profiler) StoreValue(tid uint32, h DescriptorHandle, dataType DataType, data []byte, isArray bool, vin uint64) bool {
	return p.m.StoreValue(tid, h, dataType, data, isArray, vin)
}

// SetEnabled turns capture on or off (spec §6.1 set_enabled).
func (p *Profiler) SetEnabled(enabled bool) { p.m.SetEnabled(enabled) }

// IsEnabled reports whether capture is currently on (spec §6.1 is_enabled).
func (p *Profiler) IsEnabled() bool { return p.m.IsEnabled() }

// DumpToFile runs the dump protocol and writes the capture stream to
// path, returning the number of records written (spec §6.1 dump_to_file).
func (p *Profiler) DumpToFile(path string) int { return p.m.DumpToFile(path) }

// DumpToStream runs the dump protocol against an arbitrary sink. Passing
// a non-nil stop lets the caller cancel an in-flight dump (used by the
// network listener to cancel on client disconnect).
func (p *Profiler) DumpToStream(w io.Writer, stop *atomic.Bool) (int, error) {
	return p.m.DumpToStream(w, stop)
}

// RegisterThread names the calling OS thread (spec §6.1 register_thread).
func (p *Profiler) RegisterThread(tid uint32, name string) string {
	return p.m.RegisterThread(tid, name)
}

// RegisterThreadScoped is RegisterThread plus a guard closure standing
// in for a deterministic destructor (spec §6.1 register_thread_scoped):
// call the returned func when the thread is about to exit.
func (p *Profiler) RegisterThreadScoped(tid uint32, name string) (string, func()) {
	return p.m.RegisterThreadScoped(tid, name)
}

// SetMainThread designates tid as Main for the main_thread_* frame-time
// accessors.
func (p *Profiler) SetMainThread(tid uint32) { p.m.SetMainThread(tid) }

// SetEventTracingEnabled toggles context-switch tracing (spec §6.1).
func (p *Profiler) SetEventTracingEnabled(enabled bool) { p.m.SetEventTracingEnabled(enabled) }

// SetLowPriorityEventTracing forwards the hint to the active
// ContextSwitchSource (spec §6.1 set_low_priority_event_tracing).
func (p *Profiler) SetLowPriorityEventTracing(low bool) { p.m.SetLowPriorityEventTracing(low) }

// SetContextSwitchLogFilename sets the Linux CS-tracer log path (spec
// §6.1 set_context_switch_log_filename; a no-op on other platforms).
func (p *Profiler) SetContextSwitchLogFilename(path string) { p.m.SetContextSwitchLogFilename(path) }

// ThisThreadFrameTime returns tid's current/local-max/local-avg frame
// duration in the requested unit (spec §6.1 this_thread_frame_time /
// _local_max / _local_avg).
func (p *Profiler) ThisThreadFrameTime(tid uint32, unit TimeUnit) uint64 {
	return convert(p.m.ForThread(tid).FrameCur(), unit)
}
func (p *Profiler) ThisThreadFrameTimeLocalMax(tid uint32, unit TimeUnit) uint64 {
	return convert(p.m.ForThread(tid).FrameMax(), unit)
}
func (p *Profiler) ThisThreadFrameTimeLocalAvg(tid uint32, unit TimeUnit) uint64 {
	return convert(p.m.ForThread(tid).FrameAvg(), unit)
}

// MainThreadFrameTime and its _local_max/_local_avg variants mirror the
// this_thread_* accessors but read the main-thread-only aggregates (spec
// §6.1 main_thread_* variants).
func (p *Profiler) MainThreadFrameTime(unit TimeUnit) uint64 {
	return convert(p.m.MainThreadFrameCur(), unit)
}
func (p *Profiler) MainThreadFrameTimeLocalMax(unit TimeUnit) uint64 {
	return convert(p.m.MainThreadFrameMax(), unit)
}
func (p *Profiler) MainThreadFrameTimeLocalAvg(unit TimeUnit) uint64 {
	return convert(p.m.MainThreadFrameAvg(), unit)
}

func convert(t clock.Tick, unit TimeUnit) uint64 {
	if unit == Microseconds {
		return clock.ToMicroseconds(t)
	}
	return uint64(t)
}

// StartListen binds the network listener to the given TCP address (spec
// §6.1 start_listen, default port 28077) and begins serving in a
// background goroutine. Calling it while already listening is a no-op.
func (p *Profiler) StartListen(addr string) error {
	p.listenMu.Lock()
	defer p.listenMu.Unlock()
	if p.listener != nil && p.listener.IsListening() {
		return nil
	}
	l := netlisten.New(p.m)
	p.listener = l

	go func() {
		if err := l.ListenAndServe(addr); err != nil && l.IsListening() {
			l.Log.Warn().Err(err).Msg("listener stopped unexpectedly")
		}
	}()
	return nil
}

// StopListen shuts down the network listener, if one is running (spec
// §6.1 stop_listen).
func (p *Profiler) StopListen() error {
	p.listenMu.Lock()
	defer p.listenMu.Unlock()
	if p.listener == nil {
		return nil
	}
	return p.listener.Stop()
}

// IsListening reports whether the network listener is currently serving
// (spec §6.1 is_listening).
func (p *Profiler) IsListening() bool {
	p.listenMu.Lock()
	defer p.listenMu.Unlock()
	return p.listener != nil && p.listener.IsListening()
}

// CurrentTime returns the current monotonic tick (spec §6.1 current_time).
func CurrentTime() clock.Tick { return clock.Now() }

// ToNanoseconds and ToMicroseconds convert a Tick to wall-clock units
// (spec §6.1 to_nanoseconds / to_microseconds).
func ToNanoseconds(t clock.Tick) uint64  { return clock.ToNanoseconds(t) }
func ToMicroseconds(t clock.Tick) uint64 { return clock.ToMicroseconds(t) }

// Default is the process-wide singleton the package-level functions
// below operate on (Design Note: "expose both a package-level singleton
// and a constructable *Profiler").
var Default = New()

func RegisterDescription(siteKey string, defaultStatus Status, name, file string, line int32, typ BlockType, color uint32, copyName bool) DescriptorHandle {
	return Default.RegisterDescription(siteKey, defaultStatus, name, file, line, typ, color, copyName)
}
func BeginBlock(tid uint32, h DescriptorHandle, runtimeName string) {
	Default.BeginBlock(tid, h, runtimeName)
}
func EndBlock(tid uint32) { Default.EndBlock(tid) }
func BeginNonscopedBlock(tid uint32, h DescriptorHandle, runtimeName string) {
	Default.BeginNonscopedBlock(tid, h, runtimeName)
}
func StoreEvent(tid uint32, h DescriptorHandle, runtimeName string) bool {
	return Default.StoreEvent(tid, h, runtimeName)
}
func StoreBlock(tid uint32, h DescriptorHandle, runtimeName string, begin, end clock.Tick) bool {
	return Default.StoreBlock(tid, h, runtimeName, begin, end)
}
func StoreValue(tid uint32, h DescriptorHandle, dataType DataType, data []byte, isArray bool, vin uint64) bool {
	return Default.StoreValue(tid, h, dataType, data, isArray, vin)
}
func SetEnabled(enabled bool)    { Default.SetEnabled(enabled) }
func IsEnabled() bool            { return Default.IsEnabled() }
func DumpToFile(path string) int { return Default.DumpToFile(path) }
func RegisterThread(tid uint32, name string) string {
	return Default.RegisterThread(tid, name)
}
func RegisterThreadScoped(tid uint32, name string) (string, func()) {
	return Default.RegisterThreadScoped(tid, name)
}
func UseConfig(c configStatusSource)          { Default.UseConfig(c) }
func SetMainThread(tid uint32)                { Default.SetMainThread(tid) }
func SetEventTracingEnabled(enabled bool)     { Default.SetEventTracingEnabled(enabled) }
func SetLowPriorityEventTracing(low bool)     { Default.SetLowPriorityEventTracing(low) }
func SetContextSwitchLogFilename(path string) { Default.SetContextSwitchLogFilename(path) }
func StartListen() error                      { return StartListenAddr(defaultAddr()) }
func StartListenAddr(addr string) error       { return Default.StartListen(addr) }
func StopListen() error                       { return Default.StopListen() }
func IsListening() bool                       { return Default.IsListening() }

func defaultAddr() string {
	return ":" + itoa(defaultPort)
}
