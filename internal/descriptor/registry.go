// Package descriptor implements the DescriptorRegistry (spec §4.3 / C3):
// interning of static block descriptors into stable, dense numeric ids.
package descriptor

import "sync"

// Type identifies what kind of instrumentation site a Descriptor
// describes.
type Type uint8

const (
	Event Type = iota
	Block
	Value
)

// Status is the 3-bit enum (plus implied flags) controlling whether a
// descriptor's instances are recorded, and how that decision propagates
// to its descendants in the open-block stack.
type Status uint8

const (
	Off Status = iota
	On
	ForceOn
	OffRecursive
	OnWithoutChildren
	ForceOnWithoutChildren
)

// Enabled reports whether instances of a descriptor in this status
// should themselves be recorded (independent of what it does to
// descendants). Off is the only status that suppresses the block
// itself — OffRecursive still records its own instance and only
// forecloses its descendants (spec §4.5 scenario S2: an OffRecursive
// parent's own block appears in the dump; only its non-ForceOn
// children are suppressed).
func (s Status) Enabled() bool {
	return s != Off
}

// SuppressesChildren reports whether a block with this status
// suppresses its descendants outright (absent a ForceOn escape).
func (s Status) SuppressesChildren() bool {
	switch s {
	case OffRecursive, OnWithoutChildren, ForceOnWithoutChildren:
		return true
	default:
		return false
	}
}

// Descriptor is immutable after registration, except for Status, which
// may only be changed while the global profiler status is Disabled
// (enforced by the caller, not by Registry itself).
type Descriptor struct {
	ID     uint32
	Line   int32
	Color  uint32
	Type   Type
	Status Status
	Name   string
	File   string
}

// Registry interns descriptors by a unique per-call-site key, handing
// back stable, dense ids starting at 0.
//
// The registration path (Register) takes a short exclusive lock around
// the map and slice; the hot path (begin_block/end_block/store_*) never
// touches Registry at all — callers cache the *Descriptor obtained from
// their first Register call at the call site and reuse it.
type Registry struct {
	mu    sync.Mutex
	byKey map[string]*Descriptor
	byID  []*Descriptor
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{byKey: make(map[string]*Descriptor)}
}

// Register interns the descriptor for siteKey, returning the existing
// Descriptor if siteKey was already registered. copyName controls
// whether Registry must own a private copy of name (set true for
// runtime-registered descriptors whose name storage may not outlive the
// call) or may borrow the caller's string. With copyName set, Register
// stores its own copy of name; without it, the caller's string is
// stored as is (Go strings are immutable, so either is safe to alias).
func (r *Registry) Register(siteKey string, defaultStatus Status, name, file string, line int32, typ Type, color uint32, copyName bool) *Descriptor {
	r.mu.Lock()
	defer r.mu.Unlock()

	if d, ok := r.byKey[siteKey]; ok {
		return d
	}

	if copyName {
		name = string([]byte(name))
	}

	d := &Descriptor{
		ID:     uint32(len(r.byID)),
		Line:   line,
		Color:  color,
		Type:   typ,
		Status: defaultStatus,
		Name:   name,
		File:   file,
	}
	r.byKey[siteKey] = d
	r.byID = append(r.byID, d)
	return d
}

// ByID returns the descriptor with the given id, or nil if it doesn't
// exist.
func (r *Registry) ByID(id uint32) *Descriptor {
	r.mu.Lock()
	defer r.mu.Unlock()
	if int(id) >= len(r.byID) {
		return nil
	}
	return r.byID[id]
}

// SetStatus changes a descriptor's Status. The caller (ProfileManager)
// is responsible for only calling this while the global profiler status
// is Disabled, per spec §4.3: "Status changes on descriptors are
// permitted only when global status is Disabled."
func (r *Registry) SetStatus(id uint32, status Status) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if int(id) >= len(r.byID) {
		return false
	}
	r.byID[id].Status = status
	return true
}

// Len returns the number of registered descriptors.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byID)
}

// Lock and Unlock expose the registry's mutex directly so the dump path
// (spec §4.5 step 5: "Acquire the storage and registry locks") can hold
// it across the whole dump rather than per-descriptor, then call
// AllLocked once.
func (r *Registry) Lock()   { r.mu.Lock() }
func (r *Registry) Unlock() { r.mu.Unlock() }

// AllLocked returns every registered descriptor in dense id order. The
// caller must hold Lock for the duration of use; the returned slice is
// the registry's own backing array and must not be mutated.
func (r *Registry) AllLocked() []*Descriptor {
	return r.byID
}
