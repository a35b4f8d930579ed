package manager

import (
	"github.com/tracecap/tracecap/capture"
	"github.com/tracecap/tracecap/internal/clock"
	"github.com/tracecap/tracecap/internal/descriptor"
	"github.com/tracecap/tracecap/internal/threadstore"
)

// gate evaluates the three-policy gating check (spec §4.5 "Enable/disable
// semantics") for a block about to begin on storage, against desc's own
// status. It returns whether the block itself should be recorded and
// whether a block nested under it should be gated open.
func gate(status Status, desc *descriptor.Descriptor, storage *threadstore.Storage) (recorded, allowsChildren bool) {
	parentAllows := storage.TopAllowsChildren()
	forceOn := desc.Status == descriptor.ForceOn || desc.Status == descriptor.ForceOnWithoutChildren

	recorded = status == Enabled && desc.Status.Enabled() && (parentAllows || forceOn)

	allowsChildren = parentAllows
	if forceOn || desc.Status.SuppressesChildren() {
		allowsChildren = false
	}
	return recorded, allowsChildren
}

// BeginBlock opens a scoped block on tid's storage (spec §6.1
// begin_block / §4.5 begin_block). The thread is auto-registered on
// first use.
func (m *Manager) BeginBlock(tid uint32, desc *descriptor.Descriptor, runtimeName string) {
	storage := m.ForThread(tid)
	now := clock.Now()
	status := m.Status()

	recorded, allowsChildren := gate(status, desc, storage)
	if !recorded {
		storage.BeginSuppressed(now, allowsChildren)
		return
	}
	storage.BeginRecorded(desc, runtimeName, true, now, allowsChildren)
}

// BeginNonscopedBlock is begin_block whose matching end may arrive from
// storage that outlives the caller's lexical scope (spec §4.5
// begin_nonscoped_block); the gating and stack bookkeeping are identical,
// only the Scoped flag on the open entry differs.
func (m *Manager) BeginNonscopedBlock(tid uint32, desc *descriptor.Descriptor, runtimeName string) {
	storage := m.ForThread(tid)
	now := clock.Now()
	status := m.Status()

	recorded, allowsChildren := gate(status, desc, storage)
	if !recorded {
		storage.BeginSuppressed(now, allowsChildren)
		return
	}
	storage.BeginRecorded(desc, runtimeName, false, now, allowsChildren)
}

// EndBlock closes the top open block on tid's storage (spec §4.5
// end_block). A recorded block is serialized into the closed arena as a
// Block record, whatever its descriptor's type (Value records come only
// from StoreValue); an extra end against an empty stack is silently
// discarded by Storage.End itself.
func (m *Manager) EndBlock(tid uint32) {
	storage := m.ForThread(tid)
	now := clock.Now()
	res := storage.End(now)
	if !res.Recorded {
		m.afterFrame(tid, res)
		return
	}

	name := res.Block.RuntimeName
	storage.AppendBlock(capture.Block{
		Begin:        uint64(res.Block.BeginTick),
		End:          uint64(res.Block.EndTick),
		DescriptorID: res.Block.DescriptorID,
		Name:         name,
	})
	m.afterFrame(tid, res)
}

func (m *Manager) afterFrame(tid uint32, res threadstore.EndResult) {
	if res.FrameClosed && m.IsMainThread(tid) {
		m.updateMainFrame(res.FrameDuration)
	}
}

// StoreEvent appends a zero-duration block (spec §4.5 store_event):
// begin == end == now, recorded only if the gating check at the instant
// of the call allows it.
func (m *Manager) StoreEvent(tid uint32, desc *descriptor.Descriptor, runtimeName string) bool {
	now := clock.Now()
	return m.storeAt(tid, desc, runtimeName, now, now)
}

// StoreBlock appends a pre-timed, already-closed block (spec §4.5
// store_block) without ever touching the open-block stack.
func (m *Manager) StoreBlock(tid uint32, desc *descriptor.Descriptor, runtimeName string, begin, end clock.Tick) bool {
	return m.storeAt(tid, desc, runtimeName, begin, end)
}

func (m *Manager) storeAt(tid uint32, desc *descriptor.Descriptor, runtimeName string, begin, end clock.Tick) bool {
	storage := m.ForThread(tid)
	status := m.Status()
	recorded, _ := gate(status, desc, storage)
	if !recorded {
		return false
	}
	storage.AppendBlock(capture.Block{
		Begin:        uint64(begin),
		End:          uint64(end),
		DescriptorID: desc.ID,
		Name:         runtimeName,
	})
	return true
}

// StoreValue appends an ArbitraryValue record (spec §4.5 store_value).
// vin (value-identity) is carried verbatim as ValueID; the caller
// supplies it (e.g. a hash of the variable's address or name) so readers
// can group successive samples of the same logical variable.
func (m *Manager) StoreValue(tid uint32, desc *descriptor.Descriptor, dataType capture.DataType, data []byte, isArray bool, vin uint64) bool {
	storage := m.ForThread(tid)
	status := m.Status()
	recorded, _ := gate(status, desc, storage)
	if !recorded {
		return false
	}
	storage.AppendValue(capture.Value{
		Timestamp:    uint64(clock.Now()),
		ValueID:      vin,
		DescriptorID: desc.ID,
		DataType:     dataType,
		IsArray:      isArray,
		Data:         data,
	})
	return true
}

// BeginCS opens a context switch away from fromTID (spec §4.5 begin_cs /
// §4.6): fromTID stops running, preempted by toTID. Unknown tids are
// implicitly registered, matching begin_block's auto-registration
// behavior — a CS source has no opportunity to call register_thread
// first. The pending-target map records that the next matching EndCS
// for toTID should close this particular open CS, so begin_cs/end_cs
// called back-to-back for one observed switch (spec §4.5 step 6: "funnel
// each tuple through begin_cs/end_cs") always pair up, regardless of
// which thread the caller names when closing.
func (m *Manager) BeginCS(fromTID uint32, t clock.Tick, toTID uint32, toName string) {
	storage := m.ForThread(fromTID)
	storage.BeginCS(t, toTID, toName)

	m.csMu.Lock()
	m.pendingCS[toTID] = fromTID
	m.csMu.Unlock()
}

// EndCS closes the open context switch awaiting toTID's close (the one
// opened by the matching BeginCS) and appends the ContextSwitch record
// to the *source* thread's closed-CS arena — the record belongs to the
// thread that went off-CPU, per spec §3 ContextSwitchRecord / §4.5 step
// 6 and scenario S4 (a cs_count=1 record on the from-thread's section).
func (m *Manager) EndCS(toTID, toPID uint32, t clock.Tick) {
	m.csMu.Lock()
	fromTID, ok := m.pendingCS[toTID]
	if ok {
		delete(m.pendingCS, toTID)
	}
	m.csMu.Unlock()
	if !ok {
		return
	}

	storage := m.ForThread(fromTID)
	open, ok := storage.EndCS()
	if !ok {
		return
	}
	storage.AppendContextSwitch(capture.ContextSwitch{
		Begin:             uint64(open.BeginTick),
		End:               uint64(t),
		TargetTID:         open.TargetTID,
		TargetProcessName: open.TargetName,
	})
}
