package threadstore

import "github.com/tracecap/tracecap/capture"

// AppendBlock serializes a closed block or event into this thread's
// block/value arena.
func (s *Storage) AppendBlock(b capture.Block) {
	n := capture.BlockSize(b.Name)
	dst := s.closedBlocks.Allocate(n)
	capture.EncodeBlock(dst, b)
}

// AppendValue serializes an arbitrary value into this thread's
// block/value arena (spec §3: values and blocks share one arena,
// distinguished on read by descriptor type).
func (s *Storage) AppendValue(v capture.Value) {
	n := capture.ValueSize(v)
	dst := s.closedBlocks.Allocate(n)
	capture.EncodeValue(dst, v)
}

// AppendContextSwitch serializes a closed context switch into this
// thread's sync arena.
func (s *Storage) AppendContextSwitch(cs capture.ContextSwitch) {
	n := capture.ContextSwitchSize(cs.TargetProcessName)
	dst := s.closedCS.Allocate(n)
	capture.EncodeContextSwitch(dst, cs)
}
