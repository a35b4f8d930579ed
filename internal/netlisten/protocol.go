// Package netlisten implements NetworkListener (spec §4.8 / C8): the
// TCP control/streaming protocol that lets a connected reader enable,
// disable, and dump the profiler remotely.
//
// Every message is magic-prefixed and type-dispatched: a fixed
// magic+type+size header followed by a payload of that size (possibly
// empty), grounded on the magic-byte + type-dispatch shape common
// across the retrieved pack's binary protocol handlers.
package netlisten

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Magic is the 4-byte signature every message starts with, shared with
// the capture stream's own signature (spec §4.8 step 2: "each message
// starts with a magic byte sequence validating it is a profiler
// protocol message").
const Magic uint32 = 0x79734145

// MessageType identifies a protocol message (spec §4.8's table).
type MessageType uint8

const (
	Ping MessageType = iota
	RequestMainThreadFps
	RequestStartCapture
	RequestStopCapture
	RequestBlocksDescription
	ChangeBlockStatus
	ChangeEventTracingStatus
	ChangeEventTracingPriority

	ReplyStatus
	ReplyCapturingStarted
	ReplyMainThreadFps
	ReplyBlocks
	ReplyBlocksEnd
	ReplyBlocksDescription
	ReplyBlocksDescriptionEnd
)

const headerSize = 4 + 1 + 4 // magic + type + payload size

// writeMessage frames payload behind a magic+type+size header and
// writes it to w in one call.
func writeMessage(w io.Writer, typ MessageType, payload []byte) error {
	buf := make([]byte, headerSize+len(payload))
	binary.LittleEndian.PutUint32(buf[0:], Magic)
	buf[4] = byte(typ)
	binary.LittleEndian.PutUint32(buf[5:], uint32(len(payload)))
	copy(buf[headerSize:], payload)
	_, err := w.Write(buf)
	return err
}

// readMessage reads one magic-validated message from r. A zero-length
// payload is returned as a nil slice.
func readMessage(r io.Reader) (MessageType, []byte, error) {
	var hdr [headerSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return 0, nil, err
	}
	magic := binary.LittleEndian.Uint32(hdr[0:])
	if magic != Magic {
		return 0, nil, fmt.Errorf("netlisten: bad message signature %#x", magic)
	}
	typ := MessageType(hdr[4])
	size := binary.LittleEndian.Uint32(hdr[5:])
	if size == 0 {
		return typ, nil, nil
	}
	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return 0, nil, err
	}
	return typ, payload, nil
}

// statusPayload is EasyProfilerStatus (spec §4.8 step 1): sent
// unsolicited right after a connection is accepted.
type statusPayload struct {
	Enabled      bool
	EventTracing bool
	LowPriority  bool
}

func encodeStatus(s statusPayload) []byte {
	buf := make([]byte, 3)
	buf[0] = boolByte(s.Enabled)
	buf[1] = boolByte(s.EventTracing)
	buf[2] = boolByte(s.LowPriority)
	return buf
}

func decodeStatus(buf []byte) (statusPayload, error) {
	if len(buf) < 3 {
		return statusPayload{}, fmt.Errorf("netlisten: short status payload (%d bytes)", len(buf))
	}
	return statusPayload{
		Enabled:      buf[0] != 0,
		EventTracing: buf[1] != 0,
		LowPriority:  buf[2] != 0,
	}, nil
}

// timestampPayload carries max/avg main-thread frame times in
// microseconds (spec §4.8 RequestMainThreadFps reply).
type timestampPayload struct {
	MaxMicros uint64
	AvgMicros uint64
}

func encodeTimestamp(t timestampPayload) []byte {
	buf := make([]byte, 16)
	binary.LittleEndian.PutUint64(buf[0:], t.MaxMicros)
	binary.LittleEndian.PutUint64(buf[8:], t.AvgMicros)
	return buf
}

func decodeTimestamp(buf []byte) (timestampPayload, error) {
	if len(buf) < 16 {
		return timestampPayload{}, fmt.Errorf("netlisten: short timestamp payload (%d bytes)", len(buf))
	}
	return timestampPayload{
		MaxMicros: binary.LittleEndian.Uint64(buf[0:]),
		AvgMicros: binary.LittleEndian.Uint64(buf[8:]),
	}, nil
}

// blockStatusChange is ChangeBlockStatus's payload: a descriptor id and
// the new status to apply, accepted only while globally Disabled.
type blockStatusChange struct {
	ID     uint32
	Status uint8
}

func decodeBlockStatusChange(buf []byte) (blockStatusChange, error) {
	if len(buf) < 5 {
		return blockStatusChange{}, fmt.Errorf("netlisten: short ChangeBlockStatus payload (%d bytes)", len(buf))
	}
	return blockStatusChange{
		ID:     binary.LittleEndian.Uint32(buf[0:]),
		Status: buf[4],
	}, nil
}

func decodeBool(buf []byte) (bool, error) {
	if len(buf) < 1 {
		return false, fmt.Errorf("netlisten: short boolean payload")
	}
	return buf[0] != 0, nil
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
