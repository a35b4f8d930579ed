package netlisten

import (
	"encoding/binary"
	"fmt"
	"net"
)

// Client is the control-connection side of the wire protocol (spec
// §4.8/§6.2), used by cmd/tracecapctl and by tests exercising the
// protocol from outside this package. It reuses the same
// writeMessage/readMessage framing the server speaks, so client and
// server can never drift apart on wire format.
type Client struct {
	conn   net.Conn
	Status statusPayload
}

// Dial connects to addr and reads the server's unsolicited initial
// status message (spec §4.8 step 1).
func Dial(addr string) (*Client, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, err
	}
	typ, payload, err := readMessage(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("netlisten: reading initial status: %w", err)
	}
	if typ != ReplyStatus {
		conn.Close()
		return nil, fmt.Errorf("netlisten: expected initial ReplyStatus, got type %d", typ)
	}
	status, err := decodeStatus(payload)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return &Client{conn: conn, Status: status}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error { return c.conn.Close() }

// Ping sends a no-op keepalive (spec §4.8: Ping has no reply).
func (c *Client) Ping() error { return writeMessage(c.conn, Ping, nil) }

// StartCapture requests capture start and waits for the server's
// acknowledgement (spec §4.8 RequestStartCapture / scenario S5).
func (c *Client) StartCapture() error {
	if err := writeMessage(c.conn, RequestStartCapture, nil); err != nil {
		return err
	}
	typ, _, err := readMessage(c.conn)
	if err != nil {
		return err
	}
	if typ != ReplyCapturingStarted {
		return fmt.Errorf("netlisten: expected ReplyCapturingStarted, got type %d", typ)
	}
	return nil
}

// StopCapture requests a dump and returns the embedded capture stream
// bytes (spec §4.8 RequestStopCapture / scenario S5).
func (c *Client) StopCapture() ([]byte, error) {
	if err := writeMessage(c.conn, RequestStopCapture, nil); err != nil {
		return nil, err
	}
	typ, data, err := readMessage(c.conn)
	if err != nil {
		return nil, err
	}
	if typ != ReplyBlocks {
		return nil, fmt.Errorf("netlisten: expected ReplyBlocks, got type %d", typ)
	}
	typ, _, err = readMessage(c.conn)
	if err != nil {
		return nil, err
	}
	if typ != ReplyBlocksEnd {
		return nil, fmt.Errorf("netlisten: expected ReplyBlocksEnd, got type %d", typ)
	}
	return data, nil
}

// BlocksDescription requests the registered descriptor table (spec §4.8
// RequestBlocksDescription) and returns the embedded header+descriptor
// table bytes, parseable by capture.NewReader.
func (c *Client) BlocksDescription() ([]byte, error) {
	if err := writeMessage(c.conn, RequestBlocksDescription, nil); err != nil {
		return nil, err
	}
	typ, data, err := readMessage(c.conn)
	if err != nil {
		return nil, err
	}
	if typ != ReplyBlocksDescription {
		return nil, fmt.Errorf("netlisten: expected ReplyBlocksDescription, got type %d", typ)
	}
	typ, _, err = readMessage(c.conn)
	if err != nil {
		return nil, err
	}
	if typ != ReplyBlocksDescriptionEnd {
		return nil, fmt.Errorf("netlisten: expected ReplyBlocksDescriptionEnd, got type %d", typ)
	}
	return data, nil
}

// MainThreadFps requests the main thread's max/avg frame time in
// microseconds (spec §4.8 RequestMainThreadFps).
func (c *Client) MainThreadFps() (maxMicros, avgMicros uint64, err error) {
	if err = writeMessage(c.conn, RequestMainThreadFps, nil); err != nil {
		return 0, 0, err
	}
	typ, payload, err := readMessage(c.conn)
	if err != nil {
		return 0, 0, err
	}
	if typ != ReplyMainThreadFps {
		return 0, 0, fmt.Errorf("netlisten: expected ReplyMainThreadFps, got type %d", typ)
	}
	t, err := decodeTimestamp(payload)
	if err != nil {
		return 0, 0, err
	}
	return t.MaxMicros, t.AvgMicros, nil
}

// ChangeBlockStatus requests a descriptor status change (spec §4.8
// ChangeBlockStatus); the server only applies it while Disabled and
// never replies either way, so this returns as soon as the request is
// written.
func (c *Client) ChangeBlockStatus(id uint32, status uint8) error {
	payload := make([]byte, 5)
	binary.LittleEndian.PutUint32(payload[0:], id)
	payload[4] = status
	return writeMessage(c.conn, ChangeBlockStatus, payload)
}

// SetEventTracingEnabled and SetEventTracingLowPriority request toggling
// the server's context-switch tracing (spec §4.8 ChangeEventTracingStatus
// / ChangeEventTracingPriority); neither gets a reply.
func (c *Client) SetEventTracingEnabled(enabled bool) error {
	return writeMessage(c.conn, ChangeEventTracingStatus, []byte{boolByte(enabled)})
}

func (c *Client) SetEventTracingLowPriority(low bool) error {
	return writeMessage(c.conn, ChangeEventTracingPriority, []byte{boolByte(low)})
}
