package netlisten

import (
	"bytes"
	"net"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/tracecap/tracecap/capture"
	"github.com/tracecap/tracecap/internal/clock"
	"github.com/tracecap/tracecap/internal/descriptor"
	"github.com/tracecap/tracecap/internal/manager"
)

// listenerTID is the synthetic OS-thread id under which the listener's
// own StartCapture/StopCapture marker events are recorded (marker events
// have no natural owning thread, since they originate on the listener's
// own goroutine, not an instrumented application thread).
const listenerTID = ^uint32(0)

const pollTimeout = 500 * time.Millisecond

// Listener runs NetworkListener's accept loop (spec §4.8): one
// goroutine per accepted connection, each running the per-connection
// message loop to completion or until the connection is lost.
type Listener struct {
	Manager *manager.Manager
	Log     zerolog.Logger

	ln      net.Listener
	running atomic.Bool

	startDesc *descriptor.Descriptor
	stopDesc  *descriptor.Descriptor
}

// New creates a Listener bound to m. It does not start accepting
// connections; call ListenAndServe for that.
func New(m *manager.Manager) *Listener {
	m.RegisterThread(listenerTID, "Network")
	return &Listener{
		Manager:   m,
		Log:       zerolog.Nop(),
		startDesc: m.RegisterDescriptor("netlisten:StartCapture", descriptor.On, "StartCapture", "", 0, descriptor.Event, 0, false),
		stopDesc:  m.RegisterDescriptor("netlisten:StopCapture", descriptor.On, "StopCapture", "", 0, descriptor.Event, 0, false),
	}
}

// ListenAndServe binds addr (default port 28077, spec §6.1 start_listen)
// and runs the accept loop until Stop is called or a non-transient
// accept error occurs.
func (l *Listener) ListenAndServe(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	l.ln = ln
	l.running.Store(true)
	l.Log.Info().Str("addr", ln.Addr().String()).Msg("listening")

	for {
		conn, err := ln.Accept()
		if err != nil {
			if !l.running.Load() {
				return nil
			}
			return err
		}
		go l.handleConn(conn)
	}
}

// Addr returns the bound address, valid after ListenAndServe has
// started listening.
func (l *Listener) Addr() net.Addr {
	if l.ln == nil {
		return nil
	}
	return l.ln.Addr()
}

// Stop closes the listener (spec §6.1 stop_listen); in-flight
// connections are left to observe the next send/recv error and unwind
// on their own, per spec §4.8's "connection is considered lost on
// send/recv returning <= 0".
func (l *Listener) Stop() error {
	l.running.Store(false)
	if l.ln == nil {
		return nil
	}
	return l.ln.Close()
}

// IsListening reports whether the accept loop is active (spec §6.1
// is_listening).
func (l *Listener) IsListening() bool { return l.running.Load() }

func (l *Listener) handleConn(conn net.Conn) {
	defer conn.Close()
	l.Log.Debug().Str("remote", conn.RemoteAddr().String()).Msg("client connected")

	status := statusPayload{
		Enabled:      l.Manager.IsEnabled(),
		EventTracing: l.Manager.EventTracingEnabled(),
		LowPriority:  l.Manager.LowPriorityEventTracing(),
	}
	if err := writeMessage(conn, ReplyStatus, encodeStatus(status)); err != nil {
		return
	}

	for {
		typ, payload, err := readMessage(conn)
		if err != nil {
			l.Log.Debug().Err(err).Msg("connection lost")
			return
		}

		var ok bool
		switch typ {
		case Ping:
			ok = true
		case RequestMainThreadFps:
			ok = l.handleMainThreadFps(conn)
		case RequestStartCapture:
			ok = l.handleStartCapture(conn)
		case RequestStopCapture:
			ok = l.handleStopCapture(conn)
		case RequestBlocksDescription:
			ok = l.handleBlocksDescription(conn)
		case ChangeBlockStatus:
			ok = l.handleChangeBlockStatus(payload)
		case ChangeEventTracingStatus:
			ok = l.handleChangeEventTracingStatus(payload)
		case ChangeEventTracingPriority:
			ok = l.handleChangeEventTracingPriority(payload)
		default:
			l.Log.Warn().Uint8("type", uint8(typ)).Msg("unknown message type")
			ok = true
		}
		if !ok {
			return
		}
	}
}

func (l *Listener) handleMainThreadFps(conn net.Conn) bool {
	t := timestampPayload{
		MaxMicros: clock.ToMicroseconds(l.Manager.MainThreadFrameMax()),
		AvgMicros: clock.ToMicroseconds(l.Manager.MainThreadFrameAvg()),
	}
	return writeMessage(conn, ReplyMainThreadFps, encodeTimestamp(t)) == nil
}

func (l *Listener) handleStartCapture(conn net.Conn) bool {
	l.Manager.SetEnabled(true)
	l.Manager.StoreEvent(listenerTID, l.startDesc, "StartCapture")
	return writeMessage(conn, ReplyCapturingStarted, nil) == nil
}

// handleStopCapture implements spec §4.8's RequestStopCapture step: emit
// the StopCapture marker while still Enabled, then run the dump
// asynchronously while polling the connection (500 ms receive timeout)
// so a client disconnect cancels the in-flight dump rather than leaving
// it to run to completion unobserved.
func (l *Listener) handleStopCapture(conn net.Conn) bool {
	l.Manager.StoreEvent(listenerTID, l.stopDesc, "StopCapture")

	var stopDumping atomic.Bool
	type result struct {
		buf bytes.Buffer
		err error
	}
	done := make(chan result, 1)
	go func() {
		var r result
		_, r.err = l.Manager.DumpToStream(&r.buf, &stopDumping)
		done <- r
	}()

	probe := make([]byte, 1)
	for {
		select {
		case r := <-done:
			if r.err != nil {
				return false
			}
			return l.sendDumpResult(conn, r.buf.Bytes())
		default:
		}

		conn.SetReadDeadline(time.Now().Add(pollTimeout))
		_, err := conn.Read(probe)
		if err == nil {
			continue
		}
		if ne, isNetErr := err.(net.Error); isNetErr && ne.Timeout() {
			continue
		}
		// Connection lost mid-dump: cancel and unwind without replying.
		stopDumping.Store(true)
		<-done
		return false
	}
}

func (l *Listener) sendDumpResult(conn net.Conn, data []byte) bool {
	conn.SetReadDeadline(time.Time{})
	if err := writeMessage(conn, ReplyBlocks, data); err != nil {
		return false
	}
	return writeMessage(conn, ReplyBlocksEnd, nil) == nil
}

func (l *Listener) handleBlocksDescription(conn net.Conn) bool {
	l.Manager.Registry.Lock()
	descs := l.Manager.Registry.AllLocked()
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
	l.Manager.Registry.Unlock()

	var buf bytes.Buffer
	header := capture.Header{DescriptorCount: uint32(len(captureDescs))}
	if err := capture.WriteHeader(&buf, header); err != nil {
		return false
	}
	if err := capture.WriteDescriptorTable(&buf, captureDescs); err != nil {
		return false
	}

	if err := writeMessage(conn, ReplyBlocksDescription, buf.Bytes()); err != nil {
		return false
	}
	return writeMessage(conn, ReplyBlocksDescriptionEnd, nil) == nil
}

func (l *Listener) handleChangeBlockStatus(payload []byte) bool {
	change, err := decodeBlockStatusChange(payload)
	if err != nil {
		return true // malformed payload: ignore per spec §7 "silently ignored"
	}
	if l.Manager.Status() != manager.Disabled {
		return true // rejected silently, spec §7 "Descriptor mutation while enabled"
	}
	l.Manager.Registry.SetStatus(change.ID, descriptor.Status(change.Status))
	return true
}

func (l *Listener) handleChangeEventTracingStatus(payload []byte) bool {
	enabled, err := decodeBool(payload)
	if err != nil {
		return true
	}
	l.Manager.SetEventTracingEnabled(enabled)
	return true
}

func (l *Listener) handleChangeEventTracingPriority(payload []byte) bool {
	low, err := decodeBool(payload)
	if err != nil {
		return true
	}
	l.Manager.SetLowPriorityEventTracing(low)
	return true
}
