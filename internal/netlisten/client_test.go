package netlisten

import (
	"bytes"
	"testing"
	"time"

	"github.com/tracecap/tracecap/capture"
	"github.com/tracecap/tracecap/internal/descriptor"
	"github.com/tracecap/tracecap/internal/manager"
)

func TestClientScenarioS5(t *testing.T) {
	m := manager.New(nil)
	l := New(m)
	go l.ListenAndServe("127.0.0.1:0")
	t.Cleanup(func() { l.Stop() })

	addr := waitForAddr(t, l)
	c, err := Dial(addr)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	if c.Status.Enabled {
		t.Fatalf("fresh manager should report Enabled=false")
	}

	if err := c.StartCapture(); err != nil {
		t.Fatalf("StartCapture: %v", err)
	}

	d := m.RegisterDescriptor("site:client", descriptor.On, "Client", "f.go", 1, descriptor.Block, 0, false)
	m.BeginBlock(1, d, "Client")
	m.EndBlock(1)

	data, err := c.StopCapture()
	if err != nil {
		t.Fatalf("StopCapture: %v", err)
	}
	r, err := capture.NewReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("parsing StopCapture payload: %v", err)
	}
	var total int
	for {
		sec, err := r.Next()
		if err != nil {
			break
		}
		total += len(sec.Blocks)
	}
	if total < 1 {
		t.Fatalf("expected at least 1 block, got %d", total)
	}
}

func TestClientBlocksDescription(t *testing.T) {
	m := manager.New(nil)
	l := New(m)
	go l.ListenAndServe("127.0.0.1:0")
	t.Cleanup(func() { l.Stop() })

	addr := waitForAddr(t, l)
	c, err := Dial(addr)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { c.Close() })

	m.RegisterDescriptor("site:described", descriptor.On, "Described", "f.go", 1, descriptor.Block, 0, false)

	data, err := c.BlocksDescription()
	if err != nil {
		t.Fatalf("BlocksDescription: %v", err)
	}
	r, err := capture.NewReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("parsing BlocksDescription payload: %v", err)
	}
	if len(r.Descriptors) < 1 {
		t.Fatalf("expected at least 1 descriptor")
	}
}

func waitForAddr(t *testing.T, l *Listener) string {
	t.Helper()
	for i := 0; i < 100; i++ {
		if a := l.Addr(); a != nil {
			return a.String()
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("listener never bound")
	return ""
}
