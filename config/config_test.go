package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/tracecap/tracecap/internal/descriptor"
)

func writeTempConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "tracecap.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestLoadParsesScalarsAndDescriptors(t *testing.T) {
	path := writeTempConfig(t, `
listen_addr: ":28077"
chunk_bytes: 65536
context_switch_log_path: /tmp/custom.log
event_tracing_enabled: true
descriptors:
  site:hot_path: off_recursive
  site:always: force_on
`)
	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.ListenAddr != ":28077" {
		t.Fatalf("ListenAddr = %q", c.ListenAddr)
	}
	if c.ChunkBytes != 65536 {
		t.Fatalf("ChunkBytes = %d", c.ChunkBytes)
	}
	if c.ContextSwitchLogPath != "/tmp/custom.log" {
		t.Fatalf("ContextSwitchLogPath = %q", c.ContextSwitchLogPath)
	}
	if !c.EventTracingEnabled {
		t.Fatalf("EventTracingEnabled should be true")
	}

	if s, ok := c.StatusFor("site:hot_path"); !ok || s != descriptor.OffRecursive {
		t.Fatalf("StatusFor(hot_path) = %v, %v", s, ok)
	}
	if s, ok := c.StatusFor("site:always"); !ok || s != descriptor.ForceOn {
		t.Fatalf("StatusFor(always) = %v, %v", s, ok)
	}
	if _, ok := c.StatusFor("site:unknown"); ok {
		t.Fatalf("StatusFor(unknown) should report false")
	}
}

func TestUnmarshalRejectsUnknownStatusName(t *testing.T) {
	path := writeTempConfig(t, "descriptors:\n  site:x: bogus\n")
	if _, err := Load(path); err == nil {
		t.Fatalf("expected an error for an unknown descriptor status name")
	}
}

func TestStatusForOnNilConfig(t *testing.T) {
	var c *Config
	if _, ok := c.StatusFor("anything"); ok {
		t.Fatalf("StatusFor on a nil *Config should report false")
	}
}
