package manager

import (
	"testing"

	"github.com/tracecap/tracecap/capture"
)

func decodeOneCS(t *testing.T, buf []byte) capture.ContextSwitch {
	t.Helper()
	if len(buf) < 2 {
		t.Fatalf("buffer too short for a length-prefixed record: %d bytes", len(buf))
	}
	return capture.DecodeContextSwitch(buf[2:])
}
