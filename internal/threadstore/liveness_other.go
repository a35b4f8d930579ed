//go:build !linux

package threadstore

import "github.com/shirou/gopsutil/v3/process"

// IsAlive probes liveness via gopsutil on platforms without a direct
// signal-0 syscall binding wired up (spec §4.4 "Expiration check ...
// probes per-thread liveness via an OS handle if available"). gopsutil
// tracks processes, not individual threads, so this is necessarily an
// approximation on non-Linux platforms: it reports the owning process's
// liveness as a proxy for the thread's.
func IsAlive(tid uint32) bool {
	ok, err := process.PidExists(int32(tid))
	if err != nil {
		return true
	}
	return ok
}
