//go:build linux

package threadstore

import "golang.org/x/sys/unix"

// IsAlive probes whether OS thread id tid is still scheduled, using
// unix.Kill(tid, 0): per kill(2), signal 0 performs error checking
// without actually sending a signal, so ESRCH means the thread/process
// is gone. Grounded on other_examples' alexandrem-coral cpu_profiler.go,
// which enumerates and probes threads the same way via golang.org/x/sys/unix.
func IsAlive(tid uint32) bool {
	err := unix.Kill(int(tid), 0)
	return err == nil || err == unix.EPERM
}
