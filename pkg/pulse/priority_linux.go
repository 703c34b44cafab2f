//go:build linux

package pulse

import "golang.org/x/sys/unix"

// RaiseThreadPriority asks the OS scheduler for the highest-priority
// timeslice available to an unprivileged process, best-effort since the
// full real-time guarantee the DDA tick period wants requires
// CAP_SYS_NICE or a real-time kernel. Failures are non-fatal: the engine
// still produces correct output, just with looser timing jitter.
func RaiseThreadPriority() error {
	return unix.Setpriority(unix.PRIO_PROCESS, 0, -20)
}
