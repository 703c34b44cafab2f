//go:build darwin

package pulse

import "golang.org/x/sys/unix"

// RaiseThreadPriority mirrors priority_linux.go's best-effort nice-value
// bump; macOS has no unprivileged equivalent of a hard real-time
// scheduling class, so this is the practical ceiling.
func RaiseThreadPriority() error {
	return unix.Setpriority(unix.PRIO_PROCESS, 0, -20)
}
