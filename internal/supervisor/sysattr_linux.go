//go:build linux

package supervisor

import "syscall"

// The child leads its own process group so Terminate reaches the tools it
// starts. Pdeathsig stops it when the supervisor dies without shutting it
// down (SIGKILL, a crash). The signal is tied to the spawning OS thread,
// which the runtime keeps alive for unlocked goroutines.
func sysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setpgid: true, Pdeathsig: syscall.SIGTERM}
}
