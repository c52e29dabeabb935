//go:build unix

package supervisor

import (
	"os"
	"syscall"
)

// terminate signals the whole process group of p.
func terminate(p *os.Process) error {
	return syscall.Kill(-p.Pid, syscall.SIGTERM)
}

func kill(p *os.Process) error {
	return syscall.Kill(-p.Pid, syscall.SIGKILL)
}
