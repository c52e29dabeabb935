package supervisor

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"
)

// ErrNotRunning is returned when terminating a process that already exited.
var ErrNotRunning = errors.New("process not running")

// Process is a handle to a running child.
type Process interface {
	// PID returns the operating system process id.
	PID() int

	// Done is closed once the process has exited.
	Done() <-chan struct{}

	// ExitErr returns the result of waiting for the process. It is only
	// meaningful after Done is closed.
	ExitErr() error

	// Terminate asks the process to stop and blocks until it has exited.
	// If it is still running after grace, it is killed.
	Terminate(grace time.Duration) error
}

// Spawner starts child processes.
type Spawner interface {
	Spawn(args []string) (Process, error)
}

// ExecSpawner starts the child with os/exec. The child gets its own process
// group so that terminating it also stops the tools it launched.
type ExecSpawner struct {
	// Path is the executable. Empty means the running binary.
	Path string

	// Dir is the working directory of the child.
	Dir string

	// Env is appended to the parent's environment.
	Env []string

	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// Spawn starts the executable with args and inherited stdio.
func (s *ExecSpawner) Spawn(args []string) (Process, error) {
	path := s.Path
	if path == "" {
		self, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("locating executable: %w", err)
		}

		path = self
	}

	cmd := exec.Command(path, args...)
	cmd.Dir = s.Dir
	cmd.Env = append(os.Environ(), s.Env...)
	cmd.Stdin, cmd.Stdout, cmd.Stderr = os.Stdin, os.Stdout, os.Stderr

	if s.Stdin != nil {
		cmd.Stdin = s.Stdin
	}

	if s.Stdout != nil {
		cmd.Stdout = s.Stdout
	}

	if s.Stderr != nil {
		cmd.Stderr = s.Stderr
	}

	cmd.SysProcAttr = sysProcAttr()

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting %s: %w", path, err)
	}

	p := &execProcess{cmd: cmd, done: make(chan struct{})}
	go p.wait()

	return p, nil
}

type execProcess struct {
	cmd  *exec.Cmd
	done chan struct{}

	mu  sync.Mutex
	err error
}

func (p *execProcess) wait() {
	err := p.cmd.Wait()

	p.mu.Lock()
	p.err = err
	p.mu.Unlock()

	close(p.done)
}

func (p *execProcess) PID() int { return p.cmd.Process.Pid }

func (p *execProcess) Done() <-chan struct{} { return p.done }

func (p *execProcess) ExitErr() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.err
}

func (p *execProcess) Terminate(grace time.Duration) error {
	select {
	case <-p.done:
		return ErrNotRunning
	default:
	}

	if err := terminate(p.cmd.Process); err != nil {
		select {
		case <-p.done:
			return nil
		default:
		}

		return fmt.Errorf("terminating process %d: %w", p.PID(), err)
	}

	timer := time.NewTimer(grace)
	defer timer.Stop()

	select {
	case <-p.done:
		return nil
	case <-timer.C:
	}

	if err := kill(p.cmd.Process); err != nil {
		select {
		case <-p.done:
			return nil
		default:
		}

		return fmt.Errorf("killing process %d: %w", p.PID(), err)
	}

	<-p.done

	return nil
}
