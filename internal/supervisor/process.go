// Package supervisor runs the per-worker polling loop: it watches one child
// process, applies stop signals and TTL preemption, classifies the exit and
// writes the outcome back to the task store.
package supervisor

import (
	"errors"
	"os"
	"os/exec"
	"syscall"
)

// oomExitCode is 128 + SIGKILL, the code the kernel's OOM killer leaves
// behind when the child is killed from outside.
const oomExitCode = 137

// ExitResult classifies how a worker child ended.
type ExitResult struct {
	Code int
	OOM  bool
	Err  error
}

// Process wraps one running worker child. The exit status is collected by a
// background Wait so the supervisor loop can poll without blocking.
type Process struct {
	cmd  *exec.Cmd
	done chan ExitResult
}

// StartProcess spawns the worker child with the task identity in its
// environment. Child output is passed through to the supervisor's own
// streams so pod logs show the worker's logging.
func StartProcess(name string, args []string, extraEnv map[string]string) (*Process, error) {
	cmd := exec.Command(name, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Env = os.Environ()
	for k, v := range extraEnv {
		cmd.Env = append(cmd.Env, k+"="+v)
	}

	if err := cmd.Start(); err != nil {
		return nil, err
	}

	p := &Process{cmd: cmd, done: make(chan ExitResult, 1)}
	go func() {
		p.done <- classifyExit(cmd.Wait())
	}()
	return p, nil
}

// PID returns the child's process id for logging.
func (p *Process) PID() int { return p.cmd.Process.Pid }

// Poll is the non-blocking exit check. The second return is false while the
// child is still running.
func (p *Process) Poll() (ExitResult, bool) {
	select {
	case res := <-p.done:
		return res, true
	default:
		return ExitResult{}, false
	}
}

// Wait blocks until the child exits.
func (p *Process) Wait() ExitResult { return <-p.done }

// Terminate asks the child to exit with SIGTERM.
func (p *Process) Terminate() error { return p.cmd.Process.Signal(syscall.SIGTERM) }

// Kill forcibly ends the child.
func (p *Process) Kill() error { return p.cmd.Process.Kill() }

func classifyExit(err error) ExitResult {
	if err == nil {
		return ExitResult{Code: 0}
	}
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		if ws, ok := ee.Sys().(syscall.WaitStatus); ok && ws.Signaled() && ws.Signal() == syscall.SIGKILL {
			return ExitResult{Code: oomExitCode, OOM: true}
		}
		code := ee.ExitCode()
		return ExitResult{Code: code, OOM: code == oomExitCode}
	}
	// Wait itself failed; treat as a generic failure
	return ExitResult{Code: -1, Err: err}
}
