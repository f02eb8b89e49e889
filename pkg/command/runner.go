// Package command spawns and supervises external tools. Children run with
// stdin attached to the null device and stdout discarded; stderr is captured
// into a bounded buffer so a noisy tool cannot grow memory without limit.
package command

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
)

const (
	// StderrExcerptLen bounds the stderr text carried by an ExitError.
	StderrExcerptLen = 1200

	stderrBufferLen = 64 * 1024

	// MaxOutputLen bounds the stdout Output will collect.
	MaxOutputLen = 8 * 1024 * 1024
)

// ErrOutputTooLarge is returned by Output when stdout exceeds MaxOutputLen.
var ErrOutputTooLarge = errors.New("command output too large")

// Process is a running child process.
type Process struct {
	cmd    *exec.Cmd
	name   string
	args   []string
	pid    int
	done   chan struct{}
	err    error
	stderr *tailBuffer
}

// PID returns the process ID, or 0 if not started.
func (p *Process) PID() int {
	return p.pid
}

// Wait blocks until the process exits and returns nil on a zero exit code.
func (p *Process) Wait() error {
	<-p.done
	return p.err
}

// Kill sends SIGKILL to the process.
func (p *Process) Kill() error {
	if p.cmd == nil || p.cmd.Process == nil {
		return nil
	}
	return p.cmd.Process.Kill()
}

// Done returns a channel that closes when the process exits.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// Stderr returns the retained tail of stderr (complete after Wait).
func (p *Process) Stderr() string {
	return p.stderr.String()
}

// Start spawns name with args. Spawn failures (binary missing, permission
// denied) are returned directly as *StartError; the caller must Wait or Kill
// the returned process otherwise.
func Start(ctx context.Context, name string, args ...string) (*Process, error) {
	return start(ctx, nil, name, args)
}

func start(ctx context.Context, stdout io.Writer, name string, args []string) (*Process, error) {
	cmd := exec.CommandContext(ctx, name, args...)

	p := &Process{
		cmd:    cmd,
		name:   name,
		args:   args,
		done:   make(chan struct{}),
		stderr: newTailBuffer(stderrBufferLen),
	}

	// nil Stdin/Stdout are connected to os.DevNull by os/exec.
	cmd.Stdin = nil
	cmd.Stdout = stdout
	cmd.Stderr = p.stderr

	if err := cmd.Start(); err != nil {
		return nil, &StartError{Name: name, Err: err}
	}
	p.pid = cmd.Process.Pid

	go func() {
		defer close(p.done)
		if err := cmd.Wait(); err != nil {
			p.err = newExitError(name, args, err, p.stderr.String())
		}
	}()

	return p, nil
}

// Run executes name with args and waits for it to exit.
func Run(ctx context.Context, name string, args ...string) error {
	proc, err := Start(ctx, name, args...)
	if err != nil {
		return err
	}
	return proc.Wait()
}

// Output runs name with args like Run and returns what it wrote to stdout.
func Output(ctx context.Context, name string, args ...string) ([]byte, error) {
	out := &capBuffer{max: MaxOutputLen}
	proc, err := start(ctx, out, name, args)
	if err != nil {
		return nil, err
	}
	if err := proc.Wait(); err != nil {
		return nil, err
	}
	if out.overflow {
		return nil, fmt.Errorf("%s: %w", name, ErrOutputTooLarge)
	}
	return out.buf, nil
}

// StartError reports that a child process could not be spawned.
type StartError struct {
	Name string
	Err  error
}

func (e *StartError) Error() string {
	return fmt.Sprintf("%s: failed to start: %v", e.Name, e.Err)
}

func (e *StartError) Unwrap() error {
	return e.Err
}

// ExitError reports a child that ran but did not exit cleanly.
type ExitError struct {
	Name string
	Args []string
	// ExitCode is -1 when the process was killed by a signal.
	ExitCode int
	// Stderr is the last StderrExcerptLen characters of the child's stderr.
	Stderr string
	Err    error
}

func newExitError(name string, args []string, err error, stderr string) *ExitError {
	code := -1
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		code = ee.ExitCode()
	}
	return &ExitError{
		Name:     name,
		Args:     args,
		ExitCode: code,
		Stderr:   Excerpt(stderr, StderrExcerptLen),
		Err:      err,
	}
}

func (e *ExitError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("%s exited with code %d: %s", e.Name, e.ExitCode, e.Stderr)
	}
	return fmt.Sprintf("%s exited with code %d", e.Name, e.ExitCode)
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// Command returns the command line that was executed.
func (e *ExitError) Command() string {
	return e.Name + " " + strings.Join(e.Args, " ")
}

// Excerpt returns the trimmed tail of s, at most n runes long.
func Excerpt(s string, n int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return strings.TrimSpace(string(r[len(r)-n:]))
}
