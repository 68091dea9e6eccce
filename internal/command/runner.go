// Package command runs the external tools the pipeline depends on.
package command

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/spherical/barcode-extractor/internal/observability"
)

const (
	// DefaultTimeout bounds a single tool invocation.
	DefaultTimeout = 2 * time.Minute

	// DefaultMaxOutput caps the captured standard output (10 MiB).
	DefaultMaxOutput = 10 * 1024 * 1024

	maxStderr = 64 * 1024
	waitDelay = 5 * time.Second
)

// ErrOutputLimit is reported when a tool writes more than the allowed output.
var ErrOutputLimit = errors.New("output exceeds the configured limit")

// Runner executes a command and returns its standard output
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// CommandError describes a failed tool invocation
type CommandError struct {
	Command  string
	ExitCode int // -1 when the process did not exit normally
	Stderr   string
	TimedOut bool
	Err      error
}

func (e *CommandError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "command failed: %s: %v", e.Command, e.Err)
	if e.Stderr != "" {
		fmt.Fprintf(&b, ": stderr: %s", e.Stderr)
	}
	return b.String()
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// ExitCodeOf returns the exit code carried by err, or -1.
func ExitCodeOf(err error) int {
	var ce *CommandError
	if errors.As(err, &ce) {
		return ce.ExitCode
	}
	return -1
}

// Options configures an ExecRunner
type Options struct {
	Timeout   time.Duration
	MaxOutput int
	Logger    *observability.Logger
}

// ExecRunner runs commands with os/exec, one at a time per call
type ExecRunner struct {
	timeout   time.Duration
	maxOutput int
	logger    *observability.Logger
}

// NewExecRunner creates a runner. Zero values fall back to the defaults.
func NewExecRunner(opts Options) *ExecRunner {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.MaxOutput <= 0 {
		opts.MaxOutput = DefaultMaxOutput
	}
	if opts.Logger == nil {
		opts.Logger = observability.Nop()
	}
	return &ExecRunner{
		timeout:   opts.Timeout,
		maxOutput: opts.MaxOutput,
		logger:    opts.Logger.WithOperation("command"),
	}
}

// Run executes name with args, never through a shell. Cancellation of ctx
// aborts the run and returns ctx.Err(); hitting the runner's own timeout
// returns a CommandError with TimedOut set.
func (r *ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	runCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	cmdline := FormatCommandLine(name, args...)
	r.logger.WithContext(ctx).Debug().Str("command", cmdline).Msg("Running command")

	stdout := &cappedBuffer{limit: r.maxOutput}
	stderr := &cappedBuffer{limit: maxStderr}

	cmd := exec.CommandContext(runCtx, name, args...)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.WaitDelay = waitDelay
	killProcessGroup(cmd)

	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start)

	if err == nil && stdout.overflow {
		err = ErrOutputLimit
	}
	if err == nil {
		r.logger.WithContext(ctx).Debug().
			Str("command", cmdline).
			Dur("elapsed", elapsed).
			Int("stdout_bytes", stdout.buf.Len()).
			Msg("Command finished")
		return stdout.buf.Bytes(), nil
	}

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	ce := &CommandError{
		Command:  cmdline,
		ExitCode: -1,
		Stderr:   strings.TrimSpace(stderr.buf.String()),
		Err:      err,
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		ce.ExitCode = exitErr.ExitCode()
	}
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		ce.TimedOut = true
		ce.Err = fmt.Errorf("timed out after %s", r.timeout)
	}

	r.logger.WithContext(ctx).Debug().
		Str("command", cmdline).
		Int("exit_code", ce.ExitCode).
		Bool("timed_out", ce.TimedOut).
		Dur("elapsed", elapsed).
		Msg("Command failed")

	return stdout.buf.Bytes(), ce
}

// Available reports whether name can be found in PATH (or is an existing path).
func Available(name string) error {
	if _, err := exec.LookPath(name); err != nil {
		return fmt.Errorf("%s not found: %w", name, err)
	}
	return nil
}

// FormatCommandLine renders a command for logs and error messages, quoting
// every argument that is not a plain flag.
func FormatCommandLine(name string, args ...string) string {
	parts := make([]string, 0, len(args)+1)
	parts = append(parts, name)
	for _, a := range args {
		if strings.HasPrefix(a, "-") && !strings.ContainsAny(a, " \t\"") {
			parts = append(parts, a)
			continue
		}
		if isNumber(a) {
			parts = append(parts, a)
			continue
		}
		parts = append(parts, fmt.Sprintf("%q", a))
	}
	return strings.Join(parts, " ")
}

func isNumber(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// cappedBuffer keeps the first limit bytes and drops the rest.
type cappedBuffer struct {
	buf      bytes.Buffer
	limit    int
	overflow bool
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	room := b.limit - b.buf.Len()
	if room <= 0 {
		if len(p) > 0 {
			b.overflow = true
		}
		return len(p), nil
	}
	if len(p) > room {
		b.buf.Write(p[:room])
		b.overflow = true
		return len(p), nil
	}
	return b.buf.Write(p)
}
