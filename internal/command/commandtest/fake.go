// Package commandtest provides a scriptable command.Runner for tests.
package commandtest

import (
	"context"
	"strconv"
	"sync"

	"github.com/spherical/barcode-extractor/internal/command"
)

// Call records one invocation.
type Call struct {
	Name string
	Args []string
}

// Runner answers every Run with Handler and records the calls.
type Runner struct {
	Handler func(ctx context.Context, name string, args []string) ([]byte, error)

	mu    sync.Mutex
	calls []Call
}

var _ command.Runner = (*Runner)(nil)

// Run implements command.Runner.
func (r *Runner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	r.mu.Lock()
	r.calls = append(r.calls, Call{Name: name, Args: append([]string(nil), args...)})
	r.mu.Unlock()

	if r.Handler == nil {
		return nil, nil
	}
	return r.Handler(ctx, name, args)
}

// Calls returns a copy of the recorded invocations.
func (r *Runner) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Call(nil), r.calls...)
}

// Output returns a Handler that always prints out.
func Output(out string) func(context.Context, string, []string) ([]byte, error) {
	return func(context.Context, string, []string) ([]byte, error) {
		return []byte(out), nil
	}
}

// Fail returns a Handler that always fails with the given exit code and stderr.
func Fail(exitCode int, stdout, stderr string) func(context.Context, string, []string) ([]byte, error) {
	return func(_ context.Context, name string, args []string) ([]byte, error) {
		return []byte(stdout), &command.CommandError{
			Command:  command.FormatCommandLine(name, args...),
			ExitCode: exitCode,
			Stderr:   stderr,
			Err:      errExit(exitCode),
		}
	}
}

type errExit int

func (e errExit) Error() string {
	return "exit status " + strconv.Itoa(int(e))
}
