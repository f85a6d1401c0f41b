package executor

import (
	"context"
	"strings"
	"sync"
)

// Recorder is an Executor for tests. It records every command and answers
// with Handler, or with a zero-exit empty Result when Handler is nil.
type Recorder struct {
	mu      sync.Mutex
	calls   []Command
	Handler func(cmd Command) (Result, error)
}

// Run records cmd and delegates to Handler.
func (r *Recorder) Run(_ context.Context, cmd Command) (Result, error) {
	r.mu.Lock()
	r.calls = append(r.calls, cmd)
	h := r.Handler
	r.mu.Unlock()

	if h == nil {
		return Result{}, nil
	}
	return h(cmd)
}

// Calls returns a copy of the recorded commands.
func (r *Recorder) Calls() []Command {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Command(nil), r.calls...)
}

// CommandLines returns each recorded command rendered as a string.
func (r *Recorder) CommandLines() []string {
	calls := r.Calls()
	lines := make([]string, len(calls))
	for i, c := range calls {
		lines[i] = c.String()
	}
	return lines
}

// Ran reports whether any recorded command line starts with prefix.
func (r *Recorder) Ran(prefix string) bool {
	for _, line := range r.CommandLines() {
		if strings.HasPrefix(line, prefix) {
			return true
		}
	}
	return false
}

var _ Executor = (*Recorder)(nil)
