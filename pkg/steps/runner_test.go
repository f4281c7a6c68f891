package steps

import (
	"context"
	"strings"
	"sync"
)

// fakeRunner scripts subprocess results by command line. Unscripted commands
// succeed with empty output. Every invocation is recorded.
type fakeRunner struct {
	mu      sync.Mutex
	results map[string]Result
	errs    map[string]error
	calls   []string
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{
		results: make(map[string]Result),
		errs:    make(map[string]error),
	}
}

func cmdline(cmd Command) string {
	return strings.TrimSpace(cmd.Name + " " + strings.Join(cmd.Args, " "))
}

func (f *fakeRunner) respond(line string, res Result) {
	f.results[line] = res
}

func (f *fakeRunner) failWith(line string, err error) {
	f.errs[line] = err
}

func (f *fakeRunner) Run(ctx context.Context, cmd Command) (Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	line := cmdline(cmd)
	f.calls = append(f.calls, line)

	if err, ok := f.errs[line]; ok {
		return Result{}, err
	}
	if res, ok := f.results[line]; ok {
		return res, nil
	}
	return Result{ExitCode: 0}, nil
}

func (f *fakeRunner) called(line string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.calls {
		if c == line {
			return true
		}
	}
	return false
}

func (f *fakeRunner) callCount(line string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == line {
			n++
		}
	}
	return n
}
