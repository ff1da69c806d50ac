// Package testutil holds shared test doubles: a scripted git runner used by
// the git and merge tests.
package testutil

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// response is one scripted git result.
type response struct {
	out string
	err error
}

// StubRunner implements git.Runner with scripted responses keyed by the
// space-joined argument list. Per-key responses are consumed FIFO; defaults
// answer any number of times. An unscripted call is an error, so tests fail
// loudly on unexpected git traffic.
type StubRunner struct {
	mu       sync.Mutex
	queues   map[string][]response
	defaults map[string]response
	calls    []string
}

// NewStubRunner creates an empty runner. Every call errors until scripted.
func NewStubRunner() *StubRunner {
	return &StubRunner{
		queues:   make(map[string][]response),
		defaults: make(map[string]response),
	}
}

// Stub enqueues one response for the given argument string.
func (s *StubRunner) Stub(args string, out string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queues[args] = append(s.queues[args], response{out: out, err: err})
}

// StubDefault sets a response that answers whenever the queue for args is
// empty. Useful for probes a test does not care to count.
func (s *StubRunner) StubDefault(args string, out string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.defaults[args] = response{out: out, err: err}
}

// Exec implements git.Runner. The directory is ignored: scripted responses
// apply regardless of where the command runs.
func (s *StubRunner) Exec(_ context.Context, _ string, args ...string) (string, error) {
	key := strings.Join(args, " ")

	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, key)

	if queue := s.queues[key]; len(queue) > 0 {
		resp := queue[0]
		s.queues[key] = queue[1:]
		return resp.out, resp.err
	}
	if resp, ok := s.defaults[key]; ok {
		return resp.out, resp.err
	}
	return "", fmt.Errorf("unexpected git call: %s", key)
}

// CallsFor counts how many times the given command was executed.
func (s *StubRunner) CallsFor(args ...string) int {
	key := strings.Join(args, " ")

	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, call := range s.calls {
		if call == key {
			count++
		}
	}
	return count
}

// Calls returns a copy of every executed command in order.
func (s *StubRunner) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.calls))
	copy(out, s.calls)
	return out
}
