// Package testutil provides Completer test doubles for model-assisted code.
package testutil

import (
	"context"
	"errors"
	"sync"
)

// Call records one Complete invocation.
type Call struct {
	System string
	User   string
}

// Fixed is a thread-safe Completer that returns configured responses in
// sequence and records every prompt it receives.
//
// Usage:
//
//	mock := &Fixed{Responses: []string{`{"workstreams": []}`}}
//
// When Responses is exhausted the last response is repeated. With no
// responses configured it returns "".
type Fixed struct {
	Responses []string

	// Respond, if set, computes the response from the prompt and takes
	// precedence over Responses. Useful for per-chunk answers.
	Respond func(system, user string) string

	mu    sync.Mutex
	calls []Call
	idx   int
}

// Complete implements llm.Completer.
func (f *Fixed) Complete(ctx context.Context, system, user string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, Call{System: system, User: user})
	if f.Respond != nil {
		return f.Respond(system, user), nil
	}
	if len(f.Responses) == 0 {
		return "", nil
	}
	resp := f.Responses[f.idx]
	if f.idx < len(f.Responses)-1 {
		f.idx++
	}
	return resp, nil
}

// Calls returns a copy of the recorded calls.
func (f *Fixed) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// CallCount returns the number of times Complete was called.
func (f *Fixed) CallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// ErrUnavailable is returned by a Failing with no Err set.
var ErrUnavailable = errors.New("completion backend unavailable")

// Failing is a Completer that always fails.
type Failing struct {
	Err error

	mu    sync.Mutex
	count int
}

// Complete implements llm.Completer.
func (f *Failing) Complete(context.Context, string, string) (string, error) {
	f.mu.Lock()
	f.count++
	f.mu.Unlock()
	if f.Err != nil {
		return "", f.Err
	}
	return "", ErrUnavailable
}

// CallCount returns the number of times Complete was called.
func (f *Failing) CallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.count
}
