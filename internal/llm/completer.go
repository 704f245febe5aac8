// Package llm provides the text-completion capability used by model-assisted
// clustering: a one-method Completer interface, an HTTP-backed client for
// Anthropic and OpenAI-compatible endpoints, and helpers for pulling JSON out
// of free-form model output.
package llm

import "context"

// Completer turns a system prompt and a user prompt into model text.
//
// Implementations must honor ctx cancellation and deadlines. The returned
// text is untrusted and must be validated by the caller.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// CompleterFunc adapts a function to the Completer interface.
type CompleterFunc func(ctx context.Context, system, user string) (string, error)

// Complete implements Completer.
func (f CompleterFunc) Complete(ctx context.Context, system, user string) (string, error) {
	return f(ctx, system, user)
}
