// Package backend implements the Backend Adapter: a closed set of
// provider-kind variants, each normalizing a model call to the same
// {text, tokens, model, finishReason} shape, issued through Genkit plugins
// the way this codebase's Brain wires them.
package backend

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// CallTimeout is the hard wall-clock ceiling on any adapter call (spec §4.6).
const CallTimeout = 5 * time.Minute

// Response is the normalized result of a backend call.
type Response struct {
	Text         string
	Tokens       int
	Model        string
	FinishReason string
}

// ErrorKind is the closed set of typed faults an Adapter call can return
// (spec §7), mirrored on this codebase's ClassifyError idiom.
type ErrorKind string

const (
	ErrRateLimited ErrorKind = "RATE_LIMITED"
	ErrTransport   ErrorKind = "TRANSPORT"
	ErrOutOfScope  ErrorKind = "OUT_OF_SCOPE"
)

// CallError is the typed error every Adapter implementation returns instead
// of a bare error value.
type CallError struct {
	Kind       ErrorKind
	RetryAfter time.Duration // only meaningful for ErrRateLimited
	Err        error
}

func (e *CallError) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *CallError) Unwrap() error { return e.Err }

// ClassifyTransportError inspects a raw error message and returns the
// CallError it should be wrapped as, distinguishing a rate-limit signal
// (HTTP 429 or ecosystem equivalent) from any other transport fault.
func ClassifyTransportError(err error) *CallError {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "429") || strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "rate_limit") || strings.Contains(msg, "too many requests") {
		return &CallError{Kind: ErrRateLimited, RetryAfter: 60 * time.Second, Err: err}
	}
	return &CallError{Kind: ErrTransport, Err: err}
}

// ErrBridgeOutOfScope is returned immediately, before any I/O, by the inert
// bridge variant (spec §4.6 addition): cursor-bridge/copilot-bridge agents
// execute from the host IDE, not the core.
var ErrBridgeOutOfScope = &CallError{Kind: ErrOutOfScope, Err: errors.New("provider executes outside the core process")}

// Adapter is the common contract every provider-kind variant implements.
type Adapter interface {
	// Execute issues one call with the given system and user prompts and
	// returns the normalized response, or a *CallError.
	Execute(ctx context.Context, systemPrompt, userPrompt string) (Response, error)
}

// withCallTimeout bounds ctx to CallTimeout, matching the 5-minute safety
// wall clock every variant must respect regardless of transport.
func withCallTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, CallTimeout)
}
