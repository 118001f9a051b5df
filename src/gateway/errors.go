package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
)

var (
	// ErrServiceUnavailable is returned when the circuit is open and no call
	// was attempted.
	ErrServiceUnavailable = errors.New("AI service temporarily unavailable (circuit open)")

	// ErrGenerationFailed is returned when every model in the fallback chain
	// was exhausted without a successful reply.
	ErrGenerationFailed = errors.New("AI generation failed after all retries and fallbacks")
)

// ErrorSource tells where a failed attempt broke.
type ErrorSource string

const (
	SourceUpstream ErrorSource = "upstream"
	SourceNetwork  ErrorSource = "network"
	SourceTimeout  ErrorSource = "timeout"
	SourceDecode   ErrorSource = "decode"
)

// CallError describes a single failed attempt against one model.
type CallError struct {
	Model      string
	StatusCode int
	Source     ErrorSource
	Body       string
	Cause      error
}

func (e *CallError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Body != "":
		return fmt.Sprintf("model %s: upstream error %d: %s", e.Model, e.StatusCode, e.Body)
	case e.StatusCode != 0:
		return fmt.Sprintf("model %s: upstream error %d", e.Model, e.StatusCode)
	case e.Cause != nil:
		return fmt.Sprintf("model %s: %s error: %v", e.Model, e.Source, e.Cause)
	default:
		return fmt.Sprintf("model %s: %s error", e.Model, e.Source)
	}
}

func (e *CallError) Unwrap() error { return e.Cause }

// Retryable reports whether the same model should be tried again. Rate
// limiting, server errors, transport failures and timeouts are transient;
// any other client error means the request or model is wrong.
func (e *CallError) Retryable() bool {
	if e.Source != SourceUpstream {
		return true
	}
	return e.StatusCode == 429 || (e.StatusCode >= 500 && e.StatusCode < 600)
}

func classifyTransportError(model string, err error) *CallError {
	if errors.Is(err, context.DeadlineExceeded) {
		return &CallError{Model: model, Source: SourceTimeout, Cause: err}
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return &CallError{Model: model, Source: SourceTimeout, Cause: err}
	}
	return &CallError{Model: model, Source: SourceNetwork, Cause: err}
}

func classifyStatus(model string, statusCode int, body string) *CallError {
	return &CallError{Model: model, StatusCode: statusCode, Source: SourceUpstream, Body: body}
}
