package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	openai "github.com/sashabaranov/go-openai"

	"github.com/survey-analytics/engine/pkg/circuitbreaker"
)

// CompletionError is the single failure signal of the gateway.
type CompletionError struct {
	Profile    ProfileName
	StatusCode int
	Message    string
	Err        error
}

func (e *CompletionError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("completion failed (profile %s, status %d): %s", e.Profile, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("completion failed (profile %s): %s", e.Profile, e.Message)
}

func (e *CompletionError) Unwrap() error {
	return e.Err
}

// ParseError reports model output that could not be decoded into the
// expected shape.
type ParseError struct {
	Content string
	Err     error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse model output: %v", e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// IsFailure reports whether err is a gateway or parse failure, the two
// conditions analyzers replace with their fallback values.
func IsFailure(err error) bool {
	var cerr *CompletionError
	var perr *ParseError
	return errors.As(err, &cerr) || errors.As(err, &perr)
}

// Retryable reports whether a caller may reasonably try the request again.
func Retryable(err error) bool {
	var cerr *CompletionError
	if !errors.As(err, &cerr) {
		return false
	}
	switch {
	case cerr.StatusCode == http.StatusTooManyRequests:
		return true
	case cerr.StatusCode >= 500:
		return true
	case cerr.StatusCode == 0:
		return cerr.Err != nil && !errors.Is(cerr.Err, circuitbreaker.ErrCircuitOpen) && !errors.Is(cerr.Err, context.Canceled)
	}
	return false
}

func newCompletionError(profile ProfileName, err error) *CompletionError {
	cerr := &CompletionError{Profile: profile, Message: err.Error(), Err: err}

	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		cerr.StatusCode = apiErr.HTTPStatusCode
		cerr.Message = apiErr.Message
	case errors.As(err, &reqErr):
		cerr.StatusCode = reqErr.HTTPStatusCode
	case errors.Is(err, context.DeadlineExceeded):
		cerr.Message = "request timed out"
	case errors.Is(err, circuitbreaker.ErrCircuitOpen), errors.Is(err, circuitbreaker.ErrTooManyRequests):
		cerr.Message = "provider temporarily unavailable (circuit open)"
	}

	switch {
	case cerr.StatusCode == http.StatusTooManyRequests:
		cerr.Message = "rate limit exceeded: " + cerr.Message
	case cerr.StatusCode == http.StatusUnauthorized:
		cerr.Message = "invalid API key"
	case cerr.StatusCode >= 500:
		cerr.Message = "service unavailable: " + cerr.Message
	}

	return cerr
}
