package llm

import (
	"context"
	"sync"

	"github.com/survey-analytics/engine/pkg/retry"
)

// Recorder wraps a Completer and accumulates token usage across calls. It is
// safe for concurrent use.
type Recorder struct {
	next Completer

	mu     sync.Mutex
	usage  Usage
	calls  int
	failed int
}

func NewRecorder(next Completer) *Recorder {
	return &Recorder{next: next}
}

func (r *Recorder) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	resp, err := r.next.Complete(ctx, req)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if err != nil {
		r.failed++
		return nil, err
	}
	r.usage = r.usage.Add(resp.Usage)
	return resp, nil
}

func (r *Recorder) Usage() Usage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.usage
}

// Calls returns the number of calls made and how many of them failed.
func (r *Recorder) Calls() (total, failed int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls, r.failed
}

type retryingCompleter struct {
	next Completer
	cfg  retry.Config
}

// WithRetry retries calls that fail with a Retryable error, such as rate
// limits and provider 5xx responses.
func WithRetry(next Completer, cfg retry.Config) Completer {
	cfg.Retryable = Retryable
	if cfg.Operation == "" {
		cfg.Operation = "llm_complete"
	}
	return &retryingCompleter{next: next, cfg: cfg}
}

func (r *retryingCompleter) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	return retry.DoWithResult(ctx, r.cfg, func(ctx context.Context) (*CompletionResponse, error) {
		return r.next.Complete(ctx, req)
	})
}
