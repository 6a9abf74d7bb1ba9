// Package llmtest provides substitutable completers for tests.
package llmtest

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/survey-analytics/engine/internal/llm"
)

// MockCompleter implements llm.Completer with testify expectations.
type MockCompleter struct {
	mock.Mock
}

func (m *MockCompleter) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*llm.CompletionResponse), args.Error(1)
}

// Response builds a successful response with fixed usage.
func Response(content string) *llm.CompletionResponse {
	return &llm.CompletionResponse{
		Content:      content,
		Usage:        llm.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
		Model:        "stub-model",
		FinishReason: "stop",
	}
}

// ErrUnavailable is what Failing returns, wrapped in a CompletionError.
var ErrUnavailable = errors.New("stub: provider unavailable")

// Rule maps a prompt marker to a canned reply.
type Rule struct {
	// Match is looked up in the system and user prompt. Empty matches all.
	Match   string
	Content string
	Fail    bool
}

// Scripted answers each request with the first rule whose marker appears in
// the prompt and records every request. Safe for concurrent use.
type Scripted struct {
	Rules []Rule

	mu       sync.Mutex
	requests []llm.CompletionRequest
}

func (s *Scripted) Complete(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	s.mu.Lock()
	s.requests = append(s.requests, req)
	s.mu.Unlock()

	prompt := req.SystemPrompt + "\n" + req.UserPrompt
	for _, rule := range s.Rules {
		if rule.Match != "" && !strings.Contains(prompt, rule.Match) {
			continue
		}
		if rule.Fail {
			return nil, &llm.CompletionError{Profile: req.Profile, Message: "stub failure", Err: ErrUnavailable}
		}
		return Response(rule.Content), nil
	}
	return nil, &llm.CompletionError{Profile: req.Profile, Message: "no stub rule matched", Err: ErrUnavailable}
}

func (s *Scripted) Requests() []llm.CompletionRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]llm.CompletionRequest, len(s.requests))
	copy(out, s.requests)
	return out
}

// Failing returns a completer that fails every call.
func Failing() *Scripted {
	return &Scripted{Rules: []Rule{{Fail: true}}}
}
