package llm

import (
	"context"
	"errors"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/survey-analytics/engine/internal/metrics"
	"github.com/survey-analytics/engine/pkg/circuitbreaker"
	"github.com/survey-analytics/engine/pkg/logger"
)

// Completer is the completion capability every analyzer depends on.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}

type CompletionRequest struct {
	Profile      ProfileName
	SystemPrompt string
	UserPrompt   string
	JSONMode     bool
}

type CompletionResponse struct {
	Content      string
	Usage        Usage
	Model        string
	FinishReason string
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

func (u Usage) Add(o Usage) Usage {
	return Usage{
		PromptTokens:     u.PromptTokens + o.PromptTokens,
		CompletionTokens: u.CompletionTokens + o.CompletionTokens,
		TotalTokens:      u.TotalTokens + o.TotalTokens,
	}
}

type Config struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
	// Models overrides the model id of a profile, keyed by profile name.
	Models           map[string]string
	FailureThreshold int
	OpenTimeout      time.Duration
}

// Client talks to an OpenAI-compatible chat completion API. It never retries;
// callers own the retry policy.
type Client struct {
	client   *openai.Client
	profiles map[ProfileName]Profile
	timeout  time.Duration
	cb       *circuitbreaker.CircuitBreaker
}

func NewClient(cfg Config) *Client {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	var cb *circuitbreaker.CircuitBreaker
	if cfg.FailureThreshold > 0 {
		cb = circuitbreaker.NewCircuitBreaker("llm", circuitbreaker.Config{
			FailureThreshold: uint32(cfg.FailureThreshold),
			OpenTimeout:      cfg.OpenTimeout,
			IsFailure: func(err error) bool {
				return !errors.Is(err, context.Canceled)
			},
			OnStateChange: func(name string, _, to circuitbreaker.State) {
				metrics.BreakerState.WithLabelValues(name).Set(float64(to))
			},
			Logger: logger.GetLogger(),
		})
	}

	profiles := DefaultProfiles()
	for name, model := range cfg.Models {
		p, ok := profiles[ProfileName(name)]
		if !ok || model == "" {
			continue
		}
		p.Model = model
		profiles[ProfileName(name)] = p
	}

	logger.Info("LLM client initialized",
		zap.String("analysis_model", profiles[ProfileAnalysis].Model),
		zap.String("insights_model", profiles[ProfileInsights].Model),
		zap.String("summarization_model", profiles[ProfileSummarization].Model),
		zap.Duration("timeout", timeout),
	)

	return &Client{
		client:   openai.NewClientWithConfig(clientConfig),
		profiles: profiles,
		timeout:  timeout,
		cb:       cb,
	}
}

// Profile returns the resolved configuration for name.
func (c *Client) Profile(name ProfileName) (Profile, bool) {
	p, ok := c.profiles[name]
	return p, ok
}

func (c *Client) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	profile, ok := c.profiles[req.Profile]
	if !ok {
		return nil, &CompletionError{Profile: req.Profile, Message: "unknown model profile"}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if req.SystemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.SystemPrompt,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.UserPrompt,
	})

	chatReq := openai.ChatCompletionRequest{
		Model:       profile.Model,
		Messages:    messages,
		Temperature: profile.Temperature,
		MaxTokens:   profile.MaxTokens,
	}
	if req.JSONMode {
		chatReq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	var resp openai.ChatCompletionResponse
	call := func() error {
		var err error
		resp, err = c.client.CreateChatCompletion(ctx, chatReq)
		return err
	}

	var err error
	if c.cb != nil {
		err = c.cb.Execute(call)
	} else {
		err = call()
	}
	if err != nil {
		metrics.LLMRequests.WithLabelValues(string(req.Profile), "error").Inc()
		cerr := newCompletionError(req.Profile, err)
		logger.Warn("LLM completion failed",
			zap.String("profile", string(req.Profile)),
			zap.Int("status_code", cerr.StatusCode),
			zap.String("message", cerr.Message),
		)
		return nil, cerr
	}

	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		metrics.LLMRequests.WithLabelValues(string(req.Profile), "empty").Inc()
		return nil, &CompletionError{Profile: req.Profile, Message: "empty response from model"}
	}

	model := resp.Model
	if model == "" {
		model = profile.Model
	}

	metrics.LLMRequests.WithLabelValues(string(req.Profile), "success").Inc()
	metrics.LLMTokensUsed.WithLabelValues(model, "prompt").Add(float64(resp.Usage.PromptTokens))
	metrics.LLMTokensUsed.WithLabelValues(model, "completion").Add(float64(resp.Usage.CompletionTokens))

	logger.Debug("LLM completion generated",
		zap.String("profile", string(req.Profile)),
		zap.String("model", model),
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens),
	)

	return &CompletionResponse{
		Content: resp.Choices[0].Message.Content,
		Usage: Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
		Model:        model,
		FinishReason: string(resp.Choices[0].FinishReason),
	}, nil
}
