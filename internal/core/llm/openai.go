package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"github.com/lueurxax/deep-research/internal/platform/config"
	"github.com/lueurxax/deep-research/internal/platform/observability"
)

// ErrCircuitBreakerOpen indicates the circuit breaker is open.
var ErrCircuitBreakerOpen = errors.New("circuit breaker is open")

const (
	rateLimiterBurst = 5

	logKeyModel = "model"
	logKeyTask  = "task"
)

type openaiClient struct {
	cfg         *config.Config
	client      *openai.Client
	logger      *zerolog.Logger
	rateLimiter *rate.Limiter

	// Circuit breaker state
	consecutiveFailures int
	circuitOpenUntil    time.Time
	mu                  sync.Mutex
}

func newOpenAI(cfg *config.Config, logger *zerolog.Logger) Client {
	clientCfg := openai.DefaultConfig(cfg.LLMAPIKey)
	if cfg.LLMBaseURL != "" {
		clientCfg.BaseURL = cfg.LLMBaseURL
	}

	return &openaiClient{
		cfg:         cfg,
		client:      openai.NewClientWithConfig(clientCfg),
		logger:      logger,
		rateLimiter: rate.NewLimiter(rate.Limit(float64(cfg.RateLimitRPS)), rateLimiterBurst),
	}
}

func (c *openaiClient) checkCircuit() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if time.Now().Before(c.circuitOpenUntil) {
		return fmt.Errorf("%w until %v", ErrCircuitBreakerOpen, c.circuitOpenUntil)
	}

	return nil
}

func (c *openaiClient) recordSuccess() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.consecutiveFailures = 0
}

func (c *openaiClient) recordFailure() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.consecutiveFailures++
	if c.consecutiveFailures >= c.cfg.LLMCircuitThreshold {
		c.circuitOpenUntil = time.Now().Add(c.cfg.LLMCircuitTimeout)
		c.logger.Warn().
			Int("consecutive_failures", c.consecutiveFailures).
			Time("open_until", c.circuitOpenUntil).
			Msg("LLM circuit breaker opened")
	}
}

func (c *openaiClient) complete(ctx context.Context, system, prompt string, jsonMode bool) (string, error) {
	if err := c.checkCircuit(); err != nil {
		return "", err
	}

	if err := c.rateLimiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter wait: %w", err)
	}

	if c.cfg.LLMTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.LLMTimeout)

		defer cancel()
	}

	req := openai.ChatCompletionRequest{
		Model: c.cfg.LLMModel,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	}
	if jsonMode {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	start := time.Now()

	resp, err := c.client.CreateChatCompletion(ctx, req)

	observability.LLMRequestDuration.WithLabelValues(c.cfg.LLMModel).Observe(time.Since(start).Seconds())

	if err != nil {
		c.recordFailure()

		return "", fmt.Errorf("chat completion: %w", err)
	}

	c.recordSuccess()

	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}

	content := resp.Choices[0].Message.Content
	if content == "" {
		return "", ErrEmptyResponse
	}

	c.logger.Debug().Str(logKeyModel, c.cfg.LLMModel).Int("length", len(content)).Msg("LLM response")

	return content, nil
}

func (c *openaiClient) CompleteText(ctx context.Context, system, prompt string) (string, error) {
	content, err := c.complete(ctx, system, prompt, false)
	if err != nil {
		observability.LLMRequests.WithLabelValues("text", "error").Inc()

		return "", err
	}

	observability.LLMRequests.WithLabelValues("text", "ok").Inc()

	return content, nil
}

func (c *openaiClient) CompleteObject(ctx context.Context, system, prompt string, target any) error {
	content, err := c.complete(ctx, system, prompt, true)
	if err != nil {
		observability.LLMRequests.WithLabelValues("object", "error").Inc()

		return err
	}

	if err := json.Unmarshal([]byte(extractJSON(content)), target); err != nil {
		observability.LLMRequests.WithLabelValues("object", "error").Inc()

		return fmt.Errorf("unmarshal LLM response: %w", err)
	}

	observability.LLMRequests.WithLabelValues("object", "ok").Inc()

	return nil
}

// Ensure openaiClient implements Client interface.
var _ Client = (*openaiClient)(nil)
