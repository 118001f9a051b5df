// Package gateway provides a resilient client for the external conversational
// AI service. Every call is gated by a circuit breaker, bounded by a shared
// pool of concurrency slots, retried with exponential backoff and, when a
// model keeps failing, moved along a fallback chain of alternative models.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/samber/lo"
	"golang.org/x/sync/semaphore"

	"freeda-support/src/breaker"
	"freeda-support/src/clock"
	"freeda-support/src/contracts"
	"freeda-support/src/logger"
)

const (
	chatPath       = "/v1/chat/completions"
	embeddingsPath = "/v1/embeddings"

	// maxErrorBody caps how much of an error response is kept for logs.
	maxErrorBody = 512
)

// Config holds gateway connection and resilience settings.
type Config struct {
	APIKey              string
	BaseURL             string
	DefaultModel        string
	FallbackModels      []string
	EmbeddingModel      string
	EmbeddingDimensions int
	MaxConcurrency      int
	MaxRetries          int
	BackoffBase         time.Duration
	RequestTimeout      time.Duration
	MaxTokens           int
	Temperature         float64
	Breaker             breaker.Config
}

// DefaultConfig returns the production defaults. APIKey must still be set.
func DefaultConfig() Config {
	return Config{
		BaseURL:             "https://api.mistral.ai",
		DefaultModel:        "mistral-medium",
		FallbackModels:      []string{"mistral-small", "mistral-tiny"},
		EmbeddingModel:      "mistral-embed",
		EmbeddingDimensions: 1024,
		MaxConcurrency:      3,
		MaxRetries:          2,
		BackoffBase:         time.Second,
		RequestTimeout:      60 * time.Second,
		MaxTokens:           1000,
		Temperature:         0.7,
		Breaker: breaker.Config{
			FailureThreshold: 4,
			RecoveryWindow:   60 * time.Second,
		},
	}
}

// Request is one logical chat request. Zero values fall back to the client
// defaults (model, temperature, token ceiling).
type Request struct {
	Messages    []contracts.ChatMessage
	Model       string
	Temperature *float64
	MaxTokens   int
}

// Temperature is a helper for setting Request.Temperature inline.
func Temperature(v float64) *float64 { return &v }

// Client talks to the AI service. A single Client is shared by every caller
// in the process so that its breaker and slot pool see all traffic.
type Client struct {
	cfg     Config
	http    *http.Client
	breaker *breaker.CircuitBreaker
	slots   *semaphore.Weighted
	clock   clock.Clock
	logger  logger.Logger

	attempts atomic.Int64
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithClock sets the clock used for backoff sleeps and the breaker.
func WithClock(clk clock.Clock) Option {
	return func(c *Client) { c.clock = clk }
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithBreaker shares an existing breaker instead of creating one.
func WithBreaker(b *breaker.CircuitBreaker) Option {
	return func(c *Client) { c.breaker = b }
}

// New creates a Client. It fails when no API key is configured.
func New(cfg Config, opts ...Option) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gateway API key is required")
	}
	defaults := DefaultConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaults.BaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = defaults.DefaultModel
	}
	if cfg.EmbeddingModel == "" {
		cfg.EmbeddingModel = defaults.EmbeddingModel
	}
	if cfg.EmbeddingDimensions <= 0 {
		cfg.EmbeddingDimensions = defaults.EmbeddingDimensions
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = defaults.MaxConcurrency
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaults.RequestTimeout
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaults.MaxTokens
	}

	c := &Client{
		cfg:    cfg,
		http:   &http.Client{},
		slots:  semaphore.NewWeighted(int64(cfg.MaxConcurrency)),
		clock:  clock.Real(),
		logger: logger.NewSilentLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.breaker == nil {
		c.breaker = breaker.New(cfg.Breaker, c.clock)
	}
	return c, nil
}

// Chat returns the assistant reply for req.
//
// The circuit is checked once up front. A slot is then held for the whole
// fallback walk. Each model is tried up to MaxRetries+1 times; transient
// failures back off base*2^attempt between tries and, once exhausted, count
// as one breaker failure. A non-transient client error skips to the next
// model without touching the breaker.
//
// The walk runs on its own goroutine, which owns the slot and the breaker
// bookkeeping. Every attempt runs under its own timeout and is detached from
// ctx, so a caller that goes away never aborts a call mid-flight, but Chat
// itself returns ctx.Err() as soon as ctx is done. The walk stops before the
// next attempt and its late reply is discarded.
func (c *Client) Chat(ctx context.Context, req Request) (string, error) {
	if !c.breaker.CanExecute() {
		return "", ErrServiceUnavailable
	}

	if err := c.slots.Acquire(ctx, 1); err != nil {
		return "", fmt.Errorf("failed to acquire gateway slot: %w", err)
	}

	done := make(chan chatResult, 1)
	go func() {
		reply, err := c.walk(ctx, req)
		c.slots.Release(1)
		done <- chatResult{reply: reply, err: err}
	}()

	select {
	case res := <-done:
		if res.err == nil && ctx.Err() != nil {
			c.logger.Debug("[Gateway] Discarding reply: caller cancelled")
			return "", ctx.Err()
		}
		return res.reply, res.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

type chatResult struct {
	reply string
	err   error
}

// walk runs the retry and fallback loop. ctx is only consulted between
// attempts; in-flight attempts are detached from it.
func (c *Client) walk(ctx context.Context, req Request) (string, error) {
	var lastErr error

	for _, model := range c.modelChain(req.Model) {
		for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
			if err := ctx.Err(); err != nil {
				return "", err
			}

			reply, err := c.chatOnce(ctx, model, req)
			if err == nil {
				c.breaker.RecordSuccess()
				return reply, nil
			}
			lastErr = err

			callErr, _ := err.(*CallError)
			if callErr != nil && !callErr.Retryable() {
				c.logger.Warn("[Gateway] %v, trying next model", err)
				break
			}

			if attempt < c.cfg.MaxRetries {
				delay := c.backoff(attempt)
				c.logger.Debug("[Gateway] Attempt %d on %s failed (%v), retrying in %s", attempt+1, model, err, delay)
				if sleepErr := c.clock.Sleep(ctx, delay); sleepErr != nil {
					return "", sleepErr
				}
				continue
			}

			c.logger.Warn("[Gateway] %s exhausted after %d attempts: %v", model, attempt+1, err)
			c.breaker.RecordFailure()
		}
	}

	if lastErr != nil {
		return "", fmt.Errorf("%w: %v", ErrGenerationFailed, lastErr)
	}
	return "", ErrGenerationFailed
}

// GetEmbedding returns the embedding vector for text. It never fails: an
// open circuit or any error yields a zero vector of the configured size.
func (c *Client) GetEmbedding(ctx context.Context, text string) []float64 {
	if !c.breaker.CanExecute() {
		return c.zeroVector()
	}

	if err := c.slots.Acquire(ctx, 1); err != nil {
		return c.zeroVector()
	}
	defer c.slots.Release(1)

	vec, err := c.embedOnce(ctx, text)
	if err != nil {
		c.logger.Warn("[Gateway] Embedding failed: %v", err)
		c.breaker.RecordFailure()
		return c.zeroVector()
	}
	c.breaker.RecordSuccess()
	return vec
}

// CircuitState exposes the breaker for health reporting.
func (c *Client) CircuitState() breaker.Snapshot {
	return c.breaker.Snapshot()
}

// Attempts returns the number of outbound HTTP calls issued so far.
func (c *Client) Attempts() int64 {
	return c.attempts.Load()
}

func (c *Client) modelChain(requested string) []string {
	primary := requested
	if primary == "" {
		primary = c.cfg.DefaultModel
	}
	return lo.Uniq(lo.Compact(append([]string{primary}, c.cfg.FallbackModels...)))
}

func (c *Client) backoff(attempt int) time.Duration {
	return c.cfg.BackoffBase * time.Duration(1<<attempt)
}

func (c *Client) zeroVector() []float64 {
	return make([]float64, c.cfg.EmbeddingDimensions)
}

type chatPayload struct {
	Model       string                  `json:"model"`
	Messages    []contracts.ChatMessage `json:"messages"`
	Temperature float64                 `json:"temperature"`
	MaxTokens   int                     `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type embeddingPayload struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
}

func (c *Client) chatOnce(ctx context.Context, model string, req Request) (string, error) {
	temperature := c.cfg.Temperature
	if req.Temperature != nil {
		temperature = *req.Temperature
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.cfg.MaxTokens
	}

	payload := chatPayload{
		Model:       model,
		Messages:    req.Messages,
		Temperature: temperature,
		MaxTokens:   maxTokens,
	}

	var out chatResponse
	if err := c.post(ctx, model, chatPath, payload, &out); err != nil {
		return "", err
	}
	if len(out.Choices) == 0 {
		return "", &CallError{Model: model, Source: SourceDecode, Cause: fmt.Errorf("response has no choices")}
	}
	return out.Choices[0].Message.Content, nil
}

func (c *Client) embedOnce(ctx context.Context, text string) ([]float64, error) {
	model := c.cfg.EmbeddingModel
	var out embeddingResponse
	if err := c.post(ctx, model, embeddingsPath, embeddingPayload{Model: model, Input: []string{text}}, &out); err != nil {
		return nil, err
	}
	if len(out.Data) == 0 || len(out.Data[0].Embedding) == 0 {
		return nil, &CallError{Model: model, Source: SourceDecode, Cause: fmt.Errorf("response has no embedding")}
	}
	return out.Data[0].Embedding, nil
}

// post issues one JSON request under a fresh per-attempt timeout that is
// detached from the caller's cancellation.
func (c *Client) post(ctx context.Context, model, path string, payload, out interface{}) error {
	c.attempts.Add(1)

	attemptCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.RequestTimeout)
	defer cancel()

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return classifyTransportError(model, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return classifyStatus(model, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if attemptCtx.Err() != nil {
			return classifyTransportError(model, attemptCtx.Err())
		}
		return &CallError{Model: model, Source: SourceDecode, Cause: err}
	}
	return nil
}
