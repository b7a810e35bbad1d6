// Package llm provides a rate-limited, retrying completion client used by
// the LLM-backed pipeline strategies.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/agentd/internal/config"
	"github.com/fyrsmithlabs/agentd/internal/logging"
)

const (
	defaultRateLimit   = 1.0
	defaultBurst       = 1
	defaultMaxRetries  = 3
	defaultBaseBackoff = time.Second
)

// ErrEmptyCompletion is returned when the model answers with blank text.
var ErrEmptyCompletion = errors.New("empty completion")

// Completer produces a text completion for a prompt.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Client wraps a langchaingo model with rate limiting and retries.
type Client struct {
	model       llms.Model
	limiter     *rate.Limiter
	maxRetries  int
	baseBackoff time.Duration
	callTimeout time.Duration
	temperature float64
	logger      *logging.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithRateLimit sets requests per second and burst.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(c *Client) {
		if perSecond > 0 && burst > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
		}
	}
}

// WithMaxRetries sets how many times a failed call is retried.
func WithMaxRetries(n int) Option {
	return func(c *Client) {
		if n >= 0 {
			c.maxRetries = n
		}
	}
}

// WithBackoff sets the first retry delay; later delays double.
func WithBackoff(d time.Duration) Option {
	return func(c *Client) {
		c.baseBackoff = d
	}
}

// WithCallTimeout bounds each model call. Zero leaves calls bounded only by
// the caller's context.
func WithCallTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d >= 0 {
			c.callTimeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// New wraps model.
func New(model llms.Model, opts ...Option) *Client {
	c := &Client{
		model:       model,
		limiter:     rate.NewLimiter(rate.Limit(defaultRateLimit), defaultBurst),
		maxRetries:  defaultMaxRetries,
		baseBackoff: defaultBaseBackoff,
		logger:      logging.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.Named("llm")
	return c
}

// NewFromConfig builds a client for an OpenAI-compatible endpoint.
func NewFromConfig(cfg config.LLMConfig, logger *logging.Logger) (*Client, error) {
	if cfg.Model == "" {
		return nil, errors.New("llm model is required")
	}

	token := cfg.APIKey.Value()
	if token == "" {
		// Local OpenAI-compatible servers accept any token, but the client requires one.
		token = "unused"
	}

	opts := []openai.Option{
		openai.WithModel(cfg.Model),
		openai.WithToken(token),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}

	model, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create llm client: %w", err)
	}

	c := New(model,
		WithRateLimit(cfg.RateLimit, cfg.Burst),
		WithMaxRetries(cfg.MaxRetries),
		WithCallTimeout(cfg.Timeout.Duration()),
		WithLogger(logger),
	)
	c.logger.Info(context.Background(), "llm client configured",
		zap.String("model", cfg.Model),
		zap.String("base_url", cfg.BaseURL),
		zap.Duration("timeout", cfg.Timeout.Duration()),
		logging.Secret("api_key", cfg.APIKey),
	)
	return c, nil
}

// Complete sends prompt and returns the first choice's text. Every attempt,
// retries included, waits on the rate limiter.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := c.baseBackoff * time.Duration(1<<(attempt-1))
			c.logger.Debug(ctx, "retrying completion",
				zap.Int("attempt", attempt),
				zap.Duration("backoff", backoff),
				zap.Error(lastErr))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("rate limiter error: %w", err)
		}
		text, err := c.call(ctx, prompt)
		if err == nil {
			return text, nil
		}

		lastErr = err
		if !isRetryableError(err) {
			return "", err
		}
	}

	return "", fmt.Errorf("max retries exceeded: %w", lastErr)
}

func (c *Client) call(ctx context.Context, prompt string) (string, error) {
	callCtx := ctx
	if c.callTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, c.callTimeout)
		defer cancel()
	}

	// A call that hit only its own deadline is retried.
	text, err := llms.GenerateFromSinglePrompt(callCtx, c.model, prompt, llms.WithTemperature(c.temperature))
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", &retryableError{err: fmt.Errorf("completion failed: %w", err)}
	}
	if strings.TrimSpace(text) == "" {
		return "", &retryableError{err: ErrEmptyCompletion}
	}
	return text, nil
}

// CompleteJSON asks for a completion and decodes the JSON document it contains into v.
func CompleteJSON(ctx context.Context, c Completer, prompt string, v any) error {
	text, err := c.Complete(ctx, prompt)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(ExtractJSON(text)), v); err != nil {
		return fmt.Errorf("failed to parse model output: %w", err)
	}
	return nil
}

// ExtractJSON strips markdown fences and surrounding prose from a model
// response, returning the outermost JSON object or array.
func ExtractJSON(text string) string {
	text = strings.TrimSpace(text)
	if i := strings.Index(text, "```"); i >= 0 {
		rest := text[i+3:]
		if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
			rest = rest[nl+1:]
		}
		if end := strings.Index(rest, "```"); end >= 0 {
			rest = rest[:end]
		}
		text = strings.TrimSpace(rest)
	}

	start := strings.IndexAny(text, "{[")
	if start < 0 {
		return text
	}
	closer := byte('}')
	if text[start] == '[' {
		closer = ']'
	}
	end := strings.LastIndexByte(text, closer)
	if end < start {
		return text[start:]
	}
	return text[start : end+1]
}

type retryableError struct {
	err error
}

func (e *retryableError) Error() string { return e.err.Error() }
func (e *retryableError) Unwrap() error { return e.err }

func isRetryableError(err error) bool {
	var re *retryableError
	return errors.As(err, &re)
}

var _ Completer = (*Client)(nil)
