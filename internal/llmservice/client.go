package llmservice

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
	"golang.org/x/time/rate"

	"docchat/internal/config"
	"docchat/internal/models"
)

const maxBackoff = 30 * time.Second

// Completer turns a prompt into generated text.
type Completer interface {
	Complete(ctx context.Context, prompt string, temperature float64) (string, error)
}

// Client calls a chat model with a per-call timeout, optional rate limit and
// exponential backoff between attempts.
type Client struct {
	model          llms.Model
	timeout        time.Duration
	maxRetries     int
	initialBackoff time.Duration
	limiter        *rate.Limiter
}

// New builds the provider model named in cfg and wraps it.
func New(cfg *config.LLMConfig) (*Client, error) {
	model, err := NewModel(cfg)
	if err != nil {
		return nil, err
	}
	return NewClient(model, cfg), nil
}

// NewClient wraps an existing model using the retry and rate settings of cfg.
func NewClient(model llms.Model, cfg *config.LLMConfig) *Client {
	c := &Client{
		model:          model,
		timeout:        cfg.Timeout,
		maxRetries:     max(cfg.MaxRetries, 0),
		initialBackoff: cfg.InitialBackoff,
	}
	if cfg.RequestsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	return c
}

// NewModel creates the langchaingo model for cfg.Provider
func NewModel(cfg *config.LLMConfig) (llms.Model, error) {
	log.Debug().Str("provider", cfg.Provider).Str("base_url", cfg.BaseURL).Str("model", cfg.Model).Msg("Creating chat model")

	token := strings.TrimPrefix(cfg.Key, "Bearer ")
	var (
		model llms.Model
		err   error
	)
	switch cfg.Provider {
	case config.ProviderOpenAI:
		opts := []openai.Option{openai.WithToken(token)}
		if cfg.Model != "" {
			opts = append(opts, openai.WithModel(cfg.Model))
		}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		model, err = openai.New(opts...)
	case config.ProviderOllama:
		opts := []ollama.Option{ollama.WithModel(cfg.Model)}
		if cfg.BaseURL != "" {
			opts = append(opts, ollama.WithServerURL(cfg.BaseURL))
		}
		model, err = ollama.New(opts...)
	case config.ProviderAnthropic:
		opts := []anthropic.Option{anthropic.WithToken(token)}
		if cfg.Model != "" {
			opts = append(opts, anthropic.WithModel(cfg.Model))
		}
		if cfg.BaseURL != "" {
			opts = append(opts, anthropic.WithBaseURL(cfg.BaseURL))
		}
		model, err = anthropic.New(opts...)
	default:
		return nil, fmt.Errorf("%w: unsupported chat provider %q", models.ErrConfig, cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: initialize %s client: %w", models.ErrConfig, cfg.Provider, err)
	}
	return model, nil
}

// Complete sends prompt as a single user message and returns the model's
// text verbatim. Failures after the last retry wrap models.ErrGeneration.
func (c *Client) Complete(ctx context.Context, prompt string, temperature float64) (string, error) {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := c.backoff(attempt)
			log.Warn().Err(lastErr).Int("attempt", attempt).Dur("backoff", backoff).Msg("Retrying completion")
			select {
			case <-ctx.Done():
				return "", fmt.Errorf("%w: %w", models.ErrGeneration, ctx.Err())
			case <-time.After(backoff):
			}
		}

		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return "", fmt.Errorf("%w: rate limit: %w", models.ErrGeneration, err)
			}
		}

		out, err := c.call(ctx, prompt, temperature)
		if err == nil {
			return out, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	return "", fmt.Errorf("%w: %w", models.ErrGeneration, lastErr)
}

func (c *Client) call(ctx context.Context, prompt string, temperature float64) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	return llms.GenerateFromSinglePrompt(ctx, c.model, prompt, llms.WithTemperature(temperature))
}

func (c *Client) backoff(attempt int) time.Duration {
	if c.initialBackoff <= 0 {
		return 0
	}
	d := c.initialBackoff * time.Duration(1<<uint(min(attempt-1, 30)))
	if d > maxBackoff || d <= 0 {
		d = maxBackoff
	}
	return d
}
