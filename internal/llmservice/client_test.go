package llmservice

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"docchat/internal/config"
	"docchat/internal/models"
)

type fakeModel struct {
	replies      []string
	errs         []error
	prompts      []string
	temperatures []float64
	block        bool
}

func (m *fakeModel) GenerateContent(ctx context.Context, msgs []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	opts := llms.CallOptions{}
	for _, o := range options {
		o(&opts)
	}
	n := len(m.prompts)
	m.temperatures = append(m.temperatures, opts.Temperature)
	for _, p := range msgs[0].Parts {
		if tc, ok := p.(llms.TextContent); ok {
			m.prompts = append(m.prompts, tc.Text)
		}
	}
	if m.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if n < len(m.errs) && m.errs[n] != nil {
		return nil, m.errs[n]
	}
	reply := ""
	if n < len(m.replies) {
		reply = m.replies[n]
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: reply}}}, nil
}

func (m *fakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

func TestComplete_ReturnsReplyVerbatim(t *testing.T) {
	m := &fakeModel{replies: []string{"  <think>hm</think> Paris \n"}}
	c := NewClient(m, &config.LLMConfig{})

	out, err := c.Complete(context.Background(), "Capital of France?", 0.3)
	require.NoError(t, err)

	assert.Equal(t, "  <think>hm</think> Paris \n", out)
	assert.Equal(t, []string{"Capital of France?"}, m.prompts)
	assert.InDelta(t, 0.3, m.temperatures[0], 1e-9)
}

func TestComplete_RetriesThenSucceeds(t *testing.T) {
	m := &fakeModel{
		errs:    []error{errors.New("503"), errors.New("503")},
		replies: []string{"", "", "ok"},
	}
	c := NewClient(m, &config.LLMConfig{MaxRetries: 2, InitialBackoff: time.Millisecond})

	out, err := c.Complete(context.Background(), "q", 0)
	require.NoError(t, err)

	assert.Equal(t, "ok", out)
	assert.Len(t, m.prompts, 3)
}

func TestComplete_GivesUpWithGenerationError(t *testing.T) {
	boom := errors.New("upstream down")
	m := &fakeModel{errs: []error{boom, boom}}
	c := NewClient(m, &config.LLMConfig{MaxRetries: 1, InitialBackoff: time.Millisecond})

	_, err := c.Complete(context.Background(), "q", 0)

	assert.ErrorIs(t, err, models.ErrGeneration)
	assert.ErrorIs(t, err, boom)
	assert.Len(t, m.prompts, 2)
}

func TestComplete_Timeout(t *testing.T) {
	m := &fakeModel{block: true}
	c := NewClient(m, &config.LLMConfig{Timeout: 10 * time.Millisecond})

	_, err := c.Complete(context.Background(), "q", 0)

	assert.ErrorIs(t, err, models.ErrGeneration)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestComplete_CancelledDuringBackoff(t *testing.T) {
	m := &fakeModel{errs: []error{errors.New("fail")}}
	c := NewClient(m, &config.LLMConfig{MaxRetries: 3, InitialBackoff: time.Hour})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := c.Complete(ctx, "q", 0)

	assert.ErrorIs(t, err, models.ErrGeneration)
	assert.Len(t, m.prompts, 1)
}

func TestComplete_RateLimited(t *testing.T) {
	m := &fakeModel{replies: []string{"a", "b"}}
	c := NewClient(m, &config.LLMConfig{RequestsPerSecond: 1000})

	for range 2 {
		_, err := c.Complete(context.Background(), "q", 0)
		require.NoError(t, err)
	}
	assert.Len(t, m.prompts, 2)
}

func TestBackoff_Doubles(t *testing.T) {
	c := NewClient(&fakeModel{}, &config.LLMConfig{InitialBackoff: time.Second})

	assert.Equal(t, time.Second, c.backoff(1))
	assert.Equal(t, 2*time.Second, c.backoff(2))
	assert.Equal(t, 4*time.Second, c.backoff(3))
	assert.Equal(t, maxBackoff, c.backoff(10))
}

func TestNewModel_Providers(t *testing.T) {
	for _, p := range []config.LLMConfig{
		{Provider: config.ProviderOpenAI, Key: "sk-test", Model: "gpt-4o-mini", BaseURL: "http://localhost:1/v1"},
		{Provider: config.ProviderOllama, Model: "llama3", BaseURL: "http://localhost:11434"},
		{Provider: config.ProviderAnthropic, Key: "sk-ant-test", Model: "claude-3-5-haiku-latest"},
	} {
		t.Run(p.Provider, func(t *testing.T) {
			m, err := NewModel(&p)
			require.NoError(t, err)
			assert.NotNil(t, m)
		})
	}

	_, err := NewModel(&config.LLMConfig{Provider: "gemini"})
	assert.ErrorIs(t, err, models.ErrConfig)
}
