package llm

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"github.com/fyrsmithlabs/agentd/internal/config"
)

// fakeModel answers with scripted responses in order.
type fakeModel struct {
	mu        sync.Mutex
	responses []string
	errs      []error
	calls     int
	prompts   []string
}

func (f *fakeModel) GenerateContent(_ context.Context, messages []llms.MessageContent, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	i := f.calls
	f.calls++
	for _, m := range messages {
		for _, p := range m.Parts {
			if tc, ok := p.(llms.TextContent); ok {
				f.prompts = append(f.prompts, tc.Text)
			}
		}
	}

	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	text := ""
	if i < len(f.responses) {
		text = f.responses[i]
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: text}}}, nil
}

func (f *fakeModel) Call(ctx context.Context, prompt string, opts ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, f, prompt, opts...)
}

func newTestClient(m llms.Model, retries int) *Client {
	return New(m, WithRateLimit(1000, 10), WithMaxRetries(retries), WithBackoff(time.Millisecond))
}

func TestClient_Complete(t *testing.T) {
	m := &fakeModel{responses: []string{"hello"}}
	c := newTestClient(m, 0)

	text, err := c.Complete(context.Background(), "say hello")
	require.NoError(t, err)
	assert.Equal(t, "hello", text)
	assert.Equal(t, []string{"say hello"}, m.prompts)
}

func TestClient_RetriesTransientErrors(t *testing.T) {
	m := &fakeModel{
		errs:      []error{errors.New("503"), errors.New("reset")},
		responses: []string{"", "", "ok"},
	}
	c := newTestClient(m, 3)

	text, err := c.Complete(context.Background(), "p")
	require.NoError(t, err)
	assert.Equal(t, "ok", text)
	assert.Equal(t, 3, m.calls)
}

func TestClient_GivesUpAfterMaxRetries(t *testing.T) {
	m := &fakeModel{errs: []error{errors.New("a"), errors.New("b"), errors.New("c")}}
	c := newTestClient(m, 2)

	_, err := c.Complete(context.Background(), "p")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max retries exceeded")
	assert.Equal(t, 3, m.calls)
}

func TestClient_EmptyCompletionIsRetried(t *testing.T) {
	m := &fakeModel{responses: []string{"   ", "done"}}
	c := newTestClient(m, 1)

	text, err := c.Complete(context.Background(), "p")
	require.NoError(t, err)
	assert.Equal(t, "done", text)
}

func TestClient_StopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestClient(&fakeModel{responses: []string{"x"}}, 3).Complete(ctx, "p")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestClient_RetriesWaitOnRateLimiter(t *testing.T) {
	m := &fakeModel{
		errs:      []error{errors.New("overloaded"), errors.New("overloaded")},
		responses: []string{"", "", "ok"},
	}
	c := New(m, WithRateLimit(20, 1), WithMaxRetries(2), WithBackoff(time.Millisecond))

	start := time.Now()
	text, err := c.Complete(context.Background(), "p")
	require.NoError(t, err)
	assert.Equal(t, "ok", text)
	assert.Equal(t, 3, m.calls)
	// Two refills at 20/s take ~100ms; backoff alone is 3ms.
	assert.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
}

// blockingModel answers only when its context ends.
type blockingModel struct {
	fakeModel
}

func (b *blockingModel) GenerateContent(ctx context.Context, _ []llms.MessageContent, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	b.mu.Lock()
	b.calls++
	b.mu.Unlock()
	<-ctx.Done()
	return nil, ctx.Err()
}

func (b *blockingModel) Call(ctx context.Context, prompt string, opts ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, b, prompt, opts...)
}

func TestClient_CallTimeout(t *testing.T) {
	m := &blockingModel{}
	c := New(m, WithRateLimit(1000, 10), WithMaxRetries(1), WithBackoff(time.Millisecond),
		WithCallTimeout(20*time.Millisecond))

	done := make(chan error, 1)
	go func() {
		_, err := c.Complete(context.Background(), "p")
		done <- err
	}()

	select {
	case err := <-done:
		require.Error(t, err)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Contains(t, err.Error(), "max retries exceeded")
		assert.Equal(t, 2, m.calls)
	case <-time.After(5 * time.Second):
		t.Fatal("call timeout was not applied")
	}
}

func TestCompleteJSON(t *testing.T) {
	m := &fakeModel{responses: []string{"Sure! Here you go:\n```json\n{\"steps\": [\"a\", \"b\"]}\n```\nAnything else?"}}

	var out struct {
		Steps []string `json:"steps"`
	}
	require.NoError(t, CompleteJSON(context.Background(), newTestClient(m, 0), "p", &out))
	assert.Equal(t, []string{"a", "b"}, out.Steps)

	m = &fakeModel{responses: []string{"not json at all"}}
	assert.Error(t, CompleteJSON(context.Background(), newTestClient(m, 0), "p", &out))
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{`{"a":1}`, `{"a":1}`},
		{"```\n[1,2]\n```", `[1,2]`},
		{`prefix [{"name":"x"}] suffix`, `[{"name":"x"}]`},
		{"plain", "plain"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ExtractJSON(tt.in))
	}
}

func TestNewFromConfig(t *testing.T) {
	c, err := NewFromConfig(config.LLMConfig{
		BaseURL: "http://127.0.0.1:1/v1",
		Model:   "test-model",
	}, nil)
	require.NoError(t, err)
	require.NotNil(t, c)

	_, err = NewFromConfig(config.LLMConfig{}, nil)
	assert.Error(t, err)
}
