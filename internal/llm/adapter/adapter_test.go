package adapter

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/longmans/prompt-agent/internal/llm/types"
)

type fakeClient struct {
	mu      sync.Mutex
	calls   int
	opts    []types.Options
	replies []string
	errs    []error
	block   bool
}

func (f *fakeClient) Complete(ctx context.Context, prompt string, opts types.Options) (string, error) {
	f.mu.Lock()
	i := f.calls
	f.calls++
	f.opts = append(f.opts, opts)
	f.mu.Unlock()

	if f.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if i < len(f.errs) && f.errs[i] != nil {
		return "", f.errs[i]
	}
	if i < len(f.replies) {
		return f.replies[i], nil
	}
	return "ok", nil
}

func (f *fakeClient) CountTokens(prompt string) int { return len(prompt) / 4 }

func (f *fakeClient) GetCapabilities(ctx context.Context) (map[string]interface{}, error) {
	return map[string]interface{}{"provider": "fake"}, nil
}

func (f *fakeClient) Model() string { return "fake-model" }

func newTestAdapter(cfg *Config, client providerClient) *llmAdapterImpl {
	a := newAdapter(cfg, client)
	a.retryInterval = time.Millisecond
	return a
}

func TestParseProviderType(t *testing.T) {
	tests := []struct {
		in      string
		want    ProviderType
		wantErr bool
	}{
		{in: "gemini", want: ProviderGemini},
		{in: " OpenAI ", want: ProviderOpenAI},
		{in: "anthropic", want: ProviderAnthropic},
		{in: "ollama", want: ProviderOllama},
		{in: "custom", want: ProviderCustom},
		{in: "none", wantErr: true},
		{in: "cohere", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseProviderType(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnsupportedProvider)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestHasCredentials(t *testing.T) {
	assert.True(t, Config{Provider: ProviderOllama}.HasCredentials())
	assert.True(t, Config{Provider: ProviderGemini, APIKey: "k"}.HasCredentials())
	assert.False(t, Config{Provider: ProviderOpenAI}.HasCredentials())
	assert.False(t, Config{Provider: ProviderCustom, BaseURL: "http://x"}.HasCredentials())
	assert.True(t, Config{Provider: ProviderCustom, BaseURL: "http://x", Model: "m"}.HasCredentials())
}

func TestNewLLMAdapterUnconfigured(t *testing.T) {
	a, err := NewLLMAdapter(context.Background(), &Config{Provider: ProviderOpenAI})
	require.NoError(t, err)
	assert.False(t, a.IsConfigured())
	assert.Equal(t, ProviderOpenAI, a.Provider())

	_, err = a.Complete(context.Background(), "hi", types.Options{})
	assert.ErrorIs(t, err, ErrProviderNotConfigured)

	caps, err := a.GetCapabilities(context.Background())
	require.NoError(t, err)
	assert.Equal(t, false, caps["configured"])

	none, err := NewLLMAdapter(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, ProviderNone, none.Provider())
}

func TestNewLLMAdapterProviders(t *testing.T) {
	tests := []struct {
		name  string
		cfg   Config
		model string
	}{
		{name: "gemini", cfg: Config{Provider: ProviderGemini, APIKey: "k"}, model: "gemini-2.0-flash-exp"},
		{name: "openai", cfg: Config{Provider: ProviderOpenAI, APIKey: "k"}, model: "gpt-4o-mini"},
		{name: "anthropic", cfg: Config{Provider: ProviderAnthropic, APIKey: "k", Model: "claude-3-5-haiku-20241022"}, model: "claude-3-5-haiku-20241022"},
		{name: "ollama", cfg: Config{Provider: ProviderOllama}, model: "llama3"},
		{name: "custom", cfg: Config{Provider: ProviderCustom, BaseURL: "http://localhost:8000/v1", Model: "qwen"}, model: "qwen"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := NewLLMAdapter(context.Background(), &tt.cfg)
			require.NoError(t, err)
			assert.True(t, a.IsConfigured())
			assert.Equal(t, tt.model, a.Model())
		})
	}
}

func TestNewLLMAdapterErrors(t *testing.T) {
	_, err := NewLLMAdapter(context.Background(), &Config{Provider: "cohere", APIKey: "k"})
	assert.ErrorIs(t, err, ErrUnsupportedProvider)

	_, err = NewLLMAdapter(context.Background(), &Config{Provider: ProviderOpenAI, APIKey: "k", ProxyURL: "::not a url"})
	assert.Error(t, err)
}

func TestCompleteAppliesDefaults(t *testing.T) {
	client := &fakeClient{replies: []string{"answer"}}
	a := newTestAdapter(&Config{Provider: ProviderOpenAI, MaxTokens: 256}, client)

	got, err := a.Complete(context.Background(), "prompt", types.Options{})
	require.NoError(t, err)
	assert.Equal(t, "answer", got)
	require.Len(t, client.opts, 1)
	assert.Equal(t, DefaultTemperature, client.opts[0].Temperature)
	assert.Equal(t, 256, client.opts[0].MaxTokens)

	_, err = a.Complete(context.Background(), "prompt", types.Options{Temperature: 0.2})
	require.NoError(t, err)
	assert.Equal(t, 0.2, client.opts[1].Temperature)
}

func TestCompleteRetries(t *testing.T) {
	transient := errors.New("503 service unavailable")

	t.Run("succeeds within budget", func(t *testing.T) {
		client := &fakeClient{errs: []error{transient, transient}, replies: []string{"", "", "third time"}}
		a := newTestAdapter(&Config{Provider: ProviderGemini, MaxRetries: 3}, client)

		got, err := a.Complete(context.Background(), "prompt", types.Options{})
		require.NoError(t, err)
		assert.Equal(t, "third time", got)
		assert.Equal(t, 3, client.calls)
	})

	t.Run("gives up after budget", func(t *testing.T) {
		client := &fakeClient{errs: []error{transient, transient, transient}}
		a := newTestAdapter(&Config{Provider: ProviderGemini, MaxRetries: 2}, client)

		_, err := a.Complete(context.Background(), "prompt", types.Options{})
		assert.ErrorIs(t, err, transient)
		assert.Equal(t, 3, client.calls)
	})

	t.Run("no retries configured", func(t *testing.T) {
		client := &fakeClient{errs: []error{transient}}
		a := newTestAdapter(&Config{Provider: ProviderGemini, MaxRetries: 0}, client)

		_, err := a.Complete(context.Background(), "prompt", types.Options{})
		assert.Error(t, err)
		assert.Equal(t, 1, client.calls)
	})
}

func TestCompleteHonoursCancellation(t *testing.T) {
	client := &fakeClient{block: true}
	a := newTestAdapter(&Config{Provider: ProviderOpenAI, MaxRetries: 3}, client)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := a.Complete(ctx, "prompt", types.Options{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, client.calls)
}

func TestCompletePerCallTimeout(t *testing.T) {
	client := &fakeClient{block: true}
	a := newTestAdapter(&Config{Provider: ProviderOpenAI, Timeout: 5 * time.Millisecond, MaxRetries: 1}, client)

	_, err := a.Complete(context.Background(), "prompt", types.Options{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 2, client.calls)
}

func TestGetCapabilitiesConfigured(t *testing.T) {
	a := newTestAdapter(&Config{Provider: ProviderOpenAI, MaxRetries: 3}, &fakeClient{})
	caps, err := a.GetCapabilities(context.Background())
	require.NoError(t, err)
	assert.Equal(t, true, caps["configured"])
	assert.Equal(t, 3, caps["max_retries"])
	assert.Equal(t, 2, a.CountTokens("12345678"))
}
