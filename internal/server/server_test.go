package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"

	"github.com/longmans/prompt-agent/internal/config"
	"github.com/longmans/prompt-agent/internal/db"
	"github.com/longmans/prompt-agent/internal/llm/adapter"
	"github.com/longmans/prompt-agent/internal/llm/budget"
	"github.com/longmans/prompt-agent/internal/llm/types"
	"github.com/longmans/prompt-agent/internal/optimizer"
)

// scripted replies for the five model-backed steps, in call order.
var stepReplies = []string{
	"1. Be explicit about the task.\n2. Show the expected output format.",
	"PROMPT:\nYou are a senior engineer. Write a Python function named {function_name}.\n\nADDITIONAL_EXAMPLES:\nnone",
	"- Clarity\n- Effectiveness",
	"1. Strengths: clear role.\n2. Weaknesses: no output format.\n3. Overall score: 7/10",
	"ALTERNATIVE 1: [Focus: clarity]\nShort prompt.\n\nALTERNATIVE 2: [Focus: detail]\nA much longer and more detailed prompt.\n\nALTERNATIVE 3: [Focus: edge cases]\nMedium prompt here.",
}

// fakeModel cycles through stepReplies. block makes every call wait for
// cancellation; failing makes every call fail.
type fakeModel struct {
	provider adapter.ProviderType

	mu      sync.Mutex
	calls   int
	block   bool
	failing bool
	started chan struct{}
}

func (m *fakeModel) Complete(ctx context.Context, prompt string, opts types.Options) (string, error) {
	m.mu.Lock()
	n := m.calls
	m.calls++
	m.mu.Unlock()

	if m.block {
		if m.started != nil && n == 0 {
			close(m.started)
		}
		<-ctx.Done()
		return "", ctx.Err()
	}
	if m.failing {
		return "", assert.AnError
	}
	return stepReplies[n%len(stepReplies)], nil
}

func (m *fakeModel) CountTokens(prompt string) int { return len(prompt) / 4 }

func (m *fakeModel) GetCapabilities(ctx context.Context) (map[string]interface{}, error) {
	return map[string]interface{}{"provider": string(m.provider)}, nil
}

func (m *fakeModel) Provider() adapter.ProviderType { return m.provider }
func (m *fakeModel) Model() string                  { return "fake-" + string(m.provider) }
func (m *fakeModel) IsConfigured() bool             { return true }

// staticManager serves a fixed Config; tests push reloads through updates.
type staticManager struct {
	mu      sync.Mutex
	cfg     *config.Config
	updates chan config.Config
}

func newStaticManager(cfg *config.Config) *staticManager {
	return &staticManager{cfg: cfg, updates: make(chan config.Config, 1)}
}

func (m *staticManager) Load(ctx context.Context) error { return nil }

func (m *staticManager) Get(ctx context.Context) *config.Config {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cfg
}

func (m *staticManager) Validate(ctx context.Context) error { return nil }

func (m *staticManager) Watch(ctx context.Context) <-chan config.Config { return m.updates }

func (m *staticManager) Reload(ctx context.Context) error { return nil }

func (m *staticManager) set(cfg *config.Config) {
	m.mu.Lock()
	m.cfg = cfg
	m.mu.Unlock()
	m.updates <- *cfg
}

type testEnv struct {
	server   *Server
	http     *httptest.Server
	manager  *staticManager
	registry *adapter.Registry
	store    db.Store
	budget   budget.Tracker
	model    *fakeModel
}

type testOption func(*config.Config)

func testConfig(opts ...testOption) *config.Config {
	cfg := config.DefaultConfig()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.RateLimitPerMinute = 0
	cfg.LLM.Gemini.APIKey = "test-key"
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

func newTestEnv(t *testing.T, model *fakeModel, opts ...testOption) *testEnv {
	t.Helper()
	if model == nil {
		model = &fakeModel{}
	}
	cfg := testConfig(opts...)
	mgr := newStaticManager(cfg)

	tracker := budget.NewTracker(&budget.Config{
		DailyLimitUSD: cfg.LLM.DailyBudgetUSD,
		WarnThreshold: cfg.LLM.BudgetWarnThreshold,
	})
	registry := adapter.NewRegistry(adapter.WithBudget(func(ctx context.Context, p adapter.ProviderType) (adapter.LLMAdapter, error) {
		model.provider = p
		return model, nil
	}, tracker))

	var store db.Store
	if cfg.Storage.Enabled {
		var err error
		store, err = db.NewSQLiteStore(":memory:")
		require.NoError(t, err)
		t.Cleanup(func() { _ = store.Close() })
	}

	svcOpts := []optimizer.ServiceOption{optimizer.WithUsageTracker(tracker)}
	if store != nil {
		svcOpts = append(svcOpts, optimizer.WithRunStore(store))
	}
	svc := optimizer.NewService(registry, config.LiveCatalog{Manager: mgr}, svcOpts...)

	srv, err := NewServer(Deps{
		Config:   mgr,
		Service:  svc,
		Registry: registry,
		Store:    store,
		Budget:   tracker,
	})
	require.NoError(t, err)
	t.Cleanup(srv.limiter.Stop)

	hs := httptest.NewServer(srv.Handler())
	t.Cleanup(hs.Close)

	return &testEnv{server: srv, http: hs, manager: mgr, registry: registry, store: store, budget: tracker, model: model}
}

func TestNewServer_Validation(t *testing.T) {
	_, err := NewServer(Deps{})
	assert.Error(t, err)

	_, err = NewServer(Deps{Config: newStaticManager(testConfig())})
	assert.Error(t, err)
}

func TestServerLifecycle(t *testing.T) {
	env := newTestEnv(t, nil)
	srv := env.server

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	grpcLis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	require.NoError(t, srv.Serve(lis, grpcLis))
	assert.True(t, srv.IsRunning())
	assert.Error(t, srv.Serve(lis, nil), "second start must fail")

	resp, err := http.Get("http://" + lis.Addr().String() + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	conn, err := grpc.NewClient(grpcLis.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	defer conn.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	health, err := grpc_health_v1.NewHealthClient(conn).Check(ctx, &grpc_health_v1.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, grpc_health_v1.HealthCheckResponse_SERVING, health.Status)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()
	require.NoError(t, srv.Stop(stopCtx))
	assert.False(t, srv.IsRunning())
	assert.Error(t, srv.Stop(stopCtx), "second stop must fail")

	done := make(chan struct{})
	go func() {
		srv.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Wait did not return after Stop")
	}
}

func TestWatchConfigResetsRegistry(t *testing.T) {
	env := newTestEnv(t, nil)

	_, err := env.registry.Get(context.Background(), adapter.ProviderGemini)
	require.NoError(t, err)
	require.Len(t, env.registry.Cached(), 1)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		env.server.WatchConfig(ctx)
		close(done)
	}()

	env.manager.set(testConfig(func(c *config.Config) { c.LLM.OpenAI.APIKey = "new-key" }))
	assert.Eventually(t, func() bool { return len(env.registry.Cached()) == 0 }, time.Second, 10*time.Millisecond)

	cancel()
	<-done
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, nil)

	resp, err := http.Get(env.http.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.HasPrefix(resp.Header.Get("Content-Type"), "text/plain"))
}

func TestMetricsDisabled(t *testing.T) {
	env := newTestEnv(t, nil, func(c *config.Config) { c.Metrics.Enabled = false })

	resp, err := http.Get(env.http.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t, nil)

	req, err := http.NewRequest(http.MethodOptions, env.http.URL+"/api/v1/optimize", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "http://localhost:3000", resp.Header.Get("Access-Control-Allow-Origin"))

	req.Header.Set("Origin", "https://evil.example.com")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestAPIKeyRequired(t *testing.T) {
	env := newTestEnv(t, nil, func(c *config.Config) { c.Server.APIKeys = []string{"s3cret"} })

	resp, err := http.Get(env.http.URL + "/api/v1/providers")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req, err := http.NewRequest(http.MethodGet, env.http.URL+"/api/v1/providers", nil)
	require.NoError(t, err)
	req.Header.Set("X-API-Key", "s3cret")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(env.http.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode, "probes stay open")
}

func TestRateLimitApplied(t *testing.T) {
	env := newTestEnv(t, nil, func(c *config.Config) {
		c.Server.RateLimitPerMinute = 1
		c.Server.RateLimitBurst = 1
	})

	first, err := http.Get(env.http.URL + "/api/v1/providers")
	require.NoError(t, err)
	first.Body.Close()
	assert.Equal(t, http.StatusOK, first.StatusCode)

	second, err := http.Get(env.http.URL + "/api/v1/providers")
	require.NoError(t, err)
	second.Body.Close()
	assert.Equal(t, http.StatusTooManyRequests, second.StatusCode)

	health, err := http.Get(env.http.URL + "/health")
	require.NoError(t, err)
	health.Body.Close()
	assert.Equal(t, http.StatusOK, health.StatusCode)
}

func (m *fakeModel) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func TestRunStopsOnCancel(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := lis.Addr().(*net.TCPAddr).Port
	require.NoError(t, lis.Close())

	env := newTestEnv(t, nil, func(c *config.Config) {
		c.Server.Port = port
		c.Server.GRPCPort = 0
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, Deps{Config: env.manager, Service: env.server.service, Registry: env.registry})
	}()

	url := fmt.Sprintf("http://127.0.0.1:%d/health", port)
	require.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
