package app

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/arnobt78/multimodel-chat/config"
	"github.com/arnobt78/multimodel-chat/services/inference"
	"github.com/arnobt78/multimodel-chat/services/providers"
)

// eventCollector is a fake events ingestion endpoint
type eventCollector struct {
	mu     sync.Mutex
	events []map[string]interface{}
}

func (c *eventCollector) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	var event map[string]interface{}
	_ = json.Unmarshal(body, &event)
	c.mu.Lock()
	c.events = append(c.events, event)
	c.mu.Unlock()
	w.WriteHeader(http.StatusCreated)
}

func (c *eventCollector) snapshot() []map[string]interface{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]map[string]interface{}(nil), c.events...)
}

func geminiServer(t *testing.T, reply string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"` + reply + `"}]}}]}`))
	}))
	t.Cleanup(server.Close)
	return server
}

func testConfig(t *testing.T, geminiURL string) *config.Config {
	t.Helper()
	list := config.DefaultBackends()
	for i := range list {
		if list[i].ID == providers.Gemini {
			list[i].Endpoint = geminiURL
			list[i].Credential = "test-key"
		}
	}
	return &config.Config{
		Environment: "development",
		Server:      config.ServerConfig{Host: "127.0.0.1", Port: 0},
		Backends: config.BackendsConfig{
			Priority: providers.AllBackends,
			List:     list,
		},
		Routing: config.RoutingConfig{CooldownWindow: time.Minute, CallTimeout: 5 * time.Second},
		Telemetry: config.TelemetryConfig{
			Enabled:     true,
			BufferSize:  16,
			WorkerCount: 1,
			SinkTimeout: time.Second,
			NATSSubject: "chat.events",
		},
		Observability: config.ObservabilityConfig{LogLevel: "debug", LogFormat: "console", MetricsEnabled: true},
	}
}

func TestNewDependencies(t *testing.T) {
	t.Run("end to end chat with telemetry", func(t *testing.T) {
		ctx := context.Background()
		collector := &eventCollector{}
		events := httptest.NewServer(collector)
		defer events.Close()

		cfg := testConfig(t, geminiServer(t, "Hello from Gemini").URL)
		cfg.Telemetry.EventsURL = events.URL

		deps, err := NewDependencies(ctx, cfg, zaptest.NewLogger(t))
		require.NoError(t, err)
		require.NotNil(t, deps)

		assert.Nil(t, deps.DB)
		assert.Nil(t, deps.NATS)
		assert.NotNil(t, deps.Emitter)
		assert.NotNil(t, deps.MetricsProvider)
		assert.Len(t, deps.Adapters, len(providers.AllBackends))
		assert.False(t, deps.AuthMiddleware.Enabled())

		resp := deps.Chat.GetChatResponse(ctx, inference.ChatRequest{Message: "hi", SessionID: "sess-1"})
		assert.True(t, resp.Success)
		assert.Equal(t, "Hello from Gemini", resp.Content)
		assert.Equal(t, "Google Gemini", resp.Provider)

		require.NoError(t, deps.Close(ctx))

		got := collector.snapshot()
		require.Len(t, got, 1)
		assert.Equal(t, "api_call", got[0]["eventType"])
		assert.Equal(t, "Google Gemini", got[0]["provider"])
		assert.Equal(t, "sess-1", got[0]["sessionId"])
	})

	t.Run("auth enabled with secret", func(t *testing.T) {
		cfg := testConfig(t, geminiServer(t, "x").URL)
		cfg.Auth.JWTSecret = "0123456789abcdef0123456789abcdef"
		cfg.Telemetry.Enabled = false

		deps, err := NewDependencies(context.Background(), cfg, zaptest.NewLogger(t))
		require.NoError(t, err)
		assert.True(t, deps.AuthMiddleware.Enabled())
		assert.Nil(t, deps.Emitter)
		require.NoError(t, deps.Close(context.Background()))
	})

	t.Run("database connection failure", func(t *testing.T) {
		cfg := testConfig(t, "http://127.0.0.1:1")
		cfg.Database = &config.DatabaseConfig{
			Host: "127.0.0.1", Port: 1, User: "chat", Database: "chat", SSLMode: "disable",
			MaxOpenConns: 1, MaxIdleConns: 1, ConnMaxLifetime: time.Minute,
		}

		deps, err := NewDependencies(context.Background(), cfg, zaptest.NewLogger(t))
		assert.Error(t, err)
		assert.Nil(t, deps)
		assert.Contains(t, err.Error(), "failed to initialize database")
	})

	t.Run("NATS connection failure", func(t *testing.T) {
		cfg := testConfig(t, "http://127.0.0.1:1")
		cfg.Telemetry.NATSURL = "nats://127.0.0.1:1"

		deps, err := NewDependencies(context.Background(), cfg, zaptest.NewLogger(t))
		assert.Error(t, err)
		assert.Nil(t, deps)
		assert.Contains(t, err.Error(), "failed to initialize telemetry")
	})

	t.Run("invalid backend priority", func(t *testing.T) {
		cfg := testConfig(t, "http://127.0.0.1:1")
		cfg.Backends.Priority = []providers.BackendID{providers.Groq, providers.Groq}

		_, err := NewDependencies(context.Background(), cfg, zaptest.NewLogger(t))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to initialize backends")
	})
}

func TestDependenciesClose(t *testing.T) {
	deps, err := NewDependencies(context.Background(), testConfig(t, "http://127.0.0.1:1"), zaptest.NewLogger(t))
	require.NoError(t, err)

	assert.NoError(t, deps.Close(context.Background()))
	// a second close must not panic
	assert.NotPanics(t, func() { _ = deps.Close(context.Background()) })
}
