// Package backends constructs the adapter for each configured backend.
package backends

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/arnobt78/multimodel-chat/services/providers"
	"github.com/arnobt78/multimodel-chat/services/providers/chatcompat"
	"github.com/arnobt78/multimodel-chat/services/providers/gemini"
	"github.com/arnobt78/multimodel-chat/services/providers/huggingface"
	"github.com/arnobt78/multimodel-chat/services/providers/openai"
)

// ErrNoBuilder is returned for a backend without a registered builder
var ErrNoBuilder = errors.New("no adapter builder for backend")

// Builder creates the adapter for one backend
type Builder func(cfg providers.BackendConfig, httpClient *http.Client, logger *zap.Logger) (providers.Adapter, error)

// builders maps every BackendID to its adapter family
var builders = map[providers.BackendID]Builder{
	providers.Groq:        buildChatCompat,
	providers.OpenRouter:  buildChatCompat,
	providers.Gemini:      buildGemini,
	providers.HuggingFace: buildHuggingFace,
	providers.OpenAI:      buildOpenAI,
}

func buildChatCompat(cfg providers.BackendConfig, httpClient *http.Client, _ *zap.Logger) (providers.Adapter, error) {
	return chatcompat.NewAdapter(cfg, httpClient)
}

func buildGemini(cfg providers.BackendConfig, httpClient *http.Client, _ *zap.Logger) (providers.Adapter, error) {
	return gemini.NewAdapter(cfg, httpClient), nil
}

func buildHuggingFace(cfg providers.BackendConfig, httpClient *http.Client, logger *zap.Logger) (providers.Adapter, error) {
	return huggingface.NewAdapter(cfg, httpClient, logger.With(zap.String("backend", string(cfg.ID)))), nil
}

func buildOpenAI(cfg providers.BackendConfig, httpClient *http.Client, _ *zap.Logger) (providers.Adapter, error) {
	return openai.NewAdapter(cfg, httpClient), nil
}

// Build creates the adapter for a single backend
func Build(cfg providers.BackendConfig, logger *zap.Logger) (providers.Adapter, error) {
	build, ok := builders[cfg.ID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoBuilder, cfg.ID)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	// the orchestrator bounds each call with a context deadline as well
	httpClient := &http.Client{Timeout: timeout}

	return build(cfg, httpClient, logger)
}

// BuildAll creates adapters for every backend in the registry, keyed by ID
func BuildAll(registry *providers.Registry, logger *zap.Logger) (map[providers.BackendID]providers.Adapter, error) {
	adapters := make(map[providers.BackendID]providers.Adapter, registry.Len())
	for _, cfg := range registry.List() {
		adapter, err := Build(cfg, logger)
		if err != nil {
			return nil, fmt.Errorf("build adapter %s: %w", cfg.ID, err)
		}
		adapters[cfg.ID] = adapter
	}
	return adapters, nil
}
