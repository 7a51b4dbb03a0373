// Package huggingface implements the Hugging Face router backend. A single
// backend call walks an ordered list of models until one answers.
package huggingface

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"go.uber.org/zap"

	"github.com/arnobt78/multimodel-chat/services/providers"
)

const (
	defaultEndpoint = "https://router.huggingface.co/v1/chat/completions"
	systemPrompt    = "You are a helpful AI assistant."
	maxTokens       = 256
	temperature     = 0.7
)

// DefaultModels is the candidate list walked front to back. The last entry
// is a summarization model kept as a degraded last resort.
var DefaultModels = []string{
	"meta-llama/Llama-3.1-8B-Instruct",
	"mistralai/Mistral-7B-Instruct-v0.3",
	"HuggingFaceH4/zephyr-7b-beta",
	"tiiuae/falcon-7b-instruct",
	"google/gemma-2b-it",
	"NousResearch/Hermes-2-Pro-Mistral-7B",
	"mistralai/Mistral-7B-Instruct-v0.2",
	"google/gemma-2b",
	"google/gemma-7b",
	"mistralai/Mixtral-8x7B-Instruct-v0.1",
	"tiiuae/falcon-7b",
	"microsoft/phi-1_5",
	"bigscience/bloomz-560m",
	"HuggingFaceH4/zephyr-7b-alpha",
	"tiiuae/falcon-40b-instruct",
	"facebook/bart-large-cnn",
}

// Adapter tries each configured model in order
type Adapter struct {
	config     providers.BackendConfig
	models     []string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewAdapter creates a new Hugging Face adapter
func NewAdapter(config providers.BackendConfig, httpClient *http.Client, logger *zap.Logger) *Adapter {
	if config.Endpoint == "" {
		config.Endpoint = defaultEndpoint
	}
	models := config.Models
	if len(models) == 0 {
		models = DefaultModels
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{
		config:     config,
		models:     append([]string(nil), models...),
		httpClient: httpClient,
		logger:     logger,
	}
}

// ID returns the backend identifier
func (a *Adapter) ID() providers.BackendID {
	return providers.HuggingFace
}

// Models returns the candidate list in try order
func (a *Adapter) Models() []string {
	return append([]string(nil), a.models...)
}

// Complete walks the model list. A rate limit stops the walk at once since
// it applies to the whole account; any other failure moves to the next model.
func (a *Adapter) Complete(ctx context.Context, text string) (*providers.Completion, error) {
	body, err := a.baseBody(text)
	if err != nil {
		return nil, providers.NewProviderError(a.ID(), providers.KindTransient, "failed to build request", 0, err)
	}

	headers := map[string]string{"Authorization": "Bearer " + a.config.Credential}
	for k, v := range a.config.Headers {
		headers[k] = v
	}

	last := len(a.models) - 1
	failed := make([]string, 0, len(a.models))

	for i, model := range a.models {
		if err := ctx.Err(); err != nil {
			return nil, a.interrupted(err, failed)
		}

		// The final model only summarizes, so any 2xx from it counts once the
		// chat models have all failed.
		degraded := i == last && len(failed) > 0

		out, err := a.tryModel(ctx, model, body, headers, degraded)
		if err != nil {
			if providers.IsRateLimited(err) {
				return nil, err
			}
			a.logger.Debug("hugging face model failed",
				zap.String("model", model),
				zap.Error(err),
			)
			failed = append(failed, model)
			continue
		}

		if degraded {
			return &providers.Completion{
				Text:     degradedNotice(failed, model),
				Model:    model,
				Degraded: true,
			}, nil
		}
		return &providers.Completion{Text: out, Model: model}, nil
	}

	if err := ctx.Err(); err != nil {
		return nil, a.interrupted(err, failed)
	}
	return nil, providers.NewProviderError(a.ID(), providers.KindTransient,
		fmt.Sprintf("All Hugging Face chat models failed: %s. Please check your API key or try another provider.", strings.Join(failed, ", ")),
		0, nil)
}

// interrupted reports a caller deadline or cancellation together with the
// models that had already failed
func (a *Adapter) interrupted(err error, failed []string) error {
	provErr := providers.Classify(err, a.ID())
	if len(failed) == 0 {
		return provErr
	}
	return providers.NewProviderError(a.ID(), provErr.Kind,
		fmt.Sprintf("%s after Hugging Face models failed: %s", provErr.Message, strings.Join(failed, ", ")),
		0, err)
}

func (a *Adapter) tryModel(ctx context.Context, model string, base []byte, headers map[string]string, anyBody bool) (string, error) {
	body, err := sjson.SetBytes(base, "model", model)
	if err != nil {
		return "", providers.NewProviderError(a.ID(), providers.KindTransient, "failed to set model", 0, err)
	}

	resp, err := providers.PostJSON(ctx, a.httpClient, a.ID(), a.config.Endpoint, headers, body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", providers.StatusError(a.ID(), resp.StatusCode, resp.Body)
	}
	if anyBody {
		return "", nil
	}

	out := strings.TrimSpace(gjson.GetBytes(resp.Body, "choices.0.message.content").String())
	if out == "" {
		return "", providers.NewProviderError(a.ID(), providers.KindMalformedResponse, "invalid response format from Hugging Face API", resp.StatusCode, nil)
	}
	return out, nil
}

func (a *Adapter) baseBody(text string) ([]byte, error) {
	return json.Marshal(chatRequest{
		Messages: []message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: text},
		},
		MaxTokens:   maxTokens,
		Temperature: temperature,
	})
}

func degradedNotice(failed []string, fallback string) string {
	short := fallback
	if i := strings.LastIndex(fallback, "/"); i >= 0 {
		short = fallback[i+1:]
	}
	return fmt.Sprintf("Hugging Face chat models are currently unavailable. The following models failed: %s. "+
		"Only the fallback model (%s) is available, but it's designed for text summarization, not chat. "+
		"Please select another AI provider (Gemini, Groq, or OpenRouter) from the dropdown menu for better chat responses.",
		strings.Join(failed, ", "), short)
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []message `json:"messages"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature float64   `json:"temperature"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
