// Package chatcompat adapts backends that expose an OpenAI-compatible chat
// completions API (Groq, OpenRouter).
package chatcompat

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"

	"github.com/arnobt78/multimodel-chat/services/providers"
)

const maxTokens = 500

// Defaults per backend when the configuration leaves endpoint or model empty
var defaults = map[providers.BackendID]struct{ endpoint, model string }{
	providers.Groq:       {"https://api.groq.com/openai/v1", "llama-3.1-8b-instant"},
	providers.OpenRouter: {"https://openrouter.ai/api/v1", "meta-llama/llama-3.2-3b-instruct:free"},
}

// Adapter calls an OpenAI-compatible chat completions endpoint
type Adapter struct {
	id     providers.BackendID
	model  string
	client oai.Client
}

// NewAdapter creates an adapter for the configured backend. The SDK's own
// retries are disabled so every failure reaches the orchestrator.
func NewAdapter(config providers.BackendConfig, httpClient *http.Client) (*Adapter, error) {
	def, ok := defaults[config.ID]
	if !ok {
		return nil, fmt.Errorf("chatcompat: backend %q is not OpenAI-compatible", config.ID)
	}
	if config.Endpoint == "" {
		config.Endpoint = def.endpoint
	}
	if config.Model == "" {
		config.Model = def.model
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(config.Credential),
		option.WithBaseURL(strings.TrimSuffix(config.Endpoint, "/") + "/"),
		option.WithMaxRetries(0),
	}
	if httpClient != nil {
		reqOpts = append(reqOpts, option.WithHTTPClient(httpClient))
	}
	for k, v := range config.Headers {
		reqOpts = append(reqOpts, option.WithHeader(k, v))
	}

	return &Adapter{
		id:     config.ID,
		model:  config.Model,
		client: oai.NewClient(reqOpts...),
	}, nil
}

// ID returns the backend identifier
func (a *Adapter) ID() providers.BackendID {
	return a.id
}

// Complete sends text as a single user message
func (a *Adapter) Complete(ctx context.Context, text string) (*providers.Completion, error) {
	params := oai.ChatCompletionNewParams{
		Model:     shared.ChatModel(a.model),
		Messages:  []oai.ChatCompletionMessageParamUnion{oai.UserMessage(text)},
		MaxTokens: param.NewOpt(int64(maxTokens)),
	}

	resp, err := a.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, a.classify(ctx, err)
	}
	if len(resp.Choices) == 0 {
		return nil, providers.NewProviderError(a.id, providers.KindMalformedResponse, "empty choices in response", http.StatusOK, nil)
	}

	out := strings.TrimSpace(resp.Choices[0].Message.Content)
	if out == "" {
		return nil, providers.NewProviderError(a.id, providers.KindMalformedResponse, "empty message content in response", http.StatusOK, nil)
	}

	model := resp.Model
	if model == "" {
		model = a.model
	}
	return &providers.Completion{Text: out, Model: model}, nil
}

func (a *Adapter) classify(ctx context.Context, err error) error {
	var apiErr *oai.Error
	if errors.As(err, &apiErr) {
		msg := apiErr.Message
		if msg == "" {
			msg = http.StatusText(apiErr.StatusCode)
		}
		return providers.NewProviderError(a.id, providers.ClassifyStatus(apiErr.StatusCode), fmt.Sprintf("HTTP %d: %s", apiErr.StatusCode, msg), apiErr.StatusCode, err)
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return providers.Classify(ctxErr, a.id)
	}
	return providers.Classify(err, a.id)
}
