package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/arnobt78/multimodel-chat/services/providers"
)

const (
	defaultEndpoint = "https://api.openai.com/v1/responses"
	defaultModel    = "gpt-4o-mini"
	maxOutputTokens = 500
)

// Adapter talks to the OpenAI Responses API
type Adapter struct {
	config     providers.BackendConfig
	httpClient *http.Client
}

// NewAdapter creates a new OpenAI adapter
func NewAdapter(config providers.BackendConfig, httpClient *http.Client) *Adapter {
	if config.Endpoint == "" {
		config.Endpoint = defaultEndpoint
	}
	if config.Model == "" {
		config.Model = defaultModel
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	return &Adapter{
		config:     config,
		httpClient: httpClient,
	}
}

// ID returns the backend identifier
func (a *Adapter) ID() providers.BackendID {
	return providers.OpenAI
}

// Complete sends a single-turn input to the Responses API
func (a *Adapter) Complete(ctx context.Context, text string) (*providers.Completion, error) {
	body, err := json.Marshal(responsesRequest{
		Model:           a.config.Model,
		Input:           text,
		MaxOutputTokens: maxOutputTokens,
	})
	if err != nil {
		return nil, providers.NewProviderError(a.ID(), providers.KindTransient, "failed to marshal request", 0, err)
	}

	headers := map[string]string{"Authorization": "Bearer " + a.config.Credential}
	for k, v := range a.config.Headers {
		headers[k] = v
	}

	resp, err := providers.PostJSON(ctx, a.httpClient, a.ID(), a.config.Endpoint, headers, body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, a.handleErrorResponse(resp.StatusCode, resp.Body)
	}

	out := extractText(resp.Body)
	if out == "" {
		return nil, providers.NewProviderError(a.ID(), providers.KindMalformedResponse, "invalid response format from OpenAI API", resp.StatusCode, nil)
	}

	model := gjson.GetBytes(resp.Body, "model").String()
	if model == "" {
		model = a.config.Model
	}

	return &providers.Completion{Text: out, Model: model}, nil
}

// extractText reads the first output_text part, falling back to the
// chat-completions shape some proxies return.
func extractText(body []byte) string {
	var out string
	gjson.GetBytes(body, "output").ForEach(func(_, item gjson.Result) bool {
		item.Get("content").ForEach(func(_, part gjson.Result) bool {
			if part.Get("type").String() == "output_text" {
				out = part.Get("text").String()
				return false
			}
			return true
		})
		return out == ""
	})
	if out == "" {
		out = gjson.GetBytes(body, "output_text").String()
	}
	if out == "" {
		out = gjson.GetBytes(body, "choices.0.message.content").String()
	}
	return strings.TrimSpace(out)
}

func (a *Adapter) handleErrorResponse(statusCode int, body []byte) error {
	provErr := providers.StatusError(a.ID(), statusCode, body)
	switch provErr.Kind {
	case providers.KindAuthInvalid:
		provErr.Message = "OpenAI API key has expired or is invalid. Please update your API key."
	case providers.KindRateLimited:
		provErr.Message = "OpenAI API quota exceeded. Please check your billing or try again later."
	}
	return provErr
}

type responsesRequest struct {
	Model           string `json:"model"`
	Input           string `json:"input"`
	MaxOutputTokens int    `json:"max_output_tokens"`
}
