package gemini

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
	defaultModel    = "gemini-2.0-flash"
	defaultEndpoint = "https://generativelanguage.googleapis.com/v1beta/models/" + defaultModel + ":generateContent"
)

// Adapter talks to the Gemini generateContent endpoint
type Adapter struct {
	config     providers.BackendConfig
	httpClient *http.Client
}

// NewAdapter creates a new Gemini adapter
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
	return &Adapter{config: config, httpClient: httpClient}
}

// ID returns the backend identifier
func (a *Adapter) ID() providers.BackendID {
	return providers.Gemini
}

// Complete generates content for a single user turn
func (a *Adapter) Complete(ctx context.Context, text string) (*providers.Completion, error) {
	body, err := json.Marshal(generateRequest{
		Contents: []content{{Parts: []part{{Text: text}}}},
	})
	if err != nil {
		return nil, providers.NewProviderError(a.ID(), providers.KindTransient, "failed to marshal request", 0, err)
	}

	headers := map[string]string{"x-goog-api-key": a.config.Credential}
	for k, v := range a.config.Headers {
		headers[k] = v
	}

	resp, err := providers.PostJSON(ctx, a.httpClient, a.ID(), a.config.Endpoint, headers, body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, providers.StatusError(a.ID(), resp.StatusCode, resp.Body)
	}

	out := strings.TrimSpace(gjson.GetBytes(resp.Body, "candidates.0.content.parts.0.text").String())
	if out == "" {
		return nil, providers.NewProviderError(a.ID(), providers.KindMalformedResponse, "invalid response format from Gemini API", resp.StatusCode, nil)
	}

	return &providers.Completion{Text: out, Model: a.config.Model}, nil
}

type generateRequest struct {
	Contents []content `json:"contents"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}
