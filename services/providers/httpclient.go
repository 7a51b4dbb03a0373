package providers

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
)

// maxErrorSnippet bounds the raw body echoed into error messages
const maxErrorSnippet = 200

// HTTPResponse is a fully read backend reply
type HTTPResponse struct {
	StatusCode int
	Body       []byte
}

// PostJSON sends body to url and reads the full reply. Transport failures
// come back as transient *ProviderError values; status handling is left to
// the caller.
func PostJSON(ctx context.Context, client *http.Client, provider BackendID, url string, headers map[string]string, body []byte) (*HTTPResponse, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, NewProviderError(provider, KindTransient, "failed to create request", 0, err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		httpReq.Header.Set(k, v)
	}

	httpResp, err := client.Do(httpReq)
	if err != nil {
		return nil, Classify(wrapTransport(ctx, err), provider)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, NewProviderError(provider, KindTransient, "failed to read response", httpResp.StatusCode, err)
	}

	return &HTTPResponse{StatusCode: httpResp.StatusCode, Body: respBody}, nil
}

// StatusError builds the ProviderError for a non-2xx reply
func StatusError(provider BackendID, statusCode int, body []byte) *ProviderError {
	return NewProviderError(provider, ClassifyStatus(statusCode), fmt.Sprintf("HTTP %d: %s", statusCode, ErrorMessage(body)), statusCode, nil)
}

// ErrorMessage extracts a readable message from an error body. Both the
// {"error":{"message":...}} and {"error":"..."} shapes are understood.
func ErrorMessage(body []byte) string {
	for _, path := range []string{"error.message", "error", "message"} {
		if v := gjson.GetBytes(body, path); v.Type == gjson.String && v.String() != "" {
			return v.String()
		}
	}
	snippet := strings.TrimSpace(string(body))
	if len(snippet) > maxErrorSnippet {
		snippet = snippet[:maxErrorSnippet]
	}
	if snippet == "" {
		return "empty response body"
	}
	return snippet
}

func wrapTransport(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return fmt.Errorf("request failed: %w", err)
}
