package providers

import (
	"context"
	"time"
)

// Adapter performs one completion against a single remote backend family.
// Errors returned by Complete are always *ProviderError.
type Adapter interface {
	// ID returns the backend this adapter talks to
	ID() BackendID

	// Complete sends text to the backend and returns the normalized reply
	Complete(ctx context.Context, text string) (*Completion, error)
}

// Completion is the normalized reply of a successful backend call
type Completion struct {
	// Text is the trimmed reply text
	Text string

	// Model that produced the reply
	Model string

	// Degraded is set when only a reduced-capability model answered
	Degraded bool
}

// BackendConfig is the static configuration of one backend
type BackendConfig struct {
	ID          BackendID
	DisplayName string
	Endpoint    string
	Model       string
	Models      []string // tried in order by model-substituting backends
	Credential  string
	Enabled     bool
	Timeout     time.Duration
	Headers     map[string]string
}

// Usable reports whether the backend may be offered to callers
func (c BackendConfig) Usable() bool {
	return c.Enabled && c.Credential != ""
}

// Name returns the display name, falling back to the ID
func (c BackendConfig) Name() string {
	if c.DisplayName != "" {
		return c.DisplayName
	}
	return string(c.ID)
}

// clone returns a copy that shares no slices or maps with c
func (c BackendConfig) clone() BackendConfig {
	out := c
	if c.Models != nil {
		out.Models = append([]string(nil), c.Models...)
	}
	if c.Headers != nil {
		out.Headers = make(map[string]string, len(c.Headers))
		for k, v := range c.Headers {
			out.Headers[k] = v
		}
	}
	return out
}
