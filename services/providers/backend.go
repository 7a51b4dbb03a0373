package providers

import (
	"errors"
	"fmt"
	"strings"
)

// BackendID identifies one remote text-generation backend
type BackendID string

const (
	Groq        BackendID = "groq"
	Gemini      BackendID = "gemini"
	OpenRouter  BackendID = "openrouter"
	HuggingFace BackendID = "huggingface"
	OpenAI      BackendID = "openai"
)

// AllBackends lists every known backend in the default priority order.
// Free tiers with the most generous quotas come first.
var AllBackends = []BackendID{Groq, Gemini, OpenRouter, HuggingFace, OpenAI}

// ErrUnknownBackend is returned for identifiers outside the known set
var ErrUnknownBackend = errors.New("unknown backend")

// ParseBackendID converts a user-supplied identifier into a BackendID
func ParseBackendID(s string) (BackendID, error) {
	id := BackendID(strings.ToLower(strings.TrimSpace(s)))
	if !id.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownBackend, s)
	}
	return id, nil
}

// Valid reports whether id is one of the known backends
func (id BackendID) Valid() bool {
	for _, known := range AllBackends {
		if id == known {
			return true
		}
	}
	return false
}

func (id BackendID) String() string {
	return string(id)
}

// DefaultDisplayName returns the human-readable name used when none is configured
func DefaultDisplayName(id BackendID) string {
	switch id {
	case Groq:
		return "Groq (Llama 3)"
	case Gemini:
		return "Google Gemini"
	case OpenRouter:
		return "OpenRouter"
	case HuggingFace:
		return "Hugging Face"
	case OpenAI:
		return "OpenAI GPT"
	default:
		return string(id)
	}
}
