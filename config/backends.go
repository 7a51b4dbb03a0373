package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/arnobt78/multimodel-chat/services/providers"
)

// catalogueFile is the on-disk shape of BACKENDS_FILE
type catalogueFile struct {
	Priority []providers.BackendID `yaml:"priority"`
	Backends []fileBackend         `yaml:"backends"`
}

type fileBackend struct {
	ID          providers.BackendID `yaml:"id"`
	DisplayName string              `yaml:"display_name"`
	Endpoint    string              `yaml:"endpoint"`
	Model       string              `yaml:"model"`
	Models      []string            `yaml:"models"`
	Enabled     *bool               `yaml:"enabled"`
	Timeout     time.Duration       `yaml:"timeout"`
	Headers     map[string]string   `yaml:"headers"`
}

// DefaultBackends returns the built-in catalogue without credentials
func DefaultBackends() []providers.BackendConfig {
	return []providers.BackendConfig{
		{
			ID:       providers.Groq,
			Endpoint: "https://api.groq.com/openai/v1",
			Model:    "llama-3.1-8b-instant",
			Enabled:  true,
		},
		{
			ID:       providers.Gemini,
			Endpoint: "https://generativelanguage.googleapis.com/v1beta/models/gemini-2.0-flash:generateContent",
			Model:    "gemini-2.0-flash",
			Enabled:  true,
		},
		{
			ID:       providers.OpenRouter,
			Endpoint: "https://openrouter.ai/api/v1",
			Model:    "meta-llama/llama-3.2-3b-instruct:free",
			Enabled:  true,
			Headers: map[string]string{
				"HTTP-Referer": "http://localhost:5173",
				"X-Title":      "AI Chat Bot",
			},
		},
		{
			ID:       providers.HuggingFace,
			Endpoint: "https://router.huggingface.co/v1/chat/completions",
			Enabled:  true,
		},
		{
			ID:       providers.OpenAI,
			Endpoint: "https://api.openai.com/v1/responses",
			Model:    "gpt-4o-mini",
			Enabled:  true,
		},
	}
}

// loadBackendsConfig builds the catalogue: defaults, then BACKENDS_FILE, then
// per-backend env vars. Credentials only ever come from the environment.
func loadBackendsConfig() (BackendsConfig, error) {
	out := BackendsConfig{
		Priority: append([]providers.BackendID(nil), providers.AllBackends...),
		List:     DefaultBackends(),
		File:     getEnv("BACKENDS_FILE", ""),
	}

	if out.File != "" {
		f, err := os.Open(out.File)
		if err != nil {
			return out, fmt.Errorf("open backends file: %w", err)
		}
		defer f.Close()

		cat, err := decodeCatalogue(f)
		if err != nil {
			return out, fmt.Errorf("parse backends file %s: %w", out.File, err)
		}
		if len(cat.Priority) > 0 {
			out.Priority = cat.Priority
		}
		out.List = overlay(out.List, cat.Backends)
	}

	if raw := getEnv("BACKEND_PRIORITY", ""); raw != "" {
		priority, err := parsePriority(raw)
		if err != nil {
			return out, err
		}
		out.Priority = priority
	}

	for i := range out.List {
		applyEnv(&out.List[i])
	}

	return out, nil
}

func decodeCatalogue(r io.Reader) (catalogueFile, error) {
	var cat catalogueFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cat); err != nil && !errors.Is(err, io.EOF) {
		return cat, err
	}
	for _, b := range cat.Backends {
		if !b.ID.Valid() {
			return cat, fmt.Errorf("%w: %q", providers.ErrUnknownBackend, b.ID)
		}
	}
	return cat, nil
}

// overlay merges file entries onto base by ID. Non-zero fields in the file win.
func overlay(base []providers.BackendConfig, file []fileBackend) []providers.BackendConfig {
	index := make(map[providers.BackendID]int, len(base))
	for i, b := range base {
		index[b.ID] = i
	}
	for _, f := range file {
		i, ok := index[f.ID]
		if !ok {
			base = append(base, providers.BackendConfig{ID: f.ID, Enabled: true})
			i = len(base) - 1
			index[f.ID] = i
		}
		b := &base[i]
		if f.Enabled != nil {
			b.Enabled = *f.Enabled
		}
		if f.DisplayName != "" {
			b.DisplayName = f.DisplayName
		}
		if f.Endpoint != "" {
			b.Endpoint = f.Endpoint
		}
		if f.Model != "" {
			b.Model = f.Model
		}
		if len(f.Models) > 0 {
			b.Models = f.Models
		}
		if f.Timeout > 0 {
			b.Timeout = f.Timeout
		}
		if len(f.Headers) > 0 {
			b.Headers = f.Headers
		}
	}
	return base
}

// applyEnv reads <ID>_API_KEY, _ENDPOINT, _MODEL, _ENABLED and _TIMEOUT
func applyEnv(b *providers.BackendConfig) {
	prefix := strings.ToUpper(string(b.ID)) + "_"

	b.Credential = getEnv(prefix+"API_KEY", b.Credential)
	b.Endpoint = getEnv(prefix+"ENDPOINT", b.Endpoint)
	b.Model = getEnv(prefix+"MODEL", b.Model)
	b.Enabled = getEnvAsBool(prefix+"ENABLED", b.Enabled)
	b.Timeout = getEnvAsDuration(prefix+"TIMEOUT", b.Timeout)
	b.DisplayName = getEnv(prefix+"DISPLAY_NAME", b.DisplayName)

	switch b.ID {
	case providers.HuggingFace:
		b.Models = getEnvAsList("HUGGINGFACE_MODELS", b.Models)
	case providers.OpenRouter:
		if b.Headers == nil {
			b.Headers = make(map[string]string)
		}
		if v := getEnv("OPENROUTER_REFERER", ""); v != "" {
			b.Headers["HTTP-Referer"] = v
		}
		if v := getEnv("OPENROUTER_TITLE", ""); v != "" {
			b.Headers["X-Title"] = v
		}
	}
}

func parsePriority(raw string) ([]providers.BackendID, error) {
	var out []providers.BackendID
	for _, item := range strings.Split(raw, ",") {
		if strings.TrimSpace(item) == "" {
			continue
		}
		id, err := providers.ParseBackendID(item)
		if err != nil {
			return nil, fmt.Errorf("BACKEND_PRIORITY: %w", err)
		}
		out = append(out, id)
	}
	return out, nil
}
