package routing

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/arnobt78/multimodel-chat/internal/observability"
	"github.com/arnobt78/multimodel-chat/services/cooldown"
	"github.com/arnobt78/multimodel-chat/services/providers"
)

// Terminal result kinds produced by the orchestrator itself
const (
	KindUnknownBackend             providers.ErrorKind = "unknown_backend"
	KindAllBackendsExhausted       providers.ErrorKind = "all_backends_exhausted"
	KindExplicitBackendUnavailable providers.ErrorKind = "explicit_backend_unavailable"
)

// NoBackend is reported as BackendUsed when nothing answered in automatic mode
const NoBackend = "None"

const exhaustedMessage = "All AI providers failed or are unavailable. Please check your API keys."

// Config holds configuration for the orchestrator
type Config struct {
	// CallTimeout bounds a single backend call when the backend has no timeout of its own
	CallTimeout time.Duration

	// RequestTimeout bounds the whole walk over backends. Zero means only the
	// caller's context applies.
	RequestTimeout time.Duration
}

// DefaultConfig returns a sensible default configuration
func DefaultConfig() Config {
	return Config{
		CallTimeout: 30 * time.Second,
	}
}

// Request is a single completion request. An empty Preferred selects
// automatic mode.
type Request struct {
	Text      string
	Preferred providers.BackendID
}

// Attempt records one backend call made while serving a request
type Attempt struct {
	Backend  providers.BackendID
	Kind     providers.ErrorKind
	Message  string
	Duration time.Duration
}

// Result is the outcome of a request. Exactly one is produced per Complete call.
type Result struct {
	Text             string
	BackendUsed      string
	BackendID        providers.BackendID
	Succeeded        bool
	Degraded         bool
	ErrorKind        providers.ErrorKind
	ErrorDescription string
	Attempts         []Attempt
}

// BackendStatus describes one registered backend for status listings
type BackendStatus struct {
	ID              providers.BackendID
	DisplayName     string
	Enabled         bool
	Available       bool
	Suppressed      bool
	SuppressedUntil time.Time
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		o.now = now
	}
}

// WithMetrics records attempts and suppressions on m
func WithMetrics(m *observability.Metrics) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

// Orchestrator walks backends in priority order until one answers
type Orchestrator struct {
	config   Config
	registry *providers.Registry
	adapters map[providers.BackendID]providers.Adapter
	tracker  *cooldown.Tracker
	logger   *zap.Logger
	metrics  *observability.Metrics
	now      func() time.Time
}

// NewOrchestrator creates a new orchestrator. adapters must hold an entry for
// every backend the registry can hand out.
func NewOrchestrator(config Config, registry *providers.Registry, adapters map[providers.BackendID]providers.Adapter, tracker *cooldown.Tracker, logger *zap.Logger, opts ...Option) *Orchestrator {
	if config.CallTimeout <= 0 {
		config.CallTimeout = DefaultConfig().CallTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if tracker == nil {
		tracker = cooldown.NewTracker(cooldown.DefaultWindow, logger)
	}
	o := &Orchestrator{
		config:   config,
		registry: registry,
		adapters: adapters,
		tracker:  tracker,
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Complete serves one request. It never returns an error: every failure is
// described by the Result.
func (o *Orchestrator) Complete(ctx context.Context, req Request) Result {
	if o.config.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.config.RequestTimeout)
		defer cancel()
	}
	if req.Preferred != "" {
		return o.completeExplicit(ctx, req)
	}
	return o.completeAutomatic(ctx, req)
}

func (o *Orchestrator) completeExplicit(ctx context.Context, req Request) Result {
	id := req.Preferred
	if !id.Valid() {
		return Result{
			BackendUsed:      string(id),
			ErrorKind:        KindUnknownBackend,
			ErrorDescription: fmt.Sprintf("Unknown provider: %s", id),
		}
	}

	cfg, err := o.registry.Get(id)
	if err != nil {
		cfg = providers.BackendConfig{ID: id, DisplayName: providers.DefaultDisplayName(id)}
	}
	adapter, ok := o.adapters[id]
	if err != nil || !cfg.Usable() || !ok {
		return Result{
			BackendUsed:      cfg.Name(),
			BackendID:        id,
			ErrorKind:        KindExplicitBackendUnavailable,
			ErrorDescription: fmt.Sprintf("%s is not available", cfg.Name()),
		}
	}

	completion, attempt := o.invoke(ctx, cfg, adapter, req.Text)
	result := Result{
		BackendUsed: cfg.Name(),
		BackendID:   id,
		Attempts:    []Attempt{attempt},
	}
	if completion != nil {
		result.Succeeded = true
		result.Text = completion.Text
		result.Degraded = completion.Degraded
		return result
	}

	result.ErrorKind = attempt.Kind
	result.ErrorDescription = attempt.Message
	return result
}

func (o *Orchestrator) completeAutomatic(ctx context.Context, req Request) Result {
	var attempts []Attempt

	for _, cfg := range o.registry.ListEnabled() {
		if ctx.Err() != nil {
			break
		}
		if o.tracker.IsSuppressed(cfg.ID, o.now()) {
			o.logger.Debug("skipping suppressed backend", zap.String("backend", string(cfg.ID)))
			continue
		}
		adapter, ok := o.adapters[cfg.ID]
		if !ok {
			o.logger.Warn("no adapter for enabled backend", zap.String("backend", string(cfg.ID)))
			continue
		}

		completion, attempt := o.invoke(ctx, cfg, adapter, req.Text)
		attempts = append(attempts, attempt)
		if completion != nil {
			return Result{
				Text:        completion.Text,
				BackendUsed: cfg.Name(),
				BackendID:   cfg.ID,
				Succeeded:   true,
				Degraded:    completion.Degraded,
				Attempts:    attempts,
			}
		}
	}

	if err := ctx.Err(); err != nil {
		provErr := providers.Classify(err, "")
		return Result{
			BackendUsed:      NoBackend,
			ErrorKind:        provErr.Kind,
			ErrorDescription: provErr.Message,
			Attempts:         attempts,
		}
	}

	return Result{
		BackendUsed:      NoBackend,
		ErrorKind:        KindAllBackendsExhausted,
		ErrorDescription: o.describeExhausted(attempts),
		Attempts:         attempts,
	}
}

// invoke calls one adapter under its own deadline. A nil completion means
// failure, described by the returned attempt.
func (o *Orchestrator) invoke(ctx context.Context, cfg providers.BackendConfig, adapter providers.Adapter, text string) (completion *providers.Completion, attempt Attempt) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = o.config.CallTimeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := o.now()
	attempt.Backend = cfg.ID

	completion, err := o.safeComplete(callCtx, adapter, text)
	attempt.Duration = o.now().Sub(start)

	if err == nil && completion == nil {
		err = providers.NewProviderError(cfg.ID, providers.KindMalformedResponse, "backend returned no completion", 0, nil)
	}
	if err != nil {
		provErr := providers.Classify(err, cfg.ID)
		attempt.Kind = provErr.Kind
		attempt.Message = provErr.Error()
		completion = nil

		if provErr.Kind == providers.KindRateLimited {
			o.tracker.MarkSuppressed(cfg.ID, o.now())
			o.metrics.RecordSuppression(ctx, string(cfg.ID))
		}
		o.logger.Warn("backend call failed",
			zap.String("backend", string(cfg.ID)),
			zap.String("kind", string(provErr.Kind)),
			zap.Duration("duration", attempt.Duration),
			zap.Error(provErr),
		)
	} else {
		o.logger.Debug("backend call succeeded",
			zap.String("backend", string(cfg.ID)),
			zap.Duration("duration", attempt.Duration),
			zap.Bool("degraded", completion.Degraded),
		)
	}

	o.metrics.RecordAttempt(ctx, string(cfg.ID), string(attempt.Kind), attempt.Duration)
	return completion, attempt
}

// safeComplete turns adapter panics into transient errors
func (o *Orchestrator) safeComplete(ctx context.Context, adapter providers.Adapter, text string) (completion *providers.Completion, err error) {
	defer func() {
		if r := recover(); r != nil {
			completion = nil
			err = providers.NewProviderError(adapter.ID(), providers.KindTransient, fmt.Sprintf("adapter panic: %v", r), 0, nil)
		}
	}()
	return adapter.Complete(ctx, text)
}

func (o *Orchestrator) describeExhausted(attempts []Attempt) string {
	if len(attempts) == 0 {
		return exhaustedMessage
	}
	parts := make([]string, 0, len(attempts))
	for _, a := range attempts {
		name := string(a.Backend)
		if cfg, err := o.registry.Get(a.Backend); err == nil {
			name = cfg.Name()
		}
		parts = append(parts, fmt.Sprintf("%s: %s", name, a.Message))
	}
	return exhaustedMessage + " (" + strings.Join(parts, "; ") + ")"
}

// Status lists every registered backend with its availability at now
func (o *Orchestrator) Status(now time.Time) []BackendStatus {
	suppressed := o.tracker.Suppressions(now)

	out := make([]BackendStatus, 0, o.registry.Len())
	for _, cfg := range o.registry.List() {
		until, isSuppressed := suppressed[cfg.ID]
		_, hasAdapter := o.adapters[cfg.ID]
		out = append(out, BackendStatus{
			ID:              cfg.ID,
			DisplayName:     cfg.Name(),
			Enabled:         cfg.Enabled,
			Available:       cfg.Usable() && hasAdapter,
			Suppressed:      isSuppressed,
			SuppressedUntil: until,
		})
	}
	return out
}

// Now returns the orchestrator clock reading
func (o *Orchestrator) Now() time.Time {
	return o.now()
}
