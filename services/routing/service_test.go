package routing

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/arnobt78/multimodel-chat/services/cooldown"
	"github.com/arnobt78/multimodel-chat/services/providers"
)

// fakeAdapter replays a fixed behaviour and counts calls
type fakeAdapter struct {
	id    providers.BackendID
	mu    sync.Mutex
	calls int
	fn    func(ctx context.Context, text string) (*providers.Completion, error)
}

func (f *fakeAdapter) ID() providers.BackendID { return f.id }

func (f *fakeAdapter) Complete(ctx context.Context, text string) (*providers.Completion, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return f.fn(ctx, text)
}

func (f *fakeAdapter) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func succeeds(id providers.BackendID, text string) *fakeAdapter {
	return &fakeAdapter{id: id, fn: func(context.Context, string) (*providers.Completion, error) {
		return &providers.Completion{Text: text}, nil
	}}
}

func fails(id providers.BackendID, kind providers.ErrorKind, msg string) *fakeAdapter {
	return &fakeAdapter{id: id, fn: func(context.Context, string) (*providers.Completion, error) {
		return nil, providers.NewProviderError(id, kind, msg, 0, nil)
	}}
}

// fakeClock is a manually advanced clock
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	orch     *Orchestrator
	tracker  *cooldown.Tracker
	clock    *fakeClock
	adapters map[providers.BackendID]*fakeAdapter
}

// newFixture registers every backend as usable unless listed in disabled
func newFixture(t *testing.T, adapters []*fakeAdapter, disabled ...providers.BackendID) *fixture {
	t.Helper()

	off := make(map[providers.BackendID]bool)
	for _, id := range disabled {
		off[id] = true
	}

	var configs []providers.BackendConfig
	byID := make(map[providers.BackendID]providers.Adapter)
	fakes := make(map[providers.BackendID]*fakeAdapter)
	for _, a := range adapters {
		configs = append(configs, providers.BackendConfig{ID: a.id, Credential: "key", Enabled: !off[a.id]})
		byID[a.id] = a
		fakes[a.id] = a
	}

	registry, err := providers.NewRegistry(providers.AllBackends, configs)
	require.NoError(t, err)

	clock := &fakeClock{now: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)}
	tracker := cooldown.NewTracker(cooldown.DefaultWindow, zap.NewNop())
	orch := NewOrchestrator(Config{CallTimeout: time.Second}, registry, byID, tracker, zap.NewNop(), WithClock(clock.Now))

	return &fixture{orch: orch, tracker: tracker, clock: clock, adapters: fakes}
}

func TestOrchestrator_FirstHealthyBackendAnswers(t *testing.T) {
	f := newFixture(t, []*fakeAdapter{
		succeeds(providers.OpenAI, "from openai"),
		succeeds(providers.Groq, "from groq"),
		succeeds(providers.Gemini, "from gemini"),
	})

	res := f.orch.Complete(context.Background(), Request{Text: "hi"})

	assert.True(t, res.Succeeded)
	assert.Equal(t, "from groq", res.Text)
	assert.Equal(t, "Groq (Llama 3)", res.BackendUsed)
	assert.Equal(t, providers.Groq, res.BackendID)
	assert.Len(t, res.Attempts, 1)
	assert.Zero(t, f.adapters[providers.Gemini].Calls())
	assert.Zero(t, f.adapters[providers.OpenAI].Calls())
}

// Groq is rate limited, Gemini answers, and Groq stays skipped for the
// rest of the cooldown window.
func TestOrchestrator_RateLimitFallsThroughAndSuppresses(t *testing.T) {
	f := newFixture(t, []*fakeAdapter{
		fails(providers.Groq, providers.KindRateLimited, "HTTP 429: slow down"),
		succeeds(providers.Gemini, "hello"),
	})

	res := f.orch.Complete(context.Background(), Request{Text: "hi"})
	require.True(t, res.Succeeded)
	assert.Equal(t, "Google Gemini", res.BackendUsed)
	assert.Equal(t, "hello", res.Text)
	assert.True(t, f.tracker.IsSuppressed(providers.Groq, f.clock.Now()))

	f.clock.Advance(2 * time.Minute)
	res = f.orch.Complete(context.Background(), Request{Text: "again"})
	require.True(t, res.Succeeded)
	assert.Equal(t, providers.Gemini, res.BackendID)
	assert.Equal(t, 1, f.adapters[providers.Groq].Calls(), "suppressed backend must not be called")
	assert.Equal(t, 2, f.adapters[providers.Gemini].Calls())

	f.clock.Advance(3*time.Minute + time.Second)
	f.orch.Complete(context.Background(), Request{Text: "later"})
	assert.Equal(t, 2, f.adapters[providers.Groq].Calls(), "backend is retried once the window passes")
}

func TestOrchestrator_AuthInvalidAdvancesWithoutSuppression(t *testing.T) {
	f := newFixture(t, []*fakeAdapter{
		fails(providers.Groq, providers.KindAuthInvalid, "HTTP 401: invalid key"),
		succeeds(providers.Gemini, "ok"),
	})

	res := f.orch.Complete(context.Background(), Request{Text: "hi"})
	require.True(t, res.Succeeded)
	assert.Equal(t, providers.Gemini, res.BackendID)
	assert.False(t, f.tracker.IsSuppressed(providers.Groq, f.clock.Now()))
	require.Len(t, res.Attempts, 2)
	assert.Equal(t, providers.KindAuthInvalid, res.Attempts[0].Kind)
}

func TestOrchestrator_MalformedAndTransientAdvance(t *testing.T) {
	f := newFixture(t, []*fakeAdapter{
		fails(providers.Groq, providers.KindMalformedResponse, "empty choices"),
		&fakeAdapter{id: providers.Gemini, fn: func(context.Context, string) (*providers.Completion, error) {
			return nil, errors.New("connection reset")
		}},
		succeeds(providers.OpenRouter, "third"),
	})

	res := f.orch.Complete(context.Background(), Request{Text: "hi"})
	require.True(t, res.Succeeded)
	assert.Equal(t, providers.OpenRouter, res.BackendID)
	require.Len(t, res.Attempts, 3)
	assert.Equal(t, providers.KindTransient, res.Attempts[1].Kind)
	assert.Equal(t, "connection reset", res.Attempts[1].Message)
}

func TestOrchestrator_SkipsDisabledBackends(t *testing.T) {
	f := newFixture(t, []*fakeAdapter{
		succeeds(providers.Groq, "groq"),
		succeeds(providers.Gemini, "gemini"),
	}, providers.Groq)

	res := f.orch.Complete(context.Background(), Request{Text: "hi"})
	assert.Equal(t, providers.Gemini, res.BackendID)
	assert.Zero(t, f.adapters[providers.Groq].Calls())
}

func TestOrchestrator_AllBackendsExhausted(t *testing.T) {
	f := newFixture(t, []*fakeAdapter{
		fails(providers.Groq, providers.KindTransient, "HTTP 500: boom"),
		fails(providers.Gemini, providers.KindAuthInvalid, "HTTP 403: denied"),
	})

	res := f.orch.Complete(context.Background(), Request{Text: "hi"})

	assert.False(t, res.Succeeded)
	assert.Equal(t, NoBackend, res.BackendUsed)
	assert.Equal(t, KindAllBackendsExhausted, res.ErrorKind)
	assert.Contains(t, res.ErrorDescription, "All AI providers failed or are unavailable. Please check your API keys.")
	assert.Contains(t, res.ErrorDescription, "Groq (Llama 3): HTTP 500: boom")
	assert.Contains(t, res.ErrorDescription, "Google Gemini: HTTP 403: denied")
	assert.Empty(t, res.Text)
}

func TestOrchestrator_NoUsableBackends(t *testing.T) {
	f := newFixture(t, []*fakeAdapter{succeeds(providers.Groq, "x")}, providers.Groq)

	res := f.orch.Complete(context.Background(), Request{Text: "hi"})
	assert.Equal(t, KindAllBackendsExhausted, res.ErrorKind)
	assert.Equal(t, "All AI providers failed or are unavailable. Please check your API keys.", res.ErrorDescription)
	assert.Empty(t, res.Attempts)
}

func TestOrchestrator_AllSuppressed(t *testing.T) {
	f := newFixture(t, []*fakeAdapter{succeeds(providers.Groq, "x"), succeeds(providers.Gemini, "y")})
	f.tracker.MarkSuppressed(providers.Groq, f.clock.Now())
	f.tracker.MarkSuppressed(providers.Gemini, f.clock.Now())

	res := f.orch.Complete(context.Background(), Request{Text: "hi"})
	assert.Equal(t, KindAllBackendsExhausted, res.ErrorKind)
	assert.Zero(t, f.adapters[providers.Groq].Calls())
	assert.Zero(t, f.adapters[providers.Gemini].Calls())
}

func TestOrchestrator_ExplicitNoFallback(t *testing.T) {
	f := newFixture(t, []*fakeAdapter{
		succeeds(providers.Groq, "groq"),
		fails(providers.OpenAI, providers.KindAuthInvalid, "OpenAI API key has expired or is invalid. Please update your API key."),
	})

	res := f.orch.Complete(context.Background(), Request{Text: "hi", Preferred: providers.OpenAI})

	assert.False(t, res.Succeeded)
	assert.Equal(t, "OpenAI GPT", res.BackendUsed)
	assert.Equal(t, providers.KindAuthInvalid, res.ErrorKind)
	assert.Contains(t, res.ErrorDescription, "expired or is invalid")
	assert.Zero(t, f.adapters[providers.Groq].Calls())
	assert.False(t, f.tracker.IsSuppressed(providers.OpenAI, f.clock.Now()))
}

func TestOrchestrator_ExplicitIgnoresCooldown(t *testing.T) {
	f := newFixture(t, []*fakeAdapter{succeeds(providers.Groq, "groq")})
	f.tracker.MarkSuppressed(providers.Groq, f.clock.Now())

	res := f.orch.Complete(context.Background(), Request{Text: "hi", Preferred: providers.Groq})
	assert.True(t, res.Succeeded)
	assert.Equal(t, 1, f.adapters[providers.Groq].Calls())
}

func TestOrchestrator_ExplicitRateLimitSuppresses(t *testing.T) {
	f := newFixture(t, []*fakeAdapter{
		fails(providers.Gemini, providers.KindRateLimited, "HTTP 429: quota"),
		succeeds(providers.Groq, "groq"),
	})

	res := f.orch.Complete(context.Background(), Request{Text: "hi", Preferred: providers.Gemini})
	assert.Equal(t, providers.KindRateLimited, res.ErrorKind)
	assert.Zero(t, f.adapters[providers.Groq].Calls())
	assert.True(t, f.tracker.IsSuppressed(providers.Gemini, f.clock.Now()))
}

func TestOrchestrator_ExplicitUnavailable(t *testing.T) {
	f := newFixture(t, []*fakeAdapter{succeeds(providers.Groq, "groq")}, providers.Groq)

	tests := []struct {
		name      string
		preferred providers.BackendID
		wantKind  providers.ErrorKind
		wantDesc  string
	}{
		{"disabled", providers.Groq, KindExplicitBackendUnavailable, "Groq (Llama 3) is not available"},
		{"not configured", providers.HuggingFace, KindExplicitBackendUnavailable, "Hugging Face is not available"},
		{"unknown", providers.BackendID("claude"), KindUnknownBackend, "Unknown provider: claude"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := f.orch.Complete(context.Background(), Request{Text: "hi", Preferred: tt.preferred})
			assert.False(t, res.Succeeded)
			assert.Equal(t, tt.wantKind, res.ErrorKind)
			assert.Equal(t, tt.wantDesc, res.ErrorDescription)
			assert.Empty(t, res.Attempts)
		})
	}
	assert.Zero(t, f.adapters[providers.Groq].Calls())
}

func TestOrchestrator_DegradedPropagates(t *testing.T) {
	f := newFixture(t, []*fakeAdapter{
		{id: providers.HuggingFace, fn: func(context.Context, string) (*providers.Completion, error) {
			return &providers.Completion{Text: "notice", Degraded: true}, nil
		}},
	})

	res := f.orch.Complete(context.Background(), Request{Text: "hi"})
	assert.True(t, res.Succeeded)
	assert.True(t, res.Degraded)
}

// A model-substituting backend that exhausts its models counts as one
// failed attempt and the orchestrator moves on once.
func TestOrchestrator_ModelSubstitutionExhaustion(t *testing.T) {
	f := newFixture(t, []*fakeAdapter{
		fails(providers.HuggingFace, providers.KindTransient, "All Hugging Face chat models failed: a, b, c. Please check your API key or try another provider."),
		succeeds(providers.OpenAI, "openai"),
	})

	res := f.orch.Complete(context.Background(), Request{Text: "hi"})
	require.True(t, res.Succeeded)
	assert.Equal(t, providers.OpenAI, res.BackendID)
	assert.Len(t, res.Attempts, 2)
	assert.Equal(t, 1, f.adapters[providers.HuggingFace].Calls())
	assert.False(t, f.tracker.IsSuppressed(providers.HuggingFace, f.clock.Now()))
}

func TestOrchestrator_PanicIsTransient(t *testing.T) {
	f := newFixture(t, []*fakeAdapter{
		{id: providers.Groq, fn: func(context.Context, string) (*providers.Completion, error) {
			panic("nil map")
		}},
		succeeds(providers.Gemini, "ok"),
	})

	var res Result
	require.NotPanics(t, func() {
		res = f.orch.Complete(context.Background(), Request{Text: "hi"})
	})
	assert.True(t, res.Succeeded)
	assert.Equal(t, providers.KindTransient, res.Attempts[0].Kind)
	assert.Contains(t, res.Attempts[0].Message, "adapter panic")
}

func TestOrchestrator_CallTimeout(t *testing.T) {
	f := newFixture(t, []*fakeAdapter{
		{id: providers.Groq, fn: func(ctx context.Context, _ string) (*providers.Completion, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		}},
		succeeds(providers.Gemini, "ok"),
	})
	f.orch.config.CallTimeout = 20 * time.Millisecond

	res := f.orch.Complete(context.Background(), Request{Text: "hi"})
	require.True(t, res.Succeeded)
	assert.Equal(t, providers.Gemini, res.BackendID)
	assert.Equal(t, "request timed out", res.Attempts[0].Message)
}

func TestOrchestrator_RequestTimeoutBoundsWalk(t *testing.T) {
	hang := func(ctx context.Context, _ string) (*providers.Completion, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	f := newFixture(t, []*fakeAdapter{
		{id: providers.Groq, fn: hang},
		{id: providers.Gemini, fn: hang},
		succeeds(providers.OpenAI, "too late"),
	})
	f.orch.config.RequestTimeout = 50 * time.Millisecond

	start := time.Now()
	res := f.orch.Complete(context.Background(), Request{Text: "hi"})

	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.False(t, res.Succeeded)
	assert.Equal(t, NoBackend, res.BackendUsed)
	assert.Equal(t, providers.KindTransient, res.ErrorKind)
	assert.Equal(t, "request timed out", res.ErrorDescription)
	assert.Zero(t, f.adapters[providers.OpenAI].Calls())
}

func TestOrchestrator_CallerCancellationStopsWalk(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	f := newFixture(t, []*fakeAdapter{
		{id: providers.Groq, fn: func(ctx context.Context, _ string) (*providers.Completion, error) {
			cancel()
			return nil, ctx.Err()
		}},
		succeeds(providers.Gemini, "never"),
	})

	res := f.orch.Complete(ctx, Request{Text: "hi"})
	assert.False(t, res.Succeeded)
	assert.Equal(t, providers.KindTransient, res.ErrorKind)
	assert.Equal(t, "request cancelled", res.ErrorDescription)
	assert.Zero(t, f.adapters[providers.Gemini].Calls())
}

func TestOrchestrator_AtMostOneSuccess(t *testing.T) {
	f := newFixture(t, []*fakeAdapter{
		succeeds(providers.Groq, "a"),
		succeeds(providers.Gemini, "b"),
		succeeds(providers.OpenRouter, "c"),
		succeeds(providers.HuggingFace, "d"),
		succeeds(providers.OpenAI, "e"),
	})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.orch.Complete(context.Background(), Request{Text: "hi"})
		}()
	}
	wg.Wait()

	assert.Equal(t, 20, f.adapters[providers.Groq].Calls())
	for _, id := range []providers.BackendID{providers.Gemini, providers.OpenRouter, providers.HuggingFace, providers.OpenAI} {
		assert.Zero(t, f.adapters[id].Calls())
	}
}

func TestOrchestrator_Status(t *testing.T) {
	f := newFixture(t, []*fakeAdapter{
		succeeds(providers.Groq, "a"),
		succeeds(providers.Gemini, "b"),
	}, providers.Gemini)
	f.tracker.MarkSuppressed(providers.Groq, f.clock.Now())

	status := f.orch.Status(f.clock.Now().Add(time.Minute))
	require.Len(t, status, 2)

	assert.Equal(t, providers.Groq, status[0].ID)
	assert.True(t, status[0].Available)
	assert.True(t, status[0].Suppressed)
	assert.Equal(t, f.clock.Now().Add(cooldown.DefaultWindow), status[0].SuppressedUntil)

	assert.Equal(t, providers.Gemini, status[1].ID)
	assert.False(t, status[1].Enabled)
	assert.False(t, status[1].Available)
	assert.False(t, status[1].Suppressed)
}
