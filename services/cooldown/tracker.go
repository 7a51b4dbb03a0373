package cooldown

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/arnobt78/multimodel-chat/services/providers"
)

// DefaultWindow is how long a rate-limited backend is skipped
const DefaultWindow = 5 * time.Minute

// Tracker remembers which backends recently reported rate limiting.
// State lives only for the lifetime of the process.
type Tracker struct {
	mu      sync.Mutex
	window  time.Duration
	entries map[providers.BackendID]time.Time
	logger  *zap.Logger
}

// NewTracker creates a tracker. A non-positive window falls back to DefaultWindow.
func NewTracker(window time.Duration, logger *zap.Logger) *Tracker {
	if window <= 0 {
		window = DefaultWindow
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{
		window:  window,
		entries: make(map[providers.BackendID]time.Time),
		logger:  logger,
	}
}

// Window returns the suppression window
func (t *Tracker) Window() time.Duration {
	return t.window
}

// IsSuppressed reports whether id was marked within the window ending at now.
// Expired entries are removed as a side effect.
func (t *Tracker) IsSuppressed(id providers.BackendID, now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	since, ok := t.entries[id]
	if !ok {
		return false
	}
	if now.Sub(since) <= t.window {
		return true
	}

	delete(t.entries, id)
	t.logger.Debug("backend cooldown expired", zap.String("backend", string(id)))
	return false
}

// MarkSuppressed records that id hit a rate limit at now, replacing any earlier mark
func (t *Tracker) MarkSuppressed(id providers.BackendID, now time.Time) {
	t.mu.Lock()
	t.entries[id] = now
	t.mu.Unlock()

	t.logger.Info("backend suppressed",
		zap.String("backend", string(id)),
		zap.Time("until", now.Add(t.window)),
	)
}

// Suppressions returns live entries mapped to the time their suppression ends
func (t *Tracker) Suppressions(now time.Time) map[providers.BackendID]time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make(map[providers.BackendID]time.Time, len(t.entries))
	for id, since := range t.entries {
		if now.Sub(since) > t.window {
			delete(t.entries, id)
			continue
		}
		out[id] = since.Add(t.window)
	}
	return out
}
