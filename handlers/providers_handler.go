package handlers

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/arnobt78/multimodel-chat/services/routing"
	"github.com/arnobt78/multimodel-chat/utils"
)

// StatusLister reports backend availability
type StatusLister interface {
	Status(now time.Time) []routing.BackendStatus
	Now() time.Time
}

// ProviderInfo is one entry of GET /api/providers
type ProviderInfo struct {
	ID              string     `json:"id"`
	DisplayName     string     `json:"displayName"`
	Enabled         bool       `json:"enabled"`
	Available       bool       `json:"available"`
	Suppressed      bool       `json:"suppressed"`
	SuppressedUntil *time.Time `json:"suppressedUntil,omitempty"`
}

// ProvidersResponse is the GET /api/providers body
type ProvidersResponse struct {
	Providers []ProviderInfo `json:"providers"`
}

// ProvidersHandler lists backends in priority order
type ProvidersHandler struct {
	lister StatusLister
	logger *zap.Logger
}

// NewProvidersHandler creates a new ProvidersHandler
func NewProvidersHandler(lister StatusLister, logger *zap.Logger) *ProvidersHandler {
	return &ProvidersHandler{lister: lister, logger: logger}
}

// HandleList handles GET /api/providers
func (h *ProvidersHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	statuses := h.lister.Status(h.lister.Now())

	out := ProvidersResponse{Providers: make([]ProviderInfo, 0, len(statuses))}
	for _, s := range statuses {
		info := ProviderInfo{
			ID:          string(s.ID),
			DisplayName: s.DisplayName,
			Enabled:     s.Enabled,
			Available:   s.Available && !s.Suppressed,
			Suppressed:  s.Suppressed,
		}
		if s.Suppressed {
			until := s.SuppressedUntil.UTC()
			info.SuppressedUntil = &until
		}
		out.Providers = append(out.Providers, info)
	}

	if err := utils.WriteJSON(w, http.StatusOK, out); err != nil {
		h.logger.Error("failed to write providers response", zap.Error(err))
	}
}
