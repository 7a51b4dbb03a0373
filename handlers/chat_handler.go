package handlers

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/arnobt78/multimodel-chat/middleware"
	"github.com/arnobt78/multimodel-chat/services/inference"
	"github.com/arnobt78/multimodel-chat/utils"
)

// ChatRequest is the POST /api/chat body
type ChatRequest struct {
	Message   string `json:"message" validate:"required"`
	Provider  string `json:"provider,omitempty" validate:"omitempty,max=64"`
	SessionID string `json:"sessionId,omitempty" validate:"omitempty,max=255"`
}

// ChatService defines the interface for answering chat messages
type ChatService interface {
	GetChatResponse(ctx context.Context, req inference.ChatRequest) inference.ChatResponse
}

// ChatHandler handles chat HTTP requests
type ChatHandler struct {
	service ChatService
	logger  *zap.Logger
}

// NewChatHandler creates a new ChatHandler
func NewChatHandler(service ChatService, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{
		service: service,
		logger:  logger,
	}
}

// HandleChat handles POST /api/chat. Every orchestrated outcome, including
// failure, is a 200 with success=false.
func (h *ChatHandler) HandleChat(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)

	var body ChatRequest
	if err := utils.DecodeJSON(r, &body); err != nil {
		h.logger.Warn("failed to parse request body",
			zap.String("request_id", requestID),
			zap.Error(err))
		_ = utils.WriteBadRequest(w, "Invalid request body", nil)
		return
	}

	body.Message = strings.TrimSpace(body.Message)
	if err := utils.ValidateStruct(&body); err != nil {
		h.logger.Warn("request validation failed",
			zap.String("request_id", requestID),
			zap.Error(err))
		HandleValidationError(w, err, h.logger)
		return
	}

	sessionID := body.SessionID
	if sessionID == "" {
		if claims := middleware.GetClaimsFromContext(ctx); claims != nil {
			sessionID = claims.SessionID
		}
	}

	h.logger.Debug("processing chat request",
		zap.String("request_id", requestID),
		zap.String("provider", body.Provider))

	resp := h.service.GetChatResponse(ctx, inference.ChatRequest{
		Message:   body.Message,
		Provider:  body.Provider,
		SessionID: sessionID,
		RequestID: requestID,
	})

	if err := utils.WriteJSON(w, http.StatusOK, resp); err != nil {
		h.logger.Error("failed to write chat response",
			zap.String("request_id", requestID),
			zap.Error(err))
	}
}
