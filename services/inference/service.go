package inference

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/arnobt78/multimodel-chat/models"
	"github.com/arnobt78/multimodel-chat/services/providers"
	"github.com/arnobt78/multimodel-chat/services/routing"
	"github.com/arnobt78/multimodel-chat/services/telemetry"
)

// Service is the inbound chat entry point. It delegates backend selection to
// the orchestrator and reports one usage event per request.
type Service struct {
	completer Completer
	emitter   EventEmitter
	logger    *zap.Logger
	now       func() time.Time
}

// NewService creates a new chat service. emitter may be nil to disable telemetry.
func NewService(completer Completer, emitter EventEmitter, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		completer: completer,
		emitter:   emitter,
		logger:    logger,
		now:       time.Now,
	}
}

// GetChatResponse answers one message. Failures are reported in the response,
// never as an error.
func (s *Service) GetChatResponse(ctx context.Context, req ChatRequest) ChatResponse {
	start := s.now()

	result := s.completer.Complete(ctx, routing.Request{
		Text:      req.Message,
		Preferred: preferredBackend(req.Provider),
	})
	duration := s.now().Sub(start)

	resp := ChatResponse{
		Content:   result.Text,
		Provider:  result.BackendUsed,
		Success:   result.Succeeded,
		Degraded:  result.Degraded,
		BackendID: string(result.BackendID),
	}
	if !result.Succeeded {
		resp.Content = ""
		resp.Error = result.ErrorDescription
		resp.ErrorKind = string(result.ErrorKind)
	}

	fields := []zap.Field{
		zap.String("provider", resp.Provider),
		zap.Bool("success", resp.Success),
		zap.Int("attempts", len(result.Attempts)),
		zap.Duration("duration", duration),
		zap.String("request_id", req.RequestID),
	}
	if resp.Success {
		s.logger.Info("chat request completed", fields...)
	} else {
		s.logger.Warn("chat request failed", append(fields, zap.String("error_kind", resp.ErrorKind))...)
	}

	s.emit(ctx, req, result, duration)
	return resp
}

// preferredBackend maps the inbound provider field onto a backend ID. Unknown
// names are passed through so the orchestrator reports them.
func preferredBackend(raw string) providers.BackendID {
	if raw == "" {
		return ""
	}
	id, err := providers.ParseBackendID(raw)
	if err != nil {
		return providers.BackendID(raw)
	}
	return id
}

func (s *Service) emit(ctx context.Context, req ChatRequest, result routing.Result, duration time.Duration) {
	if s.emitter == nil {
		return
	}

	metadata := map[string]interface{}{
		"attempts": len(result.Attempts),
	}
	if result.BackendID != "" {
		metadata["backendId"] = string(result.BackendID)
	}
	if result.ErrorKind != "" {
		metadata["errorKind"] = string(result.ErrorKind)
	}
	if result.Degraded {
		metadata["degraded"] = true
	}
	if req.Provider != "" {
		metadata["requestedProvider"] = req.Provider
	}

	event := models.NewAPICallEvent(req.SessionID, result.BackendUsed, result.Succeeded, duration).
		WithRequestID(req.RequestID).
		WithMetadata(metadata)

	if err := s.emitter.Emit(ctx, event); err != nil && !errors.Is(err, telemetry.ErrBufferFull) {
		s.logger.Debug("telemetry event not emitted", zap.Error(err))
	}
}
