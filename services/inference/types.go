package inference

import (
	"context"

	"github.com/arnobt78/multimodel-chat/models"
	"github.com/arnobt78/multimodel-chat/services/routing"
)

// ChatRequest is one inbound chat message. An empty Provider lets the
// orchestrator pick a backend.
type ChatRequest struct {
	Message   string `json:"message"`
	Provider  string `json:"provider,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
	RequestID string `json:"-"`
}

// ChatResponse is the reply returned to the caller for every request,
// successful or not
type ChatResponse struct {
	Content  string `json:"content"`
	Provider string `json:"provider"`
	Success  bool   `json:"success"`
	Error    string `json:"error,omitempty"`
	Degraded bool   `json:"degraded,omitempty"`

	// BackendID and ErrorKind are kept for in-process callers
	BackendID string `json:"-"`
	ErrorKind string `json:"-"`
}

// Completer runs one orchestrated completion
type Completer interface {
	Complete(ctx context.Context, req routing.Request) routing.Result
}

// EventEmitter accepts usage events without blocking
type EventEmitter interface {
	Emit(ctx context.Context, event *models.Event) error
}
