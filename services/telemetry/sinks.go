package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/arnobt78/multimodel-chat/internal/observability"
	"github.com/arnobt78/multimodel-chat/models"
	"github.com/arnobt78/multimodel-chat/repositories"
)

// LogSink writes events to the structured log
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink creates a LogSink
func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Record(_ context.Context, event *models.Event) error {
	s.logger.Info("usage event",
		zap.String("event_id", event.ID.String()),
		zap.String("event_type", string(event.EventType)),
		zap.String("session_id", event.SessionID),
		zap.String("provider", event.Provider),
		zap.Bool("success", event.Success),
		zap.Int64("duration_ms", event.DurationMs),
		zap.String("request_id", event.RequestID),
	)
	return nil
}

// HTTPSink posts events as JSON to an ingestion endpoint
type HTTPSink struct {
	url    string
	client *http.Client
}

// NewHTTPSink creates an HTTPSink. A nil client uses http.DefaultClient.
func NewHTTPSink(url string, client *http.Client) *HTTPSink {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPSink{url: url, client: client}
}

func (s *HTTPSink) Name() string { return "http" }

func (s *HTTPSink) Record(ctx context.Context, event *models.Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("post event: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("post event: unexpected status %d", resp.StatusCode)
	}
	return nil
}

// RepositorySink stores events through an EventRepository
type RepositorySink struct {
	repo repositories.EventRepository
}

// NewRepositorySink creates a RepositorySink
func NewRepositorySink(repo repositories.EventRepository) *RepositorySink {
	return &RepositorySink{repo: repo}
}

func (s *RepositorySink) Name() string { return "repository" }

func (s *RepositorySink) Record(ctx context.Context, event *models.Event) error {
	return s.repo.Insert(ctx, event)
}

// MetricsSink turns api_call events into chat request metrics
type MetricsSink struct {
	metrics *observability.Metrics
}

// NewMetricsSink creates a MetricsSink
func NewMetricsSink(metrics *observability.Metrics) *MetricsSink {
	return &MetricsSink{metrics: metrics}
}

func (s *MetricsSink) Name() string { return "metrics" }

func (s *MetricsSink) Record(ctx context.Context, event *models.Event) error {
	if event.EventType != models.EventTypeAPICall {
		return nil
	}
	s.metrics.RecordChat(ctx, event.Provider, event.Success, event.Duration())
	return nil
}

// Publisher is the subset of *nats.Conn used by NATSSink
type Publisher interface {
	Publish(subj string, data []byte) error
}

// NATSSink publishes events as JSON on a subject
type NATSSink struct {
	conn    Publisher
	subject string
}

// NewNATSSink creates a NATSSink
func NewNATSSink(conn Publisher, subject string) *NATSSink {
	return &NATSSink{conn: conn, subject: subject}
}

func (s *NATSSink) Name() string { return "nats" }

func (s *NATSSink) Record(_ context.Context, event *models.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := s.conn.Publish(s.subject, data); err != nil {
		return fmt.Errorf("publish to %s: %w", s.subject, err)
	}
	return nil
}
