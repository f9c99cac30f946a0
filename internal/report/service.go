package report

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/medireport/platform/internal/llm"
	"github.com/medireport/platform/internal/shared/config"
	"github.com/medireport/platform/internal/shared/errors"
	"github.com/medireport/platform/internal/shared/events"
	"github.com/medireport/platform/internal/shared/metrics"
)

// Request carries one generation request
type Request struct {
	TestResultID  int64
	PatientID     string
	TestType      string
	Parameters    Parameters
	ActorID       string
	CorrelationID string
}

// Service turns lab parameters into a StructuredReport via the model
type Service struct {
	client    llm.Client
	publisher events.Publisher
	logger    zerolog.Logger
	strict    bool
}

// NewService creates a new report service
func NewService(client llm.Client, publisher events.Publisher, cfg config.ReportConfig, logger zerolog.Logger) *Service {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &Service{
		client:    client,
		publisher: publisher,
		logger:    logger.With().Str("component", "report").Logger(),
		strict:    cfg.StrictSchema,
	}
}

// Generate builds the prompt, calls the model once and parses the answer.
// A model failure is returned as UpstreamUnavailable; an unparseable answer
// is not an error and yields the fallback report.
func (s *Service) Generate(ctx context.Context, req Request) (*StructuredReport, error) {
	prompt := BuildPrompt(req.TestType, req.Parameters)

	start := time.Now()
	raw, err := s.client.Generate(ctx, prompt)
	metrics.RecordLLMRequest(s.client.Provider(), err == nil, time.Since(start))

	if err != nil {
		s.logger.Error().Err(err).
			Int64("test_result_id", req.TestResultID).
			Str("test_type", req.TestType).
			Msg("text generation failed")
		metrics.RecordReportGenerated(req.TestType, "failed")
		s.publish(ctx, req, events.TypeReportFailed, map[string]any{
			"test_result_id": req.TestResultID,
			"patient_id":     req.PatientID,
			"test_type":      req.TestType,
			"error":          err.Error(),
		})
		return nil, errors.UpstreamUnavailable(err)
	}

	result := ParseResponse(raw, req.TestType, req.Parameters, s.strict)

	outcome := "parsed"
	if result.Fallback() {
		outcome = "fallback"
		metrics.RecordReportFallback(result.FallbackReason)
		s.logger.Warn().
			Int64("test_result_id", req.TestResultID).
			Str("reason", result.FallbackReason).
			Msg("model response not usable, using fallback report")
	}
	metrics.RecordReportGenerated(req.TestType, outcome)

	s.publish(ctx, req, events.TypeReportGenerated, map[string]any{
		"test_result_id":  req.TestResultID,
		"patient_id":      req.PatientID,
		"test_type":       req.TestType,
		"fallback":        result.Fallback(),
		"fallback_reason": result.FallbackReason,
		"risk_level":      RiskLevel(result.Report, req.Parameters),
	})

	return result.Report, nil
}

func (s *Service) publish(ctx context.Context, req Request, eventType string, data map[string]any) {
	event := events.NewEvent(eventType, "report", data).
		WithActor(req.ActorID).
		WithCorrelation(req.CorrelationID)

	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Warn().Err(err).Str("event_type", eventType).Msg("failed to publish event")
	}
}
