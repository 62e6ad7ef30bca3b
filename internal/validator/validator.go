// Package validator is the admission gate for trace records: a candidate must carry
// a trade id, an event time and a valid level before anything may insert it.
package validator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"tracekeeper/internal/diagnostics"
	"tracekeeper/internal/platform/metrics"
	"tracekeeper/internal/trace/models"
	"tracekeeper/internal/trace/ports"
	dErrors "tracekeeper/pkg/domain-errors"
)

// Rejection reasons, checked in this order.
var (
	ErrMissingTradeID        = errors.New("missing trade id")
	ErrMissingEventTime      = errors.New("missing event time")
	ErrMissingOrInvalidLevel = errors.New("missing or invalid level")
)

// Reason returns the metric/diagnostic label for a rejection error.
func Reason(err error) string {
	switch {
	case errors.Is(err, ErrMissingTradeID):
		return "missing_trade_id"
	case errors.Is(err, ErrMissingEventTime):
		return "missing_event_time"
	case errors.Is(err, ErrMissingOrInvalidLevel):
		return "missing_or_invalid_level"
	case errors.Is(err, ErrMalformedRecord):
		return "malformed_record"
	default:
		return "unknown"
	}
}

type Service struct {
	sink    ports.DiagnosticSink
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithDiagnostics(sink ports.DiagnosticSink) Option {
	return func(s *Service) {
		s.sink = sink
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func New(opts ...Option) *Service {
	svc := &Service{
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// Check applies the admission rules without side effects. It short-circuits on the
// first failure.
func Check(rec *models.TraceRecord) error {
	if rec == nil {
		return ErrMissingTradeID
	}
	if !rec.Attributes.Has(models.AttrTradeID) {
		return ErrMissingTradeID
	}
	if rec.EventTime == nil || rec.EventTime.IsZero() {
		return ErrMissingEventTime
	}
	level, ok := rec.Attributes.String(models.AttrLevel)
	if !ok || !models.Level(level).Valid() {
		return ErrMissingOrInvalidLevel
	}
	return nil
}

// Validate checks rec and, on rejection, writes one diagnostic entry and returns a
// validation error wrapping the reason.
func (s *Service) Validate(ctx context.Context, rec *models.TraceRecord) error {
	reason := Check(rec)
	if reason == nil {
		return nil
	}
	s.reject(ctx, rec, reason)
	return dErrors.Wrap(reason, dErrors.CodeValidation, rejectionMessage(reason))
}

// Admit validates rec and inserts it only when it passes.
func (s *Service) Admit(ctx context.Context, store ports.RecordInserter, rec *models.TraceRecord) (models.RecordID, error) {
	if err := s.Validate(ctx, rec); err != nil {
		return "", err
	}
	id, err := store.Insert(ctx, rec)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to insert trace record")
	}
	return id, nil
}

func (s *Service) reject(ctx context.Context, rec *models.TraceRecord, reason error) {
	s.metrics.IncrementRejection(Reason(reason))

	attrs := []any{"reason", Reason(reason)}
	if rec != nil {
		if tradeID, ok := rec.Attributes.String(models.AttrTradeID); ok {
			attrs = append(attrs, "trade_id", tradeID)
		}
	}
	ports.Emit(ctx, s.logger, s.sink, diagnostics.Entry{
		Level:     diagnostics.LevelWarn,
		Component: diagnostics.ComponentValidator,
		Event:     "validation_rejected",
		Message:   fmt.Sprintf("candidate rejected: %v", reason),
		Attrs:     attrs,
	})
}

func rejectionMessage(reason error) string {
	switch {
	case errors.Is(reason, ErrMissingTradeID):
		return "attributes.trade_id is required"
	case errors.Is(reason, ErrMissingEventTime):
		return "_time is required"
	default:
		return "attributes.level must be one of info, warn, error"
	}
}
