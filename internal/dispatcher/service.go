// Package dispatcher enriches validated trace records with region and version
// metadata and inserts them, retrying per the region's attempt budget.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"tracekeeper/internal/diagnostics"
	"tracekeeper/internal/platform/metrics"
	"tracekeeper/internal/trace/models"
	"tracekeeper/internal/trace/ports"
	"tracekeeper/internal/validator"
	dErrors "tracekeeper/pkg/domain-errors"
	"tracekeeper/pkg/platform/retry"
	"tracekeeper/pkg/platform/sentinel"
)

var (
	ErrUnknownRegion      = errors.New("unknown region")
	ErrMaxRetriesExceeded = errors.New("max retries exceeded")
	ErrStoreUnavailable   = errors.New("store unavailable")
)

// Result reports a successful dispatch.
type Result struct {
	ID       models.RecordID
	Region   string
	Attempts int
}

type Service struct {
	store     ports.RecordInserter
	regions   *RegionSet
	version   string
	validator *validator.Service
	sink      ports.DiagnosticSink
	logger    *slog.Logger
	metrics   *metrics.Metrics
	tracer    trace.Tracer
	now       func() time.Time
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

// WithValidator sets the validator used by DispatchCandidate.
func WithValidator(v *validator.Service) Option {
	return func(s *Service) {
		s.validator = v
	}
}

// WithClock overrides the store-time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// New builds a dispatcher stamping records with currentVersion.
func New(store ports.RecordInserter, regions *RegionSet, currentVersion string, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("trace store is required")
	}
	if regions == nil {
		return nil, fmt.Errorf("region set is required")
	}
	if currentVersion == "" {
		return nil, fmt.Errorf("current semconv version is required")
	}

	svc := &Service{
		store:   store,
		regions: regions,
		version: currentVersion,
		logger:  slog.New(slog.DiscardHandler),
		tracer:  otel.Tracer("tracekeeper/dispatcher"),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	if svc.validator == nil {
		svc.validator = validator.New(
			validator.WithLogger(svc.logger),
			validator.WithDiagnostics(svc.sink),
			validator.WithMetrics(svc.metrics),
		)
	}
	return svc, nil
}

// DispatchCandidate validates rec and dispatches it only when it passes.
func (s *Service) DispatchCandidate(ctx context.Context, regionID string, rec *models.TraceRecord) (*Result, error) {
	if err := s.validator.Validate(ctx, rec); err != nil {
		return nil, err
	}
	return s.Dispatch(ctx, regionID, rec)
}

// Dispatch enriches a validated record and inserts it. Attempts are strictly
// sequential; each one is written to the diagnostic sink. The caller's record is
// not modified.
func (s *Service) Dispatch(ctx context.Context, regionID string, rec *models.TraceRecord) (result *Result, err error) {
	ctx, span := s.tracer.Start(ctx, "dispatcher.Dispatch", trace.WithAttributes(attribute.String("region", regionID)))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	region, ok := s.regions.Lookup(regionID)
	if !ok {
		ports.Emit(ctx, s.logger, s.sink, diagnostics.Entry{
			Level:     diagnostics.LevelError,
			Component: diagnostics.ComponentDispatcher,
			Event:     "dispatch_unknown_region",
			Message:   "dispatch to unregistered region",
			Attrs:     []any{"region", regionID},
		})
		return nil, dErrors.Wrap(fmt.Errorf("%w: %q", ErrUnknownRegion, regionID), dErrors.CodeNotFound, "unknown region")
	}
	if rec == nil {
		return nil, dErrors.New(dErrors.CodeBadRequest, "record is required")
	}

	start := time.Now()
	defer func() { s.metrics.ObserveDispatch(region.ID, time.Since(start)) }()

	enriched := rec.Clone()
	if enriched.Attributes == nil {
		enriched.Attributes = models.Attributes{}
	}
	delete(enriched.Attributes, models.AttrRegionID)
	delete(enriched.Attributes, models.AttrSemconvVersion)
	enriched.RegionID = region.ID
	enriched.SemconvVersion = s.version
	enriched.StoreTime = s.now()
	tradeID, _ := enriched.Attributes.String(models.AttrTradeID)

	var id models.RecordID
	attempts, err := retry.Do(ctx, region.retryConfig(), func(ctx context.Context) error {
		inserted, insertErr := s.store.Insert(context.WithoutCancel(ctx), enriched)
		if insertErr != nil {
			if errors.Is(insertErr, sentinel.ErrConflict) {
				return retry.NonRetryable(insertErr)
			}
			return insertErr
		}
		id = inserted
		return nil
	}, func(a retry.Attempt) {
		s.recordAttempt(ctx, region, tradeID, a)
	})
	span.SetAttributes(attribute.Int("attempts", attempts))

	if err == nil {
		return &Result{ID: id, Region: region.ID, Attempts: attempts}, nil
	}

	switch {
	case errors.Is(err, retry.ErrBudgetExhausted):
		s.metrics.IncrementDispatchAttempt(region.ID, "exhausted")
		ports.Emit(ctx, s.logger, s.sink, diagnostics.Entry{
			Level:     diagnostics.LevelError,
			Component: diagnostics.ComponentDispatcher,
			Event:     "dispatch_failed",
			Message:   "dispatch retries exhausted",
			Attrs:     []any{"region", region.ID, "trade_id", tradeID, "attempts", attempts, "error", err},
		})
		return nil, dErrors.Wrap(fmt.Errorf("%w: %w", ErrMaxRetriesExceeded, err), dErrors.CodeUnavailable,
			fmt.Sprintf("dispatch to %s failed after %d attempts", region.ID, attempts))
	case retry.IsNonRetryable(err):
		return nil, dErrors.Wrap(err, dErrors.CodeConflict, "record already exists")
	default:
		ports.Emit(ctx, s.logger, s.sink, diagnostics.Entry{
			Level:     diagnostics.LevelError,
			Component: diagnostics.ComponentDispatcher,
			Event:     "dispatch_abandoned",
			Message:   "dispatch abandoned by caller",
			Attrs:     []any{"region", region.ID, "trade_id", tradeID, "attempts", attempts, "error", err},
		})
		return nil, dErrors.Wrap(fmt.Errorf("%w: %w", ErrStoreUnavailable, err), dErrors.CodeUnavailable, "store unavailable")
	}
}

func (s *Service) recordAttempt(ctx context.Context, region RegionConfig, tradeID string, a retry.Attempt) {
	entry := diagnostics.Entry{
		Component: diagnostics.ComponentDispatcher,
		Event:     "dispatch_attempt",
		Attrs: []any{
			"region", region.ID,
			"endpoint", region.Endpoint,
			"trade_id", tradeID,
			"attempt", a.Number,
			"max_attempts", region.MaxRetries,
		},
	}
	if a.Err == nil {
		s.metrics.IncrementDispatchAttempt(region.ID, "ok")
		entry.Level = diagnostics.LevelInfo
		entry.Message = "trace record dispatched"
	} else {
		s.metrics.IncrementDispatchAttempt(region.ID, "failed")
		entry.Level = diagnostics.LevelWarn
		entry.Message = "dispatch attempt failed"
		entry.Attrs = append(entry.Attrs, "error", a.Err.Error())
	}
	ports.Emit(ctx, s.logger, s.sink, entry)
}
