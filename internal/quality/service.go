// Package quality audits the stored trace corpus for type drift, ingest delays and
// field bloat. Every scan is read-only; repairs are reported as intents only.
package quality

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"tracekeeper/internal/diagnostics"
	"tracekeeper/internal/platform/config"
	"tracekeeper/internal/platform/metrics"
	"tracekeeper/internal/trace/ports"
	dErrors "tracekeeper/pkg/domain-errors"
)

// ErrStoreUnavailable aborts the whole audit.
var ErrStoreUnavailable = errors.New("store unavailable")

// Thresholds configure the scans.
type Thresholds struct {
	MaxFields int
	TimeGap   time.Duration
}

// DefaultThresholds is 100 top-level fields and a one hour gap.
func DefaultThresholds() Thresholds {
	return Thresholds{MaxFields: 100, TimeGap: time.Hour}
}

// ThresholdsFromPipeline reads the quality section of the pipeline configuration.
func ThresholdsFromPipeline(p config.Pipeline) Thresholds {
	return Thresholds{MaxFields: p.Quality.MaxFields, TimeGap: p.Quality.TimeGapThreshold}
}

type Service struct {
	store      ports.CorpusAggregator
	thresholds Thresholds
	sink       ports.DiagnosticSink
	logger     *slog.Logger
	metrics    *metrics.Metrics
	tracer     trace.Tracer
	now        func() time.Time
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

// WithClock overrides the report timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func New(store ports.CorpusAggregator, thresholds Thresholds, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("trace store is required")
	}
	if thresholds.MaxFields <= 0 {
		return nil, fmt.Errorf("max fields must be positive")
	}
	if thresholds.TimeGap <= 0 {
		return nil, fmt.Errorf("time gap threshold must be positive")
	}
	svc := &Service{
		store:      store,
		thresholds: thresholds,
		logger:     slog.New(slog.DiscardHandler),
		tracer:     otel.Tracer("tracekeeper/quality"),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Audit runs the three scans concurrently. Each scan fills its own part of the
// report. A store failure in any scan aborts the audit.
func (s *Service) Audit(ctx context.Context) (report Report, err error) {
	ctx, span := s.tracer.Start(ctx, "quality.Audit")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	report = Report{
		GeneratedAt:             s.now().UTC(),
		MaxFields:               s.thresholds.MaxFields,
		TimeGapThresholdSeconds: s.thresholds.TimeGap.Seconds(),
		MixedTypes:              []Finding{},
		TimeGaps:                []Finding{},
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		findings, err := s.scanTypeDrift(gctx)
		report.MixedTypes = findings
		return err
	})
	g.Go(func() error {
		findings, err := s.scanTimeGaps(gctx)
		report.TimeGaps = findings
		return err
	})
	g.Go(func() error {
		excess, distinct, err := s.scanFieldBloat(gctx)
		report.Excess = excess
		report.DistinctTopLevelFields = distinct
		return err
	})
	if err := g.Wait(); err != nil {
		ports.Emit(ctx, s.logger, s.sink, diagnostics.Entry{
			Level:     diagnostics.LevelError,
			Component: diagnostics.ComponentAuditor,
			Event:     "audit_aborted",
			Message:   "quality audit aborted",
			Attrs:     []any{"error", err.Error()},
		})
		return Report{}, dErrors.Wrap(fmt.Errorf("%w: %w", ErrStoreUnavailable, err), dErrors.CodeUnavailable, "store unavailable")
	}

	report.RepairIntents = RepairIntents{
		TypeReconciliations: len(report.MixedTypes),
		TimeGapCorrections:  len(report.TimeGaps),
	}
	if report.Excess != nil {
		report.RepairIntents.FieldTrims = report.Excess.Overflow
	}
	s.logRepairIntents(ctx, report.RepairIntents)
	span.SetAttributes(attribute.Int("findings", len(report.Findings())))
	return report, nil
}

func (s *Service) scanTypeDrift(ctx context.Context) ([]Finding, error) {
	start := time.Now()
	rows, err := s.store.FieldTypes(ctx)
	s.metrics.ObserveScan("type_drift", time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("type drift scan: %w", err)
	}

	findings := []Finding{}
	for _, row := range rows {
		if len(row.Types) <= 1 {
			continue
		}
		types := append([]string(nil), row.Types...)
		sort.Strings(types)
		findings = append(findings, Finding{Kind: KindMixedType, Path: row.Path, Types: types})
	}
	sort.Slice(findings, func(i, j int) bool { return findings[i].Path < findings[j].Path })

	for _, f := range findings {
		s.emitFinding(ctx, f, "path", f.Path, "types", f.Types)
	}
	s.emitSummary(ctx, "type_drift", len(rows), len(findings))
	s.metrics.AddFindings(string(KindMixedType), len(findings))
	return findings, nil
}

func (s *Service) scanTimeGaps(ctx context.Context) ([]Finding, error) {
	start := time.Now()
	rows, err := s.store.TimeGaps(ctx, s.thresholds.TimeGap)
	s.metrics.ObserveScan("time_gap", time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("time gap scan: %w", err)
	}

	findings := make([]Finding, 0, len(rows))
	for _, row := range rows {
		// Stores filter by threshold already; re-check so a lenient backend cannot widen the result.
		if row.Gap <= s.thresholds.TimeGap {
			continue
		}
		findings = append(findings, Finding{
			Kind:       KindLargeTimeGap,
			RecordID:   row.ID,
			Gap:        row.Gap,
			GapSeconds: row.Gap.Seconds(),
		})
	}
	sort.Slice(findings, func(i, j int) bool { return findings[i].RecordID < findings[j].RecordID })

	for _, f := range findings {
		s.emitFinding(ctx, f, "record_id", f.RecordID.String(), "gap_seconds", f.GapSeconds)
	}
	s.emitSummary(ctx, "time_gap", len(rows), len(findings))
	s.metrics.AddFindings(string(KindLargeTimeGap), len(findings))
	return findings, nil
}

func (s *Service) scanFieldBloat(ctx context.Context) (*Finding, int, error) {
	start := time.Now()
	fields, err := s.store.DistinctTopLevelFields(ctx)
	s.metrics.ObserveScan("field_bloat", time.Since(start))
	if err != nil {
		return nil, 0, fmt.Errorf("field bloat scan: %w", err)
	}

	distinct := len(fields)
	var excess *Finding
	if distinct > s.thresholds.MaxFields {
		excess = &Finding{Kind: KindExcessiveFields, Overflow: distinct - s.thresholds.MaxFields}
		s.emitFinding(ctx, *excess, "distinct_fields", distinct, "overflow", excess.Overflow)
		s.metrics.AddFindings(string(KindExcessiveFields), 1)
	}
	found := 0
	if excess != nil {
		found = 1
	}
	s.emitSummary(ctx, "field_bloat", distinct, found)
	return excess, distinct, nil
}

func (s *Service) emitFinding(ctx context.Context, f Finding, attrs ...any) {
	ports.Emit(ctx, s.logger, s.sink, diagnostics.Entry{
		Level:     diagnostics.LevelWarn,
		Component: diagnostics.ComponentAuditor,
		Event:     "audit_finding",
		Message:   string(f.Kind),
		Attrs:     append([]any{"kind", string(f.Kind)}, attrs...),
	})
}

func (s *Service) emitSummary(ctx context.Context, scan string, scanned, found int) {
	ports.Emit(ctx, s.logger, s.sink, diagnostics.Entry{
		Level:     diagnostics.LevelInfo,
		Component: diagnostics.ComponentAuditor,
		Event:     "audit_scan_completed",
		Message:   scan + " scan completed",
		Attrs:     []any{"scan", scan, "scanned", scanned, "findings", found},
	})
}

func (s *Service) logRepairIntents(ctx context.Context, intents RepairIntents) {
	ports.Emit(ctx, s.logger, s.sink, diagnostics.Entry{
		Level:     diagnostics.LevelInfo,
		Component: diagnostics.ComponentAuditor,
		Event:     "audit_repair_intent",
		Message:   "repairs identified, not applied",
		Attrs: []any{
			"type_reconciliations", intents.TypeReconciliations,
			"time_gap_corrections", intents.TimeGapCorrections,
			"field_trims", intents.FieldTrims,
		},
	})
}
