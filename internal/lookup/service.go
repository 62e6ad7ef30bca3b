// Package lookup finds trace records by attribute value across semantic-convention
// versions. A query names paths as they are laid out at a target version; records
// not yet migrated still carry the value at its older location, so an empty answer
// is retried against the pre-rename paths.
package lookup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"tracekeeper/internal/platform/metrics"
	"tracekeeper/internal/schema"
	"tracekeeper/internal/trace/models"
	"tracekeeper/internal/trace/ports"
	dErrors "tracekeeper/pkg/domain-errors"
)

const (
	DefaultLimit = 100
	MaxLimit     = 1000
)

var (
	ErrUnknownVersion   = errors.New("unknown version")
	ErrStoreUnavailable = errors.New("store unavailable")
)

// Location names which attribute layout answered a query.
type Location string

const (
	LocationCurrent Location = "current"
	LocationLegacy  Location = "legacy"
	LocationNone    Location = "none"
)

// Query selects records by attribute equality. Version defaults to the current
// version and Limit to DefaultLimit.
type Query struct {
	Version string
	Match   models.AttributeMatch
	Limit   int
}

// Result carries the records and the match that found them.
type Result struct {
	Version  string
	Location Location
	Match    models.AttributeMatch
	Records  []*models.TraceRecord
}

type Service struct {
	store    ports.RecordFinder
	registry *schema.Registry
	logger   *slog.Logger
	metrics  *metrics.Metrics
	tracer   trace.Tracer
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func New(store ports.RecordFinder, registry *schema.Registry, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("trace store is required")
	}
	if registry == nil {
		return nil, fmt.Errorf("schema registry is required")
	}
	svc := &Service{
		store:    store,
		registry: registry,
		logger:   slog.New(slog.DiscardHandler),
		tracer:   otel.Tracer("tracekeeper/lookup"),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Find queries the target layout first. When nothing matches and some matched path
// was renamed on the way to the target, it queries the pre-rename paths instead.
func (s *Service) Find(ctx context.Context, q Query) (res *Result, err error) {
	ctx, span := s.tracer.Start(ctx, "lookup.Find")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if q.Version == "" {
		q.Version = s.registry.Current()
	}
	if !s.registry.IsKnown(q.Version) {
		return nil, dErrors.Wrap(fmt.Errorf("%w: %q", ErrUnknownVersion, q.Version), dErrors.CodeValidation, "unknown version")
	}
	if err := q.Match.Validate(); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeBadRequest, err.Error())
	}
	switch {
	case q.Limit < 0:
		return nil, dErrors.New(dErrors.CodeBadRequest, "limit must not be negative")
	case q.Limit == 0:
		q.Limit = DefaultLimit
	case q.Limit > MaxLimit:
		q.Limit = MaxLimit
	}

	current, err := s.remap(q.Match, q.Version, s.registry.PathAt)
	if err != nil {
		return nil, err
	}
	res = &Result{Version: q.Version, Location: LocationCurrent, Match: current}
	if res.Records, err = s.find(ctx, current, q.Limit); err != nil {
		return nil, err
	}

	if len(res.Records) == 0 {
		legacy, err := s.remap(current, q.Version, s.registry.LegacyPath)
		if err != nil {
			return nil, err
		}
		res.Location = LocationNone
		if !samePaths(current, legacy) {
			records, err := s.find(ctx, legacy, q.Limit)
			if err != nil {
				return nil, err
			}
			if len(records) > 0 {
				res.Location, res.Match, res.Records = LocationLegacy, legacy, records
			}
		}
	}

	span.SetAttributes(
		attribute.String("lookup.version", q.Version),
		attribute.String("lookup.location", string(res.Location)),
		attribute.Int("lookup.results", len(res.Records)),
	)
	s.metrics.IncrementLookup(string(res.Location))
	s.logger.InfoContext(ctx, "attribute lookup executed",
		"version", q.Version,
		"location", res.Location,
		"results", len(res.Records),
	)
	return res, nil
}

func (s *Service) find(ctx context.Context, match models.AttributeMatch, limit int) ([]*models.TraceRecord, error) {
	records, err := s.store.FindByAttributes(ctx, match, limit)
	if err != nil {
		if errors.Is(err, models.ErrInvalidMatch) {
			return nil, dErrors.Wrap(err, dErrors.CodeBadRequest, err.Error())
		}
		return nil, dErrors.Wrap(fmt.Errorf("%w: %w", ErrStoreUnavailable, err), dErrors.CodeUnavailable, "store unavailable")
	}
	return records, nil
}

// remap moves every path with fn. Two paths landing on the same location make the
// query ambiguous and are rejected.
func (s *Service) remap(match models.AttributeMatch, version string, fn func(path, target string) (string, error)) (models.AttributeMatch, error) {
	out := make(models.AttributeMatch, len(match))
	for path, value := range match {
		moved, err := fn(path, version)
		if err != nil {
			return nil, dErrors.Wrap(fmt.Errorf("%w: %w", ErrUnknownVersion, err), dErrors.CodeValidation, "unknown version")
		}
		if _, dup := out[moved]; dup {
			return nil, dErrors.New(dErrors.CodeBadRequest, fmt.Sprintf("paths resolve to the same location %q", moved))
		}
		out[moved] = value
	}
	if err := out.Validate(); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeBadRequest, err.Error())
	}
	return out, nil
}

func samePaths(a, b models.AttributeMatch) bool {
	if len(a) != len(b) {
		return false
	}
	for p := range a {
		if _, ok := b[p]; !ok {
			return false
		}
	}
	return true
}
