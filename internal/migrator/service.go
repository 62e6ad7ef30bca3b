// Package migrator re-shapes persisted trace records from one semantic-convention
// version to another. Renames are additive: the old path is left in place.
package migrator

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
	"golang.org/x/sync/errgroup"

	"tracekeeper/internal/diagnostics"
	"tracekeeper/internal/platform/metrics"
	"tracekeeper/internal/schema"
	"tracekeeper/internal/trace/models"
	"tracekeeper/internal/trace/ports"
	dErrors "tracekeeper/pkg/domain-errors"
	"tracekeeper/pkg/platform/sentinel"
)

const defaultLockTTL = 10 * time.Minute

type Service struct {
	store      ports.RecordMigrator
	registry   *schema.Registry
	lock       ports.JobLock
	lockTTL    time.Duration
	maxWorkers int
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

// WithClock overrides the store-time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// WithMaxWorkers bounds the per-record tasks running at once. Zero means one task
// per record.
func WithMaxWorkers(n int) Option {
	return func(s *Service) {
		s.maxWorkers = n
	}
}

// WithJobLock guards MigrateVersion so at most one job runs per target version.
func WithJobLock(lock ports.JobLock, ttl time.Duration) Option {
	return func(s *Service) {
		s.lock = lock
		if ttl > 0 {
			s.lockTTL = ttl
		}
	}
}

func New(store ports.RecordMigrator, registry *schema.Registry, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("trace store is required")
	}
	if registry == nil {
		return nil, fmt.Errorf("schema registry is required")
	}
	svc := &Service{
		store:    store,
		registry: registry,
		lockTTL:  defaultLockTTL,
		logger:   slog.New(slog.DiscardHandler),
		tracer:   otel.Tracer("tracekeeper/migrator"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// MigrateBatch migrates every record to target independently and reports one outcome
// per record. One record's failure never affects the others. Records whose task has
// not started when ctx is done are reported as canceled; started writes complete.
func (s *Service) MigrateBatch(ctx context.Context, records []*models.TraceRecord, target string) BatchReport {
	ctx, span := s.tracer.Start(ctx, "migrator.MigrateBatch", trace.WithAttributes(
		attribute.String("target", target),
		attribute.Int("records", len(records)),
	))
	defer span.End()

	report := BatchReport{Target: target, Outcomes: make([]Outcome, len(records))}

	plan, ok := s.registry.Lookup(target)
	if !ok {
		err := dErrors.Wrap(fmt.Errorf("%w: %q", ErrUnknownVersion, target), dErrors.CodeValidation, "unknown target version")
		for i, rec := range records {
			report.Outcomes[i] = Outcome{ID: recordID(rec), Status: StatusFailed, Err: err}
		}
		span.SetStatus(codes.Error, "unknown target version")
		s.finishBatch(ctx, &report)
		return report
	}

	// The plan is an immutable value shared by every task.
	now := s.now()
	var g errgroup.Group
	if s.maxWorkers > 0 {
		g.SetLimit(s.maxWorkers)
	}
	for i, rec := range records {
		if ctx.Err() != nil {
			report.Outcomes[i] = canceled(rec, ctx.Err())
			continue
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				report.Outcomes[i] = canceled(rec, ctx.Err())
				return nil
			}
			report.Outcomes[i] = s.migrateOne(ctx, rec, plan, now)
			return nil
		})
	}
	_ = g.Wait()

	s.finishBatch(ctx, &report)
	if n := report.Count(StatusFailed); n > 0 {
		span.SetStatus(codes.Error, fmt.Sprintf("%d records failed", n))
	}
	return report
}

func (s *Service) migrateOne(ctx context.Context, rec *models.TraceRecord, plan schema.Plan, now time.Time) Outcome {
	if rec == nil || rec.ID.IsNil() {
		return Outcome{Status: StatusFailed, Err: dErrors.New(dErrors.CodeBadRequest, "record without id")}
	}

	set, err := pendingSet(rec.Attributes, plan)
	if err != nil {
		return Outcome{ID: rec.ID, Status: StatusFailed, Err: dErrors.Wrap(err, dErrors.CodeInvariantViolation, "rename conflicts with existing attribute")}
	}
	if len(set) == 0 && rec.SemconvVersion == plan.Target() {
		return Outcome{ID: rec.ID, Status: StatusNoChange, Err: ErrNoChange}
	}

	// A started write is never cut short by the caller.
	modified, err := s.store.ApplyMigration(context.WithoutCancel(ctx), models.MigrationUpdate{
		ID:             rec.ID,
		Set:            set,
		SemconvVersion: plan.Target(),
		StoreTime:      now,
	})
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return Outcome{ID: rec.ID, Status: StatusFailed, Err: dErrors.Wrap(err, dErrors.CodeNotFound, "record not found")}
		}
		return Outcome{ID: rec.ID, Status: StatusFailed, Err: dErrors.Wrap(fmt.Errorf("%w: %w", ErrStoreUnavailable, err), dErrors.CodeUnavailable, "store unavailable")}
	}
	if modified == 0 {
		return Outcome{ID: rec.ID, Status: StatusNoChange, Err: ErrNoChange}
	}
	return Outcome{ID: rec.ID, Status: StatusOK, Renamed: len(set)}
}

func (s *Service) finishBatch(ctx context.Context, report *BatchReport) {
	for _, o := range report.Outcomes {
		report.Renamed += o.Renamed
		s.metrics.IncrementMigration(report.Target, string(o.Status), o.Renamed)
		if o.Status != StatusFailed && o.Status != StatusCanceled {
			continue
		}
		level := diagnostics.LevelError
		event := "migration_failed"
		if o.Status == StatusCanceled {
			level, event = diagnostics.LevelWarn, "migration_canceled"
		}
		ports.Emit(ctx, s.logger, s.sink, diagnostics.Entry{
			Level:     level,
			Component: diagnostics.ComponentMigrator,
			Event:     event,
			Message:   "record not migrated",
			Attrs:     []any{"record_id", o.ID.String(), "target", report.Target, "error", errString(o.Err)},
		})
	}

	ports.Emit(ctx, s.logger, s.sink, diagnostics.Entry{
		Level:     diagnostics.LevelInfo,
		Component: diagnostics.ComponentMigrator,
		Event:     "migration_batch_completed",
		Message:   "migration batch completed",
		Attrs: []any{
			"target", report.Target,
			"records", len(report.Outcomes),
			"ok", report.Count(StatusOK),
			"no_change", report.Count(StatusNoChange),
			"failed", report.Count(StatusFailed),
			"canceled", report.Count(StatusCanceled),
			"renamed", report.Renamed,
		},
	})
}

// MigrateVersion pages through every record tagged from and migrates it to to.
// The job holds the lease for to while it runs.
func (s *Service) MigrateVersion(ctx context.Context, from, to string, batchSize int) (*JobReport, error) {
	if !s.registry.IsKnown(from) {
		return nil, dErrors.Wrap(fmt.Errorf("%w: %q", ErrUnknownVersion, from), dErrors.CodeValidation, "unknown source version")
	}
	if _, ok := s.registry.Lookup(to); !ok {
		return nil, dErrors.Wrap(fmt.Errorf("%w: %q", ErrUnknownVersion, to), dErrors.CodeValidation, "unknown target version")
	}
	if batchSize <= 0 {
		return nil, dErrors.New(dErrors.CodeBadRequest, "batch size must be positive")
	}

	var lease ports.Lease
	if s.lock != nil {
		var err error
		lease, err = s.lock.Acquire(ctx, "migration:"+to, s.lockTTL)
		if err != nil {
			if errors.Is(err, sentinel.ErrAlreadyUsed) {
				return nil, dErrors.Wrap(fmt.Errorf("%w: %q", ErrMigrationInProgress, to), dErrors.CodeConflict, "migration already in progress")
			}
			return nil, dErrors.Wrap(fmt.Errorf("%w: %w", ErrStoreUnavailable, err), dErrors.CodeUnavailable, "job lock unavailable")
		}
		defer func() {
			if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
				s.logger.WarnContext(ctx, "failed to release migration lease", "target", to, "error", err)
			}
		}()
	}

	job := &JobReport{From: from, To: to, Statuses: make(map[Status]int)}
	var afterID models.RecordID
	for {
		if err := ctx.Err(); err != nil {
			return job, dErrors.Wrap(err, dErrors.CodeTimeout, "migration job canceled")
		}
		page, err := s.store.ListByVersion(ctx, from, afterID, batchSize)
		if err != nil {
			ports.Emit(ctx, s.logger, s.sink, diagnostics.Entry{
				Level:     diagnostics.LevelError,
				Component: diagnostics.ComponentMigrator,
				Event:     "migration_job_aborted",
				Message:   "failed to list records for migration",
				Attrs:     []any{"from", from, "to", to, "error", err.Error()},
			})
			return job, dErrors.Wrap(fmt.Errorf("%w: %w", ErrStoreUnavailable, err), dErrors.CodeUnavailable, "store unavailable")
		}
		if len(page) == 0 {
			break
		}
		job.add(s.MigrateBatch(ctx, page, to))
		afterID = page[len(page)-1].ID
		if len(page) < batchSize {
			break
		}
		if lease != nil {
			if err := s.renew(ctx, lease, from, to); err != nil {
				return job, err
			}
		}
	}

	ports.Emit(ctx, s.logger, s.sink, diagnostics.Entry{
		Level:     diagnostics.LevelInfo,
		Component: diagnostics.ComponentMigrator,
		Event:     "migration_job_completed",
		Message:   "migration job completed",
		Attrs:     []any{"from", from, "to", to, "batches", job.Batches, "records", job.Records, "renamed", job.Renamed},
	})
	return job, nil
}

// renew pushes the lease expiry out before the next page so a long job keeps
// exclusivity. A lease lost to expiry stops the job.
func (s *Service) renew(ctx context.Context, lease ports.Lease, from, to string) error {
	err := lease.Extend(ctx, s.lockTTL)
	if err == nil {
		return nil
	}
	ports.Emit(ctx, s.logger, s.sink, diagnostics.Entry{
		Level:     diagnostics.LevelError,
		Component: diagnostics.ComponentMigrator,
		Event:     "migration_job_aborted",
		Message:   "failed to renew migration lease",
		Attrs:     []any{"from", from, "to", to, "error", err.Error()},
	})
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.Wrap(fmt.Errorf("%w: %q", ErrLeaseLost, to), dErrors.CodeConflict, "migration lease lost")
	}
	return dErrors.Wrap(fmt.Errorf("%w: %w", ErrStoreUnavailable, err), dErrors.CodeUnavailable, "job lock unavailable")
}

func canceled(rec *models.TraceRecord, cause error) Outcome {
	return Outcome{ID: recordID(rec), Status: StatusCanceled, Err: fmt.Errorf("%w: %w", ErrCanceled, cause)}
}

func recordID(rec *models.TraceRecord) models.RecordID {
	if rec == nil {
		return ""
	}
	return rec.ID
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
