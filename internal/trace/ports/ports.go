// Package ports defines the interfaces shared by the trace pipeline services.
// Interfaces live here when more than one service consumes them.
package ports

import (
	"context"
	"log/slog"
	"time"

	"tracekeeper/internal/diagnostics"
	"tracekeeper/internal/trace/models"
	"tracekeeper/pkg/attrs"
	"tracekeeper/pkg/requestcontext"
)

//go:generate mockgen -source=ports.go -destination=mocks/mocks.go -package=mocks TraceStore,DiagnosticSink,JobLock,Lease

// RecordInserter persists newly admitted records.
type RecordInserter interface {
	// Insert stores a single record and returns its store-assigned id.
	Insert(ctx context.Context, rec *models.TraceRecord) (models.RecordID, error)
}

// RecordMigrator reads and rewrites persisted records.
type RecordMigrator interface {
	// Get fetches one record by id.
	Get(ctx context.Context, id models.RecordID) (*models.TraceRecord, error)

	// ListByVersion pages through records tagged with version, ordered by id, strictly after afterID.
	ListByVersion(ctx context.Context, version string, afterID models.RecordID, limit int) ([]*models.TraceRecord, error)

	// ApplyMigration performs a single-document update keyed by id and reports how many documents changed.
	ApplyMigration(ctx context.Context, update models.MigrationUpdate) (modified int64, err error)
}

// RecordFinder looks records up by attribute values.
type RecordFinder interface {
	// FindByAttributes returns up to limit records, ordered by id, whose stored
	// attributes equal every value in match. A limit of zero or less means no limit.
	FindByAttributes(ctx context.Context, match models.AttributeMatch, limit int) ([]*models.TraceRecord, error)
}

// CorpusAggregator runs read-only, corpus-wide aggregations.
type CorpusAggregator interface {
	// FieldTypes groups every attribute path with the distinct value types observed for it.
	FieldTypes(ctx context.Context) ([]models.FieldTypes, error)

	// TimeGaps returns records whose store time exceeds their event time by more than threshold.
	TimeGaps(ctx context.Context, threshold time.Duration) ([]models.TimeGap, error)

	// DistinctTopLevelFields returns the distinct top-level attribute keys in the corpus.
	DistinctTopLevelFields(ctx context.Context) ([]string, error)
}

// TraceStore is the full persistent-store capability.
type TraceStore interface {
	RecordInserter
	RecordMigrator
	RecordFinder
	CorpusAggregator

	// EnsureIndexes creates the trade_id/event-time index and the unique version-tag index.
	EnsureIndexes(ctx context.Context, knownVersions []string) error

	// Ping reports whether the store is reachable.
	Ping(ctx context.Context) error
}

// DiagnosticSink is the append-only, leveled diagnostic log.
type DiagnosticSink interface {
	Record(ctx context.Context, entry diagnostics.Entry) error
}

// JobLock grants exclusive, expiring leases on named jobs.
type JobLock interface {
	// Acquire takes the lease or fails with sentinel.ErrAlreadyUsed.
	Acquire(ctx context.Context, key string, ttl time.Duration) (Lease, error)
}

// Lease is one held job lease.
type Lease interface {
	// Extend pushes the expiry to ttl from now. It fails with sentinel.ErrNotFound
	// once the lease has expired or been taken over.
	Extend(ctx context.Context, ttl time.Duration) error
	// Release frees the lease if it is still ours. Releasing a lost lease is a no-op.
	Release(ctx context.Context) error
}

// Emit writes a diagnostic entry to the structured logger and the sink, tagging it
// with the request id when one is in ctx. A sink failure is logged and otherwise ignored so diagnostics never abort processing.
func Emit(ctx context.Context, logger *slog.Logger, sink DiagnosticSink, entry diagnostics.Entry) {
	if entry.Time.IsZero() {
		entry.Time = time.Now()
	}
	if id := requestcontext.RequestID(ctx); id != "" {
		if _, ok := attrs.Value(entry.Attrs, "request_id"); !ok {
			entry.Attrs = append(entry.Attrs, "request_id", id)
		}
	}
	if logger != nil {
		logger.Log(ctx, entry.Level.SlogLevel(), entry.Message,
			append([]any{"component", entry.Component, "event", entry.Event}, entry.Attrs...)...)
	}
	if sink == nil {
		return
	}
	if err := sink.Record(ctx, entry); err != nil && logger != nil {
		logger.WarnContext(ctx, "failed to record diagnostic entry",
			"component", entry.Component,
			"event", entry.Event,
			"error", err,
		)
	}
}
