package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"tracekeeper/internal/diagnostics"
	"tracekeeper/internal/platform/config"
	"tracekeeper/internal/platform/metrics"
	"tracekeeper/internal/trace/models"
	"tracekeeper/internal/trace/ports/mocks"
	"tracekeeper/internal/trace/store/memory"
	"tracekeeper/internal/validator"
	dErrors "tracekeeper/pkg/domain-errors"
	"tracekeeper/pkg/platform/sentinel"
)

// =============================================================================
// Dispatcher Test Suite
// =============================================================================
// Retry bounds are asserted against a mocked store so every insert call is counted.

type DispatcherSuite struct {
	suite.Suite
	ctrl     *gomock.Controller
	store    *mocks.MockTraceStore
	recorder *diagnostics.Recorder
	metrics  *metrics.Metrics
	service  *Service
	ctx      context.Context
	now      time.Time
}

func TestDispatcherSuite(t *testing.T) {
	suite.Run(t, new(DispatcherSuite))
}

const maxRetries = 3

func (s *DispatcherSuite) SetupTest() {
	s.ctx = context.Background()
	s.ctrl = gomock.NewController(s.T())
	s.store = mocks.NewMockTraceStore(s.ctrl)
	s.recorder = diagnostics.NewRecorder(0)
	s.metrics = metrics.New(prometheus.NewRegistry())
	s.now = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

	regions, err := NewRegionSet([]RegionConfig{
		{ID: "US", Endpoint: "us.zero0x.trade", MaxRetries: maxRetries},
		{ID: "EU", Endpoint: "eu.zero0x.trade", MaxRetries: maxRetries},
	})
	s.Require().NoError(err)

	s.service, err = New(s.store, regions, "1.32",
		WithDiagnostics(s.recorder),
		WithMetrics(s.metrics),
		WithClock(func() time.Time { return s.now }),
	)
	s.Require().NoError(err)
}

func candidate() *models.TraceRecord {
	event := time.Date(2025, 6, 1, 8, 59, 0, 0, time.UTC)
	return &models.TraceRecord{
		Attributes: models.Attributes{"trade_id": "T-9", "level": "error"},
		EventTime:  &event,
	}
}

func (s *DispatcherSuite) attemptEntries() []diagnostics.Entry {
	return s.recorder.ByEvent("dispatch_attempt")
}

// =============================================================================
// Constructor Tests
// =============================================================================

func (s *DispatcherSuite) TestNew() {
	regions, err := NewRegionSet([]RegionConfig{{ID: "US", MaxRetries: 1}})
	s.Require().NoError(err)

	s.Run("nil store", func() {
		_, err := New(nil, regions, "1.32")
		s.ErrorContains(err, "trace store is required")
	})
	s.Run("nil regions", func() {
		_, err := New(s.store, nil, "1.32")
		s.ErrorContains(err, "region set is required")
	})
	s.Run("empty version", func() {
		_, err := New(s.store, regions, "")
		s.ErrorContains(err, "current semconv version is required")
	})
}

// =============================================================================
// Enrichment
// =============================================================================

func (s *DispatcherSuite) TestDispatchEnrichesRecord() {
	in := candidate()
	in.Attributes["region_id"] = "spoofed"

	s.store.EXPECT().Insert(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, rec *models.TraceRecord) (models.RecordID, error) {
			s.Equal("EU", rec.RegionID)
			s.Equal("1.32", rec.SemconvVersion)
			s.Equal(s.now, rec.StoreTime)
			s.Equal("EU", rec.StoredAttributes()["region_id"])
			s.Equal("1.32", rec.StoredAttributes()["semconv_version"])
			return "rec-1", nil
		})

	res, err := s.service.Dispatch(s.ctx, "EU", in)
	s.Require().NoError(err)
	s.Equal(&Result{ID: "rec-1", Region: "EU", Attempts: 1}, res)

	s.Empty(in.RegionID, "caller record is not modified")
	s.Equal("spoofed", in.Attributes["region_id"])
}

// =============================================================================
// Retry Budget
// =============================================================================

func (s *DispatcherSuite) TestRetryBound() {
	for k := 0; k < maxRetries; k++ {
		s.Run(fmt.Sprintf("%d failures then success", k), func() {
			s.SetupTest()
			failures := 0
			s.store.EXPECT().Insert(gomock.Any(), gomock.Any()).Times(k + 1).DoAndReturn(
				func(context.Context, *models.TraceRecord) (models.RecordID, error) {
					if failures < k {
						failures++
						return "", errors.New("connection reset")
					}
					return "rec-ok", nil
				})

			res, err := s.service.Dispatch(s.ctx, "US", candidate())
			s.Require().NoError(err)
			s.Equal(k+1, res.Attempts)

			attempts := s.attemptEntries()
			s.Require().Len(attempts, k+1)
			for _, e := range attempts[:k] {
				s.Equal(diagnostics.LevelWarn, e.Level)
			}
			s.Equal(diagnostics.LevelInfo, attempts[k].Level)
		})
	}

	for _, k := range []int{maxRetries, maxRetries + 2} {
		s.Run(fmt.Sprintf("%d failures exhaust the budget", k), func() {
			s.SetupTest()
			s.store.EXPECT().Insert(gomock.Any(), gomock.Any()).
				Times(maxRetries).
				Return(models.RecordID(""), errors.New("connection refused"))

			_, err := s.service.Dispatch(s.ctx, "US", candidate())
			s.Require().Error(err)
			s.ErrorIs(err, ErrMaxRetriesExceeded)
			s.True(dErrors.HasCode(err, dErrors.CodeUnavailable))

			s.Len(s.attemptEntries(), maxRetries)
			failed := s.recorder.ByEvent("dispatch_failed")
			s.Require().Len(failed, 1)
			s.Equal(diagnostics.LevelError, failed[0].Level)
			s.Equal(float64(maxRetries), testutil.ToFloat64(s.metrics.DispatchAttempts.WithLabelValues("US", "failed")))
		})
	}
}

func (s *DispatcherSuite) TestUnknownRegionMakesNoStoreCalls() {
	s.store.EXPECT().Insert(gomock.Any(), gomock.Any()).Times(0)

	_, err := s.service.Dispatch(s.ctx, "APAC", candidate())
	s.Require().Error(err)
	s.ErrorIs(err, ErrUnknownRegion)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	s.Empty(s.attemptEntries())
	s.Len(s.recorder.ByEvent("dispatch_unknown_region"), 1)
}

func (s *DispatcherSuite) TestConflictIsNotRetried() {
	s.store.EXPECT().Insert(gomock.Any(), gomock.Any()).
		Times(1).
		Return(models.RecordID(""), fmt.Errorf("insert: %w", sentinel.ErrConflict))

	_, err := s.service.Dispatch(s.ctx, "US", candidate())
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
}

func (s *DispatcherSuite) TestCancelledCallerStopsBetweenAttempts() {
	ctx, cancel := context.WithCancel(s.ctx)
	s.store.EXPECT().Insert(gomock.Any(), gomock.Any()).
		Times(1).
		DoAndReturn(func(insertCtx context.Context, _ *models.TraceRecord) (models.RecordID, error) {
			cancel()
			s.NoError(insertCtx.Err(), "in-flight insert is not cancelled")
			return "", errors.New("timeout")
		})

	_, err := s.service.Dispatch(ctx, "US", candidate())
	s.ErrorIs(err, ErrStoreUnavailable)
	s.ErrorIs(err, context.Canceled)
	s.Len(s.recorder.ByEvent("dispatch_abandoned"), 1)
}

// =============================================================================
// DispatchCandidate
// =============================================================================

func (s *DispatcherSuite) TestDispatchCandidate() {
	s.Run("rejected candidate is never inserted", func() {
		s.store.EXPECT().Insert(gomock.Any(), gomock.Any()).Times(0)
		rec := candidate()
		delete(rec.Attributes, "trade_id")

		_, err := s.service.DispatchCandidate(s.ctx, "US", rec)
		s.ErrorIs(err, validator.ErrMissingTradeID)
		s.Len(s.recorder.ByEvent("validation_rejected"), 1)
	})

	s.Run("valid candidate is dispatched", func() {
		s.store.EXPECT().Insert(gomock.Any(), gomock.Any()).Return(models.RecordID("rec-2"), nil)
		res, err := s.service.DispatchCandidate(s.ctx, "US", candidate())
		s.Require().NoError(err)
		s.Equal(models.RecordID("rec-2"), res.ID)
	})
}

// =============================================================================
// Region Set
// =============================================================================

func (s *DispatcherSuite) TestRegionSet() {
	s.Run("defaults from pipeline", func() {
		set, err := RegionsFromPipeline(config.DefaultPipeline())
		s.Require().NoError(err)
		s.Equal([]string{"US", "EU"}, set.IDs())
		us, ok := set.Lookup("US")
		s.True(ok)
		s.Equal("us.zero0x.trade", us.Endpoint)
		s.Equal(3, us.MaxRetries)
	})

	s.Run("invalid sets", func() {
		_, err := NewRegionSet(nil)
		s.Error(err)
		_, err = NewRegionSet([]RegionConfig{{ID: "US", MaxRetries: 0}})
		s.Error(err)
		_, err = NewRegionSet([]RegionConfig{{ID: "US", MaxRetries: 1}, {ID: "US", MaxRetries: 1}})
		s.Error(err)
	})
}

func TestDispatchWithMemoryStore(t *testing.T) {
	store := memory.New()
	regions, err := RegionsFromPipeline(config.DefaultPipeline())
	if err != nil {
		t.Fatal(err)
	}
	svc, err := New(store, regions, "1.32")
	if err != nil {
		t.Fatal(err)
	}

	res, err := svc.DispatchCandidate(context.Background(), "US", candidate())
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	got, err := store.Get(context.Background(), res.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.RegionID != "US" || got.SemconvVersion != "1.32" {
		t.Fatalf("unexpected tags: region=%q version=%q", got.RegionID, got.SemconvVersion)
	}
}
