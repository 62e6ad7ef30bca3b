package quality

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"tracekeeper/internal/diagnostics"
	"tracekeeper/internal/platform/metrics"
	"tracekeeper/internal/trace/models"
	"tracekeeper/internal/trace/ports/mocks"
	"tracekeeper/internal/trace/store/memory"
	dErrors "tracekeeper/pkg/domain-errors"
)

type AuditorSuite struct {
	suite.Suite
	ctx      context.Context
	store    *memory.Store
	recorder *diagnostics.Recorder
	metrics  *metrics.Metrics
	service  *Service
	base     time.Time
}

func TestAuditorSuite(t *testing.T) {
	suite.Run(t, new(AuditorSuite))
}

func (s *AuditorSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = memory.New()
	s.recorder = diagnostics.NewRecorder(0)
	s.metrics = metrics.New(prometheus.NewRegistry())
	s.base = time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC)

	var err error
	s.service, err = New(s.store, DefaultThresholds(),
		WithDiagnostics(s.recorder),
		WithMetrics(s.metrics),
	)
	s.Require().NoError(err)
}

func (s *AuditorSuite) insert(attrs models.Attributes, gap time.Duration) models.RecordID {
	event := s.base
	id, err := s.store.Insert(s.ctx, &models.TraceRecord{
		Attributes: attrs,
		EventTime:  &event,
		StoreTime:  event.Add(gap),
	})
	s.Require().NoError(err)
	return id
}

// =============================================================================
// Constructor Tests
// =============================================================================

func (s *AuditorSuite) TestNew() {
	_, err := New(nil, DefaultThresholds())
	s.ErrorContains(err, "trace store is required")
	_, err = New(s.store, Thresholds{MaxFields: 0, TimeGap: time.Hour})
	s.Error(err)
	_, err = New(s.store, Thresholds{MaxFields: 10})
	s.Error(err)
}

// =============================================================================
// Scans
// =============================================================================

func (s *AuditorSuite) TestMixedTypeFinding() {
	s.insert(models.Attributes{"trade_id": "T-1", "x": "text"}, time.Second)
	s.insert(models.Attributes{"trade_id": "T-2", "x": float64(42)}, time.Second)

	report, err := s.service.Audit(s.ctx)
	s.Require().NoError(err)

	s.Require().Len(report.MixedTypes, 1)
	s.Equal(Finding{Kind: KindMixedType, Path: "x", Types: []string{"number", "string"}}, report.MixedTypes[0])
	s.Equal(1, report.RepairIntents.TypeReconciliations)
	s.Equal(1.0, testutil.ToFloat64(s.metrics.Findings.WithLabelValues("mixed_type")))
}

func (s *AuditorSuite) TestNestedTypeDrift() {
	s.insert(models.Attributes{"trade": map[string]any{"size": "1.5"}}, time.Second)
	s.insert(models.Attributes{"trade": map[string]any{"size": 1.5}}, time.Second)

	report, err := s.service.Audit(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(report.MixedTypes, 1)
	s.Equal("trade.size", report.MixedTypes[0].Path)
}

func (s *AuditorSuite) TestExcessiveFields() {
	s.Run("101 distinct paths over a cap of 100", func() {
		for r := range 3 {
			attrs := models.Attributes{}
			for i := r * 40; i < (r+1)*40 && i < 101; i++ {
				attrs[fmt.Sprintf("f%03d", i)] = i
			}
			s.insert(attrs, time.Second)
		}

		report, err := s.service.Audit(s.ctx)
		s.Require().NoError(err)
		s.Equal(101, report.DistinctTopLevelFields)
		s.Require().NotNil(report.Excess)
		s.Equal(Finding{Kind: KindExcessiveFields, Overflow: 1}, *report.Excess)
		s.Equal(1, report.RepairIntents.FieldTrims)
	})

	s.Run("at the cap is not excessive", func() {
		s.SetupTest()
		attrs := models.Attributes{}
		for i := range 100 {
			attrs[fmt.Sprintf("f%03d", i)] = i
		}
		s.insert(attrs, time.Second)

		report, err := s.service.Audit(s.ctx)
		s.Require().NoError(err)
		s.Nil(report.Excess)
	})
}

func (s *AuditorSuite) TestTimeGaps() {
	slow := s.insert(models.Attributes{"trade_id": "slow"}, 7200*time.Second)
	s.insert(models.Attributes{"trade_id": "fast"}, 1800*time.Second)

	report, err := s.service.Audit(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(report.TimeGaps, 1)
	s.Equal(slow, report.TimeGaps[0].RecordID)
	s.Equal(7200*time.Second, report.TimeGaps[0].Gap)
	s.Equal(7200.0, report.TimeGaps[0].GapSeconds)
}

func (s *AuditorSuite) TestCleanCorpusHasNoFindings() {
	s.insert(models.Attributes{"trade_id": "T-1", "level": "info"}, time.Minute)
	s.insert(models.Attributes{"trade_id": "T-2", "level": "warn"}, time.Minute)

	report, err := s.service.Audit(s.ctx)
	s.Require().NoError(err)
	s.Empty(report.Findings())
	s.Equal(RepairIntents{}, report.RepairIntents)

	s.Len(s.recorder.ByEvent("audit_scan_completed"), 3, "one summary per scan")
	s.Empty(s.recorder.ByEvent("audit_finding"))
	s.Len(s.recorder.ByEvent("audit_repair_intent"), 1)
}

func (s *AuditorSuite) TestAuditDoesNotMutateStore() {
	id := s.insert(models.Attributes{"x": "a", "trade_id": "T"}, 7200*time.Second)
	s.insert(models.Attributes{"x": 1}, time.Second)
	before, err := s.store.Get(s.ctx, id)
	s.Require().NoError(err)

	_, err = s.service.Audit(s.ctx)
	s.Require().NoError(err)

	after, err := s.store.Get(s.ctx, id)
	s.Require().NoError(err)
	s.Equal(before, after)
	s.Equal(2, s.store.Len())
}

func (s *AuditorSuite) TestStoreFailureAbortsAudit() {
	ctrl := gomock.NewController(s.T())
	store := mocks.NewMockTraceStore(ctrl)
	store.EXPECT().FieldTypes(gomock.Any()).Return(nil, errors.New("connection refused"))
	store.EXPECT().TimeGaps(gomock.Any(), gomock.Any()).Return(nil, nil).AnyTimes()
	store.EXPECT().DistinctTopLevelFields(gomock.Any()).Return(nil, nil).AnyTimes()

	svc, err := New(store, DefaultThresholds(), WithDiagnostics(s.recorder))
	s.Require().NoError(err)

	_, err = svc.Audit(s.ctx)
	s.Require().Error(err)
	s.ErrorIs(err, ErrStoreUnavailable)
	s.True(dErrors.HasCode(err, dErrors.CodeUnavailable))
	s.Len(s.recorder.ByEvent("audit_aborted"), 1)
}

// =============================================================================
// Report Output
// =============================================================================

func fixedReport(t *testing.T) Report {
	t.Helper()
	ctrl := gomock.NewController(t)
	store := mocks.NewMockTraceStore(ctrl)
	store.EXPECT().FieldTypes(gomock.Any()).Return([]models.FieldTypes{
		{Path: "level", Types: []string{"string"}},
		{Path: "x", Types: []string{"string", "number"}},
	}, nil)
	store.EXPECT().TimeGaps(gomock.Any(), time.Hour).Return([]models.TimeGap{
		{ID: "rec-1", Gap: 2 * time.Hour},
	}, nil)
	store.EXPECT().DistinctTopLevelFields(gomock.Any()).Return([]string{"level", "trade_id", "x"}, nil)

	svc, err := New(store, Thresholds{MaxFields: 2, TimeGap: time.Hour},
		WithClock(func() time.Time { return time.Date(2025, 8, 1, 12, 0, 0, 0, time.UTC) }),
	)
	require.NoError(t, err)

	report, err := svc.Audit(context.Background())
	require.NoError(t, err)
	return report
}

func TestWriteReportGolden(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteReport(&buf, fixedReport(t)))

	g := goldie.New(t)
	g.Assert(t, "audit_report", buf.Bytes())
}

func TestWriteReportFile(t *testing.T) {
	report := fixedReport(t)

	for _, name := range []string{"report.json", "report.json.zst"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)
			require.NoError(t, WriteReportFile(path, report))

			got, err := ReadReportFile(path)
			require.NoError(t, err)
			require.Equal(t, report.GeneratedAt, got.GeneratedAt)
			require.Equal(t, report.MixedTypes, got.MixedTypes)
			require.Equal(t, report.TimeGaps, got.TimeGaps)
			require.Equal(t, report.Excess, got.Excess)
			require.Equal(t, report.RepairIntents, got.RepairIntents)
		})
	}
}
