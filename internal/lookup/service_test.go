package lookup

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"tracekeeper/internal/platform/config"
	"tracekeeper/internal/platform/metrics"
	"tracekeeper/internal/schema"
	"tracekeeper/internal/trace/models"
	"tracekeeper/internal/trace/ports/mocks"
	"tracekeeper/internal/trace/store/memory"
	dErrors "tracekeeper/pkg/domain-errors"
)

type LookupSuite struct {
	suite.Suite
	ctx      context.Context
	store    *memory.Store
	registry *schema.Registry
	metrics  *metrics.Metrics
	service  *Service
}

func TestLookupSuite(t *testing.T) {
	suite.Run(t, new(LookupSuite))
}

func (s *LookupSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = memory.New()
	s.metrics = metrics.New(prometheus.NewRegistry())

	var err error
	s.registry, err = schema.FromPipeline(config.DefaultPipeline())
	s.Require().NoError(err)
	s.service, err = New(s.store, s.registry, WithMetrics(s.metrics))
	s.Require().NoError(err)
}

func (s *LookupSuite) insert(version string, attrs models.Attributes) models.RecordID {
	event := time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC)
	id, err := s.store.Insert(s.ctx, &models.TraceRecord{
		Attributes:     attrs,
		EventTime:      &event,
		StoreTime:      event,
		SemconvVersion: version,
		RegionID:       "EU",
	})
	s.Require().NoError(err)
	return id
}

// =============================================================================
// Location fallback
// =============================================================================

func (s *LookupSuite) TestFind() {
	s.Run("migrated records answer at the current location", func() {
		s.SetupTest()
		id := s.insert("1.32", models.Attributes{"trade_id": "T-1", "trade": map[string]any{"type": "spot"}})

		res, err := s.service.Find(s.ctx, Query{Match: models.AttributeMatch{"custom.trade_type": "spot"}})
		s.Require().NoError(err)
		s.Equal("1.32", res.Version)
		s.Equal(LocationCurrent, res.Location)
		s.Equal(models.AttributeMatch{"trade.type": "spot"}, res.Match)
		s.Require().Len(res.Records, 1)
		s.Equal(id, res.Records[0].ID)
	})

	s.Run("unmigrated records answer at the legacy location", func() {
		s.SetupTest()
		id := s.insert("1.25", models.Attributes{
			"trade_id": "T-2",
			"custom":   map[string]any{"trade_type": "perp", "chain_id": float64(8453)},
		})

		res, err := s.service.Find(s.ctx, Query{
			Version: "1.32",
			Match:   models.AttributeMatch{"trade.type": "perp", "chain.id": int64(8453)},
		})
		s.Require().NoError(err)
		s.Equal(LocationLegacy, res.Location)
		s.Equal(models.AttributeMatch{"custom.trade_type": "perp", "custom.chain_id": int64(8453)}, res.Match)
		s.Require().Len(res.Records, 1)
		s.Equal(id, res.Records[0].ID)
		s.Equal(float64(1), testutil.ToFloat64(s.metrics.Lookups.WithLabelValues("legacy")))
	})

	s.Run("current location wins when both layouts exist", func() {
		s.SetupTest()
		s.insert("1.25", models.Attributes{"custom": map[string]any{"trade_type": "spot"}})
		migrated := s.insert("1.32", models.Attributes{"trade": map[string]any{"type": "spot"}})

		res, err := s.service.Find(s.ctx, Query{Match: models.AttributeMatch{"trade.type": "spot"}})
		s.Require().NoError(err)
		s.Equal(LocationCurrent, res.Location)
		s.Require().Len(res.Records, 1)
		s.Equal(migrated, res.Records[0].ID)
	})

	s.Run("no match anywhere", func() {
		s.SetupTest()
		s.insert("1.32", models.Attributes{"trade": map[string]any{"type": "spot"}})

		res, err := s.service.Find(s.ctx, Query{Match: models.AttributeMatch{"trade.type": "swap"}})
		s.Require().NoError(err)
		s.Equal(LocationNone, res.Location)
		s.Empty(res.Records)
		s.Equal(models.AttributeMatch{"trade.type": "swap"}, res.Match)
	})

	s.Run("older target version leaves paths alone", func() {
		s.SetupTest()
		s.insert("1.25", models.Attributes{"custom": map[string]any{"trade_type": "spot"}})

		res, err := s.service.Find(s.ctx, Query{Version: "1.25", Match: models.AttributeMatch{"custom.trade_type": "spot"}})
		s.Require().NoError(err)
		s.Equal(LocationCurrent, res.Location)
		s.Len(res.Records, 1)
	})
}

func (s *LookupSuite) TestFindQueriesOnceWithoutRenamedPaths() {
	ctrl := gomock.NewController(s.T())
	store := mocks.NewMockTraceStore(ctrl)
	store.EXPECT().FindByAttributes(gomock.Any(), models.AttributeMatch{"trade_id": "T-9"}, MaxLimit).
		Return(nil, nil).Times(1)

	svc, err := New(store, s.registry)
	s.Require().NoError(err)

	res, err := svc.Find(s.ctx, Query{Match: models.AttributeMatch{"trade_id": "T-9"}, Limit: 5000})
	s.Require().NoError(err)
	s.Equal(LocationNone, res.Location)
}

// =============================================================================
// Rejections
// =============================================================================

func (s *LookupSuite) TestFindRejects() {
	cases := map[string]struct {
		query Query
		code  dErrors.Code
	}{
		"unknown version": {Query{Version: "9.9", Match: models.AttributeMatch{"a": "b"}}, dErrors.CodeValidation},
		"empty match":     {Query{}, dErrors.CodeBadRequest},
		"object value":    {Query{Match: models.AttributeMatch{"custom": map[string]any{}}}, dErrors.CodeBadRequest},
		"negative limit":  {Query{Match: models.AttributeMatch{"a": "b"}, Limit: -1}, dErrors.CodeBadRequest},
		"paths collide after remapping": {Query{Match: models.AttributeMatch{
			"custom.trade_type": "spot",
			"trade.type":        "perp",
		}}, dErrors.CodeBadRequest},
	}
	for name, tc := range cases {
		s.Run(name, func() {
			_, err := s.service.Find(s.ctx, tc.query)
			s.Require().Error(err)
			s.True(dErrors.HasCode(err, tc.code), "got %v", err)
		})
	}
}

func (s *LookupSuite) TestFindStoreFailure() {
	ctrl := gomock.NewController(s.T())
	store := mocks.NewMockTraceStore(ctrl)
	store.EXPECT().FindByAttributes(gomock.Any(), gomock.Any(), DefaultLimit).
		Return(nil, errors.New("connection reset"))

	svc, err := New(store, s.registry)
	s.Require().NoError(err)

	_, err = svc.Find(s.ctx, Query{Match: models.AttributeMatch{"trade.type": "spot"}})
	s.ErrorIs(err, ErrStoreUnavailable)
	s.True(dErrors.HasCode(err, dErrors.CodeUnavailable))
}
