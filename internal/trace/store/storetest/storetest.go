// Package storetest is a conformance suite shared by every TraceStore backend.
package storetest

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/stretchr/testify/suite"

	"tracekeeper/internal/trace/models"
	"tracekeeper/internal/trace/ports"
	"tracekeeper/pkg/platform/sentinel"
)

// Suite exercises a TraceStore. NewStore must return an empty store for every test.
type Suite struct {
	suite.Suite
	NewStore func() ports.TraceStore

	store ports.TraceStore
	ctx   context.Context
}

func (s *Suite) SetupTest() {
	s.ctx = context.Background()
	s.store = s.NewStore()
	s.Require().NoError(s.store.EnsureIndexes(s.ctx, []string{"1.25", "1.32"}))
}

var base = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func (s *Suite) insert(attrs models.Attributes, version string, eventTime *time.Time, storeTime time.Time) models.RecordID {
	id, err := s.store.Insert(s.ctx, &models.TraceRecord{
		Attributes:     attrs,
		EventTime:      eventTime,
		StoreTime:      storeTime,
		SemconvVersion: version,
		RegionID:       "US",
	})
	s.Require().NoError(err)
	s.Require().False(id.IsNil())
	return id
}

func ptr(t time.Time) *time.Time { return &t }

// =============================================================================
// Insert / Get
// =============================================================================

func (s *Suite) TestInsertAndGet() {
	s.Run("round trips attributes and tags", func() {
		id := s.insert(models.Attributes{
			"trade_id": "T-1",
			"level":    "info",
			"custom":   map[string]any{"chain_id": float64(1)},
		}, "1.25", ptr(base), base.Add(time.Second))

		got, err := s.store.Get(s.ctx, id)
		s.Require().NoError(err)
		s.Equal(id, got.ID)
		s.Equal("1.25", got.SemconvVersion)
		s.Equal("US", got.RegionID)
		s.Equal("T-1", got.Attributes["trade_id"])
		chain, ok := got.Attributes.Lookup("custom.chain_id")
		s.True(ok)
		s.EqualValues(1, chain)
		s.NotContains(got.Attributes, models.AttrSemconvVersion)
		s.Require().NotNil(got.EventTime)
		s.True(base.Equal(*got.EventTime))
		s.True(base.Add(time.Second).Equal(got.StoreTime))
	})

	s.Run("missing record is not found", func() {
		_, err := s.store.Get(s.ctx, "0190b1e4-0000-7000-8000-000000000000")
		s.True(errors.Is(err, sentinel.ErrNotFound), "got %v", err)
	})
}

// =============================================================================
// ListByVersion
// =============================================================================

func (s *Suite) TestListByVersionPages() {
	var ids []models.RecordID
	for range 5 {
		ids = append(ids, s.insert(models.Attributes{"trade_id": "T"}, "1.25", ptr(base), base))
	}
	s.insert(models.Attributes{"trade_id": "other"}, "1.32", ptr(base), base)

	first, err := s.store.ListByVersion(s.ctx, "1.25", "", 3)
	s.Require().NoError(err)
	s.Require().Len(first, 3)

	rest, err := s.store.ListByVersion(s.ctx, "1.25", first[len(first)-1].ID, 3)
	s.Require().NoError(err)
	s.Require().Len(rest, 2)

	var seen []models.RecordID
	for _, r := range append(first, rest...) {
		s.Equal("1.25", r.SemconvVersion)
		seen = append(seen, r.ID)
	}
	s.ElementsMatch(ids, seen)
	for i := 1; i < len(seen); i++ {
		s.Less(string(seen[i-1]), string(seen[i]), "pages are ordered by id")
	}
}

// =============================================================================
// ApplyMigration
// =============================================================================

func (s *Suite) TestApplyMigration() {
	s.Run("sets nested paths additively", func() {
		id := s.insert(models.Attributes{
			"trade_id": "T-2",
			"custom":   map[string]any{"trade_type": "spot"},
		}, "1.25", ptr(base), base)

		now := base.Add(time.Hour)
		n, err := s.store.ApplyMigration(s.ctx, models.MigrationUpdate{
			ID:             id,
			Set:            map[string]any{"trade.type": "spot"},
			SemconvVersion: "1.32",
			StoreTime:      now,
		})
		s.Require().NoError(err)
		s.EqualValues(1, n)

		got, err := s.store.Get(s.ctx, id)
		s.Require().NoError(err)
		s.Equal("1.32", got.SemconvVersion)
		s.True(now.Equal(got.StoreTime))
		v, ok := got.Attributes.Lookup("trade.type")
		s.True(ok)
		s.Equal("spot", v)
		old, ok := got.Attributes.Lookup("custom.trade_type")
		s.True(ok, "old path is retained")
		s.Equal("spot", old)
	})

	s.Run("keeps untouched integers exact", func() {
		id := s.insert(models.Attributes{
			"trade_id": "T-big",
			"order_no": int64(9007199254740993),
			"seq":      uint64(math.MaxUint64),
			"custom":   map[string]any{"chain_id": int64(42161), "fee": 0.25},
		}, "1.25", ptr(base), base)

		n, err := s.store.ApplyMigration(s.ctx, models.MigrationUpdate{
			ID:             id,
			Set:            map[string]any{"chain.id": int64(42161)},
			SemconvVersion: "1.32",
			StoreTime:      base.Add(time.Hour),
		})
		s.Require().NoError(err)
		s.EqualValues(1, n)

		got, err := s.store.Get(s.ctx, id)
		s.Require().NoError(err)
		s.Equal(int64(9007199254740993), got.Attributes["order_no"])
		s.Equal(uint64(math.MaxUint64), got.Attributes["seq"])
		chain, _ := got.Attributes.Lookup("chain.id")
		s.Equal(int64(42161), chain)
		fee, _ := got.Attributes.Lookup("custom.fee")
		s.Equal(0.25, fee)
	})

	s.Run("identical update modifies nothing", func() {
		id := s.insert(models.Attributes{"trade_id": "T-3", "trade": map[string]any{"type": "perp"}}, "1.32", ptr(base), base)

		n, err := s.store.ApplyMigration(s.ctx, models.MigrationUpdate{
			ID:             id,
			Set:            map[string]any{"trade.type": "perp"},
			SemconvVersion: "1.32",
			StoreTime:      base.Add(time.Hour),
		})
		s.Require().NoError(err)
		s.EqualValues(0, n)

		got, err := s.store.Get(s.ctx, id)
		s.Require().NoError(err)
		s.True(base.Equal(got.StoreTime), "store time untouched on no-op")
	})

	s.Run("missing record", func() {
		_, err := s.store.ApplyMigration(s.ctx, models.MigrationUpdate{
			ID:             "0190b1e4-0000-7000-8000-000000000001",
			SemconvVersion: "1.32",
			StoreTime:      base,
		})
		s.True(errors.Is(err, sentinel.ErrNotFound), "got %v", err)
	})
}

// =============================================================================
// Attribute lookup
// =============================================================================

func (s *Suite) TestFindByAttributes() {
	spot := s.insert(models.Attributes{
		"trade_id": "T-1",
		"trade":    map[string]any{"type": "spot"},
		"chain":    map[string]any{"id": int64(8453)},
	}, "1.32", ptr(base), base)
	legacy := s.insert(models.Attributes{
		"trade_id": "T-2",
		"custom":   map[string]any{"trade_type": "spot", "chain_id": float64(8453)},
	}, "1.25", ptr(base), base)
	perp := s.insert(models.Attributes{
		"trade_id": "T-3",
		"trade":    map[string]any{"type": "perp"},
		"seq":      uint64(math.MaxUint64),
	}, "1.32", ptr(base), base)

	ids := func(recs []*models.TraceRecord) []models.RecordID {
		out := make([]models.RecordID, 0, len(recs))
		for _, r := range recs {
			out = append(out, r.ID)
		}
		return out
	}

	s.Run("matches nested paths", func() {
		got, err := s.store.FindByAttributes(s.ctx, models.AttributeMatch{"trade.type": "spot"}, 0)
		s.Require().NoError(err)
		s.Equal([]models.RecordID{spot}, ids(got))
		s.Equal("1.32", got[0].SemconvVersion)
	})

	s.Run("numbers compare by value across stored types", func() {
		got, err := s.store.FindByAttributes(s.ctx, models.AttributeMatch{"custom.chain_id": int64(8453)}, 0)
		s.Require().NoError(err)
		s.Equal([]models.RecordID{legacy}, ids(got))

		got, err = s.store.FindByAttributes(s.ctx, models.AttributeMatch{"seq": uint64(math.MaxUint64)}, 0)
		s.Require().NoError(err)
		s.Equal([]models.RecordID{perp}, ids(got))
	})

	s.Run("every path must match", func() {
		got, err := s.store.FindByAttributes(s.ctx, models.AttributeMatch{"trade.type": "spot", "trade_id": "T-3"}, 0)
		s.Require().NoError(err)
		s.Empty(got)
	})

	s.Run("store tags are matchable and limit applies in id order", func() {
		got, err := s.store.FindByAttributes(s.ctx, models.AttributeMatch{models.AttrRegionID: "US"}, 2)
		s.Require().NoError(err)
		s.Require().Len(got, 2)
		s.Less(got[0].ID.String(), got[1].ID.String())
	})

	s.Run("invalid match", func() {
		_, err := s.store.FindByAttributes(s.ctx, models.AttributeMatch{"trade": map[string]any{"type": "spot"}}, 0)
		s.ErrorIs(err, models.ErrInvalidMatch)
	})
}

// =============================================================================
// Aggregations
// =============================================================================

func (s *Suite) TestFieldTypes() {
	s.insert(models.Attributes{"x": "text", "nested": map[string]any{"a": true}}, "", ptr(base), base)
	s.insert(models.Attributes{"x": float64(7), "nested": map[string]any{"a": false}}, "", ptr(base), base)

	rows, err := s.store.FieldTypes(s.ctx)
	s.Require().NoError(err)

	byPath := make(map[string][]string, len(rows))
	for _, r := range rows {
		byPath[r.Path] = r.Types
	}
	s.ElementsMatch([]string{models.TypeNumber, models.TypeString}, byPath["x"])
	s.Equal([]string{models.TypeObject}, byPath["nested"])
	s.Equal([]string{models.TypeBool}, byPath["nested.a"])
}

func (s *Suite) TestTimeGaps() {
	slow := s.insert(models.Attributes{"trade_id": "slow"}, "1.32", ptr(base), base.Add(7200*time.Second))
	s.insert(models.Attributes{"trade_id": "fast"}, "1.32", ptr(base), base.Add(1800*time.Second))
	s.insert(models.Attributes{"trade_id": "edge"}, "1.32", ptr(base), base.Add(3600*time.Second))
	s.insert(models.Attributes{"trade_id": "no-time"}, "1.32", nil, base)

	gaps, err := s.store.TimeGaps(s.ctx, 3600*time.Second)
	s.Require().NoError(err)
	s.Require().Len(gaps, 1)
	s.Equal(slow, gaps[0].ID)
	s.Equal(7200*time.Second, gaps[0].Gap)
}

func (s *Suite) TestDistinctTopLevelFields() {
	s.insert(models.Attributes{"a": 1, "b": map[string]any{"c": 1}}, "", ptr(base), base)
	s.insert(models.Attributes{"a": 2, "d": "x"}, "", ptr(base), base)

	fields, err := s.store.DistinctTopLevelFields(s.ctx)
	s.Require().NoError(err)
	s.ElementsMatch([]string{"a", "b", "d", models.AttrRegionID}, fields)
}
