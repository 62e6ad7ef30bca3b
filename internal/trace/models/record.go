package models

import (
	"maps"
	"reflect"
	"slices"
	"strings"
	"time"
)

// Attribute keys with meaning to the pipeline.
const (
	AttrTradeID        = "trade_id"
	AttrLevel          = "level"
	AttrRegionID       = "region_id"
	AttrSemconvVersion = "semconv_version"
)

// IsReservedPath reports whether path is, or lies under, an attribute the store
// tags itself (region and semantic-convention version). Renames must not touch them.
func IsReservedPath(path string) bool {
	for _, key := range []string{AttrRegionID, AttrSemconvVersion} {
		if path == key || strings.HasPrefix(path, key+".") {
			return true
		}
	}
	return false
}

// RecordID is the store-assigned identifier of a trace record.
type RecordID string

func (id RecordID) String() string { return string(id) }

// IsNil reports whether the id is unset.
func (id RecordID) IsNil() bool { return id == "" }

// Level is the severity carried in attributes.level.
type Level string

const (
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Valid reports whether l is one of info, warn, error.
func (l Level) Valid() bool {
	switch l {
	case LevelInfo, LevelWarn, LevelError:
		return true
	default:
		return false
	}
}

// TraceRecord is the unit of work admitted, migrated and audited by the pipeline.
// SemconvVersion and RegionID are persisted inside attributes (semconv_version,
// region_id) but kept as fields in memory.
type TraceRecord struct {
	ID             RecordID
	Attributes     Attributes
	EventTime      *time.Time // _time, supplied by the producer
	StoreTime      time.Time  // _sysTime, assigned at dispatch or migration
	SemconvVersion string
	RegionID       string
}

// Clone returns a deep copy.
func (r *TraceRecord) Clone() *TraceRecord {
	if r == nil {
		return nil
	}
	out := *r
	out.Attributes = r.Attributes.Clone()
	if r.EventTime != nil {
		t := *r.EventTime
		out.EventTime = &t
	}
	return &out
}

// StoredAttributes returns the attribute document as persisted, with the version
// and region tags folded in.
func (r *TraceRecord) StoredAttributes() Attributes {
	attrs := r.Attributes.Clone()
	if attrs == nil {
		attrs = Attributes{}
	}
	if r.SemconvVersion != "" {
		attrs[AttrSemconvVersion] = r.SemconvVersion
	}
	if r.RegionID != "" {
		attrs[AttrRegionID] = r.RegionID
	}
	return attrs
}

// FromStored rebuilds a record from a persisted attribute document, lifting the
// version and region tags back out of the attributes.
func FromStored(id RecordID, stored Attributes, eventTime *time.Time, storeTime time.Time) *TraceRecord {
	attrs := stored.Clone()
	if attrs == nil {
		attrs = Attributes{}
	}
	rec := &TraceRecord{
		ID:        id,
		EventTime: eventTime,
		StoreTime: storeTime,
	}
	if v, ok := attrs[AttrSemconvVersion].(string); ok {
		rec.SemconvVersion = v
		delete(attrs, AttrSemconvVersion)
	}
	if v, ok := attrs[AttrRegionID].(string); ok {
		rec.RegionID = v
		delete(attrs, AttrRegionID)
	}
	rec.Attributes = attrs
	return rec
}

// MigrationUpdate is the single-document write produced by a migration: the renamed
// paths to set (relative to attributes), the new version tag and the new store time.
type MigrationUpdate struct {
	ID             RecordID
	Set            map[string]any
	SemconvVersion string
	StoreTime      time.Time
}

// Apply returns a copy of r with update applied and whether anything differs from r.
// Paths already holding an equal value are left alone; the store time only moves
// when something changed.
func (r *TraceRecord) Apply(update MigrationUpdate) (*TraceRecord, bool, error) {
	next := r.Clone()
	if next.Attributes == nil {
		next.Attributes = Attributes{}
	}
	changed := false
	for _, path := range slices.Sorted(maps.Keys(update.Set)) {
		val := update.Set[path]
		if cur, ok := next.Attributes.Lookup(path); ok && reflect.DeepEqual(cur, val) {
			continue
		}
		if err := next.Attributes.Set(path, val); err != nil {
			return nil, false, err
		}
		changed = true
	}
	if next.SemconvVersion != update.SemconvVersion {
		next.SemconvVersion = update.SemconvVersion
		changed = true
	}
	if !changed {
		return r, false, nil
	}
	next.StoreTime = update.StoreTime
	return next, true, nil
}

// FieldTypes is one row of the type-drift aggregation.
type FieldTypes struct {
	Path  string
	Types []string
}

// TimeGap is one row of the time-gap aggregation.
type TimeGap struct {
	ID  RecordID
	Gap time.Duration
}
