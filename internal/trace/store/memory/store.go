package memory

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"tracekeeper/internal/trace/models"
	"tracekeeper/pkg/platform/sentinel"
)

// Store is an in-memory TraceStore. Aggregations are computed in Go and define the
// reference semantics the database backends reproduce.
type Store struct {
	mu       sync.RWMutex
	records  map[models.RecordID]*models.TraceRecord
	versions map[string]struct{}
}

// New creates an empty in-memory trace store.
func New() *Store {
	return &Store{
		records:  make(map[models.RecordID]*models.TraceRecord),
		versions: make(map[string]struct{}),
	}
}

// EnsureIndexes records the known version tags; there is nothing to index in memory.
func (s *Store) EnsureIndexes(_ context.Context, knownVersions []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range knownVersions {
		s.versions[v] = struct{}{}
	}
	return nil
}

func (s *Store) Ping(context.Context) error { return nil }

// Insert stores a copy of rec, assigning a time-ordered id when it has none.
func (s *Store) Insert(_ context.Context, rec *models.TraceRecord) (models.RecordID, error) {
	if rec == nil {
		return "", fmt.Errorf("insert trace: record is required")
	}
	stored := rec.Clone()
	if stored.ID.IsNil() {
		id, err := uuid.NewV7()
		if err != nil {
			return "", fmt.Errorf("insert trace: generate id: %w", err)
		}
		stored.ID = models.RecordID(id.String())
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[stored.ID]; exists {
		return "", fmt.Errorf("insert trace %s: %w", stored.ID, sentinel.ErrConflict)
	}
	s.records[stored.ID] = stored
	return stored.ID, nil
}

func (s *Store) Get(_ context.Context, id models.RecordID) (*models.TraceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok {
		return nil, fmt.Errorf("get trace %s: %w", id, sentinel.ErrNotFound)
	}
	return rec.Clone(), nil
}

func (s *Store) ListByVersion(_ context.Context, version string, afterID models.RecordID, limit int) ([]*models.TraceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]models.RecordID, 0)
	for id, rec := range s.records {
		if rec.SemconvVersion == version && id > afterID {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}

	out := make([]*models.TraceRecord, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.records[id].Clone())
	}
	return out, nil
}

// FindByAttributes scans records in id order.
func (s *Store) FindByAttributes(_ context.Context, match models.AttributeMatch, limit int) ([]*models.TraceRecord, error) {
	if err := match.Validate(); err != nil {
		return nil, fmt.Errorf("find traces: %w", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.TraceRecord
	for _, id := range slices.Sorted(maps.Keys(s.records)) {
		rec := s.records[id]
		if !match.Matches(rec.StoredAttributes()) {
			continue
		}
		out = append(out, rec.Clone())
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// ApplyMigration sets every path in the update and the version tag. The store time
// only moves, and the document only counts as modified, when something differs.
func (s *Store) ApplyMigration(_ context.Context, update models.MigrationUpdate) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[update.ID]
	if !ok {
		return 0, fmt.Errorf("apply migration %s: %w", update.ID, sentinel.ErrNotFound)
	}

	next, changed, err := rec.Apply(update)
	if err != nil {
		return 0, fmt.Errorf("apply migration %s: %w", update.ID, err)
	}
	if !changed {
		return 0, nil
	}
	s.records[update.ID] = next
	return 1, nil
}

// FieldTypes walks every stored attribute path, nested ones included.
func (s *Store) FieldTypes(context.Context) ([]models.FieldTypes, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]map[string]struct{})
	for _, rec := range s.records {
		for path, typ := range rec.StoredAttributes().Flatten() {
			if seen[path] == nil {
				seen[path] = make(map[string]struct{})
			}
			seen[path][typ] = struct{}{}
		}
	}

	out := make([]models.FieldTypes, 0, len(seen))
	for _, path := range slices.Sorted(maps.Keys(seen)) {
		out = append(out, models.FieldTypes{
			Path:  path,
			Types: slices.Sorted(maps.Keys(seen[path])),
		})
	}
	return out, nil
}

// TimeGaps skips records without an event time.
func (s *Store) TimeGaps(_ context.Context, threshold time.Duration) ([]models.TimeGap, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.TimeGap
	for id, rec := range s.records {
		if rec.EventTime == nil {
			continue
		}
		if gap := rec.StoreTime.Sub(*rec.EventTime); gap > threshold {
			out = append(out, models.TimeGap{ID: id, Gap: gap})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) DistinctTopLevelFields(context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{})
	for _, rec := range s.records {
		for k := range rec.StoredAttributes() {
			seen[k] = struct{}{}
		}
	}
	return slices.Sorted(maps.Keys(seen)), nil
}

// Len returns the number of stored records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
