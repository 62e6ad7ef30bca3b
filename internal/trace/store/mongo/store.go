// Package mongo stores trace records as documents of the form
// {_id, attributes, _time, _sysTime}, with the version and region tags inside
// attributes.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"math"
	"slices"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"tracekeeper/internal/trace/models"
	"tracekeeper/pkg/platform/sentinel"
)

const (
	tracesCollection   = "traces"
	versionsCollection = "schema_versions"

	// pathNotViable is the server error code for $set through a scalar.
	pathNotViable = 28
)

type document struct {
	ID         string     `bson:"_id"`
	Attributes bson.M     `bson:"attributes"`
	EventTime  *time.Time `bson:"_time"`
	SysTime    time.Time  `bson:"_sysTime"`
}

// Store persists trace records in a MongoDB collection.
type Store struct {
	traces   *mongo.Collection
	versions *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{
		traces:   db.Collection(tracesCollection),
		versions: db.Collection(versionsCollection),
	}
}

// EnsureIndexes creates the trade_id/event-time index, the unique version-tag index
// and seeds the known version tags.
func (s *Store) EnsureIndexes(ctx context.Context, knownVersions []string) error {
	_, err := s.traces.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "attributes.trade_id", Value: 1}, {Key: "_time", Value: -1}},
			Options: options.Index().
				SetName("trade_id_event_time").
				SetPartialFilterExpression(bson.M{"attributes.trade_id": bson.M{"$exists": true}}),
		},
		{
			Keys:    bson.D{{Key: "attributes.semconv_version", Value: 1}, {Key: "_id", Value: 1}},
			Options: options.Index().SetName("semconv_version"),
		},
	})
	if err != nil {
		return wrapErr("ensure trace indexes", err)
	}

	_, err = s.versions.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "version", Value: 1}},
		Options: options.Index().SetName("version_unique").SetUnique(true),
	})
	if err != nil {
		return wrapErr("ensure version index", err)
	}

	for _, v := range knownVersions {
		_, err := s.versions.UpdateOne(ctx,
			bson.M{"version": v},
			bson.M{"$setOnInsert": bson.M{"version": v}},
			options.Update().SetUpsert(true),
		)
		if err != nil {
			return wrapErr("seed schema version", err)
		}
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.traces.Database().Client().Ping(ctx, nil); err != nil {
		return wrapErr("ping", err)
	}
	return nil
}

func (s *Store) Insert(ctx context.Context, rec *models.TraceRecord) (models.RecordID, error) {
	if rec == nil {
		return "", fmt.Errorf("insert trace: record is required")
	}
	id := rec.ID
	if id.IsNil() {
		generated, err := uuid.NewV7()
		if err != nil {
			return "", fmt.Errorf("insert trace: generate id: %w", err)
		}
		id = models.RecordID(generated.String())
	}

	doc := document{
		ID:         id.String(),
		Attributes: bson.M(toBSON(map[string]any(rec.StoredAttributes())).(map[string]any)),
		EventTime:  rec.EventTime,
		SysTime:    rec.StoreTime,
	}
	if _, err := s.traces.InsertOne(ctx, doc); err != nil {
		return "", wrapErr("insert trace", err)
	}
	return id, nil
}

func (s *Store) Get(ctx context.Context, id models.RecordID) (*models.TraceRecord, error) {
	var doc document
	if err := s.traces.FindOne(ctx, bson.M{"_id": id.String()}).Decode(&doc); err != nil {
		return nil, wrapErr("get trace "+id.String(), err)
	}
	return doc.record(), nil
}

func (s *Store) ListByVersion(ctx context.Context, version string, afterID models.RecordID, limit int) ([]*models.TraceRecord, error) {
	filter := bson.M{"attributes." + models.AttrSemconvVersion: version}
	if !afterID.IsNil() {
		filter["_id"] = bson.M{"$gt": afterID.String()}
	}
	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cur, err := s.traces.Find(ctx, filter, opts)
	if err != nil {
		return nil, wrapErr("list traces by version", err)
	}
	var docs []document
	if err := cur.All(ctx, &docs); err != nil {
		return nil, wrapErr("list traces by version", err)
	}
	out := make([]*models.TraceRecord, 0, len(docs))
	for _, doc := range docs {
		out = append(out, doc.record())
	}
	return out, nil
}

// FindByAttributes matches each dotted path under attributes. Mongo compares
// numbers across BSON numeric types by value.
func (s *Store) FindByAttributes(ctx context.Context, match models.AttributeMatch, limit int) ([]*models.TraceRecord, error) {
	if err := match.Validate(); err != nil {
		return nil, fmt.Errorf("find traces: %w", err)
	}
	filter := bson.M{}
	for path, value := range match {
		filter["attributes."+path] = toBSON(value)
	}
	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cur, err := s.traces.Find(ctx, filter, opts)
	if err != nil {
		return nil, wrapErr("find traces", err)
	}
	var docs []document
	if err := cur.All(ctx, &docs); err != nil {
		return nil, wrapErr("find traces", err)
	}
	out := make([]*models.TraceRecord, 0, len(docs))
	for _, doc := range docs {
		out = append(out, doc.record())
	}
	return out, nil
}

// ApplyMigration is a single UpdateOne whose filter only matches when at least one
// target path or the version tag differs, so replays report zero modified.
func (s *Store) ApplyMigration(ctx context.Context, update models.MigrationUpdate) (int64, error) {
	versionPath := "attributes." + models.AttrSemconvVersion
	differs := bson.A{bson.M{versionPath: bson.M{"$ne": update.SemconvVersion}}}
	set := bson.M{
		versionPath: update.SemconvVersion,
		"_sysTime":  update.StoreTime,
	}
	for _, path := range slices.Sorted(maps.Keys(update.Set)) {
		full := "attributes." + path
		value := toBSON(update.Set[path])
		differs = append(differs, bson.M{full: bson.M{"$ne": value}})
		set[full] = value
	}

	res, err := s.traces.UpdateOne(ctx,
		bson.M{"_id": update.ID.String(), "$or": differs},
		bson.M{"$set": set},
	)
	if err != nil {
		return 0, wrapErr("apply migration "+update.ID.String(), err)
	}
	if res.MatchedCount > 0 {
		return res.ModifiedCount, nil
	}

	n, err := s.traces.CountDocuments(ctx, bson.M{"_id": update.ID.String()})
	if err != nil {
		return 0, wrapErr("apply migration "+update.ID.String(), err)
	}
	if n == 0 {
		return 0, fmt.Errorf("apply migration %s: %w", update.ID, sentinel.ErrNotFound)
	}
	return 0, nil
}

// FieldTypes streams attribute documents and flattens them client-side; the
// aggregation framework has no recursive walk over nested documents.
func (s *Store) FieldTypes(ctx context.Context) ([]models.FieldTypes, error) {
	cur, err := s.traces.Find(ctx, bson.M{}, options.Find().SetProjection(bson.M{"attributes": 1}))
	if err != nil {
		return nil, wrapErr("field types", err)
	}
	defer cur.Close(ctx)

	seen := make(map[string]map[string]struct{})
	for cur.Next(ctx) {
		var doc struct {
			Attributes bson.M `bson:"attributes"`
		}
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode attributes: %w", err)
		}
		attrs, _ := normalize(doc.Attributes).(map[string]any)
		for path, typ := range models.Attributes(attrs).Flatten() {
			if seen[path] == nil {
				seen[path] = make(map[string]struct{})
			}
			seen[path][typ] = struct{}{}
		}
	}
	if err := cur.Err(); err != nil {
		return nil, wrapErr("field types", err)
	}

	out := make([]models.FieldTypes, 0, len(seen))
	for _, path := range slices.Sorted(maps.Keys(seen)) {
		out = append(out, models.FieldTypes{Path: path, Types: slices.Sorted(maps.Keys(seen[path]))})
	}
	return out, nil
}

func (s *Store) TimeGaps(ctx context.Context, threshold time.Duration) ([]models.TimeGap, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"_time": bson.M{"$type": "date"}}}},
		{{Key: "$project", Value: bson.M{"gap": bson.M{"$subtract": bson.A{"$_sysTime", "$_time"}}}}},
		{{Key: "$match", Value: bson.M{"gap": bson.M{"$gt": threshold.Milliseconds()}}}},
		{{Key: "$sort", Value: bson.M{"_id": 1}}},
	}
	cur, err := s.traces.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, wrapErr("time gaps", err)
	}
	var rows []struct {
		ID  string `bson:"_id"`
		Gap int64  `bson:"gap"`
	}
	if err := cur.All(ctx, &rows); err != nil {
		return nil, wrapErr("time gaps", err)
	}
	out := make([]models.TimeGap, 0, len(rows))
	for _, r := range rows {
		out = append(out, models.TimeGap{ID: models.RecordID(r.ID), Gap: time.Duration(r.Gap) * time.Millisecond})
	}
	return out, nil
}

func (s *Store) DistinctTopLevelFields(ctx context.Context) ([]string, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$project", Value: bson.M{"keys": bson.M{"$map": bson.M{
			"input": bson.M{"$objectToArray": "$attributes"},
			"in":    "$$this.k",
		}}}}},
		{{Key: "$unwind", Value: "$keys"}},
		{{Key: "$group", Value: bson.M{"_id": "$keys"}}},
		{{Key: "$sort", Value: bson.M{"_id": 1}}},
	}
	cur, err := s.traces.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, wrapErr("distinct top-level fields", err)
	}
	var rows []struct {
		Key string `bson:"_id"`
	}
	if err := cur.All(ctx, &rows); err != nil {
		return nil, wrapErr("distinct top-level fields", err)
	}
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.Key)
	}
	return out, nil
}

func (d document) record() *models.TraceRecord {
	attrs, _ := normalize(d.Attributes).(map[string]any)
	var event *time.Time
	if d.EventTime != nil {
		t := d.EventTime.UTC()
		event = &t
	}
	return models.FromStored(models.RecordID(d.ID), attrs, event, d.SysTime.UTC())
}

// normalize converts decoded BSON values into the plain Go shapes the attribute
// helpers understand.
func normalize(v any) any {
	switch t := v.(type) {
	case bson.M:
		return normalizeMap(t)
	case map[string]any:
		return normalizeMap(t)
	case bson.D:
		out := make(map[string]any, len(t))
		for _, e := range t {
			out[e.Key] = normalize(e.Value)
		}
		return out
	case bson.A:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = normalize(e)
		}
		return out
	case primitive.DateTime:
		return t.Time().UTC()
	case int32:
		return int64(t)
	case primitive.Decimal128:
		return models.ParseNumber(t.String())
	default:
		return v
	}
}

// toBSON copies v, storing integers above the int64 range as Decimal128 so they
// round-trip exactly instead of failing to encode.
func toBSON(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = toBSON(e)
		}
		return out
	case models.Attributes:
		return toBSON(map[string]any(t))
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = toBSON(e)
		}
		return out
	case uint64:
		if t > math.MaxInt64 {
			d, err := primitive.ParseDecimal128(strconv.FormatUint(t, 10))
			if err == nil {
				return d
			}
		}
		return int64(t)
	default:
		return v
	}
}

func normalizeMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = normalize(v)
	}
	return out
}

func wrapErr(op string, err error) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return fmt.Errorf("%s: %w", op, sentinel.ErrNotFound)
	}
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("%s: %w", op, sentinel.ErrConflict)
	}
	var we mongo.WriteException
	if errors.As(err, &we) {
		for _, e := range we.WriteErrors {
			if e.Code == pathNotViable {
				return fmt.Errorf("%s: %w", op, models.ErrPathConflict)
			}
		}
	}
	return fmt.Errorf("%s: %w: %w", op, sentinel.ErrUnavailable, err)
}
