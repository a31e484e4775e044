package docstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStore reads from a MongoDB database.
type MongoStore struct {
	db *mongo.Database
}

func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{db: db}
}

func (s *MongoStore) ListCollections(ctx context.Context) ([]string, error) {
	names, err := s.db.ListCollectionNames(ctx, bson.D{})
	if err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}
	sort.Strings(names)
	return names, nil
}

func (s *MongoStore) SampleOne(ctx context.Context, collection string) (Document, bool, error) {
	return s.FindOne(ctx, collection, Filter{})
}

func (s *MongoStore) Find(ctx context.Context, collection string, filter Filter, opts FindOptions) ([]Document, error) {
	findOpts := options.Find()
	if len(opts.Sort) > 0 {
		sortDoc := bson.D{}
		for _, f := range opts.Sort {
			dir := 1
			if f.Descending {
				dir = -1
			}
			sortDoc = append(sortDoc, bson.E{Key: f.Field, Value: dir})
		}
		findOpts.SetSort(sortDoc)
	}
	if opts.Skip > 0 {
		findOpts.SetSkip(opts.Skip)
	}
	if opts.Limit > 0 {
		findOpts.SetLimit(opts.Limit)
	}
	if len(opts.Projection) > 0 {
		findOpts.SetProjection(ToBSON(opts.Projection))
	}

	cursor, err := s.db.Collection(collection).Find(ctx, ToBSON(filter), findOpts)
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", collection, err)
	}
	return drain(ctx, cursor)
}

func (s *MongoStore) FindOne(ctx context.Context, collection string, filter Filter) (Document, bool, error) {
	var raw bson.M
	err := s.db.Collection(collection).FindOne(ctx, ToBSON(filter)).Decode(&raw)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("find_one %s: %w", collection, err)
	}
	return FromBSON(raw).(map[string]interface{}), true, nil
}

func (s *MongoStore) Count(ctx context.Context, collection string, filter Filter) (int64, error) {
	n, err := s.db.Collection(collection).CountDocuments(ctx, ToBSON(filter))
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", collection, err)
	}
	return n, nil
}

func (s *MongoStore) Distinct(ctx context.Context, collection, field string, filter Filter) ([]interface{}, error) {
	values, err := s.db.Collection(collection).Distinct(ctx, field, ToBSON(filter))
	if err != nil {
		return nil, fmt.Errorf("distinct %s.%s: %w", collection, field, err)
	}
	out := make([]interface{}, len(values))
	for i, v := range values {
		out[i] = FromBSON(v)
	}
	return out, nil
}

func (s *MongoStore) Aggregate(ctx context.Context, collection string, pipeline []Document) ([]Document, error) {
	if err := CheckPipeline(pipeline); err != nil {
		return nil, err
	}
	stages := make(bson.A, 0, len(pipeline))
	for _, stage := range pipeline {
		stages = append(stages, ToBSON(stage))
	}

	cursor, err := s.db.Collection(collection).Aggregate(ctx, stages)
	if err != nil {
		return nil, fmt.Errorf("aggregate %s: %w", collection, err)
	}
	return drain(ctx, cursor)
}

func (s *MongoStore) Ping(ctx context.Context) error {
	return s.db.Client().Ping(ctx, nil)
}

func (s *MongoStore) Close(ctx context.Context) error {
	return s.db.Client().Disconnect(ctx)
}

// drain reads a cursor to the end and always closes it.
func drain(ctx context.Context, cursor *mongo.Cursor) ([]Document, error) {
	defer cursor.Close(ctx)

	out := make([]Document, 0)
	for cursor.Next(ctx) {
		var raw bson.M
		if err := cursor.Decode(&raw); err != nil {
			return nil, fmt.Errorf("decode document: %w", err)
		}
		out = append(out, FromBSON(raw).(map[string]interface{}))
	}
	if err := cursor.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ToBSON converts plain values into driver values. Maps become ordered documents
// with keys sorted so the encoding is deterministic; hex ids become ObjectIDs.
func ToBSON(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		doc := make(bson.D, 0, len(keys))
		for _, k := range keys {
			doc = append(doc, bson.E{Key: k, Value: ToBSON(t[k])})
		}
		return doc
	case []interface{}:
		arr := make(bson.A, len(t))
		for i, el := range t {
			arr[i] = ToBSON(el)
		}
		return arr
	case ID:
		if t.IsObjectID() {
			if oid, err := primitive.ObjectIDFromHex(string(t)); err == nil {
				return oid
			}
		}
		return string(t)
	}
	return v
}

// FromBSON converts driver values into plain values: ObjectIDs become ID,
// dates become time.Time, decimals become their string form.
func FromBSON(v interface{}) interface{} {
	switch t := v.(type) {
	case bson.M:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			out[k] = FromBSON(val)
		}
		return out
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			out[k] = FromBSON(val)
		}
		return out
	case bson.D:
		out := make(map[string]interface{}, len(t))
		for _, e := range t {
			out[e.Key] = FromBSON(e.Value)
		}
		return out
	case bson.A:
		out := make([]interface{}, len(t))
		for i, el := range t {
			out[i] = FromBSON(el)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, el := range t {
			out[i] = FromBSON(el)
		}
		return out
	case primitive.ObjectID:
		return ID(t.Hex())
	case primitive.DateTime:
		return t.Time().UTC()
	case primitive.Timestamp:
		return time.Unix(int64(t.T), 0).UTC()
	case primitive.Decimal128:
		return t.String()
	case primitive.Binary:
		return fmt.Sprintf("%x", t.Data)
	case primitive.Regex:
		return t.Pattern
	case primitive.Null, primitive.Undefined:
		return nil
	case int32:
		return int64(t)
	}
	return v
}
