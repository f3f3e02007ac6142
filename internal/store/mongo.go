package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStore implements DocumentStore on a MongoDB database. Caller-supplied
// ids go into _id, so the unique index gives the duplicate-rejection contract
// for free; collection $jsonSchema validators double as the declared schema.
type MongoStore struct {
	db  *mongo.Database
	log *slog.Logger
}

// NewMongoStore creates a MongoStore on the given database.
func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{db: db, log: slog.Default().With("store", "mongo")}
}

// Query runs an equality-filtered, ordered, paged find and counts the total.
func (s *MongoStore) Query(ctx context.Context, collection string, opts QueryOptions) (*QueryResult, error) {
	coll := s.db.Collection(collection)

	filter := bson.M{}
	for _, f := range opts.Filters {
		filter[f.Field] = f.Value
	}

	total, err := coll.CountDocuments(ctx, filter)
	if err != nil {
		return nil, classifyMongo("query", err)
	}

	findOpts := options.Find()
	if opts.Limit > 0 {
		findOpts.SetLimit(opts.Limit)
	}
	if opts.Offset > 0 {
		findOpts.SetSkip(opts.Offset)
	}
	if opts.OrderBy != "" {
		dir := 1
		if opts.Descending {
			dir = -1
		}
		findOpts.SetSort(bson.D{{Key: opts.OrderBy, Value: dir}})
	}

	cursor, err := coll.Find(ctx, filter, findOpts)
	if err != nil {
		return nil, classifyMongo("query", err)
	}
	defer cursor.Close(ctx)

	var raw []bson.M
	if err := cursor.All(ctx, &raw); err != nil {
		return nil, classifyMongo("query", err)
	}

	res := &QueryResult{Total: total, Documents: make([]Document, 0, len(raw))}
	for _, m := range raw {
		res.Documents = append(res.Documents, mongoDocument(m))
	}
	return res, nil
}

// Create inserts a document under the caller-supplied id. A duplicate id
// comes back as KindConflict.
func (s *MongoStore) Create(ctx context.Context, collection, id string, fields Fields, _ []Permission) (*Document, error) {
	body := bson.M{"_id": id}
	for k, v := range fields {
		body[k] = v
	}
	if _, err := s.db.Collection(collection).InsertOne(ctx, body); err != nil {
		return nil, classifyMongo("create", err)
	}
	doc := mongoDocument(body)
	doc.ID = id
	return &doc, nil
}

// Update applies a $set of the given fields.
func (s *MongoStore) Update(ctx context.Context, collection, id string, fields Fields) (*Document, error) {
	coll := s.db.Collection(collection)
	res, err := coll.UpdateByID(ctx, id, bson.M{"$set": bson.M(fields)})
	if err != nil {
		return nil, classifyMongo("update", err)
	}
	if res.MatchedCount == 0 {
		return nil, NewError(KindNotFound, "update", fmt.Errorf("document %s not found", id))
	}
	var m bson.M
	if err := coll.FindOne(ctx, bson.M{"_id": id}).Decode(&m); err != nil {
		return nil, classifyMongo("update", err)
	}
	doc := mongoDocument(m)
	return &doc, nil
}

// Delete removes a document by id.
func (s *MongoStore) Delete(ctx context.Context, collection, id string) error {
	res, err := s.db.Collection(collection).DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return classifyMongo("delete", err)
	}
	if res.DeletedCount == 0 {
		return NewError(KindNotFound, "delete", fmt.Errorf("document %s not found", id))
	}
	return nil
}

// GetSchema reads the collection's $jsonSchema validator, when one is
// declared, and reports its properties as the collection schema.
func (s *MongoStore) GetSchema(ctx context.Context, collection string) ([]SchemaField, error) {
	specs, err := s.db.ListCollectionSpecifications(ctx, bson.M{"name": collection})
	if err != nil {
		return nil, classifyMongo("get_schema", err)
	}
	if len(specs) == 0 {
		return nil, NewError(KindNotFound, "get_schema", fmt.Errorf("collection %s not found", collection))
	}

	schemaVal, err := specs[0].Options.LookupErr("validator", "$jsonSchema")
	if err != nil {
		// No validator declared; the caller falls back to its defaults.
		return nil, nil
	}

	var jsonSchema struct {
		Properties bson.M   `bson:"properties"`
		Required   []string `bson:"required"`
	}
	if err := schemaVal.Unmarshal(&jsonSchema); err != nil {
		return nil, NewError(KindPersistenceFailed, "get_schema", err)
	}

	required := make(map[string]bool, len(jsonSchema.Required))
	for _, k := range jsonSchema.Required {
		required[k] = true
	}

	fields := make([]SchemaField, 0, len(jsonSchema.Properties))
	for key, prop := range jsonSchema.Properties {
		typ := ""
		if pm, ok := prop.(bson.M); ok {
			if t, ok := pm["bsonType"].(string); ok {
				typ = t
			}
		}
		fields = append(fields, SchemaField{Key: key, Type: typ, Required: required[key]})
	}
	return fields, nil
}

// Subscribe opens a change stream on the collection and forwards every
// insert/update/delete to fn until the returned Unsubscribe runs.
func (s *MongoStore) Subscribe(ctx context.Context, collection string, fn func(Event)) (Unsubscribe, error) {
	streamCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	stream, err := s.db.Collection(collection).Watch(streamCtx, mongo.Pipeline{},
		options.ChangeStream().SetFullDocument(options.UpdateLookup))
	if err != nil {
		cancel()
		return nil, classifyMongo("subscribe", err)
	}

	go func() {
		defer stream.Close(context.Background())
		for stream.Next(streamCtx) {
			var change struct {
				OperationType string `bson:"operationType"`
				FullDocument  bson.M `bson:"fullDocument"`
				DocumentKey   struct {
					ID any `bson:"_id"`
				} `bson:"documentKey"`
			}
			if err := stream.Decode(&change); err != nil {
				s.log.Warn("change stream decode failed", "collection", collection, "error", err)
				continue
			}

			var kind EventKind
			switch change.OperationType {
			case "insert":
				kind = EventCreate
			case "delete":
				kind = EventDelete
			case "update", "replace":
				kind = EventUpdate
			default:
				continue
			}

			doc := mongoDocument(change.FullDocument)
			if doc.ID == "" {
				doc.ID = fmt.Sprint(change.DocumentKey.ID)
			}
			fn(Event{Kind: kind, Collection: collection, Document: doc})
		}
		if err := stream.Err(); err != nil && streamCtx.Err() == nil {
			s.log.Warn("change stream terminated", "collection", collection, "error", err)
		}
	}()

	return func() { cancel() }, nil
}

// mongoDocument flattens a raw bson document into the store's shape. The _id
// moves out of the body; a created_at style field, when present, also fills
// the typed timestamp.
func mongoDocument(m bson.M) Document {
	doc := Document{Fields: Fields{}}
	for k, v := range m {
		if k == "_id" {
			doc.ID = fmt.Sprint(v)
			continue
		}
		if dt, ok := v.(primitive.DateTime); ok {
			v = dt.Time()
		}
		doc.Fields[k] = v
	}
	for _, key := range []string{"created_at", "createdAt"} {
		switch t := doc.Fields[key].(type) {
		case time.Time:
			doc.CreatedAt = t
		case string:
			if parsed, err := time.Parse(time.RFC3339, t); err == nil {
				doc.CreatedAt = parsed
			}
		}
	}
	return doc
}

func classifyMongo(op string, err error) error {
	if err == nil {
		return nil
	}
	switch {
	case mongo.IsDuplicateKeyError(err):
		return NewError(KindConflict, op, err)
	case errors.Is(err, mongo.ErrNoDocuments):
		return NewError(KindNotFound, op, err)
	case mongo.IsTimeout(err) || mongo.IsNetworkError(err):
		return NewError(KindNetworkUnavailable, op, err)
	}
	var we mongo.WriteException
	if errors.As(err, &we) {
		for _, e := range we.WriteErrors {
			// 121 = document failed the collection's schema validation.
			if e.Code == 121 {
				return NewError(KindUnknownField, op, err)
			}
		}
	}
	return NewError(KindPersistenceFailed, op, err)
}
