package docstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// MongoConfig describes how to reach the MongoDB deployment.
type MongoConfig struct {
	URI            string
	Database       string
	ConnectTimeout time.Duration
}

// Index declares a secondary index created by EnsureIndexes.
type Index struct {
	Collection string
	Fields     []string
	Unique     bool
	Name       string
}

// MongoStore implements Store on MongoDB. Live subscriptions are driven by
// change streams, so the deployment must run as a replica set.
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
	logger *zap.Logger
	wg     sync.WaitGroup
}

// changeEvent is the subset of a change stream document the store inspects.
type changeEvent struct {
	OperationType string `bson:"operationType"`
	FullDocument  bson.M `bson:"fullDocument"`
}

// mayAffect reports whether the change can alter the matching set of q. Only
// inserts are decided locally; updates and deletes may move a document out of
// the set, so they always trigger a re-query.
func (e changeEvent) mayAffect(q Query) bool {
	if e.OperationType != "insert" || e.FullDocument == nil {
		return true
	}
	return q.Matches(fromBSON(e.FullDocument))
}

// NewMongoStore connects and pings the configured deployment.
func NewMongoStore(ctx context.Context, cfg MongoConfig, logger *zap.Logger) (*MongoStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", err)
	}
	return &MongoStore{client: client, db: client.Database(cfg.Database), logger: logger}, nil
}

// EnsureIndexes creates the provided indexes if they do not exist yet.
func (s *MongoStore) EnsureIndexes(ctx context.Context, indexes []Index) error {
	for _, idx := range indexes {
		keys := bson.D{}
		for _, f := range idx.Fields {
			keys = append(keys, bson.E{Key: f, Value: 1})
		}
		opts := options.Index().SetName(idx.Name)
		if idx.Unique {
			opts.SetUnique(true)
		}
		if _, err := s.db.Collection(idx.Collection).Indexes().CreateOne(ctx, mongo.IndexModel{Keys: keys, Options: opts}); err != nil {
			return fmt.Errorf("%s indexes: %w", idx.Collection, err)
		}
	}
	return nil
}

// Subscribe opens a change stream on the collection and re-queries the
// matching set whenever a change may affect it.
func (s *MongoStore) Subscribe(ctx context.Context, q Query, onData DataFunc, onError ErrorFunc) (CancelFunc, error) {
	if q.Collection == "" {
		return nil, fmt.Errorf("subscribe: collection required")
	}
	if onData == nil {
		return nil, fmt.Errorf("subscribe %s: data callback required", q.Collection)
	}
	subCtx, cancel := context.WithCancel(context.Background())
	streamOpts := options.ChangeStream().SetFullDocument(options.UpdateLookup)
	stream, err := s.db.Collection(q.Collection).Watch(ctx, mongo.Pipeline{}, streamOpts)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("watch %s: %w", q.Collection, err)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer stream.Close(context.Background()) //nolint:errcheck
		s.pump(subCtx, q, stream, onData, onError)
	}()

	var once sync.Once
	return func() { once.Do(cancel) }, nil
}

func (s *MongoStore) pump(ctx context.Context, q Query, stream *mongo.ChangeStream, onData DataFunc, onError ErrorFunc) {
	fail := func(err error) {
		if ctx.Err() != nil {
			return
		}
		s.logger.Warn("subscription failed", zap.String("query", q.String()), zap.Error(err))
		if onError != nil {
			onError(err)
		}
	}

	docs, err := s.QueryOnce(ctx, q)
	if err != nil {
		fail(err)
		return
	}
	if ctx.Err() != nil {
		return
	}
	onData(docs)

	for stream.Next(ctx) {
		var event changeEvent
		if err := stream.Decode(&event); err != nil {
			fail(fmt.Errorf("decode change event: %w", err))
			return
		}
		if !event.mayAffect(q) {
			continue
		}
		docs, err := s.QueryOnce(ctx, q)
		if err != nil {
			fail(err)
			return
		}
		if ctx.Err() != nil {
			return
		}
		onData(docs)
	}
	if err := stream.Err(); err != nil {
		fail(err)
	}
}

// Create inserts a document and returns its ObjectID as hex.
func (s *MongoStore) Create(ctx context.Context, collection string, fields map[string]interface{}) (string, error) {
	doc := bson.M{}
	for k, v := range fields {
		if k == "id" || k == "_id" {
			continue
		}
		doc[k] = v
	}
	oid := primitive.NewObjectID()
	doc["_id"] = oid
	if _, err := s.db.Collection(collection).InsertOne(ctx, doc); err != nil {
		return "", fmt.Errorf("insert %s: %w", collection, writeError(err))
	}
	return oid.Hex(), nil
}

// Update applies a $set of the provided fields.
func (s *MongoStore) Update(ctx context.Context, collection, id string, fields map[string]interface{}) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return ErrNotFound
	}
	set := bson.M{}
	for k, v := range fields {
		if k == "id" || k == "_id" {
			continue
		}
		set[k] = v
	}
	res, err := s.db.Collection(collection).UpdateByID(ctx, oid, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("update %s: %w", collection, writeError(err))
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a document permanently.
func (s *MongoStore) Delete(ctx context.Context, collection, id string) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return ErrNotFound
	}
	res, err := s.db.Collection(collection).DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return fmt.Errorf("delete %s: %w", collection, err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// Get loads a document by id.
func (s *MongoStore) Get(ctx context.Context, collection, id string) (Document, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return Document{}, ErrNotFound
	}
	var raw bson.M
	if err := s.db.Collection(collection).FindOne(ctx, bson.M{"_id": oid}).Decode(&raw); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return Document{}, ErrNotFound
		}
		return Document{}, fmt.Errorf("get %s: %w", collection, err)
	}
	return fromBSON(raw), nil
}

// QueryOnce runs a find ordered by insertion (ObjectID) order.
func (s *MongoStore) QueryOnce(ctx context.Context, q Query) ([]Document, error) {
	filter, err := toFilter(q)
	if err != nil {
		return []Document{}, nil
	}
	cur, err := s.db.Collection(q.Collection).Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", q.Collection, err)
	}
	defer cur.Close(ctx) //nolint:errcheck

	docs := make([]Document, 0)
	for cur.Next(ctx) {
		var raw bson.M
		if err := cur.Decode(&raw); err != nil {
			return nil, fmt.Errorf("decode %s: %w", q.Collection, err)
		}
		docs = append(docs, fromBSON(raw))
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("find %s cursor: %w", q.Collection, err)
	}
	return docs, nil
}

// Close waits for subscription goroutines after disconnecting the client.
func (s *MongoStore) Close(ctx context.Context) error {
	err := s.client.Disconnect(ctx)
	s.wg.Wait()
	return err
}

// writeError maps unique index violations to ErrDuplicate.
func writeError(err error) error {
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("%w: %v", ErrDuplicate, err)
	}
	return err
}

func toFilter(q Query) (bson.D, error) {
	filter := bson.D{}
	for _, c := range q.Where {
		if c.Field == "id" || c.Field == "_id" {
			oid, err := primitive.ObjectIDFromHex(fmt.Sprint(c.Value))
			if err != nil {
				return nil, err
			}
			filter = append(filter, bson.E{Key: "_id", Value: oid})
			continue
		}
		filter = append(filter, bson.E{Key: c.Field, Value: c.Value})
	}
	return filter, nil
}

func fromBSON(raw bson.M) Document {
	doc := Document{Fields: make(map[string]interface{}, len(raw))}
	for k, v := range raw {
		if k == "_id" {
			if oid, ok := v.(primitive.ObjectID); ok {
				doc.ID = oid.Hex()
			} else {
				doc.ID = fmt.Sprint(v)
			}
			continue
		}
		doc.Fields[k] = normalizeBSON(v)
	}
	return doc
}

func normalizeBSON(v interface{}) interface{} {
	switch t := v.(type) {
	case primitive.DateTime:
		return t.Time().UTC()
	case primitive.A:
		out := make([]interface{}, len(t))
		for i, item := range t {
			out[i] = normalizeBSON(item)
		}
		return out
	case bson.M:
		out := make(map[string]interface{}, len(t))
		for k, item := range t {
			out[k] = normalizeBSON(item)
		}
		return out
	case bson.D:
		out := make(map[string]interface{}, len(t))
		for _, e := range t {
			out[e.Key] = normalizeBSON(e.Value)
		}
		return out
	case primitive.ObjectID:
		return t.Hex()
	default:
		return v
	}
}
