package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ConnectMongoDB connects and pings the server.
func ConnectMongoDB(ctx context.Context, uri, database string, direct bool) (*mongo.Database, error) {
	clientOpts := options.Client().
		ApplyURI(uri).
		SetConnectTimeout(10 * time.Second).
		SetServerSelectionTimeout(5 * time.Second).
		SetMaxPoolSize(100)
	if direct {
		clientOpts.SetDirect(true)
	}

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	return client.Database(database), nil
}

// mongoDoc is the stored shape: one Mongo collection per path collection, owners separated by
// the owner field and a composite _id.
type mongoDoc struct {
	Key   string `bson:"_id"`
	Owner string `bson:"owner"`
	DocID string `bson:"doc_id"`
	Data  bson.D `bson:"data"`
}

// MongoStore keeps documents in MongoDB. Batches run in a multi-document transaction and
// subscriptions use change streams, so the server must be a replica set.
type MongoStore struct {
	db  *mongo.Database
	log zerolog.Logger

	wg sync.WaitGroup
}

var _ Batcher = (*MongoStore)(nil)

func NewMongoStore(db *mongo.Database, log zerolog.Logger) *MongoStore {
	return &MongoStore{db: db, log: log}
}

// CreateIndexes adds the owner index used by List and Subscribe.
func (s *MongoStore) CreateIndexes(ctx context.Context, collections ...string) error {
	for _, name := range collections {
		_, err := s.db.Collection(name).Indexes().CreateOne(ctx, mongo.IndexModel{
			Keys: bson.D{{Key: "owner", Value: 1}, {Key: "doc_id", Value: 1}},
		})
		if err != nil {
			return fmt.Errorf("failed to create index on %s: %w", name, err)
		}
	}
	return nil
}

func (s *MongoStore) Get(ctx context.Context, p Path, id string) (Document, error) {
	var d mongoDoc
	err := s.db.Collection(p.Collection).FindOne(ctx, bson.M{"_id": docKey(p, id)}).Decode(&d)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return Document{}, fmt.Errorf("%s/%s: %w", p, id, ErrNotFound)
		}
		return Document{}, fmt.Errorf("failed to get document: %w", err)
	}
	return toDocument(d)
}

func (s *MongoStore) List(ctx context.Context, p Path) ([]Document, error) {
	opts := options.Find().SetSort(bson.D{{Key: "doc_id", Value: 1}})
	cur, err := s.db.Collection(p.Collection).Find(ctx, bson.M{"owner": p.Owner}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", p, err)
	}
	defer cur.Close(ctx)

	var raw []mongoDoc
	if err := cur.All(ctx, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", p, err)
	}
	docs := make([]Document, 0, len(raw))
	for _, d := range raw {
		doc, err := toDocument(d)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func (s *MongoStore) Set(ctx context.Context, p Path, doc Document) error {
	return s.set(ctx, p, doc)
}

func (s *MongoStore) set(ctx context.Context, p Path, doc Document) error {
	d, err := fromDocument(p, doc)
	if err != nil {
		return err
	}
	opts := options.Replace().SetUpsert(true)
	if _, err := s.db.Collection(p.Collection).ReplaceOne(ctx, bson.M{"_id": d.Key}, d, opts); err != nil {
		return fmt.Errorf("failed to set document: %w", err)
	}
	return nil
}

func (s *MongoStore) Update(ctx context.Context, p Path, id string, fields map[string]any) error {
	set := bson.M{}
	for k, v := range fields {
		val, err := toBSONValue(v)
		if err != nil {
			return fmt.Errorf("encode field %s: %w", k, err)
		}
		set["data."+k] = val
	}
	res, err := s.db.Collection(p.Collection).UpdateOne(ctx, bson.M{"_id": docKey(p, id)}, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("failed to update document: %w", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%s/%s: %w", p, id, ErrNotFound)
	}
	return nil
}

func (s *MongoStore) Delete(ctx context.Context, p Path, id string) error {
	if _, err := s.db.Collection(p.Collection).DeleteOne(ctx, bson.M{"_id": docKey(p, id)}); err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	return nil
}

func (s *MongoStore) increment(ctx context.Context, op batchOp) error {
	coll := s.db.Collection(op.path.Collection)
	key := docKey(op.path, op.id)
	field := "data." + op.field
	filter := bson.M{"_id": key, field: bson.M{"$gte": op.min - op.delta}}

	res, err := coll.UpdateOne(ctx, filter, bson.M{"$inc": bson.M{field: op.delta}})
	if err != nil {
		return fmt.Errorf("failed to increment %s: %w", op.field, err)
	}
	if res.MatchedCount > 0 {
		return nil
	}

	n, err := coll.CountDocuments(ctx, bson.M{"_id": key})
	if err != nil {
		return fmt.Errorf("failed to check document: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s/%s: %w", op.path, op.id, ErrNotFound)
	}
	return fmt.Errorf("%s/%s: %w: %s below %d", op.path, op.id, ErrPreconditionFailed, op.field, op.min)
}

func (s *MongoStore) Batch() Batch {
	return &mongoBatch{store: s}
}

type mongoBatch struct {
	ops
	store *MongoStore
}

func (b *mongoBatch) Commit(ctx context.Context) error {
	sess, err := b.store.db.Client().StartSession()
	if err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}
	defer sess.EndSession(ctx)

	_, err = sess.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		for _, op := range b.list {
			var err error
			switch op.kind {
			case opSet:
				err = b.store.set(sc, op.path, Document{ID: op.id, Data: op.data})
			case opDelete:
				err = b.store.Delete(sc, op.path, op.id)
			case opIncrement:
				err = b.store.increment(sc, op)
			}
			if err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("batch commit failed: %w", err)
	}
	return nil
}

// Subscribe watches the collection's change stream and re-lists the path on every relevant
// change. Stream errors are logged and end the subscription; the consumer keeps its last state.
func (s *MongoStore) Subscribe(ctx context.Context, p Path, fn func([]Document)) (Unsubscribe, error) {
	ctx, cancel := context.WithCancel(ctx)

	pipeline := mongo.Pipeline{}
	if p.Owner != "" {
		prefix := "^" + regexp.QuoteMeta(p.Owner+"/")
		pipeline = append(pipeline, bson.D{{Key: "$match", Value: bson.M{"documentKey._id": bson.M{"$regex": prefix}}}})
	}
	stream, err := s.db.Collection(p.Collection).Watch(ctx, pipeline)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to watch %s: %w", p, err)
	}

	initial, err := s.List(ctx, p)
	if err != nil {
		stream.Close(context.Background())
		cancel()
		return nil, err
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer stream.Close(context.Background())
		fn(initial)
		for stream.Next(ctx) {
			docs, err := s.List(ctx, p)
			if err != nil {
				s.log.Warn().Err(err).Str("collection", p.Collection).Str("owner", p.Owner).Msg("re-list after change failed")
				continue
			}
			fn(docs)
		}
		if err := stream.Err(); err != nil && ctx.Err() == nil {
			s.log.Error().Err(err).Str("collection", p.Collection).Str("owner", p.Owner).Msg("change stream ended")
		}
	}()

	var once sync.Once
	return func() { once.Do(cancel) }, nil
}

// Close waits for subscription goroutines. Callers cancel their subscriptions first.
func (s *MongoStore) Close(ctx context.Context) error {
	s.wg.Wait()
	return s.db.Client().Disconnect(ctx)
}

func docKey(p Path, id string) string {
	if p.Owner == "" {
		return id
	}
	return p.Owner + "/" + id
}

func fromDocument(p Path, doc Document) (mongoDoc, error) {
	var data bson.D
	if err := bson.UnmarshalExtJSON(doc.Data, false, &data); err != nil {
		return mongoDoc{}, fmt.Errorf("document %s is not a JSON object: %w", doc.ID, err)
	}
	return mongoDoc{Key: docKey(p, doc.ID), Owner: p.Owner, DocID: doc.ID, Data: data}, nil
}

func toDocument(d mongoDoc) (Document, error) {
	data := d.Data
	if data == nil {
		data = bson.D{}
	}
	raw, err := bson.MarshalExtJSON(data, false, false)
	if err != nil {
		return Document{}, fmt.Errorf("failed to encode document %s: %w", d.DocID, err)
	}
	return Document{ID: d.DocID, Data: raw}, nil
}

// toBSONValue routes an arbitrary value through JSON so stored fields match Set.
func toBSONValue(v any) (any, error) {
	raw, err := json.Marshal(map[string]any{"v": v})
	if err != nil {
		return nil, err
	}
	var wrapped bson.M
	if err := bson.UnmarshalExtJSON(raw, false, &wrapped); err != nil {
		return nil, err
	}
	return wrapped["v"], nil
}
