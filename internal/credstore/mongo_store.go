package credstore

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// mongoStore persists the credential snapshot as one document per
// credential in a single collection, grounded on the teacher's
// MongoDBStorage connection/options setup.
type mongoStore struct {
	client     *mongo.Client
	collection *mongo.Collection
}

// NewMongoStore opens a Mongo-backed Store.
func NewMongoStore(ctx context.Context, uri, dbName string) (Store, error) {
	if dbName == "" {
		dbName = "clewdr"
	}
	connectCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	opts := options.Client().ApplyURI(uri).SetMaxPoolSize(10).SetServerSelectionTimeout(5 * time.Second)
	client, err := mongo.Connect(connectCtx, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: connect mongo: %v", ErrStorageUnavailable, err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		return nil, fmt.Errorf("%w: ping mongo: %v", ErrStorageUnavailable, err)
	}
	coll := client.Database(dbName).Collection("credentials")
	return &mongoStore{client: client, collection: coll}, nil
}

func (m *mongoStore) Load(ctx context.Context) (*Snapshot, error) {
	cur, err := m.collection.Find(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("credstore: mongo find: %w", err)
	}
	defer cur.Close(ctx)

	snap := &Snapshot{Version: currentVersion}
	for cur.Next(ctx) {
		var r Record
		if err := cur.Decode(&r); err != nil {
			return nil, fmt.Errorf("credstore: mongo decode: %w", err)
		}
		snap.Credentials = append(snap.Credentials, r)
	}
	return snap, cur.Err()
}

func (m *mongoStore) Save(ctx context.Context, snap *Snapshot) error {
	if _, err := m.collection.DeleteMany(ctx, bson.M{}); err != nil {
		return fmt.Errorf("credstore: mongo clear: %w", err)
	}
	if len(snap.Credentials) == 0 {
		return nil
	}
	docs := make([]interface{}, 0, len(snap.Credentials))
	for _, r := range snap.Credentials {
		docs = append(docs, r)
	}
	if _, err := m.collection.InsertMany(ctx, docs); err != nil {
		return fmt.Errorf("%w: mongo insert: %v", ErrStorageUnavailable, err)
	}
	return nil
}

func (m *mongoStore) Health(ctx context.Context) HealthStatus {
	start := time.Now()
	err := m.client.Ping(ctx, nil)
	return HealthStatus{
		Mode:    "mongo",
		Healthy: err == nil,
		Latency: time.Since(start),
		Err:     err,
	}
}

func (m *mongoStore) Close() error {
	return m.client.Disconnect(context.Background())
}
