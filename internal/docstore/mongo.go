package docstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const defaultFindBatchSize = 1000

// Mongo is an Endpoint backed by the official MongoDB driver.
// The client is safe for concurrent use by every worker of one job.
type Mongo struct {
	role    string
	address string
	client  *mongo.Client
	timeout time.Duration

	// FindBatchSize bounds how many documents a cursor holds per server round trip.
	FindBatchSize int32
}

// OpenMongo connects to uri and verifies the connection with a ping.
func OpenMongo(ctx context.Context, role, uri string, timeout time.Duration) (*Mongo, error) {
	if uri == "" {
		return nil, fmt.Errorf("%s endpoint: connection string is empty", role)
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	connectCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	clientOpts := options.Client().
		ApplyURI(uri).
		SetConnectTimeout(timeout).
		SetServerSelectionTimeout(timeout)

	client, err := mongo.Connect(connectCtx, clientOpts)
	if err != nil {
		return nil, Classify(role, fmt.Errorf("failed to connect to MongoDB: %w", err))
	}

	if err := client.Ping(connectCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, Classify(role, fmt.Errorf("failed to ping MongoDB: %w", err))
	}

	return &Mongo{
		role:          role,
		address:       RedactURI(uri),
		client:        client,
		timeout:       timeout,
		FindBatchSize: defaultFindBatchSize,
	}, nil
}

func (m *Mongo) Role() string {
	return m.role
}

func (m *Mongo) Address() string {
	return m.address
}

func (m *Mongo) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	if err := m.client.Ping(ctx, readpref.Primary()); err != nil {
		return Classify(m.role, fmt.Errorf("failed to ping MongoDB: %w", err))
	}
	return nil
}

func (m *Mongo) ListDatabases(ctx context.Context) ([]DatabaseInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	result, err := m.client.ListDatabases(ctx, bson.D{})
	if err != nil {
		return nil, Classify(m.role, fmt.Errorf("failed to list MongoDB databases: %w", err))
	}

	databases := make([]DatabaseInfo, 0, len(result.Databases))
	for _, db := range result.Databases {
		databases = append(databases, DatabaseInfo{
			Name:      db.Name,
			SizeBytes: db.SizeOnDisk,
		})
	}
	return databases, nil
}

func (m *Mongo) ListCollections(ctx context.Context, database string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	// Views hold no documents of their own and cannot be inserted into.
	filter := bson.D{{Key: "type", Value: "collection"}}
	names, err := m.client.Database(database).ListCollectionNames(ctx, filter)
	if err != nil {
		return nil, Classify(m.role, fmt.Errorf("failed to list collections of %s: %w", database, err))
	}
	return names, nil
}

func (m *Mongo) Find(ctx context.Context, ns Namespace) (Cursor, error) {
	opts := options.Find().SetBatchSize(m.FindBatchSize)

	cursor, err := m.collection(ns).Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, Classify(m.role, fmt.Errorf("failed to query collection %s: %w", ns, err))
	}
	return &mongoCursor{role: m.role, ns: ns, cursor: cursor}, nil
}

func (m *Mongo) InsertMany(ctx context.Context, ns Namespace, docs []Document) (InsertResult, error) {
	if len(docs) == 0 {
		return InsertResult{}, nil
	}

	batch := make([]interface{}, len(docs))
	for i, doc := range docs {
		batch[i] = doc
	}

	opts := options.InsertMany().SetOrdered(false)
	_, err := m.collection(ns).InsertMany(ctx, batch, opts)
	if err == nil {
		return InsertResult{Inserted: len(docs)}, nil
	}

	var bulkErr mongo.BulkWriteException
	if !errors.As(err, &bulkErr) || bulkErr.WriteConcernError != nil || len(bulkErr.WriteErrors) == 0 {
		return InsertResult{}, Classify(m.role, fmt.Errorf("failed to insert batch into %s: %w", ns, err))
	}

	result := InsertResult{Failures: make([]WriteFailure, 0, len(bulkErr.WriteErrors))}
	for _, writeErr := range bulkErr.WriteErrors {
		result.Failures = append(result.Failures, WriteFailure{
			Index:   writeErr.Index,
			Code:    writeErr.Code,
			Message: writeErr.Message,
		})
	}
	result.Inserted = len(docs) - len(result.Failures)
	return result, nil
}

func (m *Mongo) ListIndexes(ctx context.Context, ns Namespace) ([]IndexSpec, error) {
	cursor, err := m.collection(ns).Indexes().List(ctx)
	if err != nil {
		return nil, Classify(m.role, fmt.Errorf("failed to list indexes: %w", err))
	}
	defer cursor.Close(ctx)

	var specs []IndexSpec
	for cursor.Next(ctx) {
		var indexDoc struct {
			Name   string `bson:"name"`
			Key    bson.D `bson:"key"`
			Unique bool   `bson:"unique,omitempty"`
			Sparse bool   `bson:"sparse,omitempty"`
			Expire *int32 `bson:"expireAfterSeconds,omitempty"`
		}
		if err := cursor.Decode(&indexDoc); err != nil {
			return nil, fmt.Errorf("failed to decode index: %w", err)
		}

		specs = append(specs, IndexSpec{
			Name:               indexDoc.Name,
			Keys:               indexDoc.Key,
			Unique:             indexDoc.Unique,
			Sparse:             indexDoc.Sparse,
			ExpireAfterSeconds: indexDoc.Expire,
		})
	}

	if err := cursor.Err(); err != nil {
		return nil, Classify(m.role, fmt.Errorf("error reading indexes: %w", err))
	}
	return specs, nil
}

func (m *Mongo) CreateIndexes(ctx context.Context, ns Namespace, specs []IndexSpec) error {
	models := make([]mongo.IndexModel, 0, len(specs))
	for _, spec := range specs {
		indexOptions := options.Index().SetName(spec.Name)
		if spec.Unique {
			indexOptions = indexOptions.SetUnique(true)
		}
		if spec.Sparse {
			indexOptions = indexOptions.SetSparse(true)
		}
		if spec.ExpireAfterSeconds != nil {
			indexOptions = indexOptions.SetExpireAfterSeconds(*spec.ExpireAfterSeconds)
		}

		models = append(models, mongo.IndexModel{
			Keys:    spec.Keys,
			Options: indexOptions,
		})
	}

	if len(models) == 0 {
		return nil
	}

	if _, err := m.collection(ns).Indexes().CreateMany(ctx, models); err != nil {
		return Classify(m.role, fmt.Errorf("failed to create indexes: %w", err))
	}
	return nil
}

func (m *Mongo) Close(ctx context.Context) error {
	if m.client == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return m.client.Disconnect(ctx)
}

func (m *Mongo) collection(ns Namespace) *mongo.Collection {
	return m.client.Database(ns.Database).Collection(ns.Collection)
}

type mongoCursor struct {
	role   string
	ns     Namespace
	cursor *mongo.Cursor
}

func (c *mongoCursor) Next(ctx context.Context) (Document, error) {
	if !c.cursor.Next(ctx) {
		if err := c.cursor.Err(); err != nil {
			return nil, Classify(c.role, fmt.Errorf("error reading documents from %s: %w", c.ns, err))
		}
		return nil, io.EOF
	}

	var document bson.D
	if err := c.cursor.Decode(&document); err != nil {
		return nil, fmt.Errorf("failed to decode document from %s: %w", c.ns, err)
	}
	return document, nil
}

func (c *mongoCursor) Close(ctx context.Context) error {
	return c.cursor.Close(ctx)
}
