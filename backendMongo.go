package keysafe

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

type mongoEntry struct {
	Class     string    `bson:"class"`
	Account   string    `bson:"account"`
	Data      []byte    `bson:"data"`
	Access    string    `bson:"access"`
	CreatedAt time.Time `bson:"created_at"`
}

// MongoBackend keeps one document per entry, unique on (class, account).
type MongoBackend struct {
	client     *mongo.Client
	collection *mongo.Collection
}

// OpenMongo connects to uri and ensures the unique index exists.
func OpenMongo(ctx context.Context, uri, database, collection string) (*MongoBackend, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("could not connect to mongodb: %w", err)
	}

	backend := NewMongoBackend(client.Database(database).Collection(collection))
	backend.client = client

	if err := backend.EnsureIndex(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}

	return backend, nil
}

func NewMongoBackend(collection *mongo.Collection) *MongoBackend {
	return &MongoBackend{collection: collection}
}

func (m *MongoBackend) EnsureIndex(ctx context.Context) error {
	_, err := m.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "class", Value: 1}, {Key: "account", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("keysafe_class_account"),
	})
	if err != nil {
		return fmt.Errorf("could not create index: %w", err)
	}
	return nil
}

func (m *MongoBackend) filter(class Class, account string) bson.D {
	return bson.D{{Key: "class", Value: string(class)}, {Key: "account", Value: account}}
}

func toMongoEntry(item Item) mongoEntry {
	return mongoEntry{
		Class:     string(item.Class),
		Account:   item.Account,
		Data:      item.Data,
		Access:    item.Access.String(),
		CreatedAt: time.Now().UTC(),
	}
}

func (m *MongoBackend) Insert(ctx context.Context, item Item) error {
	if _, err := m.collection.InsertOne(ctx, toMongoEntry(item)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert failed: %w", err)
	}
	return nil
}

func (m *MongoBackend) Upsert(ctx context.Context, item Item) error {
	_, err := m.collection.ReplaceOne(ctx, m.filter(item.Class, item.Account), toMongoEntry(item),
		options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("replace failed: %w", err)
	}
	return nil
}

func (m *MongoBackend) Query(ctx context.Context, class Class, account string) ([]byte, error) {
	var entry mongoEntry
	err := m.collection.FindOne(ctx, m.filter(class, account)).Decode(&entry)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find failed: %w", err)
	}
	return entry.Data, nil
}

func (m *MongoBackend) DeleteByAccount(ctx context.Context, class Class, account string) error {
	res, err := m.collection.DeleteOne(ctx, m.filter(class, account))
	if err != nil {
		return fmt.Errorf("delete failed: %w", err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (m *MongoBackend) DeleteByClass(ctx context.Context, class Class) error {
	if _, err := m.collection.DeleteMany(ctx, bson.D{{Key: "class", Value: string(class)}}); err != nil {
		return fmt.Errorf("delete failed: %w", err)
	}
	return nil
}

// Close disconnects the client opened by OpenMongo.
func (m *MongoBackend) Close() error {
	if m.client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.client.Disconnect(ctx)
}
