package storage

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// MongoStore keeps objects as documents {_id: key, body: <bytes>}.
type MongoStore struct {
	client     *mongo.Client
	collection *mongo.Collection
	logger     *logrus.Entry
}

type mongoObject struct {
	Key       string    `bson:"_id"`
	Body      []byte    `bson:"body"`
	UpdatedAt time.Time `bson:"updated_at"`
}

func NewMongoStore(ctx context.Context, cfg Config) (*MongoStore, error) {
	if cfg.DSN == "" {
		return nil, errors.New("storage.dsn must be specified for mongo")
	}
	database := cfg.Database
	if database == "" {
		database = "tourdiscovery"
	}
	collection := cfg.Collection
	if collection == "" {
		collection = "objects"
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(cfg.DSN))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create MongoDB client")
	}
	if err := client.Ping(connectCtx, readpref.Primary()); err != nil {
		client.Disconnect(ctx)
		return nil, errors.Wrap(err, "failed to connect to MongoDB")
	}

	logger := logrus.WithField("storage", "mongo")
	logger.WithFields(logrus.Fields{"database": database, "collection": collection}).Debug("MongoDB store initialized")

	return &MongoStore{
		client:     client,
		collection: client.Database(database).Collection(collection),
		logger:     logger,
	}, nil
}

func (m *MongoStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var obj mongoObject
	err := m.collection.FindOne(ctx, bson.M{"_id": key}).Decode(&obj)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrapf(err, "failed to find %s", key)
	}
	return obj.Body, true, nil
}

func (m *MongoStore) Put(ctx context.Context, key string, data []byte) error {
	obj := mongoObject{Key: key, Body: data, UpdatedAt: time.Now().UTC()}
	_, err := m.collection.ReplaceOne(ctx, bson.M{"_id": key}, obj, options.Replace().SetUpsert(true))
	if err != nil {
		return errors.Wrapf(err, "failed to upsert %s", key)
	}
	return nil
}

func (m *MongoStore) Delete(ctx context.Context, key string) error {
	if _, err := m.collection.DeleteOne(ctx, bson.M{"_id": key}); err != nil {
		return errors.Wrapf(err, "failed to delete %s", key)
	}
	return nil
}

func (m *MongoStore) Exists(ctx context.Context, key string) (bool, error) {
	n, err := m.collection.CountDocuments(ctx, bson.M{"_id": key}, options.Count().SetLimit(1))
	if err != nil {
		return false, errors.Wrapf(err, "failed to count %s", key)
	}
	return n > 0, nil
}

func (m *MongoStore) Close() error {
	return m.client.Disconnect(context.Background())
}
