package vault

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/deckhaven/sessionkit/internal/core/domain"
)

const (
	mongoConnectTimeout = 10 * time.Second
	mongoCollection     = "session_cache"
)

// MongoConfig captures the minimal settings for the mongo-backed vault.
type MongoConfig struct {
	URI      string
	Database string
	Timeout  time.Duration
}

// ConnectMongo establishes a MongoDB client, verifies connectivity with a
// ping, and returns both the client and the selected database. A default
// timeout is applied when none is provided.
func ConnectMongo(ctx context.Context, cfg MongoConfig) (*mongo.Client, *mongo.Database, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = mongoConnectTimeout
	}

	connectCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(connectCtx)
		return nil, nil, fmt.Errorf("mongo ping: %w", err)
	}
	return client, client.Database(cfg.Database), nil
}

type mongoSession struct {
	ID      string                  `bson:"_id"`
	Session domain.PersistedSession `bson:"session"`
	Updated int64                   `bson:"updated_at"`
}

// MongoVault stores the session cache as a single upserted document.
type MongoVault struct {
	coll *mongo.Collection
}

// NewMongoVault wraps an established database handle.
func NewMongoVault(db *mongo.Database) *MongoVault {
	return &MongoVault{coll: db.Collection(mongoCollection)}
}

func (v *MongoVault) Load(ctx context.Context) (*domain.PersistedSession, error) {
	var doc mongoSession
	err := v.coll.FindOne(ctx, bson.M{"_id": StorageKey}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("vault: mongo find: %w", err)
	}
	return &doc.Session, nil
}

func (v *MongoVault) Save(ctx context.Context, s *domain.PersistedSession) error {
	doc := mongoSession{
		ID:      StorageKey,
		Session: *s,
		Updated: time.Now().Unix(),
	}
	_, err := v.coll.ReplaceOne(ctx, bson.M{"_id": StorageKey}, doc,
		options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("vault: mongo upsert: %w", err)
	}
	return nil
}

func (v *MongoVault) Clear(ctx context.Context) error {
	if _, err := v.coll.DeleteOne(ctx, bson.M{"_id": StorageKey}); err != nil {
		return fmt.Errorf("vault: mongo delete: %w", err)
	}
	return nil
}
