package profile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	domerrors "github.com/qchat-dev/qchat-go/internal/errors"
	"github.com/qchat-dev/qchat-go/internal/logger"
)

// CollectionName is the MongoDB collection holding profiles.
const CollectionName = "user_profiles"

const mongoTimeout = 3 * time.Second

// MongoStore keeps profiles in a MongoDB collection, one document per user.
type MongoStore struct {
	client *mongo.Client
	coll   *mongo.Collection
	log    *logger.Logger
}

var _ Store = (*MongoStore)(nil)

// NewMongoStore connects to uri, verifies the connection and ensures the
// unique username index.
func NewMongoStore(ctx context.Context, uri, database string, log *logger.Logger) (*MongoStore, error) {
	opts := options.Client().
		ApplyURI(uri).
		SetServerSelectionTimeout(mongoTimeout).
		SetConnectTimeout(mongoTimeout).
		SetTimeout(mongoTimeout).
		SetBSONOptions(&options.BSONOptions{DefaultDocumentM: true})

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("connect mongodb: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}

	coll := client.Database(database).Collection(CollectionName)
	_, err = coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "username", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("create username index: %w", err)
	}

	s := newMongoStore(coll, log)
	s.client = client
	s.log.InfoContext(ctx, "Profile store connected to MongoDB", "database", database)
	return s, nil
}

func newMongoStore(coll *mongo.Collection, log *logger.Logger) *MongoStore {
	if log == nil {
		log = logger.Discard()
	}
	return &MongoStore{coll: coll, log: log.WithModule("profile")}
}

// Close disconnects the client.
func (s *MongoStore) Close(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	return s.client.Disconnect(ctx)
}

// Get implements Store.
func (s *MongoStore) Get(ctx context.Context, username string) (*Profile, error) {
	if username == "" {
		return nil, domerrors.ErrNotFound
	}
	var raw bson.M
	err := s.coll.FindOne(ctx, bson.M{"username": username}).Decode(&raw)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, domerrors.ErrNotFound
	}
	if err != nil {
		return nil, unavailable("get", err)
	}
	delete(raw, "_id")
	p, err := Migrate(raw)
	if err != nil {
		return nil, err
	}
	p.Username = username
	return p, nil
}

// Create implements Store.
func (s *MongoStore) Create(ctx context.Context, username string) (*Profile, error) {
	if username == "" {
		return nil, domerrors.NewValidationError("username", "required")
	}
	p := New(username, time.Now())
	if _, err := s.coll.InsertOne(ctx, p); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, ErrExists
		}
		return nil, unavailable("create", err)
	}
	s.log.InfoContext(ctx, "Created profile", "username", username)
	return p, nil
}

// Update implements Store. Values are decoded into their field types before
// they reach $set.
func (s *MongoStore) Update(ctx context.Context, username string, updates map[string]any) bool {
	if username == "" {
		return false
	}
	typed, err := NormalizeUpdates(updates)
	if err != nil {
		s.log.WithError(err).WarnContext(ctx, "Rejected profile update", "username", username)
		return false
	}
	set := bson.M{"updated_at": time.Now().UTC()}
	for path, v := range typed {
		set[path] = v
	}
	return s.updateOne(ctx, "update", username, bson.M{"$set": set})
}

// AppendToArray implements Store with $addToSet.
func (s *MongoStore) AppendToArray(ctx context.Context, username, path string, value any) bool {
	if username == "" {
		return false
	}
	item, err := NormalizeArrayValue(path, value)
	if err != nil {
		s.log.WithError(err).WarnContext(ctx, "Rejected profile append", "username", username, "path", path)
		return false
	}
	return s.updateOne(ctx, "append", username, bson.M{
		"$addToSet": bson.M{path: item},
		"$set":      bson.M{"updated_at": time.Now().UTC()},
	})
}

// Ping implements Store.
func (s *MongoStore) Ping(ctx context.Context) error {
	return s.coll.Database().Client().Ping(ctx, readpref.Primary())
}

func (s *MongoStore) updateOne(ctx context.Context, op, username string, update bson.M) bool {
	res, err := s.coll.UpdateOne(ctx, bson.M{"username": username}, update)
	if err != nil {
		s.log.WithError(err).ErrorContext(ctx, "Profile write failed", "operation", op, "username", username)
		return false
	}
	if res.MatchedCount == 0 {
		s.log.DebugContext(ctx, "No profile to update", "operation", op, "username", username)
		return false
	}
	return true
}
