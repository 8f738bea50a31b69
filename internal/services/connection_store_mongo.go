package services

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/bipbip/bips-backend/internal/models"
)

const connectionsCollection = "bipers"

// MongoConnectionStore keeps one document per connection, keyed by its id.
type MongoConnectionStore struct {
	col *mongo.Collection
}

func NewMongoConnectionStore(db *mongo.Database) *MongoConnectionStore {
	return &MongoConnectionStore{col: db.Collection(connectionsCollection)}
}

func (s *MongoConnectionStore) Add(ctx context.Context, connectionID string) error {
	// $setOnInsert keeps the first connect time when a connect is replayed
	_, err := s.col.UpdateOne(ctx,
		bson.M{"_id": connectionID},
		bson.M{"$setOnInsert": bson.M{"connected_at": time.Now().UTC()}},
		options.Update().SetUpsert(true),
	)
	return err
}

func (s *MongoConnectionStore) Remove(ctx context.Context, connectionID string) error {
	_, err := s.col.DeleteOne(ctx, bson.M{"_id": connectionID})
	return err
}

func (s *MongoConnectionStore) Members(ctx context.Context) ([]string, error) {
	cur, err := s.col.Find(ctx, bson.M{}, options.Find().SetProjection(bson.M{"_id": 1}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var conns []models.Connection
	if err := cur.All(ctx, &conns); err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(conns))
	for _, c := range conns {
		ids = append(ids, c.ID)
	}
	return ids, nil
}
