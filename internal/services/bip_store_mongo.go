package services

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/bipbip/bips-backend/internal/models"
)

const bipsCollection = "bips"

// mongoTimeLayout is fixed width so that string order is time order. BSON
// datetimes stop at milliseconds; bips are ordered to the nanosecond.
const mongoTimeLayout = "2006-01-02T15:04:05.000000000Z"

// mongoBip is the stored form of a bip.
type mongoBip struct {
	ID           string              `bson:"_id"`
	Pseudo       string              `bson:"pseudo"`
	StatusCode   int                 `bson:"status_code"`
	Location     string              `bson:"location"`
	Coordinates  *models.Coordinates `bson:"coordinates,omitempty"`
	Timestamp    string              `bson:"timestamp"`
	Day          string              `bson:"day"`
	ConnectionID string              `bson:"connection_id,omitempty"`
}

func mongoTime(t time.Time) string {
	return t.UTC().Format(mongoTimeLayout)
}

func toMongoBip(b models.Bip) mongoBip {
	return mongoBip{
		ID:           b.ID,
		Pseudo:       b.Pseudo,
		StatusCode:   b.StatusCode,
		Location:     b.Location,
		Coordinates:  b.Coordinates,
		Timestamp:    mongoTime(b.Timestamp),
		Day:          b.Day,
		ConnectionID: b.ConnectionID,
	}
}

func (d mongoBip) bip() (models.Bip, error) {
	ts, err := time.Parse(mongoTimeLayout, d.Timestamp)
	if err != nil {
		return models.Bip{}, errors.Wrapf(err, "bip %s timestamp", d.ID)
	}
	return models.Bip{
		ID:           d.ID,
		Pseudo:       d.Pseudo,
		StatusCode:   d.StatusCode,
		Location:     d.Location,
		Coordinates:  d.Coordinates,
		Timestamp:    ts,
		Day:          d.Day,
		ConnectionID: d.ConnectionID,
	}, nil
}

// MongoBipStore keeps one document per bip in the "bips" collection.
type MongoBipStore struct {
	col *mongo.Collection
}

func NewMongoBipStore(db *mongo.Database) *MongoBipStore {
	return &MongoBipStore{col: db.Collection(bipsCollection)}
}

// EnsureIndexes creates the (day, timestamp desc) index that serves ListByDay.
func (s *MongoBipStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.col.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{
			{Key: "day", Value: 1},
			{Key: "timestamp", Value: -1},
		},
		Options: options.Index().SetName("idx_day_timestamp"),
	})
	return err
}

func (s *MongoBipStore) Insert(ctx context.Context, bip models.Bip) error {
	_, err := s.col.InsertOne(ctx, toMongoBip(bip))
	return err
}

func (s *MongoBipStore) ListByDay(ctx context.Context, day string) ([]models.Bip, error) {
	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}})

	cur, err := s.col.Find(ctx, bson.M{"day": day}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var docs []mongoBip
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	bips := make([]models.Bip, 0, len(docs))
	for _, d := range docs {
		bip, err := d.bip()
		if err != nil {
			return nil, err
		}
		bips = append(bips, bip)
	}
	return bips, nil
}

func (s *MongoBipStore) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.col.DeleteMany(ctx, bson.M{
		"timestamp": bson.M{"$lt": mongoTime(cutoff)},
	})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}
