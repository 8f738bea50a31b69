package services

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/bipbip/bips-backend/internal/database"
	"github.com/bipbip/bips-backend/internal/models"
)

// newTestMongo connects to BIPS_TEST_MONGO_URI and returns a throwaway database.
func newTestMongo(t *testing.T) *mongo.Database {
	t.Helper()
	uri := os.Getenv("BIPS_TEST_MONGO_URI")
	if uri == "" {
		t.Skip("BIPS_TEST_MONGO_URI not set")
	}
	client, _, err := database.ConnectMongo(context.Background(), uri)
	require.NoError(t, err)

	db := client.Database(fmt.Sprintf("bips_test_%d", time.Now().UnixNano()))
	t.Cleanup(func() {
		_ = db.Drop(context.Background())
		_ = database.DisconnectMongo(client)
	})
	return db
}

func TestMongoBipStore(t *testing.T) {
	db := newTestMongo(t)
	store := NewMongoBipStore(db)
	ctx := context.Background()
	require.NoError(t, store.EnsureIndexes(ctx))

	older := models.Bip{ID: "b1", Pseudo: "Ada", StatusCode: 1, Location: "bar", Timestamp: pivot, Day: models.DayOf(pivot)}
	newer := models.Bip{
		ID: "b2", Pseudo: "Beda", StatusCode: 2, Location: "geoloc",
		Coordinates: &models.Coordinates{Latitude: 1, Longitude: 2},
		Timestamp:   pivot.Add(time.Minute), Day: models.DayOf(pivot),
	}
	yesterday := models.Bip{ID: "b0", Pseudo: "Old", StatusCode: 3, Location: "bar", Timestamp: pivot.Add(-24 * time.Hour), Day: models.DayOf(pivot.Add(-24 * time.Hour))}
	for _, b := range []models.Bip{older, newer, yesterday} {
		require.NoError(t, store.Insert(ctx, b))
	}

	bips, err := store.ListByDay(ctx, models.DayOf(pivot))
	require.NoError(t, err)
	require.Len(t, bips, 2)
	assert.Equal(t, newer, bips[0])
	assert.Nil(t, bips[1].Coordinates)

	n, err := store.PurgeBefore(ctx, pivot)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestMongoConnectionStore(t *testing.T) {
	db := newTestMongo(t)
	store := NewMongoConnectionStore(db)
	ctx := context.Background()

	require.NoError(t, store.Add(ctx, "A"))
	require.NoError(t, store.Add(ctx, "A"))
	require.NoError(t, store.Add(ctx, "B"))
	require.NoError(t, store.Remove(ctx, "B"))
	require.NoError(t, store.Remove(ctx, "missing"))

	ids, err := store.Members(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"A"}, ids)
}

func TestMongoBipKeepsNanoseconds(t *testing.T) {
	first := time.Date(2023, 10, 20, 12, 0, 0, 123456789, time.UTC)
	second := first.Add(time.Nanosecond)
	bip := models.Bip{
		ID: "b1", Pseudo: "Ada", StatusCode: 1, Location: "bar",
		Coordinates: &models.Coordinates{Latitude: 1, Longitude: 2},
		Timestamp:   first, Day: models.DayOf(first), ConnectionID: "c1",
	}

	got, err := toMongoBip(bip).bip()
	require.NoError(t, err)
	assert.Equal(t, bip, got)

	// same millisecond, still ordered
	assert.Less(t, mongoTime(first), mongoTime(second))
	assert.Less(t, mongoTime(time.Date(2023, 10, 20, 9, 0, 0, 0, time.UTC)), mongoTime(first))
	assert.Equal(t, mongoTime(first), mongoTime(first.In(time.FixedZone("CEST", 2*3600))))
}

func TestMongoBipRejectsBadTimestamp(t *testing.T) {
	_, err := mongoBip{ID: "b1", Timestamp: "yesterday"}.bip()
	assert.Error(t, err)
}
