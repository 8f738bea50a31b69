package database

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const defaultMongoDatabase = "bips"

// ConnectMongo dials MongoDB and returns the client with the database named
// in the URI path (or "bips").
func ConnectMongo(ctx context.Context, mongoURI string) (*mongo.Client, *mongo.Database, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	clientOptions := options.Client().ApplyURI(mongoURI)
	clientOptions.SetServerSelectionTimeout(10 * time.Second)

	client, err := mongo.Connect(connectCtx, clientOptions)
	if err != nil {
		return nil, nil, errors.Wrap(err, "connect mongo")
	}

	pingCtx, pingCancel := context.WithTimeout(ctx, 10*time.Second)
	defer pingCancel()

	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, nil, errors.Wrap(err, "ping mongo")
	}

	return client, client.Database(MongoDatabaseName(mongoURI)), nil
}

// MongoDatabaseName extracts the database from mongodb://host/<name>?opts.
func MongoDatabaseName(mongoURI string) string {
	rest := mongoURI
	if idx := strings.Index(rest, "://"); idx != -1 {
		rest = rest[idx+3:]
	}
	idx := strings.Index(rest, "/")
	if idx == -1 {
		return defaultMongoDatabase
	}
	name := strings.Split(rest[idx+1:], "?")[0]
	if name == "" {
		return defaultMongoDatabase
	}
	return name
}

// DisconnectMongo closes the client.
func DisconnectMongo(client *mongo.Client) error {
	if client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return client.Disconnect(ctx)
}
