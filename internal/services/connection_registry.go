package services

import (
	"context"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
)

// ConnectionStore holds the set of live connection ids. Add and Remove must be
// single atomic writes and must succeed when there is nothing to do.
type ConnectionStore interface {
	Add(ctx context.Context, connectionID string) error
	Remove(ctx context.Context, connectionID string) error
	Members(ctx context.Context) ([]string, error)
}

// ConnectionRegistry owns connection membership.
type ConnectionRegistry struct {
	store  ConnectionStore
	logger *zap.Logger
}

func NewConnectionRegistry(store ConnectionStore, logger *zap.Logger) *ConnectionRegistry {
	return &ConnectionRegistry{store: store, logger: logger}
}

// Register adds connectionID. Registering twice is a no-op.
func (r *ConnectionRegistry) Register(ctx context.Context, connectionID string) error {
	connectionID, err := checkConnectionID(connectionID)
	if err != nil {
		return err
	}
	if err := r.store.Add(ctx, connectionID); err != nil {
		return storageError("register connection", err)
	}
	r.logger.Debug("connection registered", zap.String("connection_id", connectionID))
	return nil
}

// Unregister removes connectionID. Removing an absent id is a no-op; disconnects
// routinely race with cleanup.
func (r *ConnectionRegistry) Unregister(ctx context.Context, connectionID string) error {
	connectionID, err := checkConnectionID(connectionID)
	if err != nil {
		return err
	}
	if err := r.store.Remove(ctx, connectionID); err != nil {
		return storageError("unregister connection", err)
	}
	r.logger.Debug("connection unregistered", zap.String("connection_id", connectionID))
	return nil
}

func checkConnectionID(connectionID string) (string, error) {
	connectionID = strings.TrimSpace(connectionID)
	switch {
	case connectionID == "":
		return "", validationError("connection id is required")
	case utf8.RuneCountInString(connectionID) > MaxFieldLength:
		return "", validationError("connection id must be at most %d characters", MaxFieldLength)
	}
	return connectionID, nil
}

// ListAll returns a snapshot of the registered ids in no particular order.
func (r *ConnectionRegistry) ListAll(ctx context.Context) ([]string, error) {
	ids, err := r.store.Members(ctx)
	if err != nil {
		return nil, storageError("list connections", err)
	}
	return ids, nil
}
